package schema

// Task is a unit of work inside a project.
type Task struct {
	ID          string   `yaml:"id" json:"id" toml:"id"`
	ProjectID   string   `yaml:"projectId" json:"projectId" toml:"projectId"`
	MilestoneID string   `yaml:"milestoneId,omitempty" json:"milestoneId,omitempty" toml:"milestoneId,omitempty"`
	Name        string   `yaml:"name" json:"name" toml:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	DueDate     string   `yaml:"dueDate,omitempty" json:"dueDate,omitempty" toml:"dueDate,omitempty"`
	IsDone      bool     `yaml:"isDone" json:"isDone" toml:"isDone"`
	IsArchived  bool     `yaml:"isArchived" json:"isArchived" toml:"isArchived"`
	LabelIDs    []string `yaml:"labelIds" json:"labelIds" toml:"labelIds"`
	AssigneeIDs []string `yaml:"assigneeIds" json:"assigneeIds" toml:"assigneeIds"`
}

func (t Task) EntityID() string { return t.ID }
func (Task) Kind() Kind         { return KindTask }

// Validate checks if the Task has valid field values.
func (t Task) Validate() error {
	v := &ValidationError{}
	v.required("id", t.ID)
	v.required("projectId", t.ProjectID)
	v.required("name", t.Name)
	v.maxLen("name", t.Name, 500)
	v.date("dueDate", t.DueDate, false)
	v.uniqueIDs("labelIds", t.LabelIDs)
	v.uniqueIDs("assigneeIds", t.AssigneeIDs)
	return v.Err()
}

// HasLabel reports whether the task carries labelID.
func (t Task) HasLabel(labelID string) bool {
	return contains(t.LabelIDs, labelID)
}

// HasAssignee reports whether personID is assigned to the task.
func (t Task) HasAssignee(personID string) bool {
	return contains(t.AssigneeIDs, personID)
}

// Assignment books a person onto a task for one day.
type Assignment struct {
	ID       string `yaml:"id" json:"id" toml:"id"`
	TaskID   string `yaml:"taskId" json:"taskId" toml:"taskId"`
	PersonID string `yaml:"personId" json:"personId" toml:"personId"`
	Date     string `yaml:"date" json:"date" toml:"date"`
	Note     string `yaml:"note,omitempty" json:"note,omitempty" toml:"note,omitempty"`
}

func (a Assignment) EntityID() string { return a.ID }
func (Assignment) Kind() Kind         { return KindAssignment }

func (a Assignment) Validate() error {
	v := &ValidationError{}
	v.required("id", a.ID)
	v.required("taskId", a.TaskID)
	v.required("personId", a.PersonID)
	v.date("date", a.Date, true)
	return v.Err()
}

// Label tags tasks.
type Label struct {
	ID    string `yaml:"id" json:"id" toml:"id"`
	Name  string `yaml:"name" json:"name" toml:"name"`
	Color string `yaml:"color" json:"color" toml:"color"`
}

func (l Label) EntityID() string { return l.ID }
func (Label) Kind() Kind         { return KindLabel }

func (l Label) Validate() error {
	v := &ValidationError{}
	v.required("id", l.ID)
	v.required("name", l.Name)
	v.color("color", l.Color)
	return v.Err()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Without returns list with every occurrence of s removed. It returns a new
// slice and never modifies list.
func Without(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}
