package schema

// Project groups milestones and tasks.
type Project struct {
	ID          string `yaml:"id" json:"id" toml:"id"`
	Name        string `yaml:"name" json:"name" toml:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty" toml:"description,omitempty"`
	Color       string `yaml:"color" json:"color" toml:"color"`
	IsArchived  bool   `yaml:"isArchived" json:"isArchived" toml:"isArchived"`
}

func (p Project) EntityID() string { return p.ID }
func (Project) Kind() Kind         { return KindProject }

func (p Project) Validate() error {
	v := &ValidationError{}
	v.required("id", p.ID)
	v.required("name", p.Name)
	v.maxLen("name", p.Name, 200)
	v.color("color", p.Color)
	return v.Err()
}

// Milestone is a dated checkpoint inside a project.
type Milestone struct {
	ID        string `yaml:"id" json:"id" toml:"id"`
	ProjectID string `yaml:"projectId" json:"projectId" toml:"projectId"`
	Name      string `yaml:"name" json:"name" toml:"name"`
	DueDate   string `yaml:"dueDate,omitempty" json:"dueDate,omitempty" toml:"dueDate,omitempty"`
	IsDone    bool   `yaml:"isDone" json:"isDone" toml:"isDone"`
}

func (m Milestone) EntityID() string { return m.ID }
func (Milestone) Kind() Kind         { return KindMilestone }

func (m Milestone) Validate() error {
	v := &ValidationError{}
	v.required("id", m.ID)
	v.required("projectId", m.ProjectID)
	v.required("name", m.Name)
	v.date("dueDate", m.DueDate, false)
	return v.Err()
}
