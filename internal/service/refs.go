package service

import "github.com/mschirtzinger/teamboard/internal/schema"

// Referential checks run on create and update. Dangling references are
// reported as validation errors on the referencing field.

func (a *App) checkMilestone(m schema.Milestone) error {
	v := &schema.ValidationError{}
	a.requireProject(v, "projectId", m.ProjectID)
	return v.Err()
}

func (a *App) checkTask(t schema.Task) error {
	v := &schema.ValidationError{}
	a.requireProject(v, "projectId", t.ProjectID)
	if t.MilestoneID != "" {
		m, ok := a.Milestones.repo.Get(t.MilestoneID)
		switch {
		case !ok:
			v.Add("milestoneId", "unknown milestone "+t.MilestoneID)
		case m.ProjectID != t.ProjectID:
			v.Add("milestoneId", "belongs to another project")
		}
	}
	for _, id := range t.LabelIDs {
		if _, ok := a.Labels.repo.Get(id); !ok {
			v.Add("labelIds", "unknown label "+id)
		}
	}
	for _, id := range t.AssigneeIDs {
		if _, ok := a.People.repo.Get(id); !ok {
			v.Add("assigneeIds", "unknown person "+id)
		}
	}
	return v.Err()
}

func (a *App) checkAssignment(as schema.Assignment) error {
	v := &schema.ValidationError{}
	if _, ok := a.Tasks.repo.Get(as.TaskID); !ok {
		v.Add("taskId", "unknown task "+as.TaskID)
	}
	a.requirePerson(v, "personId", as.PersonID)
	return v.Err()
}

func (a *App) checkPlanning(p schema.Planning) error {
	v := &schema.ValidationError{}
	a.requirePerson(v, "personId", p.PersonID)
	a.requireProject(v, "projectId", p.ProjectID)
	return v.Err()
}

func (a *App) requireProject(v *schema.ValidationError, field, id string) {
	if _, ok := a.Projects.repo.Get(id); !ok {
		v.Add(field, "unknown project "+id)
	}
}

func (a *App) requirePerson(v *schema.ValidationError, field, id string) {
	if _, ok := a.People.repo.Get(id); !ok {
		v.Add(field, "unknown person "+id)
	}
}
