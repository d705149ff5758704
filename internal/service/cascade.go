package service

import (
	"context"
	"errors"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

func (a *App) registerCascades() {
	a.Sagas.Register(schema.KindTask, schema.ActionDelete, SagaStep{
		Name: "remove assignments of task",
		Run: func(ctx context.Context, e schema.Entity) error {
			taskID := e.EntityID()
			// Always one replaceAll, even when the task had no assignments.
			_, err := a.Assignments.RemoveWhere(ctx, true, func(as schema.Assignment) bool {
				return as.TaskID == taskID
			})
			return err
		},
	})

	a.Sagas.Register(schema.KindPerson, schema.ActionDelete, SagaStep{
		Name: "remove assignments of person",
		Run: func(ctx context.Context, e schema.Entity) error {
			_, err := a.Assignments.RemoveWhere(ctx, false, func(as schema.Assignment) bool {
				return as.PersonID == e.EntityID()
			})
			return err
		},
	})
	a.Sagas.Register(schema.KindPerson, schema.ActionDelete, SagaStep{
		Name: "remove plannings of person",
		Run: func(ctx context.Context, e schema.Entity) error {
			_, err := a.Plannings.RemoveWhere(ctx, false, func(p schema.Planning) bool {
				return p.PersonID == e.EntityID()
			})
			return err
		},
	})
	a.Sagas.Register(schema.KindPerson, schema.ActionDelete, SagaStep{
		Name: "unassign person from tasks",
		Run: func(ctx context.Context, e schema.Entity) error {
			personID := e.EntityID()
			_, err := a.Tasks.UpdateWhere(ctx, func(t schema.Task) (schema.Task, bool) {
				if !t.HasAssignee(personID) {
					return t, false
				}
				t.AssigneeIDs = schema.Without(t.AssigneeIDs, personID)
				return t, true
			})
			return err
		},
	})

	a.Sagas.Register(schema.KindProject, schema.ActionDelete, SagaStep{
		Name: "remove project contents",
		Run:  a.removeProjectContents,
	})

	a.Sagas.Register(schema.KindMilestone, schema.ActionDelete, SagaStep{
		Name: "detach tasks from milestone",
		Run: func(ctx context.Context, e schema.Entity) error {
			milestoneID := e.EntityID()
			_, err := a.Tasks.UpdateWhere(ctx, func(t schema.Task) (schema.Task, bool) {
				if t.MilestoneID != milestoneID {
					return t, false
				}
				t.MilestoneID = ""
				return t, true
			})
			return err
		},
	})

	a.Sagas.Register(schema.KindLabel, schema.ActionDelete, SagaStep{
		Name: "strip label from tasks",
		Run: func(ctx context.Context, e schema.Entity) error {
			labelID := e.EntityID()
			_, err := a.Tasks.UpdateWhere(ctx, func(t schema.Task) (schema.Task, bool) {
				if !t.HasLabel(labelID) {
					return t, false
				}
				t.LabelIDs = schema.Without(t.LabelIDs, labelID)
				return t, true
			})
			return err
		},
	})
}

func (a *App) removeProjectContents(ctx context.Context, e schema.Entity) error {
	projectID := e.EntityID()
	var errs []error

	_, err := a.Milestones.RemoveWhere(ctx, false, func(m schema.Milestone) bool {
		return m.ProjectID == projectID
	})
	errs = append(errs, err)

	removed := make(map[string]bool)
	_, err = a.Tasks.RemoveWhere(ctx, false, func(t schema.Task) bool {
		if t.ProjectID == projectID {
			removed[t.ID] = true
			return true
		}
		return false
	})
	errs = append(errs, err)

	if len(removed) > 0 {
		_, err = a.Assignments.RemoveWhere(ctx, false, func(as schema.Assignment) bool {
			return removed[as.TaskID]
		})
		errs = append(errs, err)
	}

	_, err = a.Plannings.RemoveWhere(ctx, false, func(p schema.Planning) bool {
		return p.ProjectID == projectID
	})
	errs = append(errs, err)

	return errors.Join(errs...)
}
