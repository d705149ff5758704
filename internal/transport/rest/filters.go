package rest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mschirtzinger/teamboard/internal/datespec"
	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/service"
)

// filterList applies the per-kind query filters. Kinds without filters
// list everything.
func (s *Server) filterList(c *gin.Context, coll service.Collection) ([]schema.Entity, error) {
	switch coll.Kind() {
	case schema.KindTask:
		return s.filterTasks(c)
	case schema.KindAssignment:
		return s.filterAssignments(c)
	case schema.KindMilestone:
		projectID := c.Query("projectId")
		var out []schema.Entity
		for _, m := range s.app.Milestones.List() {
			if projectID == "" || m.ProjectID == projectID {
				out = append(out, m)
			}
		}
		return out, nil
	default:
		return coll.ListEntities(), nil
	}
}

func (s *Server) filterTasks(c *gin.Context) ([]schema.Entity, error) {
	projectID := c.Query("projectId")
	includeArchived := true
	if v := c.Query("includeArchived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("includeArchived must be a boolean")
		}
		includeArchived = b
	}

	var out []schema.Entity
	for _, t := range s.app.Tasks.List() {
		if projectID != "" && t.ProjectID != projectID {
			continue
		}
		if t.IsArchived && !includeArchived {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Server) filterAssignments(c *gin.Context) ([]schema.Entity, error) {
	now := time.Now()
	var from, to string
	if v := c.Query("from"); v != "" {
		d, err := datespec.Format(v, now)
		if err != nil {
			return nil, err
		}
		from = d
	}
	if v := c.Query("to"); v != "" {
		d, err := datespec.Format(v, now)
		if err != nil {
			return nil, err
		}
		to = d
	}
	personID := c.Query("personId")
	taskID := c.Query("taskId")

	var out []schema.Entity
	for _, a := range s.app.Assignments.List() {
		// Stored dates are YYYY-MM-DD, so string order is date order.
		switch {
		case from != "" && a.Date < from,
			to != "" && a.Date > to,
			personID != "" && a.PersonID != personID,
			taskID != "" && a.TaskID != taskID:
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
