package service

import (
	"context"
	"sort"

	"github.com/mschirtzinger/teamboard/internal/auditindex"
	"github.com/mschirtzinger/teamboard/internal/schema"
)

// QueryAudit returns matching audit records, newest first. It reads the
// index when one is open and scans the audit document otherwise.
func (a *App) QueryAudit(ctx context.Context, f auditindex.Filter) ([]schema.AuditLog, error) {
	if a.Index != nil {
		entries, err := a.Index.Query(ctx, f)
		if err == nil {
			return entries, nil
		}
		a.logger.Warn("audit index query failed, scanning document", "error", err)
	}
	return scanAudit(a.AuditLogs.List(), f), nil
}

func scanAudit(all []schema.AuditLog, f auditindex.Filter) []schema.AuditLog {
	var out []schema.AuditLog
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		switch {
		case f.EntityType != "" && e.EntityType != f.EntityType,
			f.EntityID != "" && e.TargetID != f.EntityID,
			f.UserID != "" && e.UserID != f.UserID,
			f.Action != "" && e.Action != f.Action,
			!f.Since.IsZero() && e.Timestamp.Before(f.Since),
			!f.Until.IsZero() && !e.Timestamp.Before(f.Until):
			continue
		}
		out = append(out, e)
	}
	// Ties keep reverse append order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
