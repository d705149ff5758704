package auditindex

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

// Source lists the authoritative audit records.
type Source interface {
	List() []schema.AuditLog
}

// Sync brings the index in line with src. The audit log is append-only, so
// matching counts with a present newest record mean nothing is missing;
// otherwise the index is rebuilt. It reports whether a rebuild happened.
func (idx *Index) Sync(ctx context.Context, src Source) (bool, error) {
	entries := src.List()

	count, err := idx.Count(ctx)
	if err != nil {
		return false, err
	}
	if count == len(entries) {
		if count == 0 {
			return false, nil
		}
		newest := entries[len(entries)-1]
		var found int
		err := idx.conn.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM audit_logs WHERE id = ?", newest.ID).Scan(&found)
		if err != nil {
			return false, fmt.Errorf("failed to look up %s: %w", newest.ID, err)
		}
		if found == 1 {
			return false, nil
		}
	}

	idx.logger.Info("audit index out of date", "indexed", count, "stored", len(entries))
	if err := idx.Rebuild(ctx, entries); err != nil {
		return false, err
	}
	return true, nil
}
