package auditindex

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

func BenchmarkQueryByEntity(b *testing.B) {
	ctx := context.Background()
	idx, err := Open(ctx, filepath.Join(b.TempDir(), DefaultFileName), nil)
	if err != nil {
		b.Fatal(err)
	}
	defer idx.Close()

	entries := make([]schema.AuditLog, 5000)
	for i := range entries {
		entries[i] = entry(i, fmt.Sprintf("user-%d", i%7), schema.ActionUpdate, schema.KindTask, fmt.Sprintf("t-%d", i%100))
	}
	if err := idx.Rebuild(ctx, entries); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		got, err := idx.Query(ctx, Filter{EntityType: schema.KindTask, EntityID: fmt.Sprintf("t-%d", i%100), Limit: 20})
		if err != nil {
			b.Fatal(err)
		}
		if len(got) != 20 {
			b.Fatalf("got %d entries", len(got))
		}
	}
}
