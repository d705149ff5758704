package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

// AuditWriter persists audit records.
type AuditWriter interface {
	Set(ctx context.Context, entry schema.AuditLog) error
}

// AuditIndexer mirrors audit records into a query index.
type AuditIndexer interface {
	Insert(ctx context.Context, entry schema.AuditLog) error
}

// Broadcaster records and publishes committed mutations. Call it only after
// the mutation's own repository write succeeded.
type Broadcaster struct {
	audit     AuditWriter
	index     AuditIndexer
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithIndex also inserts each audit record into idx.
func WithIndex(idx AuditIndexer) Option {
	return func(b *Broadcaster) { b.index = idx }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) { b.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) { b.now = now }
}

// WithIDGenerator overrides the audit id generator.
func WithIDGenerator(fn func() string) Option {
	return func(b *Broadcaster) { b.newID = fn }
}

// NewBroadcaster creates a broadcaster. audit and publisher may be nil, in
// which case that side effect is skipped.
func NewBroadcaster(audit AuditWriter, publisher Publisher, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		audit:     audit,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "broadcast")
	return b
}

// Created reports a new entity.
func (b *Broadcaster) Created(ctx context.Context, userID string, after schema.Entity) Event {
	return b.Emit(ctx, Event{
		UserID:     userID,
		Action:     schema.ActionCreate,
		EntityType: after.Kind(),
		EntityID:   after.EntityID(),
		After:      after,
	})
}

// Updated reports a replaced entity. before may be nil.
func (b *Broadcaster) Updated(ctx context.Context, userID string, before, after schema.Entity) Event {
	return b.Emit(ctx, Event{
		UserID:     userID,
		Action:     schema.ActionUpdate,
		EntityType: after.Kind(),
		EntityID:   after.EntityID(),
		Before:     before,
		After:      after,
	})
}

// Deleted reports a removed entity. before may be nil when the caller no
// longer has it.
func (b *Broadcaster) Deleted(ctx context.Context, userID string, kind schema.Kind, id string, before schema.Entity) Event {
	return b.Emit(ctx, Event{
		UserID:     userID,
		Action:     schema.ActionDelete,
		EntityType: kind,
		EntityID:   id,
		Before:     before,
	})
}

// Replaced reports a whole-collection replacement.
func (b *Broadcaster) Replaced(ctx context.Context, userID string, kind schema.Kind, items []schema.Entity) Event {
	if items == nil {
		items = []schema.Entity{}
	}
	return b.Emit(ctx, Event{
		UserID:     userID,
		Action:     schema.ActionUpdate,
		EntityType: kind,
		EntityID:   schema.AllEntities,
		Items:      items,
	})
}

// Emit stamps ev with an id and time, appends it to the audit log, and
// publishes it on TopicMutations. Audit failures are logged; publish
// failures are ignored.
func (b *Broadcaster) Emit(ctx context.Context, ev Event) Event {
	if ev.ID == "" {
		ev.ID = b.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}

	b.record(ctx, ev)

	if b.publisher != nil {
		if err := b.publisher.Publish(ctx, TopicMutations, ev); err != nil {
			b.logger.Debug("publish failed", "event", ev.ID, "error", err)
		}
	}
	return ev
}

func (b *Broadcaster) record(ctx context.Context, ev Event) {
	entry, err := ev.AuditLog()
	if err != nil {
		b.logger.Error("failed to build audit record",
			"entityType", ev.EntityType, "entityId", ev.EntityID, "error", err)
		return
	}
	if b.audit != nil {
		if err := b.audit.Set(ctx, entry); err != nil {
			b.logger.Error("failed to append audit record",
				"entityType", ev.EntityType, "entityId", ev.EntityID, "action", ev.Action, "error", err)
			// The index only mirrors records that reached the log.
			return
		}
	}
	if b.index != nil {
		if err := b.index.Insert(ctx, entry); err != nil {
			b.logger.Warn("failed to index audit record", "id", entry.ID, "error", err)
		}
	}
}
