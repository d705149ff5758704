package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

type memAudit struct {
	entries []schema.AuditLog
	err     error
}

func (m *memAudit) Set(_ context.Context, e schema.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

type published struct {
	topic   string
	payload any
}

type memPublisher struct {
	sent []published
	err  error
}

func (m *memPublisher) Publish(_ context.Context, topic string, payload any) error {
	m.sent = append(m.sent, published{topic, payload})
	return m.err
}

func fixedBroadcaster(audit AuditWriter, pub Publisher, opts ...Option) *Broadcaster {
	n := 0
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("log-%d", n) }),
	}, opts...)
	return NewBroadcaster(audit, pub, opts...)
}

func TestBroadcasterRecordsAndPublishes(t *testing.T) {
	audit := &memAudit{}
	pub := &memPublisher{}
	b := fixedBroadcaster(audit, pub)
	ctx := context.Background()

	before := schema.Task{ID: "t-1", ProjectID: "p", Name: "old"}
	after := schema.Task{ID: "t-1", ProjectID: "p", Name: "new"}

	b.Created(ctx, "alice", before)
	b.Updated(ctx, "bob", before, after)
	b.Deleted(ctx, "carol", schema.KindTask, "t-1", after)
	b.Replaced(ctx, "dave", schema.KindAssignment, nil)

	if len(audit.entries) != 4 || len(pub.sent) != 4 {
		t.Fatalf("expected 4 audit entries and 4 publishes, got %d and %d", len(audit.entries), len(pub.sent))
	}

	want := []struct {
		user   string
		action schema.Action
		kind   schema.Kind
		id     string
	}{
		{"alice", schema.ActionCreate, schema.KindTask, "t-1"},
		{"bob", schema.ActionUpdate, schema.KindTask, "t-1"},
		{"carol", schema.ActionDelete, schema.KindTask, "t-1"},
		{"dave", schema.ActionUpdate, schema.KindAssignment, schema.AllEntities},
	}
	for i, w := range want {
		e := audit.entries[i]
		if e.UserID != w.user || e.Action != w.action || e.EntityType != w.kind || e.TargetID != w.id {
			t.Errorf("entry %d: got %+v, want %+v", i, e, w)
		}
		if e.ID != fmt.Sprintf("log-%d", i+1) || e.Timestamp.IsZero() {
			t.Errorf("entry %d: missing id or timestamp: %+v", i, e)
		}
		if pub.sent[i].topic != TopicMutations {
			t.Errorf("publish %d: expected topic %s, got %s", i, TopicMutations, pub.sent[i].topic)
		}
		ev, ok := pub.sent[i].payload.(Event)
		if !ok || ev.ID != e.ID {
			t.Errorf("publish %d: expected event with id %s, got %#v", i, e.ID, pub.sent[i].payload)
		}
	}

	update := audit.entries[1]
	if update.Changes.Before["name"] != "old" || update.Changes.After["name"] != "new" {
		t.Errorf("unexpected update changes: %+v", update.Changes)
	}
	if audit.entries[2].Changes.After != nil {
		t.Errorf("delete must not carry after: %+v", audit.entries[2].Changes)
	}
	if items := audit.entries[3].Changes.Items; items == nil || len(items) != 0 {
		t.Errorf("expected empty items for empty replace, got %#v", items)
	}
}

func TestBroadcasterSurvivesFailures(t *testing.T) {
	audit := &memAudit{err: errors.New("disk full")}
	pub := &memPublisher{err: errors.New("no subscribers")}
	b := fixedBroadcaster(audit, pub)

	ev := b.Created(context.Background(), "u", schema.Label{ID: "l", Name: "x", Color: "#000000"})
	if ev.ID == "" {
		t.Error("expected event to be stamped")
	}
	if len(pub.sent) != 1 {
		t.Errorf("publish must still happen after an audit failure, got %d", len(pub.sent))
	}

	// Neither side effect is required.
	NewBroadcaster(nil, nil).Created(context.Background(), "u", schema.Label{ID: "l"})
}

type memIndex struct{ ids []string }

func (m *memIndex) Insert(_ context.Context, e schema.AuditLog) error {
	m.ids = append(m.ids, e.ID)
	return nil
}

func TestBroadcasterIndexesAudit(t *testing.T) {
	idx := &memIndex{}
	b := fixedBroadcaster(&memAudit{}, nil, WithIndex(idx))
	b.Deleted(context.Background(), "u", schema.KindLabel, "l-1", nil)
	if len(idx.ids) != 1 || idx.ids[0] != "log-1" {
		t.Errorf("expected one indexed entry, got %v", idx.ids)
	}
}

func TestBroadcasterSkipsIndexWhenAuditFails(t *testing.T) {
	idx := &memIndex{}
	pub := &memPublisher{}
	b := fixedBroadcaster(&memAudit{err: errors.New("disk full")}, pub, WithIndex(idx))
	b.Deleted(context.Background(), "u", schema.KindLabel, "l-1", nil)
	if len(idx.ids) != 0 {
		t.Errorf("unlogged record must not be indexed, got %v", idx.ids)
	}
	if len(pub.sent) != 1 {
		t.Errorf("expected publish to still happen, got %d", len(pub.sent))
	}
}

func TestEventJSONKeepsConcreteTypes(t *testing.T) {
	ev := Event{
		ID:         "e-1",
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UserID:     "u",
		Action:     schema.ActionUpdate,
		EntityType: schema.KindAssignment,
		EntityID:   schema.AllEntities,
		Items: []schema.Entity{
			schema.Assignment{ID: "a-1", TaskID: "t", PersonID: "p", Date: "2024-01-02"},
		},
	}

	data, err := Encode(TopicMutations, ev)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	topic, err := Topic(data)
	if err != nil || topic != TopicMutations {
		t.Fatalf("expected topic %s, got %q (%v)", TopicMutations, topic, err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("envelope is not an object: %v", err)
	}
	for _, key := range []string{"id", "timestamp", "userId", "action", "entityType", "entityId", "changes"} {
		if _, ok := flat[key]; !ok {
			t.Errorf("envelope missing %s: %s", key, data)
		}
	}

	got, err := DecodeMutation(data)
	if err != nil {
		t.Fatalf("DecodeMutation failed: %v", err)
	}
	if !got.IsReplace() || len(got.Items) != 1 {
		t.Fatalf("unexpected event: %+v", got)
	}
	if a, ok := got.Items[0].(schema.Assignment); !ok || a.TaskID != "t" {
		t.Errorf("expected typed assignment, got %#v", got.Items[0])
	}
}

func TestEventJSONRejectsUnknownKind(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"entityType":"spaceship","changes":{}}`), &ev)
	if err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestEncodeNonObjectPayload(t *testing.T) {
	data, err := Encode("custom", []int{1, 2})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var env struct {
		Topic string `json:"topic"`
		Data  []int  `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if env.Topic != "custom" || len(env.Data) != 2 {
		t.Errorf("unexpected envelope: %s", data)
	}
}

func TestMultiPublisherJoinsErrors(t *testing.T) {
	ok := &memPublisher{}
	bad := &memPublisher{err: errors.New("down")}
	err := MultiPublisher{ok, nil, bad}.Publish(context.Background(), "t", 1)
	if err == nil || err.Error() != "down" {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(ok.sent) != 1 || len(bad.sent) != 1 {
		t.Errorf("every publisher must be called")
	}
}
