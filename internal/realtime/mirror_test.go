package realtime

import (
	"context"
	"testing"

	"github.com/mschirtzinger/teamboard/internal/events"
	"github.com/mschirtzinger/teamboard/internal/schema"
)

func TestMirrorConvergesWithEventStream(t *testing.T) {
	var stream [][]byte
	pub := events.PublisherFunc(func(_ context.Context, topic string, payload any) error {
		data, err := events.Encode(topic, payload)
		if err != nil {
			return err
		}
		stream = append(stream, data)
		return nil
	})
	b := events.NewBroadcaster(nil, pub)
	ctx := context.Background()

	t1 := schema.Task{ID: "t1", ProjectID: "p", Name: "one"}
	t2 := schema.Task{ID: "t2", ProjectID: "p", Name: "two"}
	t1b := schema.Task{ID: "t1", ProjectID: "p", Name: "one, revised"}
	a1 := schema.Assignment{ID: "a1", TaskID: "t1", PersonID: "x", Date: "2024-01-01"}
	a2 := schema.Assignment{ID: "a2", TaskID: "t2", PersonID: "x", Date: "2024-01-01"}

	b.Created(ctx, "u", t1)
	b.Created(ctx, "u", t2)
	b.Updated(ctx, "u", t1, t1b)
	b.Created(ctx, "u", a1)
	b.Created(ctx, "u", a2)
	b.Deleted(ctx, "u", schema.KindTask, "t2", t2)
	b.Replaced(ctx, "u", schema.KindAssignment, []schema.Entity{a1})

	m := NewMirror()
	m.Load(schema.KindTask, nil)
	for _, data := range stream {
		topic, ev, err := m.HandleMessage(data)
		if err != nil {
			t.Fatalf("HandleMessage failed: %v", err)
		}
		if topic != events.TopicMutations || ev == nil {
			t.Fatalf("unexpected topic %s / event %v", topic, ev)
		}
	}

	tasks := m.List(schema.KindTask)
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %+v", tasks)
	}
	if got := tasks[0].(schema.Task); got.Name != "one, revised" {
		t.Errorf("expected revised task, got %+v", got)
	}
	assignments := m.List(schema.KindAssignment)
	if len(assignments) != 1 || assignments[0].EntityID() != "a1" {
		t.Errorf("expected only a1, got %+v", assignments)
	}
	if _, ok := m.Get(schema.KindTask, "t2"); ok {
		t.Error("deleted task still present")
	}
}

func TestMirrorPassesThroughControlTopics(t *testing.T) {
	m := NewMirror()
	data, _ := events.Encode(events.TopicReload, events.Reload{EntityType: schema.KindLabel})
	topic, ev, err := m.HandleMessage(data)
	if err != nil || topic != events.TopicReload || ev != nil {
		t.Errorf("unexpected result: %s %v %v", topic, ev, err)
	}

	if _, _, err := m.HandleMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for garbage")
	}
}

func TestMirrorRejectsUpdateWithoutPayload(t *testing.T) {
	m := NewMirror()
	err := m.Apply(events.Event{Action: schema.ActionUpdate, EntityType: schema.KindTask, EntityID: "t"})
	if err == nil {
		t.Error("expected error for update without after")
	}
}
