// Package events turns committed mutations into audit records and realtime
// envelopes.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

// Topics carried on the realtime channel.
const (
	TopicMutations = "mutations"
	TopicHello     = "hello"
	TopicReload    = "reload"
)

// Event describes one committed mutation. Before, After and Items hold the
// concrete struct for EntityType (schema.Task for KindTask, and so on).
//
// For a whole-collection replacement Action is UPDATE, EntityID is
// schema.AllEntities and Items is the new collection.
type Event struct {
	ID         string
	Timestamp  time.Time
	UserID     string
	Action     schema.Action
	EntityType schema.Kind
	EntityID   string
	Before     schema.Entity
	After      schema.Entity
	Items      []schema.Entity
}

// IsReplace reports whether the event replaced a whole collection.
func (e Event) IsReplace() bool {
	return e.EntityID == schema.AllEntities
}

type wireChanges struct {
	Before json.RawMessage   `json:"before,omitempty"`
	After  json.RawMessage   `json:"after,omitempty"`
	Items  []json.RawMessage `json:"items,omitempty"`
}

type wireEvent struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	UserID     string        `json:"userId"`
	Action     schema.Action `json:"action"`
	EntityType schema.Kind   `json:"entityType"`
	EntityID   string        `json:"entityId"`
	Changes    wireChanges   `json:"changes"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		UserID:     e.UserID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
	}
	var err error
	if e.Before != nil {
		if w.Changes.Before, err = json.Marshal(e.Before); err != nil {
			return nil, err
		}
	}
	if e.After != nil {
		if w.Changes.After, err = json.Marshal(e.After); err != nil {
			return nil, err
		}
	}
	if e.Items != nil {
		w.Changes.Items = make([]json.RawMessage, 0, len(e.Items))
		for _, item := range e.Items {
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, err
			}
			w.Changes.Items = append(w.Changes.Items, raw)
		}
	}
	return json.Marshal(w)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.EntityType.Valid() {
		return fmt.Errorf("unknown entity type %q", w.EntityType)
	}

	out := Event{
		ID:         w.ID,
		Timestamp:  w.Timestamp,
		UserID:     w.UserID,
		Action:     w.Action,
		EntityType: w.EntityType,
		EntityID:   w.EntityID,
	}
	var err error
	if len(w.Changes.Before) > 0 && string(w.Changes.Before) != "null" {
		if out.Before, err = schema.DecodeJSON(w.EntityType, w.Changes.Before); err != nil {
			return fmt.Errorf("changes.before: %w", err)
		}
	}
	if len(w.Changes.After) > 0 && string(w.Changes.After) != "null" {
		if out.After, err = schema.DecodeJSON(w.EntityType, w.Changes.After); err != nil {
			return fmt.Errorf("changes.after: %w", err)
		}
	}
	if w.Changes.Items != nil {
		out.Items = make([]schema.Entity, 0, len(w.Changes.Items))
		for i, raw := range w.Changes.Items {
			item, err := schema.DecodeJSON(w.EntityType, raw)
			if err != nil {
				return fmt.Errorf("changes.items[%d]: %w", i, err)
			}
			out.Items = append(out.Items, item)
		}
	}
	*e = out
	return nil
}

// AuditLog converts the event into its persisted audit record.
func (e Event) AuditLog() (schema.AuditLog, error) {
	entry := schema.AuditLog{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		UserID:     e.UserID,
		Action:     e.Action,
		EntityType: e.EntityType,
		TargetID:   e.EntityID,
	}
	var err error
	if entry.Changes.Before, err = schema.ToRecord(e.Before); err != nil {
		return schema.AuditLog{}, fmt.Errorf("before: %w", err)
	}
	if entry.Changes.After, err = schema.ToRecord(e.After); err != nil {
		return schema.AuditLog{}, fmt.Errorf("after: %w", err)
	}
	if e.Items != nil {
		entry.Changes.Items = make([]schema.Record, 0, len(e.Items))
		for _, item := range e.Items {
			rec, err := schema.ToRecord(item)
			if err != nil {
				return schema.AuditLog{}, fmt.Errorf("items: %w", err)
			}
			entry.Changes.Items = append(entry.Changes.Items, rec)
		}
	}
	return entry, nil
}

// Hello is sent to each client when it connects.
type Hello struct {
	Clients   int       `json:"clients"`
	Timestamp time.Time `json:"timestamp"`
}

// Reload tells clients a collection was reloaded from disk and must be
// fetched again.
type Reload struct {
	EntityType schema.Kind `json:"entityType"`
	Timestamp  time.Time   `json:"timestamp"`
}
