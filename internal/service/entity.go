package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mschirtzinger/teamboard/internal/ctxutil"
	"github.com/mschirtzinger/teamboard/internal/events"
	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/store"
)

// Collection is the kind-agnostic view of an EntityService used by the
// transports.
type Collection interface {
	Kind() schema.Kind
	Path() string
	Version() int
	Len() int

	ListEntities() []schema.Entity
	GetEntity(id string) (schema.Entity, error)
	CreateJSON(ctx context.Context, raw []byte) (schema.Entity, error)
	UpdateJSON(ctx context.Context, id string, raw []byte) (schema.Entity, error)
	PatchJSON(ctx context.Context, id string, raw []byte) (schema.Entity, error)
	Delete(ctx context.Context, id string) error
}

// EntityService runs the mutations of one kind: validation, referential
// checks, the repository write, the broadcast and the cascades, in that
// order. Mutations of one kind are serialized so existence checks hold
// until the write lands.
type EntityService[T schema.Entity] struct {
	kind  schema.Kind
	repo  *store.Repository[T]
	setID func(T, string) T
	check func(T) error

	broadcaster *events.Broadcaster
	sagas       *Sagas

	mu sync.Mutex
}

func newEntityService[T schema.Entity](kind schema.Kind, repo *store.Repository[T], setID func(T, string) T) *EntityService[T] {
	return &EntityService[T]{kind: kind, repo: repo, setID: setID}
}

func (s *EntityService[T]) Kind() schema.Kind { return s.kind }
func (s *EntityService[T]) Path() string      { return s.repo.Path() }
func (s *EntityService[T]) Version() int      { return s.repo.Version() }
func (s *EntityService[T]) Len() int          { return s.repo.Len() }

// Repository exposes the underlying repository.
func (s *EntityService[T]) Repository() *store.Repository[T] { return s.repo }

// List returns every entity in insertion order.
func (s *EntityService[T]) List() []T {
	return s.repo.List()
}

// Get returns the entity with id or ErrNotFound.
func (s *EntityService[T]) Get(id string) (T, error) {
	item, ok := s.repo.Get(id)
	if !ok {
		return item, s.notFound(id)
	}
	return item, nil
}

func (s *EntityService[T]) notFound(id string) error {
	return fmt.Errorf("%s %q: %w", s.kind, id, ErrNotFound)
}

func (s *EntityService[T]) validate(item T) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if s.check != nil {
		return s.check(item)
	}
	return nil
}

// Create stores a new entity, generating its id when empty.
func (s *EntityService[T]) Create(ctx context.Context, item T) (T, error) {
	if item.EntityID() == "" {
		item = s.setID(item, uuid.NewString())
	}
	if err := s.validate(item); err != nil {
		return item, err
	}

	s.mu.Lock()
	if _, exists := s.repo.Get(item.EntityID()); exists {
		s.mu.Unlock()
		return item, fmt.Errorf("%s %q: %w", s.kind, item.EntityID(), ErrConflict)
	}
	err := s.repo.Set(ctx, item)
	s.mu.Unlock()
	if err != nil {
		return item, err
	}

	s.broadcaster.Created(ctx, ctxutil.UserID(ctx), item)
	s.sagas.Run(ctx, s.kind, schema.ActionCreate, item)
	return item, nil
}

// Update replaces the entity with id. An empty id on item is filled in; a
// different one is rejected.
func (s *EntityService[T]) Update(ctx context.Context, id string, item T) (T, error) {
	s.mu.Lock()
	before, after, err := s.updateLocked(ctx, id, item)
	s.mu.Unlock()
	if err != nil {
		return after, err
	}
	s.updated(ctx, before, after)
	return after, nil
}

// updateLocked validates and stores item in place of id. s.mu must be held.
func (s *EntityService[T]) updateLocked(ctx context.Context, id string, item T) (before, after T, err error) {
	switch item.EntityID() {
	case "":
		item = s.setID(item, id)
	case id:
	default:
		return before, item, schema.NewValidationError("id", "does not match the addressed entity")
	}
	if err := s.validate(item); err != nil {
		return before, item, err
	}
	before, exists := s.repo.Get(id)
	if !exists {
		return before, item, s.notFound(id)
	}
	if err := s.repo.Set(ctx, item); err != nil {
		return before, item, err
	}
	return before, item, nil
}

func (s *EntityService[T]) updated(ctx context.Context, before, after T) {
	s.broadcaster.Updated(ctx, ctxutil.UserID(ctx), before, after)
	s.sagas.Run(ctx, s.kind, schema.ActionUpdate, after)
}

// Patch merges the fields in raw (a JSON object) onto the current entity
// and stores the result. Unknown fields and id changes are rejected. The
// read, merge and write happen under the kind's lock, so concurrent patches
// of different fields all land.
func (s *EntityService[T]) Patch(ctx context.Context, id string, raw []byte) (T, error) {
	var zero T
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(raw, &patch); err != nil {
		return zero, schema.NewValidationError("body", "must be a JSON object")
	}
	if rawID, ok := patch["id"]; ok {
		var newID string
		if err := json.Unmarshal(rawID, &newID); err != nil || newID != id {
			return zero, schema.NewValidationError("id", "cannot be changed")
		}
	}

	s.mu.Lock()
	before, after, err := s.patchLocked(ctx, id, patch)
	s.mu.Unlock()
	if err != nil {
		return after, err
	}
	s.updated(ctx, before, after)
	return after, nil
}

func (s *EntityService[T]) patchLocked(ctx context.Context, id string, patch map[string]json.RawMessage) (before, after T, err error) {
	current, ok := s.repo.Get(id)
	if !ok {
		return before, after, s.notFound(id)
	}
	base, err := json.Marshal(current)
	if err != nil {
		return before, after, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return before, after, err
	}
	for k, v := range patch {
		merged[k] = v
	}
	body, err := json.Marshal(merged)
	if err != nil {
		return before, after, err
	}
	item, err := decodeStrict[T](body)
	if err != nil {
		return before, after, err
	}
	return s.updateLocked(ctx, id, item)
}

// Delete removes the entity with id and runs the delete cascades.
func (s *EntityService[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	before, exists := s.repo.Get(id)
	if !exists {
		s.mu.Unlock()
		return s.notFound(id)
	}
	err := s.repo.Remove(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.broadcaster.Deleted(ctx, ctxutil.UserID(ctx), s.kind, id, before)
	s.sagas.Run(ctx, s.kind, schema.ActionDelete, before)
	return nil
}

// ReplaceAll swaps the whole collection. Entities are validated; references
// are not checked, so collections can be imported in any order.
func (s *EntityService[T]) ReplaceAll(ctx context.Context, items []T) error {
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%s %q: %w", s.kind, item.EntityID(), err)
		}
	}
	s.mu.Lock()
	err := s.repo.ReplaceAll(ctx, items)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.broadcaster.Replaced(ctx, ctxutil.UserID(ctx), s.kind, entities(items))
	return nil
}

// Rewrite replaces the collection with fn(current) while holding the kind's
// lock. When fn reports no change and force is false nothing is written. It
// returns whether a replacement happened.
func (s *EntityService[T]) Rewrite(ctx context.Context, force bool, fn func([]T) ([]T, bool)) (bool, error) {
	s.mu.Lock()
	next, changed := fn(s.repo.List())
	if !changed && !force {
		s.mu.Unlock()
		return false, nil
	}
	err := s.repo.ReplaceAll(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	s.broadcaster.Replaced(ctx, ctxutil.UserID(ctx), s.kind, entities(next))
	return true, nil
}

// RemoveWhere drops every entity matching pred. force writes (and reports)
// even when nothing matched.
func (s *EntityService[T]) RemoveWhere(ctx context.Context, force bool, pred func(T) bool) (bool, error) {
	return s.Rewrite(ctx, force, func(items []T) ([]T, bool) {
		kept := make([]T, 0, len(items))
		for _, item := range items {
			if !pred(item) {
				kept = append(kept, item)
			}
		}
		return kept, len(kept) != len(items)
	})
}

// UpdateWhere applies fn to every entity; fn reports whether it changed one.
func (s *EntityService[T]) UpdateWhere(ctx context.Context, fn func(T) (T, bool)) (bool, error) {
	return s.Rewrite(ctx, false, func(items []T) ([]T, bool) {
		out := make([]T, len(items))
		changed := false
		for i, item := range items {
			next, ok := fn(item)
			out[i] = next
			changed = changed || ok
		}
		return out, changed
	})
}

func entities[T schema.Entity](items []T) []schema.Entity {
	out := make([]schema.Entity, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

func decodeStrict[T schema.Entity](raw []byte) (T, error) {
	var item T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&item); err != nil {
		return item, schema.NewValidationError("body", err.Error())
	}
	return item, nil
}

// ListEntities implements Collection.
func (s *EntityService[T]) ListEntities() []schema.Entity {
	return entities(s.List())
}

// GetEntity implements Collection.
func (s *EntityService[T]) GetEntity(id string) (schema.Entity, error) {
	item, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CreateJSON implements Collection.
func (s *EntityService[T]) CreateJSON(ctx context.Context, raw []byte) (schema.Entity, error) {
	item, err := decodeStrict[T](raw)
	if err != nil {
		return nil, err
	}
	created, err := s.Create(ctx, item)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateJSON implements Collection.
func (s *EntityService[T]) UpdateJSON(ctx context.Context, id string, raw []byte) (schema.Entity, error) {
	item, err := decodeStrict[T](raw)
	if err != nil {
		return nil, err
	}
	updated, err := s.Update(ctx, id, item)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PatchJSON implements Collection.
func (s *EntityService[T]) PatchJSON(ctx context.Context, id string, raw []byte) (schema.Entity, error) {
	patched, err := s.Patch(ctx, id, raw)
	if err != nil {
		return nil, err
	}
	return patched, nil
}
