package realtime

import (
	"fmt"
	"sync"

	"github.com/mschirtzinger/teamboard/internal/events"
	"github.com/mschirtzinger/teamboard/internal/schema"
)

// Mirror is a client-side copy of the server collections, kept current by
// applying mutation events in receipt order.
type Mirror struct {
	mu          sync.RWMutex
	collections map[schema.Kind]*collection
}

type collection struct {
	items map[string]schema.Entity
	order []string
}

func newCollection() *collection {
	return &collection{items: make(map[string]schema.Entity)}
}

func (c *collection) put(e schema.Entity) {
	id := e.EntityID()
	if _, ok := c.items[id]; !ok {
		c.order = append(c.order, id)
	}
	c.items[id] = e
}

func (c *collection) remove(id string) {
	if _, ok := c.items[id]; !ok {
		return
	}
	delete(c.items, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// NewMirror returns an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{collections: make(map[schema.Kind]*collection)}
}

func (m *Mirror) collection(kind schema.Kind) *collection {
	c, ok := m.collections[kind]
	if !ok {
		c = newCollection()
		m.collections[kind] = c
	}
	return c
}

// Load replaces a collection with a freshly fetched list.
func (m *Mirror) Load(kind schema.Kind, items []schema.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := newCollection()
	for _, item := range items {
		c.put(item)
	}
	m.collections[kind] = c
}

// Apply folds one mutation event into the mirror.
func (m *Mirror) Apply(ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case ev.IsReplace():
		c := newCollection()
		for _, item := range ev.Items {
			c.put(item)
		}
		m.collections[ev.EntityType] = c

	case ev.Action == schema.ActionDelete:
		m.collection(ev.EntityType).remove(ev.EntityID)

	case ev.Action == schema.ActionCreate, ev.Action == schema.ActionUpdate:
		if ev.After == nil {
			return fmt.Errorf("%s %s/%s has no payload", ev.Action, ev.EntityType, ev.EntityID)
		}
		m.collection(ev.EntityType).put(ev.After)

	default:
		return fmt.Errorf("unknown action %q", ev.Action)
	}
	return nil
}

// HandleMessage applies an encoded envelope. It returns the envelope topic
// so the caller can resync on hello and reload, and the decoded event for
// mutations.
func (m *Mirror) HandleMessage(data []byte) (string, *events.Event, error) {
	topic, err := events.Topic(data)
	if err != nil {
		return "", nil, err
	}
	if topic != events.TopicMutations {
		return topic, nil, nil
	}
	ev, err := events.DecodeMutation(data)
	if err != nil {
		return topic, nil, err
	}
	if err := m.Apply(ev); err != nil {
		return topic, &ev, err
	}
	return topic, &ev, nil
}

// List returns a collection in insertion order.
func (m *Mirror) List(kind schema.Kind) []schema.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[kind]
	if !ok {
		return nil
	}
	out := make([]schema.Entity, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Get returns one entity.
func (m *Mirror) Get(kind schema.Kind, id string) (schema.Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[kind]
	if !ok {
		return nil, false
	}
	e, ok := c.items[id]
	return e, ok
}
