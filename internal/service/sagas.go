package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

// SagaStep is one follow-up mutation run after a primary mutation
// committed. entity is the created or updated value, or for deletes the
// value before removal.
type SagaStep struct {
	Name string
	Run  func(ctx context.Context, entity schema.Entity) error
}

type sagaKey struct {
	kind   schema.Kind
	action schema.Action
}

// Sagas maps (kind, action) pairs to their follow-up steps. Steps run in
// registration order; a failing step is logged and the rest still run.
type Sagas struct {
	mu     sync.RWMutex
	steps  map[sagaKey][]SagaStep
	logger *slog.Logger
}

// NewSagas returns an empty registry.
func NewSagas(logger *slog.Logger) *Sagas {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sagas{
		steps:  make(map[sagaKey][]SagaStep),
		logger: logger.With("component", "sagas"),
	}
}

// Register appends a step for kind and action.
func (s *Sagas) Register(kind schema.Kind, action schema.Action, step SagaStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sagaKey{kind, action}
	s.steps[key] = append(s.steps[key], step)
}

// Steps returns the steps registered for kind and action.
func (s *Sagas) Steps(kind schema.Kind, action schema.Action) []SagaStep {
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := s.steps[sagaKey{kind, action}]
	out := make([]SagaStep, len(steps))
	copy(out, steps)
	return out
}

// Run executes the steps for kind and action and returns how many failed.
// The primary mutation is never undone, so failures are only logged.
func (s *Sagas) Run(ctx context.Context, kind schema.Kind, action schema.Action, entity schema.Entity) int {
	if s == nil {
		return 0
	}
	failed := 0
	for _, step := range s.Steps(kind, action) {
		if err := step.Run(ctx, entity); err != nil {
			failed++
			s.logger.Error("cascade step failed",
				"step", step.Name, "kind", kind, "action", action, "id", entity.EntityID(), "error", err)
			continue
		}
		s.logger.Debug("cascade step done", "step", step.Name, "id", entity.EntityID())
	}
	return failed
}
