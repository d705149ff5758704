// Package store provides versioned, file-backed entity collections.
//
// Each Repository owns exactly one YAML document on disk:
//
//	version: 3
//	data:
//	  - id: t-1
//	    name: ...
//
// A bare sequence (no wrapper) is accepted as version 0. On Init the
// repository applies every migration past the stored version, validates the
// result, stamps the current version, and serves all reads from memory.
// Every mutation rewrites the whole document.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

var (
	// ErrEmptyID is returned when an entity without an id is written.
	ErrEmptyID = errors.New("entity id is empty")

	// ErrDuplicateID is returned when a bulk write repeats an id.
	ErrDuplicateID = errors.New("duplicate entity id")
)

// Entity is the capability a repository requires from its element type: a
// non-empty identifier unique within the collection, and a self-check run
// when a document is loaded.
type Entity interface {
	EntityID() string
	Validate() error
}

// Options tune a Repository.
type Options struct {
	// Name labels log lines; defaults to the file path.
	Name string

	// FailFast makes Init return load errors instead of continuing with an
	// empty collection.
	FailFast bool

	// FileMode for the document (default 0644).
	FileMode os.FileMode

	// Logger for load and persist activity (default slog.Default()).
	Logger *slog.Logger
}

// Repository is an in-memory collection of T mirrored to one YAML file.
// It is safe for concurrent use.
type Repository[T Entity] struct {
	path       string
	migrations []Migration
	opts       Options
	logger     *slog.Logger

	mu      sync.RWMutex
	items   map[string]T
	order   []string
	version int
	// gen counts cache mutations; Reload drops its result when a write
	// landed while the document was being loaded.
	gen uint64

	// persistMu serializes file writes. The snapshot is taken while holding
	// it, so the last write to finish carries the newest cache state.
	persistMu   sync.Mutex
	lastWritten []byte
}

// New creates a repository for the document at path. Call Init before use.
func New[T Entity](path string, migrations []Migration, opts Options) *Repository[T] {
	if opts.Name == "" {
		opts.Name = path
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chain := make([]Migration, len(migrations))
	copy(chain, migrations)

	return &Repository[T]{
		path:       path,
		migrations: chain,
		opts:       opts,
		logger:     logger.With("component", "store", "kind", opts.Name),
		items:      make(map[string]T),
		version:    len(chain),
	}
}

// loaded is the outcome of reading and upgrading the document.
type loaded[T Entity] struct {
	version      int
	items        []T
	needsPersist bool
	raw          []byte
}

// Init loads the document, migrates it, and fills the cache.
//
// Load failures are logged and leave the repository empty; Init then returns
// nil unless Options.FailFast is set. A missing file is not a failure: the
// repository starts empty at the current version and writes the file.
func (r *Repository[T]) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state, err := r.load()
	if err == nil && state.needsPersist {
		err = r.write(state.version, state.items)
	}
	if err != nil {
		r.logger.Error("failed to initialize repository", "path", r.path, "error", err)
		r.mu.Lock()
		r.items = make(map[string]T)
		r.order = nil
		if r.version < len(r.migrations) {
			r.version = len(r.migrations)
		}
		r.mu.Unlock()
		if r.opts.FailFast {
			return fmt.Errorf("init %s: %w", r.path, err)
		}
		return nil
	}

	r.replaceCache(state.version, state.items)
	if !state.needsPersist {
		r.persistMu.Lock()
		r.lastWritten = state.raw
		r.persistMu.Unlock()
	}
	r.logger.Debug("repository initialized", "version", state.version, "count", len(state.items))
	return nil
}

// Reload re-reads the document after an outside edit. It reports whether
// the cache changed. Unlike Init, a failed reload keeps the current cache.
func (r *Repository[T]) Reload(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", r.path, err)
	}
	r.persistMu.Lock()
	own := bytes.Equal(raw, r.lastWritten)
	r.persistMu.Unlock()
	if own {
		return false, nil
	}

	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	state, err := r.load()
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		r.logger.Warn("outside edit superseded by a concurrent write", "path", r.path)
		return false, nil
	}
	r.replaceCacheLocked(state.version, state.items)
	r.mu.Unlock()

	if state.needsPersist {
		if err := r.persist(ctx); err != nil {
			return true, err
		}
	} else {
		r.persistMu.Lock()
		r.lastWritten = state.raw
		r.persistMu.Unlock()
	}
	r.logger.Info("repository reloaded", "version", state.version, "count", len(state.items))
	return true, nil
}

func (r *Repository[T]) load() (*loaded[T], error) {
	chainLen := len(r.migrations)

	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &loaded[T]{version: chainLen, items: []T{}, needsPersist: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.path, err)
	}

	version, records, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}

	needsPersist := false
	switch {
	case version > chainLen:
		// Written by a newer build. Keep the stamp so it never goes backwards.
		r.logger.Warn("document version is newer than the migration chain",
			"version", version, "chain", chainLen)

	case version < chainLen:
		for i := version; i < chainLen; i++ {
			m := r.migrations[i]
			r.logger.Info("applying migration", "index", i+1, "description", m.Description)
			records, err = m.Migrate(records)
			if err != nil {
				return nil, fmt.Errorf("migration %d (%s): %w", i+1, m.Description, err)
			}
		}
		version = chainLen
		needsPersist = true
	}

	items, err := decodeEntities[T](records)
	if err != nil {
		return nil, err
	}
	return &loaded[T]{version: version, items: items, needsPersist: needsPersist, raw: raw}, nil
}

func (r *Repository[T]) replaceCache(version int, items []T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaceCacheLocked(version, items)
}

func (r *Repository[T]) replaceCacheLocked(version int, items []T) {
	r.items = make(map[string]T, len(items))
	r.order = make([]string, 0, len(items))
	for _, item := range items {
		id := item.EntityID()
		r.items[id] = item
		r.order = append(r.order, id)
	}
	r.version = version
}

// List returns every entity in insertion order.
func (r *Repository[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

// Get returns the entity with id, if present.
func (r *Repository[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	return item, ok
}

// Len returns the number of cached entities.
func (r *Repository[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Version returns the schema version the document is stamped with.
func (r *Repository[T]) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Path returns the backing file path.
func (r *Repository[T]) Path() string {
	return r.path
}

// Name returns the label used in logs.
func (r *Repository[T]) Name() string {
	return r.opts.Name
}

// Set inserts or replaces the entity with the same id, then persists.
//
// The cache is updated before the write. If the write fails the error is
// returned and the cache stays ahead of the file until the next successful
// persist.
func (r *Repository[T]) Set(ctx context.Context, item T) error {
	id := item.EntityID()
	if id == "" {
		return ErrEmptyID
	}

	r.mu.Lock()
	if _, exists := r.items[id]; !exists {
		r.order = append(r.order, id)
	}
	r.items[id] = item
	r.gen++
	r.mu.Unlock()

	return r.persist(ctx)
}

// ReplaceAll swaps the whole collection for items, then persists.
func (r *Repository[T]) ReplaceAll(ctx context.Context, items []T) error {
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		id := item.EntityID()
		if id == "" {
			return ErrEmptyID
		}
		if seen[id] {
			return fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		seen[id] = true
	}

	r.mu.Lock()
	r.items = make(map[string]T, len(items))
	r.order = make([]string, 0, len(items))
	for _, item := range items {
		r.items[item.EntityID()] = item
		r.order = append(r.order, item.EntityID())
	}
	r.gen++
	r.mu.Unlock()

	return r.persist(ctx)
}

// Remove deletes id from the collection, then persists. Removing an absent
// id still rewrites the document.
func (r *Repository[T]) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, exists := r.items[id]; exists {
		delete(r.items, id)
		for i, existing := range r.order {
			if existing == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.gen++
	r.mu.Unlock()

	return r.persist(ctx)
}

// persist writes the current cache. It does not observe ctx: once a
// mutation reached the cache its write always runs to completion.
func (r *Repository[T]) persist(_ context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.RLock()
	version := r.version
	items := make([]T, 0, len(r.order))
	for _, id := range r.order {
		items = append(items, r.items[id])
	}
	r.mu.RUnlock()

	if err := r.writeLocked(version, items); err != nil {
		r.logger.Error("failed to persist repository", "path", r.path, "error", err)
		return err
	}
	return nil
}

func (r *Repository[T]) write(version int, items []T) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	return r.writeLocked(version, items)
}

func (r *Repository[T]) writeLocked(version int, items []T) error {
	data, err := encodeDocument(version, items)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.path, err)
	}
	if err := writeFileAtomic(r.path, data, r.opts.FileMode); err != nil {
		return err
	}
	r.lastWritten = data
	return nil
}
