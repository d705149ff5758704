package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// Reloadable is a repository that can pick up outside edits to its file.
type Reloadable interface {
	Path() string
	Name() string
	Reload(ctx context.Context) (bool, error)
}

// ReloaderConfig holds configuration for a Reloader.
type ReloaderConfig struct {
	// Debounce is how long a file must stay quiet before it is reloaded.
	Debounce time.Duration

	// OnReload is called with the repository name after a reload changed
	// its cache.
	OnReload func(name string)

	Logger *slog.Logger
}

// Reloader watches a data directory and reloads repositories whose files
// were edited by something other than the repository itself.
type Reloader struct {
	cfg     ReloaderConfig
	logger  *slog.Logger
	targets map[string]Reloadable

	queue   map[string]time.Time
	queueMu sync.Mutex
}

// NewReloader creates a reloader for the given repositories.
func NewReloader(cfg ReloaderConfig, targets ...Reloadable) *Reloader {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	byPath := make(map[string]Reloadable, len(targets))
	for _, t := range targets {
		abs, err := filepath.Abs(t.Path())
		if err != nil {
			abs = t.Path()
		}
		byPath[abs] = t
	}

	return &Reloader{
		cfg:     cfg,
		logger:  logger.With("component", "reloader"),
		targets: byPath,
		queue:   make(map[string]time.Time),
	}
}

// Run watches dir until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context, dir string) error {
	watcher, err := NewFileWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Start(dir); err != nil {
		return err
	}
	defer watcher.Stop()

	r.logger.Info("watching data directory", "dir", dir, "debounce", r.cfg.Debounce)

	ticker := time.NewTicker(r.cfg.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			if ev.Op == OpDelete {
				r.logger.Warn("document removed outside the server", "path", ev.Path)
				continue
			}
			r.queueChange(ev.Path)

		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", "error", err)

		case <-ticker.C:
			r.processPendingChanges(ctx)
		}
	}
}

func (r *Reloader) queueChange(path string) {
	if _, ok := r.targets[path]; !ok {
		return
	}
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	r.queue[path] = time.Now()
}

// processPendingChanges reloads files that have been quiet for the debounce
// interval.
func (r *Reloader) processPendingChanges(ctx context.Context) {
	r.queueMu.Lock()
	now := time.Now()
	var ready []string
	for path, queuedAt := range r.queue {
		if now.Sub(queuedAt) < r.cfg.Debounce {
			continue
		}
		ready = append(ready, path)
		delete(r.queue, path)
	}
	r.queueMu.Unlock()

	for _, path := range ready {
		if err := r.reload(ctx, path); err != nil {
			r.logger.Error("reload failed, keeping cached data", "path", path, "error", err)
		}
	}
}

func (r *Reloader) reload(ctx context.Context, path string) error {
	target := r.targets[path]
	changed, err := target.Reload(ctx)
	if err != nil {
		return fmt.Errorf("reload %s: %w", target.Name(), err)
	}
	if changed && r.cfg.OnReload != nil {
		r.cfg.OnReload(target.Name())
	}
	return nil
}
