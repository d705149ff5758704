// Package service wires the repositories, the broadcaster and the cascade
// sagas into one explicitly constructed service context.
//
// Transports receive an *App and never reach repositories through globals.
// Every business mutation goes through an EntityService, which is the only
// caller of the broadcaster.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mschirtzinger/teamboard/internal/auditindex"
	"github.com/mschirtzinger/teamboard/internal/events"
	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/store"
)

// Options configure Open.
type Options struct {
	// DataDir holds one YAML document per kind.
	DataDir string

	// FailFast makes Open fail when a document cannot be loaded instead of
	// serving that kind as empty.
	FailFast bool

	// Lock takes an advisory lock on DataDir for the App's lifetime.
	Lock bool

	// IndexPath is the SQLite audit index; empty disables the index.
	IndexPath string

	// Publisher receives realtime envelopes; nil disables publishing.
	Publisher events.Publisher

	Logger *slog.Logger
}

// App is the service context.
type App struct {
	People      *EntityService[schema.Person]
	Projects    *EntityService[schema.Project]
	Milestones  *EntityService[schema.Milestone]
	Tasks       *EntityService[schema.Task]
	Assignments *EntityService[schema.Assignment]
	Labels      *EntityService[schema.Label]
	Plannings   *EntityService[schema.Planning]

	AuditLogs *store.Repository[schema.AuditLog]
	Index     *auditindex.Index

	Broadcaster *events.Broadcaster
	Sagas       *Sagas

	dataDir     string
	collections map[schema.Kind]Collection
	lock        *store.DirLock
	logger      *slog.Logger
}

func newRepo[T schema.Entity](opts Options, kind schema.Kind, logger *slog.Logger) *store.Repository[T] {
	return store.New[T](
		filepath.Join(opts.DataDir, kind.FileName()),
		schema.Migrations(kind),
		store.Options{Name: string(kind), FailFast: opts.FailFast, Logger: logger},
	)
}

// Open builds the service context and loads every repository.
func Open(ctx context.Context, opts Options) (*App, error) {
	if opts.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		dataDir: opts.DataDir,
		logger:  logger.With("component", "service"),
	}
	if opts.Lock {
		lock, err := store.LockDir(opts.DataDir)
		if err != nil {
			return nil, err
		}
		app.lock = lock
	}

	app.People = newEntityService(schema.KindPerson, newRepo[schema.Person](opts, schema.KindPerson, logger),
		func(p schema.Person, id string) schema.Person { p.ID = id; return p })
	app.Projects = newEntityService(schema.KindProject, newRepo[schema.Project](opts, schema.KindProject, logger),
		func(p schema.Project, id string) schema.Project { p.ID = id; return p })
	app.Milestones = newEntityService(schema.KindMilestone, newRepo[schema.Milestone](opts, schema.KindMilestone, logger),
		func(m schema.Milestone, id string) schema.Milestone { m.ID = id; return m })
	app.Tasks = newEntityService(schema.KindTask, newRepo[schema.Task](opts, schema.KindTask, logger),
		func(t schema.Task, id string) schema.Task { t.ID = id; return t })
	app.Assignments = newEntityService(schema.KindAssignment, newRepo[schema.Assignment](opts, schema.KindAssignment, logger),
		func(a schema.Assignment, id string) schema.Assignment { a.ID = id; return a })
	app.Labels = newEntityService(schema.KindLabel, newRepo[schema.Label](opts, schema.KindLabel, logger),
		func(l schema.Label, id string) schema.Label { l.ID = id; return l })
	app.Plannings = newEntityService(schema.KindPlanning, newRepo[schema.Planning](opts, schema.KindPlanning, logger),
		func(p schema.Planning, id string) schema.Planning { p.ID = id; return p })
	app.AuditLogs = newRepo[schema.AuditLog](opts, schema.KindAuditLog, logger)

	app.collections = map[schema.Kind]Collection{
		schema.KindPerson:     app.People,
		schema.KindProject:    app.Projects,
		schema.KindMilestone:  app.Milestones,
		schema.KindTask:       app.Tasks,
		schema.KindAssignment: app.Assignments,
		schema.KindLabel:      app.Labels,
		schema.KindPlanning:   app.Plannings,
	}

	for _, r := range app.repositories() {
		if err := r.Init(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	if opts.IndexPath != "" {
		idx, err := auditindex.Open(ctx, opts.IndexPath, logger)
		if err == nil {
			_, err = idx.Sync(ctx, app.AuditLogs)
			if err != nil {
				idx.Close()
			}
		}
		if err != nil {
			// The document stays authoritative; queries fall back to scanning it.
			app.logger.Warn("audit index unavailable", "path", opts.IndexPath, "error", err)
		} else {
			app.Index = idx
		}
	}

	bopts := []events.Option{events.WithLogger(logger)}
	if app.Index != nil {
		bopts = append(bopts, events.WithIndex(app.Index))
	}
	app.Broadcaster = events.NewBroadcaster(app.AuditLogs, opts.Publisher, bopts...)
	app.Sagas = NewSagas(logger)

	app.wire()
	app.registerCascades()
	return app, nil
}

func (a *App) wire() {
	a.People.broadcaster, a.People.sagas = a.Broadcaster, a.Sagas
	a.Projects.broadcaster, a.Projects.sagas = a.Broadcaster, a.Sagas
	a.Milestones.broadcaster, a.Milestones.sagas = a.Broadcaster, a.Sagas
	a.Tasks.broadcaster, a.Tasks.sagas = a.Broadcaster, a.Sagas
	a.Assignments.broadcaster, a.Assignments.sagas = a.Broadcaster, a.Sagas
	a.Labels.broadcaster, a.Labels.sagas = a.Broadcaster, a.Sagas
	a.Plannings.broadcaster, a.Plannings.sagas = a.Broadcaster, a.Sagas

	a.Milestones.check = a.checkMilestone
	a.Tasks.check = a.checkTask
	a.Assignments.check = a.checkAssignment
	a.Plannings.check = a.checkPlanning
}

// Close releases the audit index and the data directory lock.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
		a.Index = nil
	}
	if a.lock != nil {
		errs = append(errs, a.lock.Unlock())
		a.lock = nil
	}
	return errors.Join(errs...)
}

// DataDir returns the data directory.
func (a *App) DataDir() string {
	return a.dataDir
}

// Collection returns the service for a business kind.
func (a *App) Collection(kind schema.Kind) (Collection, bool) {
	c, ok := a.collections[kind]
	return c, ok
}

// Collections returns every business collection in dependency order.
func (a *App) Collections() []Collection {
	out := make([]Collection, 0, len(schema.BusinessKinds))
	for _, kind := range schema.BusinessKinds {
		out = append(out, a.collections[kind])
	}
	return out
}

type repository interface {
	store.Reloadable
	Init(ctx context.Context) error
}

func (a *App) repositories() []repository {
	return []repository{
		a.People.repo,
		a.Projects.repo,
		a.Labels.repo,
		a.Milestones.repo,
		a.Tasks.repo,
		a.Assignments.repo,
		a.Plannings.repo,
		a.AuditLogs,
	}
}

// Reloadables returns every repository, the audit log last, for the file
// watcher.
func (a *App) Reloadables() []store.Reloadable {
	repos := a.repositories()
	out := make([]store.Reloadable, len(repos))
	for i, r := range repos {
		out[i] = r
	}
	return out
}

// SyncIndex brings the audit index up to date with the audit document.
func (a *App) SyncIndex(ctx context.Context) error {
	if a.Index == nil {
		return nil
	}
	if _, err := a.Index.Sync(ctx, a.AuditLogs); err != nil {
		return fmt.Errorf("sync audit index: %w", err)
	}
	return nil
}
