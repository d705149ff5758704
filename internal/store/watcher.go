package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is a change to a document file in the watched directory.
type FileEvent struct {
	Path string
	Op   EventOp
}

// FileWatcher watches a data directory for document changes.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dir     string
}

// NewFileWatcher creates a watcher. It emits nothing until Start.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir for *.yaml changes.
func (fw *FileWatcher) Start(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if err := fw.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", abs, err)
	}
	fw.dir = abs

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching and closes the Events and Errors channels. It blocks
// until the event loop has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel of document changes.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel of watcher errors.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning reports whether the watcher has been started and not stopped.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to a FileEvent. Temp files written by
// the repository start with a dot and are ignored; their rename onto the
// document shows up as a create of the document itself.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	name := filepath.Base(event.Name)
	if filepath.Ext(name) != ".yaml" || name[0] == '.' {
		return FileEvent{}, false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil || filepath.Dir(abs) != fw.dir {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return FileEvent{}, false
	}

	return FileEvent{Path: abs, Op: op}, true
}
