// Package watcher runs handlers when files matching glob bindings change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/sitesmith/internal/logging"
)

// FileWatcher dispatches file changes to glob bindings. Each binding has
// its own worker, so one binding's handler never runs concurrently with
// itself while different bindings run independently.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	logger   logging.Logger
	delay    time.Duration
	filters  []FileFilter
	bindings []*binding
	dirs     map[string]bool
	bases    []string
	mutex    sync.RWMutex
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be considered at all
type FileFilter func(path string) bool

// ChangeHandler handles a batch of changes for one binding
type ChangeHandler func(ctx context.Context, events []ChangeEvent) error

type binding struct {
	name     string
	patterns []string
	handler  ChangeHandler
	events   chan ChangeEvent
}

func (b *binding) matches(path string) bool {
	p := filepath.ToSlash(filepath.Clean(path))
	for _, pattern := range b.patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// NewFileWatcher creates a watcher. A zero delay hands every event to its
// binding as soon as it arrives; a positive delay groups the events of one
// binding until it has been quiet for delay.
func NewFileWatcher(logger logging.Logger, delay time.Duration) (*FileWatcher, error) {
	if delay < 0 {
		return nil, fmt.Errorf("negative debounce delay %s", delay)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileWatcher{
		watcher: w,
		logger:  logger.WithComponent("watcher"),
		delay:   delay,
		dirs:    make(map[string]bool),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// Bind runs handler whenever a file matching one of patterns changes. The
// static base directory of every pattern is watched recursively; a base that
// does not exist yet is picked up once it is created.
func (fw *FileWatcher) Bind(name string, patterns []string, handler ChangeHandler) error {
	if len(patterns) == 0 {
		return fmt.Errorf("binding %s has no patterns", name)
	}

	b := &binding{
		name:    name,
		handler: handler,
		events:  make(chan ChangeEvent, 256),
	}
	for _, p := range patterns {
		slashed := filepath.ToSlash(filepath.Clean(p))
		if !doublestar.ValidatePattern(slashed) {
			return fmt.Errorf("binding %s: invalid pattern %q", name, p)
		}
		b.patterns = append(b.patterns, slashed)

		base, _ := doublestar.SplitPattern(slashed)
		fw.mutex.Lock()
		fw.bases = append(fw.bases, filepath.Clean(filepath.FromSlash(base)))
		fw.mutex.Unlock()
		if err := fw.watchBase(filepath.FromSlash(base)); err != nil {
			return fmt.Errorf("binding %s: %w", name, err)
		}
	}

	fw.mutex.Lock()
	fw.bindings = append(fw.bindings, b)
	fw.mutex.Unlock()
	return nil
}

// watchBase watches dir recursively. When dir does not exist its nearest
// existing ancestor is watched instead, so its creation is noticed.
func (fw *FileWatcher) watchBase(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		return fw.AddRecursive(dir)
	case err == nil:
		return fw.addDir(filepath.Dir(dir))
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	for parent := filepath.Dir(dir); ; parent = filepath.Dir(parent) {
		if info, err := os.Stat(parent); err == nil && info.IsDir() {
			return fw.addDir(parent)
		}
		if filepath.Dir(parent) == parent {
			return fmt.Errorf("no existing directory above %s", dir)
		}
	}
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && !NoGitFilter(path) {
			return filepath.SkipDir
		}
		return fw.addDir(path)
	})
}

func (fw *FileWatcher) addDir(dir string) error {
	dir = filepath.Clean(dir)

	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	if fw.dirs[dir] {
		return nil
	}
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	fw.dirs[dir] = true
	return nil
}

// Watched returns the watched directories in lexical order.
func (fw *FileWatcher) Watched() []string {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()

	out := make([]string, 0, len(fw.dirs))
	for d := range fw.dirs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Run dispatches events until ctx is done, then waits for running handlers
// and closes the underlying watcher.
func (fw *FileWatcher) Run(ctx context.Context) error {
	fw.mutex.RLock()
	bindings := append([]*binding(nil), fw.bindings...)
	fw.mutex.RUnlock()

	var wg sync.WaitGroup
	for _, b := range bindings {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fw.work(ctx, b)
		}()
	}

	err := fw.watchLoop(ctx)
	wg.Wait()
	if cerr := fw.watcher.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the underlying watcher without running it.
func (fw *FileWatcher) Close() error {
	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	info, statErr := os.Stat(event.Name)
	if event.Op.Has(fsnotify.Create) && statErr == nil && info.IsDir() {
		if fw.relevant(event.Name) {
			fw.addCreatedDir(ctx, event.Name)
		}
		return
	}

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		fw.forget(ctx, event.Name)
	}

	changeEvent := ChangeEvent{Path: event.Name, Type: eventType(event.Op)}
	if statErr == nil {
		changeEvent.ModTime = info.ModTime()
		changeEvent.Size = info.Size()
	}
	fw.dispatch(ctx, changeEvent)
}

// forget drops the watched directories at or below a removed path so they
// are added again if they reappear. Bases that went away with it fall back
// to their nearest existing ancestor.
func (fw *FileWatcher) forget(ctx context.Context, path string) {
	path = filepath.Clean(path)

	fw.mutex.Lock()
	var gone, orphaned []string
	for d := range fw.dirs {
		if within(path, d) {
			delete(fw.dirs, d)
			gone = append(gone, d)
		}
	}
	for _, base := range fw.bases {
		if within(path, base) {
			orphaned = append(orphaned, base)
		}
	}
	fw.mutex.Unlock()

	if len(gone) == 0 {
		return
	}
	for _, d := range gone {
		// The kernel drops the watch of a deleted directory on its own.
		_ = fw.watcher.Remove(d)
	}
	for _, base := range orphaned {
		if err := fw.watchBase(base); err != nil {
			fw.logger.Warn(ctx, err, "Cannot watch removed directory", "path", base)
		}
	}
}

// relevant reports whether dir is on the way to, or inside, a binding's base.
func (fw *FileWatcher) relevant(dir string) bool {
	dir = filepath.Clean(dir)

	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	for _, base := range fw.bases {
		if within(base, dir) || within(dir, base) {
			return true
		}
	}
	return false
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// addCreatedDir watches a new directory and reports the files already in it,
// which may have been written before the watch was in place.
func (fw *FileWatcher) addCreatedDir(ctx context.Context, dir string) {
	if err := fw.AddRecursive(dir); err != nil {
		fw.logger.Warn(ctx, err, "Cannot watch new directory", "path", dir)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ev := ChangeEvent{Type: EventTypeCreated, Path: path}
		if info, err := d.Info(); err == nil {
			ev.ModTime = info.ModTime()
			ev.Size = info.Size()
		}
		fw.dispatch(ctx, ev)
		return nil
	})
}

func (fw *FileWatcher) dispatch(ctx context.Context, ev ChangeEvent) {
	fw.mutex.RLock()
	filters := fw.filters
	bindings := fw.bindings
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(ev.Path) {
			return
		}
	}

	for _, b := range bindings {
		if !b.matches(ev.Path) {
			continue
		}
		fw.logger.Debug(ctx, "File changed", "path", ev.Path, "event", ev.Type.String(), "binding", b.name)
		select {
		case b.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (fw *FileWatcher) work(ctx context.Context, b *binding) {
	d := newDebouncer(fw.delay)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			if fw.delay == 0 {
				fw.run(ctx, b, []ChangeEvent{ev})
				continue
			}
			d.add(ev)
		case <-d.fired():
			fw.run(ctx, b, d.take())
		}
	}
}

func (fw *FileWatcher) run(ctx context.Context, b *binding, events []ChangeEvent) {
	if len(events) == 0 || ctx.Err() != nil {
		return
	}
	if err := b.handler(ctx, events); err != nil {
		fw.logger.Error(ctx, err, "Watch handler failed", "binding", b.name)
	}
}

func eventType(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Write):
		return EventTypeModified
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}

// NoGitFilter drops paths inside .git directories.
func NoGitFilter(path string) bool {
	p := filepath.ToSlash(path)
	return !strings.HasPrefix(p, ".git/") && !strings.Contains(p, "/.git/") && filepath.Base(path) != ".git"
}

// NoEditorTempFilter drops the swap and backup files editors write next to
// the file being saved.
func NoEditorTempFilter(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, ".#"),
		base == "4913":
		return false
	}
	return true
}
