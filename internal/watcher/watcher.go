// Package watcher turns raw filesystem notifications on the team and task
// roots into semantic events: team created/updated/deleted and task
// created/updated. Writes to the same file within a short stability window
// coalesce into a single event so consumers never see half-written files.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Trojanku/claude-teams-dashboard/internal/otel"
)

// DefaultDebounce is the write-coalescing window. Session writers emit a
// config file in multiple chunks; anything inside this window is one write.
const DefaultDebounce = 300 * time.Millisecond

// Kind names a semantic filesystem event.
type Kind string

const (
	TeamCreated Kind = "team:created"
	TeamUpdated Kind = "team:updated"
	TeamDeleted Kind = "team:deleted"
	TaskCreated Kind = "task:created"
	TaskUpdated Kind = "task:updated"
)

// Event is one semantic change. TaskID is empty for team events.
type Event struct {
	Kind   Kind
	TeamID string
	TaskID string
}

// Watcher observes teamsRoot/{teamId}/config.json and
// tasksRoot/{teamId}/{taskId}.json. Files present before Start never fire
// events; only subsequent changes do.
type Watcher struct {
	teamsRoot string
	tasksRoot string
	debounce  time.Duration
	logger    *slog.Logger

	fsw    *fsnotify.Watcher
	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	timers  map[string]*time.Timer
	known   map[string]struct{} // files whose creation we have already seen or that predate Start
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the stability window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New returns an unstarted Watcher over the two roots.
func New(teamsRoot, tasksRoot string, opts ...Option) *Watcher {
	w := &Watcher{
		teamsRoot: teamsRoot,
		tasksRoot: tasksRoot,
		debounce:  DefaultDebounce,
		logger:    slog.Default(),
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
		timers:    make(map[string]*time.Timer),
		known:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Events is the stream of semantic events. It is never closed; consumers
// should also select on their own shutdown signal.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start begins watching. Calling Start on a started watcher is a no-op.
// The roots are created if missing so a fresh install watches from empty.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	for _, root := range []string{w.teamsRoot, w.tasksRoot} {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create watch root: %w", err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	w.fsw = fsw

	for _, root := range []string{w.teamsRoot, w.tasksRoot} {
		if err := fsw.Add(root); err != nil {
			fsw.Close()
			w.fsw = nil
			return fmt.Errorf("watch %s: %w", root, err)
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			fsw.Close()
			w.fsw = nil
			return fmt.Errorf("scan %s: %w", root, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			sub := filepath.Join(root, entry.Name())
			if err := fsw.Add(sub); err != nil {
				w.logger.Warn("failed to watch subdirectory", "path", sub, "error", err)
				continue
			}
			w.markExisting(sub)
		}
	}

	w.started = true
	go w.loop()
	return nil
}

// markExisting records a subdirectory's current files so they report as
// updates, not creations, when next written. Caller holds w.mu.
func (w *Watcher) markExisting(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.known[filepath.Join(dir, entry.Name())] = struct{}{}
		}
	}
}

// Stop releases all watch handles and pending debounce timers. Idempotent;
// events scheduled but not yet fired are discarded.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started || w.stopped {
		return nil
	}
	w.stopped = true
	close(w.done)
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = map[string]*time.Timer{}
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case w.within(w.teamsRoot, ev.Name):
		w.handleTeams(ev)
	case w.within(w.tasksRoot, ev.Name):
		w.handleTasks(ev)
	}
}

func (w *Watcher) within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// segments splits path relative to root. Empty result means the path does
// not decompose; such paths are dropped.
func (w *Watcher) segments(root, path string) []string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return nil
	}
	return strings.Split(rel, string(filepath.Separator))
}

func (w *Watcher) handleTeams(ev fsnotify.Event) {
	seg := w.segments(w.teamsRoot, ev.Name)
	switch len(seg) {
	case 1:
		teamID := seg[0]
		if ev.Op.Has(fsnotify.Create) {
			w.watchNewDir(ev.Name, func(file string) {
				if file == "config.json" {
					w.schedule(filepath.Join(ev.Name, file), TeamCreated, TeamUpdated, teamID, "")
				}
			})
			return
		}
		if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
			// Removing a team dir usually also delivers a Remove for its
			// config.json; only emit here if that event never arrived.
			w.mu.Lock()
			_, hadConfig := w.known[filepath.Join(ev.Name, "config.json")]
			w.mu.Unlock()
			w.forgetPrefix(ev.Name)
			if hadConfig {
				w.emit(Event{Kind: TeamDeleted, TeamID: teamID})
			}
		}
	case 2:
		if seg[1] != "config.json" {
			return
		}
		teamID := seg[0]
		if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
			// A dir-level Remove processed first already emitted the deletion
			// and forgot this path; only a still-known config gets an event.
			w.mu.Lock()
			_, seen := w.known[ev.Name]
			w.mu.Unlock()
			w.forget(ev.Name)
			if seen {
				w.emit(Event{Kind: TeamDeleted, TeamID: teamID})
			}
			return
		}
		if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
			w.schedule(ev.Name, TeamCreated, TeamUpdated, teamID, "")
		}
	default:
		w.logger.Debug("ignoring path under teams root", "path", ev.Name)
	}
}

func (w *Watcher) handleTasks(ev fsnotify.Event) {
	seg := w.segments(w.tasksRoot, ev.Name)
	switch len(seg) {
	case 1:
		if ev.Op.Has(fsnotify.Create) {
			teamID := seg[0]
			w.watchNewDir(ev.Name, func(file string) {
				if taskID, ok := taskIDFromFile(file); ok {
					w.schedule(filepath.Join(ev.Name, file), TaskCreated, TaskUpdated, teamID, taskID)
				}
			})
			return
		}
		if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
			w.forgetPrefix(ev.Name)
		}
	case 2:
		taskID, ok := taskIDFromFile(seg[1])
		if !ok {
			return
		}
		teamID := seg[0]
		if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
			// Task deletion has no semantic event; forgetting the file means
			// a re-created task reports as created again.
			w.forget(ev.Name)
			return
		}
		if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
			w.schedule(ev.Name, TaskCreated, TaskUpdated, teamID, taskID)
		}
	default:
		w.logger.Debug("ignoring path under tasks root", "path", ev.Name)
	}
}

func taskIDFromFile(name string) (string, bool) {
	if !strings.HasSuffix(name, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(name, ".json")
	return id, id != ""
}

// watchNewDir adds a watch on a just-created subdirectory and scans its
// current entries through scan. Files written between directory creation
// and the watch being added would otherwise be missed.
func (w *Watcher) watchNewDir(dir string, scan func(file string)) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("failed to watch new directory", "path", dir, "error", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			scan(entry.Name())
		}
	}
}

// schedule arms (or re-arms) the debounce timer for path. When the timer
// fires the event kind is chosen by whether the file was seen before:
// first sight is created, every later write is updated.
func (w *Watcher) schedule(path string, created, updated Kind, teamID, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		kind := updated
		if _, seen := w.known[path]; !seen {
			kind = created
			w.known[path] = struct{}{}
		}
		w.mu.Unlock()
		w.emit(Event{Kind: kind, TeamID: teamID, TaskID: taskID})
	})
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
	delete(w.known, path)
}

// forgetPrefix drops state for everything under a removed directory.
func (w *Watcher) forgetPrefix(dir string) {
	prefix := dir + string(filepath.Separator)
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		if strings.HasPrefix(path, prefix) {
			t.Stop()
			delete(w.timers, path)
		}
	}
	for path := range w.known {
		if strings.HasPrefix(path, prefix) {
			delete(w.known, path)
		}
	}
}

func (w *Watcher) emit(ev Event) {
	select {
	case <-w.done:
	case w.events <- ev:
		otel.RecordWatcherEvent(context.Background(), string(ev.Kind))
	}
}
