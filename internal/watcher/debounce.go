package watcher

import (
	"sync"
	"time"
)

// Op is the kind of change a watcher reports.
type Op string

const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// Event represents a single file system change. Path is relative to the
// watched root, slash separated.
type Event struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// Debouncer collapses rapid events for the same file path into a single
// emission after a quiet window. It is safe for concurrent use.
//
// A create followed by modifies stays a create, so an editor that writes a
// new file in several syscalls still reports one creation.
type Debouncer struct {
	window time.Duration
	emit   func(Event)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]Event
	stopped bool
}

// NewDebouncer creates a Debouncer that waits for window of silence on a
// path before emitting the merged event for that path.
func NewDebouncer(window time.Duration, emit func(Event)) *Debouncer {
	return &Debouncer{
		window:  window,
		emit:    emit,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]Event),
	}
}

// Feed receives a raw event, restarting the path's quiet window.
func (d *Debouncer) Feed(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[e.Path]; ok && prev.Op == OpCreate && e.Op == OpModify {
		e.Op = OpCreate
	}
	d.pending[e.Path] = e

	if t, ok := d.timers[e.Path]; ok {
		t.Reset(d.window)
		return
	}

	path := e.Path
	d.timers[path] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		ev, ok := d.pending[path]
		delete(d.timers, path)
		delete(d.pending, path)
		d.mu.Unlock()
		if ok {
			d.emit(ev)
		}
	})
}

// Stop cancels all pending timers and immediately emits their events.
// After Stop returns, subsequent Feed calls are no-ops.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true

	// A timer that fired but is still waiting on mu finds pending gone and
	// emits nothing, so every event is emitted exactly once.
	var toEmit []Event
	for path, ev := range d.pending {
		if t, ok := d.timers[path]; ok {
			t.Stop()
		}
		toEmit = append(toEmit, ev)
	}
	d.timers = nil
	d.pending = nil
	d.mu.Unlock()

	// Emit outside the lock to avoid deadlocks in callbacks.
	for _, ev := range toEmit {
		d.emit(ev)
	}
}
