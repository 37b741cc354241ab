// Package watcher turns filesystem notifications under one project root into
// a stream of debounced, filtered file events. Each watcher owns a bounded
// queue and a single worker that hands events to the caller's handler, so a
// slow handler never blocks the fsnotify loop.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/anthropic/agentwatch/internal/logger"
)

// Options tune a Watcher.
type Options struct {
	Debounce       time.Duration
	QueueSize      int
	IgnorePatterns []string
	WatchPatterns  []string
	Logger         *logger.Logger
}

// Handler processes one event. It runs on the watcher's worker goroutine.
type Handler func(Event)

// Stats is a snapshot of a watcher's queue.
type Stats struct {
	Queued  int    `json:"queued"`
	Dropped uint64 `json:"dropped"`
}

// Watcher monitors one project tree.
type Watcher struct {
	root   string
	opts   Options
	handle Handler
	log    *logger.Logger

	fsw       *fsnotify.Watcher
	filter    *Filter
	debouncer *Debouncer
	queue     *Queue

	quit     chan struct{}
	loopDone chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Watcher for root. Nothing is watched until Start.
func New(root string, opts Options, handle Handler) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 100 * time.Millisecond
	}
	return &Watcher{
		root:     root,
		opts:     opts,
		handle:   handle,
		log:      logger.OrNop(opts.Logger).With("root", root),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start registers the tree with fsnotify and starts the event loop and the
// worker. It returns once watching has begun. Cancelling ctx is equivalent
// to calling Stop.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", w.root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fsw = fsw
	w.filter = NewFilter(w.opts.IgnorePatterns, w.opts.WatchPatterns)
	w.queue = NewQueue(w.opts.QueueSize)
	w.debouncer = NewDebouncer(w.opts.Debounce, w.enqueue)

	if err := w.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		return fmt.Errorf("walk %s: %w", w.root, err)
	}

	go w.loop(ctx)
	go w.work()
	return nil
}

// Stop ends watching. Pending debounced events are flushed into the queue
// and the worker drains everything queued before it exits. Idempotent; it
// does not wait for the drain, use Done for that.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		if w.fsw == nil {
			close(w.loopDone)
			close(w.done)
			return
		}
		<-w.loopDone
		w.debouncer.Stop()
		_ = w.fsw.Close()
		w.queue.Close()
	})
}

// Done is closed once the worker has drained the queue after Stop.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Stats reports queue depth and drops.
func (w *Watcher) Stats() Stats {
	if w.queue == nil {
		return Stats{}
	}
	return Stats{Queued: w.queue.Len(), Dropped: w.queue.Dropped()}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.loopDone)
	for {
		select {
		case <-w.quit:
			return

		case <-ctx.Done():
			go w.Stop()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) work() {
	defer close(w.done)
	for {
		e, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.handle(e)
	}
}

func (w *Watcher) enqueue(e Event) {
	if old, dropped := w.queue.Push(e); dropped {
		w.log.Warn("watch queue full, dropped oldest event",
			"path", old.Path, "op", old.Op, "dropped_total", w.queue.Dropped())
	}
}

// handleEvent filters and debounces a single fsnotify event.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, ok := w.relative(ev.Name)
	if !ok || w.filter.ShouldIgnore(rel) {
		return
	}

	op := mapOp(ev.Op)
	if op == "" {
		return // chmod-only
	}

	if op != OpDelete {
		info, err := os.Stat(ev.Name)
		if err != nil {
			return // gone before we looked
		}
		if info.IsDir() {
			if op == OpCreate {
				_ = w.addRecursive(ev.Name)
			}
			return
		}
	}

	if !w.filter.Wants(rel) {
		return
	}
	w.debouncer.Feed(Event{Path: rel, Op: op, Timestamp: time.Now()})
}

// addRecursive walks dir and adds every directory that is not ignored.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.relative(p); ok && rel != "." && w.filter.ShouldIgnore(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.log.Debug("fsnotify add failed", "dir", p, "error", err)
		}
		return nil
	})
}

func (w *Watcher) relative(p string) (string, bool) {
	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// mapOp converts fsnotify.Op to an Op. A rename reports the old name, which
// no longer exists, so it maps to delete; the new name arrives as a create.
func mapOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete
	case op.Has(fsnotify.Write):
		return OpModify
	default:
		return ""
	}
}
