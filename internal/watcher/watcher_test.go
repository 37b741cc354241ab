package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Filter tests
// ---------------------------------------------------------------------------

func TestFilterIgnore(t *testing.T) {
	f := NewFilter([]string{"*.log", "tmp"}, nil)

	cases := []struct {
		path string
		want bool
	}{
		{".git/config", true},
		{"node_modules/package.json", true},
		{"deep/path/node_modules/foo.js", true},
		{"very/deep/path/.DS_Store", true},
		{"backup.swp", true},
		{"notes~", true},
		{"logs/error.log", true},
		{"data/tmp/file", true},
		{"main.go", false},
		{"src/app.ts", false},
		{"internal/watcher/watcher.go", false},
		{"tmpfile.go", false},
	}
	for _, tc := range cases {
		if got := f.ShouldIgnore(tc.path); got != tc.want {
			t.Errorf("ShouldIgnore(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestFilterWants(t *testing.T) {
	cases := []struct {
		watch []string
		path  string
		want  bool
	}{
		{nil, "anything/at/all.txt", true},
		{[]string{"*.go"}, "main.go", true},
		{[]string{"*.go"}, "internal/store/sqlite.go", true},
		{[]string{"*.go"}, "web/app.ts", false},
		{[]string{"src/**/*.ts"}, "src/a/b/c.ts", true},
		{[]string{"src/**/*.ts"}, "lib/c.ts", false},
		{[]string{"./config/**"}, "config/prod.yaml", true},
		{[]string{"*.md", "docs/**"}, "docs/img/logo.png", true},
	}
	for _, tc := range cases {
		f := NewFilter(nil, tc.watch)
		if got := f.Wants(tc.path); got != tc.want {
			t.Errorf("Wants(%v, %q) = %v, want %v", tc.watch, tc.path, got, tc.want)
		}
	}
}

func TestValidatePatterns(t *testing.T) {
	if _, ok := ValidatePatterns([]string{"**/*.go", "src/*"}); !ok {
		t.Error("valid patterns rejected")
	}
	if bad, ok := ValidatePatterns([]string{"*.go", "src/[a-"}); ok || bad != "src/[a-" {
		t.Errorf("ValidatePatterns = %q %v", bad, ok)
	}
}

// ---------------------------------------------------------------------------
// Debouncer tests
// ---------------------------------------------------------------------------

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestDebouncerBurstCollapse(t *testing.T) {
	var rec recorder
	d := NewDebouncer(50*time.Millisecond, rec.add)
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Feed(Event{Path: "a/b.txt", Op: OpModify, Timestamp: time.Now()})
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 1 {
		t.Fatalf("expected exactly 1 emission after burst of 10, got %d", len(got))
	}
}

func TestDebouncerDifferentPaths(t *testing.T) {
	var rec recorder
	d := NewDebouncer(50*time.Millisecond, rec.add)
	defer d.Stop()

	d.Feed(Event{Path: "a.txt", Op: OpModify, Timestamp: time.Now()})
	d.Feed(Event{Path: "b.txt", Op: OpCreate, Timestamp: time.Now()})
	time.Sleep(150 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 emissions (one per path), got %d", len(got))
	}
}

func TestDebouncerCreateThenModifyStaysCreate(t *testing.T) {
	var rec recorder
	d := NewDebouncer(50*time.Millisecond, rec.add)
	defer d.Stop()

	d.Feed(Event{Path: "a.txt", Op: OpCreate, Timestamp: time.Now()})
	time.Sleep(10 * time.Millisecond)
	d.Feed(Event{Path: "a.txt", Op: OpModify, Timestamp: time.Now()})
	time.Sleep(150 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0].Op != OpCreate {
		t.Fatalf("emitted %+v, want one create", got)
	}
}

func TestDebouncerModifyThenDelete(t *testing.T) {
	var rec recorder
	d := NewDebouncer(50*time.Millisecond, rec.add)
	defer d.Stop()

	d.Feed(Event{Path: "a.txt", Op: OpModify, Timestamp: time.Now()})
	d.Feed(Event{Path: "a.txt", Op: OpDelete, Timestamp: time.Now()})
	time.Sleep(150 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0].Op != OpDelete {
		t.Fatalf("emitted %+v, want one delete", got)
	}
}

func TestDebouncerStopDrains(t *testing.T) {
	var rec recorder
	d := NewDebouncer(5*time.Second, rec.add)

	d.Feed(Event{Path: "x.txt", Op: OpCreate, Timestamp: time.Now()})
	d.Feed(Event{Path: "y.txt", Op: OpModify, Timestamp: time.Now()})
	d.Stop()

	if got := rec.snapshot(); len(got) != 2 {
		t.Fatalf("expected 2 drained emissions, got %d", len(got))
	}

	// Feed after stop should be a no-op, not panic.
	d.Feed(Event{Path: "z.txt", Op: OpCreate, Timestamp: time.Now()})
	d.Stop()
	if got := rec.snapshot(); len(got) != 2 {
		t.Errorf("emissions after stop: %d", len(got))
	}
}

// ---------------------------------------------------------------------------
// Queue tests
// ---------------------------------------------------------------------------

func TestQueueDropsOldest(t *testing.T) {
	q := NewQueue(2)
	q.Push(Event{Path: "1"})
	q.Push(Event{Path: "2"})
	old, dropped := q.Push(Event{Path: "3"})
	if !dropped || old.Path != "1" {
		t.Fatalf("Push on full queue evicted %+v dropped=%v, want path 1", old, dropped)
	}
	if q.Dropped() != 1 || q.Len() != 2 {
		t.Errorf("Dropped=%d Len=%d", q.Dropped(), q.Len())
	}

	q.Close()
	var got []string
	for {
		e, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, e.Path)
	}
	if len(got) != 2 || got[0] != "2" || got[1] != "3" {
		t.Errorf("drained %v, want [2 3]", got)
	}
	if _, dropped := q.Push(Event{Path: "4"}); dropped || q.Len() != 0 {
		t.Error("push after close should be ignored")
	}
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := NewQueue(4)
	got := make(chan string, 1)
	go func() {
		e, _ := q.Pop()
		got <- e.Path
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Event{Path: "late"})

	select {
	case p := <-got:
		if p != "late" {
			t.Errorf("Pop = %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake up")
	}
	q.Close()
	q.Close()
}

// ---------------------------------------------------------------------------
// Watcher tests
// ---------------------------------------------------------------------------

func TestWatcherReportsFileEvents(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 16)
	w := New(root, Options{Debounce: 20 * time.Millisecond, QueueSize: 16, WatchPatterns: []string{"*.go"}},
		func(e Event) { events <- e })
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "src", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		if e.Path != "src/main.go" || e.Op != OpCreate {
			t.Errorf("event = %+v, want create src/main.go", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}

	if err := os.Remove(filepath.Join(root, "src", "main.go")); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-events:
		if e.Path != "src/main.go" || e.Op != OpDelete {
			t.Errorf("event = %+v, want delete src/main.go", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no delete event received")
	}
}

func TestWatcherStopDrainsAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	var rec recorder
	w := New(root, Options{Debounce: time.Hour, QueueSize: 4}, rec.add)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Give fsnotify time to deliver into the (hour-long) debouncer.
	time.Sleep(200 * time.Millisecond)

	w.Stop()
	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not drain")
	}
	got := rec.snapshot()
	if len(got) != 1 || got[0].Path != "a.txt" {
		t.Errorf("drained %+v, want the pending a.txt event", got)
	}
}

func TestWatcherStartMissingRoot(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), Options{}, func(Event) {})
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
	w.Stop()
	<-w.Done()
}
