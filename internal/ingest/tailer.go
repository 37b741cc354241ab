package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Line is one complete line read from the tailed file. Offset is the read
// position just past the line, suitable for resuming.
type Line struct {
	Data   []byte
	Offset int64
}

// Tailer follows a single append-only file. It polls the file size rather
// than using fsnotify, which is more reliable for files appended to by other
// processes.
type Tailer struct {
	path     string
	offset   int64
	interval time.Duration
}

// NewTailer creates a tailer that starts reading at offset. interval controls
// poll frequency (default: 500ms).
func NewTailer(path string, offset int64, interval time.Duration) *Tailer {
	if interval == 0 {
		interval = 500 * time.Millisecond
	}
	return &Tailer{path: path, offset: offset, interval: interval}
}

// Tail sends complete lines on lines as they are appended and blocks until
// ctx is cancelled, returning the offset past the last line sent.
//
// If the file does not exist yet, Tail waits for it to appear. If the file
// shrinks below the offset it was truncated and reading restarts at 0.
func (t *Tailer) Tail(ctx context.Context, lines chan<- Line) (int64, error) {
	for {
		if _, err := os.Stat(t.path); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return t.offset, nil
		case <-time.After(t.interval):
		}
	}

	f, err := os.Open(t.path)
	if err != nil {
		return t.offset, fmt.Errorf("open %s: %w", t.path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return t.offset, fmt.Errorf("stat %s: %w", t.path, err)
	}
	if info.Size() < t.offset {
		t.offset = 0
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return t.offset, fmt.Errorf("seek %s to %d: %w", t.path, t.offset, err)
	}

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// pending holds a partial trailing line until its newline arrives.
	var pending []byte
	for {
		for {
			chunk, err := reader.ReadBytes('\n')
			if err != nil {
				if errors.Is(err, io.EOF) {
					pending = append(pending, chunk...)
					break
				}
				return t.offset, fmt.Errorf("read %s: %w", t.path, err)
			}
			raw := append(pending, chunk...)
			pending = nil
			prev := t.offset
			t.offset += int64(len(raw))

			data := raw[:len(raw)-1]
			if n := len(data); n > 0 && data[n-1] == '\r' {
				data = data[:n-1]
			}
			if len(data) == 0 {
				continue
			}
			line := Line{Data: append([]byte(nil), data...), Offset: t.offset}
			select {
			case lines <- line:
			case <-ctx.Done():
				// Unsent; resume before it.
				t.offset = prev
				return t.offset, nil
			}
		}

		select {
		case <-ctx.Done():
			return t.offset, nil
		case <-ticker.C:
			info, err := os.Stat(t.path)
			if err != nil {
				// Removed; wait for it to reappear.
				continue
			}
			if info.Size() < t.offset+int64(len(pending)) {
				t.offset = 0
				pending = nil
				_ = f.Close()
				if f, err = os.Open(t.path); err != nil {
					return t.offset, fmt.Errorf("reopen %s: %w", t.path, err)
				}
				reader = bufio.NewReader(f)
			}
		}
	}
}

// Path returns the file being tailed.
func (t *Tailer) Path() string {
	return t.path
}
