package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/logger"
	"github.com/anthropic/agentwatch/internal/store"
)

// offsetKeyPrefix namespaces persisted inbox offsets in daemon_state.
const offsetKeyPrefix = "inbox_offset:"

// Inbox tails a JSONL file of envelopes and dispatches each line. The read
// offset is persisted after every line so a restart resumes where it left off.
type Inbox struct {
	path       string
	store      *store.Store
	dispatcher *Dispatcher
	log        *logger.Logger
	interval   time.Duration
}

// NewInbox creates an inbox for path. interval is the tail poll period.
func NewInbox(path string, s *store.Store, d *Dispatcher, log *logger.Logger, interval time.Duration) *Inbox {
	return &Inbox{
		path:       path,
		store:      s,
		dispatcher: d,
		log:        logger.OrNop(log).With("inbox", path),
		interval:   interval,
	}
}

// Run tails the inbox until ctx is cancelled. A line that fails to dispatch
// is logged and skipped.
func (ib *Inbox) Run(ctx context.Context) error {
	key := offsetKeyPrefix + ib.path
	var offset int64
	if v, err := ib.store.GetDaemonState(ctx, key); err != nil {
		return errs.Store("get inbox offset", err)
	} else if v != "" {
		offset, _ = strconv.ParseInt(v, 10, 64)
	}
	ib.log.Info("inbox tailing", "offset", offset)

	tailer := NewTailer(ib.path, offset, ib.interval)
	lines := make(chan Line, 100)
	done := make(chan struct{})
	var tailErr error
	var final int64
	go func() {
		defer close(done)
		final, tailErr = tailer.Tail(ctx, lines)
	}()

	// Offsets are written detached from ctx so the last one survives shutdown.
	persist := func(off int64) {
		if err := ib.store.SetDaemonState(context.WithoutCancel(ctx), key, strconv.FormatInt(off, 10)); err != nil {
			ib.log.Warn("persist inbox offset failed", "error", err)
		}
	}

	for {
		select {
		case line := <-lines:
			ib.handle(ctx, line)
			persist(line.Offset)
		case <-done:
			// Drain lines the tailer sent before it stopped.
			for {
				select {
				case line := <-lines:
					ib.handle(ctx, line)
					persist(line.Offset)
				default:
					if tailErr == nil {
						persist(final)
					}
					return tailErr
				}
			}
		}
	}
}

func (ib *Inbox) handle(ctx context.Context, line Line) {
	if _, err := ib.dispatcher.Dispatch(context.WithoutCancel(ctx), line.Data); err != nil {
		ib.log.Warn("inbox envelope rejected", "offset", line.Offset, "code", errs.Code(err), "error", err)
	}
}
