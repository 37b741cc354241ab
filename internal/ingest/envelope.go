// Package ingest accepts agent-reported events as JSON envelopes and routes
// them to the activity ledger and the change analyzer. Envelopes arrive over
// the IPC socket or an append-only JSONL inbox file.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropic/agentwatch/internal/analyzer"
	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/ledger"
)

// Envelope kinds.
const (
	KindActivity         = "activity"
	KindChangeBatch      = "change-batch"
	KindTaskCreate       = "task-create"
	KindTaskUpdateStatus = "task-update-status"
)

// Kinds lists every accepted envelope kind.
var Kinds = []string{KindActivity, KindChangeBatch, KindTaskCreate, KindTaskUpdateStatus}

// Envelope is the kind header shared by every inbound message. The payload
// fields sit beside it at the top level, e.g.
//
//	{"kind":"activity","agentId":"a1","activity":"completed refactor"}
type Envelope struct {
	Kind string `json:"kind"`
}

// Dispatcher decodes envelopes and applies them.
type Dispatcher struct {
	ledger   *ledger.Ledger
	analyzer *analyzer.Analyzer
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(l *ledger.Ledger, a *analyzer.Analyzer) *Dispatcher {
	return &Dispatcher{ledger: l, analyzer: a}
}

// Dispatch decodes raw and applies it, returning the created or updated
// entity. Unknown fields are rejected so typos surface as validation errors.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Validation("invalid envelope: %v", err)
	}

	switch env.Kind {
	case KindActivity:
		var in ledger.ActivityInput
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		return d.ledger.RecordActivity(ctx, in)

	case KindChangeBatch:
		var in analyzer.ChangeBatch
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		return d.analyzer.TrackChanges(ctx, in)

	case KindTaskCreate:
		var in ledger.TaskInput
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		return d.ledger.CreateTask(ctx, in)

	case KindTaskUpdateStatus:
		var in ledger.TaskUpdate
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		return d.ledger.UpdateTaskStatus(ctx, in)

	case "":
		return nil, errs.Validation("envelope kind is required")
	default:
		return nil, errs.InvalidState("unknown envelope kind %q (expected one of %v)", env.Kind, Kinds)
	}
}

// decode unmarshals the payload fields of raw into dst, ignoring the kind.
func decode(raw []byte, dst any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return errs.Validation("invalid envelope: %v", err)
	}
	delete(fields, "kind")
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("re-encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Validation("invalid payload: %v", err)
	}
	return nil
}
