// Package errs defines the error kinds shared by every pipeline component.
// Callers test kinds with errors.Is and unwrap typed errors with errors.As.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown task, channel, template, report or
	// session ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned for unrecognised enum values and for
	// operations a record's current state does not allow.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is returned when a required field is missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrChannelNotFound is returned when a rule action references a channel
	// that is missing or disabled.
	ErrChannelNotFound = errors.New("channel not found")
)

// NotFound builds an ErrNotFound for an entity kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// InvalidState builds an ErrInvalidState with a formatted message.
func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidState)
}

// Validation builds an ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

// ChannelNotFound reports a missing or disabled channel.
func ChannelNotFound(channelID string, disabled bool) error {
	if disabled {
		return fmt.Errorf("channel %q is disabled: %w", channelID, ErrChannelNotFound)
	}
	return fmt.Errorf("channel %q: %w", channelID, ErrChannelNotFound)
}

// DispatchError wraps a single failed channel send.
type DispatchError struct {
	ChannelID string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to channel %q: %v", e.ChannelID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// StoreError wraps a durable store failure on a required read or write.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps err as a *StoreError unless it is nil or already carries a
// pipeline kind.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrValidation) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Code returns a short machine-readable code for err, used by the HTTP and
// IPC surfaces.
func Code(err error) string {
	var de *DispatchError
	var se *StoreError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrChannelNotFound):
		return "channel_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.As(err, &de):
		return "channel_dispatch_failed"
	case errors.As(err, &se):
		return "store_error"
	default:
		return "internal_error"
	}
}
