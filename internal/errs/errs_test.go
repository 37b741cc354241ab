package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", NotFound("task", "t1"), "not_found"},
		{"wrapped not found", fmt.Errorf("update: %w", NotFound("task", "t1")), "not_found"},
		{"invalid state", InvalidState("unknown status %q", "zzz"), "invalid_state"},
		{"validation", Validation("name is required"), "validation_failed"},
		{"channel missing", ChannelNotFound("c1", false), "channel_not_found"},
		{"channel disabled", ChannelNotFound("c1", true), "channel_not_found"},
		{"dispatch", &DispatchError{ChannelID: "c1", Err: errors.New("boom")}, "channel_dispatch_failed"},
		{"store", Store("insert activity", errors.New("disk full")), "store_error"},
		{"other", errors.New("x"), "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Code(tc.err); got != tc.want {
				t.Errorf("Code(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestStoreKeepsKinds(t *testing.T) {
	nf := NotFound("report", "r1")
	if got := Store("get report", nf); got != nf {
		t.Errorf("Store should pass through kinded errors, got %v", got)
	}
	if Store("noop", nil) != nil {
		t.Error("Store(nil) should be nil")
	}

	inner := errors.New("locked")
	err := Store("insert", inner)
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StoreError, got %T", err)
	}
	if se.Op != "insert" || !errors.Is(err, inner) {
		t.Errorf("unexpected store error %+v", se)
	}
	if Store("again", err) != err {
		t.Error("Store should not double wrap")
	}
}

func TestChannelNotFoundMessage(t *testing.T) {
	err := ChannelNotFound("c9", true)
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatal("expected ErrChannelNotFound")
	}
	if got := err.Error(); got != `channel "c9" is disabled: channel not found` {
		t.Errorf("message = %q", got)
	}
}
