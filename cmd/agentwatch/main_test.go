package main

import (
	"fmt"
	"testing"
	"time"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/ipc"
)

func TestParseObject(t *testing.T) {
	m, err := parseObject("metadata", `{"linesChanged": 12, "lang": "go"}`)
	if err != nil {
		t.Fatal(err)
	}
	if m["linesChanged"] != float64(12) || m["lang"] != "go" {
		t.Errorf("parseObject = %v", m)
	}
	if m, err := parseObject("metadata", "  "); err != nil || m != nil {
		t.Errorf("blank = %v, %v; want nil, nil", m, err)
	}
	if _, err := parseObject("metadata", `[1,2]`); err == nil {
		t.Error("array accepted as object")
	}
}

func TestWindowStart(t *testing.T) {
	if start, err := windowStart(""); err != nil || !start.IsZero() {
		t.Errorf(`windowStart("") = %v, %v`, start, err)
	}
	start, err := windowStart("last_hour")
	if err != nil {
		t.Fatal(err)
	}
	if age := time.Since(start); age < 59*time.Minute || age > 61*time.Minute {
		t.Errorf("last_hour starts %v ago", age)
	}
	if _, err := windowStart("last_year"); err == nil {
		t.Error("unknown timeframe accepted")
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"remote", fmt.Errorf("ingest: %w", &ipc.RemoteError{Code: "not_found", Message: "task x"}), "not_found"},
		{"local kind", errs.Validation("description is required"), "validation_failed"},
		{"plain", fmt.Errorf("boom"), "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errorCode(tc.err); got != tc.want {
				t.Errorf("errorCode = %q, want %q", got, tc.want)
			}
		})
	}
}
