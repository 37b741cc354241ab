package ledger

import (
	"strings"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/pipeline"
)

// Task statuses. A task starts pending; completed, failed and cancelled are
// terminal.
const (
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusBlocked    = "blocked"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

var validStatuses = map[string]bool{
	StatusPending:    true,
	StatusQueued:     true,
	StatusInProgress: true,
	StatusBlocked:    true,
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusCancelled:  true,
}

// ActiveStatuses are the statuses ActiveTasks returns.
var ActiveStatuses = []string{StatusPending, StatusInProgress, StatusBlocked}

// ParseStatus validates s.
func ParseStatus(s string) (string, error) {
	st := strings.ToLower(strings.TrimSpace(s))
	if !validStatuses[st] {
		return "", errs.InvalidState("unknown task status %q", s)
	}
	return st, nil
}

// IsTerminal reports whether status is final.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ParsePriority validates s. An empty string is medium.
func ParsePriority(s string) (pipeline.Priority, error) {
	switch p := pipeline.Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return pipeline.PriorityMedium, nil
	case pipeline.PriorityLow, pipeline.PriorityMedium, pipeline.PriorityHigh, pipeline.PriorityCritical:
		return p, nil
	default:
		return "", errs.InvalidState("unknown priority %q (expected low, medium, high or critical)", s)
	}
}
