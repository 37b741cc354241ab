package server

import (
	"github.com/anthropic/agentwatch/internal/alerting"
	"github.com/anthropic/agentwatch/internal/ledger"
	"github.com/anthropic/agentwatch/internal/store"
)

// TaskStatusRequest is the body of a task status update; the task id comes
// from the path.
type TaskStatusRequest struct {
	Status              string   `json:"status"`
	Progress            *int     `json:"progress,omitempty"`
	Notes               *string  `json:"notes,omitempty"`
	Blockers            []string `json:"blockers,omitempty"`
	CompletedMilestones []string `json:"completedMilestones,omitempty"`
}

func (r TaskStatusRequest) update(id string) ledger.TaskUpdate {
	return ledger.TaskUpdate{
		ID:                  id,
		Status:              r.Status,
		Progress:            r.Progress,
		Notes:               r.Notes,
		Blockers:            r.Blockers,
		CompletedMilestones: r.CompletedMilestones,
	}
}

// RuleRequest creates an alert rule.
type RuleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Conditions  map[string]any     `json:"conditions,omitempty"`
	Actions     []store.RuleAction `json:"actions"`
	Priority    int                `json:"priority,omitempty"`
	Enabled     *bool              `json:"enabled,omitempty"`
}

func (r RuleRequest) input() alerting.RuleInput {
	return alerting.RuleInput{
		Name:        r.Name,
		Description: r.Description,
		Conditions:  r.Conditions,
		Actions:     r.Actions,
		Priority:    r.Priority,
		Enabled:     r.Enabled,
	}
}

// ImpactRequest asks for an impact analysis over files.
type ImpactRequest struct {
	ProjectPath  string   `json:"projectPath"`
	Files        []string `json:"files"`
	AnalysisType string   `json:"analysisType,omitempty"`
}

// MonitorResponse identifies a started monitoring session.
type MonitorResponse struct {
	SessionID string `json:"sessionId"`
}

// EnabledRequest toggles a rule.
type EnabledRequest struct {
	Enabled bool `json:"enabled"`
}
