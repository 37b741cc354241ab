// Package ledger records what agents do: activities with their derived
// metrics, and the tasks agents work through.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/logger"
	"github.com/anthropic/agentwatch/internal/metrics"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/store"
)

// SystemAgentID is the agent recorded on synthetic task-management activities.
const SystemAgentID = "system"

// TaskManagementTag marks synthetic activities.
const TaskManagementTag = "task_management"

// Agent activity windows.
const (
	RecentWindow = 24 * time.Hour
	ActiveWindow = time.Hour
)

// Options configures a Ledger.
type Options struct {
	Store  *store.Store
	Sink   pipeline.Sink
	Logger *logger.Logger
}

// Ledger is the activity and task component.
type Ledger struct {
	store *store.Store
	calc  *metrics.Calculator
	sink  pipeline.Sink
	log   *logger.Logger
}

// New creates a Ledger.
func New(opts Options) *Ledger {
	return &Ledger{
		store: opts.Store,
		calc:  metrics.NewCalculator(),
		sink:  pipeline.OrDiscard(opts.Sink),
		log:   logger.OrNop(opts.Logger),
	}
}

// ---------------------------------------------------------------------------
// Activities
// ---------------------------------------------------------------------------

// ActivityInput is an agent-reported activity.
type ActivityInput struct {
	AgentID     string         `json:"agentId"`
	Text        string         `json:"activity"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
	Duration    *float64       `json:"duration,omitempty"`
	ProjectPath string         `json:"projectPath,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// Recorded is a persisted activity and the samples derived from it.
type Recorded struct {
	Activity store.Activity       `json:"activity"`
	Metrics  []store.MetricSample `json:"metrics"`
}

// RecordActivity persists the activity and then its metric samples, in one
// transaction.
func (l *Ledger) RecordActivity(ctx context.Context, in ActivityInput) (Recorded, error) {
	if strings.TrimSpace(in.AgentID) == "" {
		return Recorded{}, errs.Validation("agentId is required")
	}
	if strings.TrimSpace(in.Text) == "" {
		return Recorded{}, errs.Validation("activity text is required")
	}
	if in.Duration != nil && *in.Duration < 0 {
		return Recorded{}, errs.Validation("duration must not be negative")
	}

	ts := timeNow().UTC()
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		ts = in.Timestamp.UTC()
	}
	act := store.Activity{
		ID:          uuid.NewString(),
		AgentID:     in.AgentID,
		Activity:    in.Text,
		Metadata:    in.Metadata,
		Timestamp:   ts,
		Duration:    in.Duration,
		ProjectPath: in.ProjectPath,
		Tags:        in.Tags,
	}
	if act.Metadata == nil {
		act.Metadata = map[string]any{}
	}
	if act.Tags == nil {
		act.Tags = []string{}
	}

	derived := l.calc.Derive(metrics.Input{Text: in.Text, Metadata: act.Metadata, Duration: in.Duration})
	samples := make([]store.MetricSample, 0, len(derived))
	for _, d := range derived {
		samples = append(samples, store.MetricSample{
			ID:         uuid.NewString(),
			AgentID:    act.AgentID,
			ActivityID: act.ID,
			MetricType: d.MetricType,
			Value:      d.Value,
			Timestamp:  ts,
			Context:    d.Context,
		})
	}

	if err := l.store.InsertActivity(ctx, act, samples); err != nil {
		return Recorded{}, errs.Store("insert activity", err)
	}
	l.log.Debug("activity recorded", "agent", act.AgentID, "activity_id", act.ID, "samples", len(samples))

	meta := make(map[string]any, len(act.Metadata)+3)
	for k, v := range act.Metadata {
		meta[k] = v
	}
	meta["activityId"] = act.ID
	meta["tags"] = act.Tags
	meta["metrics"] = len(samples)
	l.sink.HandleEvent(ctx, pipeline.Event{
		Type:        pipeline.EventActivityRecorded,
		ProjectPath: act.ProjectPath,
		AgentID:     act.AgentID,
		Message:     act.Activity,
		Metadata:    meta,
		Priority:    pipeline.PriorityLow,
		Timestamp:   ts,
	})
	return Recorded{Activity: act, Metrics: samples}, nil
}

// ListActivities returns activities matching f.
func (l *Ledger) ListActivities(ctx context.Context, f store.ActivityFilter) ([]store.Activity, error) {
	acts, err := l.store.ListActivities(ctx, f)
	if err != nil {
		return nil, errs.Store("list activities", err)
	}
	return acts, nil
}

// AgentStatus is an agent seen in the last day.
type AgentStatus struct {
	store.AgentSummary
	IsActive bool `json:"isActive"`
}

// ActiveAgents lists agents with activity in the last 24 hours, most recent
// first. IsActive is set for those seen within the last hour.
func (l *Ledger) ActiveAgents(ctx context.Context, projectPath string) ([]AgentStatus, error) {
	now := timeNow().UTC()
	sums, err := l.store.AgentSummaries(ctx, store.AgentSummaryFilter{
		Since:       now.Add(-RecentWindow),
		ProjectPath: projectPath,
	})
	if err != nil {
		return nil, errs.Store("agent summaries", err)
	}
	out := make([]AgentStatus, 0, len(sums))
	for _, s := range sums {
		out = append(out, AgentStatus{
			AgentSummary: s,
			IsActive:     !s.LastSeen.Before(now.Add(-ActiveWindow)),
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// TaskInput describes a new task.
type TaskInput struct {
	Description       string   `json:"description"`
	Priority          string   `json:"priority,omitempty"`
	EstimatedDuration *float64 `json:"estimatedDuration,omitempty"`
	Dependencies      []string `json:"dependencies,omitempty"`
	AssignedAgent     string   `json:"assignedAgent,omitempty"`
	Milestones        []string `json:"milestones,omitempty"`
	ProjectPath       string   `json:"projectPath,omitempty"`
}

// CreateTask persists a pending task.
func (l *Ledger) CreateTask(ctx context.Context, in TaskInput) (store.Task, error) {
	if strings.TrimSpace(in.Description) == "" {
		return store.Task{}, errs.Validation("description is required")
	}
	prio, err := ParsePriority(in.Priority)
	if err != nil {
		return store.Task{}, err
	}
	if in.EstimatedDuration != nil && *in.EstimatedDuration < 0 {
		return store.Task{}, errs.Validation("estimatedDuration must not be negative")
	}

	now := timeNow().UTC()
	t := store.Task{
		ID:                uuid.NewString(),
		Description:       in.Description,
		Priority:          string(prio),
		Status:            StatusPending,
		AssignedAgent:     in.AssignedAgent,
		ProjectPath:       in.ProjectPath,
		CreatedAt:         now,
		UpdatedAt:         now,
		EstimatedDuration: in.EstimatedDuration,
		Dependencies:      in.Dependencies,
		Milestones:        []store.Milestone{},
	}
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	for _, m := range in.Milestones {
		if m = strings.TrimSpace(m); m != "" {
			t.Milestones = append(t.Milestones, store.Milestone{Name: m})
		}
	}

	if err := l.store.InsertTask(ctx, t); err != nil {
		return store.Task{}, errs.Store("insert task", err)
	}
	l.log.Info("task created", "task", t.ID, "priority", t.Priority, "agent", t.AssignedAgent)
	l.emitTask(ctx, pipeline.EventTaskCreated, t, "", "Task created: "+t.Description)
	return t, nil
}

// TaskUpdate is a status transition request. Nil fields are left unchanged.
type TaskUpdate struct {
	ID                  string   `json:"taskId"`
	Status              string   `json:"status"`
	Progress            *int     `json:"progress,omitempty"`
	Notes               *string  `json:"notes,omitempty"`
	Blockers            []string `json:"blockers,omitempty"`
	CompletedMilestones []string `json:"completedMilestones,omitempty"`
}

// maxUpdateAttempts bounds UpdateTaskStatus retries after a concurrent
// status change.
const maxUpdateAttempts = 5

// UpdateTaskStatus moves a task to a new status. Terminal statuses are
// final: updating a completed, failed or cancelled task is an
// InvalidState error. Entering a terminal status sets ActualDuration to the
// seconds elapsed since creation.
//
// The write only lands if the status is unchanged since it was read; when
// another producer got there first the task is read again and the update
// re-validated against the new status.
func (l *Ledger) UpdateTaskStatus(ctx context.Context, u TaskUpdate) (store.Task, error) {
	status, err := ParseStatus(u.Status)
	if err != nil {
		return store.Task{}, err
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		return store.Task{}, errs.Validation("progress must be between 0 and 100, got %d", *u.Progress)
	}

	for attempt := 1; ; attempt++ {
		t, previous, err := l.applyUpdate(ctx, u, status)
		if errors.Is(err, store.ErrTaskChanged) {
			if attempt < maxUpdateAttempts {
				l.log.Debug("task changed concurrently, retrying", "task", u.ID, "attempt", attempt)
				continue
			}
			return store.Task{}, errs.InvalidState("task %s keeps changing concurrently", u.ID)
		}
		if err != nil {
			return store.Task{}, err
		}

		l.log.Info("task status changed", "task", t.ID, "from", previous, "to", status)
		msg := fmt.Sprintf("Task %q moved from %s to %s", t.Description, previous, status)
		l.emitTask(ctx, pipeline.EventTaskStatusChanged, t, previous, msg)
		l.emitTask(ctx, "task_"+status, t, previous, msg)
		return t, nil
	}
}

// applyUpdate reads the task, applies u and writes it back guarded by the
// status it read. It returns the updated task and its previous status.
func (l *Ledger) applyUpdate(ctx context.Context, u TaskUpdate, status string) (store.Task, string, error) {
	t, ok, err := l.store.GetTask(ctx, u.ID)
	if err != nil {
		return store.Task{}, "", errs.Store("get task", err)
	}
	if !ok {
		return store.Task{}, "", errs.NotFound("task", u.ID)
	}
	if IsTerminal(t.Status) {
		return store.Task{}, "", errs.InvalidState("task %s is already %s", t.ID, t.Status)
	}

	now := timeNow().UTC()
	previous := t.Status
	t.Status = status
	t.UpdatedAt = now
	if u.Progress != nil {
		t.Progress = *u.Progress
	} else if status == StatusCompleted {
		t.Progress = 100
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if IsTerminal(status) {
		d := now.Sub(t.CreatedAt).Seconds()
		t.ActualDuration = &d
	}
	completed := completeMilestones(&t, u.CompletedMilestones, now)

	var synthetic []store.Activity
	if blockers := nonEmpty(u.Blockers); len(blockers) > 0 {
		synthetic = append(synthetic, l.systemActivity(t, now,
			fmt.Sprintf("Task %s blocked: %s", t.ID, strings.Join(blockers, "; ")),
			map[string]any{"taskId": t.ID, "blockers": blockers}, "blocker"))
	}
	if len(completed) > 0 {
		synthetic = append(synthetic, l.systemActivity(t, now,
			fmt.Sprintf("Task %s milestones completed: %s", t.ID, strings.Join(completed, ", ")),
			map[string]any{"taskId": t.ID, "milestones": completed}, "milestone"))
	}

	if err := l.store.UpdateTask(ctx, t, previous, synthetic); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return store.Task{}, "", errs.NotFound("task", u.ID)
		case errors.Is(err, store.ErrTaskChanged):
			return store.Task{}, "", err
		}
		return store.Task{}, "", errs.Store("update task", err)
	}
	return t, previous, nil
}

// completeMilestones marks the named milestones done and returns the names
// that changed. Unknown names are appended as completed milestones.
func completeMilestones(t *store.Task, names []string, at time.Time) []string {
	var changed []string
	for _, name := range nonEmpty(names) {
		found := false
		for i := range t.Milestones {
			if t.Milestones[i].Name != name {
				continue
			}
			found = true
			if !t.Milestones[i].Completed {
				ts := at
				t.Milestones[i].Completed = true
				t.Milestones[i].CompletedAt = &ts
				changed = append(changed, name)
			}
		}
		if !found {
			ts := at
			t.Milestones = append(t.Milestones, store.Milestone{Name: name, Completed: true, CompletedAt: &ts})
			changed = append(changed, name)
		}
	}
	return changed
}

func (l *Ledger) systemActivity(t store.Task, at time.Time, text string, meta map[string]any, tag string) store.Activity {
	return store.Activity{
		ID:          uuid.NewString(),
		AgentID:     SystemAgentID,
		Activity:    text,
		Metadata:    meta,
		Timestamp:   at,
		ProjectPath: t.ProjectPath,
		Tags:        []string{TaskManagementTag, tag},
	}
}

func (l *Ledger) emitTask(ctx context.Context, typ string, t store.Task, previous, msg string) {
	meta := map[string]any{
		"taskId":   t.ID,
		"status":   t.Status,
		"priority": t.Priority,
		"progress": t.Progress,
	}
	if previous != "" {
		meta["previousStatus"] = previous
	}
	if t.ActualDuration != nil {
		meta["actualDuration"] = *t.ActualDuration
	}
	prio := pipeline.Priority(t.Priority)
	if t.Status == StatusFailed || t.Status == StatusBlocked {
		prio = maxPriority(prio, pipeline.PriorityHigh)
	}
	l.sink.HandleEvent(ctx, pipeline.Event{
		Type:        typ,
		ProjectPath: t.ProjectPath,
		AgentID:     t.AssignedAgent,
		Message:     msg,
		Metadata:    meta,
		Priority:    prio,
		Timestamp:   t.UpdatedAt,
	})
}

var priorityOrder = map[pipeline.Priority]int{
	pipeline.PriorityLow:      1,
	pipeline.PriorityMedium:   2,
	pipeline.PriorityHigh:     3,
	pipeline.PriorityCritical: 4,
}

func maxPriority(a, b pipeline.Priority) pipeline.Priority {
	if priorityOrder[b] > priorityOrder[a] {
		return b
	}
	return a
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GetTask returns one task.
func (l *Ledger) GetTask(ctx context.Context, id string) (store.Task, error) {
	t, ok, err := l.store.GetTask(ctx, id)
	if err != nil {
		return store.Task{}, errs.Store("get task", err)
	}
	if !ok {
		return store.Task{}, errs.NotFound("task", id)
	}
	return t, nil
}

// ListTasks returns tasks matching f.
func (l *Ledger) ListTasks(ctx context.Context, f store.TaskFilter) ([]store.Task, error) {
	tasks, err := l.store.ListTasks(ctx, f)
	if err != nil {
		return nil, errs.Store("list tasks", err)
	}
	return tasks, nil
}

// ActiveTasks returns pending, in-progress and blocked tasks, highest
// priority first and oldest first within a priority.
func (l *Ledger) ActiveTasks(ctx context.Context, projectPath string) ([]store.Task, error) {
	return l.ListTasks(ctx, store.TaskFilter{
		Statuses:    ActiveStatuses,
		ProjectPath: projectPath,
		ByPriority:  true,
	})
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

// MetricsReport is the metrics summary over a timeframe.
type MetricsReport struct {
	Timeframe pipeline.Timeframe `json:"timeframe"`
	Since     time.Time          `json:"since"`
	Until     time.Time          `json:"until"`
	metrics.Summary
}

// MetricsSummary aggregates samples per agent and metric type over the
// timeframe. agentID narrows it to one agent when non-empty.
func (l *Ledger) MetricsSummary(ctx context.Context, timeframe, agentID string) (MetricsReport, error) {
	tf, err := pipeline.ParseTimeframe(timeframe)
	if err != nil {
		return MetricsReport{}, err
	}
	since, until := tf.Window(timeNow().UTC())
	aggs, err := l.store.AggregateMetrics(ctx, store.MetricFilter{AgentID: agentID, Since: since, Until: until})
	if err != nil {
		return MetricsReport{}, errs.Store("aggregate metrics", err)
	}
	return MetricsReport{
		Timeframe: tf,
		Since:     since,
		Until:     until,
		Summary:   l.calc.Summarize(aggs),
	}, nil
}
