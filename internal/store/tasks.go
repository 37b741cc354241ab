package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Task is a unit of planned work tracked by the ledger.
type Task struct {
	ID                string      `json:"id"`
	Description       string      `json:"description"`
	Priority          string      `json:"priority"`
	Status            string      `json:"status"`
	AssignedAgent     string      `json:"assignedAgent,omitempty"`
	ProjectPath       string      `json:"projectPath,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
	EstimatedDuration *float64    `json:"estimatedDuration,omitempty"`
	ActualDuration    *float64    `json:"actualDuration,omitempty"`
	Progress          int         `json:"progress"`
	Dependencies      []string    `json:"dependencies"`
	Milestones        []Milestone `json:"milestones"`
	Notes             string      `json:"notes,omitempty"`
}

// Milestone is a named checkpoint inside a task.
type Milestone struct {
	Name        string     `json:"name"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// TaskFilter narrows ListTasks. Since and Until bound created_at inclusively.
type TaskFilter struct {
	Statuses      []string
	AssignedAgent string
	ProjectPath   string
	Since         time.Time
	Until         time.Time
	// ByPriority orders by priority descending, then creation ascending.
	// Otherwise tasks come newest first.
	ByPriority bool
	Page
}

var priorityRank = map[string]int{
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

const taskColumns = `id, description, priority, status, assigned_agent, project_path, created_at, updated_at,
	estimated_duration, actual_duration, progress, dependencies_json, milestones_json, notes`

// InsertTask persists a new task.
func (s *Store) InsertTask(ctx context.Context, t Task) error {
	if t.Dependencies == nil {
		t.Dependencies = []string{}
	}
	if t.Milestones == nil {
		t.Milestones = []Milestone{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`, priority_rank)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, t.Priority, t.Status, t.AssignedAgent, t.ProjectPath,
		formatTS(t.CreatedAt), formatTS(t.UpdatedAt),
		nullableFloat(t.EstimatedDuration), nullableFloat(t.ActualDuration), t.Progress,
		encodeJSON(t.Dependencies), encodeJSON(t.Milestones), t.Notes,
		priorityRank[t.Priority],
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// ErrTaskChanged is returned by UpdateTask when the stored status no longer
// matches the status the caller read.
var ErrTaskChanged = errors.New("task status changed concurrently")

// UpdateTask overwrites the mutable task columns and records any synthetic
// activities in the same transaction. The row is only written while its
// status is still fromStatus; otherwise ErrTaskChanged (or sql.ErrNoRows
// when the task is gone) is returned and nothing is written.
func (s *Store) UpdateTask(ctx context.Context, t Task, fromStatus string, activities []Activity) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ?, actual_duration = ?, progress = ?,
			        milestones_json = ?, notes = ?
			 WHERE id = ? AND status = ?`,
			t.Status, formatTS(t.UpdatedAt), nullableFloat(t.ActualDuration), t.Progress,
			encodeJSON(t.Milestones), t.Notes, t.ID, fromStatus,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, t.ID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("update task: %w", err)
			}
			if exists == 0 {
				return fmt.Errorf("update task %s: %w", t.ID, sql.ErrNoRows)
			}
			return fmt.Errorf("update task %s: %w", t.ID, ErrTaskChanged)
		}
		for _, a := range activities {
			if err := insertActivity(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetTask returns the task with the given id. The bool is false when no such
// task exists.
func (s *Store) GetTask(ctx context.Context, id string) (Task, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, fmt.Errorf("get task: %w", err)
	}
	return t, true, nil
}

// ListTasks returns tasks matching f.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	var w where
	if len(f.Statuses) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(f.Statuses)), ", ")
		args := make([]any, len(f.Statuses))
		for i, st := range f.Statuses {
			args[i] = st
		}
		w.add("status IN ("+marks+")", args...)
	}
	if f.AssignedAgent != "" {
		w.add("assigned_agent = ?", f.AssignedAgent)
	}
	if f.ProjectPath != "" {
		w.add("project_path = ?", f.ProjectPath)
	}
	if !f.Since.IsZero() {
		w.add("created_at >= ?", formatTS(f.Since))
	}
	if !f.Until.IsZero() {
		w.add("created_at <= ?", formatTS(f.Until))
	}
	order := " ORDER BY created_at DESC, id ASC"
	if f.ByPriority {
		order = " ORDER BY priority_rank DESC, created_at ASC, id ASC"
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks`+w.String()+order+f.Page.clause(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (Task, error) {
	var (
		t                    Task
		createdAt, updatedAt string
		estimated, actual    sql.NullFloat64
		deps, milestones     string
	)
	err := r.Scan(&t.ID, &t.Description, &t.Priority, &t.Status, &t.AssignedAgent, &t.ProjectPath,
		&createdAt, &updatedAt, &estimated, &actual, &t.Progress, &deps, &milestones, &t.Notes)
	if err != nil {
		return Task{}, err
	}
	t.CreatedAt = parseTS(createdAt)
	t.UpdatedAt = parseTS(updatedAt)
	t.EstimatedDuration = scanNullFloat(estimated)
	t.ActualDuration = scanNullFloat(actual)
	t.Dependencies = []string{}
	t.Milestones = []Milestone{}
	decodeJSON(deps, &t.Dependencies)
	decodeJSON(milestones, &t.Milestones)
	return t, nil
}

// TaskStatusCounts returns the number of tasks per status created within
// [since, until].
func (s *Store) TaskStatusCounts(ctx context.Context, since, until time.Time, projectPath string) (map[string]int, error) {
	var w where
	w.add("created_at >= ?", formatTS(since))
	w.add("created_at <= ?", formatTS(until))
	if projectPath != "" {
		w.add("project_path = ?", projectPath)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks`+w.String()+` GROUP BY status`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
