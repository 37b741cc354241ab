package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Activity is one recorded agent action. Immutable once written.
type Activity struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agentId"`
	Activity    string         `json:"activityText"`
	Metadata    map[string]any `json:"metadata"`
	Timestamp   time.Time      `json:"timestamp"`
	Duration    *float64       `json:"duration,omitempty"`
	ProjectPath string         `json:"projectPath,omitempty"`
	Tags        []string       `json:"tags"`
}

// MetricSample is a derived measurement tied to an agent and activity.
type MetricSample struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agentId"`
	ActivityID string         `json:"activityId,omitempty"`
	MetricType string         `json:"metricType"`
	Value      float64        `json:"value"`
	Timestamp  time.Time      `json:"timestamp"`
	Context    map[string]any `json:"context,omitempty"`
}

// ActivityFilter narrows ListActivities. Since and Until are inclusive.
type ActivityFilter struct {
	AgentID     string
	ProjectPath string
	Since       time.Time
	Until       time.Time
	Newest      bool // order by timestamp descending
	Page
}

// AgentSummary is derived from the activities table on demand.
type AgentSummary struct {
	AgentID       string    `json:"agentId"`
	ActivityCount int       `json:"activityCount"`
	LastSeen      time.Time `json:"lastSeen"`
	LastActivity  string    `json:"lastActivity"`
	ProjectPath   string    `json:"projectPath,omitempty"`
}

// MetricAggregate groups samples by agent and metric type.
type MetricAggregate struct {
	AgentID    string  `json:"agentId"`
	MetricType string  `json:"metricType"`
	Avg        float64 `json:"avg"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Sum        float64 `json:"sum"`
	Count      int     `json:"count"`
}

// InsertActivity writes an activity and its derived metric samples in one
// transaction. The activity row is always written before any sample.
func (s *Store) InsertActivity(ctx context.Context, a Activity, samples []MetricSample) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertActivity(ctx, tx, a); err != nil {
			return err
		}
		for _, m := range samples {
			if err := insertMetricSample(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertActivity(ctx context.Context, q querier, a Activity) error {
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO activities (id, agent_id, activity, metadata_json, timestamp, duration, project_path, tags_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AgentID, a.Activity, encodeJSON(a.Metadata), formatTS(a.Timestamp),
		nullableFloat(a.Duration), a.ProjectPath, encodeJSON(a.Tags),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func insertMetricSample(ctx context.Context, q querier, m MetricSample) error {
	if m.Context == nil {
		m.Context = map[string]any{}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO metric_samples (id, agent_id, activity_id, metric_type, value, timestamp, context_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AgentID, m.ActivityID, m.MetricType, m.Value, formatTS(m.Timestamp), encodeJSON(m.Context),
	)
	if err != nil {
		return fmt.Errorf("insert metric sample: %w", err)
	}
	return nil
}

// ListActivities returns activities matching f, oldest first unless f.Newest.
func (s *Store) ListActivities(ctx context.Context, f ActivityFilter) ([]Activity, error) {
	var w where
	if f.AgentID != "" {
		w.add("agent_id = ?", f.AgentID)
	}
	if f.ProjectPath != "" {
		w.add("project_path = ?", f.ProjectPath)
	}
	if !f.Since.IsZero() {
		w.add("timestamp >= ?", formatTS(f.Since))
	}
	if !f.Until.IsZero() {
		w.add("timestamp <= ?", formatTS(f.Until))
	}
	order := " ORDER BY timestamp ASC, id ASC"
	if f.Newest {
		order = " ORDER BY timestamp DESC, id DESC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, activity, metadata_json, timestamp, duration, project_path, tags_json
		 FROM activities`+w.String()+order+f.Page.clause(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	out := []Activity{}
	for rows.Next() {
		var (
			a          Activity
			meta, tags string
			ts         string
			duration   sql.NullFloat64
		)
		if err := rows.Scan(&a.ID, &a.AgentID, &a.Activity, &meta, &ts, &duration, &a.ProjectPath, &tags); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Metadata = map[string]any{}
		decodeJSON(meta, &a.Metadata)
		decodeJSON(tags, &a.Tags)
		a.Timestamp = parseTS(ts)
		a.Duration = scanNullFloat(duration)
		out = append(out, a)
	}
	return out, rows.Err()
}

// AgentSummaryFilter scopes AgentSummaries. Since and Until are inclusive;
// a zero bound is open.
type AgentSummaryFilter struct {
	Since       time.Time
	Until       time.Time
	ProjectPath string
}

// AgentSummaries returns one row per agent with activity matching f, most
// recently seen first. Count, last activity and project all come from the
// matching rows only.
func (s *Store) AgentSummaries(ctx context.Context, f AgentSummaryFilter) ([]AgentSummary, error) {
	var w where
	if !f.Since.IsZero() {
		w.add("timestamp >= ?", formatTS(f.Since))
	}
	if !f.Until.IsZero() {
		w.add("timestamp <= ?", formatTS(f.Until))
	}
	if f.ProjectPath != "" {
		w.add("project_path = ?", f.ProjectPath)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, n, timestamp, activity, project_path FROM (
		     SELECT agent_id, activity, project_path, timestamp,
		            COUNT(*) OVER (PARTITION BY agent_id) AS n,
		            ROW_NUMBER() OVER (PARTITION BY agent_id ORDER BY timestamp DESC, id DESC) AS rn
		     FROM activities`+w.String()+`
		 )
		 WHERE rn = 1
		 ORDER BY timestamp DESC, agent_id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query agent summaries: %w", err)
	}
	defer rows.Close()

	out := []AgentSummary{}
	for rows.Next() {
		var sum AgentSummary
		var lastSeen string
		if err := rows.Scan(&sum.AgentID, &sum.ActivityCount, &lastSeen, &sum.LastActivity, &sum.ProjectPath); err != nil {
			return nil, fmt.Errorf("scan agent summary: %w", err)
		}
		sum.LastSeen = parseTS(lastSeen)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// MetricFilter narrows metric queries. Since and Until are inclusive.
type MetricFilter struct {
	AgentID    string
	MetricType string
	Since      time.Time
	Until      time.Time
	// ProjectPath restricts samples to those whose activity belongs to the project.
	ProjectPath string
}

func (f MetricFilter) where() where {
	var w where
	if f.AgentID != "" {
		w.add("m.agent_id = ?", f.AgentID)
	}
	if f.MetricType != "" {
		w.add("m.metric_type = ?", f.MetricType)
	}
	if !f.Since.IsZero() {
		w.add("m.timestamp >= ?", formatTS(f.Since))
	}
	if !f.Until.IsZero() {
		w.add("m.timestamp <= ?", formatTS(f.Until))
	}
	if f.ProjectPath != "" {
		w.add("m.activity_id IN (SELECT id FROM activities WHERE project_path = ?)", f.ProjectPath)
	}
	return w
}

// ListMetricSamples returns samples oldest first.
func (s *Store) ListMetricSamples(ctx context.Context, f MetricFilter) ([]MetricSample, error) {
	w := f.where()
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.agent_id, m.activity_id, m.metric_type, m.value, m.timestamp, m.context_json
		 FROM metric_samples m`+w.String()+` ORDER BY m.timestamp ASC, m.id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query metric samples: %w", err)
	}
	defer rows.Close()

	out := []MetricSample{}
	for rows.Next() {
		var m MetricSample
		var ts, ctxJSON string
		if err := rows.Scan(&m.ID, &m.AgentID, &m.ActivityID, &m.MetricType, &m.Value, &ts, &ctxJSON); err != nil {
			return nil, fmt.Errorf("scan metric sample: %w", err)
		}
		m.Timestamp = parseTS(ts)
		decodeJSON(ctxJSON, &m.Context)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AggregateMetrics groups samples by agent and metric type.
func (s *Store) AggregateMetrics(ctx context.Context, f MetricFilter) ([]MetricAggregate, error) {
	w := f.where()
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.agent_id, m.metric_type, AVG(m.value), MIN(m.value), MAX(m.value), SUM(m.value), COUNT(*)
		 FROM metric_samples m`+w.String()+`
		 GROUP BY m.agent_id, m.metric_type
		 ORDER BY m.agent_id ASC, m.metric_type ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate metrics: %w", err)
	}
	defer rows.Close()

	out := []MetricAggregate{}
	for rows.Next() {
		var a MetricAggregate
		if err := rows.Scan(&a.AgentID, &a.MetricType, &a.Avg, &a.Min, &a.Max, &a.Sum, &a.Count); err != nil {
			return nil, fmt.Errorf("scan metric aggregate: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
