package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MonitoringSession is a watch configuration over a project tree. The live
// watcher it drives is held in process memory only.
type MonitoringSession struct {
	ID                 string         `json:"id"`
	ProjectPath        string         `json:"projectPath"`
	WatchPatterns      []string       `json:"watchPatterns"`
	NotificationConfig map[string]any `json:"notificationConfig"`
	Thresholds         map[string]any `json:"thresholds"`
	Status             string         `json:"status"`
	CreatedAt          time.Time      `json:"createdAt"`
	LastActivity       *time.Time     `json:"lastActivity,omitempty"`
}

const sessionColumns = `id, project_path, watch_patterns_json, notification_config_json, thresholds_json,
	status, created_at, last_activity`

// InsertSession persists a new monitoring session.
func (s *Store) InsertSession(ctx context.Context, m MonitoringSession) error {
	if m.WatchPatterns == nil {
		m.WatchPatterns = []string{}
	}
	if m.NotificationConfig == nil {
		m.NotificationConfig = map[string]any{}
	}
	if m.Thresholds == nil {
		m.Thresholds = map[string]any{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO monitoring_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectPath, encodeJSON(m.WatchPatterns), encodeJSON(m.NotificationConfig),
		encodeJSON(m.Thresholds), m.Status, formatTS(m.CreatedAt), nullableTS(m.LastActivity),
	)
	if err != nil {
		return fmt.Errorf("insert monitoring session: %w", err)
	}
	return nil
}

// GetSession returns the session with the given id.
func (s *Store) GetSession(ctx context.Context, id string) (MonitoringSession, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM monitoring_sessions WHERE id = ?`, id)
	m, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MonitoringSession{}, false, nil
	}
	if err != nil {
		return MonitoringSession{}, false, fmt.Errorf("get monitoring session: %w", err)
	}
	return m, true, nil
}

// ListSessions returns sessions, optionally filtered by status, oldest first.
func (s *Store) ListSessions(ctx context.Context, status string) ([]MonitoringSession, error) {
	var w where
	if status != "" {
		w.add("status = ?", status)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM monitoring_sessions`+w.String()+` ORDER BY created_at ASC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query monitoring sessions: %w", err)
	}
	defer rows.Close()

	out := []MonitoringSession{}
	for rows.Next() {
		m, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitoring session: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetSessionStatus updates the status of a session.
func (s *Store) SetSessionStatus(ctx context.Context, id, status string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE monitoring_sessions SET status = ? WHERE id = ?`, status, id); err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	return nil
}

// TouchSession records watcher activity on a session.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE monitoring_sessions SET last_activity = ? WHERE id = ?`, formatTS(at), id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func scanSession(r rowScanner) (MonitoringSession, error) {
	var (
		m                    MonitoringSession
		patterns, notif, thr string
		createdAt            string
		lastActivity         sql.NullString
	)
	err := r.Scan(&m.ID, &m.ProjectPath, &patterns, &notif, &thr, &m.Status, &createdAt, &lastActivity)
	if err != nil {
		return MonitoringSession{}, err
	}
	m.WatchPatterns = []string{}
	m.NotificationConfig = map[string]any{}
	m.Thresholds = map[string]any{}
	decodeJSON(patterns, &m.WatchPatterns)
	decodeJSON(notif, &m.NotificationConfig)
	decodeJSON(thr, &m.Thresholds)
	m.CreatedAt = parseTS(createdAt)
	m.LastActivity = scanNullTS(lastActivity)
	return m, nil
}
