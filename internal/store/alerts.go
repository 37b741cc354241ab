package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Channel is a named, typed delivery target. Disabled rather than deleted.
type Channel struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Configuration map[string]any `json:"configuration"`
	Enabled       bool           `json:"enabled"`
	CreatedAt     time.Time      `json:"createdAt"`
	LastUsed      *time.Time     `json:"lastUsed,omitempty"`
}

// RuleAction sends through one channel, optionally rendering a template.
type RuleAction struct {
	ChannelID  string `json:"channelId" yaml:"channelId"`
	TemplateID string `json:"templateId,omitempty" yaml:"templateId,omitempty"`
}

// Rule maps conditions on an event to channel actions.
type Rule struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Conditions    map[string]any `json:"conditions"`
	Actions       []RuleAction   `json:"actions"`
	Priority      int            `json:"priority"`
	Enabled       bool           `json:"enabled"`
	CreatedAt     time.Time      `json:"createdAt"`
	LastTriggered *time.Time     `json:"lastTriggered,omitempty"`
	TriggerCount  int            `json:"triggerCount"`
}

// Template is a renderable subject/body pair.
type Template struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	SubjectTemplate string    `json:"subjectTemplate"`
	BodyTemplate    string    `json:"bodyTemplate"`
	Format          string    `json:"format"`
	Variables       []string  `json:"variables"`
	CreatedAt       time.Time `json:"createdAt"`
}

// SentNotification is the audit record of one dispatched action.
type SentNotification struct {
	ID           string         `json:"id"`
	RuleID       string         `json:"ruleId"`
	ChannelID    string         `json:"channelId"`
	EventData    map[string]any `json:"eventData"`
	Status       string         `json:"status"`
	SentAt       time.Time      `json:"sentAt"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// ---------------------------------------------------------------------------
// Channels
// ---------------------------------------------------------------------------

// InsertChannel persists a new channel.
func (s *Store) InsertChannel(ctx context.Context, c Channel) error {
	if c.Configuration == nil {
		c.Configuration = map[string]any{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_channels (id, name, type, configuration_json, enabled, created_at, last_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Type, encodeJSON(c.Configuration), boolInt(c.Enabled), formatTS(c.CreatedAt), nullableTS(c.LastUsed),
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

const channelColumns = `id, name, type, configuration_json, enabled, created_at, last_used`

// GetChannel returns the channel with the given id.
func (s *Store) GetChannel(ctx context.Context, id string) (Channel, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM notification_channels WHERE id = ?`, id)
	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Channel{}, false, nil
	}
	if err != nil {
		return Channel{}, false, fmt.Errorf("get channel: %w", err)
	}
	return c, true, nil
}

// ListChannels returns every channel, oldest first.
func (s *Store) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+channelColumns+` FROM notification_channels ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	out := []Channel{}
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateChannel overwrites a channel's name, configuration and enabled flag.
// It reports whether the channel exists.
func (s *Store) UpdateChannel(ctx context.Context, c Channel) (bool, error) {
	if c.Configuration == nil {
		c.Configuration = map[string]any{}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_channels SET name = ?, configuration_json = ?, enabled = ? WHERE id = ?`,
		c.Name, encodeJSON(c.Configuration), boolInt(c.Enabled), c.ID)
	if err != nil {
		return false, fmt.Errorf("update channel: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteChannel removes a channel and reports whether it existed. Sent
// notifications keep the channel id.
func (s *Store) DeleteChannel(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_channels WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete channel: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// TouchChannel sets a channel's last-used time.
func (s *Store) TouchChannel(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE notification_channels SET last_used = ? WHERE id = ?`, formatTS(at), id); err != nil {
		return fmt.Errorf("touch channel: %w", err)
	}
	return nil
}

func scanChannel(r rowScanner) (Channel, error) {
	var (
		c         Channel
		cfg       string
		enabled   int
		createdAt string
		lastUsed  sql.NullString
	)
	if err := r.Scan(&c.ID, &c.Name, &c.Type, &cfg, &enabled, &createdAt, &lastUsed); err != nil {
		return Channel{}, err
	}
	c.Configuration = map[string]any{}
	decodeJSON(cfg, &c.Configuration)
	c.Enabled = enabled != 0
	c.CreatedAt = parseTS(createdAt)
	c.LastUsed = scanNullTS(lastUsed)
	return c, nil
}

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

const ruleColumns = `id, name, description, conditions_json, actions_json, priority, enabled,
	created_at, last_triggered, trigger_count`

// InsertRule persists a new rule.
func (s *Store) InsertRule(ctx context.Context, r Rule) error {
	if r.Conditions == nil {
		r.Conditions = map[string]any{}
	}
	if r.Actions == nil {
		r.Actions = []RuleAction{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, encodeJSON(r.Conditions), encodeJSON(r.Actions), r.Priority,
		boolInt(r.Enabled), formatTS(r.CreatedAt), nullableTS(r.LastTriggered), r.TriggerCount,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// GetRule returns the rule with the given id.
func (s *Store) GetRule(ctx context.Context, id string) (Rule, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM notification_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Rule{}, false, nil
	}
	if err != nil {
		return Rule{}, false, fmt.Errorf("get rule: %w", err)
	}
	return r, true, nil
}

// ListRules returns rules ordered by priority descending, then creation.
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]Rule, error) {
	var w where
	if enabledOnly {
		w.add("enabled = 1")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM notification_rules`+w.String()+` ORDER BY priority DESC, created_at ASC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	out := []Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetRuleEnabled flips a rule's enabled flag and reports whether it exists.
func (s *Store) SetRuleEnabled(ctx context.Context, id string, enabled bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notification_rules SET enabled = ? WHERE id = ?`, boolInt(enabled), id)
	if err != nil {
		return false, fmt.Errorf("set rule enabled: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteRule removes a rule and reports whether it existed.
func (s *Store) DeleteRule(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_rules WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecordRuleTrigger increments a rule's trigger count and sets last_triggered.
func (s *Store) RecordRuleTrigger(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_rules SET trigger_count = trigger_count + 1, last_triggered = ? WHERE id = ?`,
		formatTS(at), id)
	if err != nil {
		return fmt.Errorf("record rule trigger: %w", err)
	}
	return nil
}

func scanRule(r rowScanner) (Rule, error) {
	var (
		rule                Rule
		conditions, actions string
		enabled             int
		createdAt           string
		lastTriggered       sql.NullString
	)
	err := r.Scan(&rule.ID, &rule.Name, &rule.Description, &conditions, &actions, &rule.Priority,
		&enabled, &createdAt, &lastTriggered, &rule.TriggerCount)
	if err != nil {
		return Rule{}, err
	}
	rule.Conditions = map[string]any{}
	rule.Actions = []RuleAction{}
	decodeJSON(conditions, &rule.Conditions)
	decodeJSON(actions, &rule.Actions)
	rule.Enabled = enabled != 0
	rule.CreatedAt = parseTS(createdAt)
	rule.LastTriggered = scanNullTS(lastTriggered)
	return rule, nil
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

const templateColumns = `id, name, subject_template, body_template, format, variables_json, created_at`

// InsertTemplate persists a new alert template.
func (s *Store) InsertTemplate(ctx context.Context, t Template) error {
	if t.Variables == nil {
		t.Variables = []string{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_templates (`+templateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.SubjectTemplate, t.BodyTemplate, t.Format, encodeJSON(t.Variables), formatTS(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetTemplate returns the template with the given id.
func (s *Store) GetTemplate(ctx context.Context, id string) (Template, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM alert_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, false, nil
	}
	if err != nil {
		return Template{}, false, fmt.Errorf("get template: %w", err)
	}
	return t, true, nil
}

// ListTemplates returns every template, oldest first.
func (s *Store) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM alert_templates ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	out := []Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(r rowScanner) (Template, error) {
	var t Template
	var vars, createdAt string
	if err := r.Scan(&t.ID, &t.Name, &t.SubjectTemplate, &t.BodyTemplate, &t.Format, &vars, &createdAt); err != nil {
		return Template{}, err
	}
	t.Variables = []string{}
	decodeJSON(vars, &t.Variables)
	t.CreatedAt = parseTS(createdAt)
	return t, nil
}

// ---------------------------------------------------------------------------
// Sent notifications
// ---------------------------------------------------------------------------

// InsertSentNotification records the outcome of one dispatched action.
func (s *Store) InsertSentNotification(ctx context.Context, n SentNotification) error {
	if n.EventData == nil {
		n.EventData = map[string]any{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_notifications (id, rule_id, channel_id, event_json, status, sent_at, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RuleID, n.ChannelID, encodeJSON(n.EventData), n.Status, formatTS(n.SentAt), n.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert sent notification: %w", err)
	}
	return nil
}

// SentFilter narrows ListSentNotifications.
type SentFilter struct {
	RuleID    string
	ChannelID string
	Status    string
	Page
}

// ListSentNotifications returns delivery records, newest first.
func (s *Store) ListSentNotifications(ctx context.Context, f SentFilter) ([]SentNotification, error) {
	var w where
	if f.RuleID != "" {
		w.add("rule_id = ?", f.RuleID)
	}
	if f.ChannelID != "" {
		w.add("channel_id = ?", f.ChannelID)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rule_id, channel_id, event_json, status, sent_at, error_message
		 FROM sent_notifications`+w.String()+` ORDER BY sent_at DESC, id ASC`+f.Page.clause(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("query sent notifications: %w", err)
	}
	defer rows.Close()

	out := []SentNotification{}
	for rows.Next() {
		var n SentNotification
		var event, sentAt string
		if err := rows.Scan(&n.ID, &n.RuleID, &n.ChannelID, &event, &n.Status, &sentAt, &n.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan sent notification: %w", err)
		}
		n.EventData = map[string]any{}
		decodeJSON(event, &n.EventData)
		n.SentAt = parseTS(sentAt)
		out = append(out, n)
	}
	return out, rows.Err()
}
