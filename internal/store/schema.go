package store

// schemaVersion is the current schema version. Increment when adding migrations.
const schemaVersion = 2

// migrations maps version numbers to SQL statements that bring the schema
// from (version-1) to (version). Version 1 is the initial schema.
var migrations = map[int]string{
	1: `
-- Activity Ledger.
CREATE TABLE IF NOT EXISTS activities (
	id            TEXT PRIMARY KEY,
	agent_id      TEXT NOT NULL,
	activity      TEXT NOT NULL,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	timestamp     TEXT NOT NULL,
	duration      REAL,
	project_path  TEXT NOT NULL DEFAULT '',
	tags_json     TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_activities_agent ON activities(agent_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_activities_project ON activities(project_path);
CREATE INDEX IF NOT EXISTS idx_activities_timestamp ON activities(timestamp);

CREATE TABLE IF NOT EXISTS tasks (
	id                 TEXT PRIMARY KEY,
	description        TEXT    NOT NULL,
	priority           TEXT    NOT NULL,
	priority_rank      INTEGER NOT NULL,
	status             TEXT    NOT NULL,
	assigned_agent     TEXT    NOT NULL DEFAULT '',
	project_path       TEXT    NOT NULL DEFAULT '',
	created_at         TEXT    NOT NULL,
	updated_at         TEXT    NOT NULL,
	estimated_duration REAL,
	actual_duration    REAL,
	progress           INTEGER NOT NULL DEFAULT 0,
	dependencies_json  TEXT    NOT NULL DEFAULT '[]',
	milestones_json    TEXT    NOT NULL DEFAULT '[]',
	notes              TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);

CREATE TABLE IF NOT EXISTS metric_samples (
	id           TEXT PRIMARY KEY,
	agent_id     TEXT NOT NULL,
	activity_id  TEXT NOT NULL DEFAULT '',
	metric_type  TEXT NOT NULL,
	value        REAL NOT NULL,
	timestamp    TEXT NOT NULL,
	context_json TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_metric_samples_agent ON metric_samples(agent_id, metric_type);
CREATE INDEX IF NOT EXISTS idx_metric_samples_timestamp ON metric_samples(timestamp);

-- Change Analyzer.
CREATE TABLE IF NOT EXISTS change_records (
	id            TEXT PRIMARY KEY,
	project_path  TEXT    NOT NULL,
	file_path     TEXT    NOT NULL,
	change_type   TEXT    NOT NULL,
	impact_level  TEXT    NOT NULL,
	risk_score    REAL    NOT NULL DEFAULT 0,
	agent_id      TEXT    NOT NULL DEFAULT '',
	timestamp     TEXT    NOT NULL,
	file_hash     TEXT    NOT NULL DEFAULT '',
	lines_added   INTEGER NOT NULL DEFAULT 0,
	lines_deleted INTEGER NOT NULL DEFAULT 0,
	line_count    INTEGER NOT NULL DEFAULT 0,
	size_before   INTEGER NOT NULL DEFAULT 0,
	size_after    INTEGER NOT NULL DEFAULT 0,
	complexity    INTEGER NOT NULL DEFAULT 0,
	git_commit    TEXT    NOT NULL DEFAULT '',
	reason        TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_change_records_project ON change_records(project_path, timestamp);
CREATE INDEX IF NOT EXISTS idx_change_records_file ON change_records(file_path, timestamp);
CREATE INDEX IF NOT EXISTS idx_change_records_timestamp ON change_records(timestamp);

CREATE TABLE IF NOT EXISTS dependency_edges (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	project_path TEXT NOT NULL,
	source_file  TEXT NOT NULL,
	target_file  TEXT NOT NULL,
	kind         TEXT NOT NULL,
	change_id    TEXT NOT NULL REFERENCES change_records(id),
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dependency_edges_source ON dependency_edges(project_path, source_file);
CREATE INDEX IF NOT EXISTS idx_dependency_edges_target ON dependency_edges(project_path, target_file);

CREATE TABLE IF NOT EXISTS impact_analyses (
	id                   TEXT PRIMARY KEY,
	change_id            TEXT NOT NULL REFERENCES change_records(id),
	risk_score           REAL NOT NULL,
	affected_json        TEXT NOT NULL DEFAULT '[]',
	recommendations_json TEXT NOT NULL DEFAULT '[]',
	timestamp            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_impact_analyses_change ON impact_analyses(change_id);

CREATE TABLE IF NOT EXISTS monitoring_sessions (
	id                       TEXT PRIMARY KEY,
	project_path             TEXT NOT NULL,
	watch_patterns_json      TEXT NOT NULL DEFAULT '[]',
	notification_config_json TEXT NOT NULL DEFAULT '{}',
	thresholds_json          TEXT NOT NULL DEFAULT '{}',
	status                   TEXT NOT NULL,
	created_at               TEXT NOT NULL,
	last_activity            TEXT
);

CREATE INDEX IF NOT EXISTS idx_monitoring_sessions_status ON monitoring_sessions(status);

-- Key-value store for daemon metadata (schema version, inbox offset, etc).
CREATE TABLE IF NOT EXISTS daemon_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
`,

	2: `
-- Alerting Engine.
CREATE TABLE IF NOT EXISTS notification_channels (
	id                 TEXT PRIMARY KEY,
	name               TEXT    NOT NULL,
	type               TEXT    NOT NULL,
	configuration_json TEXT    NOT NULL DEFAULT '{}',
	enabled            INTEGER NOT NULL DEFAULT 1,
	created_at         TEXT    NOT NULL,
	last_used          TEXT
);

CREATE TABLE IF NOT EXISTS alert_templates (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	subject_template TEXT NOT NULL DEFAULT '',
	body_template    TEXT NOT NULL DEFAULT '',
	format           TEXT NOT NULL DEFAULT 'text',
	variables_json   TEXT NOT NULL DEFAULT '[]',
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_rules (
	id              TEXT PRIMARY KEY,
	name            TEXT    NOT NULL,
	description     TEXT    NOT NULL DEFAULT '',
	conditions_json TEXT    NOT NULL DEFAULT '{}',
	actions_json    TEXT    NOT NULL DEFAULT '[]',
	priority        INTEGER NOT NULL DEFAULT 0,
	enabled         INTEGER NOT NULL DEFAULT 1,
	created_at      TEXT    NOT NULL,
	last_triggered  TEXT,
	trigger_count   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notification_rules_enabled ON notification_rules(enabled, priority);

CREATE TABLE IF NOT EXISTS sent_notifications (
	id            TEXT PRIMARY KEY,
	rule_id       TEXT NOT NULL DEFAULT '',
	channel_id    TEXT NOT NULL,
	event_json    TEXT NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL,
	sent_at       TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sent_notifications_rule ON sent_notifications(rule_id);
CREATE INDEX IF NOT EXISTS idx_sent_notifications_sent ON sent_notifications(sent_at);

-- Report Compiler.
CREATE TABLE IF NOT EXISTS generated_reports (
	id               TEXT PRIMARY KEY,
	report_type      TEXT NOT NULL,
	project_path     TEXT NOT NULL DEFAULT '',
	format           TEXT NOT NULL,
	window_start     TEXT NOT NULL,
	window_end       TEXT NOT NULL,
	storage_location TEXT NOT NULL,
	summary_text     TEXT NOT NULL DEFAULT '',
	metadata_json    TEXT NOT NULL DEFAULT '{}',
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_generated_reports_created ON generated_reports(created_at);
`,
}
