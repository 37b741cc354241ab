package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChangeRecord is one file mutation. Immutable once written.
type ChangeRecord struct {
	ID           string    `json:"id"`
	ProjectPath  string    `json:"projectPath"`
	FilePath     string    `json:"filePath"`
	ChangeType   string    `json:"changeType"`
	ImpactLevel  string    `json:"impactLevel"`
	RiskScore    float64   `json:"riskScore"`
	AgentID      string    `json:"agentId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	FileHash     string    `json:"fileHash"`
	LinesAdded   int       `json:"linesAdded"`
	LinesDeleted int       `json:"linesDeleted"`
	LineCount    int       `json:"lineCount"`
	SizeBefore   int64     `json:"sizeBefore"`
	SizeAfter    int64     `json:"sizeAfter"`
	Complexity   int       `json:"complexity"`
	GitCommit    string    `json:"gitCommit,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// DependencyEdge is a static import relation found in SourceFile.
type DependencyEdge struct {
	ProjectPath string    `json:"projectPath"`
	SourceFile  string    `json:"sourceFile"`
	TargetFile  string    `json:"targetFile"`
	Kind        string    `json:"kind"`
	ChangeID    string    `json:"changeId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ImpactAnalysis is the risk assessment persisted for high and critical changes.
type ImpactAnalysis struct {
	ID                 string    `json:"id"`
	ChangeID           string    `json:"changeId"`
	RiskScore          float64   `json:"riskScore"`
	AffectedComponents []string  `json:"affectedComponents"`
	Recommendations    []string  `json:"recommendations"`
	Timestamp          time.Time `json:"timestamp"`
}

// ChangeFilter narrows change queries. Since and Until are inclusive.
type ChangeFilter struct {
	ProjectPath  string
	AgentID      string
	FilePath     string
	ChangeType   string
	ImpactLevels []string
	Since        time.Time
	Until        time.Time
	Newest       bool
	Page
}

func (f ChangeFilter) where() where {
	var w where
	if f.ProjectPath != "" {
		w.add("project_path = ?", f.ProjectPath)
	}
	if f.AgentID != "" {
		w.add("agent_id = ?", f.AgentID)
	}
	if f.FilePath != "" {
		w.add("file_path = ?", f.FilePath)
	}
	if f.ChangeType != "" {
		w.add("change_type = ?", f.ChangeType)
	}
	if len(f.ImpactLevels) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(f.ImpactLevels)), ", ")
		args := make([]any, len(f.ImpactLevels))
		for i, l := range f.ImpactLevels {
			args[i] = l
		}
		w.add("impact_level IN ("+marks+")", args...)
	}
	if !f.Since.IsZero() {
		w.add("timestamp >= ?", formatTS(f.Since))
	}
	if !f.Until.IsZero() {
		w.add("timestamp <= ?", formatTS(f.Until))
	}
	return w
}

const changeColumns = `id, project_path, file_path, change_type, impact_level, risk_score, agent_id, timestamp,
	file_hash, lines_added, lines_deleted, line_count, size_before, size_after, complexity, git_commit, reason`

// InsertChange writes a change record, replaces the dependency edges of its
// source file, and stores the impact analysis when one is given. The record
// row is written first, all in one transaction. A nil edges slice leaves the
// stored edges untouched; an empty one clears them.
func (s *Store) InsertChange(ctx context.Context, c ChangeRecord, edges []DependencyEdge, analysis *ImpactAnalysis) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO change_records (`+changeColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ProjectPath, c.FilePath, c.ChangeType, c.ImpactLevel, c.RiskScore, c.AgentID,
			formatTS(c.Timestamp), c.FileHash, c.LinesAdded, c.LinesDeleted, c.LineCount,
			c.SizeBefore, c.SizeAfter, c.Complexity, c.GitCommit, c.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert change record: %w", err)
		}

		if edges != nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM dependency_edges WHERE project_path = ? AND source_file = ?`,
				c.ProjectPath, c.FilePath,
			); err != nil {
				return fmt.Errorf("clear dependency edges: %w", err)
			}
		}
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO dependency_edges (project_path, source_file, target_file, kind, change_id, created_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				c.ProjectPath, c.FilePath, e.TargetFile, e.Kind, c.ID, formatTS(c.Timestamp),
			); err != nil {
				return fmt.Errorf("insert dependency edge: %w", err)
			}
		}

		if analysis != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO impact_analyses (id, change_id, risk_score, affected_json, recommendations_json, timestamp)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				analysis.ID, c.ID, analysis.RiskScore, encodeJSON(nonNil(analysis.AffectedComponents)),
				encodeJSON(nonNil(analysis.Recommendations)), formatTS(analysis.Timestamp),
			); err != nil {
				return fmt.Errorf("insert impact analysis: %w", err)
			}
		}
		return nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ListChanges returns change records matching f, oldest first unless f.Newest.
func (s *Store) ListChanges(ctx context.Context, f ChangeFilter) ([]ChangeRecord, error) {
	w := f.where()
	order := " ORDER BY timestamp ASC, id ASC"
	if f.Newest {
		order = " ORDER BY timestamp DESC, id DESC"
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+changeColumns+` FROM change_records`+w.String()+order+f.Page.clause(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("query change records: %w", err)
	}
	defer rows.Close()

	out := []ChangeRecord{}
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change record: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestChangeForFile returns the most recent record for filePath in the project.
func (s *Store) LatestChangeForFile(ctx context.Context, projectPath, filePath string) (ChangeRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+changeColumns+` FROM change_records
		 WHERE project_path = ? AND file_path = ?
		 ORDER BY timestamp DESC, rowid DESC LIMIT 1`,
		projectPath, filePath)
	c, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ChangeRecord{}, false, nil
	}
	if err != nil {
		return ChangeRecord{}, false, fmt.Errorf("latest change for %s: %w", filePath, err)
	}
	return c, true, nil
}

func scanChange(r rowScanner) (ChangeRecord, error) {
	var c ChangeRecord
	var ts string
	err := r.Scan(&c.ID, &c.ProjectPath, &c.FilePath, &c.ChangeType, &c.ImpactLevel, &c.RiskScore, &c.AgentID,
		&ts, &c.FileHash, &c.LinesAdded, &c.LinesDeleted, &c.LineCount, &c.SizeBefore, &c.SizeAfter,
		&c.Complexity, &c.GitCommit, &c.Reason)
	if err != nil {
		return ChangeRecord{}, err
	}
	c.Timestamp = parseTS(ts)
	return c, nil
}

// Dependents returns the distinct source files whose current edges target
// targetFile, sorted by path.
func (s *Store) Dependents(ctx context.Context, projectPath, targetFile string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT source_file FROM dependency_edges
		 WHERE project_path = ? AND target_file = ?
		 ORDER BY source_file`,
		projectPath, targetFile)
	if err != nil {
		return nil, fmt.Errorf("query dependents: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// EdgesFrom returns the current edges whose source is sourceFile.
func (s *Store) EdgesFrom(ctx context.Context, projectPath, sourceFile string) ([]DependencyEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_path, source_file, target_file, kind, change_id, created_at
		 FROM dependency_edges WHERE project_path = ? AND source_file = ?
		 ORDER BY id`,
		projectPath, sourceFile)
	if err != nil {
		return nil, fmt.Errorf("query dependency edges: %w", err)
	}
	defer rows.Close()

	out := []DependencyEdge{}
	for rows.Next() {
		var e DependencyEdge
		var created string
		if err := rows.Scan(&e.ProjectPath, &e.SourceFile, &e.TargetFile, &e.Kind, &e.ChangeID, &created); err != nil {
			return nil, fmt.Errorf("scan dependency edge: %w", err)
		}
		e.CreatedAt = parseTS(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetImpactAnalysis returns the analysis stored for changeID, if any.
func (s *Store) GetImpactAnalysis(ctx context.Context, changeID string) (ImpactAnalysis, bool, error) {
	var (
		a                     ImpactAnalysis
		affected, recommended string
		ts                    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, change_id, risk_score, affected_json, recommendations_json, timestamp
		 FROM impact_analyses WHERE change_id = ?`, changeID,
	).Scan(&a.ID, &a.ChangeID, &a.RiskScore, &affected, &recommended, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return ImpactAnalysis{}, false, nil
	}
	if err != nil {
		return ImpactAnalysis{}, false, fmt.Errorf("get impact analysis: %w", err)
	}
	a.AffectedComponents = []string{}
	a.Recommendations = []string{}
	decodeJSON(affected, &a.AffectedComponents)
	decodeJSON(recommended, &a.Recommendations)
	a.Timestamp = parseTS(ts)
	return a, true, nil
}

// ChangeGroup names a column change records can be grouped by.
type ChangeGroup string

const (
	GroupByType   ChangeGroup = "change_type"
	GroupByAgent  ChangeGroup = "agent_id"
	GroupByPath   ChangeGroup = "file_path"
	GroupByImpact ChangeGroup = "impact_level"
)

// GroupCount is one row of a grouped count.
type GroupCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CountChangesBy groups matching records by the given column, largest group
// first. f.Page limits the number of groups.
func (s *Store) CountChangesBy(ctx context.Context, f ChangeFilter, group ChangeGroup) ([]GroupCount, error) {
	switch group {
	case GroupByType, GroupByAgent, GroupByPath, GroupByImpact:
	default:
		return nil, fmt.Errorf("unsupported change grouping %q", group)
	}
	col := string(group)
	w := f.where()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+col+`, COUNT(*) FROM change_records`+w.String()+
			` GROUP BY `+col+` ORDER BY COUNT(*) DESC, `+col+` ASC`+f.Page.clause(), w.args...)
	if err != nil {
		return nil, fmt.Errorf("group changes by %s: %w", col, err)
	}
	defer rows.Close()

	out := []GroupCount{}
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Key, &g.Count); err != nil {
			return nil, fmt.Errorf("scan change group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountChanges returns the number of records matching f.
func (s *Store) CountChanges(ctx context.Context, f ChangeFilter) (int, error) {
	w := f.where()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_records`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count changes: %w", err)
	}
	return n, nil
}
