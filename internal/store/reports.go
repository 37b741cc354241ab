package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GeneratedReport is the metadata row for a compiled report artifact.
type GeneratedReport struct {
	ID              string         `json:"id"`
	ReportType      string         `json:"reportType"`
	ProjectPath     string         `json:"projectPath,omitempty"`
	Format          string         `json:"format"`
	WindowStart     time.Time      `json:"windowStart"`
	WindowEnd       time.Time      `json:"windowEnd"`
	StorageLocation string         `json:"storageLocation"`
	SummaryText     string         `json:"summaryText"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"createdAt"`
}

const reportColumns = `id, report_type, project_path, format, window_start, window_end, storage_location,
	summary_text, metadata_json, created_at`

// InsertReport persists a report metadata row.
func (s *Store) InsertReport(ctx context.Context, r GeneratedReport) error {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generated_reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ReportType, r.ProjectPath, r.Format, formatTS(r.WindowStart), formatTS(r.WindowEnd),
		r.StorageLocation, r.SummaryText, encodeJSON(r.Metadata), formatTS(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport returns the report with the given id.
func (s *Store) GetReport(ctx context.Context, id string) (GeneratedReport, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM generated_reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GeneratedReport{}, false, nil
	}
	if err != nil {
		return GeneratedReport{}, false, fmt.Errorf("get report: %w", err)
	}
	return r, true, nil
}

// LatestReports returns up to n reports, newest first. n <= 0 returns all.
func (s *Store) LatestReports(ctx context.Context, n int) ([]GeneratedReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM generated_reports ORDER BY created_at DESC, id ASC`+Page{Limit: n}.clause())
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	out := []GeneratedReport{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReport(r rowScanner) (GeneratedReport, error) {
	var (
		rep                 GeneratedReport
		start, end, created string
		meta                string
	)
	err := r.Scan(&rep.ID, &rep.ReportType, &rep.ProjectPath, &rep.Format, &start, &end,
		&rep.StorageLocation, &rep.SummaryText, &meta, &created)
	if err != nil {
		return GeneratedReport{}, err
	}
	rep.WindowStart = parseTS(start)
	rep.WindowEnd = parseTS(end)
	rep.CreatedAt = parseTS(created)
	rep.Metadata = map[string]any{}
	decodeJSON(meta, &rep.Metadata)
	return rep, nil
}
