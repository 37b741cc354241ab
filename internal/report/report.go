// Package report compiles time-windowed summaries of activities, changes,
// tasks and metrics from the store and renders them as report artifacts.
// It reads the store directly; no daemon is required.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/logger"
	"github.com/anthropic/agentwatch/internal/metrics"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/store"
)

// Report types.
const (
	TypeActivitySummary = "activity_summary"
	TypeCustom          = "custom"
)

// Request selects what Generate compiles. Start and End, when both set,
// replace the timeframe with an explicit window.
type Request struct {
	ProjectPath    string     `json:"projectPath,omitempty"`
	Timeframe      string     `json:"timeframe,omitempty"`
	Format         string     `json:"format,omitempty"`
	IncludeMetrics bool       `json:"includeMetrics,omitempty"`
	Start          *time.Time `json:"start,omitempty"`
	End            *time.Time `json:"end,omitempty"`
}

// Summary holds the headline numbers every format embeds verbatim.
type Summary struct {
	TotalActivities int            `json:"totalActivities"`
	TotalChanges    int            `json:"totalChanges"`
	UniqueAgents    int            `json:"uniqueAgents"`
	ChangesByImpact map[string]int `json:"changesByImpact"`
	ChangesByType   map[string]int `json:"changesByType"`
	TasksTotal      int            `json:"tasksTotal"`
	TasksCompleted  int            `json:"tasksCompleted"`
	CompletionRate  float64        `json:"completionRate"`
	HighRiskChanges int            `json:"highRiskChanges"`
}

// Data is the compiled content of one report.
type Data struct {
	ID           string               `json:"id"`
	ReportType   string               `json:"reportType"`
	ProjectPath  string               `json:"projectPath,omitempty"`
	Timeframe    string               `json:"timeframe,omitempty"`
	WindowStart  time.Time            `json:"windowStart"`
	WindowEnd    time.Time            `json:"windowEnd"`
	GeneratedAt  time.Time            `json:"generatedAt"`
	Summary      Summary              `json:"summary"`
	Activities   []store.Activity     `json:"activities"`
	Changes      []store.ChangeRecord `json:"changes"`
	ActiveAgents []store.AgentSummary `json:"activeAgents"`
	Tasks        []store.Task         `json:"tasks"`
	Metrics      *metrics.Summary     `json:"metrics,omitempty"`
}

// Options configures a Compiler.
type Options struct {
	Store  *store.Store
	Dir    string
	Sink   pipeline.Sink
	Logger *logger.Logger
}

// Compiler builds and persists reports.
type Compiler struct {
	store *store.Store
	dir   string
	sink  pipeline.Sink
	log   *logger.Logger
	calc  *metrics.Calculator
}

// New creates a Compiler writing artifacts under opts.Dir.
func New(opts Options) *Compiler {
	return &Compiler{
		store: opts.Store,
		dir:   opts.Dir,
		sink:  pipeline.OrDiscard(opts.Sink),
		log:   logger.OrNop(opts.Logger),
		calc:  metrics.NewCalculator(),
	}
}

// Dir returns the artifact directory.
func (c *Compiler) Dir() string { return c.dir }

// Generate compiles the requested report, writes its artifact to
// <dir>/<id>_<yyyymmddThhmmss>.<ext> and persists the metadata row.
func (c *Compiler) Generate(ctx context.Context, req Request) (store.GeneratedReport, error) {
	format, err := ParseFormat(req.Format)
	if err != nil {
		return store.GeneratedReport{}, err
	}
	d, err := c.Compile(ctx, req)
	if err != nil {
		return store.GeneratedReport{}, err
	}
	body, err := Render(d, format)
	if err != nil {
		return store.GeneratedReport{}, err
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return store.GeneratedReport{}, fmt.Errorf("create reports dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.%s", d.ID, d.GeneratedAt.Format("20060102T150405"), format.Ext())
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, body, 0644); err != nil {
		return store.GeneratedReport{}, fmt.Errorf("write report artifact: %w", err)
	}

	meta := map[string]any{
		"summary":        d.Summary,
		"includeMetrics": req.IncludeMetrics,
		"sizeBytes":      len(body),
	}
	if d.Timeframe != "" {
		meta["timeframe"] = d.Timeframe
	}
	if format == FormatPDF {
		meta["note"] = pdfNote
	}
	rep := store.GeneratedReport{
		ID:              d.ID,
		ReportType:      d.ReportType,
		ProjectPath:     d.ProjectPath,
		Format:          string(format),
		WindowStart:     d.WindowStart,
		WindowEnd:       d.WindowEnd,
		StorageLocation: path,
		SummaryText:     SummaryText(d.Summary),
		Metadata:        meta,
		CreatedAt:       d.GeneratedAt,
	}
	if err := c.store.InsertReport(ctx, rep); err != nil {
		_ = os.Remove(path)
		return store.GeneratedReport{}, errs.Store("insert report", err)
	}

	c.log.Info("report generated", "report", rep.ID, "format", rep.Format, "path", path,
		"activities", d.Summary.TotalActivities, "changes", d.Summary.TotalChanges)
	c.sink.HandleEvent(ctx, pipeline.Event{
		Type:        pipeline.EventReportGenerated,
		ProjectPath: rep.ProjectPath,
		Message:     fmt.Sprintf("%s report %s generated: %s", rep.Format, rep.ID, rep.SummaryText),
		Metadata: map[string]any{
			"reportId":        rep.ID,
			"format":          rep.Format,
			"storageLocation": path,
		},
		Priority:  pipeline.PriorityLow,
		Timestamp: rep.CreatedAt,
	})
	return rep, nil
}

// window resolves the request to concrete inclusive bounds.
func window(req Request, now time.Time) (tf pipeline.Timeframe, start, end time.Time, err error) {
	if req.Start != nil || req.End != nil {
		if req.Start == nil || req.End == nil {
			return "", time.Time{}, time.Time{}, errs.Validation("custom window needs both start and end")
		}
		start, end = req.Start.UTC(), req.End.UTC()
		if end.Before(start) {
			return "", time.Time{}, time.Time{}, errs.Validation("window end %s is before start %s",
				end.Format(time.RFC3339), start.Format(time.RFC3339))
		}
		return "", start, end, nil
	}
	tf, err = pipeline.ParseTimeframe(req.Timeframe)
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}
	start, end = tf.Window(now)
	return tf, start, end, nil
}

// Compile gathers report data for req without rendering or persisting it.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Data, error) {
	now := timeNow().UTC()
	tf, start, end, err := window(req, now)
	if err != nil {
		return nil, err
	}
	project := req.ProjectPath
	if project != "" {
		abs, err := filepath.Abs(project)
		if err != nil {
			return nil, errs.Validation("projectPath %q: %v", project, err)
		}
		project = abs
	}

	d := &Data{
		ID:          uuid.NewString(),
		ReportType:  TypeActivitySummary,
		ProjectPath: project,
		Timeframe:   string(tf),
		WindowStart: start,
		WindowEnd:   end,
		GeneratedAt: now,
	}
	if tf == "" {
		d.ReportType = TypeCustom
	}

	if d.Activities, err = c.store.ListActivities(ctx, store.ActivityFilter{
		ProjectPath: project, Since: start, Until: end,
	}); err != nil {
		return nil, errs.Store("list activities", err)
	}
	if d.Changes, err = c.store.ListChanges(ctx, store.ChangeFilter{
		ProjectPath: project, Since: start, Until: end,
	}); err != nil {
		return nil, errs.Store("list changes", err)
	}
	if d.ActiveAgents, err = c.store.AgentSummaries(ctx, store.AgentSummaryFilter{
		ProjectPath: project, Since: start, Until: end,
	}); err != nil {
		return nil, errs.Store("agent summaries", err)
	}
	if d.Tasks, err = c.store.ListTasks(ctx, store.TaskFilter{
		ProjectPath: project, Since: start, Until: end,
	}); err != nil {
		return nil, errs.Store("list tasks", err)
	}
	if req.IncludeMetrics {
		aggs, err := c.store.AggregateMetrics(ctx, store.MetricFilter{ProjectPath: project, Since: start, Until: end})
		if err != nil {
			return nil, errs.Store("aggregate metrics", err)
		}
		sum := c.calc.Summarize(aggs)
		d.Metrics = &sum
	}

	d.Summary = summarize(d)
	return d, nil
}

func summarize(d *Data) Summary {
	s := Summary{
		TotalActivities: len(d.Activities),
		TotalChanges:    len(d.Changes),
		ChangesByImpact: map[string]int{},
		ChangesByType:   map[string]int{},
		TasksTotal:      len(d.Tasks),
	}
	agents := map[string]bool{}
	for _, a := range d.Activities {
		agents[a.AgentID] = true
	}
	for _, ch := range d.Changes {
		s.ChangesByImpact[ch.ImpactLevel]++
		s.ChangesByType[ch.ChangeType]++
		if ch.ImpactLevel == "high" || ch.ImpactLevel == "critical" {
			s.HighRiskChanges++
		}
		if ch.AgentID != "" {
			agents[ch.AgentID] = true
		}
	}
	s.UniqueAgents = len(agents)
	for _, t := range d.Tasks {
		if t.Status == "completed" {
			s.TasksCompleted++
		}
	}
	if s.TasksTotal > 0 {
		s.CompletionRate = float64(s.TasksCompleted) / float64(s.TasksTotal)
	}
	return s
}

// SummaryText is the one-line summary stored with every report.
func SummaryText(s Summary) string {
	return fmt.Sprintf("%d activities by %d agents; %d changes (%d high risk); %d/%d tasks completed (%.1f%%)",
		s.TotalActivities, s.UniqueAgents, s.TotalChanges, s.HighRiskChanges,
		s.TasksCompleted, s.TasksTotal, s.CompletionRate*100)
}

// Get returns report metadata by id.
func (c *Compiler) Get(ctx context.Context, id string) (store.GeneratedReport, error) {
	r, ok, err := c.store.GetReport(ctx, id)
	if err != nil {
		return store.GeneratedReport{}, errs.Store("get report", err)
	}
	if !ok {
		return store.GeneratedReport{}, errs.NotFound("report", id)
	}
	return r, nil
}

// ReadArtifact returns a report's metadata and artifact content.
func (c *Compiler) ReadArtifact(ctx context.Context, id string) (store.GeneratedReport, []byte, error) {
	r, err := c.Get(ctx, id)
	if err != nil {
		return store.GeneratedReport{}, nil, err
	}
	body, err := os.ReadFile(r.StorageLocation)
	if err != nil {
		return r, nil, fmt.Errorf("read report artifact %s: %w", r.StorageLocation, err)
	}
	return r, body, nil
}

// ListLatest returns up to n reports, newest first.
func (c *Compiler) ListLatest(ctx context.Context, n int) ([]store.GeneratedReport, error) {
	out, err := c.store.LatestReports(ctx, n)
	if err != nil {
		return nil, errs.Store("list reports", err)
	}
	return out, nil
}

func windowLabel(d *Data) string {
	label := d.WindowStart.Format(time.RFC3339) + " to " + d.WindowEnd.Format(time.RFC3339)
	if d.Timeframe != "" {
		label += " (" + strings.ReplaceAll(d.Timeframe, "_", " ") + ")"
	}
	return label
}
