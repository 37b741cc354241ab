package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropic/agentwatch/internal/alerting"
	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/store"
)

var baseTime = time.Date(2026, 2, 9, 12, 0, 0, 0, time.UTC)

type recorder struct{ events []pipeline.Event }

func (r *recorder) HandleEvent(_ context.Context, e pipeline.Event) { r.events = append(r.events, e) }

// setupCompiler creates a store seeded around baseTime and pins the clock.
func setupCompiler(t *testing.T) (*Compiler, *store.Store, *recorder) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	timeNow = func() time.Time { return baseTime }
	t.Cleanup(func() { timeNow = time.Now })

	rec := &recorder{}
	return New(Options{Store: s, Dir: filepath.Join(dir, "reports"), Sink: rec}), s, rec
}

func addActivity(t *testing.T, s *store.Store, id, agent string, at time.Time) {
	t.Helper()
	err := s.InsertActivity(context.Background(), store.Activity{
		ID: id, AgentID: agent, Activity: "work " + id, Timestamp: at,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
}

func addChange(t *testing.T, s *store.Store, id, file, typ, impact string, at time.Time) {
	t.Helper()
	err := s.InsertChange(context.Background(), store.ChangeRecord{
		ID: id, ProjectPath: "/p", FilePath: file, ChangeType: typ, ImpactLevel: impact,
		AgentID: "agent-a", Timestamp: at,
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
}

func addTask(t *testing.T, s *store.Store, id, status string, at time.Time) {
	t.Helper()
	err := s.InsertTask(context.Background(), store.Task{
		ID: id, Description: id, Priority: "medium", Status: status, CreatedAt: at, UpdatedAt: at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

// seedWindow writes rows inside and just outside the last_day window.
func seedWindow(t *testing.T, s *store.Store) {
	t.Helper()
	start := baseTime.Add(-24 * time.Hour)
	addActivity(t, s, "a-edge", "agent-a", start)
	addActivity(t, s, "a-mid", "agent-b", baseTime.Add(-time.Hour))
	addActivity(t, s, "a-now", "agent-a", baseTime)
	addActivity(t, s, "a-old", "agent-c", start.Add(-time.Second))

	addChange(t, s, "c1", "config/prod.yaml", "delete", "high", start)
	addChange(t, s, "c2", "src/a.go", "modify", "low", baseTime.Add(-2*time.Hour))
	addChange(t, s, "c3", "src/b.go", "create", "critical", baseTime.Add(-3*time.Hour))
	addChange(t, s, "c-old", "src/c.go", "modify", "high", start.Add(-time.Second))

	addTask(t, s, "t1", "completed", baseTime.Add(-5*time.Hour))
	addTask(t, s, "t2", "in_progress", baseTime.Add(-4*time.Hour))
	addTask(t, s, "t-old", "completed", start.Add(-time.Second))
}

// ---------------------------------------------------------------------------
// Compile
// ---------------------------------------------------------------------------

func TestCompileLastDayBoundary(t *testing.T) {
	c, s, _ := setupCompiler(t)
	seedWindow(t, s)

	d, err := c.Compile(context.Background(), Request{Timeframe: "last_day"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !d.WindowStart.Equal(baseTime.Add(-24*time.Hour)) || !d.WindowEnd.Equal(baseTime) {
		t.Errorf("window = [%s, %s]", d.WindowStart, d.WindowEnd)
	}
	for _, a := range d.Activities {
		if a.ID == "a-old" {
			t.Error("activity at T-24h-1s included")
		}
	}
	sum := d.Summary
	if sum.TotalActivities != 3 {
		t.Errorf("TotalActivities = %d, want 3", sum.TotalActivities)
	}
	if sum.TotalChanges != 3 {
		t.Errorf("TotalChanges = %d, want 3", sum.TotalChanges)
	}
	if sum.HighRiskChanges != 2 {
		t.Errorf("HighRiskChanges = %d, want 2", sum.HighRiskChanges)
	}
	if sum.UniqueAgents != 2 {
		t.Errorf("UniqueAgents = %d, want 2", sum.UniqueAgents)
	}
	if sum.ChangesByImpact["high"] != 1 || sum.ChangesByImpact["critical"] != 1 || sum.ChangesByImpact["low"] != 1 {
		t.Errorf("ChangesByImpact = %v", sum.ChangesByImpact)
	}
	if sum.ChangesByType["delete"] != 1 || sum.ChangesByType["modify"] != 1 {
		t.Errorf("ChangesByType = %v", sum.ChangesByType)
	}
	if sum.TasksTotal != 2 || sum.TasksCompleted != 1 || sum.CompletionRate != 0.5 {
		t.Errorf("tasks = %d/%d rate %v", sum.TasksCompleted, sum.TasksTotal, sum.CompletionRate)
	}
	if len(d.ActiveAgents) != 2 {
		t.Errorf("ActiveAgents = %d, want 2", len(d.ActiveAgents))
	}
	if d.Metrics != nil {
		t.Error("metrics included without IncludeMetrics")
	}
}

func TestCompileCustomWindow(t *testing.T) {
	c, s, _ := setupCompiler(t)
	seedWindow(t, s)

	start := baseTime.Add(-90 * time.Minute)
	end := baseTime.Add(-30 * time.Minute)
	d, err := c.Compile(context.Background(), Request{Start: &start, End: &end})
	if err != nil {
		t.Fatal(err)
	}
	if d.ReportType != TypeCustom || d.Summary.TotalActivities != 1 {
		t.Errorf("type = %s, activities = %d", d.ReportType, d.Summary.TotalActivities)
	}

	if _, err := c.Compile(context.Background(), Request{Start: &end, End: &start}); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("reversed window err = %v", err)
	}
	if _, err := c.Compile(context.Background(), Request{Start: &start}); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("half window err = %v", err)
	}
}

func TestCompilePastWindowKeepsAgentsActiveLater(t *testing.T) {
	c, s, _ := setupCompiler(t)
	addActivity(t, s, "inside", "agent-a", baseTime.Add(-36*time.Hour))
	addActivity(t, s, "later", "agent-a", baseTime.Add(-time.Hour))
	addActivity(t, s, "other", "agent-b", baseTime.Add(-30*time.Hour))

	start := baseTime.Add(-48 * time.Hour)
	end := baseTime.Add(-24 * time.Hour)
	d, err := c.Compile(context.Background(), Request{Start: &start, End: &end})
	if err != nil {
		t.Fatal(err)
	}
	if d.Summary.TotalActivities != 2 || d.Summary.UniqueAgents != 2 {
		t.Errorf("activities = %d, agents = %d; want 2 and 2", d.Summary.TotalActivities, d.Summary.UniqueAgents)
	}
	if len(d.ActiveAgents) != 2 {
		t.Fatalf("ActiveAgents = %+v, want agent-b and agent-a", d.ActiveAgents)
	}
	a := d.ActiveAgents[1]
	if a.AgentID != "agent-a" || a.ActivityCount != 1 || a.LastActivity != "work inside" || !a.LastSeen.Equal(baseTime.Add(-36*time.Hour)) {
		t.Errorf("agent-a summary = %+v, want only its in-window activity", a)
	}
}

func TestCompileEmptyStore(t *testing.T) {
	c, _, _ := setupCompiler(t)
	d, err := c.Compile(context.Background(), Request{Timeframe: "last_week", IncludeMetrics: true})
	if err != nil {
		t.Fatal(err)
	}
	if d.Summary.TotalActivities != 0 || d.Summary.CompletionRate != 0 || d.Metrics == nil {
		t.Errorf("summary = %+v, metrics = %v", d.Summary, d.Metrics)
	}
}

func TestCompileUnknownTimeframe(t *testing.T) {
	c, _, _ := setupCompiler(t)
	_, err := c.Compile(context.Background(), Request{Timeframe: "last_century"})
	if !errors.Is(err, errs.ErrInvalidState) {
		t.Errorf("err = %v, want invalid state", err)
	}
}

// ---------------------------------------------------------------------------
// Generate
// ---------------------------------------------------------------------------

func TestGenerateFormats(t *testing.T) {
	cases := []struct {
		format string
		ext    string
		want   []string
	}{
		{"json", ".json", []string{`"totalActivities": 3`, `"highRiskChanges": 2`}},
		{"text", ".txt", []string{"Activities:          3", "High risk changes:   2", "1/2 (50.0%)"}},
		{"markdown", ".md", []string{"| Activities | 3 |", "| High risk changes | 2 |"}},
		{"html", ".html", []string{"<td>3</td>", "config/prod.yaml"}},
		{"pdf", ".pdf.html", []string{pdfNote, "<td>3</td>"}},
	}
	for _, tc := range cases {
		t.Run(tc.format, func(t *testing.T) {
			c, s, rec := setupCompiler(t)
			seedWindow(t, s)

			rep, err := c.Generate(context.Background(), Request{Timeframe: "last_day", Format: tc.format})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			wantName := rep.ID + "_20260209T120000" + tc.ext
			if filepath.Base(rep.StorageLocation) != wantName {
				t.Errorf("artifact = %s, want %s", filepath.Base(rep.StorageLocation), wantName)
			}
			body, err := os.ReadFile(rep.StorageLocation)
			if err != nil {
				t.Fatal(err)
			}
			for _, w := range tc.want {
				if !strings.Contains(string(body), w) {
					t.Errorf("artifact missing %q", w)
				}
			}
			if rep.Format != tc.format || rep.SummaryText == "" {
				t.Errorf("report = %+v", rep)
			}
			if len(rec.events) != 1 || rec.events[0].Type != pipeline.EventReportGenerated {
				t.Errorf("events = %+v", rec.events)
			}

			got, err := c.Get(context.Background(), rep.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.StorageLocation != rep.StorageLocation || !got.WindowEnd.Equal(baseTime) {
				t.Errorf("Get = %+v", got)
			}
		})
	}
}

func TestGenerateJSONIsMachineReadable(t *testing.T) {
	c, s, _ := setupCompiler(t)
	seedWindow(t, s)
	rep, err := c.Generate(context.Background(), Request{Format: "json", IncludeMetrics: true})
	if err != nil {
		t.Fatal(err)
	}
	_, body, err := c.ReadArtifact(context.Background(), rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	var d Data
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatalf("artifact is not JSON: %v", err)
	}
	if d.ID != rep.ID || d.Summary.TotalChanges != 3 || d.Timeframe != "last_day" {
		t.Errorf("decoded = %+v", d.Summary)
	}
}

func TestGenerateUnknownFormat(t *testing.T) {
	c, _, _ := setupCompiler(t)
	_, err := c.Generate(context.Background(), Request{Format: "docx"})
	if !errors.Is(err, errs.ErrInvalidState) {
		t.Errorf("err = %v, want invalid state", err)
	}
}

func TestGetNotFound(t *testing.T) {
	c, _, _ := setupCompiler(t)
	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestListLatest(t *testing.T) {
	c, _, _ := setupCompiler(t)
	var ids []string
	for i := 0; i < 3; i++ {
		timeNow = func() time.Time { return baseTime.Add(time.Duration(i) * time.Minute) }
		rep, err := c.Generate(context.Background(), Request{Format: "text"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, rep.ID)
	}
	got, err := c.ListLatest(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != ids[2] || got[1].ID != ids[1] {
		t.Errorf("ListLatest = %v, want [%s %s]", got, ids[2], ids[1])
	}
}

func TestScheduleGeneratesUntilCancelled(t *testing.T) {
	c, _, _ := setupCompiler(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Schedule(ctx, 10*time.Millisecond, Request{Timeframe: "last_day", Format: "text"})
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := c.ListLatest(context.Background(), 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scheduled reports = %d, want at least 2", len(got))
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Schedule did not return after cancel")
	}

	// A zero interval disables scheduling.
	c.Schedule(context.Background(), 0, Request{})
}

// ---------------------------------------------------------------------------
// GenerateFromTemplate
// ---------------------------------------------------------------------------

func TestGenerateFromTemplate(t *testing.T) {
	ctx := context.Background()
	c, s, _ := setupCompiler(t)
	seedWindow(t, s)

	tpl := store.Template{
		ID:              "tpl-1",
		Name:            "daily",
		SubjectTemplate: "Daily report for {{team}}",
		BodyTemplate:    "{{summary.totalActivities}} activities, {{summary.totalChanges}} changes, {{summary.highRiskChanges}} high risk, {{summary.completionRate}} done, window {{report.window}}",
		Format:          alerting.FormatText,
		CreatedAt:       baseTime,
	}
	if err := s.InsertTemplate(ctx, tpl); err != nil {
		t.Fatal(err)
	}

	out, err := c.GenerateFromTemplate(ctx, "tpl-1", Request{Timeframe: "last_day"}, alerting.Vars{"team": "platform", "summary.totalActivities": "999"})
	if err != nil {
		t.Fatalf("GenerateFromTemplate: %v", err)
	}
	if out.Subject != "Daily report for platform" {
		t.Errorf("subject = %q", out.Subject)
	}
	want := "3 activities, 3 changes, 2 high risk, 50.0% done, window 2026-02-08T12:00:00Z to 2026-02-09T12:00:00Z (last day)"
	if out.Body != want {
		t.Errorf("body = %q\nwant %q", out.Body, want)
	}

	if _, err := c.GenerateFromTemplate(ctx, "missing", Request{}, nil); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", FormatJSON, true},
		{"HTML", FormatHTML, true},
		{"pdf", FormatPDF, true},
		{"xml", "", false},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestOrderedKeys(t *testing.T) {
	got := orderedKeys(map[string]int{"low": 1, "weird": 1, "critical": 2, "alpha": 1}, impactOrder)
	want := "critical,low,alpha,weird"
	if strings.Join(got, ",") != want {
		t.Errorf("orderedKeys = %v, want %s", got, want)
	}
}
