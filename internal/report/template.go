package report

import (
	"context"
	"fmt"
	"strconv"

	"github.com/anthropic/agentwatch/internal/alerting"
	"github.com/anthropic/agentwatch/internal/errs"
)

// Rendered is a report rendered through an alert template.
type Rendered struct {
	TemplateID string `json:"templateId"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Format     string `json:"format"`
	Data       *Data  `json:"data"`
}

// Vars exposes the report summary to templates as summary.* and report.*
// placeholders.
func Vars(d *Data) alerting.Vars {
	s := d.Summary
	v := alerting.Vars{
		"summary.totalActivities": strconv.Itoa(s.TotalActivities),
		"summary.totalChanges":    strconv.Itoa(s.TotalChanges),
		"summary.uniqueAgents":    strconv.Itoa(s.UniqueAgents),
		"summary.completionRate":  fmt.Sprintf("%.1f%%", s.CompletionRate*100),
		"summary.highRiskChanges": strconv.Itoa(s.HighRiskChanges),
		"summary.tasksTotal":      strconv.Itoa(s.TasksTotal),
		"summary.tasksCompleted":  strconv.Itoa(s.TasksCompleted),
		"summary.text":            SummaryText(s),
		"report.id":               d.ID,
		"report.window":           windowLabel(d),
		"report.projectPath":      d.ProjectPath,
		"report.timeframe":        d.Timeframe,
	}
	for k, n := range s.ChangesByImpact {
		v["summary.changesByImpact."+k] = strconv.Itoa(n)
	}
	for k, n := range s.ChangesByType {
		v["summary.changesByType."+k] = strconv.Itoa(n)
	}
	return v
}

// GenerateFromTemplate compiles req and renders it through the stored
// template. Caller vars fill placeholders the report does not define.
func (c *Compiler) GenerateFromTemplate(ctx context.Context, templateID string, req Request, vars alerting.Vars) (Rendered, error) {
	t, ok, err := c.store.GetTemplate(ctx, templateID)
	if err != nil {
		return Rendered{}, errs.Store("get template", err)
	}
	if !ok {
		return Rendered{}, errs.NotFound("template", templateID)
	}
	r, err := alerting.NewRenderer(t.SubjectTemplate, t.BodyTemplate, t.Format)
	if err != nil {
		return Rendered{}, err
	}
	d, err := c.Compile(ctx, req)
	if err != nil {
		return Rendered{}, err
	}

	all := alerting.Vars{}
	for k, v := range vars {
		all[k] = v
	}
	for k, v := range Vars(d) {
		all[k] = v
	}
	subject, body := r.Render(all, d.GeneratedAt)
	return Rendered{TemplateID: t.ID, Subject: subject, Body: body, Format: t.Format, Data: d}, nil
}
