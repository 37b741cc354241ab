package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/anthropic/agentwatch/internal/errs"
)

// Format is a report output encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

const pdfNote = "PDF output is the HTML rendering; converting it to a binary PDF requires an external renderer."

// ParseFormat validates s. An empty string is json.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatText, FormatHTML, FormatMarkdown, FormatPDF:
		return f, nil
	default:
		return "", errs.InvalidState("unknown report format %q (expected json, text, html, markdown or pdf)", s)
	}
}

// Ext is the artifact file extension. PDF artifacts hold HTML and say so.
func (f Format) Ext() string {
	switch f {
	case FormatText:
		return "txt"
	case FormatMarkdown:
		return "md"
	case FormatPDF:
		return "pdf.html"
	default:
		return string(f)
	}
}

// Render encodes d in the given format.
func Render(d *Data, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.MarshalIndent(d, "", "  ")
	case FormatText:
		return []byte(FormatTextReport(d)), nil
	case FormatMarkdown:
		return []byte(FormatMarkdownReport(d)), nil
	case FormatHTML:
		return renderHTML(d, "")
	case FormatPDF:
		return renderHTML(d, pdfNote)
	default:
		return nil, errs.InvalidState("unknown report format %q", f)
	}
}

// FormatTextReport renders d as plain human-readable text.
func FormatTextReport(d *Data) string {
	var b strings.Builder
	s := d.Summary

	b.WriteString("Agent Activity Report\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString(fmt.Sprintf("Report:      %s\n", d.ID))
	if d.ProjectPath != "" {
		b.WriteString(fmt.Sprintf("Project:     %s\n", d.ProjectPath))
	}
	b.WriteString(fmt.Sprintf("Window:      %s\n", windowLabel(d)))
	b.WriteString(fmt.Sprintf("Generated:   %s\n\n", d.GeneratedAt.Format("2006-01-02 15:04:05 MST")))

	b.WriteString("Summary\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Activities:", s.TotalActivities))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Unique agents:", s.UniqueAgents))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Changes:", s.TotalChanges))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "High risk changes:", s.HighRiskChanges))
	b.WriteString(fmt.Sprintf("%-20s %d/%d (%.1f%%)\n\n", "Tasks completed:", s.TasksCompleted, s.TasksTotal, s.CompletionRate*100))

	writeCounts(&b, "Changes by impact", s.ChangesByImpact, impactOrder)
	writeCounts(&b, "Changes by type", s.ChangesByType, typeOrder)

	if len(d.ActiveAgents) > 0 {
		b.WriteString("Active agents\n")
		b.WriteString(strings.Repeat("-", 60) + "\n")
		b.WriteString(fmt.Sprintf("%-24s %10s  %s\n", "Agent", "Activities", "Last seen"))
		for _, a := range d.ActiveAgents {
			b.WriteString(fmt.Sprintf("%-24s %10d  %s\n", truncate(a.AgentID, 24), a.ActivityCount, a.LastSeen.Format("2006-01-02 15:04:05")))
		}
		b.WriteString("\n")
	}

	if len(d.Changes) > 0 {
		b.WriteString("Changes\n")
		b.WriteString(strings.Repeat("-", 80) + "\n")
		b.WriteString(fmt.Sprintf("%-40s %-9s %-9s %5s\n", "File", "Type", "Impact", "Risk"))
		maxRows := len(d.Changes)
		if maxRows > 50 {
			maxRows = 50
		}
		for _, ch := range d.Changes[:maxRows] {
			b.WriteString(fmt.Sprintf("%-40s %-9s %-9s %5.1f\n", truncate(ch.FilePath, 40), ch.ChangeType, ch.ImpactLevel, ch.RiskScore))
		}
		if len(d.Changes) > 50 {
			b.WriteString(fmt.Sprintf("... and %d more changes\n", len(d.Changes)-50))
		}
		b.WriteString("\n")
	}

	if d.Metrics != nil && len(d.Metrics.Agents) > 0 {
		b.WriteString("Metrics\n")
		b.WriteString(strings.Repeat("-", 60) + "\n")
		for _, am := range d.Metrics.Agents {
			for _, typ := range sortedKeys(am.Metrics) {
				m := am.Metrics[typ]
				b.WriteString(fmt.Sprintf("%-24s %-14s avg %.2f over %d samples\n", truncate(am.AgentID, 24), typ, m.Avg, m.Count))
			}
		}
	}
	return b.String()
}

// FormatMarkdownReport renders d as Markdown.
func FormatMarkdownReport(d *Data) string {
	var b strings.Builder
	s := d.Summary

	b.WriteString("# Agent Activity Report\n\n")
	if d.ProjectPath != "" {
		b.WriteString(fmt.Sprintf("- **Project:** `%s`\n", d.ProjectPath))
	}
	b.WriteString(fmt.Sprintf("- **Window:** %s\n", windowLabel(d)))
	b.WriteString(fmt.Sprintf("- **Report:** %s\n\n", d.ID))

	b.WriteString("## Summary\n\n| Metric | Value |\n|---|---|\n")
	b.WriteString(fmt.Sprintf("| Activities | %d |\n", s.TotalActivities))
	b.WriteString(fmt.Sprintf("| Unique agents | %d |\n", s.UniqueAgents))
	b.WriteString(fmt.Sprintf("| Changes | %d |\n", s.TotalChanges))
	b.WriteString(fmt.Sprintf("| High risk changes | %d |\n", s.HighRiskChanges))
	b.WriteString(fmt.Sprintf("| Tasks completed | %d/%d (%.1f%%) |\n\n", s.TasksCompleted, s.TasksTotal, s.CompletionRate*100))

	b.WriteString("## Changes by impact\n\n")
	for _, k := range orderedKeys(s.ChangesByImpact, impactOrder) {
		b.WriteString(fmt.Sprintf("- %s: %d\n", k, s.ChangesByImpact[k]))
	}
	b.WriteString("\n## Changes by type\n\n")
	for _, k := range orderedKeys(s.ChangesByType, typeOrder) {
		b.WriteString(fmt.Sprintf("- %s: %d\n", k, s.ChangesByType[k]))
	}

	if len(d.ActiveAgents) > 0 {
		b.WriteString("\n## Active agents\n\n| Agent | Activities | Last activity |\n|---|---|---|\n")
		for _, a := range d.ActiveAgents {
			b.WriteString(fmt.Sprintf("| %s | %d | %s |\n", mdCell(a.AgentID), a.ActivityCount, mdCell(a.LastActivity)))
		}
	}
	return b.String()
}

var impactOrder = []string{"critical", "high", "medium", "low"}
var typeOrder = []string{"create", "modify", "delete", "refactor"}

func writeCounts(b *strings.Builder, title string, counts map[string]int, order []string) {
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	keys := orderedKeys(counts, order)
	if len(keys) == 0 {
		b.WriteString("(none)\n")
	}
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%-20s %d\n", k, counts[k]))
	}
	b.WriteString("\n")
}

// orderedKeys lists the keys of counts in the preferred order, then any
// others alphabetically.
func orderedKeys(counts map[string]int, order []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, k := range order {
		if _, ok := counts[k]; ok {
			out = append(out, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range counts {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-(n-3):]
}

func mdCell(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

var htmlTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct":    func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
	"ts":     func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	"window": windowLabel,
	"impact": func(m map[string]int) []string { return orderedKeys(m, impactOrder) },
	"types":  func(m map[string]int) []string { return orderedKeys(m, typeOrder) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Agent Activity Report {{.Data.ID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
.high, .critical { color: #b00; }
</style>
</head>
<body>
<h1>Agent Activity Report</h1>
{{- if .Note}}
<p class="note">{{.Note}}</p>
{{- end}}
<p>{{if .Data.ProjectPath}}Project: <code>{{.Data.ProjectPath}}</code><br>{{end}}Window: {{window .Data}}</p>
<h2>Summary</h2>
<table>
<tr><th>Activities</th><td>{{.Data.Summary.TotalActivities}}</td></tr>
<tr><th>Unique agents</th><td>{{.Data.Summary.UniqueAgents}}</td></tr>
<tr><th>Changes</th><td>{{.Data.Summary.TotalChanges}}</td></tr>
<tr><th>High risk changes</th><td>{{.Data.Summary.HighRiskChanges}}</td></tr>
<tr><th>Tasks completed</th><td>{{.Data.Summary.TasksCompleted}}/{{.Data.Summary.TasksTotal}} ({{pct .Data.Summary.CompletionRate}})</td></tr>
</table>
<h2>Changes by impact</h2>
<table>
{{- range $k := impact .Data.Summary.ChangesByImpact}}
<tr><th class="{{$k}}">{{$k}}</th><td>{{index $.Data.Summary.ChangesByImpact $k}}</td></tr>
{{- end}}
</table>
<h2>Changes by type</h2>
<table>
{{- range $k := types .Data.Summary.ChangesByType}}
<tr><th>{{$k}}</th><td>{{index $.Data.Summary.ChangesByType $k}}</td></tr>
{{- end}}
</table>
{{- if .Data.ActiveAgents}}
<h2>Active agents</h2>
<table>
<tr><th>Agent</th><th>Activities</th><th>Last seen</th><th>Last activity</th></tr>
{{- range .Data.ActiveAgents}}
<tr><td>{{.AgentID}}</td><td>{{.ActivityCount}}</td><td>{{ts .LastSeen}}</td><td>{{.LastActivity}}</td></tr>
{{- end}}
</table>
{{- end}}
{{- if .Data.Changes}}
<h2>Changes</h2>
<table>
<tr><th>File</th><th>Type</th><th>Impact</th><th>Risk</th><th>Agent</th></tr>
{{- range .Data.Changes}}
<tr><td>{{.FilePath}}</td><td>{{.ChangeType}}</td><td class="{{.ImpactLevel}}">{{.ImpactLevel}}</td><td>{{printf "%.1f" .RiskScore}}</td><td>{{.AgentID}}</td></tr>
{{- end}}
</table>
{{- end}}
</body>
</html>
`))

func renderHTML(d *Data, note string) ([]byte, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, struct {
		Data *Data
		Note string
	}{d, note}); err != nil {
		return nil, fmt.Errorf("render html report: %w", err)
	}
	return buf.Bytes(), nil
}
