// Package metrics derives per-activity measurements (productivity,
// efficiency, accuracy, collaboration) from what an agent reports, and
// folds grouped samples into per-agent summaries.
package metrics

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/anthropic/agentwatch/internal/store"
)

// Metric types produced by the Calculator.
const (
	Productivity  = "productivity"
	Efficiency    = "efficiency"
	Accuracy      = "accuracy"
	Collaboration = "collaboration"
)

// MaxEfficiency caps expected/actual so a trivially fast activity cannot
// dominate an average.
const MaxEfficiency = 2.0

var (
	completionSignal    = regexp.MustCompile(`(?i)\b(complete|completed|finished|done)\b`)
	startSignal         = regexp.MustCompile(`(?i)\b(started|starting|began|begun)\b`)
	collaborationSignal = regexp.MustCompile(`(?i)\b(review|reviewed|reviewing|collaborate|collaborated|collaborating|pair(ed)?)\b`)
)

// Sample is a derived measurement before it is given an id and timestamp.
type Sample struct {
	MetricType string
	Value      float64
	Context    map[string]any
}

// Input is the part of an activity the heuristics look at.
type Input struct {
	Text     string
	Metadata map[string]any
	Duration *float64 // seconds
}

// Calculator computes metric samples from activities.
type Calculator struct{}

// NewCalculator creates a new Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Derive returns zero or more samples for one activity, in a fixed order:
// productivity, efficiency, accuracy, collaboration.
func (c *Calculator) Derive(in Input) []Sample {
	var out []Sample

	switch {
	case completionSignal.MatchString(in.Text):
		out = append(out, Sample{MetricType: Productivity, Value: 1.0, Context: map[string]any{"signal": "completion"}})
	case startSignal.MatchString(in.Text):
		out = append(out, Sample{MetricType: Productivity, Value: 0.5, Context: map[string]any{"signal": "start"}})
	}

	if in.Duration != nil && *in.Duration > 0 {
		if expected, ok := Number(in.Metadata["expectedDuration"]); ok && expected > 0 {
			out = append(out, Sample{
				MetricType: Efficiency,
				Value:      math.Min(expected / *in.Duration, MaxEfficiency),
				Context:    map[string]any{"expectedDuration": expected, "duration": *in.Duration},
			})
		}
	}

	if n, ok := Number(in.Metadata["errorCount"]); ok {
		out = append(out, Sample{
			MetricType: Accuracy,
			Value:      math.Max(0, 1-0.1*n),
			Context:    map[string]any{"errorCount": n},
		})
	}

	if collaborationSignal.MatchString(in.Text) {
		out = append(out, Sample{MetricType: Collaboration, Value: 1.0, Context: map[string]any{"signal": "collaboration"}})
	}

	return out
}

// Number reads a numeric metadata value. JSON decoding yields float64, Go
// callers may pass ints, and some agents send numbers as strings.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AgentMetrics holds every metric aggregate for one agent.
type AgentMetrics struct {
	AgentID string                           `json:"agentId"`
	Metrics map[string]store.MetricAggregate `json:"metrics"`
	Samples int                              `json:"samples"`
}

// Summary is the result of folding grouped aggregates.
type Summary struct {
	Agents []AgentMetrics                   `json:"agents"`
	ByType map[string]store.MetricAggregate `json:"byType"`
}

// Summarize folds agent x metricType aggregates into per-agent entries plus a
// cross-agent total per metric type. Agents are sorted by id.
func (c *Calculator) Summarize(aggs []store.MetricAggregate) Summary {
	sum := Summary{Agents: []AgentMetrics{}, ByType: map[string]store.MetricAggregate{}}
	byAgent := map[string]*AgentMetrics{}

	for _, a := range aggs {
		am, ok := byAgent[a.AgentID]
		if !ok {
			am = &AgentMetrics{AgentID: a.AgentID, Metrics: map[string]store.MetricAggregate{}}
			byAgent[a.AgentID] = am
		}
		am.Metrics[a.MetricType] = a
		am.Samples += a.Count

		total, seen := sum.ByType[a.MetricType]
		if !seen {
			total = store.MetricAggregate{MetricType: a.MetricType, Min: a.Min, Max: a.Max}
		}
		total.Count += a.Count
		total.Sum += a.Sum
		total.Min = math.Min(total.Min, a.Min)
		total.Max = math.Max(total.Max, a.Max)
		if total.Count > 0 {
			total.Avg = total.Sum / float64(total.Count)
		}
		sum.ByType[a.MetricType] = total
	}

	for _, am := range byAgent {
		sum.Agents = append(sum.Agents, *am)
	}
	sort.Slice(sum.Agents, func(i, j int) bool { return sum.Agents[i].AgentID < sum.Agents[j].AgentID })
	return sum
}
