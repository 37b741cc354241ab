package analyzer

import (
	"strings"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/pipeline"
)

// ChangeType is the kind of file mutation.
type ChangeType string

const (
	ChangeCreate   ChangeType = "create"
	ChangeModify   ChangeType = "modify"
	ChangeDelete   ChangeType = "delete"
	ChangeRefactor ChangeType = "refactor"
)

var validChangeTypes = map[ChangeType]bool{
	ChangeCreate:   true,
	ChangeModify:   true,
	ChangeDelete:   true,
	ChangeRefactor: true,
}

// ParseChangeType validates s.
func ParseChangeType(s string) (ChangeType, error) {
	ct := ChangeType(strings.ToLower(strings.TrimSpace(s)))
	if !validChangeTypes[ct] {
		return "", errs.InvalidState("unknown change type %q (expected create, modify, delete or refactor)", s)
	}
	return ct, nil
}

// ImpactLevel is the categorical severity of a change.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

var impactRank = map[ImpactLevel]int{
	ImpactLow:      1,
	ImpactMedium:   2,
	ImpactHigh:     3,
	ImpactCritical: 4,
}

// ParseImpactLevel validates s. An empty string is low.
func ParseImpactLevel(s string) (ImpactLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ImpactLow, nil
	}
	l := ImpactLevel(s)
	if _, ok := impactRank[l]; !ok {
		return "", errs.InvalidState("unknown impact level %q (expected low, medium, high or critical)", s)
	}
	return l, nil
}

// Rank orders levels from 1 (low) to 4 (critical); unknown levels are 0.
func (l ImpactLevel) Rank() int { return impactRank[l] }

// Elevated reports whether the level calls for an impact analysis.
func (l ImpactLevel) Elevated() bool { return l.Rank() >= impactRank[ImpactHigh] }

// Priority maps the level to an event priority.
func (l ImpactLevel) Priority() pipeline.Priority {
	switch l {
	case ImpactCritical:
		return pipeline.PriorityCritical
	case ImpactHigh:
		return pipeline.PriorityHigh
	case ImpactMedium:
		return pipeline.PriorityMedium
	default:
		return pipeline.PriorityLow
	}
}

// MaxImpact returns the more severe of a and b.
func MaxImpact(a, b ImpactLevel) ImpactLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// AnalysisType selects what AnalyzeImpact measures.
type AnalysisType string

const (
	AnalysisRisk         AnalysisType = "risk"
	AnalysisComplexity   AnalysisType = "complexity"
	AnalysisDependencies AnalysisType = "dependencies"
	AnalysisSecurity     AnalysisType = "security"
	AnalysisPerformance  AnalysisType = "performance"
)

// ParseAnalysisType validates s.
func ParseAnalysisType(s string) (AnalysisType, error) {
	switch t := AnalysisType(strings.ToLower(strings.TrimSpace(s))); t {
	case AnalysisRisk, AnalysisComplexity, AnalysisDependencies, AnalysisSecurity, AnalysisPerformance:
		return t, nil
	default:
		return "", errs.InvalidState("unknown analysis type %q", s)
	}
}
