package analyzer

import (
	"math"
	"sort"

	"github.com/anthropic/agentwatch/internal/store"
)

// WatcherAgentID is the agent id recorded for filesystem-sourced changes.
const WatcherAgentID = "file-watcher"

// Classifier scores changes and extracts their static dependencies. The
// default is regex driven; a parser-backed implementation can replace it
// without touching callers.
type Classifier interface {
	// RiskScore returns a score in [0, 10].
	RiskScore(rec store.ChangeRecord) float64
	// ImpactLevel derives the level from a record and its score. It must be
	// a pure function of its inputs.
	ImpactLevel(rec store.ChangeRecord, score float64) ImpactLevel
	// Dependencies lists the project-local files that content imports.
	Dependencies(file string, content []byte) []Dependency
}

// HeuristicClassifier applies pattern rules to paths and regexes to content.
type HeuristicClassifier struct {
	rules     []PatternRule
	overrides []OverrideRule
}

// NewHeuristicClassifier creates a classifier with the default rules.
func NewHeuristicClassifier() *HeuristicClassifier {
	overrides := DefaultOverrides()
	// Sort overrides by descending priority for evaluation.
	sort.Slice(overrides, func(i, j int) bool {
		return overrides[i].Priority > overrides[j].Priority
	})
	return &HeuristicClassifier{
		rules:     DefaultRules(),
		overrides: overrides,
	}
}

// RiskScore computes:
//
//	1.0 base
//	+ weight of every matching pattern rule (critical file 2.0, config extension 1.0)
//	+ change type weight (delete 2.0, refactor 1.5, modify 1.0, create 0.5)
//	+ 1.0 if more than 100 lines were added
//	+ 1.5 if more than 50 lines were deleted
//
// capped at 10.
func (c *HeuristicClassifier) RiskScore(rec store.ChangeRecord) float64 {
	score := baseRisk
	for _, r := range c.rules {
		if r.Matches(rec.FilePath) {
			score += r.Weight
		}
	}
	score += changeTypeWeights[ChangeType(rec.ChangeType)]
	if rec.LinesAdded > largeAdditionLines {
		score += largeAdditionWeight
	}
	if rec.LinesDeleted > largeDeletionLines {
		score += largeDeletionWeight
	}
	return math.Min(score, maxRisk)
}

// ImpactLevel maps the score to critical (>= 8) or high (>= 5), otherwise
// to the change type's default. Watcher-sourced changes are raised to the
// level of the first matching path override.
func (c *HeuristicClassifier) ImpactLevel(rec store.ChangeRecord, score float64) ImpactLevel {
	var level ImpactLevel
	switch {
	case score >= criticalScore:
		level = ImpactCritical
	case score >= highScore:
		level = ImpactHigh
	default:
		level = changeTypeDefaultImpact[ChangeType(rec.ChangeType)]
		if level == "" {
			level = ImpactLow
		}
	}

	if rec.AgentID == WatcherAgentID {
		for _, o := range c.overrides {
			if o.Pattern.MatchString(rec.FilePath) {
				level = MaxImpact(level, o.Level)
				break
			}
		}
	}
	return level
}

// Dependencies implements Classifier.
func (c *HeuristicClassifier) Dependencies(file string, content []byte) []Dependency {
	return extractDependencies(file, content)
}
