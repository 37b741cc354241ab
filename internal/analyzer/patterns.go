package analyzer

import (
	"path"
	"regexp"
	"strings"
)

// Risk score constants.
const (
	baseRisk = 1.0
	maxRisk  = 10.0

	largeAdditionLines  = 100
	largeAdditionWeight = 1.0
	largeDeletionLines  = 50
	largeDeletionWeight = 1.5

	criticalScore = 8.0
	highScore     = 5.0
)

// changeTypeWeights is added to every score by change type.
var changeTypeWeights = map[ChangeType]float64{
	ChangeDelete:   2.0,
	ChangeRefactor: 1.5,
	ChangeModify:   1.0,
	ChangeCreate:   0.5,
}

// changeTypeDefaultImpact is the level below the high threshold.
var changeTypeDefaultImpact = map[ChangeType]ImpactLevel{
	ChangeCreate:   ImpactLow,
	ChangeModify:   ImpactLow,
	ChangeDelete:   ImpactMedium,
	ChangeRefactor: ImpactMedium,
}

// PatternRule adds Weight to the risk score of any file it matches. Every
// matching rule contributes.
type PatternRule struct {
	Name         string
	FileGlobs    []string // Match against the basename (path.Match).
	PathSegments []string // Match any directory component.
	Extensions   []string // Lower-case, with the dot.
	Weight       float64
}

// Matches reports whether rel (slash separated, project relative) matches.
func (r PatternRule) Matches(rel string) bool {
	base := path.Base(rel)
	for _, g := range r.FileGlobs {
		if ok, _ := path.Match(g, base); ok {
			return true
		}
	}
	if len(r.PathSegments) > 0 {
		dirs := strings.Split(path.Dir(rel), "/")
		for _, d := range dirs {
			for _, seg := range r.PathSegments {
				if d == seg {
					return true
				}
			}
		}
	}
	ext := strings.ToLower(path.Ext(rel))
	for _, e := range r.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in risk rules.
func DefaultRules() []PatternRule {
	return []PatternRule{
		{
			Name: "critical_file",
			FileGlobs: []string{
				"package.json",
				"package-lock.json",
				"go.mod",
				"go.sum",
				"Dockerfile",
				"docker-compose*.yml",
				"docker-compose*.yaml",
				".env*",
			},
			PathSegments: []string{"config", "migrations"},
			Weight:       2.0,
		},
		{
			Name:       "config_extension",
			Extensions: []string{".sql", ".json", ".yml", ".yaml", ".conf"},
			Weight:     1.0,
		},
	}
}

// OverrideRule pins the impact level of watcher-sourced changes whose path
// matches Pattern. Overrides are evaluated in descending priority order and
// the first match wins.
type OverrideRule struct {
	Pattern  *regexp.Regexp
	Level    ImpactLevel
	Priority int
}

// DefaultOverrides returns the watcher path overrides.
//
//	20 - critical files: manifests, container files, env files, config/, migrations/
//	10 - tests: test directories and *.test.* / *.spec.* / *_test.go
func DefaultOverrides() []OverrideRule {
	return []OverrideRule{
		{
			Pattern:  regexp.MustCompile(`(^|/)(package(-lock)?\.json|go\.(mod|sum)|Dockerfile|docker-compose[^/]*\.ya?ml|\.env[^/]*)$|(^|/)(config|migrations)/`),
			Level:    ImpactCritical,
			Priority: 20,
		},
		{
			Pattern:  regexp.MustCompile(`(^|/)(__tests__|tests?)/|[._](test|spec)\.[^/]+$`),
			Level:    ImpactHigh,
			Priority: 10,
		},
	}
}

// ContentRule flags a textual pattern during security or performance analysis.
type ContentRule struct {
	Name     string
	Pattern  *regexp.Regexp
	Severity string // low, medium, high
}

var securityRules = []ContentRule{
	{"dynamic-eval", regexp.MustCompile(`\beval\s*\(|new\s+Function\s*\(`), "high"},
	{"shell-exec", regexp.MustCompile(`\bchild_process\b|\bexec(Sync)?\s*\(|os/exec|subprocess\.`), "medium"},
	{"hardcoded-secret", regexp.MustCompile(`(?i)(password|secret|api[_-]?key|token)\s*[:=]\s*['"][^'"]{4,}['"]`), "high"},
	{"raw-html", regexp.MustCompile(`innerHTML\s*=|dangerouslySetInnerHTML`), "medium"},
	{"sql-concat", regexp.MustCompile(`(?i)(select|insert|update|delete)\s[^;\n]*['"]\s*\+`), "high"},
	{"weak-hash", regexp.MustCompile(`(?i)\b(md5|sha1)\b`), "low"},
}

var performanceRules = []ContentRule{
	{"sync-io", regexp.MustCompile(`\b(readFileSync|writeFileSync|execSync)\b`), "medium"},
	{"select-star", regexp.MustCompile(`(?i)select\s+\*\s+from`), "low"},
	{"polling", regexp.MustCompile(`\bsetInterval\s*\(|time\.Sleep\(`), "low"},
	{"nested-loop", regexp.MustCompile(`(?s)\bfor\b[^{]*\{[^}]*\bfor\b`), "medium"},
	{"await-in-loop", regexp.MustCompile(`(?s)\bfor\b[^{]*\{[^}]*\bawait\b`), "medium"},
}

// IsCriticalPath reports whether rel matches the critical-file rule.
func IsCriticalPath(rel string) bool {
	for _, r := range DefaultRules() {
		if r.Name == "critical_file" {
			return r.Matches(rel)
		}
	}
	return false
}
