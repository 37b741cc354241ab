package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/metrics"
	"github.com/anthropic/agentwatch/internal/store"
)

// Finding is one content rule hit.
type Finding struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Line     int    `json:"line"`
}

// FileImpact is the per-file result of AnalyzeImpact. Which fields are set
// depends on the analysis type.
type FileImpact struct {
	File         string       `json:"file"`
	RiskScore    float64      `json:"riskScore,omitempty"`
	ImpactLevel  ImpactLevel  `json:"impactLevel,omitempty"`
	Complexity   int          `json:"complexity,omitempty"`
	Lines        int          `json:"lines,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Dependents   []string     `json:"dependents,omitempty"`
	Findings     []Finding    `json:"findings,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// ImpactReport aggregates an AnalyzeImpact run.
type ImpactReport struct {
	AnalysisType AnalysisType   `json:"analysisType"`
	ProjectPath  string         `json:"projectPath"`
	Files        []FileImpact   `json:"files"`
	Summary      map[string]int `json:"summary"`
}

// Complexity buckets.
const (
	simpleComplexity   = 10
	moderateComplexity = 20
)

// AnalyzeImpact runs one kind of analysis over files and summarizes the
// results as a distribution. Unreadable files are reported per file and
// counted under "errors".
func (a *Analyzer) AnalyzeImpact(ctx context.Context, files []string, projectPath, analysisType string) (ImpactReport, error) {
	typ, err := ParseAnalysisType(analysisType)
	if err != nil {
		return ImpactReport{}, err
	}
	if strings.TrimSpace(projectPath) == "" {
		return ImpactReport{}, errs.Validation("projectPath is required")
	}
	root, err := filepath.Abs(projectPath)
	if err != nil {
		return ImpactReport{}, errs.Validation("projectPath %q: %v", projectPath, err)
	}

	rep := ImpactReport{
		AnalysisType: typ,
		ProjectPath:  root,
		Files:        make([]FileImpact, 0, len(files)),
		Summary:      initialSummary(typ),
	}
	for _, f := range files {
		rel, err := projectRelative(root, f)
		if err != nil {
			return ImpactReport{}, err
		}
		fi := FileImpact{File: rel}
		content, readErr := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))

		switch typ {
		case AnalysisRisk:
			err = a.analyzeRisk(ctx, root, &fi, content, readErr)
		case AnalysisComplexity:
			err = readErr
			if err == nil {
				st := metrics.Measure(content)
				fi.Complexity, fi.Lines = st.Complexity, st.Lines
			}
		case AnalysisDependencies:
			err = a.analyzeDependencies(ctx, root, &fi, content, readErr)
		case AnalysisSecurity:
			err = readErr
			if err == nil {
				fi.Findings = scanContent(content, securityRules)
			}
		case AnalysisPerformance:
			err = readErr
			if err == nil {
				fi.Findings = scanContent(content, performanceRules)
			}
		}
		if err != nil {
			fi.Error = err.Error()
			rep.Summary["errors"]++
		} else {
			summarize(rep.Summary, typ, fi)
		}
		rep.Files = append(rep.Files, fi)
	}
	return rep, nil
}

// analyzeRisk reuses the last stored record for the file when there is one
// and otherwise classifies the file as a modification of its current content.
func (a *Analyzer) analyzeRisk(ctx context.Context, root string, fi *FileImpact, content []byte, readErr error) error {
	prev, found, err := a.store.LatestChangeForFile(ctx, root, fi.File)
	if err != nil {
		return errs.Store("load previous change", err)
	}
	if found {
		fi.RiskScore = prev.RiskScore
		fi.ImpactLevel = ImpactLevel(prev.ImpactLevel)
		fi.Lines = prev.LineCount
		fi.Complexity = prev.Complexity
		return nil
	}
	if readErr != nil {
		return readErr
	}
	st := metrics.Measure(content)
	rec := store.ChangeRecord{
		ProjectPath: root,
		FilePath:    fi.File,
		ChangeType:  string(ChangeModify),
		LineCount:   st.Lines,
		Complexity:  st.Complexity,
	}
	fi.RiskScore, fi.ImpactLevel = a.Classify(rec)
	fi.Lines, fi.Complexity = st.Lines, st.Complexity
	return nil
}

func (a *Analyzer) analyzeDependencies(ctx context.Context, root string, fi *FileImpact, content []byte, readErr error) error {
	dependents, err := a.store.Dependents(ctx, root, fi.File)
	if err != nil {
		return errs.Store("load dependents", err)
	}
	fi.Dependents = dependents
	if readErr != nil {
		return readErr
	}
	ext := filepath.Ext(fi.File)
	for _, d := range a.classifier.Dependencies(fi.File, content) {
		d.Target = resolveOnDisk(root, d.Target, ext)
		fi.Dependencies = append(fi.Dependencies, d)
	}
	return nil
}

func initialSummary(typ AnalysisType) map[string]int {
	s := map[string]int{"files": 0, "errors": 0}
	switch typ {
	case AnalysisRisk:
		for l := range impactRank {
			s[string(l)] = 0
		}
	case AnalysisComplexity:
		s["simple"], s["moderate"], s["complex"] = 0, 0, 0
	case AnalysisDependencies:
		s["dependencies"], s["dependents"] = 0, 0
	case AnalysisSecurity, AnalysisPerformance:
		s["low"], s["medium"], s["high"] = 0, 0, 0
	}
	return s
}

func summarize(s map[string]int, typ AnalysisType, fi FileImpact) {
	s["files"]++
	switch typ {
	case AnalysisRisk:
		s[string(fi.ImpactLevel)]++
	case AnalysisComplexity:
		switch {
		case fi.Complexity <= simpleComplexity:
			s["simple"]++
		case fi.Complexity <= moderateComplexity:
			s["moderate"]++
		default:
			s["complex"]++
		}
	case AnalysisDependencies:
		s["dependencies"] += len(fi.Dependencies)
		s["dependents"] += len(fi.Dependents)
	case AnalysisSecurity, AnalysisPerformance:
		for _, f := range fi.Findings {
			s[f.Severity]++
		}
	}
}

// scanContent reports every rule match with its 1-based line number.
func scanContent(content []byte, rules []ContentRule) []Finding {
	text := string(content)
	var out []Finding
	for _, r := range rules {
		for _, loc := range r.Pattern.FindAllStringIndex(text, -1) {
			out = append(out, Finding{
				Rule:     r.Name,
				Severity: r.Severity,
				Line:     lineOf(text, loc[0]),
			})
		}
	}
	return out
}

func lineOf(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}
