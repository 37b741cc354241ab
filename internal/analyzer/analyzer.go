// Package analyzer tracks file changes in agent-edited projects. It measures
// every changed file, scores its risk, records static dependency edges and
// writes an impact analysis for high and critical changes. It also owns the
// lifecycle of filesystem monitoring sessions.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/gitint"
	"github.com/anthropic/agentwatch/internal/logger"
	"github.com/anthropic/agentwatch/internal/metrics"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/store"
	"github.com/anthropic/agentwatch/internal/watcher"
)

// Options configures an Analyzer. Store is required; everything else has a
// default.
type Options struct {
	Store      *store.Store
	Classifier Classifier
	Sink       pipeline.Sink
	Logger     *logger.Logger

	// Watcher holds the debounce, queue and ignore settings applied to every
	// monitoring session. WatchPatterns and Logger are set per session.
	Watcher watcher.Options
}

// Analyzer is the change analysis component.
type Analyzer struct {
	store      *store.Store
	classifier Classifier
	sink       pipeline.Sink
	log        *logger.Logger
	watchOpts  watcher.Options
	registry   *Registry
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	if opts.Classifier == nil {
		opts.Classifier = NewHeuristicClassifier()
	}
	return &Analyzer{
		store:      opts.Store,
		classifier: opts.Classifier,
		sink:       pipeline.OrDiscard(opts.Sink),
		log:        logger.OrNop(opts.Logger),
		watchOpts:  opts.Watcher,
		registry:   NewRegistry(),
	}
}

// ChangeBatch is one reported set of changed files.
type ChangeBatch struct {
	ProjectPath string   `json:"projectPath"`
	ChangeType  string   `json:"changeType"`
	Files       []string `json:"files"`
	Impact      string   `json:"impact,omitempty"`
	AgentID     string   `json:"agentId,omitempty"`
	GitCommit   string   `json:"gitCommit,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// TrackChanges records one ChangeRecord per file in the batch. Files may be
// absolute or relative to the project. A file that cannot be read is recorded
// with zero metrics. A store failure stops the batch; the records persisted
// before it are returned with the error.
func (a *Analyzer) TrackChanges(ctx context.Context, batch ChangeBatch) ([]store.ChangeRecord, error) {
	if strings.TrimSpace(batch.ProjectPath) == "" {
		return nil, errs.Validation("projectPath is required")
	}
	if len(batch.Files) == 0 {
		return nil, errs.Validation("files must not be empty")
	}
	ct, err := ParseChangeType(batch.ChangeType)
	if err != nil {
		return nil, err
	}
	hint, err := ParseImpactLevel(batch.Impact)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(batch.ProjectPath)
	if err != nil {
		return nil, errs.Validation("projectPath %q: %v", batch.ProjectPath, err)
	}
	files := make([]string, 0, len(batch.Files))
	for _, f := range batch.Files {
		rel, err := projectRelative(root, f)
		if err != nil {
			return nil, err
		}
		files = append(files, rel)
	}

	repo := a.openRepo(root)
	commit := batch.GitCommit
	if commit == "" && repo != nil {
		if head, err := repo.HeadCommit(); err == nil {
			commit = head
		}
	}
	agentID := batch.AgentID
	if agentID == "" && commit != "" && repo != nil {
		if name, ok, err := repo.CommitCoAuthor(commit); err == nil && ok {
			agentID = name
		}
	}

	out := make([]store.ChangeRecord, 0, len(files))
	for _, rel := range files {
		rec, err := a.trackFile(ctx, fileChange{
			root:    root,
			rel:     rel,
			kind:    ct,
			hint:    hint,
			agentID: agentID,
			commit:  commit,
			reason:  batch.Reason,
			repo:    repo,
		})
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type fileChange struct {
	root    string
	rel     string
	kind    ChangeType
	hint    ImpactLevel
	agentID string
	commit  string
	reason  string
	repo    *gitint.Repository
}

func (a *Analyzer) trackFile(ctx context.Context, fc fileChange) (store.ChangeRecord, error) {
	abs := filepath.Join(fc.root, filepath.FromSlash(fc.rel))
	now := timeNow().UTC()

	var content []byte
	unreadable := false
	if fc.kind != ChangeDelete {
		data, err := os.ReadFile(abs)
		if err != nil {
			a.log.Warn("read changed file, recording zero metrics", "file", fc.rel, "error", err)
			unreadable = true
		} else {
			content = data
		}
	}
	var stats metrics.FileStats
	if content != nil {
		stats = metrics.Measure(content)
	}

	rec := store.ChangeRecord{
		ID:          uuid.NewString(),
		ProjectPath: fc.root,
		FilePath:    fc.rel,
		ChangeType:  string(fc.kind),
		AgentID:     fc.agentID,
		Timestamp:   now,
		FileHash:    stats.Hash,
		LineCount:   stats.Lines,
		SizeAfter:   stats.Size,
		Complexity:  stats.Complexity,
		GitCommit:   fc.commit,
		Reason:      fc.reason,
	}
	// An unreadable file says nothing about what changed: no line delta, and
	// its stored edges are kept.
	if !unreadable {
		a.fillDelta(ctx, &rec, fc, abs, content)
	}

	score := a.classifier.RiskScore(rec)
	level := MaxImpact(fc.hint, a.classifier.ImpactLevel(rec, score))
	rec.RiskScore = score
	rec.ImpactLevel = string(level)

	// A nil slice keeps the file's stored edges; deletes clear them.
	var edges []store.DependencyEdge
	if !unreadable {
		edges = []store.DependencyEdge{}
	}
	if fc.kind != ChangeDelete && content != nil {
		ext := path.Ext(fc.rel)
		for _, d := range a.classifier.Dependencies(fc.rel, content) {
			edges = append(edges, store.DependencyEdge{
				ProjectPath: fc.root,
				SourceFile:  fc.rel,
				TargetFile:  resolveOnDisk(fc.root, d.Target, ext),
				Kind:        d.Kind,
				ChangeID:    rec.ID,
				CreatedAt:   now,
			})
		}
	}

	var analysis *store.ImpactAnalysis
	var affected []string
	if level.Elevated() {
		var err error
		affected, err = a.FindAffectedComponents(ctx, rec)
		if err != nil {
			a.log.Warn("find affected components", "file", fc.rel, "error", err)
		}
		analysis = &store.ImpactAnalysis{
			ID:                 uuid.NewString(),
			ChangeID:           rec.ID,
			RiskScore:          score,
			AffectedComponents: affected,
			Recommendations:    recommend(rec, affected),
			Timestamp:          now,
		}
	}

	if err := a.store.InsertChange(ctx, rec, edges, analysis); err != nil {
		return rec, errs.Store("insert change record", err)
	}

	a.emit(ctx, pipeline.EventFileChanged, rec, affected)
	if level.Elevated() {
		a.emit(ctx, pipeline.EventHighImpactChange, rec, affected)
	}
	return rec, nil
}

// fillDelta sets LinesAdded, LinesDeleted and SizeBefore. A modify is
// compared with the last stored record for the file when there is one, and
// with the committed HEAD version otherwise.
func (a *Analyzer) fillDelta(ctx context.Context, rec *store.ChangeRecord, fc fileChange, abs string, content []byte) {
	if fc.kind == ChangeCreate {
		rec.LinesAdded = rec.LineCount
		return
	}

	prev, found, err := a.store.LatestChangeForFile(ctx, fc.root, fc.rel)
	if err != nil {
		a.log.Warn("load previous change", "file", fc.rel, "error", err)
	}
	if found {
		rec.SizeBefore = prev.SizeAfter
		if fc.kind == ChangeDelete {
			rec.LinesDeleted = prev.LineCount
			return
		}
		d := metrics.CountDelta(prev.LineCount, rec.LineCount)
		rec.LinesAdded, rec.LinesDeleted = d.Added, d.Deleted
		return
	}

	if fc.repo == nil {
		return
	}
	before, ok, err := fc.repo.FileAtHead(abs)
	if err != nil {
		a.log.Debug("read file at HEAD", "file", fc.rel, "error", err)
		return
	}
	if !ok {
		return
	}
	rec.SizeBefore = int64(len(before))
	if fc.kind == ChangeDelete {
		rec.LinesDeleted = metrics.Measure(before).Lines
		return
	}
	d := metrics.ComputeLineDelta(string(before), string(content))
	rec.LinesAdded, rec.LinesDeleted = d.Added, d.Deleted
}

func (a *Analyzer) openRepo(root string) *gitint.Repository {
	repo, err := gitint.Open(root)
	if err != nil {
		if !errors.Is(err, gitint.ErrNotRepository) {
			a.log.Debug("open git repository", "project", root, "error", err)
		}
		return nil
	}
	return repo
}

func (a *Analyzer) emit(ctx context.Context, typ string, rec store.ChangeRecord, affected []string) {
	msg := fmt.Sprintf("%s %s (%s impact, risk %.1f)", rec.ChangeType, rec.FilePath, rec.ImpactLevel, rec.RiskScore)
	if typ == pipeline.EventHighImpactChange {
		msg = "High impact change: " + msg
	}
	a.sink.HandleEvent(ctx, pipeline.Event{
		Type:        typ,
		ProjectPath: rec.ProjectPath,
		AgentID:     rec.AgentID,
		Message:     msg,
		Metadata: map[string]any{
			"impact":             rec.ImpactLevel,
			"changeType":         rec.ChangeType,
			"filePath":           rec.FilePath,
			"riskScore":          rec.RiskScore,
			"changeId":           rec.ID,
			"affectedComponents": affected,
		},
		Priority:  ImpactLevel(rec.ImpactLevel).Priority(),
		Timestamp: rec.Timestamp,
	})
}

// CalculateRiskScore scores rec with the analyzer's classifier.
func (a *Analyzer) CalculateRiskScore(rec store.ChangeRecord) float64 {
	return a.classifier.RiskScore(rec)
}

// Classify returns the risk score and impact level for rec.
func (a *Analyzer) Classify(rec store.ChangeRecord) (float64, ImpactLevel) {
	score := a.classifier.RiskScore(rec)
	return score, a.classifier.ImpactLevel(rec, score)
}

// FindAffectedComponents returns the files that import rec's file according
// to stored dependency edges, plus test files for it that exist on disk.
func (a *Analyzer) FindAffectedComponents(ctx context.Context, rec store.ChangeRecord) ([]string, error) {
	seen := map[string]bool{}
	dependents, err := a.store.Dependents(ctx, rec.ProjectPath, rec.FilePath)
	if err != nil {
		return nil, errs.Store("load dependents", err)
	}
	for _, d := range dependents {
		seen[d] = true
	}
	for _, t := range testVariants(rec.FilePath) {
		info, err := os.Stat(filepath.Join(rec.ProjectPath, filepath.FromSlash(t)))
		if err == nil && !info.IsDir() {
			seen[t] = true
		}
	}
	delete(seen, rec.FilePath)

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// testVariants lists conventional test file locations for rel.
func testVariants(rel string) []string {
	dir, base := path.Split(rel)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	variants := []string{
		dir + name + ".test" + ext,
		dir + name + ".spec" + ext,
		dir + "__tests__/" + base,
		dir + "__tests__/" + name + ".test" + ext,
	}
	switch ext {
	case ".go":
		variants = append(variants, dir+name+"_test.go")
	case ".py":
		variants = append(variants, dir+"test_"+base, dir+name+"_test.py")
	}
	return variants
}

func isTestFile(rel string) bool {
	base := path.Base(rel)
	return strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") ||
		strings.HasSuffix(base, "_test.go") || strings.HasPrefix(base, "test_") ||
		strings.Contains(rel, "__tests__/")
}

func recommend(rec store.ChangeRecord, affected []string) []string {
	var out []string
	if IsCriticalPath(rec.FilePath) {
		out = append(out, "Critical file changed: require a second reviewer before merging")
	}
	var tests, dependents []string
	for _, f := range affected {
		if isTestFile(f) {
			tests = append(tests, f)
		} else {
			dependents = append(dependents, f)
		}
	}
	if ChangeType(rec.ChangeType) == ChangeDelete && len(dependents) > 0 {
		out = append(out, fmt.Sprintf("File deleted but still imported by %d file(s): %s",
			len(dependents), strings.Join(dependents, ", ")))
	} else if len(dependents) > 0 {
		out = append(out, fmt.Sprintf("Check %d dependent file(s) for breakage", len(dependents)))
	}
	if len(tests) > 0 {
		out = append(out, "Run affected tests: "+strings.Join(tests, ", "))
	} else if ChangeType(rec.ChangeType) != ChangeDelete {
		out = append(out, "No tests found for this file; consider adding coverage")
	}
	if rec.LinesAdded > largeAdditionLines {
		out = append(out, "Large addition: consider splitting the change")
	}
	if rec.LinesDeleted > largeDeletionLines {
		out = append(out, "Large deletion: verify removed code is not still referenced")
	}
	if rec.Complexity > 20 {
		out = append(out, fmt.Sprintf("High complexity (%d): consider refactoring", rec.Complexity))
	}
	return out
}

// projectRelative converts f to a slash separated path relative to root and
// rejects paths outside it.
func projectRelative(root, f string) (string, error) {
	if strings.TrimSpace(f) == "" {
		return "", errs.Validation("empty file path")
	}
	abs := f
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, f)
	}
	rel, err := filepath.Rel(root, filepath.Clean(abs))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.Validation("file %q is outside project %s", f, root)
	}
	return filepath.ToSlash(rel), nil
}
