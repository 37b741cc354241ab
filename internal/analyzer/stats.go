package analyzer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/store"
)

// Stats summarizes the changes recorded in a period.
type Stats struct {
	ProjectPath string             `json:"projectPath,omitempty"`
	Since       time.Time          `json:"since"`
	Total       int                `json:"total"`
	HighRisk    int                `json:"highRisk"`
	ByType      []store.GroupCount `json:"byType"`
	ByAgent     []store.GroupCount `json:"byAgent"`
	ByImpact    []store.GroupCount `json:"byImpact"`
	TopPaths    []store.GroupCount `json:"topPaths"`
}

// DefaultTopPaths is the number of paths ChangeStats returns when topN <= 0.
const DefaultTopPaths = 10

// ChangeStats groups the changes recorded since the given time by type, agent,
// impact level and path. An empty projectPath covers every project.
func (a *Analyzer) ChangeStats(ctx context.Context, projectPath string, since time.Time, topN int) (Stats, error) {
	if topN <= 0 {
		topN = DefaultTopPaths
	}
	f := store.ChangeFilter{Since: since}
	if projectPath != "" {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return Stats{}, errs.Validation("projectPath %q: %v", projectPath, err)
		}
		f.ProjectPath = abs
	}

	st := Stats{ProjectPath: f.ProjectPath, Since: since}
	var err error
	if st.Total, err = a.store.CountChanges(ctx, f); err != nil {
		return Stats{}, errs.Store("count changes", err)
	}
	high := f
	high.ImpactLevels = []string{string(ImpactHigh), string(ImpactCritical)}
	if st.HighRisk, err = a.store.CountChanges(ctx, high); err != nil {
		return Stats{}, errs.Store("count high risk changes", err)
	}

	groups := []struct {
		by  store.ChangeGroup
		dst *[]store.GroupCount
		lim int
	}{
		{store.GroupByType, &st.ByType, 0},
		{store.GroupByAgent, &st.ByAgent, 0},
		{store.GroupByImpact, &st.ByImpact, 0},
		{store.GroupByPath, &st.TopPaths, topN},
	}
	for _, g := range groups {
		gf := f
		gf.Page = store.Page{Limit: g.lim}
		if *g.dst, err = a.store.CountChangesBy(ctx, gf, g.by); err != nil {
			return Stats{}, errs.Store("group changes", err)
		}
	}
	return st, nil
}

// ListChanges returns stored change records matching f.
func (a *Analyzer) ListChanges(ctx context.Context, f store.ChangeFilter) ([]store.ChangeRecord, error) {
	recs, err := a.store.ListChanges(ctx, f)
	if err != nil {
		return nil, errs.Store("list changes", err)
	}
	return recs, nil
}

// ImpactAnalysisFor returns the stored analysis of a change, if any.
func (a *Analyzer) ImpactAnalysisFor(ctx context.Context, changeID string) (store.ImpactAnalysis, bool, error) {
	ia, ok, err := a.store.GetImpactAnalysis(ctx, changeID)
	if err != nil {
		return ia, false, errs.Store("get impact analysis", err)
	}
	return ia, ok, nil
}
