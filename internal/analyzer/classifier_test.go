package analyzer

import (
	"reflect"
	"testing"

	"github.com/anthropic/agentwatch/internal/store"
)

// ---------------------------------------------------------------------------
// Risk score and impact level
// ---------------------------------------------------------------------------

func TestHeuristicClassifier(t *testing.T) {
	c := NewHeuristicClassifier()
	cases := []struct {
		name      string
		rec       store.ChangeRecord
		wantScore float64
		wantLevel ImpactLevel
	}{
		{
			name:      "delete config yaml",
			rec:       store.ChangeRecord{FilePath: "config/prod.yaml", ChangeType: "delete"},
			wantScore: 6.0,
			wantLevel: ImpactHigh,
		},
		{
			name:      "modify package.json",
			rec:       store.ChangeRecord{FilePath: "package.json", ChangeType: "modify"},
			wantScore: 5.0,
			wantLevel: ImpactHigh,
		},
		{
			name:      "create source file",
			rec:       store.ChangeRecord{FilePath: "src/app.ts", ChangeType: "create"},
			wantScore: 1.5,
			wantLevel: ImpactLow,
		},
		{
			name:      "modify source file",
			rec:       store.ChangeRecord{FilePath: "src/app.ts", ChangeType: "modify"},
			wantScore: 2.0,
			wantLevel: ImpactLow,
		},
		{
			name:      "delete with large deletion",
			rec:       store.ChangeRecord{FilePath: "src/app.ts", ChangeType: "delete", LinesDeleted: 60},
			wantScore: 4.5,
			wantLevel: ImpactMedium,
		},
		{
			name:      "refactor migration with large churn",
			rec:       store.ChangeRecord{FilePath: "db/migrations/001.sql", ChangeType: "refactor", LinesAdded: 150, LinesDeleted: 60},
			wantScore: 8.0,
			wantLevel: ImpactCritical,
		},
		{
			name:      "exactly 100 lines added is not large",
			rec:       store.ChangeRecord{FilePath: "main.go", ChangeType: "create", LinesAdded: 100},
			wantScore: 1.5,
			wantLevel: ImpactLow,
		},
		{
			name:      "env file",
			rec:       store.ChangeRecord{FilePath: ".env.local", ChangeType: "modify"},
			wantScore: 4.0,
			wantLevel: ImpactLow,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := c.RiskScore(tc.rec)
			if score != tc.wantScore {
				t.Errorf("RiskScore = %v, want %v", score, tc.wantScore)
			}
			if got := c.ImpactLevel(tc.rec, score); got != tc.wantLevel {
				t.Errorf("ImpactLevel = %q, want %q", got, tc.wantLevel)
			}
		})
	}
}

func TestRiskScoreIsCapped(t *testing.T) {
	c := &HeuristicClassifier{
		rules: []PatternRule{{Name: "everything", Extensions: []string{".go"}, Weight: 20}},
	}
	got := c.RiskScore(store.ChangeRecord{FilePath: "main.go", ChangeType: "delete"})
	if got != maxRisk {
		t.Errorf("RiskScore = %v, want %v", got, maxRisk)
	}
}

func TestWatcherOverrides(t *testing.T) {
	c := NewHeuristicClassifier()
	cases := []struct {
		file  string
		agent string
		want  ImpactLevel
	}{
		{"Dockerfile", WatcherAgentID, ImpactCritical},
		{"docker-compose.prod.yml", WatcherAgentID, ImpactCritical},
		{"src/config/db.ts", WatcherAgentID, ImpactCritical},
		{"src/app.test.ts", WatcherAgentID, ImpactHigh},
		{"pkg/parser_test.go", WatcherAgentID, ImpactHigh},
		{"tests/e2e/login.js", WatcherAgentID, ImpactHigh},
		{"src/app.ts", WatcherAgentID, ImpactLow},
		{"src/app.test.ts", "agent-1", ImpactLow},
		{"Dockerfile", "agent-1", ImpactLow},
	}
	for _, tc := range cases {
		rec := store.ChangeRecord{FilePath: tc.file, ChangeType: "create", AgentID: tc.agent}
		score := c.RiskScore(rec)
		if got := c.ImpactLevel(rec, score); got != tc.want {
			t.Errorf("%s by %s: level = %q (score %v), want %q", tc.file, tc.agent, got, score, tc.want)
		}
	}
}

func TestClassificationIsDeterministic(t *testing.T) {
	c := NewHeuristicClassifier()
	recs := []store.ChangeRecord{
		{FilePath: "config/prod.yaml", ChangeType: "delete"},
		{FilePath: "src/app.test.ts", ChangeType: "modify", AgentID: WatcherAgentID},
		{FilePath: "go.mod", ChangeType: "refactor", LinesAdded: 500},
		{FilePath: "README.md", ChangeType: "create"},
	}
	for _, rec := range recs {
		score := c.RiskScore(rec)
		level := c.ImpactLevel(rec, score)
		for i := 0; i < 50; i++ {
			s := c.RiskScore(rec)
			if s != score || c.ImpactLevel(rec, s) != level {
				t.Fatalf("%s: run %d gave (%v, %q), first run (%v, %q)", rec.FilePath, i, s, c.ImpactLevel(rec, s), score, level)
			}
		}
	}
}

func TestParseEnums(t *testing.T) {
	if _, err := ParseChangeType("rename"); err == nil {
		t.Error("expected error for unknown change type")
	}
	if ct, err := ParseChangeType(" Delete "); err != nil || ct != ChangeDelete {
		t.Errorf("ParseChangeType = %q, %v", ct, err)
	}
	if l, err := ParseImpactLevel(""); err != nil || l != ImpactLow {
		t.Errorf("ParseImpactLevel(\"\") = %q, %v", l, err)
	}
	if _, err := ParseImpactLevel("severe"); err == nil {
		t.Error("expected error for unknown impact level")
	}
	if MaxImpact(ImpactHigh, ImpactMedium) != ImpactHigh || MaxImpact(ImpactLow, ImpactCritical) != ImpactCritical {
		t.Error("MaxImpact returned the lesser level")
	}
}

// ---------------------------------------------------------------------------
// Dependency extraction
// ---------------------------------------------------------------------------

func TestExtractDependencies(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
		want    []Dependency
	}{
		{
			name: "es imports",
			file: "src/app.ts",
			content: `import React from 'react'
import { helper } from "./lib/helper"
import './styles.css'
export { thing } from '../shared/thing'
`,
			want: []Dependency{
				{Target: "src/lib/helper", Kind: KindImport},
				{Target: "src/styles.css", Kind: KindImport},
				{Target: "shared/thing", Kind: KindImport},
			},
		},
		{
			name:    "require and dynamic import",
			file:    "lib/index.js",
			content: "const a = require('./a')\nconst fs = require('fs')\nconst b = await import('./b.js')\n",
			want: []Dependency{
				{Target: "lib/a", Kind: KindImport},
				{Target: "lib/b.js", Kind: KindImport},
			},
		},
		{
			name:    "css import",
			file:    "styles/main.css",
			content: "@import 'base.css';\n@import url(\"./theme.css\");\n@import url(https://fonts.example/x.css);\n",
			want: []Dependency{
				{Target: "styles/theme.css", Kind: KindCSSImport},
			},
		},
		{
			name:    "root relative and escaping",
			file:    "a/b.ts",
			content: "import x from '/src/x'\nimport y from '../../outside'\n",
			want: []Dependency{
				{Target: "src/x", Kind: KindImport},
			},
		},
		{
			name:    "duplicates collapse",
			file:    "m.js",
			content: "import a from './a'\nconst a2 = require('./a')\n",
			want:    []Dependency{{Target: "a", Kind: KindImport}},
		},
		{
			name:    "no imports",
			file:    "README.md",
			content: "just text",
			want:    nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractDependencies(tc.file, []byte(tc.content))
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("deps = %+v, want %+v", got, tc.want)
			}
		})
	}
}
