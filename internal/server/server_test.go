package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/anthropic/agentwatch/internal/alerting"
	"github.com/anthropic/agentwatch/internal/analyzer"
	"github.com/anthropic/agentwatch/internal/ingest"
	"github.com/anthropic/agentwatch/internal/ledger"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/report"
	"github.com/anthropic/agentwatch/internal/store"
)

type testServer struct {
	URL    string
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	sink := &pipeline.Fanout{}
	alerts := alerting.New(alerting.Options{Store: s, Workers: 2})
	t.Cleanup(func() { alerts.Close() })
	l := ledger.New(ledger.Options{Store: s, Sink: sink})
	a := analyzer.New(analyzer.Options{Store: s, Sink: sink})
	t.Cleanup(a.Close)
	c := report.New(report.Options{Store: s, Dir: filepath.Join(dir, "reports"), Sink: sink})

	handler, err := New(Config{
		Store:    s,
		Ledger:   l,
		Analyzer: a,
		Alerts:   alerts,
		Reports:  c,
		Ingest:   ingest.NewDispatcher(l, a),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL + "/v1", client: srv.Client()}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func expectStatus(t *testing.T, res *http.Response, body []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d: %s", res.Request.Method, res.Request.URL.Path, res.StatusCode, want, body)
	}
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("error body %s: %v", body, err)
	}
	if e.Message == "" {
		t.Errorf("error envelope has no message: %s", body)
	}
	return e.Code
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	res, body := srv.do(t, http.MethodGet, "/health", nil)
	expectStatus(t, res, body, http.StatusOK)
	var h healthBody
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.SchemaVersion < 1 {
		t.Errorf("health = %+v", h)
	}
}

func TestTaskLifecycle(t *testing.T) {
	srv := newTestServer(t)

	res, body := srv.do(t, http.MethodPost, "/tasks", map[string]any{
		"description": "Ship feature",
		"priority":    "high",
		"milestones":  []string{"design", "build"},
	})
	expectStatus(t, res, body, http.StatusCreated)
	var created store.Task
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}

	res, body = srv.do(t, http.MethodPatch, "/tasks/"+created.ID+"/status", map[string]any{
		"status":              "in_progress",
		"progress":            50,
		"completedMilestones": []string{"design"},
	})
	expectStatus(t, res, body, http.StatusOK)

	res, body = srv.do(t, http.MethodGet, "/tasks?active=true", nil)
	expectStatus(t, res, body, http.StatusOK)
	var active []store.Task
	if err := json.Unmarshal(body, &active); err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Status != ledger.StatusInProgress || active[0].Progress != 50 {
		t.Fatalf("active = %+v", active)
	}

	res, body = srv.do(t, http.MethodPatch, "/tasks/"+created.ID+"/status", map[string]any{"status": "completed"})
	expectStatus(t, res, body, http.StatusOK)

	// Terminal statuses are final.
	res, body = srv.do(t, http.MethodPatch, "/tasks/"+created.ID+"/status", map[string]any{"status": "in_progress"})
	expectStatus(t, res, body, http.StatusBadRequest)
	if code := errorCode(t, body); code != "invalid_state" {
		t.Errorf("code = %q, want invalid_state", code)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown task", http.MethodGet, "/tasks/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown report", http.MethodGet, "/reports/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown monitor", http.MethodDelete, "/monitors/nope", nil, http.StatusNotFound, "not_found"},
		{"bad timeframe", http.MethodGet, "/metrics/summary?timeframe=forever", nil, http.StatusBadRequest, "invalid_state"},
		{"bad task status", http.MethodPatch, "/tasks/x/status", map[string]any{"status": "sleeping"}, http.StatusBadRequest, "invalid_state"},
		{"blank description", http.MethodPost, "/tasks", map[string]any{"description": "  "}, http.StatusUnprocessableEntity, "validation_failed"},
		{"rule without channel", http.MethodPost, "/rules", map[string]any{
			"name":    "r",
			"actions": []map[string]string{{"channelId": "missing"}},
		}, http.StatusUnprocessableEntity, "validation_failed"},
		{"missing required field", http.MethodPost, "/activities", map[string]any{"activity": "x"}, http.StatusUnprocessableEntity, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, body := srv.do(t, tt.method, tt.path, tt.body)
			expectStatus(t, res, body, tt.status)
			if code := errorCode(t, body); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestActivityAndIngest(t *testing.T) {
	srv := newTestServer(t)

	res, body := srv.do(t, http.MethodPost, "/activities", map[string]any{
		"agentId":  "agent-1",
		"activity": "completed refactor",
		"metadata": map[string]any{"linesChanged": 12},
	})
	expectStatus(t, res, body, http.StatusCreated)

	res, body = srv.do(t, http.MethodPost, "/ingest", `{"kind":"activity","agentId":"agent-2","activity":"started review"}`)
	expectStatus(t, res, body, http.StatusOK)

	res, body = srv.do(t, http.MethodPost, "/ingest", `{"kind":"telemetry"}`)
	expectStatus(t, res, body, http.StatusBadRequest)

	res, body = srv.do(t, http.MethodGet, "/agents/active", nil)
	expectStatus(t, res, body, http.StatusOK)
	var agents []ledger.AgentStatus
	if err := json.Unmarshal(body, &agents); err != nil {
		t.Fatal(err)
	}
	if len(agents) != 2 {
		t.Errorf("agents = %+v", agents)
	}

	res, body = srv.do(t, http.MethodGet, "/activities?agent=agent-1", nil)
	expectStatus(t, res, body, http.StatusOK)
	var acts []store.Activity
	if err := json.Unmarshal(body, &acts); err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 || acts[0].AgentID != "agent-1" {
		t.Errorf("activities = %+v", acts)
	}
}

func TestAlertRouting(t *testing.T) {
	srv := newTestServer(t)

	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	res, body := srv.do(t, http.MethodPost, "/channels", map[string]any{
		"name":          "ops",
		"type":          "webhook",
		"configuration": map[string]any{"url": hook.URL},
	})
	expectStatus(t, res, body, http.StatusCreated)
	var ch store.Channel
	if err := json.Unmarshal(body, &ch); err != nil {
		t.Fatal(err)
	}

	res, body = srv.do(t, http.MethodPost, "/rules", map[string]any{
		"name":       "build failures",
		"conditions": map[string]any{"type": "build_*"},
		"actions":    []map[string]string{{"channelId": ch.ID}},
	})
	expectStatus(t, res, body, http.StatusCreated)
	var rule store.Rule
	if err := json.Unmarshal(body, &rule); err != nil {
		t.Fatal(err)
	}

	res, body = srv.do(t, http.MethodPost, "/alerts", map[string]any{
		"type":     "build_failed",
		"message":  "main is red",
		"priority": "high",
	})
	expectStatus(t, res, body, http.StatusOK)
	var dr alerting.DispatchResult
	if err := json.Unmarshal(body, &dr); err != nil {
		t.Fatal(err)
	}
	if len(dr.MatchedRules) != 1 || dr.Sent != 1 || hits.Load() != 1 {
		t.Errorf("dispatch = %+v, hits = %d", dr, hits.Load())
	}

	res, body = srv.do(t, http.MethodGet, "/alerts/sent?channel="+ch.ID, nil)
	expectStatus(t, res, body, http.StatusOK)
	var sent []store.SentNotification
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatal(err)
	}
	if len(sent) != 1 || sent[0].Status != alerting.StatusSent {
		t.Errorf("sent = %+v", sent)
	}

	res, body = srv.do(t, http.MethodDelete, "/channels/"+ch.ID, nil)
	expectStatus(t, res, body, http.StatusBadRequest)
	if code := errorCode(t, body); code != "invalid_state" {
		t.Errorf("delete in-use channel code = %q", code)
	}
	res, body = srv.do(t, http.MethodDelete, "/rules/"+rule.ID, nil)
	expectStatus(t, res, body, http.StatusNoContent)
	res, body = srv.do(t, http.MethodDelete, "/channels/"+ch.ID, nil)
	expectStatus(t, res, body, http.StatusNoContent)
	res, body = srv.do(t, http.MethodDelete, "/rules/"+rule.ID, nil)
	expectStatus(t, res, body, http.StatusNotFound)
}

func TestReportEndpoints(t *testing.T) {
	srv := newTestServer(t)

	res, body := srv.do(t, http.MethodPost, "/reports", map[string]any{"format": "markdown"})
	expectStatus(t, res, body, http.StatusCreated)
	var rep store.GeneratedReport
	if err := json.Unmarshal(body, &rep); err != nil {
		t.Fatal(err)
	}

	res, body = srv.do(t, http.MethodGet, "/reports/"+rep.ID+"/artifact", nil)
	expectStatus(t, res, body, http.StatusOK)
	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Contains(body, []byte(rep.ID)) {
		t.Errorf("artifact does not mention report id")
	}

	res, body = srv.do(t, http.MethodGet, "/reports?limit=5", nil)
	expectStatus(t, res, body, http.StatusOK)
	var latest []store.GeneratedReport
	if err := json.Unmarshal(body, &latest); err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[0].ID != rep.ID {
		t.Errorf("latest = %+v", latest)
	}

	res, body = srv.do(t, http.MethodPost, "/reports", map[string]any{"format": "docx"})
	expectStatus(t, res, body, http.StatusBadRequest)
}
