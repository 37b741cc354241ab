package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropic/agentwatch/internal/config"
	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	e := New(Options{Store: s, Workers: 2})
	t.Cleanup(func() { e.Close() })
	return e, s
}

// hook is an httptest webhook that records payloads.
type hook struct {
	mu       sync.Mutex
	payloads []webhookPayload
	status   int
	srv      *httptest.Server
}

func newHook(t *testing.T, status int) *hook {
	t.Helper()
	h := &hook{status: status}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.mu.Lock()
		h.payloads = append(h.payloads, p)
		h.mu.Unlock()
		w.WriteHeader(h.status)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hook) received() []webhookPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]webhookPayload(nil), h.payloads...)
}

func mustChannel(t *testing.T, e *Engine, in ChannelInput) store.Channel {
	t.Helper()
	c, err := e.AddChannel(context.Background(), in)
	if err != nil {
		t.Fatalf("AddChannel(%s): %v", in.Name, err)
	}
	return c
}

func mustRule(t *testing.T, e *Engine, in RuleInput) store.Rule {
	t.Helper()
	r, err := e.AddRule(context.Background(), in)
	if err != nil {
		t.Fatalf("AddRule(%s): %v", in.Name, err)
	}
	return r
}

func ptr[T any](v T) *T { return &v }

// ---------------------------------------------------------------------------
// SendAlert
// ---------------------------------------------------------------------------

func TestSendAlertIsolatesDisabledChannel(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	h := newHook(t, http.StatusOK)

	web := mustChannel(t, e, ChannelInput{Name: "ops", Type: "webhook", Configuration: map[string]any{"url": h.srv.URL}})
	con := mustChannel(t, e, ChannelInput{Name: "console", Type: "console"})
	if _, err := e.UpdateChannel(ctx, con.ID, ChannelPatch{Enabled: ptr(false)}); err != nil {
		t.Fatal(err)
	}

	high := mustRule(t, e, RuleInput{
		Name:       "high impact",
		Priority:   10,
		Conditions: map[string]any{"impact": []any{"high", "critical"}},
		Actions:    []store.RuleAction{{ChannelID: web.ID}},
	})
	all := mustRule(t, e, RuleInput{
		Name:     "everything",
		Priority: 1,
		Actions:  []store.RuleAction{{ChannelID: con.ID}},
	})

	res, err := e.SendAlert(ctx, Alert{
		Type:     pipeline.EventHighImpactChange,
		Message:  "config/prod.yaml deleted",
		Priority: "high",
		Metadata: map[string]any{"impact": "high"},
	})
	if err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if len(res.MatchedRules) != 2 || res.MatchedRules[0] != high.ID || res.MatchedRules[1] != all.ID {
		t.Errorf("MatchedRules = %v, want [%s %s]", res.MatchedRules, high.ID, all.ID)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("Sent/Failed = %d/%d, want 1/1: %+v", res.Sent, res.Failed, res.Results)
	}
	for _, r := range res.Results {
		switch r.ChannelID {
		case web.ID:
			if r.Status != StatusSent {
				t.Errorf("webhook status = %s (%s)", r.Status, r.Error)
			}
		case con.ID:
			if r.Status != StatusError || r.ErrorCode != "channel_not_found" {
				t.Errorf("disabled channel result = %+v", r)
			}
		}
	}

	got := h.received()
	if len(got) != 1 {
		t.Fatalf("webhook received %d payloads, want 1", len(got))
	}
	if got[0].Subject != "[HIGH] high_impact_change" || got[0].Body != "config/prod.yaml deleted" {
		t.Errorf("payload = %+v", got[0])
	}
	if got[0].Event["impact"] != "high" {
		t.Errorf("payload event = %v", got[0].Event)
	}

	sent, err := s.ListSentNotifications(ctx, store.SentFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 2 {
		t.Fatalf("sent notifications = %d, want 2", len(sent))
	}

	r, _, _ := s.GetRule(ctx, high.ID)
	if r.TriggerCount != 1 || r.LastTriggered == nil {
		t.Errorf("trigger count = %d, lastTriggered = %v", r.TriggerCount, r.LastTriggered)
	}
	ch, _, _ := s.GetChannel(ctx, web.ID)
	if ch.LastUsed == nil {
		t.Error("webhook channel lastUsed not set")
	}
}

func TestSendAlertNoMatch(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	con := mustChannel(t, e, ChannelInput{Name: "console", Type: "console"})
	mustRule(t, e, RuleInput{
		Name:       "errors",
		Conditions: map[string]any{"type": "*error*"},
		Actions:    []store.RuleAction{{ChannelID: con.ID}},
	})

	res, err := e.SendAlert(ctx, Alert{Type: "task_completed", Message: "done"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.MatchedRules) != 0 || len(res.Results) != 0 {
		t.Errorf("result = %+v, want no matches", res)
	}
	sent, _ := s.ListSentNotifications(ctx, store.SentFilter{})
	if len(sent) != 0 {
		t.Errorf("sent notifications = %d, want 0", len(sent))
	}

	res, err = e.SendAlert(ctx, Alert{Type: "agent_runtime_error", Message: "boom"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 1 {
		t.Errorf("Sent = %d, want 1", res.Sent)
	}
}

func TestSendAlertWebhookFailure(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	h := newHook(t, http.StatusInternalServerError)
	web := mustChannel(t, e, ChannelInput{Name: "broken", Type: "webhook", Configuration: map[string]any{"url": h.srv.URL}})
	mustRule(t, e, RuleInput{Name: "all", Actions: []store.RuleAction{{ChannelID: web.ID}}})

	res, err := e.SendAlert(ctx, Alert{Type: "file_changed", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Results[0].ErrorCode != "channel_dispatch_failed" {
		t.Fatalf("result = %+v", res)
	}
	sent, _ := s.ListSentNotifications(ctx, store.SentFilter{Status: StatusError})
	if len(sent) != 1 || !strings.Contains(sent[0].ErrorMessage, "500") {
		t.Errorf("error notifications = %+v", sent)
	}
}

func TestSendAlertRendersTemplate(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	h := newHook(t, http.StatusOK)
	web := mustChannel(t, e, ChannelInput{Name: "ops", Type: "webhook", Configuration: map[string]any{"url": h.srv.URL}})
	tpl, err := e.CreateTemplate(ctx, TemplateInput{
		Name:            "impact",
		SubjectTemplate: "{{agentId}}: {{filePath}}",
		BodyTemplate:    "<b>{{message}}</b> risk {{riskScore}}",
		Format:          "html",
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(tpl.Variables, ",") != "agentId,filePath,message,riskScore" {
		t.Errorf("Variables = %v", tpl.Variables)
	}
	mustRule(t, e, RuleInput{Name: "all", Actions: []store.RuleAction{{ChannelID: web.ID, TemplateID: tpl.ID}}})

	if _, err := e.SendAlert(ctx, Alert{
		Type:     "file_changed",
		AgentID:  "agent-7",
		Message:  "a < b",
		Metadata: map[string]any{"filePath": "src/x.go", "riskScore": 6.5},
	}); err != nil {
		t.Fatal(err)
	}
	got := h.received()
	if len(got) != 1 {
		t.Fatalf("payloads = %d", len(got))
	}
	if got[0].Subject != "agent-7: src/x.go" {
		t.Errorf("subject = %q", got[0].Subject)
	}
	if got[0].Body != "<b>a &lt; b</b> risk 6.5" {
		t.Errorf("body = %q", got[0].Body)
	}
}

func TestSendAlertRequiresType(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.SendAlert(context.Background(), Alert{Message: "m"})
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestHandleEventDispatches(t *testing.T) {
	e, s := newTestEngine(t)
	con := mustChannel(t, e, ChannelInput{Name: "console", Type: "console"})
	mustRule(t, e, RuleInput{
		Name:       "stops",
		Conditions: map[string]any{"event": pipeline.EventMonitoringStopped},
		Actions:    []store.RuleAction{{ChannelID: con.ID}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.HandleEvent(ctx, pipeline.Event{Type: pipeline.EventMonitoringStopped, Message: "stopped", Priority: pipeline.PriorityLow})
	e.Wait()

	sent, _ := s.ListSentNotifications(context.Background(), store.SentFilter{Status: StatusSent})
	if len(sent) != 1 {
		t.Errorf("sent = %d, want 1 even with a cancelled emitter context", len(sent))
	}
}

func TestHandleEventReturnsBeforeSlowSend(t *testing.T) {
	e, s := newTestEngine(t)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	web := mustChannel(t, e, ChannelInput{Name: "slow", Type: "webhook", Configuration: map[string]any{"url": srv.URL}})
	mustRule(t, e, RuleInput{
		Name:       "stops",
		Conditions: map[string]any{"event": pipeline.EventMonitoringStopped},
		Actions:    []store.RuleAction{{ChannelID: web.ID}},
	})

	returned := make(chan struct{})
	go func() {
		e.HandleEvent(context.Background(), pipeline.Event{Type: pipeline.EventMonitoringStopped, Message: "stopped"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("HandleEvent blocked on the webhook")
	}

	close(release)
	e.Wait()
	sent, _ := s.ListSentNotifications(context.Background(), store.SentFilter{Status: StatusSent})
	if len(sent) != 1 {
		t.Errorf("sent = %d, want 1 after Wait", len(sent))
	}
}

func TestHandleEventDropsPastBacklog(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	e := New(Options{Store: s, Workers: 1, Pending: 1})

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	web := mustChannel(t, e, ChannelInput{Name: "slow", Type: "webhook", Configuration: map[string]any{"url": srv.URL}})
	mustRule(t, e, RuleInput{
		Name:       "stops",
		Conditions: map[string]any{"event": pipeline.EventMonitoringStopped},
		Actions:    []store.RuleAction{{ChannelID: web.ID}},
	})

	for range 3 {
		e.HandleEvent(context.Background(), pipeline.Event{Type: pipeline.EventMonitoringStopped, Message: "stopped"})
	}
	close(release)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	e.HandleEvent(context.Background(), pipeline.Event{Type: pipeline.EventMonitoringStopped, Message: "late"})

	sent, _ := s.ListSentNotifications(context.Background(), store.SentFilter{})
	if len(sent) != 1 {
		t.Errorf("notifications = %d, want 1 with a backlog of one", len(sent))
	}
}

// ---------------------------------------------------------------------------
// Channels, rules and templates
// ---------------------------------------------------------------------------

func TestAddChannelValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	cases := []struct {
		name string
		in   ChannelInput
		kind error
	}{
		{"empty name", ChannelInput{Type: "console"}, errs.ErrValidation},
		{"unknown type", ChannelInput{Name: "x", Type: "pager"}, errs.ErrInvalidState},
		{"webhook without url", ChannelInput{Name: "x", Type: "webhook"}, errs.ErrValidation},
		{"slack without url", ChannelInput{Name: "x", Type: "slack"}, errs.ErrValidation},
		{"email without recipients", ChannelInput{Name: "x", Type: "email"}, errs.ErrValidation},
		{"redis without addr", ChannelInput{Name: "x", Type: "redis"}, errs.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.AddChannel(context.Background(), tc.in)
			if !errors.Is(err, tc.kind) {
				t.Errorf("err = %v, want %v", err, tc.kind)
			}
		})
	}
}

func TestUpdateChannelNotFound(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.UpdateChannel(context.Background(), "nope", ChannelPatch{Enabled: ptr(false)})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestAddRuleValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	con := mustChannel(t, e, ChannelInput{Name: "console", Type: "console"})
	cases := []struct {
		name string
		in   RuleInput
	}{
		{"empty name", RuleInput{Actions: []store.RuleAction{{ChannelID: con.ID}}}},
		{"no actions", RuleInput{Name: "r"}},
		{"action without channel", RuleInput{Name: "r", Actions: []store.RuleAction{{}}}},
		{"unknown channel", RuleInput{Name: "r", Actions: []store.RuleAction{{ChannelID: "missing"}}}},
		{"unknown template", RuleInput{Name: "r", Actions: []store.RuleAction{{ChannelID: con.ID, TemplateID: "missing"}}}},
		{"bad conditions", RuleInput{Name: "r", Conditions: map[string]any{"x": []any{}}, Actions: []store.RuleAction{{ChannelID: con.ID}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.AddRule(context.Background(), tc.in)
			if !errors.Is(err, errs.ErrValidation) {
				t.Errorf("err = %v, want validation", err)
			}
		})
	}
}

func TestSetRuleEnabled(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	con := mustChannel(t, e, ChannelInput{Name: "console", Type: "console"})
	r := mustRule(t, e, RuleInput{Name: "r", Actions: []store.RuleAction{{ChannelID: con.ID}}})

	got, err := e.SetRuleEnabled(ctx, r.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Enabled {
		t.Error("rule still enabled")
	}
	res, _ := e.SendAlert(ctx, Alert{Type: "x", Message: "m"})
	if len(res.MatchedRules) != 0 {
		t.Errorf("disabled rule matched: %v", res.MatchedRules)
	}
	if _, err := e.SetRuleEnabled(ctx, "missing", true); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestDeleteChannelAndRule(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	con := mustChannel(t, e, ChannelInput{Name: "console", Type: "console"})
	r := mustRule(t, e, RuleInput{Name: "uses-console", Actions: []store.RuleAction{{ChannelID: con.ID}}})

	err := e.DeleteChannel(ctx, con.ID)
	if !errors.Is(err, errs.ErrInvalidState) {
		t.Fatalf("DeleteChannel in use: err = %v, want invalid state", err)
	}
	if !strings.Contains(err.Error(), "uses-console") {
		t.Errorf("error should name the rule: %v", err)
	}

	if err := e.DeleteRule(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if err := e.DeleteChannel(ctx, con.ID); err != nil {
		t.Fatalf("DeleteChannel: %v", err)
	}
	chans, err := e.ListChannels(ctx)
	if err != nil || len(chans) != 0 {
		t.Errorf("ListChannels = %v, %v; want empty", chans, err)
	}
	if err := e.DeleteRule(ctx, r.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second DeleteRule: err = %v, want not found", err)
	}
	if err := e.DeleteChannel(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("DeleteChannel(missing): err = %v, want not found", err)
	}
}

func TestCreateTemplateRejectsFormat(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateTemplate(context.Background(), TemplateInput{Name: "t", BodyTemplate: "b", Format: "rtf"})
	if !errors.Is(err, errs.ErrInvalidState) {
		t.Errorf("err = %v, want invalid state", err)
	}
}

// ---------------------------------------------------------------------------
// TestChannel and senders
// ---------------------------------------------------------------------------

func TestTestChannel(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t)
	h := newHook(t, http.StatusOK)
	web := mustChannel(t, e, ChannelInput{Name: "ops", Type: "webhook", Configuration: map[string]any{"url": h.srv.URL}})

	res, err := e.TestChannel(ctx, web.ID)
	if err != nil {
		t.Fatalf("TestChannel: %v", err)
	}
	if res.Status != StatusSent {
		t.Errorf("status = %s", res.Status)
	}
	sent, _ := s.ListSentNotifications(ctx, store.SentFilter{ChannelID: web.ID})
	if len(sent) != 1 || sent[0].RuleID != "" || sent[0].EventData["type"] != pipeline.EventTest {
		t.Errorf("sent = %+v", sent)
	}
	if got := h.received(); len(got) != 1 || got[0].Event["priority"] != "low" {
		t.Errorf("payloads = %+v", got)
	}

	if _, err := e.TestChannel(ctx, "missing"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSlackSender(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	f := NewSenders(SendersOptions{})
	snd, err := f.For(store.Channel{Name: "s", Type: "slack", Configuration: map[string]any{"webhookUrl": srv.URL, "channel": "#ops"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := snd.Send(context.Background(), "subj", "body", nil); err != nil {
		t.Fatal(err)
	}
	if got.Text != "*subj*\nbody" || got.Channel != "#ops" {
		t.Errorf("payload = %+v", got)
	}
}

func TestEmailSender(t *testing.T) {
	f := NewSenders(SendersOptions{SMTP: config.SMTPConfig{Host: "mail.local", Port: 2525, From: "agentwatch@local"}})
	var (
		addr string
		to   []string
		msg  string
	)
	f.sendMail = func(a string, _ smtp.Auth, _ string, rcpt []string, m []byte) error {
		addr, to, msg = a, rcpt, string(m)
		return nil
	}
	snd, err := f.For(store.Channel{Name: "mail", Type: "email", Configuration: map[string]any{"to": []any{"ops@local"}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := snd.Send(context.Background(), "[HIGH] x", "line1\nline2", nil); err != nil {
		t.Fatal(err)
	}
	if addr != "mail.local:2525" || len(to) != 1 || to[0] != "ops@local" {
		t.Errorf("addr = %s, to = %v", addr, to)
	}
	if !strings.Contains(msg, "Subject: [HIGH] x\r\n") || !strings.HasSuffix(msg, "line1\r\nline2") {
		t.Errorf("message = %q", msg)
	}
}

func TestSenderOverride(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	var mu sync.Mutex
	var subjects []string
	e.Senders().Override(ChannelRedis, SenderFunc(func(_ context.Context, subject, _ string, _ map[string]any) error {
		mu.Lock()
		subjects = append(subjects, subject)
		mu.Unlock()
		return nil
	}))
	rc := mustChannel(t, e, ChannelInput{Name: "bus", Type: "redis", Configuration: map[string]any{"addr": "127.0.0.1:6379"}})
	mustRule(t, e, RuleInput{Name: "all", Actions: []store.RuleAction{{ChannelID: rc.ID}}})

	res, err := e.SendAlert(ctx, Alert{Type: "task_failed", Priority: "critical", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 1 || len(subjects) != 1 || subjects[0] != "[CRITICAL] task_failed" {
		t.Errorf("res = %+v, subjects = %v", res, subjects)
	}
}

// ---------------------------------------------------------------------------
// LoadSeed
// ---------------------------------------------------------------------------

const seedYAML = `
channels:
  - name: console
    type: console
  - name: quiet
    type: console
    enabled: false
templates:
  - name: short
    subject: "[{{priority}}] {{type}}"
    body: "{{message}}"
rules:
  - name: high impact
    priority: 10
    conditions:
      impact: [high, critical]
    actions:
      - channel: console
        template: short
`

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	res, err := e.LoadSeed(ctx, []byte(seedYAML))
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if res.Channels != 2 || res.Templates != 1 || res.Rules != 1 || res.Skipped != 0 {
		t.Errorf("result = %+v", res)
	}
	channels, _ := e.ListChannels(ctx)
	byName := map[string]store.Channel{}
	for _, c := range channels {
		byName[c.Name] = c
	}
	if len(channels) != 2 || !byName["console"].Enabled || byName["quiet"].Enabled {
		t.Errorf("channels = %+v", channels)
	}
	rules, _ := e.ListRules(ctx)
	if len(rules) != 1 || rules[0].Actions[0].ChannelID != byName["console"].ID || rules[0].Actions[0].TemplateID == "" {
		t.Errorf("rules = %+v", rules)
	}
	if !Matches(rules[0].Conditions, map[string]any{"impact": "critical"}) {
		t.Error("seeded conditions do not match critical")
	}

	res, err = e.LoadSeed(ctx, []byte(seedYAML))
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 4 || res.Channels+res.Templates+res.Rules != 0 {
		t.Errorf("second load = %+v, want everything skipped", res)
	}
}

func TestLoadSeedUnknownChannel(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.LoadSeed(context.Background(), []byte("rules:\n  - name: r\n    actions:\n      - channel: ghost\n"))
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}
