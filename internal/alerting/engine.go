// Package alerting routes pipeline events to notification channels through
// user-defined rules, rendering optional templates and recording every
// delivery attempt.
package alerting

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/logger"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/store"
)

// Notification statuses.
const (
	StatusSent  = "sent"
	StatusError = "error"
)

// DefaultWorkers bounds concurrent channel sends when Options.Workers is 0.
const DefaultWorkers = 4

// DefaultPending bounds in-flight event dispatches when Options.Pending is 0.
const DefaultPending = 64

// Alert is one event to route.
type Alert struct {
	Type        string         `json:"type"`
	ProjectPath string         `json:"projectPath,omitempty"`
	AgentID     string         `json:"agentId,omitempty"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Priority    string         `json:"priority,omitempty"`
}

// FromEvent converts a pipeline event.
func FromEvent(e pipeline.Event) Alert {
	return Alert{
		Type:        e.Type,
		ProjectPath: e.ProjectPath,
		AgentID:     e.AgentID,
		Message:     e.Message,
		Metadata:    e.Metadata,
		Priority:    string(e.Priority),
	}
}

// Fields is the flat map rule conditions are matched against and the event
// data stored with each notification. Base fields win over metadata keys of
// the same name.
func (a Alert) Fields() map[string]any {
	out := make(map[string]any, len(a.Metadata)+6)
	for k, v := range a.Metadata {
		out[k] = v
	}
	out["type"] = a.Type
	out["event"] = a.Type
	out["message"] = a.Message
	if a.Priority != "" {
		out["priority"] = a.Priority
	}
	if a.ProjectPath != "" {
		out["projectPath"] = a.ProjectPath
	}
	if a.AgentID != "" {
		out["agentId"] = a.AgentID
	}
	return out
}

// ActionResult is the outcome of one rule action.
type ActionResult struct {
	RuleID         string `json:"ruleId"`
	RuleName       string `json:"ruleName,omitempty"`
	ChannelID      string `json:"channelId"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	ErrorCode      string `json:"errorCode,omitempty"`
	NotificationID string `json:"notificationId"`
}

// DispatchResult summarizes one SendAlert call.
type DispatchResult struct {
	MatchedRules []string       `json:"matchedRules"`
	Results      []ActionResult `json:"results"`
	Sent         int            `json:"sent"`
	Failed       int            `json:"failed"`
}

// Options configures an Engine.
type Options struct {
	Store   *store.Store
	Senders *Senders
	Logger  *logger.Logger
	Workers int
	// Pending caps event dispatches running in the background; events
	// arriving while it is reached are dropped.
	Pending int
}

// Engine is the alerting engine. It is safe for concurrent use.
type Engine struct {
	store   *store.Store
	senders *Senders
	log     *logger.Logger
	workers int

	slots    chan struct{}
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New creates an Engine.
func New(opts Options) *Engine {
	log := logger.OrNop(opts.Logger)
	senders := opts.Senders
	if senders == nil {
		senders = NewSenders(SendersOptions{Logger: log})
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	pending := opts.Pending
	if pending <= 0 {
		pending = DefaultPending
	}
	return &Engine{
		store:   opts.Store,
		senders: senders,
		log:     log,
		workers: workers,
		slots:   make(chan struct{}, pending),
	}
}

// Senders returns the engine's sender factory.
func (e *Engine) Senders() *Senders { return e.senders }

// Close stops accepting events, waits for background dispatches to finish
// and releases sender resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.inflight.Wait()
	return e.senders.Close()
}

// Wait blocks until every background dispatch started by HandleEvent is done.
func (e *Engine) Wait() { e.inflight.Wait() }

// ---------------------------------------------------------------------------
// Channels
// ---------------------------------------------------------------------------

// ChannelInput creates a channel.
type ChannelInput struct {
	Name          string         `json:"name" yaml:"name"`
	Type          string         `json:"type" yaml:"type"`
	Configuration map[string]any `json:"configuration,omitempty" yaml:"configuration"`
	Enabled       *bool          `json:"enabled,omitempty" yaml:"enabled"`
}

// AddChannel validates and persists a channel. Channels start enabled unless
// the input says otherwise.
func (e *Engine) AddChannel(ctx context.Context, in ChannelInput) (store.Channel, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return store.Channel{}, errs.Validation("channel name is required")
	}
	ch := store.Channel{
		ID:            uuid.NewString(),
		Name:          name,
		Type:          strings.ToLower(strings.TrimSpace(in.Type)),
		Configuration: in.Configuration,
		Enabled:       in.Enabled == nil || *in.Enabled,
		CreatedAt:     timeNow().UTC(),
	}
	if ch.Configuration == nil {
		ch.Configuration = map[string]any{}
	}
	if err := e.senders.Validate(ch); err != nil {
		return store.Channel{}, err
	}
	if err := e.store.InsertChannel(ctx, ch); err != nil {
		return store.Channel{}, errs.Store("insert channel", err)
	}
	e.log.Info("channel added", "channel", ch.ID, "name", ch.Name, "type", ch.Type)
	return ch, nil
}

// ChannelPatch updates a channel. Nil fields are left unchanged.
type ChannelPatch struct {
	Name          *string        `json:"name,omitempty"`
	Enabled       *bool          `json:"enabled,omitempty"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// UpdateChannel applies patch to channel id.
func (e *Engine) UpdateChannel(ctx context.Context, id string, patch ChannelPatch) (store.Channel, error) {
	ch, ok, err := e.store.GetChannel(ctx, id)
	if err != nil {
		return store.Channel{}, errs.Store("get channel", err)
	}
	if !ok {
		return store.Channel{}, errs.NotFound("channel", id)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return store.Channel{}, errs.Validation("channel name is required")
		}
		ch.Name = name
	}
	if patch.Enabled != nil {
		ch.Enabled = *patch.Enabled
	}
	if patch.Configuration != nil {
		ch.Configuration = patch.Configuration
		if err := e.senders.Validate(ch); err != nil {
			return store.Channel{}, err
		}
	}
	found, err := e.store.UpdateChannel(ctx, ch)
	if err != nil {
		return store.Channel{}, errs.Store("update channel", err)
	}
	if !found {
		return store.Channel{}, errs.NotFound("channel", id)
	}
	e.log.Info("channel updated", "channel", ch.ID, "enabled", ch.Enabled)
	return ch, nil
}

// DeleteChannel removes a channel. A channel still named by a rule action
// cannot be removed; delete or change those rules first.
func (e *Engine) DeleteChannel(ctx context.Context, id string) error {
	rules, err := e.store.ListRules(ctx, false)
	if err != nil {
		return errs.Store("list rules", err)
	}
	var users []string
	for _, r := range rules {
		for _, a := range r.Actions {
			if a.ChannelID == id {
				users = append(users, r.Name)
				break
			}
		}
	}
	if len(users) > 0 {
		return errs.InvalidState("channel %s is used by rules %s", id, strings.Join(users, ", "))
	}
	found, err := e.store.DeleteChannel(ctx, id)
	if err != nil {
		return errs.Store("delete channel", err)
	}
	if !found {
		return errs.NotFound("channel", id)
	}
	e.log.Info("channel deleted", "channel", id)
	return nil
}

// ListChannels returns every channel.
func (e *Engine) ListChannels(ctx context.Context) ([]store.Channel, error) {
	out, err := e.store.ListChannels(ctx)
	if err != nil {
		return nil, errs.Store("list channels", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

// RuleInput creates a rule.
type RuleInput struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Conditions  map[string]any     `json:"conditions,omitempty"`
	Actions     []store.RuleAction `json:"actions"`
	Priority    int                `json:"priority"`
	Enabled     *bool              `json:"enabled,omitempty"`
}

// AddRule validates and persists a rule. Every action must name an existing
// channel, and any template it names must exist.
func (e *Engine) AddRule(ctx context.Context, in RuleInput) (store.Rule, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return store.Rule{}, errs.Validation("rule name is required")
	}
	if len(in.Actions) == 0 {
		return store.Rule{}, errs.Validation("rule %q needs at least one action", name)
	}
	if err := validateConditions(in.Conditions); err != nil {
		return store.Rule{}, errs.Validation("rule %q: %v", name, err)
	}
	for i, a := range in.Actions {
		if a.ChannelID == "" {
			return store.Rule{}, errs.Validation("rule %q action %d: channelId is required", name, i)
		}
		if _, ok, err := e.store.GetChannel(ctx, a.ChannelID); err != nil {
			return store.Rule{}, errs.Store("get channel", err)
		} else if !ok {
			return store.Rule{}, errs.Validation("rule %q action %d: unknown channel %q", name, i, a.ChannelID)
		}
		if a.TemplateID == "" {
			continue
		}
		if _, ok, err := e.store.GetTemplate(ctx, a.TemplateID); err != nil {
			return store.Rule{}, errs.Store("get template", err)
		} else if !ok {
			return store.Rule{}, errs.Validation("rule %q action %d: unknown template %q", name, i, a.TemplateID)
		}
	}

	r := store.Rule{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		Conditions:  in.Conditions,
		Actions:     in.Actions,
		Priority:    in.Priority,
		Enabled:     in.Enabled == nil || *in.Enabled,
		CreatedAt:   timeNow().UTC(),
	}
	if r.Conditions == nil {
		r.Conditions = map[string]any{}
	}
	if err := e.store.InsertRule(ctx, r); err != nil {
		return store.Rule{}, errs.Store("insert rule", err)
	}
	e.log.Info("rule added", "rule", r.ID, "name", r.Name, "priority", r.Priority)
	return r, nil
}

// SetRuleEnabled enables or disables a rule.
func (e *Engine) SetRuleEnabled(ctx context.Context, id string, enabled bool) (store.Rule, error) {
	found, err := e.store.SetRuleEnabled(ctx, id, enabled)
	if err != nil {
		return store.Rule{}, errs.Store("set rule enabled", err)
	}
	if !found {
		return store.Rule{}, errs.NotFound("rule", id)
	}
	r, _, err := e.store.GetRule(ctx, id)
	if err != nil {
		return store.Rule{}, errs.Store("get rule", err)
	}
	return r, nil
}

// DeleteRule removes a rule. Its delivery history is kept.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	found, err := e.store.DeleteRule(ctx, id)
	if err != nil {
		return errs.Store("delete rule", err)
	}
	if !found {
		return errs.NotFound("rule", id)
	}
	e.log.Info("rule deleted", "rule", id)
	return nil
}

// ListRules returns every rule, highest priority first.
func (e *Engine) ListRules(ctx context.Context) ([]store.Rule, error) {
	out, err := e.store.ListRules(ctx, false)
	if err != nil {
		return nil, errs.Store("list rules", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// TemplateInput creates a template.
type TemplateInput struct {
	Name            string `json:"name" yaml:"name"`
	SubjectTemplate string `json:"subjectTemplate" yaml:"subject"`
	BodyTemplate    string `json:"bodyTemplate" yaml:"body"`
	Format          string `json:"format,omitempty" yaml:"format"`
}

// CreateTemplate parses and persists a template. Its variable list is the
// set of placeholders it references.
func (e *Engine) CreateTemplate(ctx context.Context, in TemplateInput) (store.Template, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return store.Template{}, errs.Validation("template name is required")
	}
	r, err := NewRenderer(in.SubjectTemplate, in.BodyTemplate, in.Format)
	if err != nil {
		return store.Template{}, err
	}
	t := store.Template{
		ID:              uuid.NewString(),
		Name:            name,
		SubjectTemplate: in.SubjectTemplate,
		BodyTemplate:    in.BodyTemplate,
		Format:          r.format,
		Variables:       r.Placeholders(),
		CreatedAt:       timeNow().UTC(),
	}
	if err := e.store.InsertTemplate(ctx, t); err != nil {
		return store.Template{}, errs.Store("insert template", err)
	}
	return t, nil
}

// GetTemplate returns template id.
func (e *Engine) GetTemplate(ctx context.Context, id string) (store.Template, error) {
	t, ok, err := e.store.GetTemplate(ctx, id)
	if err != nil {
		return store.Template{}, errs.Store("get template", err)
	}
	if !ok {
		return store.Template{}, errs.NotFound("template", id)
	}
	return t, nil
}

// ListTemplates returns every template.
func (e *Engine) ListTemplates(ctx context.Context) ([]store.Template, error) {
	out, err := e.store.ListTemplates(ctx)
	if err != nil {
		return nil, errs.Store("list templates", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

type job struct {
	rule   store.Rule
	action store.RuleAction
}

// SendAlert routes a to every enabled rule whose conditions match, highest
// priority first. Each action is sent on a bounded worker pool; a failing
// action never stops the others. One SentNotification is written per action.
func (e *Engine) SendAlert(ctx context.Context, a Alert) (DispatchResult, error) {
	if strings.TrimSpace(a.Type) == "" {
		return DispatchResult{}, errs.Validation("alert type is required")
	}
	if a.Priority == "" {
		a.Priority = string(pipeline.PriorityMedium)
	}
	rules, err := e.store.ListRules(ctx, true)
	if err != nil {
		return DispatchResult{}, errs.Store("list rules", err)
	}

	fields := a.Fields()
	now := timeNow().UTC()
	res := DispatchResult{MatchedRules: []string{}, Results: []ActionResult{}}
	var jobs []job
	for _, r := range rules {
		if !Matches(r.Conditions, fields) {
			continue
		}
		res.MatchedRules = append(res.MatchedRules, r.ID)
		if err := e.store.RecordRuleTrigger(ctx, r.ID, now); err != nil {
			e.log.Warn("record rule trigger failed", "rule", r.ID, "error", err)
		}
		for _, act := range r.Actions {
			jobs = append(jobs, job{rule: r, action: act})
		}
	}
	if len(jobs) == 0 {
		return res, nil
	}

	results := make([]ActionResult, len(jobs))
	vars := AlertVars(a)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, j := range jobs {
		g.Go(func() error {
			results[i], _ = e.dispatch(gctx, j.rule, j.action, a, fields, vars)
			return nil
		})
	}
	_ = g.Wait()

	res.Results = results
	for _, r := range results {
		if r.Status == StatusSent {
			res.Sent++
		} else {
			res.Failed++
		}
	}
	e.log.Info("alert dispatched", "type", a.Type, "rules", len(res.MatchedRules), "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

// dispatch runs one action and records its notification.
func (e *Engine) dispatch(ctx context.Context, rule store.Rule, act store.RuleAction, a Alert, fields map[string]any, vars Vars) (ActionResult, error) {
	out := ActionResult{RuleID: rule.ID, RuleName: rule.Name, ChannelID: act.ChannelID}
	sendErr := e.send(ctx, act, a, fields, vars)
	out.NotificationID = e.record(ctx, rule.ID, act.ChannelID, fields, sendErr)
	if sendErr != nil {
		out.Status = StatusError
		out.Error = sendErr.Error()
		out.ErrorCode = errs.Code(sendErr)
		e.log.Warn("alert action failed", "rule", rule.ID, "channel", act.ChannelID, "error", sendErr)
		return out, sendErr
	}
	out.Status = StatusSent
	return out, nil
}

func (e *Engine) send(ctx context.Context, act store.RuleAction, a Alert, fields map[string]any, vars Vars) error {
	ch, ok, err := e.store.GetChannel(ctx, act.ChannelID)
	if err != nil {
		return errs.Store("get channel", err)
	}
	if !ok {
		return errs.ChannelNotFound(act.ChannelID, false)
	}
	if !ch.Enabled {
		return errs.ChannelNotFound(act.ChannelID, true)
	}

	subject, body, err := e.render(ctx, act.TemplateID, a, vars)
	if err != nil {
		return err
	}
	sender, err := e.senders.For(ch)
	if err != nil {
		return &errs.DispatchError{ChannelID: ch.ID, Err: err}
	}
	if err := sender.Send(ctx, subject, body, fields); err != nil {
		return &errs.DispatchError{ChannelID: ch.ID, Err: err}
	}
	if err := e.store.TouchChannel(ctx, ch.ID, timeNow().UTC()); err != nil {
		e.log.Warn("touch channel failed", "channel", ch.ID, "error", err)
	}
	return nil
}

// render produces subject and body from the action's template, or the default
// "[PRIORITY] type" subject with the message as body.
func (e *Engine) render(ctx context.Context, templateID string, a Alert, vars Vars) (string, string, error) {
	if templateID == "" {
		return fmt.Sprintf("[%s] %s", strings.ToUpper(a.Priority), a.Type), a.Message, nil
	}
	t, ok, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		return "", "", errs.Store("get template", err)
	}
	if !ok {
		return "", "", errs.NotFound("template", templateID)
	}
	r, err := NewRenderer(t.SubjectTemplate, t.BodyTemplate, t.Format)
	if err != nil {
		return "", "", err
	}
	subject, body := r.Render(vars, timeNow())
	return subject, body, nil
}

func (e *Engine) record(ctx context.Context, ruleID, channelID string, fields map[string]any, sendErr error) string {
	n := store.SentNotification{
		ID:        uuid.NewString(),
		RuleID:    ruleID,
		ChannelID: channelID,
		EventData: fields,
		Status:    StatusSent,
		SentAt:    timeNow().UTC(),
	}
	if sendErr != nil {
		n.Status = StatusError
		n.ErrorMessage = sendErr.Error()
	}
	// The parent context may already be cancelled by a sibling; the audit
	// row is still written.
	if err := e.store.InsertSentNotification(context.WithoutCancel(ctx), n); err != nil {
		e.log.Error("record notification failed", "channel", channelID, "error", err)
	}
	return n.ID
}

// TestChannel sends a synthetic low-priority test alert through one channel.
// The notification is recorded with an empty rule id. A delivery failure is
// returned as the error and also recorded.
func (e *Engine) TestChannel(ctx context.Context, channelID string) (ActionResult, error) {
	if _, ok, err := e.store.GetChannel(ctx, channelID); err != nil {
		return ActionResult{}, errs.Store("get channel", err)
	} else if !ok {
		return ActionResult{}, errs.NotFound("channel", channelID)
	}
	a := Alert{
		Type:     pipeline.EventTest,
		Message:  "Test notification from agentwatch",
		Priority: string(pipeline.PriorityLow),
	}
	return e.dispatch(ctx, store.Rule{}, store.RuleAction{ChannelID: channelID}, a, a.Fields(), AlertVars(a))
}

// SentFilter narrows ListSent.
type SentFilter = store.SentFilter

// ListSent returns delivery records, newest first.
func (e *Engine) ListSent(ctx context.Context, f SentFilter) ([]store.SentNotification, error) {
	out, err := e.store.ListSentNotifications(ctx, f)
	if err != nil {
		return nil, errs.Store("list sent notifications", err)
	}
	return out, nil
}

// HandleEvent makes the engine a pipeline sink. It returns at once: dispatch
// runs in the background, detached from the emitter's cancellation, with at
// most Options.Pending in flight. Events past that bound or after Close are
// dropped and logged.
func (e *Engine) HandleEvent(ctx context.Context, ev pipeline.Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.log.Warn("alert engine closed, event dropped", "event", ev.Type)
		return
	}
	select {
	case e.slots <- struct{}{}:
	default:
		e.mu.Unlock()
		e.log.Warn("alert dispatch backlog full, event dropped", "event", ev.Type)
		return
	}
	e.inflight.Add(1)
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer func() {
			<-e.slots
			e.inflight.Done()
		}()
		if _, err := e.SendAlert(ctx, FromEvent(ev)); err != nil {
			e.log.Error("alert dispatch failed", "event", ev.Type, "error", err)
		}
	}()
}
