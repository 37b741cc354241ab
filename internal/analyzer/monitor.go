package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/metrics"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/store"
	"github.com/anthropic/agentwatch/internal/watcher"
)

// Monitoring session statuses.
const (
	SessionActive  = "active"
	SessionStopped = "stopped"
)

// ThresholdRiskScore is the thresholds key checked against every
// watcher-sourced record's risk score.
const ThresholdRiskScore = "riskScore"

// MonitorConfig describes a new monitoring session.
type MonitorConfig struct {
	ProjectPath        string         `json:"projectPath"`
	WatchPatterns      []string       `json:"watchPatterns,omitempty"`
	NotificationConfig map[string]any `json:"notificationConfig,omitempty"`
	Thresholds         map[string]any `json:"thresholds,omitempty"`
}

// SessionInfo is a stored session plus its in-process watcher state.
type SessionInfo struct {
	store.MonitoringSession
	Live  bool           `json:"live"`
	Queue *watcher.Stats `json:"queue,omitempty"`
}

// Registry holds the live watcher of every attached session, keyed by
// session id. Watchers exist only in process memory.
type Registry struct {
	mu   sync.Mutex
	live map[string]*liveSession
}

type liveSession struct {
	session store.MonitoringSession
	w       *watcher.Watcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*liveSession)}
}

func (r *Registry) add(ls *liveSession) {
	r.mu.Lock()
	r.live[ls.session.ID] = ls
	r.mu.Unlock()
}

func (r *Registry) remove(id string) *liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls := r.live[id]
	delete(r.live, id)
	return ls
}

func (r *Registry) get(id string) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.live[id]
	return ls, ok
}

// IDs returns the attached session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) drain() []*liveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*liveSession, 0, len(r.live))
	for id, ls := range r.live {
		out = append(out, ls)
		delete(r.live, id)
	}
	return out
}

// SetupMonitoring persists an active session and attaches a filesystem
// watcher to its project. Every debounced event is tracked as a change by
// agent WatcherAgentID.
func (a *Analyzer) SetupMonitoring(ctx context.Context, cfg MonitorConfig) (string, error) {
	if strings.TrimSpace(cfg.ProjectPath) == "" {
		return "", errs.Validation("projectPath is required")
	}
	root, err := filepath.Abs(cfg.ProjectPath)
	if err != nil {
		return "", errs.Validation("projectPath %q: %v", cfg.ProjectPath, err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", errs.Validation("projectPath %s is not a directory", root)
	}
	if bad, ok := watcher.ValidatePatterns(cfg.WatchPatterns); !ok {
		return "", errs.Validation("invalid watch pattern %q", bad)
	}
	if v, ok := cfg.Thresholds[ThresholdRiskScore]; ok {
		if _, ok := metrics.Number(v); !ok {
			return "", errs.Validation("threshold %s must be a number", ThresholdRiskScore)
		}
	}

	now := timeNow().UTC()
	sess := store.MonitoringSession{
		ID:                 uuid.NewString(),
		ProjectPath:        root,
		WatchPatterns:      cfg.WatchPatterns,
		NotificationConfig: cfg.NotificationConfig,
		Thresholds:         cfg.Thresholds,
		Status:             SessionActive,
		CreatedAt:          now,
	}

	opts := a.watchOpts
	opts.WatchPatterns = cfg.WatchPatterns
	opts.Logger = a.log.With("session", sess.ID)
	w := watcher.New(root, opts, a.watchHandler(sess))

	// The watcher outlives the request that created it.
	if err := w.Start(context.Background()); err != nil {
		return "", fmt.Errorf("start watcher: %w", err)
	}
	if err := a.store.InsertSession(ctx, sess); err != nil {
		w.Stop()
		return "", errs.Store("insert monitoring session", err)
	}
	a.registry.add(&liveSession{session: sess, w: w})

	a.log.Info("monitoring started", "session", sess.ID, "project", root, "patterns", cfg.WatchPatterns)
	a.sink.HandleEvent(ctx, pipeline.Event{
		Type:        pipeline.EventMonitoringStarted,
		ProjectPath: root,
		Message:     "Monitoring started for " + root,
		Metadata:    map[string]any{"sessionId": sess.ID, "watchPatterns": cfg.WatchPatterns},
		Priority:    pipeline.PriorityLow,
		Timestamp:   now,
	})
	return sess.ID, nil
}

func (a *Analyzer) watchHandler(sess store.MonitoringSession) watcher.Handler {
	threshold, hasThreshold := metrics.Number(sess.Thresholds[ThresholdRiskScore])
	log := a.log.With("session", sess.ID)

	return func(ev watcher.Event) {
		ctx := context.Background()
		var ct ChangeType
		switch ev.Op {
		case watcher.OpCreate:
			ct = ChangeCreate
		case watcher.OpDelete:
			ct = ChangeDelete
		default:
			ct = ChangeModify
		}

		recs, err := a.TrackChanges(ctx, ChangeBatch{
			ProjectPath: sess.ProjectPath,
			ChangeType:  string(ct),
			Files:       []string{ev.Path},
			AgentID:     WatcherAgentID,
		})
		if err != nil {
			log.Warn("dropping watch event", "path", ev.Path, "op", ev.Op, "error", err)
			return
		}
		if err := a.store.TouchSession(ctx, sess.ID, ev.Timestamp.UTC()); err != nil {
			log.Warn("touch session", "error", err)
		}

		if !hasThreshold {
			return
		}
		for _, rec := range recs {
			if rec.RiskScore < threshold {
				continue
			}
			a.sink.HandleEvent(ctx, pipeline.Event{
				Type:        pipeline.EventThresholdExceeded,
				ProjectPath: rec.ProjectPath,
				AgentID:     rec.AgentID,
				Message:     fmt.Sprintf("Risk score %.1f of %s exceeds threshold %.1f", rec.RiskScore, rec.FilePath, threshold),
				Metadata: map[string]any{
					"sessionId": sess.ID,
					"threshold": threshold,
					"riskScore": rec.RiskScore,
					"filePath":  rec.FilePath,
					"changeId":  rec.ID,
					"impact":    rec.ImpactLevel,
				},
				Priority:  ImpactLevel(rec.ImpactLevel).Priority(),
				Timestamp: rec.Timestamp,
			})
		}
	}
}

// StopMonitoring detaches the session's watcher and marks it stopped.
// Events queued before the call are still processed. Stopping a stopped
// session is a no-op.
func (a *Analyzer) StopMonitoring(ctx context.Context, sessionID string) error {
	sess, ok, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return errs.Store("get monitoring session", err)
	}
	if !ok {
		return errs.NotFound("monitoring session", sessionID)
	}

	if ls := a.registry.remove(sessionID); ls != nil {
		ls.w.Stop()
	}
	if sess.Status == SessionStopped {
		return nil
	}
	if err := a.store.SetSessionStatus(ctx, sessionID, SessionStopped); err != nil {
		return errs.Store("stop monitoring session", err)
	}

	a.log.Info("monitoring stopped", "session", sessionID, "project", sess.ProjectPath)
	a.sink.HandleEvent(ctx, pipeline.Event{
		Type:        pipeline.EventMonitoringStopped,
		ProjectPath: sess.ProjectPath,
		Message:     "Monitoring stopped for " + sess.ProjectPath,
		Metadata:    map[string]any{"sessionId": sessionID},
		Priority:    pipeline.PriorityLow,
		Timestamp:   timeNow().UTC(),
	})
	return nil
}

// ListSessions returns stored sessions with their live watcher state. An
// empty status lists all of them.
func (a *Analyzer) ListSessions(ctx context.Context, status string) ([]SessionInfo, error) {
	sessions, err := a.store.ListSessions(ctx, status)
	if err != nil {
		return nil, errs.Store("list monitoring sessions", err)
	}
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := SessionInfo{MonitoringSession: s}
		if ls, ok := a.registry.get(s.ID); ok {
			st := ls.w.Stats()
			info.Live = true
			info.Queue = &st
		}
		out = append(out, info)
	}
	return out, nil
}

// ReconcileSessions returns sessions the store marks active that have no
// watcher in this process, typically left over from a previous run. They are
// reported only; re-attaching is up to the operator.
func (a *Analyzer) ReconcileSessions(ctx context.Context) ([]store.MonitoringSession, error) {
	active, err := a.store.ListSessions(ctx, SessionActive)
	if err != nil {
		return nil, errs.Store("list active sessions", err)
	}
	stale := []store.MonitoringSession{}
	for _, s := range active {
		if _, ok := a.registry.get(s.ID); !ok {
			stale = append(stale, s)
		}
	}
	return stale, nil
}

// Close stops every live watcher and waits for their queues to drain.
// Session rows keep their status, so they show up as stale on the next run.
func (a *Analyzer) Close() {
	for _, ls := range a.registry.drain() {
		ls.w.Stop()
		<-ls.w.Done()
	}
}
