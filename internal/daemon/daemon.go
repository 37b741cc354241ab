package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/anthropic/agentwatch/internal/analyzer"
	"github.com/anthropic/agentwatch/internal/config"
	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/ingest"
	"github.com/anthropic/agentwatch/internal/ipc"
	"github.com/anthropic/agentwatch/internal/logger"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/report"
	"github.com/anthropic/agentwatch/internal/server"
)

// shutdownTimeout bounds the HTTP server drain.
const shutdownTimeout = 5 * time.Second

// IPCServer is the interface the daemon uses to start/stop the IPC listener.
type IPCServer interface {
	Listen(ctx context.Context, socketPath string) error
	Stop() error
}

// BackendAware can receive the daemon once its components are built.
type BackendAware interface {
	SetBackend(b ipc.Backend)
}

// Daemon manages the lifecycle of the agentwatch background process.
type Daemon struct {
	cfg       *config.Config
	log       *logger.Logger
	ipc       IPCServer
	startTime time.Time

	comp *Components

	httpSrv  *http.Server
	httpAddr string

	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// New creates a new Daemon with the given config.
// The IPC server is injected to avoid circular imports.
func New(cfg *config.Config, ipcServer IPCServer, log *logger.Logger) *Daemon {
	return &Daemon{
		cfg: cfg,
		ipc: ipcServer,
		log: logger.OrNop(log),
	}
}

// Start opens the store, builds the pipeline, starts the IPC, HTTP and inbox
// listeners, and blocks until the context is cancelled (via signal or Stop).
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.mu.Unlock()

	if err := d.cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Open store (runs migrations) and wire the pipeline.
	comp, err := Open(d.cfg, d.log)
	if err != nil {
		return err
	}
	d.comp = comp

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	d.mu.Lock()
	d.ctx = ctx
	d.cancel = cancel
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	if err := d.seedAlerts(ctx); err != nil {
		_ = d.shutdown()
		return err
	}
	d.reconcile(ctx)

	if err := d.startHTTP(); err != nil {
		_ = d.shutdown()
		return err
	}

	if ba, ok := d.ipc.(BackendAware); ok {
		ba.SetBackend(d)
	}
	ipcErrCh := make(chan error, 1)
	go func() {
		ipcErrCh <- d.ipc.Listen(ctx, d.cfg.SocketPath)
	}()

	bgCtx, bgCancel := context.WithCancel(ctx)
	d.bgCancel = bgCancel
	if d.cfg.InboxPath != "" {
		inbox := ingest.NewInbox(d.cfg.InboxPath, comp.Store, comp.Dispatcher, d.log, 0)
		d.goBackground(func() {
			if err := inbox.Run(bgCtx); err != nil {
				d.log.Error("inbox stopped", "error", err)
			}
		})
	}
	if d.cfg.Reports.Interval > 0 {
		req := report.Request{Timeframe: string(pipeline.LastDay), Format: d.cfg.Reports.Format}
		d.goBackground(func() { d.comp.Reports.Schedule(bgCtx, d.cfg.Reports.Interval, req) })
	}

	d.log.Info("daemon started",
		"pid", os.Getpid(),
		"db", d.cfg.DBPath,
		"socket", d.cfg.SocketPath,
		"http", d.httpAddr,
		"inbox", d.cfg.InboxPath,
	)

	// Block until context is cancelled or IPC server fails.
	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
	case err := <-ipcErrCh:
		if err != nil {
			d.log.Error("IPC server error", "error", err)
		}
	}

	return d.shutdown()
}

// seedAlerts loads the configured channels, templates and rules. Entries
// whose names already exist are left alone, so restarts are harmless.
func (d *Daemon) seedAlerts(ctx context.Context) error {
	path := d.cfg.Alerting.SeedFile
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read alert seed: %w", err)
	}
	res, err := d.comp.Alerts.LoadSeed(ctx, data)
	if err != nil {
		return fmt.Errorf("load alert seed %s: %w", path, err)
	}
	d.log.Info("alert seed loaded", "file", path,
		"channels", res.Channels, "templates", res.Templates, "rules", res.Rules, "skipped", res.Skipped)
	return nil
}

// reconcile reports monitoring sessions left active by a previous run.
func (d *Daemon) reconcile(ctx context.Context) {
	stale, err := d.comp.Analyzer.ReconcileSessions(ctx)
	if err != nil {
		d.log.Warn("reconcile monitoring sessions", "error", err)
		return
	}
	for _, s := range stale {
		d.log.Warn("monitoring session has no watcher; stop it or start a new one",
			"session", s.ID, "project", s.ProjectPath, "lastActivity", s.LastActivity)
	}
}

func (d *Daemon) startHTTP() error {
	if d.cfg.HTTPAddr == "" {
		return nil
	}
	handler, err := server.New(server.Config{
		Store:    d.comp.Store,
		Ledger:   d.comp.Ledger,
		Analyzer: d.comp.Analyzer,
		Alerts:   d.comp.Alerts,
		Reports:  d.comp.Reports,
		Ingest:   d.comp.Dispatcher,
		Logger:   d.log.With("component", "http"),
	})
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}
	ln, err := net.Listen("tcp", d.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.HTTPAddr, err)
	}
	d.httpAddr = ln.Addr().String()
	d.httpSrv = &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := d.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("http server error", "error", err)
		}
	}()
	return nil
}

func (d *Daemon) goBackground(fn func()) {
	d.bg.Add(1)
	go func() {
		defer d.bg.Done()
		fn()
	}()
}

// Stop triggers a graceful shutdown from outside (e.g. via IPC stop command).
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// shutdown performs ordered teardown: background loops, HTTP, IPC, then
// watchers, senders and the store.
func (d *Daemon) shutdown() error {
	d.log.Info("shutting down...")

	// Background loops first so the inbox offset is persisted before the
	// store closes.
	if d.bgCancel != nil {
		d.bgCancel()
	}
	d.bg.Wait()

	if d.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.httpSrv.Shutdown(ctx); err != nil {
			d.log.Warn("http shutdown", "error", err)
		}
		cancel()
	}

	if d.ipc != nil {
		if err := d.ipc.Stop(); err != nil {
			d.log.Warn("ipc stop", "error", err)
		}
	}

	// Watchers drain into the store before it closes.
	if d.comp != nil {
		if err := d.comp.Close(); err != nil {
			d.log.Warn("close components", "error", err)
		}
	}

	_ = os.Remove(d.cfg.SocketPath)

	d.mu.Lock()
	d.running = false
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	d.log.Info("daemon stopped")
	return nil
}

// Running returns true if the daemon is currently running.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Uptime returns how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

// Config returns the daemon's configuration.
func (d *Daemon) Config() *config.Config {
	return d.cfg
}

// ---------------------------------------------------------------------------
// IPC backend
// ---------------------------------------------------------------------------

// Status reports uptime, store size and row counts.
func (d *Daemon) Status(ctx context.Context) (ipc.StatusData, error) {
	counts, err := d.comp.Store.Counts(ctx)
	if err != nil {
		return ipc.StatusData{}, errs.Store("counts", err)
	}
	size, err := d.comp.Store.DBSizeBytes()
	if err != nil {
		return ipc.StatusData{}, errs.Store("db size", err)
	}
	version, err := d.comp.Store.SchemaVersion(ctx)
	if err != nil {
		return ipc.StatusData{}, errs.Store("schema version", err)
	}
	sessions, err := d.comp.Analyzer.ListSessions(ctx, analyzer.SessionActive)
	if err != nil {
		return ipc.StatusData{}, err
	}
	monitors := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if s.Live {
			monitors = append(monitors, s.ProjectPath)
		}
	}
	return ipc.StatusData{
		Uptime:         d.Uptime().Truncate(time.Second).String(),
		PID:            os.Getpid(),
		DBPath:         d.cfg.DBPath,
		DBSizeBytes:    size,
		SchemaVersion:  version,
		Counts:         counts,
		ActiveMonitors: monitors,
		InboxPath:      d.cfg.InboxPath,
		HTTPAddr:       d.httpAddr,
	}, nil
}

// Ingest dispatches one envelope.
func (d *Daemon) Ingest(ctx context.Context, envelope []byte) (any, error) {
	return d.comp.Dispatcher.Dispatch(ctx, envelope)
}

// StartMonitor starts a monitoring session from a JSON MonitorConfig.
func (d *Daemon) StartMonitor(ctx context.Context, raw []byte) (any, error) {
	var cfg analyzer.MonitorConfig
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errs.Validation("invalid monitor config: %v", err)
	}
	id, err := d.comp.Analyzer.SetupMonitoring(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return map[string]string{"sessionId": id}, nil
}

// StopMonitor stops a monitoring session.
func (d *Daemon) StopMonitor(ctx context.Context, sessionID string) error {
	return d.comp.Analyzer.StopMonitoring(ctx, sessionID)
}

// ListMonitors returns every monitoring session.
func (d *Daemon) ListMonitors(ctx context.Context) (any, error) {
	return d.comp.Analyzer.ListSessions(ctx, "")
}
