package daemon

import (
	"errors"
	"fmt"

	"github.com/anthropic/agentwatch/internal/alerting"
	"github.com/anthropic/agentwatch/internal/analyzer"
	"github.com/anthropic/agentwatch/internal/config"
	"github.com/anthropic/agentwatch/internal/ingest"
	"github.com/anthropic/agentwatch/internal/ledger"
	"github.com/anthropic/agentwatch/internal/logger"
	"github.com/anthropic/agentwatch/internal/pipeline"
	"github.com/anthropic/agentwatch/internal/report"
	"github.com/anthropic/agentwatch/internal/store"
	"github.com/anthropic/agentwatch/internal/watcher"
)

// Components is the wired pipeline around one open store. The daemon runs
// it; the CLI opens it directly for reads and administration.
type Components struct {
	Store      *store.Store
	Ledger     *ledger.Ledger
	Analyzer   *analyzer.Analyzer
	Alerts     *alerting.Engine
	Reports    *report.Compiler
	Dispatcher *ingest.Dispatcher
}

// Open opens the store at cfg.DBPath and builds every component. Each
// emitter publishes to one fanout whose only subscriber is the alerting
// engine.
func Open(cfg *config.Config, log *logger.Logger) (*Components, error) {
	log = logger.OrNop(log)
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sink := &pipeline.Fanout{}
	ac := cfg.Alerting
	alerts := alerting.New(alerting.Options{
		Store: s,
		Senders: alerting.NewSenders(alerting.SendersOptions{
			Logger:         log,
			WebhookTimeout: ac.WebhookTimeout,
			SMTP:           ac.SMTP,
			RedisAddr:      ac.RedisAddr,
		}),
		Logger:  log.With("component", "alerting"),
		Workers: ac.Workers,
	})
	sink.Add(alerts)

	c := &Components{
		Store:  s,
		Alerts: alerts,
		Ledger: ledger.New(ledger.Options{
			Store:  s,
			Sink:   sink,
			Logger: log.With("component", "ledger"),
		}),
		Analyzer: analyzer.New(analyzer.Options{
			Store:  s,
			Sink:   sink,
			Logger: log.With("component", "analyzer"),
			Watcher: watcher.Options{
				Debounce:       cfg.Watcher.Debounce,
				QueueSize:      cfg.Watcher.QueueSize,
				IgnorePatterns: cfg.Watcher.IgnorePatterns,
			},
		}),
		Reports: report.New(report.Options{
			Store:  s,
			Dir:    cfg.ReportsDir,
			Sink:   sink,
			Logger: log.With("component", "report"),
		}),
	}
	c.Dispatcher = ingest.NewDispatcher(c.Ledger, c.Analyzer)
	return c, nil
}

// Close stops live watchers, closes sender connections and then the store.
func (c *Components) Close() error {
	c.Analyzer.Close()
	return errors.Join(c.Alerts.Close(), c.Store.Close())
}
