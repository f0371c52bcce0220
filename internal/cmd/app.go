package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/qrlink/internal/config"
	"github.com/felixgeelhaar/qrlink/internal/credstore"
	"github.com/felixgeelhaar/qrlink/internal/linking"
	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/metrics"
	"github.com/felixgeelhaar/qrlink/internal/platform"
	"github.com/felixgeelhaar/qrlink/internal/realtime"
	"github.com/felixgeelhaar/qrlink/internal/security"
	"github.com/felixgeelhaar/qrlink/internal/session"
	"github.com/felixgeelhaar/qrlink/internal/telemetry"
	"github.com/felixgeelhaar/qrlink/internal/ux"
	"github.com/felixgeelhaar/qrlink/internal/version"
)

// app is the dependency graph of one command invocation.
type app struct {
	cmdCtx *CommandContext
	name   string
	start  time.Time

	home     string
	cfg      *config.Config
	logger   *log.Logger
	notify   *ux.Notifier
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store   *credstore.Store
	client  *platform.Client
	channel *realtime.Channel
	session *session.Machine
	flow    *linking.Flow
	audit   *security.AuditLogger

	closers []func() error
}

type appOptions struct {
	// processMetrics adds the Go runtime and process collectors.
	processMetrics bool
}

// newApp wires config, logging, metrics, tracing, the credential store, the
// API client, the realtime channel, the session machine and the audit log.
// The stored session is not loaded; see loadSession.
func newApp(cmd *cobra.Command, opts ...func(*appOptions)) (*app, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to create command context: %w", err)
	}

	home, err := config.HomeDir(cmdCtx.Home)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(home)
	if err != nil {
		return nil, err
	}

	a := &app{
		cmdCtx: cmdCtx,
		name:   cmd.CommandPath(),
		start:  time.Now(),
		home:   home,
		cfg:    cfg,
		notify: cmdCtx.Notifier(cmd),
	}

	a.logger = newLogger(cmd, cmdCtx, cfg)
	log.SetDefaultLogger(a.logger)

	if o.processMetrics {
		a.registry, a.metrics = metrics.NewProcessRegistry()
	} else {
		a.registry, a.metrics = metrics.NewRegistry()
	}

	shutdownTracing, err := telemetry.InitProvider(cmd.Context(), telemetry.FromSettings(cfg.Telemetry, version.Version))
	if err != nil {
		a.logger.Warn("tracing disabled", "error", err)
	} else {
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return shutdownTracing(ctx)
		})
	}

	store, closeStore, err := credstore.Open(cfg.Store, a.logger, credstore.WithMetrics(a.metrics))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	a.client = platform.NewClient(cfg.API.BaseURL,
		platform.WithTimeout(cfg.API.Timeout),
		platform.WithLogger(a.logger),
		platform.WithMetrics(a.metrics),
	)

	a.channel = realtime.New(realtime.Config{
		BaseURL:    cfg.RealtimeBaseURL(),
		Path:       cfg.Realtime.Path,
		Reconnect:  cfg.Realtime.Reconnect,
		MaxBackoff: cfg.Realtime.MaxBackoff,
	}, realtime.WithLogger(a.logger), realtime.WithMetrics(a.metrics))

	a.session = session.New(a.store, a.channel,
		session.WithLogger(a.logger),
		session.WithMetrics(a.metrics),
		session.WithReconnectOnRotation(cfg.Session.ReconnectOnRotation),
	)

	a.flow = linking.NewFlow(a.client, linking.WithLogger(a.logger), linking.WithMetrics(a.metrics))

	audit, err := security.NewAuditLogger(filepath.Join(home, "audit"))
	if err != nil {
		a.logger.Warn("audit trail disabled", "error", err)
	} else {
		a.audit = audit
		a.closers = append(a.closers, audit.Close)
	}

	return a, nil
}

func withProcessMetrics() func(*appOptions) {
	return func(o *appOptions) { o.processMetrics = true }
}

func newLogger(cmd *cobra.Command, cmdCtx *CommandContext, cfg *config.Config) *log.Logger {
	logCfg := log.DefaultConfig()
	if cmdCtx.Verbose {
		logCfg = log.DevelopmentConfig()
	}
	logCfg.Output = cmd.ErrOrStderr()
	logCfg.ServiceVersion = version.Version
	logCfg.Format = log.ParseFormat(cfg.Log.Format)

	level := cfg.Log.Level
	if cmdCtx.LogLevel != "" {
		level = cmdCtx.LogLevel
	}
	if !cmdCtx.Verbose {
		logCfg.Level = log.ParseLevel(level)
	}
	if cmdCtx.Quiet {
		logCfg.Level = log.LevelError
	}

	return log.New(logCfg).With("command", cmd.CommandPath())
}

// loadSession restores the stored session. An unreadable store is reported
// as a warning and the command continues anonymous.
func (a *app) loadSession(ctx context.Context) session.Snapshot {
	if err := a.session.LoadStoredData(ctx); err != nil {
		a.notify.Warn("Stored session ignored: " + err.Error())
	}
	return a.session.Snapshot()
}

// auditor returns nil when the audit trail could not be opened. The
// AuditLogger helpers are nil-safe.
func (a *app) auditor() *security.AuditLogger {
	return a.audit
}

// record reports the command outcome to metrics.
func (a *app) record(err error) {
	a.metrics.RecordCommand(a.name, time.Since(a.start), err == nil)
}

// Close shuts the realtime channel and releases backends. Stored
// credentials are never touched.
func (a *app) Close() error {
	var first error
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			first = err
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}
