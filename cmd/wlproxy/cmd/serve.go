package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/wlproxy/wlproxy/internal/adapter/outbound/audit"
	"github.com/wlproxy/wlproxy/internal/adapter/outbound/state"
	"github.com/wlproxy/wlproxy/internal/config"
	"github.com/wlproxy/wlproxy/internal/domain/globalmap"
	"github.com/wlproxy/wlproxy/internal/session"
	"github.com/wlproxy/wlproxy/internal/telemetry"
	"github.com/wlproxy/wlproxy/pkg/wlproto"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy, accepting client connections",
	Long: `serve binds the client-facing listening socket, dials the real
compositor once per accepted client, and proxies the Wayland wire
protocol between them until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("serve: load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.DevMode)
	slog.SetDefault(logger)

	listenPath, err := config.ResolveSocketPath(cfg.Listen.SocketPath)
	if err != nil {
		return fmt.Errorf("serve: resolve listen socket path: %w", err)
	}
	upstreamPath, err := config.ResolveSocketPath(cfg.Upstream.SocketPath)
	if err != nil {
		return fmt.Errorf("serve: resolve upstream socket path: %w", err)
	}
	if upstreamPath == listenPath {
		return fmt.Errorf("serve: listen and upstream resolve to the same socket path %q; set upstream.socket_path explicitly", listenPath)
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	wlproto.CrossClientDropHook = metrics.CrossClientDrop

	auditStore, err := buildAuditStore(cfg.Audit.Output, logger)
	if err != nil {
		return fmt.Errorf("serve: build audit store: %w", err)
	}
	defer auditStore.Close()

	filter, err := buildFilter(cfg.GlobalFilter)
	if err != nil {
		return fmt.Errorf("serve: build global filter: %w", err)
	}

	statePath := stateFilePath
	if statePath == "" {
		statePath = cfg.State.Path
	}
	if statePath == "" {
		if resolved, err := config.ResolveSocketPath("wlproxy-state.json"); err == nil {
			statePath = resolved
		}
	}
	var stateStore *state.FileStateStore
	if statePath != "" {
		stateStore = state.NewFileStateStore(statePath, logger)
		if _, err := stateStore.Load(); err != nil {
			logger.Warn("failed to load state file, continuing with defaults", "path", statePath, "error", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var tracer *telemetry.Tracing
	sessionTracer := telemetry.NoopTracer()
	if cfg.Telemetry.TracingEnabled {
		tracer, err = telemetry.NewTracing(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("serve: build tracing: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer shutdownCancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
		sessionTracer = tracer.Tracer
	}

	var otelMetrics *telemetry.OtelMetrics
	if cfg.Telemetry.TracingEnabled {
		otelMetrics, err = telemetry.NewOtelMetrics(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return fmt.Errorf("serve: build otel metrics: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer shutdownCancel()
			if err := otelMetrics.Shutdown(shutdownCtx); err != nil {
				logger.Warn("otel metrics shutdown failed", "error", err)
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Telemetry.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("serving metrics", "addr", cfg.Telemetry.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	synthetic := make([]session.SyntheticGlobal, 0, len(cfg.SyntheticGlobals))
	for _, g := range cfg.SyntheticGlobals {
		synthetic = append(synthetic, session.SyntheticGlobal{Interface: g.Interface, Version: g.Version})
	}

	sessCfg := session.Config{
		Table:              wlproto.NewDescriptorTable(),
		SyntheticGlobals:   synthetic,
		Filter:             filter,
		HighWaterMarkBytes: cfg.Buffers.HighWaterMarkBytes,
		Metrics:            metrics,
		OtelMetrics:        otelMetrics,
		Audit:              auditStore,
		Tracer:             sessionTracer,
		State:              stateStore,
		Logger:             logger,
	}

	ln := session.NewListener(listenPath, upstreamPath, sessCfg, logger)

	serveErr := make(chan error, 1)
	go func() { serveErr <- ln.Serve(ctx) }()

	<-ctx.Done()
	logger.Info("shutting down")
	ln.Shutdown()

	if err := <-serveErr; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

const shutdownGrace = 5 * time.Second

// buildAuditStore constructs the audit.Store named by output: "stdout",
// "file://<dir>", or "sqlite://<path>" (validated at config-load time by
// internal/config.validateAuditOutput, so the scheme here is trusted).
func buildAuditStore(output string, logger *slog.Logger) (audit.Store, error) {
	switch {
	case output == "stdout":
		return audit.NewStdoutAuditStore(os.Stdout, 0), nil
	case strings.HasPrefix(output, "file://"):
		dir := strings.TrimPrefix(output, "file://")
		return audit.NewFileAuditStore(audit.AuditFileConfig{Dir: dir}, logger)
	case strings.HasPrefix(output, "sqlite://"):
		path := strings.TrimPrefix(output, "sqlite://")
		return audit.NewSQLiteAuditStore(path, 1000)
	default:
		return nil, fmt.Errorf("unrecognized audit output %q", output)
	}
}

// buildFilter compiles the declarative global-filter rules, or returns
// nil when none are configured: a nil *globalmap.Filter means every
// global forwards, matching Mapper's own default.
func buildFilter(rules []config.GlobalFilterRule) (*globalmap.Filter, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	configured := make([]globalmap.ConfiguredRule, 0, len(rules))
	for _, r := range rules {
		configured = append(configured, globalmap.ConfiguredRule{Name: r.Name, Condition: r.Condition, Action: r.Action})
	}
	return globalmap.NewFilter(configured)
}

// newLogger builds the process-wide slog.Logger from the configured
// level; DevMode switches to a human-readable text handler on stderr,
// matching the teacher's dev/prod logging split.
func newLogger(level string, devMode bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if devMode {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
