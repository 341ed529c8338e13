package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowgate/flowgate/internal/admission"
	"github.com/flowgate/flowgate/internal/affinity"
	"github.com/flowgate/flowgate/internal/audit"
	"github.com/flowgate/flowgate/internal/config"
	"github.com/flowgate/flowgate/internal/forward"
	"github.com/flowgate/flowgate/internal/router"
	"github.com/flowgate/flowgate/internal/server"
	"github.com/flowgate/flowgate/internal/status"
	"github.com/flowgate/flowgate/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/flowgate.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting flowgate",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	backends := make([]string, len(cfg.Backends))
	targets := make([]float64, len(cfg.Backends))
	for i := range cfg.Backends {
		backends[i] = cfg.Backends[i].URL
		targets[i] = cfg.TargetQPSFor(i)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"backends", len(backends),
		"time_window", cfg.Admission.TimeWindow,
		"forwarding_mode", cfg.Forwarding.Mode,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Core components: admission controller, affinity table, forwarder.
	ctrl := admission.NewController(cfg.Admission.TimeWindow, targets)
	table := affinity.NewTable(len(backends), func(b int) float64 {
		return ctrl.EstimateQPS(b, time.Now())
	}, logger)

	fwdOpts := []forward.Option{forward.WithLogger(logger)}
	if cfg.Forwarding.Timeout > 0 {
		fwdOpts = append(fwdOpts, forward.WithTimeout(cfg.Forwarding.Timeout))
	}
	fwd := forward.New(fwdOpts...)

	// Optional audit trail.
	var routerOpts []router.Option
	var auditWriter *audit.Writer
	if cfg.AuditEnabled() {
		logger.Info("connecting to audit database",
			"host", cfg.Audit.Database.Host,
			"database", cfg.Audit.Database.Name,
		)
		pool, err := audit.Connect(ctx, cfg.Audit.Database)
		if err != nil {
			logger.Error("failed to connect to audit database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		buf := audit.NewBuffer(cfg.Audit.BufferSize)
		auditWriter = audit.NewWriter(audit.WriterConfig{
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: cfg.Audit.FlushInterval,
		}, buf, pool, logger)
		routerOpts = append(routerOpts, router.WithSink(func(rec router.Record) {
			buf.Send(rec)
		}))
	}

	// Router
	rt := router.New(router.Config{
		Backends:     backends,
		PollInterval: cfg.Dispatch.PollInterval,
		HistorySize:  cfg.Dispatch.HistorySize,
	}, table, ctrl, fwd, logger, routerOpts...)

	if err := rt.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	if auditWriter != nil {
		if err := auditWriter.Start(ctx); err != nil {
			logger.Error("failed to start audit writer", "error", err)
			os.Exit(1)
		}
	}

	// Status reporter with live feed.
	feed := status.NewFeed(logger)
	reporter := status.New(status.Config{Interval: cfg.Status.Interval}, rt, feed, logger)
	if err := reporter.Start(ctx); err != nil {
		logger.Error("failed to start status reporter", "error", err)
		os.Exit(1)
	}

	// HTTP servers: public routing surface and admin/observability surface.
	srv := server.New(server.Config{Mode: cfg.Forwarding.Mode}, rt, fwd, logger)

	public := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Handler(),
	}
	admin := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.AdminPort),
		Handler: server.AdminHandler(rt, feed, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("public server listening", "addr", public.Addr)
		if err := public.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("public server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("admin server listening", "addr", admin.Addr)
		if err := admin.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		public.Shutdown(shutdownCtx)
		admin.Shutdown(shutdownCtx)
		return nil
	})

	logger.Info("flowgate running",
		"instance_id", cfg.Instance.ID,
		"status_url", fmt.Sprintf("http://localhost:%d/status", cfg.Server.AdminPort),
	)

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		cancel()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	reporter.Stop(shutdownCtx)
	rt.Stop(shutdownCtx)
	if auditWriter != nil {
		auditWriter.Stop(shutdownCtx)
	}
	feed.Close()

	logger.Info("flowgate stopped")
}
