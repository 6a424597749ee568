// Command buildcore runs the configuration engine for one project: it
// hydrates state from the configured stores, serves Prometheus metrics, and
// mirrors changes back out until interrupted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"buildcore/internal/core"
	"buildcore/internal/observability"
	"buildcore/internal/sync"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "buildcore:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("buildcore", flag.ContinueOnError)
	projectID := fs.String("project", "default", "project identifier")
	metricsAddr := fs.String("metrics-addr", "", "listen address for /metrics (empty disables)")
	archiveNow := fs.Bool("archive", false, "write a point-in-time snapshot archive and exit")
	showMetrics := fs.Bool("derived", false, "print derived metrics as JSON and exit")
	logLevel := fs.String("log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  *logLevel,
		Format: "json",
		Fields: map[string]string{"service": "buildcore", "project_id": *projectID},
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(),
		core.WithLogger(logger),
		core.WithMetrics(observability.NewRecorder()))

	syncer, closeCache, err := sync.OpenFromEnv(ctx, svc, *projectID, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeCache() }()

	source, err := syncer.Hydrate(ctx)
	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}
	logger.Info("state hydrated", zap.String("source", string(source)))

	if *showMetrics || *archiveNow {
		// One-shot commands act on the reconciled state, not the cache echo.
		if src, err := syncer.Reconcile(ctx); err != nil {
			logger.Warn("remote reconcile failed, using local state", zap.Error(err))
		} else if src == sync.SourceRemote {
			logger.Info("state reconciled", zap.String("source", string(src)))
		}
	}

	if *showMetrics {
		out, err := json.MarshalIndent(svc.Metrics(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	syncer.Start()
	defer func() {
		if err := syncer.Close(context.Background()); err != nil {
			logger.Warn("final flush failed", zap.Error(err))
		}
	}()

	if *archiveNow {
		key, err := syncer.ArchiveSnapshot(ctx)
		if err != nil {
			return err
		}
		logger.Info("snapshot archived", zap.String("key", key))
		return nil
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		logger.Info("metrics listening", zap.String("addr", *metricsAddr))
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
