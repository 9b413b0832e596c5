// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/rangestats/pkg/logging"
	"github.com/AleutianAI/rangestats/services/rangestats"
	"github.com/AleutianAI/rangestats/services/rangestats/config"
	"github.com/AleutianAI/rangestats/services/rangestats/telemetry"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve runs the API (and the metrics endpoint, when configured) until ctx
// is canceled, then shuts both down within the configured timeout.
func serve(ctx context.Context, cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.LogDir,
		Service: "rangestats",
		JSON:    cfg.LogJSON,
	})
	defer logger.Close()
	restore := logger.Install()
	defer restore()

	if level != logging.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	tel, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	meter := otel.Meter("rangestats")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	svc := rangestats.NewService(rangestats.ServiceConfig{
		MaxDatasetSize: cfg.MaxDatasetSize,
		MaxDatasets:    cfg.MaxDatasets,
	}).WithMetrics(metrics)

	reg, err := metrics.RegisterDatasetValues(meter, svc.TotalValues)
	if err != nil {
		return fmt.Errorf("register dataset gauge: %w", err)
	}
	defer func() { _ = reg.Unregister() }()

	if len(cfg.DatasetFiles) > 0 {
		loaded, err := rangestats.LoadDatasetFiles(ctx, svc, cfg.DatasetFiles)
		if err != nil {
			return fmt.Errorf("load dataset files: %w", err)
		}
		slog.Info("datasets loaded", "files", len(loaded), "datasets", svc.Count())

		if cfg.WatchDatasets {
			// The watcher logs every reload itself.
			w, err := rangestats.NewWatcher(svc, cfg.DatasetFiles, nil)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer w.Stop()
		}
	}

	opts := rangestats.RouterOptions{
		ServiceName: cfg.Telemetry.ServiceName,
		Metrics:     metrics,
	}
	if cfg.Server.RateLimit > 0 {
		opts.RateLimiter = rangestats.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr,
		Handler:           rangestats.NewRouter(svc, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Server.MetricsAddr != "" {
		if metricsHandler := tel.MetricsHandler(); metricsHandler == nil {
			slog.Warn("metrics address ignored: only the prometheus exporter is scraped",
				"metrics_addr", cfg.Server.MetricsAddr,
				"metric_exporter", cfg.Telemetry.MetricExporter)
		} else {
			servers = append(servers, newMetricsServer(cfg.Server.MetricsAddr, metricsHandler))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "timeout_seconds", cfg.Server.ShutdownTimeoutSeconds)

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// newMetricsServer serves handler at /metrics on addr.
func newMetricsServer(addr string, handler http.Handler) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(handler))
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
