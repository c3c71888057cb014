package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"safereport/internal/app"
	"safereport/internal/audit/stream"
	jwttoken "safereport/internal/jwt_token"
	"safereport/internal/lifecycle"
	"safereport/internal/platform/config"
	"safereport/internal/platform/httpserver"
	"safereport/internal/platform/kafka"
	"safereport/internal/platform/logger"
	"safereport/internal/platform/metrics"
	httptransport "safereport/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.Build(ctx, cfg, log, reg)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer a.Close()

	handler, err := httptransport.New(httptransport.Deps{
		Identity:  a.Identity,
		Incidents: a.Incidents,
		Lifecycle: a.Lifecycle,
		Audit:     a.Trail,
		Backups:   a.Backups,
		Exports:   a.Exports,
	}, log)
	if err != nil {
		return err
	}
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		Validator: jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience),
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
		Logger:    log,
		Ready:     a.Ready,
	})
	srv := httpserver.New(cfg.Addr, router, cfg.ReadTimeout, cfg.WriteTimeout)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, srv, log)
	})

	if cfg.Lifecycle.SchedulerInterval > 0 {
		scheduler, err := lifecycle.NewScheduler(a.Lifecycle, cfg.Lifecycle.SchedulerInterval, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return scheduler.Start(ctx)
		})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return err
		}
		defer producer.Close()
		worker, err := stream.New(a.AuditStore, producer,
			stream.WithLogger(log),
			stream.WithMetrics(a.AuditMetrics),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return worker.Run(ctx)
		})
	}

	log.InfoContext(ctx, "safereport started",
		"addr", cfg.Addr,
		"postgres", cfg.UsesPostgres(),
		"redis", cfg.Redis.URL != "",
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("safereport stopped")
	return nil
}
