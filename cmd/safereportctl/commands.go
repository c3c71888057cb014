package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"safereport/internal/app"
	"safereport/internal/audit/stream"
	jwttoken "safereport/internal/jwt_token"
	"safereport/internal/lifecycle"
	"safereport/internal/platform/config"
	"safereport/internal/platform/kafka"
	"safereport/internal/platform/logger"
	"safereport/internal/platform/postgres"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "safereportctl",
		Short:         "Operator tasks for the safereport service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newJobCmd("run-archival", "Archive incidents older than one year", (*lifecycle.Manager).RunArchival),
		newJobCmd("run-purge", "Hard-delete incidents past their retention deadline", (*lifecycle.Manager).RunRetentionPurge),
		newStreamAuditCmd(),
		newIssueTokenCmd(),
	)
	return root
}

func loadConfig() (*config.Server, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.LogLevel), nil
}

// buildPostgres refuses in-memory mode: a one-shot process would operate
// on an empty store.
func buildPostgres(ctx context.Context) (*app.App, *config.Server, *slog.Logger, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.UsesPostgres() {
		return nil, nil, nil, errors.New(config.Prefix + "_DATABASE_URL is required")
	}
	a, err := app.Build(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		return nil, nil, nil, err
	}
	return a, cfg, log, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.UsesPostgres() {
				return errors.New(config.Prefix + "_DATABASE_URL is required")
			}
			ctx := cmd.Context()
			db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.DefaultOptions())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			log.InfoContext(ctx, "schema applied")
			return nil
		},
	}
}

type job func(*lifecycle.Manager, context.Context) (*lifecycle.JobResult, error)

func newJobCmd(use, short string, run job) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, _, _, err := buildPostgres(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := run(a.Lifecycle, ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.String())
			return nil
		},
	}
}

func newStreamAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream-audit",
		Short: "Publish pending audit entries to Kafka once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, cfg, log, err := buildPostgres(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
			if err != nil {
				return err
			}
			defer producer.Close()
			worker, err := stream.New(a.AuditStore, producer, stream.WithLogger(log))
			if err != nil {
				return err
			}
			n, err := worker.Flush(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "streamed %d audit entries\n", n)
			return nil
		},
	}
}

func newIssueTokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Sign a bearer token for an email claim",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			svc := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
			token, err := svc.GenerateAccessToken(email, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email claim (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
