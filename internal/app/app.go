// Package app assembles the stores and services for the server and the
// operator CLI from one configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"safereport/internal/audit"
	auditmetrics "safereport/internal/audit/metrics"
	auditmemory "safereport/internal/audit/store/memory"
	auditpostgres "safereport/internal/audit/store/postgres"
	"safereport/internal/audit/stream"
	"safereport/internal/compliance"
	"safereport/internal/identity"
	identitystore "safereport/internal/identity/store"
	incidentmetrics "safereport/internal/incident/metrics"
	"safereport/internal/incident/query"
	incidentservice "safereport/internal/incident/service"
	incidentstore "safereport/internal/incident/store"
	"safereport/internal/lifecycle"
	"safereport/internal/lifecycle/backup"
	backupstore "safereport/internal/lifecycle/backup/store"
	lifecyclemetrics "safereport/internal/lifecycle/metrics"
	membershipservice "safereport/internal/membership/service"
	membershipstore "safereport/internal/membership/store"
	"safereport/internal/platform/config"
	"safereport/internal/platform/postgres"
	redisclient "safereport/internal/platform/redis"
	rlmetrics "safereport/internal/ratelimit/metrics"
	rlmodels "safereport/internal/ratelimit/models"
	rlservice "safereport/internal/ratelimit/service"
	"safereport/internal/ratelimit/store/window"
	"safereport/pkg/platform/circuit"
	txcontext "safereport/pkg/platform/tx"
)

// AuditStore is the audit backend: the append/list store plus the outbox
// view the stream worker drains.
type AuditStore interface {
	audit.Store
	stream.Outbox
}

type incidentStore interface {
	incidentservice.IncidentStore
	query.IncidentIndex
	lifecycle.IncidentStore
	backup.IncidentStore
	compliance.IncidentStore
}

type residentStore interface {
	membershipservice.ResidentStore
	query.ResidentStore
}

type readStatusStore interface {
	incidentservice.ReadStatusStore
	query.ReadStatusStore
}

// App holds the wired services. Close releases connections.
type App struct {
	DB    *sql.DB
	Redis *redisclient.Client

	AuditStore   AuditStore
	AuditMetrics *auditmetrics.Metrics
	Identity     *identity.Resolver
	Access       *membershipservice.Service
	Incidents    *incidentservice.Service
	Trail        *audit.TrailService
	Lifecycle    *lifecycle.Manager
	Backups      *backup.Service
	Exports      *compliance.Exporter

	// Seed is the demo tenant created for in-memory deployments.
	Seed *DemoTenant
}

type stores struct {
	users       identity.UserStore
	memberships membershipservice.MembershipStore
	residents   residentStore
	incidents   incidentStore
	media       query.MediaStore
	reads       readStatusStore
	audit       AuditStore
	backups     backup.BackupStore
	blobs       backup.BlobStore
	tx          txcontext.Runner
}

// Build connects the configured backends and wires every service.
func Build(ctx context.Context, cfg *config.Server, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}

	var st *stores
	if cfg.UsesPostgres() {
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			PingRetries:     postgres.DefaultOptions().PingRetries,
		})
		if err != nil {
			return nil, err
		}
		a.DB = db
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				a.Close()
				return nil, err
			}
		}
		st = postgresStores(db)
		logger.InfoContext(ctx, "using postgres stores")
	} else {
		var err error
		st, a.Seed, err = memoryStores(ctx)
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "using in-memory stores",
			"demo_team_id", a.Seed.TeamID.String(),
			"demo_resident_id", a.Seed.ResidentID.String(),
		)
	}
	a.AuditStore = st.audit

	limiter, err := a.buildLimiter(ctx, cfg, logger, reg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(cfg, st, limiter, logger, reg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildLimiter(ctx context.Context, cfg *config.Server, logger *slog.Logger, reg prometheus.Registerer) (*rlservice.Service, error) {
	opts := []rlservice.Option{
		rlservice.WithLogger(logger),
		rlservice.WithMetrics(rlmetrics.New(reg)),
		rlservice.WithPolicy(rlmodels.ActionCreateIncident, rlmodels.Policy{
			Limit:  cfg.RateLimit.CreateLimit,
			Window: cfg.RateLimit.CreateWindow,
		}),
	}
	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return rlservice.New(window.NewInMemoryWindowStore(), opts...)
	}
	a.Redis = rc
	logger.InfoContext(ctx, "using redis rate limit store")
	opts = append(opts, rlservice.WithFallback(window.NewInMemoryWindowStore(), circuit.New("ratelimit-redis")))
	return rlservice.New(window.NewRedisWindowStore(rc.Client), opts...)
}

func (a *App) wire(cfg *config.Server, st *stores, limiter *rlservice.Service, logger *slog.Logger, reg prometheus.Registerer) error {
	access, err := membershipservice.New(st.memberships, st.residents, membershipservice.WithLogger(logger))
	if err != nil {
		return err
	}
	a.AuditMetrics = auditmetrics.New(reg)
	auditLogger, err := audit.NewLogger(st.audit,
		audit.WithLogger(logger),
		audit.WithMetrics(a.AuditMetrics),
	)
	if err != nil {
		return err
	}
	trail, err := audit.NewTrailService(st.audit, access, logger)
	if err != nil {
		return err
	}

	incMetrics := incidentmetrics.New(reg)
	pager, err := query.New(st.incidents, st.residents, st.media, st.reads,
		query.WithLogger(logger),
		query.WithMetrics(incMetrics),
		query.WithURLResolver(query.NewBaseURLResolver(cfg.MediaBaseURL)),
		query.WithTracer(otel.Tracer("safereport/incident/query")),
	)
	if err != nil {
		return err
	}
	incidents, err := incidentservice.New(incidentservice.Deps{
		Incidents: st.incidents,
		Reads:     st.reads,
		Access:    access,
		Limiter:   limiter,
		Audit:     auditLogger,
		Pager:     pager,
		Tx:        st.tx,
	}, incidentservice.WithLogger(logger), incidentservice.WithMetrics(incMetrics))
	if err != nil {
		return err
	}

	lcMetrics := lifecyclemetrics.New(reg)
	manager, err := lifecycle.NewManager(st.incidents, access, auditLogger, st.tx,
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(lcMetrics),
		lifecycle.WithBatchSize(cfg.Lifecycle.BatchSize),
	)
	if err != nil {
		return err
	}
	backups, err := backup.New(backup.Deps{
		Backups:   st.backups,
		Blobs:     st.blobs,
		Incidents: st.incidents,
		Access:    access,
		Audit:     auditLogger,
		Tx:        st.tx,
	}, backup.WithLogger(logger), backup.WithMetrics(lcMetrics))
	if err != nil {
		return err
	}
	exports, err := compliance.New(st.incidents, st.audit, access, auditLogger, []byte(cfg.Export.PseudonymKey),
		compliance.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	a.Identity = identity.NewResolver(st.users)
	a.Access = access
	a.Incidents = incidents
	a.Trail = trail
	a.Lifecycle = manager
	a.Backups = backups
	a.Exports = exports
	return nil
}

// Ready pings the configured backends.
func (a *App) Ready(ctx context.Context) error {
	if a.DB != nil {
		if err := a.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases the database and redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func postgresStores(db *sql.DB) *stores {
	return &stores{
		users:       identitystore.NewPostgres(db),
		memberships: membershipstore.NewPostgresMembershipStore(db),
		residents:   membershipstore.NewPostgresResidentStore(db),
		incidents:   incidentstore.NewPostgresIncidentStore(db),
		media:       incidentstore.NewPostgresMediaStore(db),
		reads:       incidentstore.NewPostgresReadStatusStore(db),
		audit:       auditpostgres.New(db),
		backups:     backupstore.NewPostgresBackupStore(db),
		blobs:       backupstore.NewPostgresBlobStore(db),
		tx:          txcontext.NewSQLRunner(db),
	}
}

func memoryStores(ctx context.Context) (*stores, *DemoTenant, error) {
	users := identitystore.NewInMemoryUserStore()
	memberships := membershipstore.NewInMemoryMembershipStore()
	residents := membershipstore.NewInMemoryResidentStore()
	seed, err := SeedDemoTenant(ctx, users, memberships, residents)
	if err != nil {
		return nil, nil, fmt.Errorf("seed demo tenant: %w", err)
	}
	return &stores{
		users:       users,
		memberships: memberships,
		residents:   residents,
		incidents:   incidentstore.NewInMemoryIncidentStore(),
		media:       incidentstore.NewInMemoryMediaStore(),
		reads:       incidentstore.NewInMemoryReadStatusStore(),
		audit:       auditmemory.NewInMemoryStore(),
		backups:     backupstore.NewInMemoryBackupStore(),
		blobs:       backupstore.NewInMemoryBlobStore(),
		tx:          txcontext.NewLockRunner(),
	}, seed, nil
}
