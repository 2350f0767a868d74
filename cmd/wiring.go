package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/browser"
	"github.com/Dipuraj1New/careerireland-portals/internal/config"
	"github.com/Dipuraj1New/careerireland-portals/internal/credentials"
	"github.com/Dipuraj1New/careerireland-portals/internal/lock"
	"github.com/Dipuraj1New/careerireland-portals/internal/notify"
	"github.com/Dipuraj1New/careerireland-portals/internal/observability"
	"github.com/Dipuraj1New/careerireland-portals/internal/orchestrator"
	"github.com/Dipuraj1New/careerireland-portals/internal/portal"
	"github.com/Dipuraj1New/careerireland-portals/internal/ratelimit"
	"github.com/Dipuraj1New/careerireland-portals/internal/retry"
	"github.com/Dipuraj1New/careerireland-portals/internal/store"
)

// app bundles the wired engine components shared by the serve and submit
// commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redis.Client
	metrics *observability.Metrics

	submissions *store.SubmissionStore
	forms       *store.FormSubmissionStore
	mappings    *store.FieldMappingStore
	audit       *store.AuditLog

	browsers     *browser.Manager
	scheduler    *retry.Scheduler
	engine       *retry.Engine
	orchestrator *orchestrator.Orchestrator
}

// buildApp wires the full dependency graph from configuration.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := observability.GetLogger()

	pool, err := store.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := store.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		metrics:     observability.NewMetrics(),
		submissions: store.NewSubmissionStore(pool, logger),
		forms:       store.NewFormSubmissionStore(pool, logger),
		mappings:    store.NewFieldMappingStore(pool, logger),
		audit:       store.NewAuditLog(pool, logger),
		browsers:    browser.NewManager(cfg.Browser, logger),
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notifier.Endpoint != "" {
		notifier, err = notify.NewWebhookNotifier(cfg.Notifier, logger)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = lock.NewRedisLocker(a.redis)
	}

	a.scheduler = retry.NewScheduler(retry.SystemClock{}, logger)
	a.engine, err = retry.NewEngine(cfg.Retry, a.submissions, notifier, a.audit, a.scheduler, a.metrics, nil, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	registry := portal.DefaultRegistry(portal.Deps{
		Mappings:    a.mappings,
		Credentials: credentials.NewConfigProvider(cfg.Portals),
		Receipts:    store.NewReceiptStore(cfg.Receipts, logger),
		Portals:     cfg.Portals,
		Logger:      logger,
	})

	a.orchestrator, err = orchestrator.New(
		a.submissions, a.forms, a.audit, a.engine, a.browsers, registry,
		notifier, locker, ratelimit.NewPortalLimiter(cfg.Portals),
		a.metrics, nil, cfg.Retry.MaxAttempts, logger)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.engine.Bind(a.orchestrator)

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.browsers != nil {
		if err := a.browsers.Shutdown(ctx); err != nil {
			a.logger.Warn("Browser manager shutdown reported an error.", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Redis client close reported an error.", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
