package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/mmn-engine/internal/commissions"
	"github.com/angelmondragon/mmn-engine/internal/compplan"
	"github.com/angelmondragon/mmn-engine/internal/genealogy"
	"github.com/angelmondragon/mmn-engine/internal/jobs"
	"github.com/angelmondragon/mmn-engine/internal/payouts"
	"github.com/angelmondragon/mmn-engine/internal/placement"
	"github.com/angelmondragon/mmn-engine/internal/ranks"
	"github.com/angelmondragon/mmn-engine/internal/sales"
	"github.com/angelmondragon/mmn-engine/internal/volume"
	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/db"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
	"github.com/angelmondragon/mmn-engine/pkg/metrics"
	"github.com/angelmondragon/mmn-engine/pkg/migrate"
	"github.com/angelmondragon/mmn-engine/pkg/outbox"
	"github.com/angelmondragon/mmn-engine/pkg/redis"
)

const serviceName = "mmnctl"

// app holds the wired engine for a single command invocation.
type app struct {
	cfg   *config.Config
	logg  *logger.Logger
	db    *db.Client
	redis *redis.Client

	runner      *jobs.Runner
	outboxRepo  *outbox.Repository
	genealogy   genealogy.Service
	placement   placement.Service
	commissions commissions.Service
	ranks       ranks.Service
	payouts     payouts.Service
	sales       sales.Service
}

func bootstrap(ctx context.Context) (*app, error) {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Debug(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	a := &app{cfg: cfg, logg: logg}
	if a.db, err = db.New(ctx, cfg.DB, logg); err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, a.db); err != nil {
		return nil, multierr.Append(fmt.Errorf("run dev migrations: %w", err), a.Close())
	}
	if a.redis, err = redis.New(ctx, cfg.Redis, logg); err != nil {
		return nil, multierr.Append(fmt.Errorf("bootstrap redis: %w", err), a.Close())
	}
	if err := a.wire(); err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	return a, nil
}

func (a *app) wire() error {
	cfg, logg, gdb := a.cfg, a.logg, a.db.DB()

	defaults, err := compplan.FromConfig(cfg.Compensation)
	if err != nil {
		return fmt.Errorf("default compensation plan: %w", err)
	}
	stored, err := compplan.NewStoreProvider(compplan.NewRepository(gdb), defaults, cfg.FeatureFlags.PlanFallback)
	if err != nil {
		return err
	}
	plans, err := compplan.NewCachedProvider(stored, a.redis, cfg.Compensation.PlanCacheTTL, logg)
	if err != nil {
		return err
	}

	engineMetrics := metrics.NewEngineMetrics(prometheus.DefaultRegisterer)
	a.outboxRepo = outbox.NewRepository(gdb)
	emitter := outbox.NewService(a.outboxRepo, logg)

	if a.genealogy, err = genealogy.NewService(genealogy.NewRepository(gdb), a.db, logg); err != nil {
		return err
	}
	if a.placement, err = placement.NewService(placement.NewRepository(gdb), a.genealogy, plans, a.db, emitter, engineMetrics, logg); err != nil {
		return err
	}
	volumeSvc, err := volume.NewService(volume.NewRepository(gdb), a.genealogy, a.db, logg)
	if err != nil {
		return err
	}
	if a.commissions, err = commissions.NewService(commissions.Deps{
		Repo:      commissions.NewRepository(gdb),
		Genealogy: a.genealogy,
		Volume:    volumeSvc,
		Members:   a.placement,
		Plans:     plans,
		Tx:        a.db,
		Outbox:    emitter,
		Metrics:   engineMetrics,
		Logger:    logg,
	}); err != nil {
		return err
	}
	if a.ranks, err = ranks.NewService(ranks.Deps{
		Repo:      ranks.NewRepository(gdb),
		Genealogy: a.genealogy,
		Volume:    volumeSvc,
		Members:   a.placement,
		Bonuses:   a.commissions,
		Plans:     plans,
		Tx:        a.db,
		Outbox:    emitter,
		Logger:    logg,
	}); err != nil {
		return err
	}

	fees, err := payouts.NewFeeSchedule(cfg.Payouts)
	if err != nil {
		return fmt.Errorf("payout fee schedule: %w", err)
	}
	if a.payouts, err = payouts.NewService(payouts.Deps{
		Repo:        payouts.NewRepository(gdb),
		Commissions: a.commissions,
		Genealogy:   a.genealogy,
		Plans:       plans,
		Executors:   payouts.NewExecutorRegistry(payouts.ExecutorConfigFrom(cfg.Payouts), logg),
		Fees:        fees,
		Tx:          a.db,
		Outbox:      emitter,
		Metrics:     engineMetrics,
		Logger:      logg,
	}); err != nil {
		return err
	}
	if a.sales, err = sales.NewService(sales.NewRepository(gdb), a.genealogy, volumeSvc, a.commissions, a.db, logg); err != nil {
		return err
	}

	a.runner, err = jobs.NewRunner(jobs.RunnerParams{
		Logger:  logg,
		Locks:   jobs.RedisLocks(a.redis, cfg.Jobs.LockTTL),
		Metrics: metrics.NewJobMetrics(prometheus.DefaultRegisterer),
	})
	return err
}

// runBatch executes registry under the namespaced redis lock for scope.
func (a *app) runBatch(ctx context.Context, scope string, registry *jobs.Registry) ([]jobs.Outcome, error) {
	ctx = a.logg.WithField(ctx, "lock_scope", scope)
	return a.runner.Run(ctx, a.redis.LockKey(scope), registry)
}

func (a *app) Close() error {
	var err error
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	return err
}
