package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/colegio-portal/colegio-portal/internal/app"
	"github.com/colegio-portal/colegio-portal/internal/audit"
	"github.com/colegio-portal/colegio-portal/internal/catalog"
	"github.com/colegio-portal/colegio-portal/internal/grants"
	"github.com/colegio-portal/colegio-portal/internal/permissions"
	"github.com/colegio-portal/colegio-portal/internal/platform/cache"
	"github.com/colegio-portal/colegio-portal/internal/platform/db"
	"github.com/colegio-portal/colegio-portal/internal/roles"
	"github.com/colegio-portal/colegio-portal/internal/users"
	"github.com/colegio-portal/colegio-portal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	rolesService := roles.NewService(roles.NewRepository(pool))
	catalogService := catalog.NewService(catalog.NewRepository(pool))
	usersService := users.NewService(users.NewRepository(pool))
	auditService := audit.NewService(audit.NewRepository(pool))
	grantsService := grants.NewService(grants.NewRepository(pool), catalogService, auditService)
	viewCache := permissions.NewCache(redisClient, cfg.PermissionCacheTTL)
	permissionsService := permissions.NewService(rolesService, catalogService, grantsService, auditService, viewCache)

	reviewJob := jobs.NewAccessReviewJob(pool, logger, nil)
	warmupJob := jobs.NewCacheWarmupJob(permissionsService, usersService, logger, nil)
	retentionJob := jobs.NewAuditRetentionJob(auditService, cfg.AuditRetention, logger, nil)

	reviewTask, err := jobs.NewAccessReviewTask(jobs.AccessReviewPayload{})
	if err != nil {
		logger.Error("build review task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewCacheWarmupTask(jobs.CacheWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	retentionTask, err := jobs.NewAuditRetentionTask(jobs.AuditRetentionPayload{})
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAccessReview, Handler: reviewJob.Handle},
			{Type: jobs.TaskCacheWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskAuditRetention, Handler: retentionJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "15 1 * * *", Task: reviewTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * 0", Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
