package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/colegio-portal/colegio-portal/internal/jobs"
	"github.com/colegio-portal/colegio-portal/internal/permissions"
	"github.com/colegio-portal/colegio-portal/internal/users"
)

// CacheWarmupJob pre-computes permission views for active users so the
// first portal page load after an invalidation hits a warm cache.
type CacheWarmupJob struct {
	Permissions *permissions.Service
	Users       *users.Service
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewCacheWarmupJob wires dependencies for the warmup handler.
func NewCacheWarmupJob(permissionsSvc *permissions.Service, usersSvc *users.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmupJob {
	return &CacheWarmupJob{
		Permissions: permissionsSvc,
		Users:       usersSvc,
		Logger:      logger,
		Metrics:     metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes cache warmup tasks.
func (j *CacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("cache warmup: handler not configured")
	}
	var payload CacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskCacheWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("max_users", payload.MaxUsers))
	logger.Info("starting cache warmup")

	if j.Users == nil || j.Permissions == nil {
		resultErr = errors.New("cache warmup: services not configured")
		return resultErr
	}

	ids, err := j.Users.ListActiveUserIDs(ctx)
	if err != nil {
		resultErr = err
		logger.Error("load active users", slog.Any("error", err))
		return resultErr
	}
	if payload.MaxUsers > 0 && len(ids) > payload.MaxUsers {
		ids = ids[:payload.MaxUsers]
	}
	if len(ids) == 0 {
		logger.Info("no active users to warm")
		return resultErr
	}

	now := j.now()
	warmed := 0
	for _, id := range ids {
		if err := j.warmUser(ctx, id); err != nil {
			resultErr = err
			logger.Error("warm user", slog.Int64("user_id", id), slog.Any("error", err))
			return resultErr
		}
		warmed++
	}

	logger.Info("completed cache warmup", slog.Int("users", warmed), slog.Duration("duration", time.Since(now)))
	return resultErr
}

func (j *CacheWarmupJob) warmUser(ctx context.Context, userID int64) error {
	// Tighten each user with a timeout to avoid long-running jobs.
	userCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := j.Permissions.UserPermissions(userCtx, userID)
	return err
}

func (j *CacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskCacheWarmup))
}

func (j *CacheWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CacheWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
