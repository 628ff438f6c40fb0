package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/colegio-portal/colegio-portal/internal/audit"
	jobmetrics "github.com/colegio-portal/colegio-portal/internal/jobs"
)

// AuditRetentionJob prunes audit entries older than the retention
// window. The trail is append-only in normal operation; this sweep is
// the single sanctioned deletion path.
type AuditRetentionJob struct {
	Audit     *audit.Service
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewAuditRetentionJob wires dependencies for the retention sweep.
func NewAuditRetentionJob(auditSvc *audit.Service, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetentionJob {
	return &AuditRetentionJob{
		Audit:     auditSvc,
		Retention: retention,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes retention sweep tasks.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("audit retention: handler not configured")
	}
	var payload AuditRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	retention := j.Retention
	if payload.RetentionDays > 0 {
		retention = time.Duration(payload.RetentionDays) * 24 * time.Hour
	}

	tracker := j.metrics().Track(TaskAuditRetention)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Duration("retention", retention))
	if retention <= 0 {
		logger.Info("retention disabled, skipping sweep")
		return resultErr
	}
	if j.Audit == nil {
		resultErr = errors.New("audit retention: service not configured")
		return resultErr
	}

	now := j.now()
	logger.Info("starting audit retention sweep")

	deleted, err := j.Audit.Sweep(ctx, retention, now)
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed audit retention sweep",
		slog.Int64("deleted", deleted),
		slog.Duration("duration", time.Since(now)),
	)
	return resultErr
}

func (j *AuditRetentionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRetention))
	}
	return slog.Default().With(slog.String("job", TaskAuditRetention))
}

func (j *AuditRetentionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AuditRetentionJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
