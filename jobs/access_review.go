package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/colegio-portal/colegio-portal/internal/authz"
	jobmetrics "github.com/colegio-portal/colegio-portal/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AccessReviewJob scans active grants for rows the holder can no longer
// exercise: the grant stands but the hierarchy check fails, typically
// after a role downgrade. Findings are logged and counted, never
// auto-revoked.
type AccessReviewJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAccessReviewJob initialises the access review handler.
func NewAccessReviewJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *AccessReviewJob {
	return &AccessReviewJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the access review scan.
func (j *AccessReviewJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("access review: handler not configured")
	}
	var payload AccessReviewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskAccessReview)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Bool("include_inactive", payload.IncludeInactive))
	logger.Info("starting access review")

	scanned, findings, err := j.scan(ctx, payload)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, f := range findings {
		logger.Warn("stale grant detected",
			slog.Int64("user_id", f.UserID),
			slog.String("service", f.ServiceKey),
			slog.String("severity", f.Severity),
			slog.String("holder_level", f.HolderLevel.String()),
			slog.String("required_level", f.RequiredLevel.String()),
		)
		j.metrics().AddFindings(f.Severity, f.ServiceKey, 1)
	}

	logger.Info("completed access review",
		slog.Int("grants_scanned", scanned),
		slog.Int("findings", len(findings)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *AccessReviewJob) scan(ctx context.Context, payload AccessReviewPayload) (int, []reviewFinding, error) {
	if j.Pool == nil {
		return 0, nil, errors.New("access review: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
		SELECT g.user_id, g.service_key, u.is_active, r.hierarchy_level, s.minimum_level
		FROM grants g
		JOIN users u ON u.id = g.user_id
		JOIN roles r ON r.id = u.role_id
		JOIN services s ON s.key = g.service_key
		WHERE g.granted
		ORDER BY g.user_id, g.service_key`)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	scanned := 0
	findings := make([]reviewFinding, 0)
	for rows.Next() {
		var (
			userID       int64
			serviceKey   string
			active       bool
			holderCode   string
			requiredCode string
		)
		if err := rows.Scan(&userID, &serviceKey, &active, &holderCode, &requiredCode); err != nil {
			return 0, nil, err
		}
		scanned++
		if !active && !payload.IncludeInactive {
			continue
		}
		holder, err := authz.ParseLevel(holderCode)
		if err != nil {
			return 0, nil, err
		}
		required, err := authz.ParseLevel(requiredCode)
		if err != nil {
			return 0, nil, err
		}
		switch {
		case !active:
			findings = append(findings, reviewFinding{
				UserID: userID, ServiceKey: serviceKey, Severity: "HIGH",
				HolderLevel: holder, RequiredLevel: required,
			})
		case !holder.AtLeast(required):
			findings = append(findings, reviewFinding{
				UserID: userID, ServiceKey: serviceKey, Severity: "MEDIUM",
				HolderLevel: holder, RequiredLevel: required,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	return scanned, findings, nil
}

func (j *AccessReviewJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAccessReview))
	}
	return slog.Default().With(slog.String("job", TaskAccessReview))
}

func (j *AccessReviewJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AccessReviewJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

type reviewFinding struct {
	UserID        int64
	ServiceKey    string
	Severity      string
	HolderLevel   authz.HierarchyLevel
	RequiredLevel authz.HierarchyLevel
}
