package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAccessReview scans active grants for hierarchy mismatches.
	TaskAccessReview = "authz:access_review"
	// TaskCacheWarmup pre-computes permission views for active users.
	TaskCacheWarmup = "authz:cache_warmup"
	// TaskAuditRetention prunes audit entries past the retention window.
	TaskAuditRetention = "audit:retention"
)

// AccessReviewPayload tunes the periodic access review scan.
type AccessReviewPayload struct {
	// IncludeInactive widens the scan to grants held by deactivated users.
	IncludeInactive bool `json:"includeInactive"`
}

// NewAccessReviewTask constructs an Asynq task for the access review scan.
func NewAccessReviewTask(payload AccessReviewPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccessReview, data), nil
}

// CacheWarmupPayload tunes the permission cache warmup run.
type CacheWarmupPayload struct {
	// MaxUsers caps how many users are warmed in a single run. Zero means all.
	MaxUsers int `json:"maxUsers"`
}

// NewCacheWarmupTask constructs an Asynq task for the cache warmup.
func NewCacheWarmupTask(payload CacheWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheWarmup, data), nil
}

// AuditRetentionPayload tunes the audit retention sweep.
type AuditRetentionPayload struct {
	// RetentionDays overrides the configured retention window when positive.
	RetentionDays int `json:"retentionDays"`
}

// NewAuditRetentionTask constructs an Asynq task for the retention sweep.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}
