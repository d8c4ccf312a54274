package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketcheckout/pkg/logger"
)

const (
	defaultRetention  = 30 * 24 * time.Hour
	retentionEvery    = 24 * time.Hour
	outboxMinAttempts = 10
)

type purgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type notificationsCleanupRepo interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// RetentionJobParams configure a table cleanup job.
type RetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Retention time.Duration
}

// NewOutboxRetentionJob drops published outbox rows, and rows that exhausted
// minAttempts, once they are older than the retention window.
func NewOutboxRetentionJob(params RetentionJobParams, repo outboxRetentionRepo, minAttempts int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}
	job, err := newRetentionJob("outbox-retention", params, func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
		return repo.DeletePublishedBefore(ctx, tx, cutoff, minAttempts)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// NewNotificationCleanupJob drops in-app notifications older than the retention window.
func NewNotificationCleanupJob(params RetentionJobParams, repo notificationsCleanupRepo) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	job, err := newRetentionJob("notification-cleanup", params, repo.DeleteOlderThan)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func newRetentionJob(name string, params RetentionJobParams, purge purgeFunc) (*retentionJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetention
	}
	return &retentionJob{
		name:      name,
		logg:      params.Logger,
		db:        params.DB,
		purge:     purge,
		retention: retention,
		now:       time.Now,
	}, nil
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	purge     purgeFunc
	retention time.Duration
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Every() time.Duration { return retentionEvery }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.purge(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "retention cleanup complete")
	return nil
}
