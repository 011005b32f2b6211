package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

const defaultPurgeBatch = 500

// batchDeleter removes at most limit rows older than cutoff and reports how many it removed.
type batchDeleter func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

type PurgeParams struct {
	Logger    *logger.Logger
	Retention time.Duration
	BatchSize int
}

// purgeJob deletes aged rows in bounded batches until a short batch signals the backlog is gone.
type purgeJob struct {
	name      string
	logg      *logger.Logger
	retention time.Duration
	batch     int
	deleter   batchDeleter
	now       func() time.Time
}

func newPurgeJob(name string, params PurgeParams, deleter batchDeleter) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Retention <= 0:
		return nil, fmt.Errorf("%s: retention must be positive", name)
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultPurgeBatch
	}
	return &purgeJob{
		name:      name,
		logg:      params.Logger,
		retention: params.Retention,
		batch:     batch,
		deleter:   deleter,
		now:       time.Now,
	}, nil
}

func (j *purgeJob) Name() string { return j.name }

func (j *purgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	for {
		n, err := j.deleter(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("%s: %w", j.name, err)
		}
		deleted += n
		if n < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"job":          j.name,
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "purge complete")
	return nil
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedOutboxDeleter interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob drops published outbox rows, one transaction per batch.
func NewOutboxRetentionJob(params PurgeParams, db txRunner, outbox publishedOutboxDeleter) (Job, error) {
	if db == nil || outbox == nil {
		return nil, errors.New("db and outbox repository required")
	}
	return newPurgeJob("outbox-retention", params, func(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
		var n int64
		err := db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = outbox.DeletePublishedBefore(tx, cutoff, limit)
			return err
		})
		return n, err
	})
}

type readNotificationDeleter interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewNotificationCleanupJob drops notifications read before the retention window.
func NewNotificationCleanupJob(params PurgeParams, notifications readNotificationDeleter) (Job, error) {
	if notifications == nil {
		return nil, errors.New("notifications repository required")
	}
	return newPurgeJob("notification-cleanup", params, notifications.DeleteReadBefore)
}
