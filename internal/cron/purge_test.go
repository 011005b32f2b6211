package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/db/dbtest"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
)

func purgeParams(retention time.Duration, batch int) PurgeParams {
	return PurgeParams{
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Retention: retention,
		BatchSize: batch,
	}
}

type scriptedDeleter struct {
	batches []int64
	err     error
	cutoffs []time.Time
}

func (s *scriptedDeleter) DeleteReadBefore(_ context.Context, cutoff time.Time, _ int) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	if s.err != nil {
		return 0, s.err
	}
	if len(s.batches) == 0 {
		return 0, nil
	}
	n := s.batches[0]
	s.batches = s.batches[1:]
	return n, nil
}

func TestPurgeRunsUntilShortBatch(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	deleter := &scriptedDeleter{batches: []int64{2, 2, 1, 2}}
	job, err := NewNotificationCleanupJob(purgeParams(30*24*time.Hour, 2), deleter)
	require.NoError(t, err)
	job.(*purgeJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, deleter.cutoffs, 3)
	assert.Equal(t, now.Add(-30*24*time.Hour), deleter.cutoffs[0])
	assert.Equal(t, "notification-cleanup", job.Name())
}

func TestPurgePropagatesErrors(t *testing.T) {
	job, err := NewNotificationCleanupJob(purgeParams(time.Hour, 0), &scriptedDeleter{err: errors.New("boom")})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Run(context.Background()), "notification-cleanup: boom")
}

func TestPurgeConstructorsValidate(t *testing.T) {
	_, err := NewNotificationCleanupJob(purgeParams(0, 10), &scriptedDeleter{})
	assert.Error(t, err, "retention must be positive")
	_, err = NewNotificationCleanupJob(PurgeParams{Retention: time.Hour}, &scriptedDeleter{})
	assert.Error(t, err, "logger required")
	_, err = NewNotificationCleanupJob(purgeParams(time.Hour, 10), nil)
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(purgeParams(time.Hour, 10), nil, nil)
	assert.Error(t, err)
}

func TestOutboxRetentionDeletesOnlyOldPublishedRows(t *testing.T) {
	client := dbtest.Open(t)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-30 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	seed := func(publishedAt *time.Time) uuid.UUID {
		row := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventOrderChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			PublishedAt:   publishedAt,
			CreatedAt:     old,
		}
		require.NoError(t, client.DB().Create(&row).Error)
		return row.ID
	}
	seed(&old)
	seed(&old)
	keepRecent := seed(&recent)
	keepPending := seed(nil)

	job, err := NewOutboxRetentionJob(purgeParams(7*24*time.Hour, 1), client, outbox.NewRepository(client.DB()))
	require.NoError(t, err)
	job.(*purgeJob).now = func() time.Time { return now }
	require.NoError(t, job.Run(context.Background()))

	var remaining []uuid.UUID
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{keepRecent, keepPending}, remaining)
}

type rollbackRunner struct{ calls int }

func (r *rollbackRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	r.calls++
	return fn(nil)
}

type failingOutbox struct{}

func (failingOutbox) DeletePublishedBefore(*gorm.DB, time.Time, int) (int64, error) {
	return 0, errors.New("locked")
}

func TestOutboxRetentionRunsEachBatchInTransaction(t *testing.T) {
	runner := &rollbackRunner{}
	job, err := NewOutboxRetentionJob(purgeParams(time.Hour, 10), runner, failingOutbox{})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Run(context.Background()), "locked")
	assert.Equal(t, 1, runner.calls)
}
