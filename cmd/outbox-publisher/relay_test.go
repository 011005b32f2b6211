package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/registry"
)

func TestDrainBatchRetriesFailureAndPublishesRest(t *testing.T) {
	first, second := orderRow(t, 0), orderRow(t, 0)
	rows := &fakeRows{events: []models.OutboxEvent{first, second}}
	topic := &fakeTopic{errs: []error{errors.New("unavailable")}}
	recorder := &fakeRecorder{}
	relay := newTestRelay(t, rows, &fakeDLQ{}, resolverFor("dd-order-changes"), fakeTopics{"dd-order-changes": topic}, recorder)

	handled, err := relay.drainBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []uuid.UUID{first.ID}, rows.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, rows.published)
	assert.Equal(t, []string{metrics.RelayRetry, metrics.RelayPublished}, recorder.results)
	assert.Equal(t, 1, recorder.batches)

	require.Len(t, topic.sent, 2)
	assert.Equal(t, second.AggregateID.String(), topic.sent[1].OrderingKey)
	assert.Equal(t, string(enums.EventOrderChanged), topic.sent[1].Attributes["event_type"])
}

func TestDrainBatchDeadLettersUnresolvableRow(t *testing.T) {
	row := orderRow(t, 0)
	rows := &fakeRows{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	resolver := &fakeResolver{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	relay := newTestRelay(t, rows, dlq, resolver, fakeTopics{}, nil)

	_, err := relay.drainBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	assert.Equal(t, row.ID, entry.EventID)
	assert.JSONEq(t, string(row.Payload), string(entry.Payload))
	assert.Equal(t, enums.DeadLetterNonRetryable, entry.Reason)
	assert.Equal(t, []uuid.UUID{row.ID}, rows.terminal)
}

func TestDrainBatchDeadLettersUnknownTopic(t *testing.T) {
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventDriverAvailabilityChanged,
		AggregateType: enums.AggregateDriver,
		AggregateID:   uuid.New(),
		Payload:       envelope(t, "driver-toggle"),
	}
	rows := &fakeRows{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	relay := newTestRelay(t, rows, dlq, resolverFor("missing-topic"), fakeTopics{}, nil)

	_, err := relay.drainBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows.published)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.DeadLetterNonRetryable, dlq.entries[0].Reason)
}

func TestDrainBatchDeadLettersOnLastAttempt(t *testing.T) {
	row := orderRow(t, 4)
	rows := &fakeRows{events: []models.OutboxEvent{row}}
	dlq := &fakeDLQ{}
	topic := &fakeTopic{errs: []error{errors.New("unavailable")}}
	relay := newTestRelay(t, rows, dlq, resolverFor("dd-order-changes"), fakeTopics{"dd-order-changes": topic}, nil)

	_, err := relay.drainBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows.failed)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.DeadLetterMaxAttempts, dlq.entries[0].Reason)
	assert.Contains(t, *dlq.entries[0].Detail, "gave up after 5 attempts")
}

func TestDrainBatchAbortsOnBookkeepingFailure(t *testing.T) {
	rows := &fakeRows{events: []models.OutboxEvent{orderRow(t, 0)}, markErr: errors.New("conn reset")}
	relay := newTestRelay(t, rows, &fakeDLQ{}, resolverFor("dd-order-changes"), fakeTopics{"dd-order-changes": &fakeTopic{}}, nil)

	_, err := relay.drainBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark published")
}

func TestNextBackoffCapsAtLimit(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 200*time.Millisecond, nextBackoff(0, base, time.Second))
	assert.Equal(t, time.Second, nextBackoff(800*time.Millisecond, base, time.Second))
}

func TestNewRelayDefaults(t *testing.T) {
	relay := newTestRelay(t, &fakeRows{}, &fakeDLQ{}, &fakeResolver{}, fakeTopics{}, nil)
	assert.Equal(t, defaultBatchSize, relay.batchSize)
	assert.Equal(t, defaultPollInterval, relay.interval)

	_, err := NewRelay(RelayParams{Logger: relay.logg})
	assert.Error(t, err)
}

func newTestRelay(t *testing.T, rows outboxRows, dlq deadLetters, resolver eventResolver, topics topicPublishers, recorder relayRecorder) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		Config:      config.OutboxConfig{MaxAttempts: 5},
		Logger:      logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:          fakeDB{},
		Rows:        rows,
		DeadLetters: dlq,
		Resolver:    resolver,
		Topics:      topics,
		Metrics:     recorder,
	})
	require.NoError(t, err)
	return relay
}

func orderRow(t *testing.T, attempts int) models.OutboxEvent {
	id := uuid.New()
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventOrderChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope(t, id.String()),
		AttemptCount:  attempts,
	}
}

func envelope(t *testing.T, eventID string) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return payload
}

func resolverFor(topic string) *fakeResolver {
	return &fakeResolver{topic: topic}
}

type fakeResolver struct {
	topic string
	err   error
}

func (f *fakeResolver) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: row.EventType, AggregateType: row.AggregateType, Topic: f.topic},
		Envelope:   outbox.Envelope{EventID: row.ID.String(), OccurredAt: time.Now()},
		Payload:    &payloads.OrderChangedEvent{},
	}, nil
}

type fakeTopics map[string]*fakeTopic

func (f fakeTopics) For(topic string) topicPublisher {
	if pub, ok := f[topic]; ok {
		return pub
	}
	return nil
}

type fakeTopic struct {
	errs []error
	sent []*gcppubsub.Message
}

func (f *fakeTopic) Publish(_ context.Context, msg *gcppubsub.Message) error {
	f.sent = append(f.sent, msg)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeRows struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (f *fakeRows) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRows) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRows) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRows) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.DeadLetter
}

func (f *fakeDLQ) Bury(_ *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, cause error) error {
	f.entries = append(f.entries, outbox.DeadLetterFor(row, reason, cause, time.Now()))
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakeRecorder struct {
	results []string
	batches int
}

func (f *fakeRecorder) ObserveRelay(_, result string) { f.results = append(f.results, result) }

func (f *fakeRecorder) ObserveBatch(time.Duration) { f.batches++ }
