package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOutboxEventFinalAttempt(t *testing.T) {
	row := OutboxEvent{AttemptCount: 3}
	assert.False(t, row.FinalAttempt(5))
	assert.True(t, row.FinalAttempt(4))
	assert.True(t, row.FinalAttempt(1))
	assert.True(t, OutboxEvent{}.FinalAttempt(1))
}

func TestOutboxEventOrderingKeyFollowsAggregate(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id.String(), OutboxEvent{AggregateID: id}.OrderingKey())
	assert.Equal(t, "outbox_events", OutboxEvent{}.TableName())
}
