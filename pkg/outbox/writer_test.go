package outbox

import (
	"context"
	"encoding/json"
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
)

func TestSealFillsDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env, err := DomainEvent{EventType: enums.EventOrderChanged, Data: map[string]int{"n": 1}}.Seal(now)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, env.Version)
	assert.Equal(t, now, env.OccurredAt)
	_, err = uuid.Parse(env.EventID)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(env.Data))
}

func TestSealKeepsCallerEventID(t *testing.T) {
	id := uuid.New()
	env, err := DomainEvent{EventID: id, Data: struct{}{}}.Seal(time.Now())
	require.NoError(t, err)
	assert.Equal(t, id.String(), env.EventID)
}

func TestSealRejectsUnencodableData(t *testing.T) {
	_, err := DomainEvent{EventType: enums.EventOrderChanged, Data: make(chan int)}.Seal(time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order_changed")
}

func TestEmitWritesRowInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	w := NewWriter(NewRepository(client.DB()), logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}))
	eventID, orderID := uuid.New(), uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return w.Emit(context.Background(), tx, DomainEvent{
			EventID:       eventID,
			EventType:     enums.EventOrderChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          map[string]string{"changeType": "insert"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row, "id = ?", eventID).Error)
	assert.Equal(t, orderID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var env Envelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))
	assert.Equal(t, eventID.String(), env.EventID)
}

func TestEmitDiscardedOnRollback(t *testing.T) {
	client := dbtest.Open(t)
	w := NewWriter(NewRepository(client.DB()), nil)
	boom := errors.New("boom")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := w.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRequiresTransaction(t *testing.T) {
	w := NewWriter(nil, nil)
	assert.Error(t, w.Emit(context.Background(), nil, DomainEvent{}))
}
