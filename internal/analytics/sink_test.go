package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/dishdash-backend/internal/analytics/types"
	"github.com/angelmondragon/dishdash-backend/internal/orderfeed"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryWriter struct {
	rows []types.OrderEventRow
}

func (m *memoryWriter) InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error {
	m.rows = append(m.rows, row)
	return nil
}

func (m *memoryWriter) Flush(ctx context.Context) error { return nil }

func TestRowFromUpdateEvent(t *testing.T) {
	businessID := uuid.New()
	driverID := uuid.New()
	old := &models.Order{ID: uuid.New(), OrderNumber: 12, CustomerID: uuid.New(), BusinessID: &businessID, Status: enums.OrderStatusReady, TotalAmount: decimal.RequireFromString("26.35")}
	next := old.Clone()
	next.DriverID = &driverID
	next.Status = enums.OrderStatusOutForDelivery
	at := time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC)

	row, err := RowFromEvent(orderfeed.ChangeEvent{ID: uuid.New(), Type: enums.ChangeUpdate, Old: old, New: next, CommitTime: at})
	require.NoError(t, err)
	assert.Equal(t, "update", row.ChangeType)
	assert.Equal(t, int64(12), row.OrderNumber)
	assert.Equal(t, at, row.OccurredAt)
	require.NotNil(t, row.PreviousStatus)
	assert.Equal(t, "ready", *row.PreviousStatus)
	require.NotNil(t, row.Status)
	assert.Equal(t, "out_for_delivery", *row.Status)
	require.NotNil(t, row.DriverID)
	assert.Equal(t, driverID.String(), *row.DriverID)
	require.NotNil(t, row.TotalAmountCents)
	assert.Equal(t, int64(2635), *row.TotalAmountCents)
	assert.True(t, row.Payload.Valid)
}

func TestRowFromDeleteUsesOldImage(t *testing.T) {
	old := &models.Order{ID: uuid.New(), OrderNumber: 3, Status: enums.OrderStatusCancelled}
	row, err := RowFromEvent(orderfeed.ChangeEvent{ID: uuid.New(), Type: enums.ChangeDelete, Old: old})
	require.NoError(t, err)
	assert.Equal(t, old.ID.String(), row.OrderID)
	assert.Nil(t, row.Status)

	_, err = RowFromEvent(orderfeed.ChangeEvent{ID: uuid.New(), Type: enums.ChangeDelete})
	assert.Error(t, err)
}

func TestSinkRecordsRows(t *testing.T) {
	w := &memoryWriter{}
	sink, err := NewSink(w)
	require.NoError(t, err)
	order := &models.Order{ID: uuid.New(), Status: enums.OrderStatusPending}
	require.NoError(t, sink.Record(context.Background(), orderfeed.ChangeEvent{ID: uuid.New(), Type: enums.ChangeInsert, New: order}))
	require.Len(t, w.rows, 1)
	assert.Nil(t, w.rows[0].PreviousStatus)
}
