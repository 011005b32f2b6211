// Package analytics streams order lifecycle changes into BigQuery.
package analytics

import (
	"context"
	"errors"

	"github.com/angelmondragon/dishdash-backend/internal/analytics/types"
	"github.com/angelmondragon/dishdash-backend/internal/analytics/writer"
	"github.com/angelmondragon/dishdash-backend/internal/orderfeed"
	"github.com/shopspring/decimal"
)

type rowWriter interface {
	InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error
	Flush(ctx context.Context) error
}

// Sink records every observed order change as an analytics row.
type Sink struct {
	writer rowWriter
}

// NewSink wraps a row writer.
func NewSink(w rowWriter) (*Sink, error) {
	if w == nil {
		return nil, errors.New("analytics writer required")
	}
	return &Sink{writer: w}, nil
}

// Record converts the change and hands it to the writer.
func (s *Sink) Record(ctx context.Context, event orderfeed.ChangeEvent) error {
	row, err := RowFromEvent(event)
	if err != nil {
		return err
	}
	return s.writer.InsertOrderEvent(ctx, row)
}

// Flush pushes buffered rows; call it on shutdown.
func (s *Sink) Flush(ctx context.Context) error {
	return s.writer.Flush(ctx)
}

var hundred = decimal.NewFromInt(100)

// RowFromEvent flattens a change event. The latest row image wins; deletes describe the removed row.
func RowFromEvent(event orderfeed.ChangeEvent) (types.OrderEventRow, error) {
	current := event.New
	if current == nil {
		current = event.Old
	}
	if current == nil {
		return types.OrderEventRow{}, errors.New("change event carries no order")
	}

	row := types.OrderEventRow{
		EventID:     event.ID.String(),
		ChangeType:  string(event.Type),
		OccurredAt:  event.CommitTime.UTC(),
		OrderID:     current.ID.String(),
		OrderNumber: current.OrderNumber,
		CustomerID:  current.CustomerID.String(),
	}
	if current.BusinessID != nil {
		row.BusinessID = strPtr(current.BusinessID.String())
	}
	if current.DriverID != nil {
		row.DriverID = strPtr(current.DriverID.String())
	}
	if event.Old != nil {
		row.PreviousStatus = strPtr(string(event.Old.Status))
	}
	if event.New != nil {
		row.Status = strPtr(string(event.New.Status))
	}
	cents := current.TotalAmount.Mul(hundred).Round(0).IntPart()
	row.TotalAmountCents = &cents

	payload, err := writer.EncodeJSON(struct {
		Old any `json:"old,omitempty"`
		New any `json:"new,omitempty"`
	}{Old: event.Old, New: event.New})
	if err != nil {
		return types.OrderEventRow{}, err
	}
	row.Payload = payload
	return row, nil
}

func strPtr(v string) *string {
	return &v
}
