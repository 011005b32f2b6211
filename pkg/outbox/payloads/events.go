package payloads

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// OrderChangedEvent is a row-level change of the orders table.
// Old is nil for inserts and New is nil for deletes.
// Snapshots are carried as stored; checkout rules are not re-applied to them.
type OrderChangedEvent struct {
	ChangeType enums.ChangeType `json:"change_type" validate:"oneof=insert update delete"`
	OrderID    uuid.UUID        `json:"order_id" validate:"required"`
	Old        *models.Order    `json:"old,omitempty" validate:"-"`
	New        *models.Order    `json:"new,omitempty" validate:"-"`
}

// Check verifies the snapshots match the change type and belong to OrderID.
func (e OrderChangedEvent) Check() error {
	switch {
	case e.ChangeType == enums.ChangeDelete && e.Old == nil:
		return fmt.Errorf("delete of order %s carries no old snapshot", e.OrderID)
	case e.ChangeType != enums.ChangeDelete && e.New == nil:
		return fmt.Errorf("%s of order %s carries no new snapshot", e.ChangeType, e.OrderID)
	}
	for _, snap := range []*models.Order{e.Old, e.New} {
		if snap != nil && snap.ID != uuid.Nil && snap.ID != e.OrderID {
			return fmt.Errorf("snapshot of order %s attached to order %s", snap.ID, e.OrderID)
		}
	}
	return nil
}

// DriverAvailabilityChangedEvent records a driver going on or off shift.
type DriverAvailabilityChangedEvent struct {
	DriverID    uuid.UUID `json:"driver_id" validate:"required"`
	IsAvailable bool      `json:"is_available"`
}
