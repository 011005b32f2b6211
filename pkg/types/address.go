package types

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// DeliveryAddress is the drop-off location captured at checkout. It is stored as jsonb.
type DeliveryAddress struct {
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	Region     string  `json:"region"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// Validate reports every problem that would stop a driver finding the address.
func (a DeliveryAddress) Validate() error {
	var err error
	for field, value := range map[string]string{"line1": a.Line1, "city": a.City, "postal_code": a.PostalCode} {
		if strings.TrimSpace(value) == "" {
			err = multierr.Append(err, fmt.Errorf("address: missing %s", field))
		}
	}
	if a.Lat < -90 || a.Lat > 90 || a.Lng < -180 || a.Lng > 180 {
		err = multierr.Append(err, fmt.Errorf("address: coordinates %.4f,%.4f out of range", a.Lat, a.Lng))
	}
	return err
}

// OneLine renders the address for notifications and logs, skipping blank parts.
func (a DeliveryAddress) OneLine() string {
	line2 := ""
	if a.Line2 != nil {
		line2 = *a.Line2
	}
	var parts []string
	for _, part := range []string{a.Line1, line2, a.City, a.Region, a.PostalCode} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
