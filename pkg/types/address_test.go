package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func TestDeliveryAddressValidate(t *testing.T) {
	ok := DeliveryAddress{Line1: "1 Main St", City: "Austin", PostalCode: "78701", Lat: 30.26, Lng: -97.74}
	assert.NoError(t, ok.Validate())

	err := DeliveryAddress{City: " ", Lat: 120}.Validate()
	assert.Len(t, multierr.Errors(err), 4)
	assert.ErrorContains(t, err, "missing line1")
	assert.ErrorContains(t, err, "missing postal_code")
	assert.ErrorContains(t, err, "out of range")
}

func TestDeliveryAddressOneLine(t *testing.T) {
	apt := "Apt 4"
	addr := DeliveryAddress{Line1: "1 Main St", Line2: &apt, City: "Austin", Region: "TX", PostalCode: "78701"}
	assert.Equal(t, "1 Main St, Apt 4, Austin, TX, 78701", addr.OneLine())

	blank := " "
	assert.Equal(t, "1 Main St, Austin, 78701", DeliveryAddress{Line1: "1 Main St", Line2: &blank, City: "Austin", PostalCode: "78701"}.OneLine())
}
