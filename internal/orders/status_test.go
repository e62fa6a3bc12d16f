package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusPaid))
	assert.True(t, CanTransition(StatusPending, StatusCancelled))

	assert.False(t, CanTransition(StatusPaid, StatusCancelled))
	assert.False(t, CanTransition(StatusPaid, StatusPending))
	assert.False(t, CanTransition(StatusCancelled, StatusPaid))
	assert.False(t, CanTransition(StatusCancelled, StatusPending))
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusPaid.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestShippingValidate(t *testing.T) {
	ok := ShippingInfo{Address: "Av. Arequipa 1234", City: "Lima", Phone: "+51 999 888 777"}
	assert.NoError(t, ok.Validate())

	assert.ErrorIs(t, ShippingInfo{City: "Lima", Phone: "1"}.Validate(), ErrShippingAddressRequired)
	assert.ErrorIs(t, ShippingInfo{Address: "a", Phone: "1"}.Validate(), ErrShippingCityRequired)
	assert.ErrorIs(t, ShippingInfo{Address: "a", City: "Lima"}.Validate(), ErrShippingPhoneRequired)
}
