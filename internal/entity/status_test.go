package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusShipped},
		{StatusProcessing, StatusCancelled},
		{StatusProcessing, StatusRefunded},
		{StatusShipped, StatusDelivered},
		{StatusDelivered, StatusRefunded},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	illegal := []struct{ from, to Status }{
		{StatusPending, StatusShipped},
		{StatusPending, StatusDelivered},
		{StatusPending, StatusRefunded},
		{StatusShipped, StatusCancelled},
		{StatusShipped, StatusRefunded},
		{StatusCancelled, StatusShipped},
		{StatusCancelled, StatusPending},
		{StatusRefunded, StatusProcessing},
		{StatusDelivered, StatusShipped},
		{StatusProcessing, StatusPending}, // no backwards moves
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRefunded.Terminal())
	assert.False(t, StatusDelivered.Terminal(), "delivered can still be refunded")
	assert.False(t, StatusPending.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("processing")
	assert.True(t, ok)
	assert.Equal(t, StatusProcessing, s)

	_, ok = ParseStatus("unknown")
	assert.False(t, ok)

	_, ok = ParseStatus("")
	assert.False(t, ok)
}
