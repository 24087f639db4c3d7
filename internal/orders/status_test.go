package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFulfilled, true},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusFulfilled, false},
		{StatusFulfilled, StatusCancelled, false},
		{StatusFulfilled, StatusPending, false},
		{StatusPending, StatusPending, false},
		{Status("UNKNOWN"), StatusCancelled, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusPending))
	assert.True(t, ValidStatus(StatusCancelled))
	assert.True(t, ValidStatus(StatusFulfilled))
	assert.False(t, ValidStatus(Status("SHIPPED")))
}
