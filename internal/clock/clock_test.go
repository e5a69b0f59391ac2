package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoc(t *testing.T) *time.Location {
	loc, err := time.LoadLocation(Exchange)
	require.NoError(t, err)
	return loc
}

func TestPhaseBoundaries(t *testing.T) {
	loc := mustLoc(t)
	c, err := New(nil)
	require.NoError(t, err)

	cases := []struct {
		name string
		at   time.Time
		want Phase
	}{
		{"before premarket", time.Date(2026, 3, 4, 3, 59, 0, 0, loc), Closed},
		{"premarket open", time.Date(2026, 3, 4, 4, 0, 0, 0, loc), Premarket},
		{"regular open", time.Date(2026, 3, 4, 9, 30, 0, 0, loc), Regular},
		{"just before close", time.Date(2026, 3, 4, 15, 59, 0, 0, loc), Regular},
		{"afterhours", time.Date(2026, 3, 4, 16, 0, 0, 0, loc), Afterhours},
		{"after close", time.Date(2026, 3, 4, 20, 0, 0, 0, loc), Closed},
		{"weekend", time.Date(2026, 3, 7, 10, 0, 0, 0, loc), Closed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Phase(tc.at))
		})
	}
}

func TestHolidayIsClosedAllDay(t *testing.T) {
	loc := mustLoc(t)
	holiday := time.Date(2026, 3, 4, 0, 0, 0, 0, loc) // a Wednesday
	c, err := New([]time.Time{holiday})
	require.NoError(t, err)

	assert.Equal(t, Closed, c.Phase(time.Date(2026, 3, 4, 10, 0, 0, 0, loc)))
	assert.False(t, c.IsTradingDay(holiday))
}

func TestNextTransitionRollsToNextTradingDay(t *testing.T) {
	loc := mustLoc(t)
	c, err := New(nil)
	require.NoError(t, err)

	fri2000 := time.Date(2026, 3, 6, 20, 0, 0, 0, loc) // Friday after close
	next := c.NextTransition(fri2000)
	assert.Equal(t, time.Date(2026, 3, 9, 4, 0, 0, 0, loc), next) // Monday premarket
}
