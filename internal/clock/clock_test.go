package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDays(t *testing.T) {
	assert.Equal(t, "2026-03-01", AddDays("2026-02-28", 1))
	assert.Equal(t, "2026-02-21", AddDays("2026-02-20", 1))
	assert.Equal(t, "2026-01-31", AddDays("2026-02-01", -1))
	assert.Equal(t, "garbage", AddDays("garbage", 3))
}

func TestDaysBetween(t *testing.T) {
	n, err := DaysBetween("2026-02-21", "2026-02-23")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = DaysBetween("2026-02-23", "2026-02-21")
	require.NoError(t, err)
	assert.Equal(t, -2, n)

	_, err = DaysBetween("x", "2026-02-21")
	assert.Error(t, err)
}

func TestDayOrdinalConsecutive(t *testing.T) {
	assert.Equal(t, DayOrdinal("2026-02-20")+1, DayOrdinal("2026-02-21"))
}

func TestFixedClock(t *testing.T) {
	loc := time.FixedZone("UZT", 5*3600)
	c := NewFixed(time.Date(2026, 2, 21, 23, 30, 0, 0, loc))
	assert.Equal(t, "2026-02-21", Today(c))

	c.Advance(time.Hour)
	assert.Equal(t, "2026-02-22", Today(c))
}
