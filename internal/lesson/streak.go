package lesson

import (
	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/pkg/models"
)

// NextStreak applies a completion on date to prev.
// Same day: unchanged. Next day: +1. Any longer gap: back to 1.
func NextStreak(prev models.Streak, date string) models.Streak {
	next := prev
	if prev.LastCompletedDate == date {
		return next
	}

	gap, err := clock.DaysBetween(prev.LastCompletedDate, date)
	switch {
	case prev.LastCompletedDate == "" || err != nil:
		next.CurrentStreak = 1
	case gap == 1:
		next.CurrentStreak = prev.CurrentStreak + 1
	case gap < 0:
		// completion dated before the last one; keep the ledger as is
		return next
	default:
		next.CurrentStreak = 1
	}
	next.LastCompletedDate = date
	if next.CurrentStreak > next.BestStreak {
		next.BestStreak = next.CurrentStreak
	}
	return next
}

// LiveStreak is the streak as seen on today: it lapses after a missed day
func LiveStreak(s models.Streak, today string) int {
	if s.LastCompletedDate == "" {
		return 0
	}
	gap, err := clock.DaysBetween(s.LastCompletedDate, today)
	if err != nil || gap > 1 {
		return 0
	}
	return s.CurrentStreak
}
