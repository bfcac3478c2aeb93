package clock

import (
	"sync"
	"time"
)

// DateLayout is the calendar-date format used for plans, reviews and streaks.
const DateLayout = "2006-01-02"

// Clock reports the current wall-clock time in the display timezone.
type Clock interface {
	Now() time.Time
}

// Real is the production clock.
type Real struct {
	Location *time.Location
}

func (r Real) Now() time.Time {
	if r.Location == nil {
		return time.Now()
	}
	return time.Now().In(r.Location)
}

// Fixed is a manually driven clock for tests.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// Today returns the current calendar date of c.
func Today(c Clock) string {
	return c.Now().Format(DateLayout)
}

// AddDays shifts a calendar date by n days. An unparsable date is returned unchanged.
func AddDays(date string, n int) string {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, n).Format(DateLayout)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b string) (int, error) {
	da, err := time.Parse(DateLayout, a)
	if err != nil {
		return 0, err
	}
	db, err := time.Parse(DateLayout, b)
	if err != nil {
		return 0, err
	}
	return int(db.Sub(da).Hours() / 24), nil
}

// DayOrdinal is the number of days since the Unix epoch for a calendar date.
func DayOrdinal(date string) int64 {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return 0
	}
	return d.Unix() / 86400
}
