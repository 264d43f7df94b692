package domain

import "time"

// StatKey names a countable daily statistic.
type StatKey string

const (
	StatScans StatKey = "scans"
	StatMarks StatKey = "marks"
)

// DayStats aggregates one day's activity. Scans and Marks are
// non-negative integers; Minutes may be fractional and only ever grows.
type DayStats struct {
	Scans   int     `json:"scans"`
	Marks   int     `json:"marks"`
	Minutes float64 `json:"minutes"`
}

// DailyLedger maps ISO dates (YYYY-MM-DD, UTC) to day aggregates.
type DailyLedger map[string]DayStats

// DayKey formats a time as the ledger's UTC date key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Day returns the aggregate for a date, zeroed for unknown dates.
func (l DailyLedger) Day(day string) DayStats {
	return l[day]
}

// Increment bumps a counter for the day, creating the record if absent.
func (l DailyLedger) Increment(day string, key StatKey) {
	stats := l[day]
	switch key {
	case StatScans:
		stats.Scans++
	case StatMarks:
		stats.Marks++
	}
	l[day] = stats
}

// Decrement lowers a counter for the day, clamped at zero. Unmarking a
// task dotted on a previous day must never drive a count negative.
func (l DailyLedger) Decrement(day string, key StatKey) {
	stats := l[day]
	switch key {
	case StatScans:
		if stats.Scans > 0 {
			stats.Scans--
		}
	case StatMarks:
		if stats.Marks > 0 {
			stats.Marks--
		}
	}
	l[day] = stats
}

// AddMinutes adds logged time to the day. Durations derive from stopped
// timers, so the amount is never negative by construction.
func (l DailyLedger) AddMinutes(day string, minutes float64) {
	stats := l[day]
	stats.Minutes += minutes
	l[day] = stats
}
