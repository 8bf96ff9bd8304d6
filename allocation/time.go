package allocation

import (
	"time"
)

// =============================================================================
// DAYS - Rosters and configs are keyed by calendar day
// =============================================================================

const dayLayout = "2006-01-02"

// DayOf truncates t to midnight of its UTC calendar day. Every component
// keys days this way, whatever zone its clock reports in.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func Today() time.Time {
	return DayOf(time.Now().UTC())
}

func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DayOf(t), nil
}

func FormatDay(t time.Time) string {
	return t.Format(dayLayout)
}

// SameDay compares calendar days, ignoring time of day.
func SameDay(a, b time.Time) bool {
	return DayOf(a).Equal(DayOf(b))
}

// =============================================================================
// ROSTER CUTOFF
// =============================================================================

// RosterCutoff returns the instant after which the roster for day can no
// longer change: cutoffHour o'clock on that same day.
func RosterCutoff(day time.Time, cutoffHour int) time.Time {
	d := DayOf(day)
	return d.Add(time.Duration(cutoffHour) * time.Hour)
}

// RosterEditable reports whether a duty entry for day may still be created,
// changed or removed at now. Future days are always editable, past days never.
func RosterEditable(day, now time.Time, cutoffHour int) bool {
	return now.UTC().Before(RosterCutoff(day, cutoffHour))
}
