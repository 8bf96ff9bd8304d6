package allocation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/collections-engine/allocation"
)

func TestDayOf_UsesUTCCalendarDay(t *testing.T) {
	// GIVEN: 23:30 UTC on June 3rd, seen from Tokyo where it is already June 4th
	// WHEN: taking the day
	// THEN: it is June 3rd, the same day the HTTP layer and services use

	jst := time.FixedZone("JST", 9*60*60)
	local := time.Date(2024, time.June, 3, 23, 30, 0, 0, time.UTC).In(jst)
	assert.Equal(t, 4, local.Day())

	day := allocation.DayOf(local)
	assert.Equal(t, "2024-06-03", allocation.FormatDay(day))
	assert.Equal(t, time.UTC, day.Location())

	behind := time.FixedZone("EDT", -4*60*60)
	evening := time.Date(2024, time.June, 4, 1, 0, 0, 0, time.UTC).In(behind)
	assert.Equal(t, "2024-06-04", allocation.FormatDay(allocation.DayOf(evening)))
}

func TestRosterEditable_LocalClock(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	day := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)

	before := time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC).In(jst)
	after := time.Date(2024, time.June, 3, 10, 30, 0, 0, time.UTC).In(jst)
	assert.True(t, allocation.RosterEditable(day, before, 10))
	assert.False(t, allocation.RosterEditable(day, after, 10))
}
