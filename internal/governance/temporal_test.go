package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildTemporalContext_BusinessHoursWindowMatchesOriginal(t *testing.T) {
	// 9 <= hour < 18, no weekday gate, matching governance/kernel.py's
	// is_business_hours.
	saturdayAt9 := time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC) // a Saturday
	assert.True(t, buildTemporalContext(saturdayAt9).IsBusinessHours)

	weekdayAt17 := time.Date(2026, 1, 5, 17, 59, 0, 0, time.UTC)
	assert.True(t, buildTemporalContext(weekdayAt17).IsBusinessHours)

	weekdayAt18 := time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC)
	assert.False(t, buildTemporalContext(weekdayAt18).IsBusinessHours)

	weekdayAt8 := time.Date(2026, 1, 5, 8, 59, 0, 0, time.UTC)
	assert.False(t, buildTemporalContext(weekdayAt8).IsBusinessHours)
}
