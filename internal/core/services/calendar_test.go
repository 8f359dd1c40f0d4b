package services

import (
	"testing"
	"time"

	"tontiflex/internal/adapters/persistence/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedBooklet(start time.Time) *models.Booklet {
	return &models.Booklet{
		CycleNumber: 1,
		CycleStart:  start,
		Days:        models.NewBookletDays(),
	}
}

func TestGenerateCalendarShape(t *testing.T) {
	start := time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)
	b := fixedBooklet(start)
	b.SetDayPaid(2)

	days := GenerateCalendar(b, start.AddDate(0, 0, 3))
	require.Len(t, days, 31)

	assert.Equal(t, 1, days[0].DayNumber)
	assert.True(t, days[0].IsCommissionDay)
	assert.True(t, days[0].IsPaid)
	assert.True(t, days[1].IsPaid)
	assert.False(t, days[2].IsPaid)
	assert.True(t, days[2].IsLate)
	assert.False(t, days[4].IsLate)

	// Day numbers run past February's end without skipping.
	assert.Equal(t, start.AddDate(0, 0, 30), days[30].Date)
}

func TestComputeStatistics(t *testing.T) {
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	b := fixedBooklet(start)
	b.SetDayPaid(2)
	b.SetDayPaid(3)
	b.SetDayPaid(5)

	stats := ComputeStatistics(b, start.AddDate(0, 0, 10))
	assert.Equal(t, 4, stats.DaysPaid)
	assert.Equal(t, 6, stats.DaysMissed, "days 4 and 6 through 10 are overdue")
	assert.InDelta(t, 4.0/31.0, stats.PunctualityRate, 0.0001)
	require.NotNil(t, stats.NextDueDate)
	assert.Equal(t, start.AddDate(0, 0, 3), *stats.NextDueDate)
}

func TestCycleDayFor(t *testing.T) {
	start := time.Date(2026, time.January, 15, 9, 30, 0, 0, time.UTC)
	b := fixedBooklet(start)

	assert.Equal(t, 1, CycleDayFor(b, start))
	// Clock time within the day is irrelevant.
	assert.Equal(t, 1, CycleDayFor(b, start.Add(-8*time.Hour)))
	assert.Equal(t, 2, CycleDayFor(b, start.AddDate(0, 0, 1)))
	assert.Equal(t, 31, CycleDayFor(b, start.AddDate(0, 0, 30)))
	assert.Equal(t, 32, CycleDayFor(b, start.AddDate(0, 0, 31)))
}

func TestCycleDayForAcrossDSTChange(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// The spring-forward on March 8 shortens one elapsed day to 23 hours.
	// Day numbers count civil dates, so they stay aligned with the slot
	// dates GenerateCalendar produces.
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, loc)
	b := fixedBooklet(start)

	assert.Equal(t, 11, CycleDayFor(b, start.AddDate(0, 0, 10)))
	assert.Equal(t, 31, CycleDayFor(b, start.AddDate(0, 0, 30)))

	days := GenerateCalendar(b, start)
	assert.Equal(t, 11, CycleDayFor(b, days[10].Date))
}
