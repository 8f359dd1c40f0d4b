package services

import (
	"time"

	"tontiflex/internal/adapters/persistence/models"
	"tontiflex/internal/core/domain"
)

// CalendarDay is one slot of a contribution cycle.
type CalendarDay struct {
	DayNumber       int       `json:"day_number"`
	Date            time.Time `json:"date"`
	IsCommissionDay bool      `json:"is_commission_day"`
	IsPaid          bool      `json:"is_paid"`
	IsLate          bool      `json:"is_late"`
}

// BookletStatistics summarizes a booklet's punctuality.
type BookletStatistics struct {
	DaysPaid        int        `json:"days_paid"`
	DaysMissed      int        `json:"days_missed"`
	PunctualityRate float64    `json:"punctuality_rate"`
	NextDueDate     *time.Time `json:"next_due_date,omitempty"`
}

// GenerateCalendar produces the 31 ordered day descriptors of the booklet's
// cycle. The cycle is a fixed 31-slot ledger: day N is cycleStart plus N-1
// days regardless of the calendar month's length, so day numbers beyond a
// short month still map to a virtual day. This must be preserved for
// compatibility with existing booklets.
func GenerateCalendar(b *models.Booklet, now time.Time) []CalendarDay {
	days := make([]CalendarDay, 0, domain.BookletDays)
	for n := 1; n <= domain.BookletDays; n++ {
		date := b.CycleStart.AddDate(0, 0, n-1)
		paid := b.DayPaid(n)
		days = append(days, CalendarDay{
			DayNumber:       n,
			Date:            date,
			IsCommissionDay: n == domain.CommissionDay,
			IsPaid:          paid,
			IsLate:          !paid && date.Before(now),
		})
	}
	return days
}

// ComputeStatistics computes punctuality statistics for a booklet. The rate
// is daysPaid/31 and always falls in [0,1]; days missed counts unpaid days
// whose date has passed.
func ComputeStatistics(b *models.Booklet, now time.Time) BookletStatistics {
	stats := BookletStatistics{}
	for _, day := range GenerateCalendar(b, now) {
		if day.IsPaid {
			stats.DaysPaid++
			continue
		}
		if day.IsLate {
			stats.DaysMissed++
		}
		if stats.NextDueDate == nil {
			due := day.Date
			stats.NextDueDate = &due
		}
	}
	stats.PunctualityRate = float64(stats.DaysPaid) / float64(domain.BookletDays)
	return stats
}

// CycleDayFor maps a date to its 1-based day number in the booklet's cycle.
// Dates past the 31-slot window return a number greater than 31, which
// signals that the cycle has elapsed and a new booklet is due.
func CycleDayFor(b *models.Booklet, date time.Time) int {
	// Both civil dates are re-anchored in UTC so the difference is an exact
	// day count even across a DST change, matching the AddDate slot dates.
	sy, sm, sd := b.CycleStart.Date()
	y, m, d := date.Date()
	start := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	cur := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(cur.Sub(start)/(24*time.Hour)) + 1
}
