// Package availability holds the pure booking rules: which days and hours are
// open, how much capacity a start time has, and whether a candidate booking
// collides with existing ones. Nothing here does I/O; every type is built from
// one BookingSettings snapshot.
package availability

import (
	"time"

	"slotkeeper/internal/models"
)

// Calendar answers open-day and business-hours questions.
type Calendar struct {
	weekly   map[int]models.DaySchedule
	holidays map[string]models.Holiday
}

func NewCalendar(settings *models.BookingSettings) *Calendar {
	c := &Calendar{
		weekly:   make(map[int]models.DaySchedule, len(settings.WeeklySchedule)),
		holidays: make(map[string]models.Holiday, len(settings.HolidayDates)),
	}
	for day, sched := range settings.WeeklySchedule {
		c.weekly[day] = sched
	}
	for _, h := range settings.HolidayDates {
		d, err := models.ParseDate(h.Date)
		if err != nil {
			continue
		}
		c.holidays[d.Format(models.DateLayout)] = h
	}
	return c
}

// Holiday returns the holiday entry covering date, if any.
func (c *Calendar) Holiday(date time.Time) (models.Holiday, bool) {
	h, ok := c.holidays[date.Format(models.DateLayout)]
	return h, ok
}

// IsDateOpen: holidays close the whole day; a weekday without a schedule
// entry is open.
func (c *Calendar) IsDateOpen(date time.Time) bool {
	if _, ok := c.Holiday(date); ok {
		return false
	}
	sched, ok := c.weekly[int(date.Weekday())]
	if !ok {
		return true
	}
	return sched.IsOpen
}

// IsTimeWithinHours checks openTime <= clock <= closeTime. Both bounds are
// inclusive. Unconfigured weekdays have no hour limits.
func (c *Calendar) IsTimeWithinHours(date time.Time, clock string) bool {
	if !c.IsDateOpen(date) {
		return false
	}
	minute, err := models.ParseClock(clock)
	if err != nil {
		return false
	}
	sched, ok := c.weekly[int(date.Weekday())]
	if !ok {
		return true
	}
	open, err := models.ParseClock(sched.OpenTime)
	if err != nil {
		return false
	}
	closing, err := models.ParseClock(sched.CloseTime)
	if err != nil {
		return false
	}
	return minute >= open && minute <= closing
}

// Hours returns the open window of date in minutes since midnight. ok is
// false when the day is closed. Unconfigured weekdays span the whole day.
func (c *Calendar) Hours(date time.Time) (open, closing int, ok bool) {
	if !c.IsDateOpen(date) {
		return 0, 0, false
	}
	sched, found := c.weekly[int(date.Weekday())]
	if !found {
		return 0, 24*60 - 1, true
	}
	open, err := models.ParseClock(sched.OpenTime)
	if err != nil {
		return 0, 0, false
	}
	closing, err = models.ParseClock(sched.CloseTime)
	if err != nil {
		return 0, 0, false
	}
	return open, closing, true
}
