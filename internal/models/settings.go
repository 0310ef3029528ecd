package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSettings = errors.New("invalid booking settings")

type DaySchedule struct {
	IsOpen    bool   `yaml:"is_open" json:"is_open"`
	OpenTime  string `yaml:"open_time" json:"open_time"`
	CloseTime string `yaml:"close_time" json:"close_time"`
}

type Holiday struct {
	Date string `yaml:"date" json:"date"`
	Note string `yaml:"note" json:"note,omitempty"`
}

// TimeQueue is a bookable start time with its own quota.
type TimeQueue struct {
	Time  string `yaml:"time" json:"time"`
	Count int    `yaml:"count" json:"count"`
}

// BookingSettings drives every allocation decision. Weekday keys follow
// time.Weekday: 0 is Sunday.
type BookingSettings struct {
	WeeklySchedule   map[int]DaySchedule `yaml:"weekly_schedule" json:"weekly_schedule"`
	HolidayDates     []Holiday           `yaml:"holiday_dates" json:"holiday_dates"`
	TimeQueues       []TimeQueue         `yaml:"time_queues" json:"time_queues"`
	TotalBeauticians int                 `yaml:"total_beauticians" json:"total_beauticians"`
	UseBeautician    bool                `yaml:"use_beautician" json:"use_beautician"`
	BufferMinutes    int                 `yaml:"buffer_minutes" json:"buffer_minutes"`
	UpdatedAt        time.Time           `yaml:"-" json:"updated_at"`
}

// DefaultBookingSettings is used until an administrator saves settings.
func DefaultBookingSettings() *BookingSettings {
	weekly := make(map[int]DaySchedule, 7)
	for day := int(time.Monday); day <= int(time.Saturday); day++ {
		weekly[day] = DaySchedule{IsOpen: true, OpenTime: "09:00", CloseTime: "18:00"}
	}
	weekly[int(time.Sunday)] = DaySchedule{IsOpen: false}
	return &BookingSettings{
		WeeklySchedule:   weekly,
		TotalBeauticians: 1,
	}
}

func (s *BookingSettings) Validate() error {
	if s.TotalBeauticians < 0 {
		return fmt.Errorf("%w: total_beauticians must not be negative", ErrInvalidSettings)
	}
	if s.BufferMinutes < 0 {
		return fmt.Errorf("%w: buffer_minutes must not be negative", ErrInvalidSettings)
	}

	for day, sched := range s.WeeklySchedule {
		if day < 0 || day > 6 {
			return fmt.Errorf("%w: weekday %d out of range 0..6", ErrInvalidSettings, day)
		}
		if !sched.IsOpen {
			continue
		}
		open, err := ParseClock(sched.OpenTime)
		if err != nil {
			return fmt.Errorf("%w: weekday %d open_time: %v", ErrInvalidSettings, day, err)
		}
		closing, err := ParseClock(sched.CloseTime)
		if err != nil {
			return fmt.Errorf("%w: weekday %d close_time: %v", ErrInvalidSettings, day, err)
		}
		if open >= closing {
			return fmt.Errorf("%w: weekday %d open_time must be before close_time", ErrInvalidSettings, day)
		}
	}

	for _, h := range s.HolidayDates {
		if _, err := ParseDate(h.Date); err != nil {
			return fmt.Errorf("%w: holiday: %v", ErrInvalidSettings, err)
		}
	}

	seen := make(map[int]bool, len(s.TimeQueues))
	for _, q := range s.TimeQueues {
		m, err := ParseClock(q.Time)
		if err != nil {
			return fmt.Errorf("%w: time queue: %v", ErrInvalidSettings, err)
		}
		if seen[m] {
			return fmt.Errorf("%w: duplicate time queue %s", ErrInvalidSettings, q.Time)
		}
		seen[m] = true
		if q.Count < 1 {
			return fmt.Errorf("%w: time queue %s count must be at least 1", ErrInvalidSettings, q.Time)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can treat a snapshot as immutable.
func (s *BookingSettings) Clone() *BookingSettings {
	out := *s
	if s.WeeklySchedule != nil {
		out.WeeklySchedule = make(map[int]DaySchedule, len(s.WeeklySchedule))
		for k, v := range s.WeeklySchedule {
			out.WeeklySchedule[k] = v
		}
	}
	out.HolidayDates = append([]Holiday(nil), s.HolidayDates...)
	out.TimeQueues = append([]TimeQueue(nil), s.TimeQueues...)
	return &out
}
