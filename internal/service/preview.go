package service

import (
	"context"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/models"
)

// CheckAvailability answers "would this request fit right now" with the
// same rules Allocate applies, but without locking or writing. Policy
// rejections come back as Available=false with a reason, not as errors.
func (s *BookingService) CheckAvailability(ctx context.Context, req models.BookingRequest) (*models.SlotAvailability, error) {
	c, err := parseCandidate(req.Date, req.Time, req.ResourceID, req.DurationMinutes)
	if err != nil {
		return nil, err
	}
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.SlotAvailability{
		Date:       c.date.Format(models.DateLayout),
		Time:       c.clock,
		ResourceID: c.resourceID,
	}
	if err := checkCalendar(availability.NewCalendar(settings), c); err != nil {
		ae, _ := AsAllocationError(err)
		result.Reason = ae.Reason
		result.Note = ae.Note
		return result, nil
	}

	existing, err := s.activeBookings(ctx, c, req.ExcludeBookingID)
	if err != nil {
		return nil, err
	}
	resources, err := s.eligibleResources(ctx, settings)
	if err != nil {
		return nil, err
	}

	v, err := availability.NewEngine(settings).Evaluate(c.forEngine(), existing, resources)
	if err != nil {
		return nil, invalid("%v", err)
	}
	result.Available = v.Available
	result.Reason = v.Reason
	result.Capacity = v.Capacity
	result.Booked = v.Booked
	result.Remaining = v.Remaining
	result.ResourceID = v.ResourceID
	return result, nil
}

// DayAvailability builds the start-time grid of one day: every time queue,
// or every DefaultSlotStep minutes of business hours when no queues are set.
func (s *BookingService) DayAvailability(ctx context.Context, date string, duration int) (*models.DayAvailability, error) {
	d, err := models.ParseDate(date)
	if err != nil {
		return nil, invalid("%v", err)
	}
	if duration == 0 {
		duration = models.DefaultServiceDuration
	}
	if duration < 1 || duration > 24*60 {
		return nil, invalid("duration must be between 1 and 1440 minutes, got %d", duration)
	}

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	cal := availability.NewCalendar(settings)
	day := &models.DayAvailability{
		Date:  d.Format(models.DateLayout),
		Slots: []models.SlotAvailability{},
	}
	if !cal.IsDateOpen(d) {
		h, _ := cal.Holiday(d)
		day.Note = h.Note
		return day, nil
	}
	day.Open = true

	engine := availability.NewEngine(settings)
	times := engine.Policy().QueueTimes()
	if len(times) == 0 {
		open, closing, _ := cal.Hours(d)
		for m := open; m <= closing; m += models.DefaultSlotStep {
			times = append(times, m)
		}
	}

	existing, err := s.activeBookings(ctx, candidate{date: d}, "")
	if err != nil {
		return nil, err
	}
	resources, err := s.eligibleResources(ctx, settings)
	if err != nil {
		return nil, err
	}

	for _, m := range times {
		clock := models.FormatClock(m)
		slot := models.SlotAvailability{Date: day.Date, Time: clock}
		if !cal.IsTimeWithinHours(d, clock) {
			slot.Reason = models.ReasonOutsideHours
			day.Slots = append(day.Slots, slot)
			continue
		}

		c := availability.Candidate{Time: clock, DurationMinutes: duration, ResourceID: models.AutoResource}
		if engine.Policy().IsExclusive() {
			free, err := engine.FreeResources(c, existing, resources)
			if err != nil {
				return nil, invalid("%v", err)
			}
			slot.Capacity = engine.Policy().MaxCapacityFor(clock)
			slot.Remaining = free
			slot.Booked = max(slot.Capacity-free, 0)
			slot.Available = free > 0
			if !slot.Available {
				slot.Reason = models.ReasonResourceUnavailable
			}
		} else {
			v, err := engine.Evaluate(c, existing, resources)
			if err != nil {
				return nil, invalid("%v", err)
			}
			slot.Capacity = v.Capacity
			slot.Booked = v.Booked
			slot.Remaining = v.Remaining
			slot.Available = v.Available
			slot.Reason = v.Reason
		}
		day.Slots = append(day.Slots, slot)
	}
	return day, nil
}

// activeBookings is a plain read, no lock.
func (s *BookingService) activeBookings(ctx context.Context, c candidate, excludeID string) ([]*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	bookings, err := s.bookings.QueryActiveBookings(ctx, c.date, "")
	if err != nil {
		return nil, storeError(opRead, err)
	}
	if excludeID == "" {
		return bookings, nil
	}
	out := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.ID != excludeID {
			out = append(out, b)
		}
	}
	return out, nil
}
