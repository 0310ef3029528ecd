package service

import (
	"context"
	"fmt"
	"strings"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/events"
	"slotkeeper/internal/models"
)

// Reschedule moves an active booking to a new date, time, resource or
// duration. The booking is left out of its own conflict set, so moving it
// onto (or next to) its current slot never conflicts with itself.
func (s *BookingService) Reschedule(ctx context.Context, id string, req models.RescheduleRequest) (*models.Booking, error) {
	updated, previous, err := s.reschedule(ctx, id, req)
	if err := s.finish(opReschedule, err); err != nil {
		return nil, err
	}
	if previous == nil {
		return updated, nil
	}

	payload := events.NewBookingPayload(updated)
	payload.PreviousDate = previous.DateString()
	payload.PreviousTime = previous.Time
	payload.PreviousResourceID = previous.ResourceID
	s.publish(events.EventBookingRescheduled, payload)

	s.logger.Info().
		Str("booking_id", updated.ID).
		Str("from", previous.DateString()+" "+previous.Time).
		Str("to", updated.DateString()+" "+updated.Time).
		Str("resource_id", updated.ResourceID).
		Msg("booking rescheduled")
	return updated, nil
}

// rescheduleCandidate fills fields the request left empty from current.
func rescheduleCandidate(current *models.Booking, req models.RescheduleRequest) (candidate, error) {
	date := req.Date
	if strings.TrimSpace(date) == "" {
		date = current.DateString()
	}
	clock := req.Time
	if strings.TrimSpace(clock) == "" {
		clock = current.Time
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = max(current.DurationMinutes, 1)
	}
	resourceID := req.ResourceID
	if strings.TrimSpace(resourceID) == "" {
		resourceID = current.ResourceID
	}
	return parseCandidate(date, clock, resourceID, duration)
}

func sameSlot(b *models.Booking, c candidate) bool {
	return b.Date.Equal(c.date) &&
		b.Time == c.clock &&
		b.DurationMinutes == c.duration &&
		models.NormalizeResourceID(b.ResourceID) == c.resourceID
}

func staleBooking(current *models.Booking, expected int64) *AllocationError {
	return &AllocationError{
		Kind:    KindConflict,
		Reason:  models.ReasonStaleBooking,
		Message: fmt.Sprintf("booking is at version %d, not %d", current.Version, expected),
	}
}

// reschedule returns previous == nil when nothing had to change.
func (s *BookingService) reschedule(ctx context.Context, id string, req models.RescheduleRequest) (*models.Booking, *models.Booking, error) {
	current, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !current.IsActive() {
		return nil, nil, invalid("booking %s is %s and cannot be rescheduled", id, current.Status)
	}
	if req.Version != 0 && req.Version != current.Version {
		return nil, nil, staleBooking(current, req.Version)
	}

	c, err := rescheduleCandidate(current, req)
	if err != nil {
		return nil, nil, err
	}
	if sameSlot(current, c) {
		return current, nil, nil
	}

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := checkCalendar(availability.NewCalendar(settings), c); err != nil {
		return nil, nil, err
	}

	resources, err := s.eligibleResources(ctx, settings)
	if err != nil {
		return nil, nil, err
	}

	release, err := s.lockSlot(ctx, lockKey(settings, c))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	engine := availability.NewEngine(settings)
	var updated, previous *models.Booking
	err = s.withRetry(ctx, opReschedule, func(ctx context.Context) error {
		fresh, err := s.bookings.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !fresh.IsActive() {
			return invalid("booking %s is %s and cannot be rescheduled", id, fresh.Status)
		}
		if req.Version != 0 && req.Version != fresh.Version {
			return staleBooking(fresh, req.Version)
		}

		next := *fresh
		next.Date = c.date
		next.Time = c.clock
		next.ResourceID = c.resourceID
		next.DurationMinutes = c.duration
		if err := s.bookings.UpdateBookingAtomic(ctx, id, &next, capacityCheck(engine, c, resources, &next)); err != nil {
			return err
		}
		updated, previous = &next, fresh
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, previous, nil
}
