package service

import (
	"context"
	"strings"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/events"
	"slotkeeper/internal/models"
)

// Allocate creates a booking if the calendar allows it and capacity remains.
// The capacity check runs inside the store's write transaction, so two
// concurrent calls can never both take the last place.
func (s *BookingService) Allocate(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	b, err := s.allocate(ctx, req)
	if err := s.finish(opAllocate, err); err != nil {
		return nil, err
	}

	s.publish(events.EventBookingCreated, events.NewBookingPayload(b))
	s.logger.Info().
		Str("booking_id", b.ID).
		Str("date", b.DateString()).
		Str("time", b.Time).
		Str("resource_id", b.ResourceID).
		Msg("booking allocated")
	return b, nil
}

func (s *BookingService) allocate(ctx context.Context, req models.BookingRequest) (*models.Booking, error) {
	c, err := parseCandidate(req.Date, req.Time, req.ResourceID, req.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return nil, invalid("customer name is required")
	}

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkCalendar(availability.NewCalendar(settings), c); err != nil {
		return nil, err
	}

	resources, err := s.eligibleResources(ctx, settings)
	if err != nil {
		return nil, err
	}

	release, err := s.lockSlot(ctx, lockKey(settings, c))
	if err != nil {
		return nil, err
	}
	defer release()

	engine := availability.NewEngine(settings)
	booking := &models.Booking{
		Date:            c.date,
		Time:            c.clock,
		ResourceID:      c.resourceID,
		DurationMinutes: c.duration,
		Status:          models.StatusPending,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		Phone:           strings.TrimSpace(req.Phone),
		ServiceName:     strings.TrimSpace(req.ServiceName),
		Comment:         req.Comment,
	}

	err = s.withRetry(ctx, opAllocate, func(ctx context.Context) error {
		booking.ID = ""
		return s.bookings.CreateBookingAtomic(ctx, booking, capacityCheck(engine, c, resources, booking))
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}
