package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotkeeper/internal/availability"
	"slotkeeper/internal/database"
	"slotkeeper/internal/domain"
	"slotkeeper/internal/events"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/models"
	"slotkeeper/internal/repository"
	"slotkeeper/internal/worker"

	"github.com/rs/zerolog"
)

const (
	opAllocate   = "allocate"
	opReschedule = "reschedule"
	opStatus     = "status"
	opRead       = "read"
)

// Options tunes the write path.
type Options struct {
	Retry        worker.RetryPolicy
	StoreTimeout time.Duration
	LockTTL      time.Duration
	LockWait     time.Duration
}

func (o *Options) applyDefaults() {
	if o.Retry.MaxRetries < 0 {
		o.Retry.MaxRetries = 0
	}
	if o.Retry.InitialDelay <= 0 {
		o.Retry.InitialDelay = 20 * time.Millisecond
	}
	if o.Retry.MaxDelay <= 0 {
		o.Retry.MaxDelay = 500 * time.Millisecond
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.LockTTL <= 0 {
		o.LockTTL = models.DefaultLockTTL * time.Second
	}
	if o.LockWait <= 0 {
		o.LockWait = 3 * time.Second
	}
}

// BookingService allocates, reschedules and previews bookings. Every
// decision is made on one settings snapshot taken at the start of the call.
type BookingService struct {
	bookings  domain.BookingStore
	resources domain.ResourceStore
	settings  domain.SettingsProvider
	locker    domain.SlotLocker
	eventBus  domain.EventPublisher
	opts      Options
	logger    *zerolog.Logger
}

func NewBookingService(
	bookings domain.BookingStore,
	resources domain.ResourceStore,
	settings domain.SettingsProvider,
	locker domain.SlotLocker,
	eventBus domain.EventPublisher,
	opts Options,
	logger *zerolog.Logger,
) *BookingService {
	opts.applyDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		bookings:  bookings,
		resources: resources,
		settings:  settings,
		locker:    locker,
		eventBus:  eventBus,
		opts:      opts,
		logger:    logger,
	}
}

// candidate is a parsed and normalized request.
type candidate struct {
	date       time.Time
	clock      string
	duration   int
	resourceID string
}

func (c candidate) forEngine() availability.Candidate {
	return availability.Candidate{Time: c.clock, DurationMinutes: c.duration, ResourceID: c.resourceID}
}

func parseCandidate(date, clock, resourceID string, duration int) (candidate, error) {
	if strings.TrimSpace(date) == "" {
		return candidate{}, invalid("date is required")
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return candidate{}, invalid("%v", err)
	}
	if strings.TrimSpace(clock) == "" {
		return candidate{}, invalid("time is required")
	}
	normalized, err := models.NormalizeClock(clock)
	if err != nil {
		return candidate{}, invalid("%v", err)
	}
	if duration == 0 {
		duration = models.DefaultServiceDuration
	}
	if duration < 1 || duration > 24*60 {
		return candidate{}, invalid("duration must be between 1 and 1440 minutes, got %d", duration)
	}
	return candidate{
		date:       d,
		clock:      normalized,
		duration:   duration,
		resourceID: models.NormalizeResourceID(resourceID),
	}, nil
}

// checkCalendar returns DAY_CLOSED or OUTSIDE_BUSINESS_HOURS.
func checkCalendar(cal *availability.Calendar, c candidate) error {
	if !cal.IsDateOpen(c.date) {
		h, _ := cal.Holiday(c.date)
		return rejected(models.ReasonDayClosed, fmt.Sprintf("%s is closed", c.date.Format(models.DateLayout)), h.Note)
	}
	if !cal.IsTimeWithinHours(c.date, c.clock) {
		return rejected(models.ReasonOutsideHours, fmt.Sprintf("%s is outside business hours", c.clock), "")
	}
	return nil
}

func rejectionFor(v availability.Verdict, c candidate) *AllocationError {
	switch v.Reason {
	case models.ReasonSlotFull:
		return rejected(v.Reason, fmt.Sprintf("all %d places at %s are taken", v.Capacity, c.clock), "")
	case models.ReasonResourceUnavailable:
		if c.resourceID == models.AutoResource {
			return rejected(v.Reason, fmt.Sprintf("no free specialist at %s", c.clock), "")
		}
		return rejected(v.Reason, fmt.Sprintf("%s is not available at %s", c.resourceID, c.clock), "")
	default:
		return rejected(v.Reason, "", "")
	}
}

// capacityCheck runs inside the store transaction. On success the chosen
// resource is written into booking.
func capacityCheck(engine *availability.Engine, c candidate, resources []*models.Resource, booking *models.Booking) database.CapacityCheck {
	return func(active []*models.Booking) error {
		v, err := engine.Evaluate(c.forEngine(), active, resources)
		if err != nil {
			return invalid("%v", err)
		}
		if !v.Available {
			return rejectionFor(v, c)
		}
		booking.ResourceID = v.ResourceID
		return nil
	}
}

// lockKey: pool capacity is per start time, exclusive overlaps span the day.
func lockKey(settings *models.BookingSettings, c candidate) string {
	day := c.date.Format(models.DateLayout)
	if settings.UseBeautician {
		return day
	}
	return day + "|" + c.clock
}

func (s *BookingService) loadSettings(ctx context.Context) (*models.BookingSettings, error) {
	settings, err := s.settings.Current(ctx)
	if err != nil {
		if _, ok := AsAllocationError(err); ok {
			return nil, err
		}
		return nil, storeUnavailable("load settings", err)
	}
	return settings, nil
}

// eligibleResources is only needed in exclusive mode.
func (s *BookingService) eligibleResources(ctx context.Context, settings *models.BookingSettings) ([]*models.Resource, error) {
	if !settings.UseBeautician {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	resources, err := s.resources.GetActiveResources(ctx)
	if err != nil {
		return nil, storeUnavailable("load resources", err)
	}
	return resources, nil
}

// lockSlot never fails because Redis is down: the store transaction is
// still serialized, so the allocator goes on without the lock.
func (s *BookingService) lockSlot(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	defer cancel()

	release, err := s.locker.Acquire(lockCtx, key, s.opts.LockTTL)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, repository.ErrLockTimeout) {
		return nil, concurrencyConflict(err)
	}
	s.logger.Warn().Err(err).Str("key", key).Msg("slot lock unavailable, relying on store transaction")
	return noop, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, database.ErrSerialization) || errors.Is(err, database.ErrConcurrentModification)
}

// withRetry runs fn under the store timeout and retries serialization
// failures with backoff. Business rejections from the capacity check are
// returned as is.
func (s *BookingService) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		start := time.Now()
		err := fn(callCtx)
		cancel()
		metrics.ObserveStore(op, time.Since(start))

		if err == nil {
			return nil
		}
		if ae, ok := AsAllocationError(err); ok {
			return ae
		}
		if !isRetryable(err) {
			return storeError(op, err)
		}

		lastErr = err
		if attempt > s.opts.Retry.MaxRetries {
			break
		}
		metrics.IncRetry(op)
		s.logger.Debug().Err(err).Str("op", op).Int("attempt", attempt).Msg("write lost a race, retrying")
		if werr := s.opts.Retry.Wait(ctx, attempt); werr != nil {
			return storeUnavailable(op, werr)
		}
	}
	return concurrencyConflict(lastErr)
}

// storeError maps store sentinels onto the error taxonomy.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, database.ErrBookingNotFound):
		return notFound("booking", err)
	case errors.Is(err, database.ErrResourceNotFound):
		return notFound("resource", err)
	case errors.Is(err, database.ErrResourceExists):
		return &AllocationError{Kind: KindRejected, Reason: models.ReasonResourceExists, Message: "resource id is already taken", Err: err}
	case errors.Is(err, database.ErrBookingNotActive):
		return &AllocationError{Kind: KindValidation, Reason: models.ReasonInvalidRequest, Message: "booking is not active", Err: err}
	case errors.Is(err, database.ErrConcurrentModification):
		return &AllocationError{Kind: KindConflict, Reason: models.ReasonStaleBooking, Message: "booking was changed by someone else", Err: err}
	default:
		return storeUnavailable(op, err)
	}
}

// finish records the outcome and logs it at a level matching its kind.
func (s *BookingService) finish(op string, err error) error {
	if err == nil {
		metrics.ObserveAllocation(op, "ok")
		return nil
	}
	ae, ok := AsAllocationError(err)
	if !ok {
		ae = storeUnavailable(op, err)
	}
	metrics.ObserveAllocation(op, ae.Reason)

	var event *zerolog.Event
	switch ae.Kind {
	case KindUnavailable:
		event = s.logger.Error()
	case KindConflict:
		event = s.logger.Warn()
	case KindRejected, KindNotFound:
		event = s.logger.Info()
	default:
		event = s.logger.Debug()
	}
	event.Err(ae).Str("op", op).Str("reason", ae.Reason).Msg("booking request refused")
	return ae
}

func (s *BookingService) publish(eventType string, payload events.BookingEventPayload) {
	if s.eventBus == nil {
		return
	}
	// уведомления не откатывают уже сохраненную запись
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", payload.BookingID).Msg("publish event error")
	}
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalid("booking id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, storeError(opRead, err)
	}
	return b, nil
}

// ListBookings returns every booking of date, in any status.
func (s *BookingService) ListBookings(ctx context.Context, date string) ([]*models.Booking, error) {
	d, err := models.ParseDate(date)
	if err != nil {
		return nil, invalid("%v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	bookings, err := s.bookings.GetBookingsByDateRange(ctx, d, d)
	if err != nil {
		return nil, storeError(opRead, err)
	}
	return bookings, nil
}

var allowedTransitions = map[string][]string{
	models.StatusPending:    {models.StatusConfirmed, models.StatusInProgress, models.StatusCancelled},
	models.StatusConfirmed:  {models.StatusInProgress, models.StatusCompleted, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ChangeStatus moves a booking through its lifecycle. Completed and
// cancelled are terminal, so a freed slot is never taken back without a
// fresh allocation. version 0 means "whatever is current".
func (s *BookingService) ChangeStatus(ctx context.Context, id, status string, version int64) (*models.Booking, error) {
	b, err := s.changeStatus(ctx, id, status, version)
	return b, s.finish(opStatus, err)
}

func (s *BookingService) changeStatus(ctx context.Context, id, status string, version int64) (*models.Booking, error) {
	if !models.IsValidStatus(status) {
		return nil, invalid("unknown status %q", status)
	}
	current, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if version != 0 && version != current.Version {
		return nil, &AllocationError{Kind: KindConflict, Reason: models.ReasonStaleBooking,
			Message: fmt.Sprintf("booking is at version %d, not %d", current.Version, version)}
	}
	if current.Status == status {
		return current, nil
	}
	if !canTransition(current.Status, status) {
		return nil, invalid("cannot change status from %s to %s", current.Status, status)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.bookings.UpdateBookingStatusWithVersion(storeCtx, id, current.Version, status); err != nil {
		return nil, storeError(opStatus, err)
	}

	updated := *current
	updated.Status = status
	updated.Version = current.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	payload := events.NewBookingPayload(&updated)
	payload.PreviousStatus = current.Status
	s.publish(events.EventBookingStatusChanged, payload)

	s.logger.Info().Str("booking_id", id).Str("from", current.Status).Str("to", status).Msg("booking status changed")
	return &updated, nil
}
