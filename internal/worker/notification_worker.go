package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"slotkeeper/internal/events"
	"slotkeeper/internal/metrics"

	"github.com/rs/zerolog"
)

// Notifier delivers a booking event to managers.
type Notifier interface {
	Notify(ctx context.Context, eventType string, payload events.BookingEventPayload) error
}

type notification struct {
	eventType string
	payload   events.BookingEventPayload
	queuedAt  time.Time
}

// NotificationWorker decouples notification delivery from the booking write
// path. Events are queued in memory and dropped when the queue is full.
type NotificationWorker struct {
	notifier    Notifier
	retryPolicy RetryPolicy
	queue       chan notification
	dropped     atomic.Int64
	logger      *zerolog.Logger
}

func NewNotificationWorker(notifier Notifier, retry RetryPolicy, queueSize int, logger *zerolog.Logger) *NotificationWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 30 * time.Second
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &NotificationWorker{
		notifier:    notifier,
		retryPolicy: retry,
		queue:       make(chan notification, queueSize),
		logger:      logger,
	}
}

// Subscribe attaches the worker to every booking event type.
func (w *NotificationWorker) Subscribe(bus *events.EventBus) {
	for _, eventType := range []string{
		events.EventBookingCreated,
		events.EventBookingRescheduled,
		events.EventBookingStatusChanged,
	} {
		bus.Subscribe(eventType, w.Handle)
	}
}

// Handle is an events.EventHandler. It never blocks the publisher.
func (w *NotificationWorker) Handle(event *events.Event) error {
	var payload events.BookingEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	select {
	case w.queue <- notification{eventType: event.Type, payload: payload, queuedAt: time.Now()}:
	default:
		w.dropped.Add(1)
		metrics.IncNotification("dropped")
		w.logger.Warn().
			Str("event", event.Type).
			Str("booking_id", payload.BookingID).
			Msg("notification queue full, event dropped")
	}
	return nil
}

// Dropped returns how many events were discarded because the queue was full.
func (w *NotificationWorker) Dropped() int64 {
	return w.dropped.Load()
}

// Start consumes the queue until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Int("queue_size", cap(w.queue)).Msg("notification worker started")
	defer w.logger.Info().Msg("notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-w.queue:
			w.deliver(ctx, n)
		}
	}
}

func (w *NotificationWorker) deliver(ctx context.Context, n notification) {
	var err error
	for attempt := 1; attempt <= w.retryPolicy.MaxRetries+1; attempt++ {
		err = w.notifier.Notify(ctx, n.eventType, n.payload)
		if err == nil {
			metrics.IncNotification("sent")
			w.logger.Debug().
				Str("event", n.eventType).
				Str("booking_id", n.payload.BookingID).
				Dur("latency", time.Since(n.queuedAt)).
				Msg("notification sent")
			return
		}
		if attempt > w.retryPolicy.MaxRetries {
			break
		}
		w.logger.Warn().Err(err).Int("attempt", attempt).Str("booking_id", n.payload.BookingID).Msg("notification failed, retrying")
		if werr := w.retryPolicy.Wait(ctx, attempt); werr != nil {
			err = werr
			break
		}
	}

	metrics.IncNotification("failed")
	w.logger.Error().Err(err).
		Str("event", n.eventType).
		Str("booking_id", n.payload.BookingID).
		Msg("notification delivery failed")
}
