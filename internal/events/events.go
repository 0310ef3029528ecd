package events

import (
	"encoding/json"
	"sync"
	"time"

	"slotkeeper/internal/models"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingRescheduled   = "booking_rescheduled"
	EventBookingStatusChanged = "booking_status_changed"
)

// BookingEventPayload is the booking snapshot sent to subscribers after commit.
type BookingEventPayload struct {
	BookingID       string `json:"booking_id"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	ResourceID      string `json:"resource_id"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	CustomerName    string `json:"customer_name"`
	Phone           string `json:"phone,omitempty"`
	ServiceName     string `json:"service_name,omitempty"`
	Version         int64  `json:"version"`

	// Заполняются только при переносе
	PreviousDate       string `json:"previous_date,omitempty"`
	PreviousTime       string `json:"previous_time,omitempty"`
	PreviousResourceID string `json:"previous_resource_id,omitempty"`
	PreviousStatus     string `json:"previous_status,omitempty"`
}

// NewBookingPayload copies the public booking fields.
func NewBookingPayload(b *models.Booking) BookingEventPayload {
	return BookingEventPayload{
		BookingID:       b.ID,
		Date:            b.DateString(),
		Time:            b.Time,
		ResourceID:      b.ResourceID,
		DurationMinutes: b.DurationMinutes,
		Status:          b.Status,
		CustomerName:    b.CustomerName,
		Phone:           b.Phone,
		ServiceName:     b.ServiceName,
		Version:         b.Version,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the handlers synchronously and returns the first handler error.
// Every handler is called even if an earlier one fails.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
