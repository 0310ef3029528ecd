package models

import (
	"encoding/json"
	"strings"
	"time"
)

type Booking struct {
	ID              string    `json:"id"`
	Date            time.Time `json:"date"`
	Time            string    `json:"time"`
	ResourceID      string    `json:"resource_id"`
	DurationMinutes int       `json:"service_duration_minutes"`
	Status          string    `json:"status"` // pending, confirmed, in_progress, completed, cancelled
	CustomerName    string    `json:"customer_name"`
	Phone           string    `json:"phone"`
	ServiceName     string    `json:"service_name"`
	Comment         string    `json:"comment"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

func (b *Booking) IsActive() bool {
	return IsActiveStatus(b.Status)
}

func (b *Booking) DateString() string {
	return b.Date.Format(DateLayout)
}

type bookingAlias Booking

// MarshalJSON пишет дату как YYYY-MM-DD.
func (b Booking) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		bookingAlias
		Date string `json:"date"`
	}{bookingAlias(b), b.DateString()})
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	var raw struct {
		bookingAlias
		Date string `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = Booking(raw.bookingAlias)
	if raw.Date == "" {
		b.Date = time.Time{}
		return nil
	}
	d, err := ParseDate(raw.Date)
	if err != nil {
		return err
	}
	b.Date = d
	return nil
}

// IsAssigned reports whether the booking holds a named resource.
func (b *Booking) IsAssigned() bool {
	return b.ResourceID != "" && b.ResourceID != AutoResource
}

// BookingRequest is a candidate booking as submitted by a client.
type BookingRequest struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	ResourceID      string `json:"resource_id"`
	DurationMinutes int    `json:"duration_minutes"`
	CustomerName    string `json:"customer_name"`
	Phone           string `json:"phone"`
	ServiceName     string `json:"service_name"`
	Comment         string `json:"comment"`

	// ExcludeBookingID убирает бронь из проверки (предпросмотр переноса).
	ExcludeBookingID string `json:"exclude_booking_id,omitempty"`
}

// RescheduleRequest moves an existing booking. Empty fields keep current values.
type RescheduleRequest struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	ResourceID      string `json:"resource_id"`
	DurationMinutes int    `json:"duration_minutes"`
	Version         int64  `json:"version"`
}

// NormalizeResourceID maps an empty selection to AutoResource.
func NormalizeResourceID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return AutoResource
	}
	return id
}
