package domain

import (
	"context"
	"time"

	"slotkeeper/internal/database"
	"slotkeeper/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingStore is the persistent booking state. The *Atomic methods run
// check and the write in one serializable unit.
type BookingStore interface {
	QueryActiveBookings(ctx context.Context, date time.Time, resourceID string) ([]*models.Booking, error)
	CreateBookingAtomic(ctx context.Context, booking *models.Booking, check database.CapacityCheck) error
	UpdateBookingAtomic(ctx context.Context, id string, booking *models.Booking, check database.CapacityCheck) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)
}

type ResourceStore interface {
	GetActiveResources(ctx context.Context) ([]*models.Resource, error)
	GetResources(ctx context.Context) ([]*models.Resource, error)
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	CreateResource(ctx context.Context, r *models.Resource) error
	UpdateResource(ctx context.Context, r *models.Resource) error
	DeactivateResource(ctx context.Context, id string) error
}

type SettingsStore interface {
	GetBookingSettings(ctx context.Context) (*models.BookingSettings, error)
	SaveBookingSettings(ctx context.Context, settings *models.BookingSettings) error
}

// SettingsCache returns (nil, nil) on a miss.
type SettingsCache interface {
	GetSettings(ctx context.Context) (*models.BookingSettings, error)
	SetSettings(ctx context.Context, settings *models.BookingSettings) error
	InvalidateSettings(ctx context.Context) error
}

// SettingsProvider hands out the current settings snapshot.
type SettingsProvider interface {
	Current(ctx context.Context) (*models.BookingSettings, error)
}

// SlotLocker serializes allocators working on the same slot key.
// release is safe to call more than once.
type SlotLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RateLimitStore counts requests per key in a fixed window.
type RateLimitStore interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}
