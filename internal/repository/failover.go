package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"slotkeeper/internal/domain"
	"slotkeeper/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// SharedStore is what FailoverStore needs from each side.
type SharedStore interface {
	domain.SettingsCache
	domain.SlotLocker
	domain.RateLimitStore
}

// FailoverStore sends every call to primary (Redis) and switches to the
// in-memory fallback when primary errors. Primary is retried once a minute.
type FailoverStore struct {
	primary   SharedStore
	fallback  SharedStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStore(primary, fallback SharedStore, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary также решает, пора ли попробовать восстановиться.
func (r *FailoverStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary store failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary store recovered")
	}
}

func (r *FailoverStore) GetSettings(ctx context.Context) (*models.BookingSettings, error) {
	if r.usePrimary() {
		settings, err := r.primary.GetSettings(ctx)
		if err == nil {
			r.markUp()
			return settings, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSettings(ctx)
}

func (r *FailoverStore) SetSettings(ctx context.Context, settings *models.BookingSettings) error {
	if r.usePrimary() {
		err := r.primary.SetSettings(ctx, settings)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetSettings(ctx, settings)
}

// InvalidateSettings clears both sides so a recovered primary never serves
// a snapshot older than the fallback's.
func (r *FailoverStore) InvalidateSettings(ctx context.Context) error {
	_ = r.fallback.InvalidateSettings(ctx)
	if r.usePrimary() {
		err := r.primary.InvalidateSettings(ctx)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

// Acquire treats a lock wait timeout as a normal outcome, not an outage.
func (r *FailoverStore) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if r.usePrimary() {
		release, err := r.primary.Acquire(ctx, key, ttl)
		if err == nil {
			r.markUp()
			return release, nil
		}
		if errors.Is(err, ErrLockTimeout) || ctx.Err() != nil {
			return nil, err
		}
		r.markDown(err)
	}
	return r.fallback.Acquire(ctx, key, ttl)
}

func (r *FailoverStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
