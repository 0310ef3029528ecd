package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"slotkeeper/internal/database"
	"slotkeeper/internal/domain"
	"slotkeeper/internal/models"

	"github.com/rs/zerolog"
)

// SettingsService reads settings through the cache and writes them through
// the store. Until an administrator saves settings the defaults apply.
type SettingsService struct {
	store   domain.SettingsStore
	cache   domain.SettingsCache
	timeout time.Duration
	logger  *zerolog.Logger

	// generation растет при каждом сохранении; чтение, начатое до записи,
	// не попадает в кэш
	generation atomic.Uint64
	// повторная инвалидация для других инстансов за общим Redis
	reinvalidateAfter time.Duration
}

const defaultReinvalidateAfter = time.Second

func NewSettingsService(store domain.SettingsStore, cache domain.SettingsCache, timeout time.Duration, logger *zerolog.Logger) *SettingsService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SettingsService{
		store:             store,
		cache:             cache,
		timeout:           timeout,
		logger:            logger,
		reinvalidateAfter: defaultReinvalidateAfter,
	}
}

// Current returns a snapshot the caller may keep for the whole request.
func (s *SettingsService) Current(ctx context.Context) (*models.BookingSettings, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSettings(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("settings cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	gen := s.generation.Load()
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	settings, err := s.store.GetBookingSettings(storeCtx)
	switch {
	case errors.Is(err, database.ErrSettingsNotFound):
		settings = models.DefaultBookingSettings()
	case err != nil:
		return nil, storeUnavailable("load settings", err)
	}

	if s.cache != nil && s.generation.Load() == gen {
		if err := s.cache.SetSettings(ctx, settings); err != nil {
			s.logger.Warn().Err(err).Msg("settings cache write failed")
		}
	}
	return settings, nil
}

// Update validates and saves settings, then drops the cached copy.
func (s *SettingsService) Update(ctx context.Context, settings *models.BookingSettings) (*models.BookingSettings, error) {
	if settings == nil {
		return nil, invalid("settings are required")
	}
	if err := settings.Validate(); err != nil {
		return nil, &AllocationError{Kind: KindValidation, Reason: models.ReasonInvalidSettings, Message: err.Error(), Err: err}
	}

	saved := settings.Clone()
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.SaveBookingSettings(storeCtx, saved); err != nil {
		return nil, storeUnavailable("save settings", err)
	}
	s.generation.Add(1)

	if s.cache != nil {
		s.invalidate(ctx)
		if s.reinvalidateAfter > 0 {
			// чтение в другом процессе могло вернуть в кэш старую строку
			time.AfterFunc(s.reinvalidateAfter, func() {
				ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
				defer cancel()
				s.invalidate(ctx)
			})
		}
	}
	s.logger.Info().
		Bool("use_beautician", saved.UseBeautician).
		Int("total_beauticians", saved.TotalBeauticians).
		Int("buffer_minutes", saved.BufferMinutes).
		Int("time_queues", len(saved.TimeQueues)).
		Msg("booking settings updated")
	return saved, nil
}

func (s *SettingsService) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateSettings(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("settings cache invalidation failed")
	}
}
