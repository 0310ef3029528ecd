package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"slotkeeper/internal/models"

	"github.com/Masterminds/squirrel"
)

const settingsRowID = 1

// GetBookingSettings returns ErrSettingsNotFound until settings are saved once.
func (db *DB) GetBookingSettings(ctx context.Context) (*models.BookingSettings, error) {
	query, args, err := db.builder.Select("payload", "updated_at").
		From("booking_settings").
		Where(squirrel.Eq{"id": settingsRowID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build settings query: %w", err)
	}

	var (
		payload   string
		updatedAt time.Time
	)
	err = db.QueryRowContext(ctx, query, args...).Scan(&payload, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking settings: %w", classify(err))
	}

	var settings models.BookingSettings
	if err := json.Unmarshal([]byte(payload), &settings); err != nil {
		return nil, fmt.Errorf("failed to decode booking settings: %w", err)
	}
	settings.UpdatedAt = updatedAt
	return &settings, nil
}

func (db *DB) SaveBookingSettings(ctx context.Context, settings *models.BookingSettings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode booking settings: %w", err)
	}

	now := time.Now().UTC()
	query, args, err := db.builder.Insert("booking_settings").
		Columns("id", "payload", "updated_at").
		Values(settingsRowID, string(payload), now).
		Suffix("ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build settings upsert: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save booking settings: %w", classify(err))
	}
	settings.UpdatedAt = now
	return nil
}
