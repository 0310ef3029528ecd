package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"slotkeeper/internal/database"
	"slotkeeper/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// seedFile holds the initial settings and staff list.
type seedFile struct {
	Settings  *models.BookingSettings `yaml:"settings"`
	Resources []models.Resource       `yaml:"resources"`
}

func seedPath() string {
	if p := os.Getenv("SEED_PATH"); p != "" {
		return p
	}
	return "configs/seed.yaml"
}

func loadSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	if seed.Settings != nil {
		if err := seed.Settings.Validate(); err != nil {
			return nil, fmt.Errorf("seed %s: %w", path, err)
		}
	}
	for i := range seed.Resources {
		if seed.Resources[i].ID == "" || seed.Resources[i].ID == models.AutoResource {
			return nil, fmt.Errorf("seed %s: resource #%d has an invalid id", path, i+1)
		}
	}
	return &seed, nil
}

// applySeed upserts resources and saves settings only when none are stored,
// so changes made through the API survive restarts.
func applySeed(ctx context.Context, db *database.DB, path string, logger *zerolog.Logger) error {
	seed, err := loadSeed(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info().Str("seed_path", path).Msg("no seed file, skipping")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("seed_path", path).Msg("read seed")
		return err
	}

	if len(seed.Resources) > 0 {
		if err := db.SyncResources(ctx, seed.Resources); err != nil {
			return fmt.Errorf("sync seed resources: %w", err)
		}
	}

	if seed.Settings == nil {
		return nil
	}
	_, err = db.GetBookingSettings(ctx)
	switch {
	case errors.Is(err, database.ErrSettingsNotFound):
		if err := db.SaveBookingSettings(ctx, seed.Settings); err != nil {
			return fmt.Errorf("save seed settings: %w", err)
		}
		logger.Info().Str("seed_path", path).Msg("booking settings seeded")
	case err != nil:
		return fmt.Errorf("read settings: %w", err)
	}
	return nil
}
