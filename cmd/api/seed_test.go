package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"slotkeeper/internal/database"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeedDB(t *testing.T) (*database.DB, *zerolog.Logger) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "seed.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, &logger
}

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSeed_RepoFile(t *testing.T) {
	seed, err := loadSeed(filepath.Join("..", "..", "configs", "seed.yaml"))
	require.NoError(t, err)
	require.NotNil(t, seed.Settings)

	assert.Equal(t, 2, seed.Settings.TotalBeauticians)
	assert.False(t, seed.Settings.WeeklySchedule[0].IsOpen)
	assert.Equal(t, "10:00", seed.Settings.WeeklySchedule[6].OpenTime)
	assert.Len(t, seed.Resources, 2)
	assert.True(t, seed.Resources[0].Active)
}

func TestLoadSeed_Invalid(t *testing.T) {
	cases := map[string]string{
		"auto resource": "resources:\n  - id: auto\n    display_name: X\n",
		"bad schedule":  "settings:\n  weekly_schedule:\n    1: {is_open: true, open_time: \"18:00\", close_time: \"09:00\"}\n",
		"broken yaml":   "settings: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadSeed(writeSeed(t, body))
			assert.Error(t, err)
		})
	}
}

func TestApplySeed(t *testing.T) {
	ctx := context.Background()
	db, logger := newSeedDB(t)

	path := writeSeed(t, `
settings:
  total_beauticians: 3
  weekly_schedule:
    1: {is_open: true, open_time: "09:00", close_time: "18:00"}
resources:
  - id: anna
    display_name: Анна
    active: true
    sort_order: 1
`)
	require.NoError(t, applySeed(ctx, db, path, logger))

	settings, err := db.GetBookingSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, settings.TotalBeauticians)

	res, err := db.GetResource(ctx, "anna")
	require.NoError(t, err)
	assert.Equal(t, "Анна", res.DisplayName)

	// сохраненные через API настройки не перезаписываются
	settings.TotalBeauticians = 5
	require.NoError(t, db.SaveBookingSettings(ctx, settings))
	require.NoError(t, applySeed(ctx, db, path, logger))

	settings, err = db.GetBookingSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, settings.TotalBeauticians)
}

func TestApplySeed_MissingFile(t *testing.T) {
	db, logger := newSeedDB(t)
	err := applySeed(context.Background(), db, filepath.Join(t.TempDir(), "none.yaml"), logger)
	require.NoError(t, err)

	_, err = db.GetBookingSettings(context.Background())
	assert.ErrorIs(t, err, database.ErrSettingsNotFound)
}

func TestSeedPath(t *testing.T) {
	t.Setenv("SEED_PATH", "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", seedPath())

	t.Setenv("SEED_PATH", "")
	assert.Equal(t, "configs/seed.yaml", seedPath())
}
