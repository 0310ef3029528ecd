package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"slotkeeper/internal/config"
	"slotkeeper/internal/database"
	"slotkeeper/internal/domain"
	"slotkeeper/internal/events"
	"slotkeeper/internal/models"
	"slotkeeper/internal/repository"
	"slotkeeper/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monday = "2026-03-02"

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSettings() *models.BookingSettings {
	s := models.DefaultBookingSettings()
	s.TimeQueues = []models.TimeQueue{{Time: "10:00", Count: 1}}
	return s
}

func newTestServices(t *testing.T, db *database.DB, settings domain.SettingsProvider) Services {
	t.Helper()
	logger := zerolog.New(io.Discard)
	cache := repository.NewMemoryStore(time.Minute)
	settingsSvc := service.NewSettingsService(db, cache, time.Second, &logger)
	if settings == nil {
		settings = settingsSvc
	}
	return Services{
		Bookings:  service.NewBookingService(db, db, settings, cache, events.NewEventBus(), service.Options{}, &logger),
		Settings:  settingsSvc,
		Resources: service.NewResourceService(db, time.Second, &logger),
	}
}

type brokenSettings struct{}

func (brokenSettings) Current(context.Context) (*models.BookingSettings, error) {
	return nil, errors.New("database is locked")
}

func newTestHTTPServer(t *testing.T, cfg config.APIConfig, checks map[string]ReadinessCheck) (*httptest.Server, *database.DB) {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, db.SaveBookingSettings(context.Background(), testSettings()))

	logger := zerolog.New(io.Discard)
	server := NewHTTPServer(cfg, newTestServices(t, db, nil), nil, checks, &logger)
	ts := httptest.NewServer(server.server.Handler)
	t.Cleanup(ts.Close)
	return ts, db
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func bookingBody(clock string) map[string]any {
	return map[string]any{
		"date":          monday,
		"time":          clock,
		"customer_name": "Мария",
		"phone":         "+79990000000",
	}
}

func TestBookingLifecycle(t *testing.T) {
	ts, _ := newTestHTTPServer(t, config.APIConfig{}, nil)

	resp, created := doJSON(t, http.MethodPost, ts.URL+"/api/v1/bookings", bookingBody("10:00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)
	assert.Equal(t, "10:00", created["time"])
	assert.Equal(t, monday, created["date"])
	assert.Equal(t, float64(1), created["version"])

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/bookings", bookingBody("10:00"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.ReasonSlotFull, body["reason"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/bookings/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["id"])

	resp, body = doJSON(t, http.MethodPut, ts.URL+"/api/v1/bookings/"+id+"/schedule", map[string]any{"time": "11:00", "version": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "11:00", body["time"])
	assert.Equal(t, float64(2), body["version"])

	resp, body = doJSON(t, http.MethodPatch, ts.URL+"/api/v1/bookings/"+id+"/status", map[string]any{"status": "confirmed", "version": 1})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.ReasonStaleBooking, body["reason"])
	assert.Equal(t, true, body["retryable"])

	resp, body = doJSON(t, http.MethodPatch, ts.URL+"/api/v1/bookings/"+id+"/status", map[string]any{"status": "cancelled", "version": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusCancelled, body["status"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/bookings?date="+monday, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["bookings"], 1)
}

func TestBookingErrors(t *testing.T) {
	ts, _ := newTestHTTPServer(t, config.APIConfig{}, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		reason string
	}{
		{"malformed json", http.MethodPost, "/api/v1/bookings", "{", http.StatusBadRequest, ""},
		{"unknown field", http.MethodPost, "/api/v1/bookings", `{"date":"2026-03-02","slot":"10:00"}`, http.StatusBadRequest, ""},
		{"closed day", http.MethodPost, "/api/v1/bookings", map[string]any{"date": "2026-03-01", "time": "10:00", "customer_name": "x"}, http.StatusConflict, models.ReasonDayClosed},
		{"outside hours", http.MethodPost, "/api/v1/bookings", bookingBody("20:00"), http.StatusConflict, models.ReasonOutsideHours},
		{"bad time", http.MethodPost, "/api/v1/bookings", bookingBody("noon"), http.StatusBadRequest, models.ReasonInvalidRequest},
		{"missing booking", http.MethodGet, "/api/v1/bookings/nope", nil, http.StatusNotFound, models.ReasonNotFound},
		{"list without date", http.MethodGet, "/api/v1/bookings", nil, http.StatusBadRequest, ""},
		{"wrong method", http.MethodDelete, "/api/v1/bookings", nil, http.StatusMethodNotAllowed, ""},
		{"wrong method on settings", http.MethodDelete, "/api/v1/settings", nil, http.StatusMethodNotAllowed, ""},
		{"unknown api route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound, ""},
		{"oversized body", http.MethodPost, "/api/v1/bookings", `{"customer_name":"` + strings.Repeat("x", maxBodyBytes+1024) + `"}`, http.StatusBadRequest, ""},
		{"unknown route", http.MethodGet, "/api/v2/bookings", nil, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, tt.method, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, body["reason"])
			}
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestStoreUnavailable(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.New(io.Discard)
	server := NewHTTPServer(config.APIConfig{}, newTestServices(t, db, brokenSettings{}), nil, nil, &logger)
	ts := httptest.NewServer(server.server.Handler)
	t.Cleanup(ts.Close)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/bookings", bookingBody("10:00"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, models.ReasonStoreUnavailable, body["reason"])
}

func TestAvailabilityEndpoints(t *testing.T) {
	ts, _ := newTestHTTPServer(t, config.APIConfig{}, nil)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/availability?date="+monday+"&time=10:00&duration=30", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["available"])
	assert.Equal(t, float64(1), body["capacity"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/bookings", bookingBody("10:00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/availability?date="+monday+"&time=10:00", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["available"])
	assert.Equal(t, models.ReasonSlotFull, body["reason"])

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/availability?date="+monday+"&time=10:00&duration=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/availability/"+monday+"?duration=60", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["open"])
	slots := body["slots"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, false, slots[0].(map[string]any)["available"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/availability/2026-03-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["open"])
}

func TestSettingsAndResources(t *testing.T) {
	ts, _ := newTestHTTPServer(t, config.APIConfig{}, nil)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["use_beautician"])

	next := testSettings()
	next.UseBeautician = true
	next.BufferMinutes = 10
	resp, body = doJSON(t, http.MethodPut, ts.URL+"/api/v1/settings", next)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(10), body["buffer_minutes"])

	bad := testSettings()
	bad.BufferMinutes = -1
	resp, body = doJSON(t, http.MethodPut, ts.URL+"/api/v1/settings", bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.ReasonInvalidSettings, body["reason"])

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/resources", map[string]any{"id": "anna", "display_name": "Анна", "active": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/v1/resources", map[string]any{"id": "anna", "display_name": "Анна", "active": true})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, models.ReasonResourceExists, body["reason"])
	assert.Nil(t, body["retryable"])

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/v1/resources", map[string]any{"id": "auto", "display_name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.ReasonInvalidRequest, body["reason"])

	resp, body = doJSON(t, http.MethodPut, ts.URL+"/api/v1/resources/anna", map[string]any{"display_name": "Анна П.", "active": true, "sort_order": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "anna", body["id"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/resources/anna", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Анна П.", body["display_name"])

	// exclusive mode now assigns anna automatically
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/v1/bookings", bookingBody("12:00"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "anna", body["resource_id"])

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/v1/resources/anna", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/resources", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["resources"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/resources?all=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["resources"], 1)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/v1/resources/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndReadiness(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	ts, _ := newTestHTTPServer(t, config.APIConfig{}, map[string]ReadinessCheck{
		"redis": func(context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("connection refused")
		},
	})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy.Store(false)
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["failed"], "redis")
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestHTTPServer(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}}, nil)

	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/settings", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/settings", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// health is outside the limited prefix
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSharedRateLimit(t *testing.T) {
	store := repository.NewMemoryStore(time.Minute)
	logger := zerolog.Nop()
	// 1 rps is 60 per minute; the shared budget is spent elsewhere
	for i := 0; i < 60; i++ {
		_, err := store.CheckRateLimit(context.Background(), "http:192.0.2.1", 60, time.Minute)
		require.NoError(t, err)
	}
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 1, Burst: 10}, store, &logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	assert.False(t, l.allow(req))

	other := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	assert.True(t, l.allow(other))
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestHTTPServer(t, config.APIConfig{CORS: config.APICORSConfig{AllowedOrigins: []string{"https://salon.example"}}}, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/bookings", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://salon.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "https://salon.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
