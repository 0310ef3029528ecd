package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"slotkeeper/internal/config"
	"slotkeeper/internal/domain"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Services are the operations exposed over HTTP.
type Services struct {
	Bookings  *service.BookingService
	Settings  *service.SettingsService
	Resources *service.ResourceService
}

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// HTTPServer exposes the booking engine as a JSON API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	checks  map[string]ReadinessCheck
	limiter *rateLimiter
	server  *http.Server
	logger  *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	svc Services,
	limits domain.RateLimitStore,
	checks map[string]ReadinessCheck,
	logger *zerolog.Logger,
) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		checks:  checks,
		limiter: newRateLimiter(cfg.RateLimit, limits, logger),
		logger:  logger,
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r := mux.NewRouter()
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = methodNotAllowed
	r.Use(metricsMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	// саброутер не наследует обработчики корня
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
	api.Use(s.limiter.middleware)

	api.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", s.handleGetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/schedule", s.handleReschedule).Methods(http.MethodPut)
	api.HandleFunc("/bookings/{id}/status", s.handleChangeStatus).Methods(http.MethodPatch)

	api.HandleFunc("/availability", s.handleCheckAvailability).Methods(http.MethodGet)
	api.HandleFunc("/availability/{date}", s.handleDayAvailability).Methods(http.MethodGet)

	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handlePutSettings).Methods(http.MethodPut)

	api.HandleFunc("/resources", s.handleListResources).Methods(http.MethodGet)
	api.HandleFunc("/resources", s.handleCreateResource).Methods(http.MethodPost)
	api.HandleFunc("/resources/{id}", s.handleGetResource).Methods(http.MethodGet)
	api.HandleFunc("/resources/{id}", s.handleUpdateResource).Methods(http.MethodPut)
	api.HandleFunc("/resources/{id}", s.handleDeactivateResource).Methods(http.MethodDelete)

	origins := cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           loggingMiddleware(logger, handler),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return s
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn().Interface("failed", failed).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Note      string `json:"note,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(ae *service.AllocationError) int {
	switch ae.Kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindRejected, service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := service.AsAllocationError(err)
	if !ok {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unexpected error")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := statusFor(ae)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	msg := ae.Message
	if msg == "" {
		msg = ae.Reason
	}
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Reason:    ae.Reason,
		Note:      ae.Note,
		Retryable: ae.Retryable(),
	})
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// intParam returns 0 when the parameter is absent.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}

// metricsMiddleware labels requests by route template to keep cardinality low.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = r.Method + " " + tpl
			}
		}
		metrics.IncHTTP(endpoint, strconv.Itoa(recorder.status))
	})
}
