package api

import (
	"net/http"
	"strings"

	"slotkeeper/internal/models"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.svc.Bookings.Allocate(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	bookings, err := s.svc.Bookings.ListBookings(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Bookings.GetBooking(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req models.RescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.svc.Bookings.Reschedule(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type statusRequest struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

func (s *HTTPServer) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.svc.Bookings.ChangeStatus(r.Context(), mux.Vars(r)["id"], strings.TrimSpace(req.Status), req.Version)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/v1/availability?date=&time=&duration=&resource=&exclude=
func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	duration, err := intParam(r, "duration")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := models.BookingRequest{
		Date:             q.Get("date"),
		Time:             q.Get("time"),
		ResourceID:       q.Get("resource"),
		DurationMinutes:  duration,
		ExcludeBookingID: q.Get("exclude"),
	}
	result, err := s.svc.Bookings.CheckAvailability(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleDayAvailability(w http.ResponseWriter, r *http.Request) {
	duration, err := intParam(r, "duration")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	day, err := s.svc.Bookings.DayAvailability(r.Context(), mux.Vars(r)["date"], duration)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.svc.Settings.Current(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *HTTPServer) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.BookingSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	saved, err := s.svc.Settings.Update(r.Context(), &settings)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	resources, err := s.svc.Resources.List(r.Context(), all)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

func (s *HTTPServer) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var res models.Resource
	if err := decodeJSON(w, r, &res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.svc.Resources.Create(r.Context(), &res); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleGetResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Resources.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleUpdateResource(w http.ResponseWriter, r *http.Request) {
	var res models.Resource
	if err := decodeJSON(w, r, &res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// id из пути главнее тела
	res.ID = mux.Vars(r)["id"]

	if err := s.svc.Resources.Update(r.Context(), &res); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleDeactivateResource(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Resources.Deactivate(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
