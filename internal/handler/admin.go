package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	apierrors "github.com/devrev/hvac-voice-agent/internal/errors"
	"github.com/devrev/hvac-voice-agent/internal/model"
	"github.com/devrev/hvac-voice-agent/internal/schedule"
)

const maxListLimit = 500

// CallsResponse is the body of GET /v1/calls.
type CallsResponse struct {
	Calls []*model.CallLog `json:"calls"`
	Count int              `json:"count"`
}

// AppointmentsResponse is the body of GET /v1/appointments.
type AppointmentsResponse struct {
	Date         string               `json:"date"`
	Appointments []*model.Appointment `json:"appointments"`
	Count        int                  `json:"count"`
}

// ListCalls handles GET /v1/calls requests.
func (h *Handlers) ListCalls(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			h.errorHandler.WriteValidationError(w, "limit must be between 1 and 500", r.Header.Get("X-Request-ID"))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	logs, err := h.records.ListCallLogs(ctx, limit)
	if err != nil {
		h.errorHandler.HandleError(w, r, "call", err)
		return
	}
	if logs == nil {
		logs = []*model.CallLog{}
	}
	h.writeJSONResponse(w, http.StatusOK, CallsResponse{Calls: logs, Count: len(logs)})
}

// GetCall handles GET /v1/calls/{sid} requests.
func (h *Handlers) GetCall(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	log, err := h.records.GetCallLog(ctx, mux.Vars(r)["sid"])
	if err != nil {
		h.errorHandler.HandleError(w, r, "call", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, log)
}

// GetSession handles GET /v1/sessions/{sid} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	s, err := h.conversation.Session(ctx, mux.Vars(r)["sid"])
	if err != nil {
		h.errorHandler.HandleError(w, r, "session", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, s)
}

// ListAppointments handles GET /v1/appointments?date=YYYY-MM-DD requests.
func (h *Handlers) ListAppointments(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		h.errorHandler.HandleError(w, r, "appointment", apierrors.Invalid("date is required"))
		return
	}
	date, err := time.ParseInLocation(schedule.DateLayout, raw, h.cfg.Location)
	if err != nil {
		h.errorHandler.HandleError(w, r, "appointment", apierrors.Invalid("date must be YYYY-MM-DD"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Timeout)
	defer cancel()

	appts, err := h.records.ListAppointments(ctx, date)
	if err != nil {
		h.errorHandler.HandleError(w, r, "appointment", err)
		return
	}
	if appts == nil {
		appts = []*model.Appointment{}
	}
	h.writeJSONResponse(w, http.StatusOK, AppointmentsResponse{
		Date:         raw,
		Appointments: appts,
		Count:        len(appts),
	})
}
