package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"optiadmin/internal/domain"
	"optiadmin/internal/metrics"
	"optiadmin/internal/service/scheduling"
)

type schedulingService interface {
	CheckAvailability(ctx context.Context, start, end time.Time) (scheduling.Availability, error)
	Create(ctx context.Context, in scheduling.CreateInput) (domain.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time) (domain.Appointment, error)
	Transition(ctx context.Context, id uuid.UUID, to domain.StatusName) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	Statuses(ctx context.Context) ([]domain.AppointmentStatus, error)
}

type SchedulingHandler struct {
	svc     schedulingService
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewSchedulingHandler(svc schedulingService, log *slog.Logger, m *metrics.Metrics) *SchedulingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingHandler{
		svc:     svc,
		log:     log.With(slog.String("component", "httpapi.scheduling")),
		metrics: m,
	}
}

type appointmentPayload struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toAppointmentPayload(a domain.Appointment) appointmentPayload {
	return appointmentPayload{
		ID:           a.ID.String(),
		CustomerID:   a.CustomerID.String(),
		CustomerName: a.CustomerName(),
		Title:        a.Title,
		Description:  a.Description,
		Notes:        a.Notes,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type checkRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type checkResponse struct {
	Available bool              `json:"available"`
	Conflicts []conflictPayload `json:"conflicts"`
}

func (h *SchedulingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	result, err := h.svc.CheckAvailability(r.Context(), req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		Available: result.Available,
		Conflicts: toConflictPayloads(result.Conflicts),
	})
}

type customerPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

type createRequest struct {
	CustomerID  string           `json:"customer_id"`
	Customer    *customerPayload `json:"customer"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Notes       string           `json:"notes"`
	StartTime   time.Time        `json:"start_time"`
	EndTime     time.Time        `json:"end_time"`
	Status      string           `json:"status"`
}

func (h *SchedulingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	in := scheduling.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Notes:       req.Notes,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Status:      domain.StatusName(req.Status),
	}
	if req.CustomerID != "" {
		id, err := uuid.Parse(req.CustomerID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "customer_id must be a UUID"})
			return
		}
		in.CustomerID = id
	}
	if req.Customer != nil {
		in.NewCustomer = &scheduling.CustomerInput{
			Name:  req.Customer.Name,
			Phone: req.Customer.Phone,
			Email: req.Customer.Email,
			Notes: req.Customer.Notes,
		}
	}

	appt, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.observeBookingError(err)
		writeError(w, h.log, err)
		return
	}

	h.metrics.ObserveBooking(metrics.BookingCreated)
	h.log.Info("appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	writeJSON(w, http.StatusCreated, toAppointmentPayload(appt))
}

type rescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), id, req.StartTime, req.EndTime)
	if err != nil {
		h.observeBookingError(err)
		writeError(w, h.log, err)
		return
	}

	h.metrics.ObserveBooking(metrics.BookingRescheduled)
	h.log.Info("appointment rescheduled",
		slog.String("appointment_id", appt.ID.String()),
		slog.Time("start_time", appt.StartTime),
		slog.Time("end_time", appt.EndTime),
	)
	writeJSON(w, http.StatusOK, toAppointmentPayload(appt))
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *SchedulingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	appt, err := h.svc.Transition(r.Context(), id, domain.StatusName(req.Status))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	h.log.Info("appointment status changed",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("status", string(appt.Status)),
	)
	writeJSON(w, http.StatusOK, toAppointmentPayload(appt))
}

func (h *SchedulingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentPayload(appt))
}

func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "from must be an RFC3339 timestamp"})
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "to must be an RFC3339 timestamp"})
		return
	}

	appts, err := h.svc.List(r.Context(), from, to)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	out := make([]appointmentPayload, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentPayload(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

type statusCatalogPayload struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Color     string `json:"color,omitempty"`
	SortOrder int    `json:"sort_order"`
}

func (h *SchedulingHandler) Statuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.svc.Statuses(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make([]statusCatalogPayload, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, statusCatalogPayload{
			Name:      string(s.Name),
			Label:     s.Label,
			Color:     s.Color,
			SortOrder: s.SortOrder,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": out})
}

func (h *SchedulingHandler) observeBookingError(err error) {
	var slotErr *scheduling.SlotUnavailableError
	switch {
	case errors.As(err, &slotErr):
		h.metrics.ObserveBooking(metrics.BookingConflict)
	case domain.RuleName(err) != "":
		h.metrics.ObserveBooking(metrics.BookingRejected)
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "appointment id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
