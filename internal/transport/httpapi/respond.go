package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"optiadmin/internal/auth"
	"optiadmin/internal/domain"
	"optiadmin/internal/service/scheduling"
	"optiadmin/internal/store"
)

type conflictPayload struct {
	AppointmentID string    `json:"appointment_id"`
	CustomerName  string    `json:"customer_name"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

type errorResponse struct {
	Error     string            `json:"error"`
	Rule      string            `json:"rule,omitempty"`
	Conflicts []conflictPayload `json:"conflicts,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses. Internal failures are
// logged but never surfaced with detail.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var slotErr *scheduling.SlotUnavailableError
	if errors.As(err, &slotErr) {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     "the requested slot is unavailable",
			Rule:      "slot_unavailable",
			Conflicts: toConflictPayloads(slotErr.Conflicts),
		})
		return
	}
	if rule := domain.RuleName(err); rule != "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Rule: rule})
		return
	}

	var vErr *scheduling.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: vErr.Error()})
		return
	}
	var tErr *scheduling.TransitionError
	if errors.As(err, &tErr) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: tErr.Error()})
		return
	}

	switch {
	case errors.Is(err, scheduling.ErrCustomerNotFound), errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, store.ErrCustomerExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "a customer with the same email or phone already exists"})
	case errors.Is(err, store.ErrAdminExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "admin already exists"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
	default:
		log.Error("request failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error, try again"})
	}
}

func toConflictPayloads(conflicts []scheduling.Conflict) []conflictPayload {
	out := make([]conflictPayload, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictPayload{
			AppointmentID: c.AppointmentID.String(),
			CustomerName:  c.CustomerName,
			StartTime:     c.Start,
			EndTime:       c.End,
		})
	}
	return out
}
