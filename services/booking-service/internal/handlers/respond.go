package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduling"
)

type errorResponse struct {
	Error                string          `json:"error"`
	Reasons              []policy.Result `json:"reasons,omitempty"`
	ConflictingBookingID string          `json:"conflicting_booking_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeEngineError maps engine error kinds onto HTTP statuses. Unknown errors are logged
// and reported as 500 without leaking details.
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		ve       *scheduling.ValidationError
		conflict *scheduling.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Reasons: ve.Failures})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "time slot is not available", ConflictingBookingID: conflict.BookingID})
	case errors.Is(err, scheduling.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
