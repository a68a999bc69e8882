package scheduling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrNotFound           = errors.New("not found")
)

// ValidationError carries every failed check for a request. It matches ErrValidation.
type ValidationError struct {
	Failures []policy.Result
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Reason, f.Message))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Reasons() []policy.Reason {
	out := make([]policy.Reason, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Reason)
	}
	return out
}

func invalid(reason policy.Reason, format string, args ...any) error {
	return &ValidationError{Failures: []policy.Result{policy.Fail(reason, format, args...)}}
}

// ConflictError reports the booking that blocks a requested interval, when known.
type ConflictError struct {
	BookingID string
}

func (e *ConflictError) Error() string {
	if e.BookingID == "" {
		return "scheduling conflict"
	}
	return "scheduling conflict with booking " + e.BookingID
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSchedulingConflict
}
