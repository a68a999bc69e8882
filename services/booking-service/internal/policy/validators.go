package policy

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
)

type Reason string

const (
	ReasonDurationTooShort        Reason = "DurationTooShort"
	ReasonDurationTooLong         Reason = "DurationTooLong"
	ReasonInsufficientNotice      Reason = "InsufficientNotice"
	ReasonTooFarInFuture          Reason = "TooFarInFuture"
	ReasonInvalidInterval         Reason = "InvalidInterval"
	ReasonInvalidStatusTransition Reason = "InvalidStatusTransition"
	ReasonMissingField            Reason = "MissingField"
	ReasonInvalidField            Reason = "InvalidField"
)

// Result is the outcome of a single check. Validators report failures as values.
type Result struct {
	Valid   bool   `json:"valid"`
	Reason  Reason `json:"reason,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

func OK() Result { return Result{Valid: true} }

func Fail(reason Reason, format string, args ...any) Result {
	return Result{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Validator checks a proposed interval. now is injected so checks are deterministic.
type Validator interface {
	Validate(iv availability.Interval, now time.Time) Result
}

type DurationValidator struct {
	MinMinutes int
	MaxMinutes int
}

func (v DurationValidator) Validate(iv availability.Interval, _ time.Time) Result {
	if !iv.End.After(iv.Start) {
		return Fail(ReasonDurationTooShort, "end time must be after start time")
	}
	d := iv.Duration()
	if d < time.Duration(v.MinMinutes)*time.Minute {
		return Fail(ReasonDurationTooShort, "booking must be at least %d minutes", v.MinMinutes)
	}
	if d > time.Duration(v.MaxMinutes)*time.Minute {
		return Fail(ReasonDurationTooLong, "booking cannot exceed %d minutes", v.MaxMinutes)
	}
	return OK()
}

type AdvanceNoticeValidator struct {
	MinHours float64
}

func (v AdvanceNoticeValidator) Validate(iv availability.Interval, now time.Time) Result {
	if hours := iv.Start.Sub(now).Hours(); hours < v.MinHours {
		return Fail(ReasonInsufficientNotice, "bookings require at least %g hours notice", v.MinHours)
	}
	return OK()
}

type MaxAdvanceValidator struct {
	MaxDays float64
}

func (v MaxAdvanceValidator) Validate(iv availability.Interval, now time.Time) Result {
	if days := iv.Start.Sub(now).Hours() / 24; days > v.MaxDays {
		return Fail(ReasonTooFarInFuture, "bookings cannot be made more than %g days in advance", v.MaxDays)
	}
	return OK()
}

// Check runs every validator and returns only the failures, in validator order.
func Check(validators []Validator, iv availability.Interval, now time.Time) []Result {
	var failures []Result
	for _, v := range validators {
		if r := v.Validate(iv, now); !r.Valid {
			failures = append(failures, r)
		}
	}
	return failures
}
