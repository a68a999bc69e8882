package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
)

// BookingPatch names the fields to change on a stored booking. Nil fields keep their
// stored value. Status has its own operation and the provider cannot change.
type BookingPatch struct {
	ServiceID     *string
	Title         *string
	Description   *string
	CustomerName  *string
	CustomerEmail *string
	CustomerPhone *string
	Notes         *string
	StartTime     *time.Time
	EndTime       *time.Time
}

// apply returns b with the patch applied and whether anything differs.
func (p BookingPatch) apply(b model.Booking) (model.Booking, bool) {
	next := b
	setText := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setText(&next.ServiceID, p.ServiceID)
	setText(&next.Title, p.Title)
	setText(&next.Description, p.Description)
	setText(&next.CustomerName, p.CustomerName)
	setText(&next.CustomerEmail, p.CustomerEmail)
	setText(&next.CustomerPhone, p.CustomerPhone)
	setText(&next.Notes, p.Notes)
	if p.StartTime != nil {
		next.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		next.EndTime = *p.EndTime
	}

	changed := next.ServiceID != b.ServiceID ||
		detailsOf(next) != detailsOf(b) ||
		!next.StartTime.Equal(b.StartTime) ||
		!next.EndTime.Equal(b.EndTime)
	return next, changed
}

func (p BookingPatch) moves() bool {
	return p.StartTime != nil || p.EndTime != nil
}

// UpdateBooking edits a pending or confirmed booking. A new interval goes through the
// provider's policy and the conflict check, ignoring the booking's own current interval.
// A patch that changes nothing returns the stored booking.
func (e *Engine) UpdateBooking(ctx context.Context, id string, patch BookingPatch) (model.Booking, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.UpdateBooking",
		trace.WithAttributes(attribute.String("booking.id", id), attribute.Bool("booking.moved", patch.moves())),
	)
	defer span.End()

	updated, changed, err := e.update(ctx, id, patch)
	switch {
	case err == nil && !changed:
		e.metrics.ObserveUpdate(metrics.OutcomeUnchanged)
	case err == nil:
		e.metrics.ObserveUpdate(metrics.OutcomeUpdated)
		e.logger.Info("booking updated", "booking_id", id, "provider_id", updated.ProviderID,
			"start", updated.StartTime, "end", updated.EndTime)
	case errors.Is(err, ErrSchedulingConflict):
		e.metrics.ObserveUpdate(metrics.OutcomeConflict)
		e.logger.Info("booking update conflict", "booking_id", id, "err", err)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		e.metrics.ObserveUpdate(metrics.OutcomeInvalid)
	default:
		e.metrics.ObserveUpdate(metrics.OutcomeError)
		e.logger.Error("booking update failed", "booking_id", id, "err", err)
	}
	if err != nil {
		recordError(span, err)
		return model.Booking{}, err
	}
	return updated, nil
}

// RescheduleBooking moves a booking to [start, end) and leaves its details untouched.
func (e *Engine) RescheduleBooking(ctx context.Context, id string, start, end time.Time) (model.Booking, error) {
	return e.UpdateBooking(ctx, id, BookingPatch{StartTime: &start, EndTime: &end})
}

func (e *Engine) update(ctx context.Context, id string, patch BookingPatch) (model.Booking, bool, error) {
	if (patch.StartTime != nil && patch.StartTime.IsZero()) || (patch.EndTime != nil && patch.EndTime.IsZero()) {
		return model.Booking{}, false, invalid(policy.ReasonInvalidInterval, "start_time and end_time cannot be empty")
	}
	current, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, false, err
	}
	if patch.ServiceID != nil {
		if svcID := strings.TrimSpace(*patch.ServiceID); svcID != "" {
			if _, err := e.store.GetService(ctx, svcID); err != nil {
				return model.Booking{}, false, err
			}
		}
	}
	pol, err := e.policies.Policy(ctx, current.ProviderID)
	if err != nil {
		return model.Booking{}, false, fmt.Errorf("load policy: %w", err)
	}

	var (
		out     model.Booking
		changed bool
	)
	err = e.store.WithProviderLock(ctx, current.ProviderID, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusPending && cur.Status != model.StatusConfirmed {
			return invalid(policy.ReasonInvalidStatusTransition, "%s bookings cannot be edited", cur.Status)
		}
		next, diff := patch.apply(cur)
		if !diff {
			out = cur
			return nil
		}

		failures := policy.CheckDetails(detailsOf(next))
		moved := !next.StartTime.Equal(cur.StartTime) || !next.EndTime.Equal(cur.EndTime)
		if moved {
			if !next.EndTime.After(next.StartTime) {
				failures = append(failures, policy.Fail(policy.ReasonInvalidInterval, "end_time must be after start_time"))
			} else {
				iv := availability.Interval{Start: next.StartTime, End: next.EndTime}
				failures = append(failures, policy.Check(pol.Validators(), iv, e.now())...)
			}
		}
		if len(failures) > 0 {
			return &ValidationError{Failures: failures}
		}

		if moved {
			existing, err := tx.ListBookings(ctx, model.Blocking(cur.ProviderID, next.StartTime, next.EndTime))
			if err != nil {
				return fmt.Errorf("list bookings: %w", err)
			}
			if res := CheckConflict(cur.ProviderID, next.StartTime, next.EndTime, withoutBooking(existing, id)); res.Conflict {
				return &ConflictError{BookingID: res.ConflictingBookingID}
			}
		}

		out, err = tx.UpdateBooking(ctx, next)
		changed = err == nil
		return err
	})
	if err != nil {
		return model.Booking{}, false, err
	}
	return out, changed, nil
}

func withoutBooking(list []model.Booking, id string) []model.Booking {
	out := make([]model.Booking, 0, len(list))
	for _, b := range list {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}
