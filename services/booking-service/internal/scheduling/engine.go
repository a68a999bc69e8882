package scheduling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
)

const (
	maxRangeDays     = 366
	defaultRangeDays = 7
)

type Engine struct {
	store              Store
	policies           policy.Provider
	now                func() time.Time
	logger             *slog.Logger
	metrics            *metrics.Metrics
	defaultSlotMinutes int
	tracer             trace.Tracer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithDefaultSlotMinutes(minutes int) Option {
	return func(e *Engine) {
		if minutes > 0 {
			e.defaultSlotMinutes = minutes
		}
	}
}

func NewEngine(store Store, policies policy.Provider, opts ...Option) *Engine {
	e := &Engine{
		store:              store,
		policies:           policies,
		now:                time.Now,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		defaultSlotMinutes: 30,
		tracer:             otel.Tracer("slotbook/scheduling"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SlotQuery asks for the candidate slots of one provider over a range of calendar days.
// A zero Range.Start means the provider's local today; a zero Range.End means seven days
// after the start. SlotMinutes wins over the service duration, which wins over the engine
// default.
type SlotQuery struct {
	ProviderID  string
	Range       model.DateRange
	SlotMinutes int
	ServiceID   string
}

func (e *Engine) GetAvailableSlots(ctx context.Context, q SlotQuery) ([]model.CandidateSlot, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.GetAvailableSlots",
		trace.WithAttributes(attribute.String("provider.id", q.ProviderID)),
	)
	defer span.End()

	started := time.Now()
	slots, err := e.availableSlots(ctx, q)
	e.metrics.ObserveSlotQuery(err == nil, time.Since(started).Seconds(), len(slots))
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("slots.count", len(slots)))
	return slots, nil
}

func (e *Engine) availableSlots(ctx context.Context, q SlotQuery) ([]model.CandidateSlot, error) {
	if strings.TrimSpace(q.ProviderID) == "" {
		return nil, invalid(policy.ReasonInvalidInterval, "provider_id is required")
	}
	if q.SlotMinutes < 0 {
		return nil, invalid(policy.ReasonInvalidInterval, "slot_minutes must be positive")
	}

	provider, err := e.store.GetProvider(ctx, q.ProviderID)
	if err != nil {
		return nil, err
	}
	loc, err := provider.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve provider timezone: %w", err)
	}

	rng := q.Range
	if rng.Start.IsZero() {
		local := e.now().In(loc)
		rng.Start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	}
	if rng.End.IsZero() {
		rng.End = rng.Start.AddDate(0, 0, defaultRangeDays)
	}

	from, to := availability.DayBounds(rng, loc)
	if to.Before(from.AddDate(0, 0, 1)) {
		return nil, invalid(policy.ReasonInvalidInterval, "end date must not be before start date")
	}
	if to.After(from.AddDate(0, 0, maxRangeDays)) {
		return nil, invalid(policy.ReasonInvalidInterval, "date range cannot exceed %d days", maxRangeDays)
	}

	slotMinutes, err := e.slotMinutes(ctx, q)
	if err != nil {
		return nil, err
	}

	rules, err := e.store.ListAvailabilityRules(ctx, q.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	bookings, err := e.store.ListBookings(ctx, model.Blocking(q.ProviderID, from, to))
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	candidates := availability.GenerateSlots(rules, from, to.AddDate(0, 0, -1), slotMinutes)
	return availability.Annotate(candidates, bookings), nil
}

func (e *Engine) slotMinutes(ctx context.Context, q SlotQuery) (int, error) {
	if q.SlotMinutes > 0 {
		return q.SlotMinutes, nil
	}
	if q.ServiceID != "" {
		svc, err := e.store.GetService(ctx, q.ServiceID)
		if err != nil {
			return 0, err
		}
		if svc.DurationMinutes > 0 {
			return svc.DurationMinutes, nil
		}
	}
	return e.defaultSlotMinutes, nil
}

// ValidateAndCreateBooking checks the proposed booking's details, the provider's policy and
// existing bookings, then persists it. A repeated idempotency key returns the booking
// stored the first time.
func (e *Engine) ValidateAndCreateBooking(ctx context.Context, proposed model.Booking) (model.Booking, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.ValidateAndCreateBooking",
		trace.WithAttributes(attribute.String("provider.id", proposed.ProviderID)),
	)
	defer span.End()

	created, replayed, err := e.create(ctx, proposed)
	switch {
	case err == nil && replayed:
		e.metrics.ObserveBooking(metrics.OutcomeReplayed)
		e.logger.Info("booking replayed", "booking_id", created.ID, "provider_id", created.ProviderID)
	case err == nil:
		e.metrics.ObserveBooking(metrics.OutcomeCreated)
		e.logger.Info("booking created", "booking_id", created.ID, "provider_id", created.ProviderID,
			"start", created.StartTime, "end", created.EndTime)
	case errors.Is(err, ErrSchedulingConflict):
		e.metrics.ObserveBooking(metrics.OutcomeConflict)
		e.logger.Info("booking conflict", "provider_id", proposed.ProviderID, "err", err)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		e.metrics.ObserveBooking(metrics.OutcomeInvalid)
	default:
		e.metrics.ObserveBooking(metrics.OutcomeError)
		e.logger.Error("booking create failed", "provider_id", proposed.ProviderID, "err", err)
	}
	if err != nil {
		recordError(span, err)
		return model.Booking{}, err
	}
	span.SetAttributes(attribute.String("booking.id", created.ID), attribute.Bool("booking.replayed", replayed))
	return created, nil
}

func (e *Engine) create(ctx context.Context, b model.Booking) (model.Booking, bool, error) {
	b.ProviderID = strings.TrimSpace(b.ProviderID)
	b.IdempotencyKey = strings.TrimSpace(b.IdempotencyKey)
	if b.ProviderID == "" {
		return model.Booking{}, false, invalid(policy.ReasonInvalidInterval, "provider_id is required")
	}
	if b.StartTime.IsZero() || b.EndTime.IsZero() {
		return model.Booking{}, false, invalid(policy.ReasonInvalidInterval, "start_time and end_time are required")
	}
	if !b.EndTime.After(b.StartTime) {
		return model.Booking{}, false, invalid(policy.ReasonInvalidInterval, "end_time must be after start_time")
	}
	switch b.Status {
	case "":
		b.Status = model.StatusPending
	case model.StatusPending, model.StatusConfirmed:
	default:
		return model.Booking{}, false, invalid(policy.ReasonInvalidStatusTransition, "new bookings must be pending or confirmed, not %q", b.Status)
	}

	if _, err := e.store.GetProvider(ctx, b.ProviderID); err != nil {
		return model.Booking{}, false, err
	}
	if b.ServiceID != "" {
		if _, err := e.store.GetService(ctx, b.ServiceID); err != nil {
			return model.Booking{}, false, err
		}
	}

	pol, err := e.policies.Policy(ctx, b.ProviderID)
	if err != nil {
		return model.Booking{}, false, fmt.Errorf("load policy: %w", err)
	}
	failures := policy.CheckDetails(detailsOf(b))
	iv := availability.Interval{Start: b.StartTime, End: b.EndTime}
	failures = append(failures, policy.Check(pol.Validators(), iv, e.now())...)
	if len(failures) > 0 {
		return model.Booking{}, false, &ValidationError{Failures: failures}
	}

	var (
		out      model.Booking
		replayed bool
	)
	err = e.store.WithProviderLock(ctx, b.ProviderID, func(ctx context.Context, tx Tx) error {
		if b.IdempotencyKey != "" {
			existing, ok, err := tx.FindByIdempotencyKey(ctx, b.ProviderID, b.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
			if ok {
				out, replayed = existing, true
				return nil
			}
		}

		existing, err := tx.ListBookings(ctx, model.Blocking(b.ProviderID, b.StartTime, b.EndTime))
		if err != nil {
			return fmt.Errorf("list bookings: %w", err)
		}
		if res := CheckConflict(b.ProviderID, b.StartTime, b.EndTime, existing); res.Conflict {
			return &ConflictError{BookingID: res.ConflictingBookingID}
		}

		out, err = tx.InsertBooking(ctx, b)
		return err
	})
	if err != nil {
		return model.Booking{}, false, err
	}
	return out, replayed, nil
}

// UpdateBookingStatus moves a booking along the status lifecycle. Setting the current
// status again returns the booking unchanged.
func (e *Engine) UpdateBookingStatus(ctx context.Context, id string, status model.Status) (model.Booking, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.UpdateBookingStatus",
		trace.WithAttributes(attribute.String("booking.id", id), attribute.String("booking.status", string(status))),
	)
	defer span.End()

	updated, err := e.updateStatus(ctx, id, status)
	if err != nil {
		recordError(span, err)
		return model.Booking{}, err
	}
	return updated, nil
}

func (e *Engine) updateStatus(ctx context.Context, id string, status model.Status) (model.Booking, error) {
	if _, ok := model.ParseStatus(string(status)); !ok {
		return model.Booking{}, invalid(policy.ReasonInvalidStatusTransition, "unknown status %q", status)
	}
	current, err := e.store.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}

	var (
		updated model.Booking
		changed bool
	)
	err = e.store.WithProviderLock(ctx, current.ProviderID, func(ctx context.Context, tx Tx) error {
		cur, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !model.CanTransition(cur.Status, status) {
			return invalid(policy.ReasonInvalidStatusTransition, "cannot change status from %s to %s", cur.Status, status)
		}
		if cur.Status == status {
			updated = cur
			return nil
		}
		updated, err = tx.UpdateBookingStatus(ctx, id, status)
		changed = err == nil
		return err
	})
	if err != nil {
		return model.Booking{}, err
	}
	if changed {
		e.metrics.ObserveStatusChange(string(status))
		e.logger.Info("booking status changed", "booking_id", id, "status", status)
	}
	return updated, nil
}

// CancelBooking is a soft delete: the booking stays stored with status cancelled.
func (e *Engine) CancelBooking(ctx context.Context, id string) (model.Booking, error) {
	return e.UpdateBookingStatus(ctx, id, model.StatusCancelled)
}

func (e *Engine) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	return e.store.GetBooking(ctx, id)
}

func (e *Engine) ListBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error) {
	return e.store.ListBookings(ctx, filter)
}

func (e *Engine) ListProviders(ctx context.Context) ([]model.Provider, error) {
	return e.store.ListProviders(ctx)
}

func (e *Engine) ListServices(ctx context.Context) ([]model.Service, error) {
	return e.store.ListServices(ctx)
}

func detailsOf(b model.Booking) policy.Details {
	return policy.Details{
		Title:         b.Title,
		Description:   b.Description,
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		CustomerPhone: b.CustomerPhone,
		Notes:         b.Notes,
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
