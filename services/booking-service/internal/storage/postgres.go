package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduling"
)

// DB is the pgx surface used by the store; *db.Pool and pgxmock pools satisfy it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore serialises writes per provider with a transaction-scoped advisory lock.
// The bookings table also carries an exclusion constraint, so overlapping rows are
// rejected even for writers that skip the lock.
type PostgresStore struct {
	db     DB
	outbox *outbox.Repository
}

func NewPostgresStore(db DB, outboxRepo *outbox.Repository) *PostgresStore {
	return &PostgresStore{db: db, outbox: outboxRepo}
}

var _ scheduling.Store = (*PostgresStore)(nil)

const bookingColumns = `
	SELECT id::text, provider_id::text, COALESCE(service_id::text, ''), title, description,
		customer_name, customer_email, customer_phone, notes,
		start_time, end_time, status, COALESCE(idempotency_key, ''), created_at, updated_at
	FROM bookings`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var status string
	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.ServiceID,
		&b.Title,
		&b.Description,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.CustomerPhone,
		&b.Notes,
		&b.StartTime,
		&b.EndTime,
		&status,
		&b.IdempotencyKey,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.Status(status)
	return b, nil
}

func (s *PostgresStore) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := s.db.QueryRow(ctx, `
		SELECT id::text, name, email, phone, specialty, timezone, created_at
		FROM providers
		WHERE id::text = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Specialty, &p.Timezone, &p.CreatedAt)
	if err != nil {
		return model.Provider{}, notFound(err, "provider", id)
	}
	return p, nil
}

func (s *PostgresStore) ListProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, name, email, phone, specialty, timezone, created_at
		FROM providers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Specialty, &p.Timezone, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *PostgresStore) GetService(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	err := s.db.QueryRow(ctx, `
		SELECT id::text, name, description, duration_minutes, price::text, created_at
		FROM services
		WHERE id::text = $1
	`, id).Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DurationMinutes, &svc.Price, &svc.CreatedAt)
	if err != nil {
		return model.Service{}, notFound(err, "service", id)
	}
	return svc, nil
}

func (s *PostgresStore) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, name, description, duration_minutes, price::text, created_at
		FROM services
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DurationMinutes, &svc.Price, &svc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListAvailabilityRules returns rules in insertion order; slot output order depends on it.
func (s *PostgresStore) ListAvailabilityRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, provider_id::text, day_of_week, open_minute, close_minute
		FROM availability_rules
		WHERE provider_id::text = $1
		ORDER BY position ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		var (
			r                   model.AvailabilityRule
			day, open, closeMin int
		)
		if err := rows.Scan(&r.ID, &r.ProviderID, &day, &open, &closeMin); err != nil {
			return nil, err
		}
		r.DayOfWeek = time.Weekday(day)
		r.OpenTime = model.ClockTime(open)
		r.CloseTime = model.ClockTime(closeMin)
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("availability rule %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *PostgresStore) ListBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error) {
	return listBookings(ctx, s.db, filter)
}

func (s *PostgresStore) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, bookingColumns+` WHERE id::text = $1`, id))
	if err != nil {
		return model.Booking{}, notFound(err, "booking", id)
	}
	return b, nil
}

func (s *PostgresStore) WithProviderLock(ctx context.Context, providerID string, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "provider:"+providerID); err != nil {
		return fmt.Errorf("provider lock: %w", err)
	}
	if err := fn(ctx, &pgTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapWriteError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) ListBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error) {
	return listBookings(ctx, t.tx, filter)
}

func (t *pgTx) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, bookingColumns+` WHERE id::text = $1 FOR UPDATE`, id))
	if err != nil {
		return model.Booking{}, notFound(err, "booking", id)
	}
	return b, nil
}

func (t *pgTx) FindByIdempotencyKey(ctx context.Context, providerID, key string) (model.Booking, bool, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx, bookingColumns+`
		WHERE provider_id::text = $1 AND idempotency_key = $2
	`, providerID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, false, nil
	}
	if err != nil {
		return model.Booking{}, false, err
	}
	return b, true, nil
}

func (t *pgTx) InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bookings
			(provider_id, service_id, title, description, customer_name, customer_email, customer_phone, notes,
			 start_time, end_time, status, idempotency_key)
		VALUES ($1::uuid, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
		RETURNING id::text, created_at, updated_at
	`, b.ProviderID, b.ServiceID, b.Title, b.Description, b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.Notes,
		b.StartTime, b.EndTime, string(b.Status), b.IdempotencyKey).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Booking{}, mapWriteError(err)
	}

	evt, err := outbox.BookingCreated(b)
	if err != nil {
		return model.Booking{}, err
	}
	if err := t.outbox.Insert(ctx, t.tx, evt); err != nil {
		return model.Booking{}, fmt.Errorf("outbox insert: %w", err)
	}
	return b, nil
}

func (t *pgTx) UpdateBookingStatus(ctx context.Context, id string, status model.Status) (model.Booking, error) {
	prev, err := t.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	b, err := scanBooking(t.tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2, updated_at = now()
		WHERE id::text = $1
		RETURNING id::text, provider_id::text, COALESCE(service_id::text, ''), title, description,
			customer_name, customer_email, customer_phone, notes,
			start_time, end_time, status, COALESCE(idempotency_key, ''), created_at, updated_at
	`, id, string(status)))
	if err != nil {
		return model.Booking{}, mapWriteError(notFound(err, "booking", id))
	}

	evt, err := outbox.BookingStatusChanged(b, prev.Status)
	if err != nil {
		return model.Booking{}, err
	}
	if err := t.outbox.Insert(ctx, t.tx, evt); err != nil {
		return model.Booking{}, fmt.Errorf("outbox insert: %w", err)
	}
	return b, nil
}

func (t *pgTx) UpdateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	prev, err := t.GetBooking(ctx, b.ID)
	if err != nil {
		return model.Booking{}, err
	}
	updated, err := scanBooking(t.tx.QueryRow(ctx, `
		UPDATE bookings
		SET service_id = NULLIF($2, '')::uuid, title = $3, description = $4,
			customer_name = $5, customer_email = $6, customer_phone = $7, notes = $8,
			start_time = $9, end_time = $10, updated_at = now()
		WHERE id::text = $1
		RETURNING id::text, provider_id::text, COALESCE(service_id::text, ''), title, description,
			customer_name, customer_email, customer_phone, notes,
			start_time, end_time, status, COALESCE(idempotency_key, ''), created_at, updated_at
	`, b.ID, b.ServiceID, b.Title, b.Description, b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.Notes,
		b.StartTime, b.EndTime))
	if err != nil {
		return model.Booking{}, mapWriteError(notFound(err, "booking", b.ID))
	}

	evt, err := outbox.BookingUpdated(updated, prev)
	if err != nil {
		return model.Booking{}, err
	}
	if err := t.outbox.Insert(ctx, t.tx, evt); err != nil {
		return model.Booking{}, fmt.Errorf("outbox insert: %w", err)
	}
	return updated, nil
}

func listBookings(ctx context.Context, q querier, filter model.BookingFilter) ([]model.Booking, error) {
	sql, args := bookingQuery(filter)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// bookingQuery renders filter with the same overlap semantics as BookingFilter.Matches.
func bookingQuery(f model.BookingFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ProviderID != "" {
		add("provider_id::text = $%d", f.ProviderID)
	}
	if !f.To.IsZero() {
		add("start_time < $%d", f.To)
	}
	if !f.From.IsZero() {
		add("end_time > $%d", f.From)
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if len(f.ExcludeStatuses) > 0 {
		add("status <> ALL($%d)", statusStrings(f.ExcludeStatuses))
	}

	sql := bookingColumns
	if len(where) > 0 {
		sql += "\n\tWHERE " + strings.Join(where, " AND ")
	}
	sql += "\n\tORDER BY start_time ASC, id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf("\n\tLIMIT $%d", len(args))
	}
	return sql, args
}

func statusStrings(list []model.Status) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, string(s))
	}
	return out
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, scheduling.ErrNotFound)
	}
	return err
}

// mapWriteError turns constraint violations into scheduling conflicts.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01":
		return &scheduling.ConflictError{}
	case "23505":
		if pgErr.ConstraintName == "bookings_provider_idempotency_key" {
			return &scheduling.ConflictError{}
		}
	case "23503":
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, scheduling.ErrNotFound)
	}
	return err
}
