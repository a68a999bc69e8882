package scheduling

import (
	"context"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Store is the persistence boundary of the engine. Lookups of missing rows
// return errors matching ErrNotFound.
type Store interface {
	GetProvider(ctx context.Context, id string) (model.Provider, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	ListAvailabilityRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error)
	ListBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error)
	GetBooking(ctx context.Context, id string) (model.Booking, error)

	// WithProviderLock runs fn while holding the write lock for providerID.
	// Writes made through tx are committed only when fn returns nil.
	WithProviderLock(ctx context.Context, providerID string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write view available while a provider lock is held.
type Tx interface {
	ListBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error)
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	FindByIdempotencyKey(ctx context.Context, providerID, key string) (model.Booking, bool, error)
	InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status model.Status) (model.Booking, error)
	// UpdateBooking rewrites the editable fields and interval of b.ID. Status,
	// provider and idempotency key are left as stored.
	UpdateBooking(ctx context.Context, b model.Booking) (model.Booking, error)
}
