package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduling"
)

func newTestStore(t *testing.T) (*MemoryStore, model.Provider) {
	t.Helper()
	s := NewMemoryStore()
	p, err := s.AddProvider(model.Provider{Name: "Dr. Test", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("add provider: %v", err)
	}
	return s, p
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	s, p := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	boom := errors.New("boom")
	err := s.WithProviderLock(ctx, p.ID, func(ctx context.Context, tx scheduling.Tx) error {
		if _, err := tx.InsertBooking(ctx, model.Booking{ProviderID: p.ID, StartTime: start, EndTime: start.Add(time.Hour), Status: model.StatusPending}); err != nil {
			return err
		}
		// Staged rows are visible inside the lock.
		got, err := tx.ListBookings(ctx, model.BookingFilter{ProviderID: p.ID})
		if err != nil || len(got) != 1 {
			t.Fatalf("expected staged booking to be visible, got %d (err=%v)", len(got), err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.ListBookings(ctx, model.BookingFilter{})
	if len(got) != 0 {
		t.Fatalf("expected nothing committed, got %d", len(got))
	}
}

func TestMemoryStore_IdempotencyAndFilters(t *testing.T) {
	s, p := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	insert := func(hour int, status model.Status, key string) model.Booking {
		var out model.Booking
		err := s.WithProviderLock(ctx, p.ID, func(ctx context.Context, tx scheduling.Tx) error {
			var err error
			out, err = tx.InsertBooking(ctx, model.Booking{
				ProviderID:     p.ID,
				StartTime:      day.Add(time.Duration(hour) * time.Hour),
				EndTime:        day.Add(time.Duration(hour)*time.Hour + 30*time.Minute),
				Status:         status,
				IdempotencyKey: key,
			})
			return err
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		return out
	}
	late := insert(15, model.StatusConfirmed, "")
	early := insert(9, model.StatusPending, "key-1")
	insert(11, model.StatusCancelled, "")

	if early.ID == "" || early.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps to be assigned: %+v", early)
	}

	err := s.WithProviderLock(ctx, p.ID, func(ctx context.Context, tx scheduling.Tx) error {
		got, ok, err := tx.FindByIdempotencyKey(ctx, p.ID, "key-1")
		if err != nil || !ok || got.ID != early.ID {
			t.Fatalf("expected idempotent lookup to find %s, got %+v ok=%v err=%v", early.ID, got, ok, err)
		}
		if _, ok, _ := tx.FindByIdempotencyKey(ctx, "other-provider", "key-1"); ok {
			t.Fatal("idempotency keys must be scoped per provider")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	blocking, _ := s.ListBookings(ctx, model.Blocking(p.ID, day, day.AddDate(0, 0, 1)))
	if len(blocking) != 2 || blocking[0].ID != early.ID || blocking[1].ID != late.ID {
		t.Fatalf("expected [early, late] ascending, got %+v", blocking)
	}
	limited, _ := s.ListBookings(ctx, model.BookingFilter{ProviderID: p.ID, Limit: 1})
	if len(limited) != 1 || limited[0].ID != early.ID {
		t.Fatalf("unexpected limited result: %+v", limited)
	}
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.GetProvider(ctx, "missing"); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetBooking(ctx, "missing"); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.AddRule(model.AvailabilityRule{ProviderID: "missing", DayOfWeek: time.Monday, OpenTime: 540, CloseTime: 600}); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown provider, got %v", err)
	}
	if _, err := s.AddProvider(model.Provider{Name: "No zone"}); err == nil {
		t.Fatal("expected error for provider without timezone")
	}
}

func TestSeedDemo(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if err := SeedDemo(s, "UTC", now); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ctx := context.Background()

	providers, _ := s.ListProviders(ctx)
	services, _ := s.ListServices(ctx)
	if len(providers) != 3 || len(services) != 5 {
		t.Fatalf("expected 3 providers and 5 services, got %d and %d", len(providers), len(services))
	}
	rules, _ := s.ListAvailabilityRules(ctx, DemoID("provider", 1))
	if len(rules) != 5 {
		t.Fatalf("expected 5 weekday rules, got %d", len(rules))
	}
	bookings, _ := s.ListBookings(ctx, model.BookingFilter{})
	if len(bookings) != 3 {
		t.Fatalf("expected 3 demo bookings, got %d", len(bookings))
	}
	if DemoID("provider", 1) != DemoID("provider", 1) || DemoID("provider", 1) == DemoID("service", 1) {
		t.Fatal("demo ids must be stable and distinct per kind")
	}
}

func TestMemoryStore_UpdateBookingKeepsIdentity(t *testing.T) {
	s, p := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	var created model.Booking
	err := s.WithProviderLock(ctx, p.ID, func(ctx context.Context, tx scheduling.Tx) error {
		var err error
		created, err = tx.InsertBooking(ctx, model.Booking{
			ProviderID: p.ID, Title: "Checkup", StartTime: start, EndTime: start.Add(time.Hour),
			Status: model.StatusConfirmed, IdempotencyKey: "key-9",
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	err = s.WithProviderLock(ctx, p.ID, func(ctx context.Context, tx scheduling.Tx) error {
		_, err := tx.UpdateBooking(ctx, model.Booking{
			ID: created.ID, Title: "Follow-up", StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour),
			Status: model.StatusCancelled,
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetBooking(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Follow-up" || !got.StartTime.Equal(start.Add(time.Hour)) {
		t.Fatalf("edit not applied: %+v", got)
	}
	if got.Status != model.StatusConfirmed || got.ProviderID != p.ID || got.IdempotencyKey != "key-9" || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("update must keep status, provider, key and created_at: %+v", got)
	}

	err = s.WithProviderLock(ctx, p.ID, func(ctx context.Context, tx scheduling.Tx) error {
		_, err := tx.UpdateBooking(ctx, model.Booking{ID: "missing"})
		return err
	})
	if !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
