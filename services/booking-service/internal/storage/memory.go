package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduling"
)

// MemoryStore keeps everything in process. Writes for one provider are serialised by a
// per-provider mutex, mirroring the advisory lock taken by the Postgres store.
type MemoryStore struct {
	mu          sync.RWMutex
	providers   map[string]model.Provider
	services    map[string]model.Service
	rules       map[string][]model.AvailabilityRule
	bookings    map[string]model.Booking
	idempotency map[string]string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers:   make(map[string]model.Provider),
		services:    make(map[string]model.Service),
		rules:       make(map[string][]model.AvailabilityRule),
		bookings:    make(map[string]model.Booking),
		idempotency: make(map[string]string),
		locks:       make(map[string]*sync.Mutex),
		now:         time.Now,
	}
}

var _ scheduling.Store = (*MemoryStore)(nil)

func (s *MemoryStore) AddProvider(p model.Provider) (model.Provider, error) {
	if _, err := p.Location(); err != nil {
		return model.Provider{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
	return p, nil
}

func (s *MemoryStore) AddService(svc model.Service) (model.Service, error) {
	if svc.DurationMinutes <= 0 {
		return model.Service{}, fmt.Errorf("service duration must be positive (got %d)", svc.DurationMinutes)
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
	return svc, nil
}

// AddRule appends a weekly rule. Rules keep their insertion order per provider.
func (s *MemoryStore) AddRule(r model.AvailabilityRule) (model.AvailabilityRule, error) {
	if err := r.Validate(); err != nil {
		return model.AvailabilityRule{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[r.ProviderID]; !ok {
		return model.AvailabilityRule{}, fmt.Errorf("provider %s: %w", r.ProviderID, scheduling.ErrNotFound)
	}
	s.rules[r.ProviderID] = append(s.rules[r.ProviderID], r)
	return r, nil
}

func (s *MemoryStore) GetProvider(_ context.Context, id string) (model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return model.Provider{}, fmt.Errorf("provider %s: %w", id, scheduling.ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) ListProviders(_ context.Context) ([]model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetService(_ context.Context, id string) (model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return model.Service{}, fmt.Errorf("service %s: %w", id, scheduling.ErrNotFound)
	}
	return svc, nil
}

func (s *MemoryStore) ListServices(_ context.Context) ([]model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ListAvailabilityRules(_ context.Context, providerID string) ([]model.AvailabilityRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AvailabilityRule(nil), s.rules[providerID]...), nil
}

func (s *MemoryStore) ListBookings(_ context.Context, filter model.BookingFilter) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLocked(filter, nil), nil
}

func (s *MemoryStore) GetBooking(_ context.Context, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, scheduling.ErrNotFound)
	}
	return b, nil
}

func (s *MemoryStore) WithProviderLock(ctx context.Context, providerID string, fn func(ctx context.Context, tx scheduling.Tx) error) error {
	lock := s.providerLock(providerID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{store: s, staged: make(map[string]model.Booking)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) providerLock(providerID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[providerID] = l
	}
	return l
}

// filterLocked applies filter over stored bookings with staged overriding them.
func (s *MemoryStore) filterLocked(filter model.BookingFilter, staged map[string]model.Booking) []model.Booking {
	var out []model.Booking
	for id, b := range s.bookings {
		if _, ok := staged[id]; ok {
			continue
		}
		if filter.Matches(b) {
			out = append(out, b)
		}
	}
	for _, b := range staged {
		if filter.Matches(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func idempotencyKey(providerID, key string) string {
	return providerID + "\x00" + key
}

type memoryTx struct {
	store  *MemoryStore
	staged map[string]model.Booking
}

func (tx *memoryTx) ListBookings(_ context.Context, filter model.BookingFilter) ([]model.Booking, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	return tx.store.filterLocked(filter, tx.staged), nil
}

func (tx *memoryTx) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	if b, ok := tx.staged[id]; ok {
		return b, nil
	}
	return tx.store.GetBooking(ctx, id)
}

func (tx *memoryTx) FindByIdempotencyKey(_ context.Context, providerID, key string) (model.Booking, bool, error) {
	for _, b := range tx.staged {
		if b.ProviderID == providerID && b.IdempotencyKey == key {
			return b, true, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	id, ok := tx.store.idempotency[idempotencyKey(providerID, key)]
	if !ok {
		return model.Booking{}, false, nil
	}
	return tx.store.bookings[id], true, nil
}

func (tx *memoryTx) InsertBooking(_ context.Context, b model.Booking) (model.Booking, error) {
	if strings.TrimSpace(b.ID) == "" {
		b.ID = uuid.NewString()
	}
	now := tx.store.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	tx.staged[b.ID] = b
	return b, nil
}

func (tx *memoryTx) UpdateBookingStatus(ctx context.Context, id string, status model.Status) (model.Booking, error) {
	b, err := tx.GetBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = status
	b.UpdatedAt = tx.store.now().UTC()
	tx.staged[id] = b
	return b, nil
}

func (tx *memoryTx) UpdateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	cur, err := tx.GetBooking(ctx, b.ID)
	if err != nil {
		return model.Booking{}, err
	}
	b.ProviderID, b.Status, b.IdempotencyKey, b.CreatedAt = cur.ProviderID, cur.Status, cur.IdempotencyKey, cur.CreatedAt
	b.UpdatedAt = tx.store.now().UTC()
	tx.staged[b.ID] = b
	return b, nil
}

func (tx *memoryTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for id, b := range tx.staged {
		tx.store.bookings[id] = b
		if b.IdempotencyKey != "" {
			tx.store.idempotency[idempotencyKey(b.ProviderID, b.IdempotencyKey)] = id
		}
	}
}
