package rulecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduling"
)

// Store caches provider profiles and weekly rules in Redis in front of another store.
// Bookings are never cached. Redis failures fall through to the wrapped store.
type Store struct {
	scheduling.Store
	redis   *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(next scheduling.Store, client *redis.Client, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{Store: next, redis: client, ttl: ttl, logger: logger, metrics: m}
}

func rulesKey(providerID string) string    { return fmt.Sprintf("slotbook:rules:%s", providerID) }
func providerKey(providerID string) string { return fmt.Sprintf("slotbook:provider:%s", providerID) }

type cachedRule struct {
	ID        string `json:"id"`
	DayOfWeek int    `json:"day_of_week"`
	Open      int    `json:"open_minute"`
	Close     int    `json:"close_minute"`
}

type cachedProvider struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Specialty string    `json:"specialty"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) ListAvailabilityRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error) {
	var cached []cachedRule
	if s.get(ctx, rulesKey(providerID), &cached) {
		rules := make([]model.AvailabilityRule, 0, len(cached))
		for _, c := range cached {
			rules = append(rules, model.AvailabilityRule{
				ID:         c.ID,
				ProviderID: providerID,
				DayOfWeek:  time.Weekday(c.DayOfWeek),
				OpenTime:   model.ClockTime(c.Open),
				CloseTime:  model.ClockTime(c.Close),
			})
		}
		return rules, nil
	}

	rules, err := s.Store.ListAvailabilityRules(ctx, providerID)
	if err != nil {
		return nil, err
	}
	out := make([]cachedRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, cachedRule{ID: r.ID, DayOfWeek: int(r.DayOfWeek), Open: int(r.OpenTime), Close: int(r.CloseTime)})
	}
	s.set(ctx, rulesKey(providerID), out)
	return rules, nil
}

func (s *Store) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var c cachedProvider
	if s.get(ctx, providerKey(id), &c) {
		return model.Provider(c), nil
	}
	p, err := s.Store.GetProvider(ctx, id)
	if err != nil {
		return model.Provider{}, err
	}
	s.set(ctx, providerKey(id), cachedProvider(p))
	return p, nil
}

// Invalidate drops everything cached for providerID.
func (s *Store) Invalidate(ctx context.Context, providerID string) error {
	if err := s.redis.Del(ctx, rulesKey(providerID), providerKey(providerID)).Err(); err != nil {
		return fmt.Errorf("rulecache: invalidate %s: %w", providerID, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, dst any) bool {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.metrics.ObserveRuleCache(false)
		return false
	}
	if err != nil {
		s.logger.Warn("rule cache read failed", "key", key, "err", err)
		s.metrics.ObserveRuleCache(false)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("rule cache entry corrupt", "key", key, "err", err)
		s.metrics.ObserveRuleCache(false)
		return false
	}
	s.metrics.ObserveRuleCache(true)
	return true
}

func (s *Store) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("rule cache write failed", "key", key, "err", err)
	}
}
