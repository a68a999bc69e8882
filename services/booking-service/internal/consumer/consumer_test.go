package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
)

type sliceReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	cancel context.CancelFunc
	closed bool
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *sliceReader) Close() error {
	r.closed = true
	return nil
}

type memInbox struct {
	seen map[string]bool
}

func (i *memInbox) Record(_ context.Context, eventID, _ string) (bool, error) {
	if i.seen[eventID] {
		return false, nil
	}
	i.seen[eventID] = true
	return true, nil
}

type recordingCache struct {
	invalidated []string
	err         error
}

func (c *recordingCache) Invalidate(_ context.Context, providerID string) error {
	if c.err != nil {
		return c.err
	}
	c.invalidated = append(c.invalidated, providerID)
	return nil
}

func msg(id, value string) kafka.Message {
	return kafka.Message{
		Topic: "business.availability.changed.v1",
		Value: []byte(value),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(id)},
		},
	}
}

func TestRun_DeduplicatesAndInvalidates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &sliceReader{
		cancel: cancel,
		msgs: []kafka.Message{
			msg("evt-1", `{"provider_id":"p-1"}`),
			msg("evt-1", `{"provider_id":"p-1"}`),
			msg("evt-2", `not json`),
			msg("evt-3", `{"provider_id":" "}`),
			msg("evt-4", `{"provider_id":"p-2"}`),
		},
	}
	cache := &recordingCache{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewWithReader(logger, &memInbox{seen: map[string]bool{}}, reader, AvailabilityChangedHandler(logger, cache))

	c.Run(ctx)

	if len(cache.invalidated) != 2 || cache.invalidated[0] != "p-1" || cache.invalidated[1] != "p-2" {
		t.Fatalf("unexpected invalidations: %v", cache.invalidated)
	}
	if !reader.closed {
		t.Fatal("reader should be closed when Run returns")
	}
}

func TestAvailabilityChangedHandler_PropagatesCacheError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := AvailabilityChangedHandler(logger, &recordingCache{err: errors.New("redis down")})
	if err := h(context.Background(), msg("evt-1", `{"provider_id":"p-1"}`)); err == nil {
		t.Fatal("expected cache error to surface")
	}
}
