package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
)

// Invalidator drops cached availability for a provider.
type Invalidator interface {
	Invalidate(ctx context.Context, providerID string) error
}

type availabilityChanged struct {
	ProviderID string `json:"provider_id"`
}

// AvailabilityChangedHandler invalidates cached rules when a provider's schedule changes.
// Malformed payloads are logged and dropped.
func AvailabilityChangedHandler(logger *slog.Logger, cache Invalidator) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload availabilityChanged
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		providerID := strings.TrimSpace(payload.ProviderID)
		if providerID == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}
		if err := cache.Invalidate(ctx, providerID); err != nil {
			return err
		}
		logger.Info("availability cache invalidated", "provider_id", providerID)
		return nil
	}
}
