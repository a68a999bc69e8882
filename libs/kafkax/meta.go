package kafkax

import (
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID     = "event_id"
	HeaderEventType   = "event_type"
	HeaderAggregateID = "aggregate_id"
	HeaderOccurredAt  = "occurred_at"
)

// EventMeta identifies a domain event independently of its payload.
type EventMeta struct {
	EventID     string
	EventType   string
	AggregateID string
	OccurredAt  time.Time
}

// Headers renders the metadata as message headers. Empty fields are omitted.
func (m EventMeta) Headers() []kafka.Header {
	headers := make([]kafka.Header, 0, 4)
	add := func(key, value string) {
		if value != "" {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	add(HeaderEventID, m.EventID)
	add(HeaderEventType, m.EventType)
	add(HeaderAggregateID, m.AggregateID)
	if !m.OccurredAt.IsZero() {
		add(HeaderOccurredAt, m.OccurredAt.UTC().Format(time.RFC3339Nano))
	}
	return headers
}

// ExtractEventMeta reads the headers written by Headers. Producers that only set a key
// and topic still dedupe: the key stands in for the event id and the topic for the type.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:     HeaderValue(msg.Headers, HeaderEventID),
		EventType:   HeaderValue(msg.Headers, HeaderEventType),
		AggregateID: HeaderValue(msg.Headers, HeaderAggregateID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	if meta.AggregateID == "" {
		meta.AggregateID = string(msg.Key)
	}
	if raw := HeaderValue(msg.Headers, HeaderOccurredAt); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			meta.OccurredAt = t
		}
	}
	if meta.OccurredAt.IsZero() {
		meta.OccurredAt = msg.Time
	}
	return meta
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
