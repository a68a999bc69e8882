package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Topics equal the event type: one event per topic.
const (
	TopicBookingCreated       = "booking.booking.created.v1"
	TopicBookingStatusChanged = "booking.booking.status_changed.v1"
	TopicBookingUpdated       = "booking.booking.updated.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type bookingPayload struct {
	BookingID      string    `json:"booking_id"`
	ProviderID     string    `json:"provider_id"`
	ServiceID      string    `json:"service_id,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	CustomerName   string    `json:"customer_name,omitempty"`
	CustomerEmail  string    `json:"customer_email,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`

	PreviousStartTime *time.Time `json:"previous_start_time,omitempty"`
	PreviousEndTime   *time.Time `json:"previous_end_time,omitempty"`
}

func BookingCreated(b model.Booking) (Event, error) {
	return bookingEvent(TopicBookingCreated, b, bookingPayload{})
}

func BookingStatusChanged(b model.Booking, previous model.Status) (Event, error) {
	return bookingEvent(TopicBookingStatusChanged, b, bookingPayload{PreviousStatus: string(previous)})
}

// BookingUpdated carries the previous interval only when the booking moved.
func BookingUpdated(b, previous model.Booking) (Event, error) {
	var extra bookingPayload
	if !b.StartTime.Equal(previous.StartTime) || !b.EndTime.Equal(previous.EndTime) {
		start, end := previous.StartTime.UTC(), previous.EndTime.UTC()
		extra.PreviousStartTime, extra.PreviousEndTime = &start, &end
	}
	return bookingEvent(TopicBookingUpdated, b, extra)
}

func bookingEvent(eventType string, b model.Booking, extra bookingPayload) (Event, error) {
	occurred := b.UpdatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	payload, err := json.Marshal(bookingPayload{
		BookingID:      b.ID,
		ProviderID:     b.ProviderID,
		ServiceID:      b.ServiceID,
		Status:         string(b.Status),
		PreviousStatus: extra.PreviousStatus,
		StartTime:      b.StartTime.UTC(),
		EndTime:        b.EndTime.UTC(),
		CustomerName:   b.CustomerName,
		CustomerEmail:  b.CustomerEmail,
		OccurredAt:     occurred.UTC(),

		PreviousStartTime: extra.PreviousStartTime,
		PreviousEndTime:   extra.PreviousEndTime,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
