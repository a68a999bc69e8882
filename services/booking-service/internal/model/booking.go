package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, true
	}
	return "", false
}

// Blocks reports whether a booking in this status occupies provider time.
// Completed bookings keep blocking their interval.
func (s Status) Blocks() bool {
	return s != StatusCancelled
}

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusCompleted},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether from -> to is an allowed status change.
// Re-applying the current status is allowed and is a no-op for callers.
// Cancelled and completed are terminal: leaving cancelled would re-occupy time without
// a conflict check. Refusing confirmed -> pending is a service policy; the booking
// rules themselves impose no ordering between pending and confirmed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Booking struct {
	ID             string
	ProviderID     string
	ServiceID      string
	Title          string
	Description    string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	Notes          string
	StartTime      time.Time
	EndTime        time.Time
	Status         Status
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BookingFilter selects bookings. From/To form an overlap window
// (start < To and end > From); zero bounds are open.
type BookingFilter struct {
	ProviderID      string
	From            time.Time
	To              time.Time
	Statuses        []Status
	ExcludeStatuses []Status
	Limit           int
}

// Matches applies the filter in memory with the same semantics the SQL store uses.
func (f BookingFilter) Matches(b Booking) bool {
	if f.ProviderID != "" && b.ProviderID != f.ProviderID {
		return false
	}
	if !f.To.IsZero() && !b.StartTime.Before(f.To) {
		return false
	}
	if !f.From.IsZero() && !b.EndTime.After(f.From) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, b.Status) {
		return false
	}
	if containsStatus(f.ExcludeStatuses, b.Status) {
		return false
	}
	return true
}

// Blocking returns a filter for the bookings that can conflict inside [from, to).
func Blocking(providerID string, from, to time.Time) BookingFilter {
	return BookingFilter{
		ProviderID:      providerID,
		From:            from,
		To:              to,
		ExcludeStatuses: []Status{StatusCancelled},
	}
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
