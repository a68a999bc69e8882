package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Annotate marks each candidate unavailable when any blocking booking overlaps it.
// The input slice is not modified; calling it twice with the same inputs gives the same result.
func Annotate(candidates []model.CandidateSlot, bookings []model.Booking) []model.CandidateSlot {
	busy := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		if !b.Status.Blocks() {
			continue
		}
		busy = append(busy, Interval{Start: b.StartTime, End: b.EndTime})
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	out := make([]model.CandidateSlot, len(candidates))
	for i, c := range candidates {
		c.Available = !overlapsAny(c.Start, c.End, busy)
		out[i] = c
	}
	return out
}

// overlapsAny expects busy sorted by start; it stops once intervals start at or after end.
func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if !b.Start.Before(end) {
			return false
		}
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// FilterAvailable keeps only the available candidates.
func FilterAvailable(slots []model.CandidateSlot) []model.CandidateSlot {
	out := make([]model.CandidateSlot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}
