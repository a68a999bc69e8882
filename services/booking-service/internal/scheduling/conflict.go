package scheduling

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type ConflictResult struct {
	Conflict             bool
	ConflictingBookingID string
}

// CheckConflict reports the first booking in existing, in input order, that belongs to
// providerID, still blocks time and overlaps [start, end).
func CheckConflict(providerID string, start, end time.Time, existing []model.Booking) ConflictResult {
	for _, b := range existing {
		if b.ProviderID != providerID || !b.Status.Blocks() {
			continue
		}
		if availability.Overlaps(start, end, b.StartTime, b.EndTime) {
			return ConflictResult{Conflict: true, ConflictingBookingID: b.ID}
		}
	}
	return ConflictResult{}
}
