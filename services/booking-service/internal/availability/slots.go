package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// GenerateSlots expands weekly rules into fixed-length candidate slots for every calendar
// day from rangeStart to rangeEnd inclusive. Days and weekdays are taken in
// rangeStart's location, so callers pass instants already in the provider's timezone.
//
// Output is ordered by day, then rule order as given, then slot start. Rules are not
// de-duplicated against each other; a trailing slot that would pass the close time is dropped.
func GenerateSlots(rules []model.AvailabilityRule, rangeStart, rangeEnd time.Time, slotMinutes int) []model.CandidateSlot {
	if slotMinutes <= 0 || len(rules) == 0 {
		return nil
	}
	loc := rangeStart.Location()
	first := startOfDay(rangeStart)
	last := startOfDay(rangeEnd.In(loc))
	if last.Before(first) {
		return nil
	}
	length := time.Duration(slotMinutes) * time.Minute

	var slots []model.CandidateSlot
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		weekday := day.Weekday()
		for _, rule := range rules {
			if rule.DayOfWeek != weekday {
				continue
			}
			open := rule.OpenTime.On(day)
			closeAt := rule.CloseTime.On(day)
			for start := open; !start.Add(length).After(closeAt); start = start.Add(length) {
				slots = append(slots, model.CandidateSlot{
					Start:     start,
					End:       start.Add(length),
					Available: true,
				})
			}
		}
	}
	return slots
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayBounds reads the calendar dates of r and anchors them in loc. It returns
// [first local midnight, local midnight after the last day).
func DayBounds(r model.DateRange, loc *time.Location) (time.Time, time.Time) {
	sy, sm, sd := r.Start.Date()
	ey, em, ed := r.End.Date()
	start := time.Date(sy, sm, sd, 0, 0, 0, 0, loc)
	end := time.Date(ey, em, ed, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return start, end
}
