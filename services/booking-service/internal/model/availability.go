package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a local wall-clock time expressed in minutes since midnight.
type ClockTime int

const endOfDay ClockTime = 24 * 60

// ParseClock parses "HH:MM" (24-hour). "24:00" is accepted as end of day.
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	c := ClockTime(h*60 + m)
	if h < 0 || m < 0 || m > 59 || c > endOfDay {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return c, nil
}

func MustClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant at this wall-clock time on day's calendar date in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, day.Location())
}

// AvailabilityRule is one recurring weekly open window for a provider.
type AvailabilityRule struct {
	ID         string
	ProviderID string
	DayOfWeek  time.Weekday
	OpenTime   ClockTime
	CloseTime  ClockTime
}

func (r AvailabilityRule) Validate() error {
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return fmt.Errorf("day_of_week must be within 0..6 (got %d)", r.DayOfWeek)
	}
	if r.OpenTime < 0 || r.CloseTime > endOfDay {
		return fmt.Errorf("rule window %s-%s out of range", r.OpenTime, r.CloseTime)
	}
	if r.OpenTime >= r.CloseTime {
		return fmt.Errorf("open time %s must be before close time %s", r.OpenTime, r.CloseTime)
	}
	return nil
}

// CandidateSlot is computed per query and never persisted.
type CandidateSlot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

type Provider struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Specialty string
	Timezone  string
	CreatedAt time.Time
}

// Location resolves the provider's IANA timezone. An empty zone is a configuration error.
func (p Provider) Location() (*time.Location, error) {
	if strings.TrimSpace(p.Timezone) == "" {
		return nil, fmt.Errorf("provider %s has no timezone", p.ID)
	}
	return time.LoadLocation(p.Timezone)
}

type Service struct {
	ID              string
	Name            string
	Description     string
	DurationMinutes int
	Price           string
	CreatedAt       time.Time
}

// DateRange is a pair of calendar days, both inclusive. Only the year, month and
// day of each bound are significant; they are read in the provider's timezone.
type DateRange struct {
	Start time.Time
	End   time.Time
}
