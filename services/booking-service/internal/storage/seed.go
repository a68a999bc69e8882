package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

var demoNamespace = uuid.MustParse("6f1c1d8e-7f0b-4c53-9a61-2b6f3f5c1a10")

// DemoID derives a stable id so demo fixtures survive restarts of the memory driver.
func DemoID(kind string, n int) string {
	return uuid.NewSHA1(demoNamespace, []byte(fmt.Sprintf("%s/%d", kind, n))).String()
}

// SeedDemo loads three providers working Monday to Friday 09:00-17:00, five services and
// a few upcoming bookings relative to now.
func SeedDemo(s *MemoryStore, timezone string, now time.Time) error {
	providers := []model.Provider{
		{Name: "Dr. María González", Email: "maria.gonzalez@clinic.com", Phone: "+1-555-0101", Specialty: "General Medicine"},
		{Name: "Dr. Juan Pérez", Email: "juan.perez@clinic.com", Phone: "+1-555-0102", Specialty: "Cardiology"},
		{Name: "Dra. Ana Martínez", Email: "ana.martinez@clinic.com", Phone: "+1-555-0103", Specialty: "Pediatrics"},
	}
	for i, p := range providers {
		p.ID = DemoID("provider", i+1)
		p.Timezone = timezone
		if _, err := s.AddProvider(p); err != nil {
			return fmt.Errorf("seed provider %s: %w", p.Name, err)
		}
		for day := time.Monday; day <= time.Friday; day++ {
			rule := model.AvailabilityRule{
				ProviderID: p.ID,
				DayOfWeek:  day,
				OpenTime:   model.MustClock("09:00"),
				CloseTime:  model.MustClock("17:00"),
			}
			if _, err := s.AddRule(rule); err != nil {
				return fmt.Errorf("seed rule: %w", err)
			}
		}
	}

	services := []model.Service{
		{Name: "General Consultation", Description: "Routine medical consultation", DurationMinutes: 30, Price: "50.00"},
		{Name: "Full Checkup", Description: "Complete examination with lab work", DurationMinutes: 60, Price: "120.00"},
		{Name: "Follow-up", Description: "Treatment follow-up", DurationMinutes: 20, Price: "35.00"},
		{Name: "Pediatric Consultation", Description: "Consultation for children", DurationMinutes: 30, Price: "45.00"},
		{Name: "Cardiology Consultation", Description: "Cardiovascular evaluation", DurationMinutes: 45, Price: "90.00"},
	}
	for i, svc := range services {
		svc.ID = DemoID("service", i+1)
		if _, err := s.AddService(svc); err != nil {
			return fmt.Errorf("seed service %s: %w", svc.Name, err)
		}
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	at := func(days, hour int) time.Time {
		d := today.AddDate(0, 0, days)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
	}

	bookings := []model.Booking{
		{
			Title: "General Consultation - Pedro Sánchez", ProviderID: DemoID("provider", 1), ServiceID: DemoID("service", 1),
			StartTime: at(1, 10), EndTime: at(1, 10).Add(30 * time.Minute), Status: model.StatusConfirmed,
			CustomerName: "Pedro Sánchez", CustomerEmail: "pedro.sanchez@email.com", CustomerPhone: "+1-555-1001", Notes: "First visit",
		},
		{
			Title: "Cardiology Consultation - Laura Torres", ProviderID: DemoID("provider", 2), ServiceID: DemoID("service", 5),
			StartTime: at(1, 14), EndTime: at(1, 14).Add(30 * time.Minute), Status: model.StatusPending,
			CustomerName: "Laura Torres", CustomerEmail: "laura.torres@email.com", CustomerPhone: "+1-555-1002",
		},
		{
			Title: "Pediatric Consultation - Ramírez family", ProviderID: DemoID("provider", 3), ServiceID: DemoID("service", 4),
			StartTime: at(7, 11), EndTime: at(7, 12), Status: model.StatusConfirmed,
			CustomerName: "Carlos Ramírez", CustomerEmail: "carlos.ramirez@email.com", CustomerPhone: "+1-555-1003", Notes: "Vaccination pending",
		},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range bookings {
		b.ID = DemoID("booking", i+1)
		b.CreatedAt, b.UpdatedAt = now.UTC(), now.UTC()
		s.bookings[b.ID] = b
	}
	return nil
}
