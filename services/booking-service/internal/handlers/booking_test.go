package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	mux      *http.ServeMux
	provider model.Provider
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	store := storage.NewMemoryStore()
	p, err := store.AddProvider(model.Provider{Name: "Dr. Slot", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("add provider: %v", err)
	}
	if _, err := store.AddRule(model.AvailabilityRule{
		ProviderID: p.ID,
		DayOfWeek:  time.Monday,
		OpenTime:   model.MustClock("09:00"),
		CloseTime:  model.MustClock("12:00"),
	}); err != nil {
		t.Fatalf("add rule: %v", err)
	}
	clock := func() time.Time { return now }
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	engine := scheduling.NewEngine(store, policy.NewStaticProvider(policy.DefaultPolicy()),
		scheduling.WithClock(clock), scheduling.WithLogger(logger))

	h := NewBookingHandler(engine, logger)
	mux := http.NewServeMux()
	h.Register(mux)
	return testServer{mux: mux, provider: p}
}

func (s testServer) do(t *testing.T, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (s testServer) createBody(start, end string) createBookingRequest {
	return createBookingRequest{
		ProviderID:    s.provider.ID,
		Title:         "Consultation",
		CustomerName:  "Pedro Sánchez",
		CustomerEmail: "pedro.sanchez@email.com",
		StartTime:     start,
		EndTime:       end,
	}
}

func TestCreateBookingThenConflict(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/bookings", s.createBody("2026-03-02T10:00:00Z", "2026-03-02T10:30:00Z"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode[bookingItem](t, rec)
	if created.BookingID == "" || created.Status != "pending" {
		t.Fatalf("unexpected booking: %+v", created)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/bookings", s.createBody("2026-03-02T10:15:00Z", "2026-03-02T10:45:00Z"), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[errorResponse](t, rec); got.ConflictingBookingID != created.BookingID {
		t.Fatalf("expected conflict with %s, got %+v", created.BookingID, got)
	}
}

func TestCreateBookingValidationFailures(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/bookings", s.createBody("2026-03-02T10:00:00Z", "2026-03-02T10:10:00Z"), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[errorResponse](t, rec)
	if len(got.Reasons) != 1 || got.Reasons[0].Reason != policy.ReasonDurationTooShort {
		t.Fatalf("expected DurationTooShort, got %+v", got.Reasons)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/bookings", s.createBody("not-a-time", "2026-03-02T10:30:00Z"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad start_time, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	s.mux.ServeHTTP(raw, req)
	if raw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", raw.Code)
	}
}

func TestCreateBookingRequiresCustomerDetails(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/bookings", createBookingRequest{
		ProviderID: s.provider.ID,
		StartTime:  "2026-03-02T10:00:00Z",
		EndTime:    "2026-03-02T10:30:00Z",
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[errorResponse](t, rec)
	if len(got.Reasons) != 3 {
		t.Fatalf("expected three missing fields, got %+v", got.Reasons)
	}
	for _, r := range got.Reasons {
		if r.Reason != policy.ReasonMissingField || r.Field == "" {
			t.Fatalf("expected field-level MissingField, got %+v", r)
		}
	}

	body := s.createBody("2026-03-02T10:00:00Z", "2026-03-02T10:30:00Z")
	body.CustomerEmail = "pedro-at-email"
	rec = s.do(t, http.MethodPost, "/api/v1/bookings", body, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad email, got %d", rec.Code)
	}
	if got := decode[errorResponse](t, rec); got.Reasons[0].Field != "customer_email" || got.Reasons[0].Reason != policy.ReasonInvalidField {
		t.Fatalf("expected InvalidField on customer_email, got %+v", got.Reasons)
	}

	if list := decode[[]bookingItem](t, s.do(t, http.MethodGet, "/api/v1/bookings", nil, nil)); len(list) != 0 {
		t.Fatalf("nothing may be stored, got %+v", list)
	}
}

func TestUpdateBookingEndpoint(t *testing.T) {
	s := newTestServer(t)
	first := decode[bookingItem](t, s.do(t, http.MethodPost, "/api/v1/bookings",
		s.createBody("2026-03-02T09:00:00Z", "2026-03-02T09:30:00Z"), nil))
	second := decode[bookingItem](t, s.do(t, http.MethodPost, "/api/v1/bookings",
		s.createBody("2026-03-02T10:00:00Z", "2026-03-02T10:30:00Z"), nil))

	start, end := "2026-03-02T09:15:00Z", "2026-03-02T09:45:00Z"
	rec := s.do(t, http.MethodPut, "/api/v1/bookings/update", updateBookingRequest{BookingID: second.BookingID, StartTime: &start, EndTime: &end}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 moving onto another booking, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[errorResponse](t, rec); got.ConflictingBookingID != first.BookingID {
		t.Fatalf("expected conflict with %s, got %+v", first.BookingID, got)
	}

	start, end = "2026-03-02T10:15:00Z", "2026-03-02T10:45:00Z"
	title := "Follow-up"
	rec = s.do(t, http.MethodPost, "/api/v1/bookings/update", updateBookingRequest{BookingID: second.BookingID, Title: &title, StartTime: &start, EndTime: &end}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 moving within its own slot, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[bookingItem](t, rec); got.StartTime != start || got.Title != title || got.CustomerName != second.CustomerName {
		t.Fatalf("unexpected update: %+v", got)
	}

	short := "ab"
	if rec := s.do(t, http.MethodPost, "/api/v1/bookings/update", updateBookingRequest{BookingID: second.BookingID, Title: &short}, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for short title, got %d", rec.Code)
	}
	bad := "tomorrow"
	if rec := s.do(t, http.MethodPost, "/api/v1/bookings/update", updateBookingRequest{BookingID: second.BookingID, StartTime: &bad}, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad start_time, got %d", rec.Code)
	}
	status := "confirmed"
	if rec := s.do(t, http.MethodPost, "/api/v1/bookings/update", updateBookingRequest{BookingID: second.BookingID, Status: &status}, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when status is sent to update, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/bookings/update", updateBookingRequest{BookingID: "nope", Title: &title}, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/bookings/update", nil, nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCreateBookingIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	header := map[string]string{"Idempotency-Key": "retry-1"}
	body := s.createBody("2026-03-02T09:00:00Z", "2026-03-02T09:30:00Z")

	first := decode[bookingItem](t, s.do(t, http.MethodPost, "/api/v1/bookings", body, header))
	rec := s.do(t, http.MethodPost, "/api/v1/bookings", body, header)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	if second := decode[bookingItem](t, rec); second.BookingID != first.BookingID {
		t.Fatalf("expected same booking on replay, got %s and %s", first.BookingID, second.BookingID)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/bookings", s.createBody("2026-03-02T10:00:00Z", "2026-03-02T10:30:00Z"), nil)

	rec := s.do(t, http.MethodGet, "/api/v1/slots?provider_id="+s.provider.ID+"&date=2026-03-02", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	slots := decode[[]slotItem](t, rec)
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
	if slots[2].StartTime != "2026-03-02T10:00:00Z" || slots[2].Available {
		t.Fatalf("expected 10:00 slot unavailable, got %+v", slots[2])
	}

	rec = s.do(t, http.MethodGet, "/api/v1/slots?provider_id="+s.provider.ID+"&date=2026-03-02&only_available=true&slot_minutes=60", nil, nil)
	slots = decode[[]slotItem](t, rec)
	if len(slots) != 2 {
		t.Fatalf("expected 2 free hourly slots, got %+v", slots)
	}

	// Default range covers today plus seven days, so exactly one Monday.
	rec = s.do(t, http.MethodGet, "/api/v1/slots?provider_id="+s.provider.ID, nil, nil)
	if got := decode[[]slotItem](t, rec); len(got) != 6 {
		t.Fatalf("expected 6 slots in default range, got %d", len(got))
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/slots?date=2026-03-02", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without provider_id, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/slots?provider_id=missing&date=2026-03-02", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/slots?provider_id="+s.provider.ID+"&date=03/02/2026", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestStatusLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t)
	created := decode[bookingItem](t, s.do(t, http.MethodPost, "/api/v1/bookings",
		s.createBody("2026-03-02T11:00:00Z", "2026-03-02T11:30:00Z"), nil))

	rec := s.do(t, http.MethodPost, "/api/v1/bookings/status", updateStatusRequest{BookingID: created.BookingID, Status: "confirmed"}, nil)
	if rec.Code != http.StatusOK || decode[bookingItem](t, rec).Status != "confirmed" {
		t.Fatalf("confirm failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/bookings/cancel", cancelBookingRequest{BookingID: created.BookingID}, nil)
	if rec.Code != http.StatusOK || decode[bookingItem](t, rec).Status != "cancelled" {
		t.Fatalf("cancel failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/bookings/status", updateStatusRequest{BookingID: created.BookingID, Status: "confirmed"}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 reopening a cancelled booking, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/bookings/detail?id="+created.BookingID, nil, nil)
	if rec.Code != http.StatusOK || decode[bookingItem](t, rec).Status != "cancelled" {
		t.Fatalf("detail failed: %d %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/bookings/detail?id=nope", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/bookings/cancel", cancelBookingRequest{}, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without booking_id, got %d", rec.Code)
	}
}

func TestListBookingsFilters(t *testing.T) {
	s := newTestServer(t)
	a := decode[bookingItem](t, s.do(t, http.MethodPost, "/api/v1/bookings", s.createBody("2026-03-02T09:00:00Z", "2026-03-02T09:30:00Z"), nil))
	s.do(t, http.MethodPost, "/api/v1/bookings", s.createBody("2026-03-09T09:00:00Z", "2026-03-09T09:30:00Z"), nil)
	s.do(t, http.MethodPost, "/api/v1/bookings/cancel", cancelBookingRequest{BookingID: a.BookingID}, nil)

	all := decode[[]bookingItem](t, s.do(t, http.MethodGet, "/api/v1/bookings?provider_id="+s.provider.ID, nil, nil))
	if len(all) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(all))
	}

	week := decode[[]bookingItem](t, s.do(t, http.MethodGet, "/api/v1/bookings?start_date=2026-03-02&end_date=2026-03-02", nil, nil))
	if len(week) != 1 || week[0].BookingID != a.BookingID {
		t.Fatalf("expected only the first booking on 2026-03-02, got %+v", week)
	}

	cancelled := decode[[]bookingItem](t, s.do(t, http.MethodGet, "/api/v1/bookings?status=cancelled", nil, nil))
	if len(cancelled) != 1 || cancelled[0].BookingID != a.BookingID {
		t.Fatalf("expected one cancelled booking, got %+v", cancelled)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/bookings?status=lost", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/api/v1/bookings", nil, nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCatalogueEndpoints(t *testing.T) {
	s := newTestServer(t)
	providers := decode[[]providerItem](t, s.do(t, http.MethodGet, "/api/v1/providers", nil, nil))
	if len(providers) != 1 || providers[0].ProviderID != s.provider.ID || providers[0].Timezone != "UTC" {
		t.Fatalf("unexpected providers: %+v", providers)
	}
	services := decode[[]serviceItem](t, s.do(t, http.MethodGet, "/api/v1/services", nil, nil))
	if len(services) != 0 {
		t.Fatalf("expected no services, got %+v", services)
	}
}
