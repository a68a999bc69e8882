package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/scheduling"
)

const dateLayout = "2006-01-02"

// Scheduler is the engine surface used by the HTTP layer.
type Scheduler interface {
	GetAvailableSlots(ctx context.Context, q scheduling.SlotQuery) ([]model.CandidateSlot, error)
	ValidateAndCreateBooking(ctx context.Context, proposed model.Booking) (model.Booking, error)
	UpdateBooking(ctx context.Context, id string, patch scheduling.BookingPatch) (model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status model.Status) (model.Booking, error)
	CancelBooking(ctx context.Context, id string) (model.Booking, error)
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	ListBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)
	ListServices(ctx context.Context) ([]model.Service, error)
}

type BookingHandler struct {
	engine Scheduler
	logger *slog.Logger
}

func NewBookingHandler(engine Scheduler, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, logger: logger}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/providers", h.Providers)
	mux.HandleFunc("/api/v1/services", h.Services)
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/bookings", h.Bookings)
	mux.HandleFunc("/api/v1/bookings/detail", h.Detail)
	mux.HandleFunc("/api/v1/bookings/update", h.Update)
	mux.HandleFunc("/api/v1/bookings/status", h.UpdateStatus)
	mux.HandleFunc("/api/v1/bookings/cancel", h.Cancel)
}

type createBookingRequest struct {
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Notes         string `json:"notes"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
}

// updateBookingRequest lists the fields to change; omitted fields keep their value.
type updateBookingRequest struct {
	BookingID     string  `json:"booking_id"`
	ServiceID     *string `json:"service_id"`
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	CustomerName  *string `json:"customer_name"`
	CustomerEmail *string `json:"customer_email"`
	CustomerPhone *string `json:"customer_phone"`
	Notes         *string `json:"notes"`
	StartTime     *string `json:"start_time"`
	EndTime       *string `json:"end_time"`
	Status        *string `json:"status"`
}

type updateStatusRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type bookingItem struct {
	BookingID     string `json:"booking_id"`
	ProviderID    string `json:"provider_id"`
	ServiceID     string `json:"service_id,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	Notes         string `json:"notes,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
}

type providerItem struct {
	ProviderID string `json:"provider_id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Specialty  string `json:"specialty,omitempty"`
	Timezone   string `json:"timezone"`
}

type serviceItem struct {
	ServiceID       string `json:"service_id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
}

func toBookingItem(b model.Booking) bookingItem {
	return bookingItem{
		BookingID:     b.ID,
		ProviderID:    b.ProviderID,
		ServiceID:     b.ServiceID,
		Title:         b.Title,
		Description:   b.Description,
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		CustomerPhone: b.CustomerPhone,
		Notes:         b.Notes,
		StartTime:     b.StartTime.UTC().Format(time.RFC3339),
		EndTime:       b.EndTime.UTC().Format(time.RFC3339),
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *BookingHandler) Providers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	providers, err := h.engine.ListProviders(r.Context())
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	items := make([]providerItem, 0, len(providers))
	for _, p := range providers {
		items = append(items, providerItem{
			ProviderID: p.ID,
			Name:       p.Name,
			Email:      p.Email,
			Phone:      p.Phone,
			Specialty:  p.Specialty,
			Timezone:   p.Timezone,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Services(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	services, err := h.engine.ListServices(r.Context())
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		items = append(items, serviceItem{
			ServiceID:       s.ID,
			Name:            s.Name,
			Description:     s.Description,
			DurationMinutes: s.DurationMinutes,
			Price:           s.Price,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// Slots accepts either date or start_date/end_date (YYYY-MM-DD). Without dates it
// covers the provider's local today and the following seven days.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	if providerID == "" {
		writeError(w, http.StatusBadRequest, "provider_id required")
		return
	}

	dateRange, err := parseDateRange(q.Get("date"), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slotMinutes := 0
	if raw := strings.TrimSpace(q.Get("slot_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "slot_minutes must be a positive integer")
			return
		}
		slotMinutes = n
	}

	slots, err := h.engine.GetAvailableSlots(r.Context(), scheduling.SlotQuery{
		ProviderID:  providerID,
		Range:       dateRange,
		SlotMinutes: slotMinutes,
		ServiceID:   strings.TrimSpace(q.Get("service_id")),
	})
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}

	if onlyAvailable, _ := strconv.ParseBool(q.Get("only_available")); onlyAvailable {
		slots = availability.FilterAvailable(slots)
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.Format(time.RFC3339),
			EndTime:   s.End.Format(time.RFC3339),
			Available: s.Available,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// parseDateRange leaves missing bounds zero so the engine can default them in the
// provider's timezone.
func parseDateRange(date, startDate, endDate string) (model.DateRange, error) {
	date, startDate, endDate = strings.TrimSpace(date), strings.TrimSpace(startDate), strings.TrimSpace(endDate)
	if date != "" {
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			return model.DateRange{}, errBadRequest("date must be YYYY-MM-DD")
		}
		return model.DateRange{Start: d, End: d}, nil
	}

	var rng model.DateRange
	if startDate != "" {
		d, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return model.DateRange{}, errBadRequest("start_date must be YYYY-MM-DD")
		}
		rng.Start = d
	}
	if endDate != "" {
		d, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return model.DateRange{}, errBadRequest("end_date must be YYYY-MM-DD")
		}
		rng.End = d
	}
	return rng, nil
}

type errBadRequest string

func (e errBadRequest) Error() string { return string(e) }

// Bookings serves GET (list) and POST (create) on the collection.
func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.List(w, r)
	case http.MethodPost:
		h.Create(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	startTime, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}
	endTime, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time")
		return
	}

	created, err := h.engine.ValidateAndCreateBooking(r.Context(), model.Booking{
		ProviderID:     strings.TrimSpace(req.ProviderID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
		Notes:          strings.TrimSpace(req.Notes),
		StartTime:      startTime,
		EndTime:        endTime,
		Status:         model.Status(strings.TrimSpace(req.Status)),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingItem(created))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	filter := model.BookingFilter{
		ProviderID: strings.TrimSpace(q.Get("provider_id")),
		Limit:      100,
	}
	if raw := strings.TrimSpace(q.Get("start_date")); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
			return
		}
		filter.From = d
	}
	if raw := strings.TrimSpace(q.Get("end_date")); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
			return
		}
		filter.To = d.AddDate(0, 0, 1)
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Statuses = []model.Status{st}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}

	bookings, err := h.engine.ListBookings(r.Context(), filter)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Detail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}
	b, err := h.engine.GetBooking(r.Context(), id)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

// Update edits a booking's details and moves it when start_time or end_time is given.
func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req updateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		writeError(w, http.StatusBadRequest, "booking_id required")
		return
	}
	if req.Status != nil {
		writeError(w, http.StatusBadRequest, "status changes go through /api/v1/bookings/status")
		return
	}

	patch := scheduling.BookingPatch{
		ServiceID:     req.ServiceID,
		Title:         req.Title,
		Description:   req.Description,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
	}
	var err error
	if patch.StartTime, err = parseInstant(req.StartTime); err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}
	if patch.EndTime, err = parseInstant(req.EndTime); err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time")
		return
	}

	b, err := h.engine.UpdateBooking(r.Context(), req.BookingID, patch)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

func parseInstant(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" || strings.TrimSpace(req.Status) == "" {
		writeError(w, http.StatusBadRequest, "booking_id and status are required")
		return
	}

	b, err := h.engine.UpdateBookingStatus(r.Context(), req.BookingID, model.Status(strings.TrimSpace(req.Status)))
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		writeError(w, http.StatusBadRequest, "booking_id required")
		return
	}

	b, err := h.engine.CancelBooking(r.Context(), req.BookingID)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b))
}
