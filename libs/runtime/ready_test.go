package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReadyz(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	var report probeReport
	if err := json.Unmarshal(rw.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Status != "unavailable" || report.Checks["db"] != "ok" || report.Checks["redis"] != "connection refused" {
		t.Fatalf("unexpected report: %+v", report)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rw.Code)
	}
}

func TestReadyzRunsChecksInParallel(t *testing.T) {
	slow := func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "db", Check: slow},
		ReadyCheck{Name: "redis", Check: slow},
		ReadyCheck{Name: "kafka", Check: slow},
	)

	start := time.Now()
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("checks appear to run sequentially (%s)", elapsed)
	}
}

func TestReadyzTimesOutSlowCheck(t *testing.T) {
	mux := NewBaseMuxWithReady(ReadyCheck{Name: "db", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 50*time.Millisecond)
	defer cancel()
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req.WithContext(ctx))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for a check that never returns, got %d", rw.Code)
	}
}
