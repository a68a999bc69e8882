package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const readyCheckTimeout = 2 * time.Second

type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewBaseMuxWithReady serves /healthz and /readyz. Readiness runs all checks in
// parallel and reports each dependency by name.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, probeReport{Status: "ok"})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		report, ready := runChecks(r.Context(), checks)
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeProbe(w, status, report)
	})
	return mux
}

func runChecks(ctx context.Context, checks []ReadyCheck) (probeReport, bool) {
	results := make([]string, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		if check.Check == nil {
			results[i] = "ok"
			continue
		}
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
			defer cancel()
			if err := check.Check(checkCtx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	report := probeReport{Status: "ready", Checks: make(map[string]string, len(checks))}
	ready := true
	for i, check := range checks {
		name := check.Name
		if name == "" {
			name = fmt.Sprintf("dependency_%d", i+1)
		}
		report.Checks[name] = results[i]
		if results[i] != "ok" {
			ready = false
		}
	}
	if !ready {
		report.Status = "unavailable"
	}
	return report, ready
}

func writeProbe(w http.ResponseWriter, status int, report probeReport) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
