package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type healthResponse struct {
	Status   string            `json:"status"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Healthz reports liveness only.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Readyz runs every check with its own timeout and reports 503 when any fails.
func Readyz(timeout time.Duration, checks ...ReadyCheck) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		failures := map[string]string{}
		for _, check := range checks {
			if check.Check == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := check.Check(ctx)
			cancel()
			if err != nil {
				name := check.Name
				if name == "" {
					name = "dependency"
				}
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			writeHealth(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Failures: failures})
			return
		}
		writeHealth(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

func writeHealth(w http.ResponseWriter, status int, body healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
