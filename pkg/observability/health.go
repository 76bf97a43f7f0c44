package observability

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"
)

// ReadyCheck is a named readiness check. Check returns nil when the
// subsystem is ready.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthBody struct {
	Status string            `json:"status"`
	Failed map[string]string `json:"failed,omitempty"`
}

// HealthHandler returns an [http.Handler] for liveness checks at /healthz.
// It always returns HTTP 200 with {"status":"ok"}.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeHealthJSON(rw, http.StatusOK, healthBody{Status: healthStatusOK})
	})
}

// ReadyHandler returns an [http.Handler] for readiness checks at /readyz.
// Every check runs; if any fail the response is HTTP 503 listing the failed
// check names and their errors.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		failed := make(map[string]string)

		for _, check := range checks {
			err := check.Check(hr.Context())
			if err != nil {
				failed[check.Name] = err.Error()
			}
		}

		if len(failed) > 0 {
			writeHealthJSON(rw, http.StatusServiceUnavailable, healthBody{Status: healthStatusUnavailable, Failed: failed})

			return
		}

		writeHealthJSON(rw, http.StatusOK, healthBody{Status: healthStatusOK})
	})
}

func writeHealthJSON(rw http.ResponseWriter, code int, body healthBody) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	err := json.NewEncoder(rw).Encode(body)
	if err != nil {
		return
	}
}
