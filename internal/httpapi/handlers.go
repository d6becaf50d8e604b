package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sudoqu/sudoqu/internal/session"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// SessionView serves a snapshot of the roster and game progress, handy for
// dashboards and for poking a running server.
func SessionView(c *session.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := c.View(r.Context())
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(view)
	}
}
