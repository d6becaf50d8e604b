package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sudoqu/sudoqu/internal/session"
)

// SetupRoutes builds the HTTP surface next to the raw TCP port: a health
// probe, a read-only session view, and a websocket transport for clients
// that cannot open plain sockets.
func SetupRoutes(c *session.Coordinator, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/session", SessionView(c))
	r.Get("/ws", WebSocket(c, log))
	return r
}
