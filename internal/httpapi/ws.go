package httpapi

import (
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/sudoqu/sudoqu/internal/session"
)

// WebSocket bridges a websocket peer into the coordinator as an ordinary
// connection. The peer speaks the identical newline-delimited protocol, one
// message per text frame on the way out.
func WebSocket(c *session.Coordinator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// ServeConn blocks until the session is over, which keeps the
		// request (and the NetConn's context) alive exactly long enough.
		c.ServeConn(websocket.NetConn(r.Context(), conn, websocket.MessageText))
	}
}
