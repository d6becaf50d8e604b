package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sudoqu/sudoqu/internal/session"
	"github.com/sudoqu/sudoqu/internal/sudoku"
	"github.com/sudoqu/sudoqu/internal/wire"
)

func newTestServer(t *testing.T) (*session.Coordinator, *httptest.Server) {
	t.Helper()
	log := zaptest.NewLogger(t)
	c := session.New(log, sudoku.NewGenerator(1))
	c.SetTeams([]string{"red", "blue"})
	require.NoError(t, c.Listen("127.0.0.1:0"))
	t.Cleanup(c.Stop)

	srv := httptest.NewServer(SetupRoutes(c, log))
	t.Cleanup(srv.Close)
	return c, srv
}

func TestHealthz(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionView(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/session")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view session.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "not-playing", view.Mode)
	assert.False(t, view.Active)
	assert.Empty(t, view.Players)
}

func TestWebSocketSpeaksTheLineProtocol(t *testing.T) {
	_, srv := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	nc := websocket.NetConn(ctx, conn, websocket.MessageText)
	sc := bufio.NewScanner(nc)

	readMsg := func() *wire.Message {
		require.True(t, sc.Scan(), "expected a protocol line over the websocket")
		msg, err := wire.Decode(sc.Bytes())
		require.NoError(t, err)
		return msg
	}

	assign := readMsg()
	require.Equal(t, wire.KindAssignID, assign.Kind)
	assert.Equal(t, []string{"red", "blue"}, assign.Teams)
	assert.Equal(t, "red", assign.Team)

	require.NoError(t, wire.Encode(nc, &wire.Message{
		Kind:    wire.KindHandshake,
		ID:      assign.ID,
		Name:    "Websocket Player",
		Version: wire.ProtocolVersion,
	}))

	// The handshake acceptance comes back as our own new-player broadcast.
	for {
		msg := readMsg()
		if msg.Kind == wire.KindNewPlayer {
			assert.Equal(t, assign.ID, msg.ID)
			assert.Equal(t, "Websocket Player", msg.Name)
			break
		}
	}
}
