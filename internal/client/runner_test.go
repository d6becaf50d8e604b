package client

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sudoqu/sudoqu/internal/wire"
)

// fakeServer accepts one connection and lets the test script both directions
// of the protocol by hand.
type fakeServer struct {
	ln   net.Listener
	conn net.Conn
	sc   *bufio.Scanner
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return &fakeServer{ln: ln}
}

func (s *fakeServer) accept(t *testing.T) {
	t.Helper()
	conn, err := s.ln.Accept()
	require.NoError(t, err)
	s.conn = conn
	s.sc = bufio.NewScanner(conn)
}

func (s *fakeServer) send(t *testing.T, msg *wire.Message) {
	t.Helper()
	require.NoError(t, wire.Encode(s.conn, msg))
}

func (s *fakeServer) recv(t *testing.T) *wire.Message {
	t.Helper()
	s.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.True(t, s.sc.Scan(), "expected a line from the runner")
	msg, err := wire.Decode(s.sc.Bytes())
	require.NoError(t, err)
	return msg
}

func nextEvent(t *testing.T, r *Runner) Event {
	t.Helper()
	select {
	case ev, ok := <-r.Events():
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestHandshakeSequence(t *testing.T) {
	srv := newFakeServer(t)
	r := New(zaptest.NewLogger(t), "Alice")
	require.NoError(t, r.Connect(srv.ln.Addr().String()))
	srv.accept(t)

	assert.Equal(t, StateAwaitingIdentity, r.State())

	srv.send(t, &wire.Message{Kind: wire.KindAssignID, ID: 7, Teams: []string{"red"}, Team: "red"})

	hs := srv.recv(t)
	assert.Equal(t, wire.KindHandshake, hs.Kind)
	assert.Equal(t, 7, hs.ID)
	assert.Equal(t, "Alice", hs.Name)
	assert.Equal(t, wire.ProtocolVersion, hs.Version)

	ident := nextEvent(t, r).(IdentityAssigned)
	assert.Equal(t, 7, ident.ID)
	assert.Equal(t, "red", ident.Team)
	assert.Equal(t, StateHandshaking, r.State())

	// The server resolved a name collision; the runner adopts the result.
	srv.send(t, &wire.Message{Kind: wire.KindNewPlayer, ID: 7, Name: "(1) Alice"})
	joined := nextEvent(t, r).(PlayerJoined)
	assert.Equal(t, "(1) Alice", joined.Name)
	assert.Equal(t, StateActive, r.State())
	assert.Equal(t, "(1) Alice", r.Name())
}

func TestStatusSortedForDisplay(t *testing.T) {
	srv := newFakeServer(t)
	r := New(zaptest.NewLogger(t), "Alice")
	require.NoError(t, r.Connect(srv.ln.Addr().String()))
	srv.accept(t)

	// The coordinator sends the list unsorted; display order is ours.
	srv.send(t, &wire.Message{
		Kind: wire.KindStatus,
		Changes: []wire.StatusChange{
			{Name: "Alpha", Count: 1},
			{Name: "Zed", Count: 4},
			{Name: "Beta", Count: 1},
		},
		CountTotal: 50,
	})

	status := nextEvent(t, r).(StatusChanged)
	require.Len(t, status.Changes, 3)
	assert.Equal(t, "Zed", status.Changes[0].Name)
	assert.Equal(t, "Beta", status.Changes[1].Name, "count ties break by name descending")
	assert.Equal(t, "Alpha", status.Changes[2].Name)
	assert.Equal(t, 50, status.CountTotal)
}

func TestBoardMirrorFollowsUpdates(t *testing.T) {
	srv := newFakeServer(t)
	r := New(zaptest.NewLogger(t), "Alice")
	require.NoError(t, r.Connect(srv.ln.Addr().String()))
	srv.accept(t)

	given := make([]int, 81)
	given[0] = 9
	srv.send(t, &wire.Message{Kind: wire.KindNewGame, Mode: 1, Given: given})
	board := nextEvent(t, r).(BoardReplaced)
	assert.Equal(t, given, board.Board, "versus board starts from the givens")

	srv.send(t, &wire.Message{Kind: wire.KindCellUpdate, Pos: wire.Int(5), Val: wire.Int(3)})
	vals := nextEvent(t, r).(ValuesChanged)
	assert.Equal(t, map[int]int{5: 3}, vals.Values)
	assert.Equal(t, 3, r.Board()[5])

	// Local sends update the mirror too.
	r.SendCellUpdate(6, 4)
	out := srv.recv(t)
	assert.Equal(t, wire.KindCellUpdate, out.Kind)
	assert.Equal(t, 4, r.Board()[6])
}

func TestDisconnectAckClosesRunner(t *testing.T) {
	srv := newFakeServer(t)
	r := New(zaptest.NewLogger(t), "Alice")
	require.NoError(t, r.Connect(srv.ln.Addr().String()))
	srv.accept(t)

	r.Disconnect()
	req := srv.recv(t)
	assert.Equal(t, wire.KindDisconnect, req.Kind)

	srv.send(t, &wire.Message{Kind: wire.KindDisconnectOK})
	done := nextEvent(t, r).(Disconnected)
	assert.NoError(t, done.Err)
	assert.Equal(t, StateClosed, r.State())

	// The stream ends after the terminal event.
	_, ok := <-r.Events()
	assert.False(t, ok)
}

func TestAbruptCloseSurfacesError(t *testing.T) {
	srv := newFakeServer(t)
	r := New(zaptest.NewLogger(t), "Alice")
	require.NoError(t, r.Connect(srv.ln.Addr().String()))
	srv.accept(t)

	srv.conn.Close()
	done := nextEvent(t, r).(Disconnected)
	assert.Error(t, done.Err, "a dropped socket is not a graceful exit")
}

func TestVersionRejectedLeavesSocketOpen(t *testing.T) {
	srv := newFakeServer(t)
	r := New(zaptest.NewLogger(t), "Alice")
	require.NoError(t, r.Connect(srv.ln.Addr().String()))
	srv.accept(t)

	srv.send(t, &wire.Message{Kind: wire.KindBadVersion, ServerVersion: 4, ClientVersion: 3})
	rejected := nextEvent(t, r).(VersionRejected)
	assert.Equal(t, 4, rejected.ServerVersion)
	assert.Equal(t, 3, rejected.ClientVersion)
	assert.NotEqual(t, StateClosed, r.State())
}

func TestConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	r := New(zaptest.NewLogger(t), "Alice")
	assert.Error(t, r.Connect(addr))
	assert.Equal(t, StateClosed, r.State())
}

func TestMalformedLinesIgnored(t *testing.T) {
	srv := newFakeServer(t)
	r := New(zaptest.NewLogger(t), "Alice")
	require.NoError(t, r.Connect(srv.ln.Addr().String()))
	srv.accept(t)

	srv.conn.Write([]byte("garbage\n{\"no_kind\":1}\n"))
	srv.send(t, &wire.Message{Kind: wire.KindChat, Name: "Bob", Text: "hi"})

	chat := nextEvent(t, r).(ChatReceived)
	assert.Equal(t, "hi", chat.Text)
}
