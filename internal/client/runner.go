// Package client drives the session protocol from a single player's side:
// handshake, a local mirror of roster and board, and an event stream for the
// presentation layer. A closed runner cannot reconnect; rejoining means a
// new runner.
package client

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sudoqu/sudoqu/internal/wire"
)

// State tracks the runner's lifecycle. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateAwaitingIdentity
	StateHandshaking
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingIdentity:
		return "awaiting-identity"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

const writeTimeout = 5 * time.Second

// Runner is the client-side protocol peer.
type Runner struct {
	log  *zap.Logger
	conn net.Conn

	out    chan *wire.Message
	events chan Event
	done   chan struct{}
	closed sync.Once
	state  atomic.Int32

	mu     sync.Mutex
	id     int
	name   string
	team   string
	teams  []string
	roster map[int]string
	given  []int
	board  []int
	mode   int
}

// New prepares a runner that will introduce itself under the given name.
func New(log *zap.Logger, name string) *Runner {
	return &Runner{
		log:    log,
		out:    make(chan *wire.Message, 64),
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		name:   name,
		roster: make(map[int]string),
	}
}

// Connect dials the session and starts the protocol goroutines. A bare host
// gets the default port appended.
func (r *Runner) Connect(addr string) error {
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, wire.DefaultPort)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		r.state.Store(int32(StateClosed))
		return fmt.Errorf("client: connect %s: %w", addr, err)
	}
	r.conn = conn
	r.state.Store(int32(StateAwaitingIdentity))
	go r.writeLoop()
	go r.readLoop()
	return nil
}

// Events is the stream the presentation layer consumes. It is closed after
// the Disconnected event.
func (r *Runner) Events() <-chan Event { return r.events }

func (r *Runner) State() State { return State(r.state.Load()) }

// ID returns the server-assigned identity, 0 before assignment.
func (r *Runner) ID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Name returns the current display name as the server knows it.
func (r *Runner) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.name
}

// Team returns the runner's current team label.
func (r *Runner) Team() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.team
}

// Roster returns a copy of the known id to name mapping.
func (r *Runner) Roster() map[int]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]string, len(r.roster))
	for id, name := range r.roster {
		out[id] = name
	}
	return out
}

// Board returns a copy of the local board mirror, nil before a game starts.
func (r *Runner) Board() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.board == nil {
		return nil
	}
	return append([]int(nil), r.board...)
}

// Disconnect asks the server for a graceful teardown. The runner closes its
// socket when the acknowledgment arrives.
func (r *Runner) Disconnect() {
	r.enqueue(&wire.Message{Kind: wire.KindDisconnect})
}

func (r *Runner) SendChat(text string) {
	r.enqueue(&wire.Message{Kind: wire.KindChat, Text: text})
}

// SendCellUpdate reports one cell edit and applies it to the local mirror.
func (r *Runner) SendCellUpdate(pos, val int) {
	r.mu.Lock()
	if r.board != nil && pos >= 0 && pos < len(r.board) {
		r.board[pos] = val
	}
	r.mu.Unlock()
	r.enqueue(&wire.Message{Kind: wire.KindCellUpdate, Pos: wire.Int(pos), Val: wire.Int(val)})
}

// SendCellUpdates replaces the whole board in one message.
func (r *Runner) SendCellUpdates(values []int) {
	r.mu.Lock()
	r.board = append([]int(nil), values...)
	r.mu.Unlock()
	r.enqueue(&wire.Message{Kind: wire.KindCellUpdate, Values: append([]int(nil), values...)})
}

func (r *Runner) RequestRename(name string) {
	r.enqueue(&wire.Message{Kind: wire.KindRename, NewName: name})
}

func (r *Runner) RequestTeamChange(team string) {
	r.enqueue(&wire.Message{Kind: wire.KindTeamChange, Team: team})
}

// SendFocus advertises the cell being worked on; pass -1 to clear.
func (r *Runner) SendFocus(pos int) {
	r.mu.Lock()
	id := r.id
	r.mu.Unlock()
	r.enqueue(&wire.Message{Kind: wire.KindFocus, ID: id, Pos: wire.Int(pos)})
}

// SendNotes replaces the candidate annotations for a cell on our team.
func (r *Runner) SendNotes(pos int, candidates []int) {
	r.enqueue(&wire.Message{Kind: wire.KindNotes, Pos: wire.Int(pos), Notes: append([]int(nil), candidates...)})
}

func (r *Runner) enqueue(msg *wire.Message) {
	select {
	case r.out <- msg:
	case <-r.done:
	}
}

func (r *Runner) writeLoop() {
	for {
		select {
		case <-r.done:
			return
		case msg := <-r.out:
			r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wire.Encode(r.conn, msg); err != nil {
				r.log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}

func (r *Runner) readLoop() {
	scanner := bufio.NewScanner(r.conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		msg, err := wire.Decode(scanner.Bytes())
		if err != nil {
			continue
		}
		if !r.handle(msg) {
			r.close(nil)
			return
		}
	}
	err := scanner.Err()
	if r.State() != StateClosed && err == nil {
		// Peer vanished without an acknowledgment.
		err = io.EOF
	}
	r.close(err)
}

// close is idempotent; the first caller's error is surfaced.
func (r *Runner) close(err error) {
	r.closed.Do(func() {
		r.state.Store(int32(StateClosed))
		close(r.done)
		if r.conn != nil {
			r.conn.Close()
		}
		select {
		case r.events <- Disconnected{Err: err}:
		default:
		}
		close(r.events)
	})
}

// handle translates one inbound message into mirror updates and an event.
// Returns false when the message ends the session.
func (r *Runner) handle(msg *wire.Message) bool {
	switch msg.Kind {
	case wire.KindAssignID:
		r.mu.Lock()
		r.id = msg.ID
		r.teams = msg.Teams
		r.team = msg.Team
		name := r.name
		r.mu.Unlock()
		r.state.Store(int32(StateHandshaking))
		r.enqueue(&wire.Message{
			Kind:    wire.KindHandshake,
			ID:      msg.ID,
			Name:    name,
			Version: wire.ProtocolVersion,
		})
		r.emit(IdentityAssigned{ID: msg.ID, Teams: msg.Teams, Team: msg.Team})

	case wire.KindNewPlayer:
		r.mu.Lock()
		r.roster[msg.ID] = msg.Name
		if msg.ID == r.id {
			// Our own announcement doubles as handshake acceptance, under
			// whatever collision-free name the server settled on.
			r.name = msg.Name
		}
		own := msg.ID == r.id
		r.mu.Unlock()
		if own {
			r.state.Store(int32(StateActive))
		}
		r.emit(PlayerJoined{ID: msg.ID, Name: msg.Name})

	case wire.KindChat:
		r.emit(ChatReceived{Name: msg.Name, Text: msg.Text})

	case wire.KindStatus:
		changes := append([]wire.StatusChange(nil), msg.Changes...)
		sort.Slice(changes, func(i, j int) bool {
			if changes[i].Count == changes[j].Count {
				return changes[i].Name > changes[j].Name
			}
			return changes[i].Count > changes[j].Count
		})
		r.emit(StatusChanged{Changes: changes, CountTotal: msg.CountTotal})

	case wire.KindDisconnect:
		r.mu.Lock()
		for id, name := range r.roster {
			if name == msg.Name {
				delete(r.roster, id)
				break
			}
		}
		r.mu.Unlock()
		r.emit(PlayerLeft{Name: msg.Name})

	case wire.KindDisconnectOK, wire.KindServerShutdown:
		return false

	case wire.KindNewGame:
		board := msg.Board
		if board == nil {
			board = msg.Given
		}
		r.mu.Lock()
		r.given = append([]int(nil), msg.Given...)
		r.board = append([]int(nil), board...)
		r.mode = msg.Mode
		r.mu.Unlock()
		r.emit(BoardReplaced{Given: msg.Given, Board: board, Mode: msg.Mode})

	case wire.KindRename:
		r.mu.Lock()
		r.roster[msg.ID] = msg.NewName
		if msg.ID == r.id {
			r.name = msg.NewName
		}
		r.mu.Unlock()
		r.emit(NameChanged{ID: msg.ID, OldName: msg.OldName, NewName: msg.NewName})

	case wire.KindCellUpdate:
		values := make(map[int]int)
		if msg.Values != nil {
			for pos, val := range msg.Values {
				values[pos] = val
			}
		} else if msg.Pos != nil && msg.Val != nil {
			values[*msg.Pos] = *msg.Val
		}
		r.mu.Lock()
		for pos, val := range values {
			if r.board != nil && pos >= 0 && pos < len(r.board) {
				r.board[pos] = val
			}
		}
		r.mu.Unlock()
		r.emit(ValuesChanged{Values: values})

	case wire.KindFocus:
		if msg.Pos != nil {
			r.emit(FocusChanged{ID: msg.ID, Pos: *msg.Pos})
		}

	case wire.KindBadVersion:
		// Protocol mismatch is surfaced but the socket is left open; it is
		// the user's call to give up.
		r.emit(VersionRejected{ServerVersion: msg.ServerVersion, ClientVersion: msg.ClientVersion})

	case wire.KindTeamChange:
		r.mu.Lock()
		if msg.Player == r.name {
			r.team = msg.Team
		}
		r.mu.Unlock()
		r.emit(TeamChanged{Player: msg.Player, Team: msg.Team})

	case wire.KindNotes:
		if msg.Pos != nil {
			r.emit(NotesChanged{ID: msg.ID, Pos: *msg.Pos, Notes: msg.Notes})
		}

	case wire.KindWinner:
		winner := msg.Player
		if msg.Team != "" {
			winner = "Team " + msg.Team
		}
		r.emit(WinnerDeclared{Winner: winner})
	}
	return true
}

func (r *Runner) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		// A consumer that stopped draining loses notifications, not the
		// connection. The mirror getters stay correct.
		r.log.Warn("event dropped", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}
