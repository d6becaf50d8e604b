// Package session implements the authoritative session coordinator. All
// state lives behind a single goroutine loop fed by a channel inbox; reader
// and writer goroutines per connection translate between sockets and inbox
// messages, so no lock guards the roster or the boards.
package session

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/sudoqu/sudoqu/internal/game"
	"github.com/sudoqu/sudoqu/internal/sudoku"
	"github.com/sudoqu/sudoqu/internal/wire"
)

type coordMsg interface{ isCoordMsg() }

type connAccepted struct{ conn *Conn }

type connLost struct{ conn *Conn }

type clientLine struct {
	conn *Conn
	msg  *wire.Message
}

type startGameReq struct {
	difficulty sudoku.Difficulty
	mode       game.Mode
	reply      chan error
}

type setTeamsReq struct{ teams []string }

type stopReq struct{ done chan struct{} }

type viewReq struct{ reply chan View }

func (connAccepted) isCoordMsg() {}
func (connLost) isCoordMsg()     {}
func (clientLine) isCoordMsg()   {}
func (startGameReq) isCoordMsg() {}
func (setTeamsReq) isCoordMsg()  {}
func (stopReq) isCoordMsg()      {}
func (viewReq) isCoordMsg()      {}

// Coordinator owns the session: roster, boards, puzzle, mode. It listens on
// the protocol port, hands out identities and keeps every client's view
// consistent.
type Coordinator struct {
	log      *zap.Logger
	provider sudoku.Provider

	inbox chan coordMsg
	state *game.State

	conns  map[*Conn]game.PlayerID
	byID   map[game.PlayerID]*Conn
	nextID game.PlayerID

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
}

func New(log *zap.Logger, provider sudoku.Provider) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		log:      log,
		provider: provider,
		inbox:    make(chan coordMsg, 64),
		state:    game.NewState(),
		conns:    make(map[*Conn]game.PlayerID),
		byID:     make(map[game.PlayerID]*Conn),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start binds the fixed protocol port and begins accepting connections. With
// acceptRemote false only loopback clients can join. A bind failure is fatal
// to the session and reported, not retried.
func (c *Coordinator) Start(acceptRemote bool) error {
	host := "127.0.0.1"
	if acceptRemote {
		host = "0.0.0.0"
	}
	return c.Listen(fmt.Sprintf("%s:%d", host, wire.DefaultPort))
}

// Listen is Start with an explicit address, used by tests to grab an
// ephemeral port.
func (c *Coordinator) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("session: bind %s: %w", addr, err)
	}
	c.ln = ln
	c.log.Info("listening", zap.String("addr", ln.Addr().String()))
	go c.loop()
	go c.acceptLoop()
	return nil
}

// Addr reports the bound listener address.
func (c *Coordinator) Addr() net.Addr {
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Stop tells every client the server is going down, then releases the
// listener and all connections.
func (c *Coordinator) Stop() {
	done := make(chan struct{})
	if c.post(stopReq{done: done}) {
		<-done
	}
}

// SetTeams configures the team labels offered to players.
func (c *Coordinator) SetTeams(teams []string) {
	c.post(setTeamsReq{teams: teams})
}

// StartGame generates a puzzle of the requested difficulty and starts a game
// in the given mode. Generation is retried until the provider reports the
// requested difficulty.
func (c *Coordinator) StartGame(ctx context.Context, d sudoku.Difficulty, mode game.Mode) error {
	reply := make(chan error, 1)
	if !c.post(startGameReq{difficulty: d, mode: mode, reply: reply}) {
		return c.ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View snapshots the session for tests and the HTTP API without touching
// coordinator state from outside its loop.
func (c *Coordinator) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !c.post(viewReq{reply: reply}) {
		return View{}, c.ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// ServeConn runs one client connection to completion. The TCP accept loop
// and the websocket transport both funnel into here.
func (c *Coordinator) ServeConn(raw net.Conn) {
	cn := newConn(raw, c.log)
	go cn.writeLoop()
	if !c.post(connAccepted{conn: cn}) {
		raw.Close()
		return
	}
	cn.readLines(func(msg *wire.Message) bool {
		return c.post(clientLine{conn: cn, msg: msg})
	})
	c.post(connLost{conn: cn})
}

func (c *Coordinator) post(m coordMsg) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Coordinator) acceptLoop() {
	for {
		raw, err := c.ln.Accept()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Warn("accept failed", zap.Error(err))
			}
			return
		}
		go c.ServeConn(raw)
	}
}

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case m := <-c.inbox:
			switch msg := m.(type) {
			case connAccepted:
				c.handleConnect(msg.conn)
			case connLost:
				c.teardown(msg.conn, false)
			case clientLine:
				c.dispatch(msg.conn, msg.msg)
			case startGameReq:
				msg.reply <- c.handleStartGame(msg.difficulty, msg.mode)
			case setTeamsReq:
				c.state.SetTeams(msg.teams)
			case viewReq:
				msg.reply <- c.view()
			case stopReq:
				c.handleStop()
				close(msg.done)
				return
			}
		}
	}
}

// handleConnect assigns the next identity and brings the new arrival up to
// date: its id, the team list, its auto-assigned team, then one new-player
// notice per existing identity so it can build its roster before anyone
// hears about it.
func (c *Coordinator) handleConnect(cn *Conn) {
	c.nextID++
	id := c.nextID

	others := c.state.Players()
	p := c.state.AddPlayer(id)
	c.conns[cn] = id
	c.byID[id] = cn

	cn.send(&wire.Message{
		Kind:  wire.KindAssignID,
		ID:    int(id),
		Teams: c.state.Teams(),
		Team:  p.Team,
	})
	for _, other := range others {
		cn.send(&wire.Message{Kind: wire.KindNewPlayer, ID: int(other.ID), Name: other.Name})
	}
	cn.log.Info("player connected", zap.Int("player", int(id)))
}

// teardown removes a connection. Graceful teardown (client asked to leave)
// acknowledges first; abrupt teardown (socket died) skips straight to the
// notice. Either way the departing name is broadcast before the roster
// forgets it.
func (c *Coordinator) teardown(cn *Conn, graceful bool) {
	id, ok := c.conns[cn]
	if !ok {
		return
	}
	p, _ := c.state.Player(id)
	name := ""
	if p != nil {
		name = p.Name
	}

	if graceful {
		cn.send(&wire.Message{Kind: wire.KindDisconnectOK})
	}
	delete(c.conns, cn)
	delete(c.byID, id)
	close(cn.out)
	c.state.RemovePlayer(id)

	c.broadcast(&wire.Message{Kind: wire.KindDisconnect, Name: name}, nil)
	c.sendStatusChanges()
	cn.log.Info("player disconnected", zap.Int("player", int(id)), zap.Bool("graceful", graceful))
}

func (c *Coordinator) dispatch(cn *Conn, msg *wire.Message) {
	id, ok := c.conns[cn]
	if !ok {
		return // already torn down
	}
	p, ok := c.state.Player(id)
	if !ok {
		return
	}

	switch msg.Kind {
	case wire.KindHandshake:
		c.handleHandshake(cn, p, msg)
	case wire.KindChat:
		// Never trust a client-supplied name field here.
		c.broadcast(&wire.Message{Kind: wire.KindChat, Text: msg.Text, Name: p.Name}, cn)
	case wire.KindDisconnect:
		c.teardown(cn, true)
	case wire.KindCellUpdate:
		c.handleCellUpdate(cn, p, msg)
	case wire.KindRename:
		c.handleRename(p, msg)
	case wire.KindFocus:
		c.handleFocus(p, msg)
	case wire.KindTeamChange:
		c.handleTeamChange(cn, p, msg)
	case wire.KindNotes:
		c.handleNotes(p, msg)
	default:
		cn.log.Debug("unhandled message", zap.Int("kind", int(msg.Kind)))
	}
}

func (c *Coordinator) handleHandshake(cn *Conn, p *game.Player, msg *wire.Message) {
	if msg.Version != wire.ProtocolVersion {
		cn.send(&wire.Message{
			Kind:          wire.KindBadVersion,
			ServerVersion: wire.ProtocolVersion,
			ClientVersion: msg.Version,
		})
		// The connection stays open; the client surfaces the error and
		// closes its own side.
		return
	}

	if msg.ID == int(p.ID) {
		p.Name = c.state.ResolveName(msg.Name, p.ID)
		c.broadcast(&wire.Message{Kind: wire.KindNewPlayer, ID: int(p.ID), Name: p.Name}, nil)
	}

	if c.state.Active() {
		c.pushBoard(cn, p)
	}
	c.sendStatusChanges()
}

func (c *Coordinator) handleCellUpdate(cn *Conn, p *game.Player, msg *wire.Message) {
	if !c.state.Active() {
		return
	}

	applied := false
	if msg.Values != nil {
		givens := c.state.Puzzle().Givens
		for pos, val := range msg.Values {
			// Full-board batches carry the givens too; those positions are
			// not updates.
			if pos < len(givens) && givens[pos] != 0 {
				continue
			}
			if c.applyCell(cn, p, pos, val) {
				applied = true
			}
		}
	} else if msg.Pos != nil && msg.Val != nil {
		applied = c.applyCell(cn, p, *msg.Pos, *msg.Val)
	}
	if !applied {
		return
	}

	if c.state.Mode() == game.ModeCoop {
		c.sendToTeammates(p, msg)
	}
	c.sendStatusChanges()
}

// applyCell writes one cell and runs the win check. Returns whether the
// write was accepted.
func (c *Coordinator) applyCell(cn *Conn, p *game.Player, pos, val int) bool {
	if err := c.state.Apply(p.ID, pos, val); err != nil {
		cn.log.Warn("rejected cell update",
			zap.Int("pos", pos), zap.Int("val", val), zap.Error(err))
		return false
	}
	c.checkWinner(p)
	return true
}

// checkWinner broadcasts the one-shot winner message the first time an
// entity's board matches the solution.
func (c *Coordinator) checkWinner(p *game.Player) {
	e, ok := c.state.EntityFor(p.ID)
	if !ok || !c.state.Done(e.Board) {
		return
	}
	if !c.state.MarkWon(e.Key) {
		return
	}
	win := &wire.Message{Kind: wire.KindWinner}
	if c.state.Mode() == game.ModeCoop {
		win.Team = e.Team
	} else {
		win.Player = e.Player
	}
	c.broadcast(win, nil)
	c.log.Info("game over", zap.String("winner", e.Name))
}

func (c *Coordinator) handleRename(p *game.Player, msg *wire.Message) {
	old := p.Name
	p.Name = c.state.ResolveName(msg.NewName, p.ID)
	c.broadcast(&wire.Message{
		Kind:    wire.KindRename,
		ID:      int(p.ID),
		OldName: old,
		NewName: p.Name,
	}, nil)
	c.sendStatusChanges()
}

// handleFocus relays the focused cell to teammates. Focus is transient: it
// is never stored and means nothing in versus mode.
func (c *Coordinator) handleFocus(p *game.Player, msg *wire.Message) {
	if c.state.Mode() != game.ModeCoop || msg.Pos == nil {
		return
	}
	c.sendToTeammates(p, &wire.Message{Kind: wire.KindFocus, ID: int(p.ID), Pos: msg.Pos})
}

func (c *Coordinator) handleTeamChange(cn *Conn, p *game.Player, msg *wire.Message) {
	if p.Team == msg.Team {
		return
	}
	p.Team = msg.Team
	c.broadcast(&wire.Message{Kind: wire.KindTeamChange, Player: p.Name, Team: p.Team}, nil)

	if c.state.Active() {
		c.pushBoard(cn, p)
		// Whatever cell the mover had focused no longer belongs to its old
		// team's view.
		c.broadcast(&wire.Message{Kind: wire.KindFocus, ID: int(p.ID), Pos: wire.Int(-1)}, cn)
	}
	c.sendStatusChanges()
}

func (c *Coordinator) handleNotes(p *game.Player, msg *wire.Message) {
	if c.state.Mode() != game.ModeCoop || msg.Pos == nil {
		return
	}
	c.state.SetNotes(p.Team, *msg.Pos, msg.Notes)
	c.sendToTeammates(p, &wire.Message{Kind: wire.KindNotes, ID: int(p.ID), Pos: msg.Pos, Notes: msg.Notes})
}

func (c *Coordinator) handleStartGame(d sudoku.Difficulty, mode game.Mode) error {
	puzzle, err := c.generate(d)
	if err != nil {
		return err
	}
	c.state.StartGame(puzzle, mode)

	if mode == game.ModeCoop {
		for _, t := range c.state.Teams() {
			members := c.state.TeamMembers(t)
			if len(members) == 0 {
				continue
			}
			msg := c.newGameMessage(t)
			for _, m := range members {
				c.sendToPlayer(m.ID, msg)
			}
		}
	} else {
		for _, p := range c.state.Players() {
			c.sendToPlayer(p.ID, c.newGameMessage(""))
		}
	}

	c.log.Info("game started",
		zap.String("mode", mode.String()),
		zap.String("difficulty", puzzle.Difficulty.String()),
		zap.Int("givens", puzzle.GivenCount()))
	c.sendStatusChanges()
	return nil
}

// generate retries the provider until it reports the requested difficulty;
// the provider does not guarantee it on the first attempt.
func (c *Coordinator) generate(d sudoku.Difficulty) (*sudoku.Puzzle, error) {
	for {
		puzzle, err := c.provider.Generate(c.ctx, d)
		if err != nil {
			return nil, fmt.Errorf("session: generate puzzle: %w", err)
		}
		if puzzle.Difficulty == d {
			return puzzle, nil
		}
		c.log.Debug("regenerating puzzle",
			zap.String("want", d.String()), zap.String("got", puzzle.Difficulty.String()))
	}
}

func (c *Coordinator) handleStop() {
	c.broadcast(&wire.Message{Kind: wire.KindServerShutdown}, nil)
	for cn := range c.conns {
		close(cn.out)
	}
	c.conns = make(map[*Conn]game.PlayerID)
	c.byID = make(map[game.PlayerID]*Conn)
	if c.ln != nil {
		c.ln.Close()
	}
	c.cancel()
	c.log.Info("session stopped")
}

// newGameMessage builds the board-initialization message. The board field is
// only present in coop: versus clients start from the givens on their own.
func (c *Coordinator) newGameMessage(team string) *wire.Message {
	msg := &wire.Message{
		Kind:  wire.KindNewGame,
		Mode:  int(c.state.Mode()),
		Given: c.state.Puzzle().Givens,
	}
	if c.state.Mode() == game.ModeCoop {
		if board, ok := c.state.BoardForTeam(team); ok {
			// Copied: the writer goroutine marshals after this board may
			// have changed again.
			msg.Board = append([]int(nil), board...)
		}
	}
	return msg
}

// pushBoard sends a player its current board: the team board in coop, the
// givens in versus.
func (c *Coordinator) pushBoard(cn *Conn, p *game.Player) {
	team := ""
	if c.state.Mode() == game.ModeCoop {
		team = p.Team
	}
	cn.send(c.newGameMessage(team))
}

// sendStatusChanges broadcasts every active entity's progress. The list is
// deliberately unsorted; clients order it for display.
func (c *Coordinator) sendStatusChanges() {
	entities := c.state.Entities()
	changes := make([]wire.StatusChange, 0, len(entities))
	for _, e := range entities {
		changes = append(changes, wire.StatusChange{
			Name:  e.Name,
			Count: c.state.Count(e.Board),
			Done:  c.state.Done(e.Board),
		})
	}
	c.broadcast(&wire.Message{
		Kind:       wire.KindStatus,
		Changes:    changes,
		CountTotal: c.state.TotalBlanks(),
	}, nil)
}

// broadcast queues a message on every connection except the given one.
// Connections whose outbox is full have stopped draining and are dropped
// after the fan-out.
func (c *Coordinator) broadcast(msg *wire.Message, except *Conn) {
	var stale []*Conn
	for cn := range c.conns {
		if cn == except {
			continue
		}
		if !cn.send(msg) {
			stale = append(stale, cn)
		}
	}
	for _, cn := range stale {
		cn.log.Warn("dropping slow client")
		c.teardown(cn, false)
	}
}

func (c *Coordinator) sendToPlayer(id game.PlayerID, msg *wire.Message) {
	if cn, ok := c.byID[id]; ok {
		cn.send(msg)
	}
}

func (c *Coordinator) sendToTeammates(p *game.Player, msg *wire.Message) {
	for _, mate := range c.state.Teammates(p.ID) {
		c.sendToPlayer(mate.ID, msg)
	}
}
