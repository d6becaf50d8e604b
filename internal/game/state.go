// Package game holds the authoritative session state: who is connected, what
// mode is being played, and the board every entity is filling in. The state
// is owned by exactly one coordinator loop and is never shared across
// goroutines.
package game

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sudoqu/sudoqu/internal/sudoku"
)

// Mode selects who owns a board: every player in versus, every team in coop.
// The numeric values are on the wire in new-game messages.
type Mode int

const (
	ModeNone   Mode = 0
	ModeVersus Mode = 1
	ModeCoop   Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModeVersus:
		return "versus"
	case ModeCoop:
		return "coop"
	default:
		return "not-playing"
	}
}

// ParseMode maps a user-supplied label to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "versus":
		return ModeVersus, nil
	case "coop", "cooperative":
		return ModeCoop, nil
	default:
		return ModeNone, fmt.Errorf("unknown mode %q", s)
	}
}

// PlayerID identifies a connected player. IDs increase monotonically and are
// never reused while the session runs.
type PlayerID int

// Player is one roster entry.
type Player struct {
	ID   PlayerID
	Name string
	Team string
}

var (
	ErrNoGame       = errors.New("game: no active game")
	ErrOutOfRange   = errors.New("game: cell position or value out of range")
	ErrGivenCell    = errors.New("game: cell is a given")
	ErrNoSuchPlayer = errors.New("game: unknown player")
)

// State is the aggregate session state.
type State struct {
	mode   Mode
	teams  []string
	active bool
	puzzle *sudoku.Puzzle

	players      map[PlayerID]*Player
	playerBoards map[PlayerID][]int
	coopBoards   map[string][]int
	notes        map[string]map[int][]int
	won          map[string]bool
}

func NewState() *State {
	return &State{
		players:      make(map[PlayerID]*Player),
		playerBoards: make(map[PlayerID][]int),
		coopBoards:   make(map[string][]int),
		notes:        make(map[string]map[int][]int),
		won:          make(map[string]bool),
	}
}

func (s *State) Mode() Mode             { return s.mode }
func (s *State) Active() bool           { return s.active }
func (s *State) Puzzle() *sudoku.Puzzle { return s.puzzle }
func (s *State) Teams() []string        { return s.teams }

// SetTeams replaces the configured team labels. Expected before players
// connect; already-assigned teams are left alone.
func (s *State) SetTeams(teams []string) {
	s.teams = append([]string(nil), teams...)
}

// AddPlayer registers a new identity with an empty name. If teams are
// configured the player lands on the first one.
func (s *State) AddPlayer(id PlayerID) *Player {
	p := &Player{ID: id}
	if len(s.teams) > 0 {
		p.Team = s.teams[0]
	}
	s.players[id] = p
	return p
}

// RemovePlayer drops an identity and, in versus mode, its board. The name
// becomes available again immediately.
func (s *State) RemovePlayer(id PlayerID) {
	delete(s.players, id)
	delete(s.playerBoards, id)
}

func (s *State) Player(id PlayerID) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// Players lists the roster ordered by id.
func (s *State) Players() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolveName returns the requested name if no other connected player holds
// it, otherwise the first free "(n) name" variant.
func (s *State) ResolveName(requested string, self PlayerID) string {
	candidate := requested
	for n := 1; s.nameTaken(candidate, self); n++ {
		candidate = fmt.Sprintf("(%d) %s", n, requested)
	}
	return candidate
}

func (s *State) nameTaken(name string, self PlayerID) bool {
	for id, p := range s.players {
		if id != self && p.Name == name {
			return true
		}
	}
	return false
}

// StartGame installs a fresh puzzle and resets every entity's board to the
// givens. Previous boards, notes and win latches are discarded.
func (s *State) StartGame(p *sudoku.Puzzle, mode Mode) {
	s.mode = mode
	s.puzzle = p
	s.playerBoards = make(map[PlayerID][]int)
	s.coopBoards = make(map[string][]int)
	s.notes = make(map[string]map[int][]int)
	s.won = make(map[string]bool)

	switch mode {
	case ModeCoop:
		for _, t := range s.teams {
			s.coopBoards[t] = cloneBoard(p.Givens)
		}
	case ModeVersus:
		for id := range s.players {
			s.playerBoards[id] = cloneBoard(p.Givens)
		}
	}
	s.active = true
}

// BoardFor returns the board the given player plays on. In versus mode a
// player who joined after the game started gets a fresh copy of the givens.
func (s *State) BoardFor(id PlayerID) ([]int, bool) {
	if !s.active {
		return nil, false
	}
	p, ok := s.players[id]
	if !ok {
		return nil, false
	}
	switch s.mode {
	case ModeCoop:
		b, ok := s.coopBoards[p.Team]
		return b, ok
	case ModeVersus:
		b, ok := s.playerBoards[id]
		if !ok {
			b = cloneBoard(s.puzzle.Givens)
			s.playerBoards[id] = b
		}
		return b, true
	}
	return nil, false
}

// BoardForTeam returns a team's shared coop board.
func (s *State) BoardForTeam(team string) ([]int, bool) {
	if !s.active || s.mode != ModeCoop {
		return nil, false
	}
	b, ok := s.coopBoards[team]
	return b, ok
}

// Apply writes one cell on the player's board. Out-of-range positions and
// values, and writes to given cells, are rejected; the original trusted
// clients here, the server does not.
func (s *State) Apply(id PlayerID, pos, val int) error {
	if !s.active {
		return ErrNoGame
	}
	if pos < 0 || pos >= sudoku.Cells || val < 0 || val > 9 {
		return ErrOutOfRange
	}
	if s.puzzle.Givens[pos] != 0 {
		return ErrGivenCell
	}
	board, ok := s.BoardFor(id)
	if !ok {
		return ErrNoSuchPlayer
	}
	board[pos] = val
	return nil
}

// Count is the number of cells an entity filled in on top of the givens.
func (s *State) Count(board []int) int {
	if !s.active || board == nil {
		return 0
	}
	n := 0
	for i, v := range board {
		if v != 0 && s.puzzle.Givens[i] == 0 {
			n++
		}
	}
	return n
}

// Done reports whether a board matches the solution at every position. It is
// recomputed on demand, never cached.
func (s *State) Done(board []int) bool {
	if !s.active || board == nil {
		return false
	}
	for i, v := range board {
		if v != s.puzzle.Solution[i] {
			return false
		}
	}
	return true
}

// TotalBlanks is the count_total of status broadcasts: cells to fill, or 0
// when no game is active.
func (s *State) TotalBlanks() int {
	if !s.active {
		return 0
	}
	return s.puzzle.Blanks()
}

// MarkWon latches the winner broadcast for an entity. Only the first call
// per entity and game returns true; a solved board that gets touched again
// does not re-announce.
func (s *State) MarkWon(key string) bool {
	if s.won[key] {
		return false
	}
	s.won[key] = true
	return true
}

// SetNotes replaces the candidate-digit annotations for one cell of a team.
// Notes are auxiliary: they never participate in win or count computation.
func (s *State) SetNotes(team string, pos int, candidates []int) {
	if pos < 0 || pos >= sudoku.Cells {
		return
	}
	m := s.notes[team]
	if m == nil {
		m = make(map[int][]int)
		s.notes[team] = m
	}
	if len(candidates) == 0 {
		delete(m, pos)
		return
	}
	m[pos] = append([]int(nil), candidates...)
}

// Notes returns the stored annotations for one cell of a team.
func (s *State) Notes(team string, pos int) []int {
	return s.notes[team][pos]
}

func cloneBoard(b []int) []int {
	return append([]int(nil), b...)
}
