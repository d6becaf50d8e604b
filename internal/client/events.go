package client

import "github.com/sudoqu/sudoqu/internal/wire"

// Event is what the runner surfaces to the presentation layer. Exactly one
// concrete type per inbound protocol effect; the consumer switches on them.
type Event interface{ isEvent() }

// IdentityAssigned fires once after connecting: the server-issued id, the
// configured team labels and the auto-assigned team.
type IdentityAssigned struct {
	ID    int
	Teams []string
	Team  string
}

// PlayerJoined announces a roster entry, including our own once the
// handshake is accepted (the server may have adjusted the name).
type PlayerJoined struct {
	ID   int
	Name string
}

// PlayerLeft carries the departing player's name.
type PlayerLeft struct{ Name string }

type ChatReceived struct {
	Name string
	Text string
}

// StatusChanged delivers the progress summary, sorted for display: count
// descending, ties by name descending.
type StatusChanged struct {
	Changes    []wire.StatusChange
	CountTotal int
}

// BoardReplaced replaces the local board wholesale at game start, on a team
// switch, or when joining a running game.
type BoardReplaced struct {
	Given []int
	Board []int
	Mode  int
}

// ValuesChanged carries cell updates from a teammate, keyed by position.
type ValuesChanged struct{ Values map[int]int }

type NameChanged struct {
	ID      int
	OldName string
	NewName string
}

// FocusChanged reports which cell a teammate is working on; -1 clears.
type FocusChanged struct {
	ID  int
	Pos int
}

type TeamChanged struct {
	Player string
	Team   string
}

// NotesChanged carries a teammate's candidate annotations for one cell.
type NotesChanged struct {
	ID    int
	Pos   int
	Notes []int
}

// WinnerDeclared names the winning entity, "Team x" in cooperative mode.
type WinnerDeclared struct{ Winner string }

// VersionRejected means the handshake failed; the session is unusable and
// the user must upgrade or downgrade.
type VersionRejected struct {
	ServerVersion int
	ClientVersion int
}

// Disconnected is terminal. Err is nil for an acknowledged disconnect or a
// server shutdown, non-nil for socket failures.
type Disconnected struct{ Err error }

func (IdentityAssigned) isEvent() {}
func (PlayerJoined) isEvent()     {}
func (PlayerLeft) isEvent()       {}
func (ChatReceived) isEvent()     {}
func (StatusChanged) isEvent()    {}
func (BoardReplaced) isEvent()    {}
func (ValuesChanged) isEvent()    {}
func (NameChanged) isEvent()      {}
func (FocusChanged) isEvent()     {}
func (TeamChanged) isEvent()      {}
func (NotesChanged) isEvent()     {}
func (WinnerDeclared) isEvent()   {}
func (VersionRejected) isEvent()  {}
func (Disconnected) isEvent()     {}
