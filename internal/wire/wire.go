package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// ProtocolVersion is checked during the name handshake. Peers compiled
// against a different version cannot join a session.
const ProtocolVersion = 3

// DefaultPort is the fixed listening port of a session coordinator.
const DefaultPort = 19770

// Kind discriminates messages on the wire. The numbering is part of the
// protocol and must never be reordered.
type Kind int

const (
	KindChat           Kind = 0
	KindRename         Kind = 1
	KindDisconnect     Kind = 2 // notice S->C, request C->S
	KindDisconnectOK   Kind = 3
	KindNewPlayer      Kind = 4
	KindNewGame        Kind = 5
	KindCellUpdate     Kind = 7
	KindStatus         Kind = 8
	KindHandshake      Kind = 9
	KindServerShutdown Kind = 10
	KindFocus          Kind = 11
	KindAssignID       Kind = 13
	KindBadVersion     Kind = 14
	KindTeamChange     Kind = 15
	KindWinner         Kind = 16
	KindNotes          Kind = 17
)

var ErrNoKind = errors.New("wire: message without kind")

// StatusChange is one entry of a status broadcast: a player in versus mode,
// a team in cooperative mode.
type StatusChange struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Done  bool   `json:"done"`
}

// Message is the flat record every line on the wire decodes to. Which fields
// are meaningful depends on Kind; everything else stays at its zero value and
// is omitted when encoding. Pos and Val are pointers because 0 and -1 are
// legal payloads.
type Message struct {
	Kind Kind `json:"message"`

	ID      int    `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Text    string `json:"text,omitempty"`
	Version int    `json:"version,omitempty"`

	ServerVersion int `json:"server_version,omitempty"`
	ClientVersion int `json:"client_version,omitempty"`

	Teams  []string `json:"teams,omitempty"`
	Team   string   `json:"team,omitempty"`
	Player string   `json:"player,omitempty"`

	Mode  int   `json:"mode,omitempty"`
	Given []int `json:"given,omitempty"`
	Board []int `json:"board,omitempty"`

	Pos    *int  `json:"pos,omitempty"`
	Val    *int  `json:"val,omitempty"`
	Values []int `json:"values,omitempty"`
	Notes  []int `json:"notes,omitempty"`

	NewName string `json:"new_name,omitempty"`
	OldName string `json:"old_name,omitempty"`

	Changes    []StatusChange `json:"changes,omitempty"`
	CountTotal int            `json:"count_total,omitempty"`
}

// Int is a convenience for filling the pointer fields of a Message.
func Int(v int) *int { return &v }

// Encode writes msg as a single newline-terminated line. The line is written
// with one Write call so message-oriented transports see one frame per
// message.
func Encode(w io.Writer, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Decode parses one line into a Message. Lines that are not JSON objects or
// carry no kind field return an error; callers drop those silently.
func Decode(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	var probe struct {
		Kind *int `json:"message"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, err
	}
	if probe.Kind == nil {
		return nil, ErrNoKind
	}
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
