package game

import (
	"fmt"
	"strings"
)

// Entity is the unit that owns a board and a progress status: a single
// player in versus mode, a whole team in cooperative mode. Coordinator logic
// (status, win check, relays) is written once against this abstraction
// instead of branching on mode everywhere.
type Entity struct {
	// Key is stable for the duration of a game and indexes the win latch.
	Key string
	// Name is the display name: the player's name, or "team: a, b" in coop.
	Name string
	// Team is set for coop entities, Player for versus entities. The winner
	// broadcast carries whichever is set.
	Team   string
	Player string
	// Board aliases the state-owned board; nil before a game starts.
	Board []int
	// Members are the connected players observing this board.
	Members []PlayerID
}

func playerEntity(s *State, p *Player) *Entity {
	var board []int
	if s.active && s.mode == ModeVersus {
		board, _ = s.BoardFor(p.ID)
	}
	return &Entity{
		Key:     fmt.Sprintf("p:%d", p.ID),
		Name:    p.Name,
		Player:  p.Name,
		Board:   board,
		Members: []PlayerID{p.ID},
	}
}

func teamEntity(s *State, team string, members []*Player) *Entity {
	names := make([]string, len(members))
	ids := make([]PlayerID, len(members))
	for i, p := range members {
		names[i] = p.Name
		ids[i] = p.ID
	}
	return &Entity{
		Key:     "t:" + team,
		Name:    fmt.Sprintf("%s: %s", team, strings.Join(names, ", ")),
		Team:    team,
		Board:   s.coopBoards[team],
		Members: ids,
	}
}

// EntityFor returns the entity owning the player's board.
func (s *State) EntityFor(id PlayerID) (*Entity, bool) {
	p, ok := s.players[id]
	if !ok {
		return nil, false
	}
	if s.mode == ModeCoop {
		return teamEntity(s, p.Team, s.TeamMembers(p.Team)), true
	}
	return playerEntity(s, p), true
}

// Entities lists every active entity: each connected player in versus (and
// before a game starts), each team with at least one member in coop. Teams
// keep their configured order, players id order.
func (s *State) Entities() []*Entity {
	if s.mode == ModeCoop {
		out := make([]*Entity, 0, len(s.teams))
		for _, t := range s.teams {
			members := s.TeamMembers(t)
			if len(members) == 0 {
				continue
			}
			out = append(out, teamEntity(s, t, members))
		}
		return out
	}
	players := s.Players()
	out := make([]*Entity, 0, len(players))
	for _, p := range players {
		out = append(out, playerEntity(s, p))
	}
	return out
}

// TeamMembers lists the connected players on a team, ordered by id.
func (s *State) TeamMembers(team string) []*Player {
	var out []*Player
	for _, p := range s.Players() {
		if p.Team == team {
			out = append(out, p)
		}
	}
	return out
}

// Teammates lists the members of the player's team excluding the player
// itself, the audience of coop relays.
func (s *State) Teammates(id PlayerID) []*Player {
	p, ok := s.players[id]
	if !ok {
		return nil
	}
	var out []*Player
	for _, m := range s.TeamMembers(p.Team) {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
