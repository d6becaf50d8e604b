package session

// View is a read-only snapshot of the session, taken inside the coordinator
// loop so it is race-free by construction.
type View struct {
	Mode       string       `json:"mode"`
	Active     bool         `json:"active"`
	CountTotal int          `json:"count_total"`
	Players    []PlayerView `json:"players"`
	Entities   []EntityView `json:"entities"`
}

type PlayerView struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Team string `json:"team,omitempty"`
}

type EntityView struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Done  bool   `json:"done"`
}

func (c *Coordinator) view() View {
	v := View{
		Mode:       c.state.Mode().String(),
		Active:     c.state.Active(),
		CountTotal: c.state.TotalBlanks(),
		Players:    []PlayerView{},
		Entities:   []EntityView{},
	}
	for _, p := range c.state.Players() {
		v.Players = append(v.Players, PlayerView{ID: int(p.ID), Name: p.Name, Team: p.Team})
	}
	for _, e := range c.state.Entities() {
		v.Entities = append(v.Entities, EntityView{
			Name:  e.Name,
			Count: c.state.Count(e.Board),
			Done:  c.state.Done(e.Board),
		})
	}
	return v
}
