// Package sudoku generates the puzzles a session plays. Boards are flat
// 81-length slices in row-major order, 0 meaning blank, matching the wire
// representation used by the session protocol.
package sudoku

import (
	"context"
	"fmt"
	"strings"
)

const Cells = 81

// Difficulty labels target puzzle generation. Generation is best-effort: the
// achieved difficulty is reported on the puzzle and may differ from the
// request, in which case callers regenerate.
type Difficulty int

const (
	Easy Difficulty = iota + 1
	Medium
	Hard
	Expert
)

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	case Expert:
		return "expert"
	default:
		return fmt.Sprintf("difficulty(%d)", int(d))
	}
}

// ParseDifficulty maps a user-supplied label to a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	case "expert":
		return Expert, nil
	default:
		return 0, fmt.Errorf("unknown difficulty %q", s)
	}
}

// Puzzle is an immutable givens/solution pair. Givens holds 0 for blanks and
// 1-9 for fixed cells; Solution is the complete assignment the givens were
// carved from.
type Puzzle struct {
	Givens     []int
	Solution   []int
	Difficulty Difficulty
}

// GivenCount reports how many cells are fixed.
func (p *Puzzle) GivenCount() int {
	n := 0
	for _, v := range p.Givens {
		if v != 0 {
			n++
		}
	}
	return n
}

// Blanks is the number of cells a player has to fill.
func (p *Puzzle) Blanks() int { return Cells - p.GivenCount() }

// Provider produces puzzles. The session coordinator is its only consumer.
type Provider interface {
	Generate(ctx context.Context, d Difficulty) (*Puzzle, error)
}
