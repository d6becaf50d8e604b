package sudoku

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

func targetGivens(d Difficulty) int {
	switch d {
	case Easy:
		return 40
	case Medium:
		return 34
	case Hard:
		return 28
	default:
		return 24 // Expert
	}
}

// gradeGivens maps an achieved givens count back to a difficulty label. The
// carving loop can stop short of its target, so the grade may be easier than
// requested.
func gradeGivens(n int) Difficulty {
	switch {
	case n >= 38:
		return Easy
	case n >= 31:
		return Medium
	case n >= 26:
		return Hard
	default:
		return Expert
	}
}

// Generator creates puzzles with a unique solution: fill a full random grid,
// then carve cells while uniqueness is preserved until the difficulty's
// target givens count is reached or a time budget runs out.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator seeds a generator. The same seed yields the same sequence of
// puzzles.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Generate(ctx context.Context, d Difficulty) (*Puzzle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()

	solution := make([]int, Cells)
	if !fillRandom(ctx, g.rng, solution) {
		return nil, ctx.Err()
	}

	givens := make([]int, Cells)
	copy(givens, solution)

	positions := g.rng.Perm(Cells)
	target := targetGivens(d)
	deadline := start.Add(900 * time.Millisecond)
	remaining := Cells

	for _, pos := range positions {
		if remaining <= target || time.Now().After(deadline) || ctx.Err() != nil {
			break
		}
		old := givens[pos]
		givens[pos] = 0
		if countSolutions(givens, 2) != 1 {
			givens[pos] = old
			continue
		}
		remaining--
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Puzzle{
		Givens:     givens,
		Solution:   solution,
		Difficulty: gradeGivens(remaining),
	}, nil
}

// fillRandom solves the empty grid into a full valid assignment, trying
// digits in random order at each cell.
func fillRandom(ctx context.Context, rng *rand.Rand, grid []int) bool {
	nums := [9]int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	var dfs func(pos int) bool
	dfs = func(pos int) bool {
		if ctx.Err() != nil {
			return false
		}
		if pos == Cells {
			return true
		}
		rng.Shuffle(9, func(i, j int) { nums[i], nums[j] = nums[j], nums[i] })
		for _, v := range nums {
			if allowed(grid, pos, v) {
				grid[pos] = v
				if dfs(pos + 1) {
					return true
				}
				grid[pos] = 0
			}
		}
		return false
	}
	return dfs(0)
}

// allowed checks the row, column and box constraints for placing v at pos.
func allowed(grid []int, pos, v int) bool {
	r, c := pos/9, pos%9
	for i := 0; i < 9; i++ {
		if grid[r*9+i] == v || grid[i*9+c] == v {
			return false
		}
	}
	br, bc := (r/3)*3, (c/3)*3
	for dr := 0; dr < 3; dr++ {
		for dc := 0; dc < 3; dc++ {
			if grid[(br+dr)*9+bc+dc] == v {
				return false
			}
		}
	}
	return true
}

// countSolutions counts assignments completing grid, stopping at limit. A
// puzzle is unique iff the count is exactly 1.
func countSolutions(grid []int, limit int) int {
	work := make([]int, Cells)
	copy(work, grid)

	found := 0
	var dfs func(pos int) bool // true = stop early
	dfs = func(pos int) bool {
		for pos < Cells && work[pos] != 0 {
			pos++
		}
		if pos == Cells {
			found++
			return found >= limit
		}
		for v := 1; v <= 9; v++ {
			if allowed(work, pos, v) {
				work[pos] = v
				if dfs(pos + 1) {
					work[pos] = 0
					return true
				}
				work[pos] = 0
			}
		}
		return false
	}
	dfs(0)
	return found
}

// Valid reports whether a full or partial grid violates no sudoku
// constraint.
func Valid(grid []int) bool {
	if len(grid) != Cells {
		return false
	}
	for pos, v := range grid {
		if v < 0 || v > 9 {
			return false
		}
		if v == 0 {
			continue
		}
		grid[pos] = 0
		ok := allowed(grid, pos, v)
		grid[pos] = v
		if !ok {
			return false
		}
	}
	return true
}
