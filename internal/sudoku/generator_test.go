package sudoku

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAllDifficulties(t *testing.T) {
	g := NewGenerator(12345)

	cases := []struct {
		name string
		diff Difficulty
	}{
		{"easy", Easy},
		{"medium", Medium},
		{"hard", Hard},
		{"expert", Expert},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			p, err := g.Generate(ctx, tc.diff)
			require.NoError(t, err)
			require.Len(t, p.Givens, Cells)
			require.Len(t, p.Solution, Cells)

			assert.True(t, Valid(p.Solution), "solution must satisfy all constraints")
			assert.True(t, Valid(p.Givens), "givens must satisfy all constraints")
			assert.Equal(t, 0, countBlank(p.Solution), "solution must be complete")

			// Givens must agree with the solution wherever they are set.
			for i, v := range p.Givens {
				if v != 0 {
					assert.Equal(t, p.Solution[i], v, "given at %d contradicts solution", i)
				}
			}

			// 17 is the known minimum for a unique puzzle.
			n := p.GivenCount()
			assert.GreaterOrEqual(t, n, 17)
			assert.Less(t, n, Cells)
			assert.Equal(t, Cells-n, p.Blanks())

			assert.Equal(t, 1, countSolutions(p.Givens, 2), "puzzle must have a unique solution")
		})
	}
}

func TestGenerateDeterministicPerSeed(t *testing.T) {
	ctx := context.Background()
	p1, err := NewGenerator(7).Generate(ctx, Medium)
	require.NoError(t, err)
	p2, err := NewGenerator(7).Generate(ctx, Medium)
	require.NoError(t, err)
	assert.Equal(t, p1.Givens, p2.Givens)
	assert.Equal(t, p1.Solution, p2.Solution)
}

func TestGenerateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGenerator(1).Generate(ctx, Expert)
	assert.Error(t, err)
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty(" Hard ")
	require.NoError(t, err)
	assert.Equal(t, Hard, d)
	assert.Equal(t, "hard", d.String())

	_, err = ParseDifficulty("impossible")
	assert.Error(t, err)
}

func TestValidRejectsConflicts(t *testing.T) {
	grid := make([]int, Cells)
	grid[0] = 5
	grid[1] = 5 // same row
	assert.False(t, Valid(grid))

	grid[1] = 0
	grid[9] = 5 // same column
	assert.False(t, Valid(grid))

	grid[9] = 0
	grid[10] = 5 // same box
	assert.False(t, Valid(grid))

	grid[10] = 0
	assert.True(t, Valid(grid))
}

func countBlank(grid []int) int {
	n := 0
	for _, v := range grid {
		if v == 0 {
			n++
		}
	}
	return n
}
