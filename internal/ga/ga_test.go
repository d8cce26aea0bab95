package ga

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrpbench/internal/model"
)

func shuffled(customers int, rng *rand.Rand) *model.Solution {
	genes := make([]model.Gene, 0, 2*customers)
	for i := 1; i <= customers; i++ {
		genes = append(genes, model.Customer(i), model.Delimiter(i))
	}
	rng.Shuffle(len(genes), func(i, j int) { genes[i], genes[j] = genes[j], genes[i] })
	return model.NewSolution(genes)
}

func assertClosed(t *testing.T, s *model.Solution, customers int) {
	t.Helper()
	require.Equal(t, 2*customers, s.Len())
	seen := map[int]int{}
	delimiters := 0
	for _, g := range s.Genes {
		if g.IsDelimiter() {
			delimiters++
			continue
		}
		seen[g.CustomerID()]++
	}
	assert.Equal(t, customers, delimiters)
	for c := 1; c <= customers; c++ {
		assert.Equal(t, 1, seen[c], "customer %d", c)
	}
	assert.Len(t, seen, customers)
}

func TestOrderCrossoverPreservesStructure(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 500; trial++ {
		n := 1 + rng.Intn(12)
		p1, p2 := shuffled(n, rng), shuffled(n, rng)
		c1, c2, err := OrderCrossover(p1, p2, rng)
		require.NoError(t, err)
		assertClosed(t, c1, n)
		assertClosed(t, c2, n)
	}
}

func TestOrderCrossoverToleratesArbitraryDelimiterLabels(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	p1 := model.NewSolution([]model.Gene{1, -7, 2, -7, 3, -7})
	p2 := model.NewSolution([]model.Gene{-1, -1, 3, 2, -9, 1})
	for i := 0; i < 100; i++ {
		c1, c2, err := OrderCrossover(p1, p2, rng)
		require.NoError(t, err)
		assertClosed(t, c1, 3)
		assertClosed(t, c2, 3)
	}
}

func TestOrderCrossoverKeepsSegmentOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	p := model.NewSolution([]model.Gene{1, 2, 3, -1, -2, -3})
	c1, c2, err := OrderCrossover(p, p.Clone(), rng)
	require.NoError(t, err)
	assert.True(t, p.Equal(c1), "identical parents reproduce themselves")
	assert.True(t, p.Equal(c2))
}

func TestOrderCrossoverLengthMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	_, _, err := OrderCrossover(shuffled(3, rng), shuffled(4, rng), rng)
	assert.ErrorIs(t, err, model.ErrInvalidEncoding)
}

func TestMutatePreservesStructure(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for _, p := range []float64{0, 0.01, 0.2, 0.5, 1} {
		s := shuffled(15, rng)
		Mutate(s, p, rng)
		assertClosed(t, s, 15)
	}
}

func TestMutateProbabilityBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	s := shuffled(10, rng)
	before := s.Clone()
	assert.Equal(t, 0, Mutate(s, 0, rng))
	assert.True(t, before.Equal(s))

	swaps := 0
	for i := 0; i < 200; i++ {
		swaps += Mutate(s, 0.1, rng)
	}
	// 200 calls * 20 positions * 0.1 = 400 draws, 19/20 of them land on j != i.
	assert.InDelta(t, 380, swaps, 80)
}

func TestTournamentPicksFittest(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pop := []Individual{{Fitness: 5}, {Fitness: 1}, {Fitness: 9}}
	wins := 0
	for i := 0; i < 200; i++ {
		if (Tournament{Size: 10}).Select(pop, rng) == 1 {
			wins++
		}
	}
	assert.Greater(t, wins, 190)
	assert.Equal(t, []Individual{{Fitness: 5}, {Fitness: 1}, {Fitness: 9}}, pop)
}

func TestRouletteFavoursLowFitness(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	pop := []Individual{{Fitness: 1}, {Fitness: 100}}
	counts := [2]int{}
	for i := 0; i < 1000; i++ {
		counts[Roulette{}.Select(pop, rng)]++
	}
	assert.Greater(t, counts[0], 900)
	assert.Equal(t, 0, Best(pop))
	assert.IsType(t, Roulette{}, NewSelector("roulette", 3))
	assert.Equal(t, Tournament{Size: 3}, NewSelector("tournament", 3))
}
