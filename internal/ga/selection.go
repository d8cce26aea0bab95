// Package ga holds the genetic operators shared by the population based
// solvers. Operators are stateless; randomness comes from the caller's rng.
package ga

import (
	"math/rand"

	"cvrpbench/internal/model"
)

// Individual is a population member with its search fitness (lower is better).
type Individual struct {
	Solution *model.Solution
	Fitness  float64
}

// Selector picks the index of a parent. Implementations must not modify pop.
type Selector interface {
	Select(pop []Individual, rng *rand.Rand) int
}

// Tournament draws Size members uniformly with replacement and keeps the fittest.
type Tournament struct {
	Size int
}

func (t Tournament) Select(pop []Individual, rng *rand.Rand) int {
	size := t.Size
	if size < 1 {
		size = 1
	}
	best := rng.Intn(len(pop))
	for i := 1; i < size; i++ {
		cand := rng.Intn(len(pop))
		if pop[cand].Fitness < pop[best].Fitness {
			best = cand
		}
	}
	return best
}

// Roulette is fitness-proportionate selection with weights 1/fitness.
type Roulette struct{}

func (Roulette) Select(pop []Individual, rng *rand.Rand) int {
	weights := make([]float64, len(pop))
	sum := 0.0
	for i, ind := range pop {
		w := 1.0
		if ind.Fitness > 0 {
			w = 1 / ind.Fitness
		}
		weights[i] = w
		sum += w
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(pop) - 1
}

// NewSelector maps a configuration name to a Selector.
func NewSelector(name string, tournamentSize int) Selector {
	if name == "roulette" {
		return Roulette{}
	}
	return Tournament{Size: tournamentSize}
}

// Best returns the index of the fittest individual; ties keep the first.
func Best(pop []Individual) int {
	best := 0
	for i := 1; i < len(pop); i++ {
		if pop[i].Fitness < pop[best].Fitness {
			best = i
		}
	}
	return best
}
