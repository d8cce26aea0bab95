package ga

import (
	"math/rand"

	"cvrpbench/internal/model"
)

// Mutate visits every position i and, with the given probability, swaps it
// with a uniformly drawn position j (no-op when j == i). Customers and
// delimiters are treated alike; a swap only permutes tokens, so the genome
// stays structurally valid. Returns the number of swaps performed.
//
// Each swap moves two genes, so the realised per-gene change rate is close
// to twice the probability.
func Mutate(s *model.Solution, probability float64, rng *rand.Rand) int {
	n := s.Len()
	swaps := 0
	for i := 0; i < n; i++ {
		if rng.Float64() >= probability {
			continue
		}
		j := rng.Intn(n)
		if j != i {
			s.Swap(i, j)
			swaps++
		}
	}
	return swaps
}
