package opt

import (
	"context"
	"math/rand"

	"cvrpbench/internal/model"
)

// RandomSolver returns a uniformly shuffled genome. Nothing guarantees
// capacity feasibility.
type RandomSolver struct {
	base
}

func NewRandom(p *model.Problem, rng *rand.Rand) *RandomSolver {
	return &RandomSolver{base: newBase(string(KindRandom), p, rng)}
}

func (s *RandomSolver) Name() string { return string(KindRandom) }

func (s *RandomSolver) FindSolution(ctx context.Context) (Result, error) {
	if err := checkContext(ctx); err != nil {
		return Result{}, err
	}
	sol := randomSolution(s.problem, s.rng)
	fit := s.problem.CalculateCost(sol)
	s.notify(s.Name(), 1, fit, true)
	return s.result(sol, Metrics{Iterations: 1, Evaluations: 1, BestFitness: fit, FinalFitness: fit})
}

// LoadConfiguration has no keys to read but still surfaces an unreadable file.
func (s *RandomSolver) LoadConfiguration(path string) error {
	_, err := loadValues(path)
	return err
}

// randomSolution shuffles customers 1..N-1 together with delimiters
// -1..-(N-1).
func randomSolution(p *model.Problem, rng *rand.Rand) *model.Solution {
	n := p.Customers()
	genes := make([]model.Gene, 0, 2*n)
	for i := 1; i <= n; i++ {
		genes = append(genes, model.Customer(i))
	}
	for i := 1; i <= n; i++ {
		genes = append(genes, model.Delimiter(i))
	}
	rng.Shuffle(len(genes), func(i, j int) { genes[i], genes[j] = genes[j], genes[i] })
	return model.NewSolution(genes)
}
