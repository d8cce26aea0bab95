package opt

import (
	"context"

	"cvrpbench/internal/config"
	"cvrpbench/internal/model"
)

// NoFirstLocation lets the greedy construction start from the depot.
const NoFirstLocation = -1

// GreedySolver builds a nearest-neighbour genome that returns to the depot
// whenever the next customer would overflow the vehicle. It is deterministic
// and always capacity-feasible.
type GreedySolver struct {
	base
	firstLocation int
}

// NewGreedy validates firstLocation, which is NoFirstLocation or a customer id.
func NewGreedy(p *model.Problem, firstLocation int) (*GreedySolver, error) {
	s := &GreedySolver{base: newBase(string(KindGreedy), p, nil)}
	if err := s.SetFirstLocation(firstLocation); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GreedySolver) Name() string { return string(KindGreedy) }

func (s *GreedySolver) FirstLocation() int { return s.firstLocation }

func (s *GreedySolver) SetFirstLocation(first int) error {
	if first != NoFirstLocation && (first < 1 || first >= s.problem.Dimension()) {
		return config.Invalid("FIRST_CITY", first, "first location out of range")
	}
	s.firstLocation = first
	return nil
}

// LoadConfiguration reads FIRST_CITY.
func (s *GreedySolver) LoadConfiguration(path string) error {
	v, err := loadValues(path)
	if err != nil {
		return err
	}
	first, err := v.Int("FIRST_CITY", s.firstLocation)
	if err != nil {
		return err
	}
	return s.SetFirstLocation(first)
}

func (s *GreedySolver) FindSolution(ctx context.Context) (Result, error) {
	if err := checkContext(ctx); err != nil {
		return Result{}, err
	}
	sol := greedySolution(s.problem, s.firstLocation)
	cost := s.problem.CalculateCost(sol)
	s.notify(s.Name(), 1, cost, true)
	return s.result(sol, Metrics{Iterations: 1, Evaluations: 1, BestFitness: cost, FinalFitness: cost})
}

// greedySolution repeatedly takes the unvisited customer nearest to the last
// placed location. Ties keep the lowest id. Delimiters are spent in label
// order -1, -2, ... and the unused ones are appended at the end.
func greedySolution(p *model.Problem, first int) *model.Solution {
	n := p.Customers()
	genes := make([]model.Gene, 0, 2*n)

	remaining := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		if i != first {
			remaining = append(remaining, i)
		}
	}
	nextDelimiter := 1
	load := 0
	last := 0

	if first != NoFirstLocation {
		genes = append(genes, model.Customer(first))
		load = p.Demand(first)
		last = first
	}

	for len(remaining) > 0 {
		bestIdx := 0
		bestDist := p.Distance(last, remaining[0])
		for i := 1; i < len(remaining); i++ {
			if d := p.Distance(last, remaining[i]); d < bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		closest := remaining[bestIdx]

		if load+p.Demand(closest) > p.Capacity() {
			genes = append(genes, model.Delimiter(nextDelimiter))
			nextDelimiter++
			load = 0
			last = 0
			continue
		}
		genes = append(genes, model.Customer(closest))
		load += p.Demand(closest)
		last = closest
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	for ; nextDelimiter <= n; nextDelimiter++ {
		genes = append(genes, model.Delimiter(nextDelimiter))
	}
	return model.NewSolution(genes)
}
