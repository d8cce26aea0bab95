package opt

import (
	"context"
	"math"
	"math/rand"

	"cvrpbench/internal/config"
	"cvrpbench/internal/model"
)

// TabuConfig holds the tabu search budget and memory settings.
type TabuConfig struct {
	Iterations       int
	NeighborhoodSize int
	TabuSize         int
	StagnationLimit  int
	Init             string
	Penalty          float64
}

func DefaultTabuConfig() TabuConfig {
	return TabuConfig{
		Iterations:       1000,
		NeighborhoodSize: 50,
		TabuSize:         20,
		StagnationLimit:  200,
		Init:             initGreedy,
		Penalty:          defaultPenalty,
	}
}

func (c TabuConfig) Validate() error {
	if c.Iterations <= 0 {
		return config.Invalid("ITERATIONS", c.Iterations, "must be > 0")
	}
	if c.NeighborhoodSize <= 0 {
		return config.Invalid("NEIGHBORHOOD_SIZE", c.NeighborhoodSize, "must be > 0")
	}
	if c.TabuSize <= 0 {
		return config.Invalid("TABU_SIZE", c.TabuSize, "must be > 0")
	}
	if c.StagnationLimit < 0 {
		return config.Invalid("STAGNATION_LIMIT", c.StagnationLimit, "must be >= 0")
	}
	if c.Init != initGreedy && c.Init != initRandom {
		return config.Invalid("INITIALIZATION", c.Init, "must be greedy or random")
	}
	return nil
}

// TabuSearchSolver walks the best admissible neighbour each iteration and
// forbids recently visited genomes. A forbidden neighbour is still admissible
// when it beats the best fitness found so far.
type TabuSearchSolver struct {
	base
	cfg TabuConfig
}

func NewTabuSearch(p *model.Problem, rng *rand.Rand) *TabuSearchSolver {
	return &TabuSearchSolver{base: newBase(string(KindTabu), p, rng), cfg: DefaultTabuConfig()}
}

func (s *TabuSearchSolver) Name() string { return string(KindTabu) }

func (s *TabuSearchSolver) Config() TabuConfig { return s.cfg }

func (s *TabuSearchSolver) Configure(c TabuConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.cfg = c
	return nil
}

func (s *TabuSearchSolver) LoadConfiguration(path string) error {
	v, err := loadValues(path)
	if err != nil {
		return err
	}
	return s.apply(v)
}

func (s *TabuSearchSolver) apply(v config.Values) error {
	c, err := s.read(v)
	if err != nil {
		return err
	}
	s.cfg = c
	return nil
}

// read overlays v on the current configuration without committing it.
func (s *TabuSearchSolver) read(v config.Values) (TabuConfig, error) {
	c := s.cfg
	var err error
	if c.Iterations, err = v.Int("ITERATIONS", c.Iterations); err != nil {
		return c, err
	}
	if c.NeighborhoodSize, err = v.Int("NEIGHBORHOOD_SIZE", c.NeighborhoodSize); err != nil {
		return c, err
	}
	if c.TabuSize, err = v.Int("TABU_SIZE", c.TabuSize); err != nil {
		return c, err
	}
	if c.StagnationLimit, err = v.Int("STAGNATION_LIMIT", c.StagnationLimit); err != nil {
		return c, err
	}
	if c.Init, err = v.Choice("INITIALIZATION", c.Init, initGreedy, initRandom); err != nil {
		return c, err
	}
	if c.Penalty, err = readPenalty(v); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (s *TabuSearchSolver) FindSolution(ctx context.Context) (Result, error) {
	start := initial(s.problem, s.rng, s.cfg.Init)
	best, _, m, err := s.search(ctx, start, s.cfg.Iterations)
	if err != nil && best == nil {
		return Result{}, err
	}
	s.log.WithField("best", m.BestFitness).Debug("tabu search finished")
	res, rerr := s.result(best, m)
	if rerr != nil {
		return res, rerr
	}
	return res, err
}

// refine runs a bounded search from start; used by the hybrids.
func (s *TabuSearchSolver) refine(ctx context.Context, start *model.Solution, budget int) (*model.Solution, float64, Metrics, error) {
	return s.search(ctx, start.Clone(), budget)
}

func (s *TabuSearchSolver) search(ctx context.Context, start *model.Solution, iterations int) (*model.Solution, float64, Metrics, error) {
	obj := &objective{problem: s.problem, penalty: s.cfg.Penalty}
	tabu := newTabuList(s.cfg.TabuSize)

	current := start
	currentFit := obj.fitness(current)
	best := current.Clone()
	bestFit := currentFit
	tabu.push(current.Fingerprint())

	m := Metrics{}
	cand := current.Clone()
	chosen := current.Clone()
	stagnation := 0

	for it := 1; it <= iterations; it++ {
		if err := checkContext(ctx); err != nil {
			m.Evaluations = obj.evaluations
			m.BestFitness, m.FinalFitness = bestFit, currentFit
			return best, bestFit, m, err
		}
		m.Iterations++

		chosenFit := math.Inf(1)
		var chosenFP uint64
		for k := 0; k < s.cfg.NeighborhoodSize; k++ {
			mv := randomMove(s.rng, current.Len())
			cand.CopyFrom(current)
			mv.Apply(cand)
			f := obj.fitness(cand)
			fp := cand.Fingerprint()
			if tabu.contains(fp) && f >= bestFit {
				continue
			}
			if f < chosenFit {
				chosenFit = f
				chosenFP = fp
				cand, chosen = chosen, cand
			}
		}

		if math.IsInf(chosenFit, 1) {
			stagnation++
		} else {
			if chosenFit > currentFit {
				m.AcceptedWorse++
			}
			current, chosen = chosen, current
			currentFit = chosenFit
			tabu.push(chosenFP)

			if currentFit < bestFit {
				best.CopyFrom(current)
				bestFit = currentFit
				m.Improvements++
				stagnation = 0
				s.notify(s.Name(), it, bestFit, false)
			} else {
				stagnation++
			}
		}
		m.sample(it, bestFit)
		if s.cfg.StagnationLimit > 0 && stagnation >= s.cfg.StagnationLimit {
			break
		}
	}

	m.Evaluations = obj.evaluations
	m.BestFitness, m.FinalFitness = bestFit, currentFit
	s.notify(s.Name(), m.Iterations, bestFit, true)
	return best, bestFit, m, nil
}

// tabuList is a bounded FIFO of genome fingerprints with O(1) lookups.
type tabuList struct {
	ring  []uint64
	next  int
	full  bool
	count map[uint64]int
}

func newTabuList(size int) *tabuList {
	return &tabuList{ring: make([]uint64, size), count: make(map[uint64]int, size)}
}

func (t *tabuList) push(fp uint64) {
	if t.full {
		old := t.ring[t.next]
		if t.count[old]--; t.count[old] == 0 {
			delete(t.count, old)
		}
	}
	t.ring[t.next] = fp
	t.count[fp]++
	t.next++
	if t.next == len(t.ring) {
		t.next = 0
		t.full = true
	}
}

func (t *tabuList) contains(fp uint64) bool { return t.count[fp] > 0 }

func (t *tabuList) len() int {
	if t.full {
		return len(t.ring)
	}
	return t.next
}
