package opt

import (
	"context"
	"math/rand"

	"cvrpbench/internal/config"
	"cvrpbench/internal/ga"
	"cvrpbench/internal/model"
)

// refiner is a bounded local search started from a given genome. It returns
// the best genome it saw, never one worse than start.
type refiner interface {
	refine(ctx context.Context, start *model.Solution, budget int) (*model.Solution, float64, Metrics, error)
}

const (
	localTabu      = "tabu"
	localAnnealing = "annealing"

	refineBest = "best"
	refineAll  = "all"
)

type HybridConfig struct {
	LocalSearch           string
	Refine                string
	LocalSearchIterations int
}

func DefaultHybridConfig() HybridConfig {
	return HybridConfig{LocalSearch: localTabu, Refine: refineBest, LocalSearchIterations: 100}
}

func (c HybridConfig) Validate() error {
	if c.LocalSearch != localTabu && c.LocalSearch != localAnnealing {
		return config.Invalid("LOCAL_SEARCH", c.LocalSearch, "must be tabu or annealing")
	}
	if c.Refine != refineBest && c.Refine != refineAll {
		return config.Invalid("REFINE", c.Refine, "must be best or all")
	}
	if c.LocalSearchIterations <= 0 {
		return config.Invalid("LOCAL_SEARCH_ITERATIONS", c.LocalSearchIterations, "must be > 0")
	}
	return nil
}

// HybridSolver is a memetic GA: after every generation (HybridOne) or only
// after the last one (HybridTwo) the best individual, or every individual,
// is replaced by the result of a short tabu search or annealing run.
type HybridSolver struct {
	*GeneticAlgorithmSolver
	cfg         HybridConfig
	everyGen    bool
	tabu        *TabuSearchSolver
	annealing   *SimulatedAnnealingSolver
	refinements int
}

// NewHybridOne refines after every generation.
func NewHybridOne(p *model.Problem, rng *rand.Rand) *HybridSolver {
	return newHybrid(KindHybridOne, true, p, rng)
}

// NewHybridTwo refines after the final generation only.
func NewHybridTwo(p *model.Problem, rng *rand.Rand) *HybridSolver {
	return newHybrid(KindHybridTwo, false, p, rng)
}

func newHybrid(kind Kind, everyGen bool, p *model.Problem, rng *rand.Rand) *HybridSolver {
	h := &HybridSolver{
		GeneticAlgorithmSolver: newGenetic(string(kind), p, rng),
		cfg:                    DefaultHybridConfig(),
		everyGen:               everyGen,
		tabu:                   NewTabuSearch(p, rng),
		annealing:              NewSimulatedAnnealing(p, rng),
	}
	h.hook = h.afterGeneration
	return h
}

func (h *HybridSolver) RefinementConfig() HybridConfig { return h.cfg }

func (h *HybridSolver) ConfigureRefinement(c HybridConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	h.cfg = c
	return nil
}

// LoadConfiguration reads the GA keys, the hybrid keys and the keys of both
// local searches from the same file.
func (h *HybridSolver) LoadConfiguration(path string) error {
	v, err := loadValues(path)
	if err != nil {
		return err
	}
	gc := h.GeneticAlgorithmSolver.cfg
	if err := gc.apply(v); err != nil {
		return err
	}
	c := h.cfg
	if c.LocalSearch, err = v.Choice("LOCAL_SEARCH", c.LocalSearch, localTabu, localAnnealing); err != nil {
		return err
	}
	if c.Refine, err = v.Choice("REFINE", c.Refine, refineBest, refineAll); err != nil {
		return err
	}
	if c.LocalSearchIterations, err = v.Int("LOCAL_SEARCH_ITERATIONS", c.LocalSearchIterations); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	tc, err := h.tabu.read(v)
	if err != nil {
		return err
	}
	ac, err := h.annealing.read(v)
	if err != nil {
		return err
	}
	h.GeneticAlgorithmSolver.cfg = gc
	h.cfg = c
	h.tabu.cfg = tc
	h.annealing.cfg = ac
	return nil
}

func (h *HybridSolver) FindSolution(ctx context.Context) (Result, error) {
	h.refinements = 0
	res, err := h.GeneticAlgorithmSolver.FindSolution(ctx)
	h.log.WithField("refinements", h.refinements).Debug("hybrid finished")
	return res, err
}

func (h *HybridSolver) local() refiner {
	if h.cfg.LocalSearch == localAnnealing {
		return h.annealing
	}
	return h.tabu
}

func (h *HybridSolver) afterGeneration(ctx context.Context, gen int, last bool, pop []ga.Individual, obj *objective) (Metrics, error) {
	var m Metrics
	if !h.everyGen && !last {
		return m, nil
	}
	targets := []int{ga.Best(pop)}
	if h.cfg.Refine == refineAll {
		targets = targets[:0]
		for i := range pop {
			targets = append(targets, i)
		}
	}
	ls := h.local()
	for _, i := range targets {
		refined, _, rm, err := ls.refine(ctx, pop[i].Solution, h.cfg.LocalSearchIterations)
		m.absorb(rm)
		if err != nil {
			return m, err
		}
		h.refinements++
		if f := obj.fitness(refined); f < pop[i].Fitness {
			pop[i] = ga.Individual{Solution: refined, Fitness: f}
		}
	}
	return m, nil
}
