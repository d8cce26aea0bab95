package opt

import (
	"context"
	"math"
	"math/rand"

	"cvrpbench/internal/config"
	"cvrpbench/internal/model"
)

type AnnealingConfig struct {
	InitialTemperature float64
	CoolingRate        float64
	MinTemperature     float64
	Iterations         int
	Init               string
	Penalty            float64
}

func DefaultAnnealingConfig() AnnealingConfig {
	return AnnealingConfig{
		InitialTemperature: 1000,
		CoolingRate:        0.995,
		MinTemperature:     0.01,
		Iterations:         50000,
		Init:               initGreedy,
		Penalty:            defaultPenalty,
	}
}

func (c AnnealingConfig) Validate() error {
	if c.InitialTemperature <= 0 {
		return config.Invalid("INITIAL_TEMPERATURE", c.InitialTemperature, "must be > 0")
	}
	if c.CoolingRate <= 0 || c.CoolingRate >= 1 {
		return config.Invalid("COOLING_RATE", c.CoolingRate, "must be in (0,1)")
	}
	if c.MinTemperature <= 0 || c.MinTemperature >= c.InitialTemperature {
		return config.Invalid("MIN_TEMPERATURE", c.MinTemperature, "must be in (0, INITIAL_TEMPERATURE)")
	}
	if c.Iterations <= 0 {
		return config.Invalid("ITERATIONS", c.Iterations, "must be > 0")
	}
	if c.Init != initGreedy && c.Init != initRandom {
		return config.Invalid("INITIALIZATION", c.Init, "must be greedy or random")
	}
	return nil
}

// SimulatedAnnealingSolver perturbs the current genome with one random move
// per iteration and accepts worse neighbours with probability
// exp(-delta/temperature). The temperature is multiplied by the cooling rate
// every iteration; the run ends at MinTemperature or after Iterations.
type SimulatedAnnealingSolver struct {
	base
	cfg AnnealingConfig
}

func NewSimulatedAnnealing(p *model.Problem, rng *rand.Rand) *SimulatedAnnealingSolver {
	return &SimulatedAnnealingSolver{base: newBase(string(KindAnnealing), p, rng), cfg: DefaultAnnealingConfig()}
}

func (s *SimulatedAnnealingSolver) Name() string { return string(KindAnnealing) }

func (s *SimulatedAnnealingSolver) Config() AnnealingConfig { return s.cfg }

func (s *SimulatedAnnealingSolver) Configure(c AnnealingConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.cfg = c
	return nil
}

func (s *SimulatedAnnealingSolver) LoadConfiguration(path string) error {
	v, err := loadValues(path)
	if err != nil {
		return err
	}
	return s.apply(v)
}

func (s *SimulatedAnnealingSolver) apply(v config.Values) error {
	c, err := s.read(v)
	if err != nil {
		return err
	}
	s.cfg = c
	return nil
}

// read overlays v on the current configuration without committing it.
func (s *SimulatedAnnealingSolver) read(v config.Values) (AnnealingConfig, error) {
	c := s.cfg
	var err error
	if c.InitialTemperature, err = v.Float("INITIAL_TEMPERATURE", c.InitialTemperature); err != nil {
		return c, err
	}
	if c.CoolingRate, err = v.Float("COOLING_RATE", c.CoolingRate); err != nil {
		return c, err
	}
	if c.MinTemperature, err = v.Float("MIN_TEMPERATURE", c.MinTemperature); err != nil {
		return c, err
	}
	if c.Iterations, err = v.Int("ITERATIONS", c.Iterations); err != nil {
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

func (s *SimulatedAnnealingSolver) FindSolution(ctx context.Context) (Result, error) {
	start := initial(s.problem, s.rng, s.cfg.Init)
	best, _, m, err := s.anneal(ctx, start, s.cfg.Iterations)
	s.log.WithField("best", m.BestFitness).Debug("annealing finished")
	res, rerr := s.result(best, m)
	if rerr != nil {
		return res, rerr
	}
	return res, err
}

func (s *SimulatedAnnealingSolver) refine(ctx context.Context, start *model.Solution, budget int) (*model.Solution, float64, Metrics, error) {
	return s.anneal(ctx, start.Clone(), budget)
}

// ctxCheckEvery bounds how often the annealing loop polls ctx.
const ctxCheckEvery = 256

func (s *SimulatedAnnealingSolver) anneal(ctx context.Context, start *model.Solution, iterations int) (*model.Solution, float64, Metrics, error) {
	obj := &objective{problem: s.problem, penalty: s.cfg.Penalty}

	current := start
	currentFit := obj.fitness(current)
	best := current.Clone()
	bestFit := currentFit
	cand := current.Clone()

	m := Metrics{}
	temp := s.cfg.InitialTemperature
	var err error

	for it := 1; it <= iterations && temp > s.cfg.MinTemperature; it++ {
		if it%ctxCheckEvery == 0 {
			if err = checkContext(ctx); err != nil {
				break
			}
		}
		m.Iterations++

		cand.CopyFrom(current)
		randomMove(s.rng, cand.Len()).Apply(cand)
		f := obj.fitness(cand)

		delta := f - currentFit
		if delta < 0 || s.rng.Float64() < math.Exp(-delta/temp) {
			if delta > 0 {
				m.AcceptedWorse++
			}
			current, cand = cand, current
			currentFit = f
			if currentFit < bestFit {
				best.CopyFrom(current)
				bestFit = currentFit
				m.Improvements++
				s.notify(s.Name(), it, bestFit, false)
			}
		}
		temp *= s.cfg.CoolingRate
		m.sample(it, bestFit)
	}

	m.Evaluations = obj.evaluations
	m.BestFitness, m.FinalFitness = bestFit, currentFit
	s.notify(s.Name(), m.Iterations, bestFit, true)
	return best, bestFit, m, err
}
