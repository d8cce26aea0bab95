package opt

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"

	"cvrpbench/internal/config"
	"cvrpbench/internal/ga"
	"cvrpbench/internal/model"
)

type GeneticConfig struct {
	PopulationSize       int
	Generations          int
	CrossoverProbability float64
	MutationProbability  float64
	Selection            string
	TournamentSize       int
	Elitism              int
	Init                 string
	Penalty              float64
}

func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize:       100,
		Generations:          500,
		CrossoverProbability: 0.7,
		MutationProbability:  0.05,
		Selection:            "tournament",
		TournamentSize:       5,
		Elitism:              1,
		Init:                 initRandom,
		Penalty:              defaultPenalty,
	}
}

func (c GeneticConfig) Validate() error {
	if c.PopulationSize < 2 {
		return config.Invalid("POPULATION_SIZE", c.PopulationSize, "must be >= 2")
	}
	if c.Generations <= 0 {
		return config.Invalid("GENERATIONS", c.Generations, "must be > 0")
	}
	if c.CrossoverProbability < 0 || c.CrossoverProbability > 1 {
		return config.Invalid("CROSSOVER_PROBABILITY", c.CrossoverProbability, "must be in [0,1]")
	}
	if c.MutationProbability < 0 || c.MutationProbability > 1 {
		return config.Invalid("MUTATION_PROBABILITY", c.MutationProbability, "must be in [0,1]")
	}
	if c.Selection != "tournament" && c.Selection != "roulette" {
		return config.Invalid("SELECTION", c.Selection, "must be tournament or roulette")
	}
	if c.TournamentSize <= 0 {
		return config.Invalid("TOURNAMENT_SIZE", c.TournamentSize, "must be > 0")
	}
	if c.Elitism < 0 || c.Elitism >= c.PopulationSize {
		return config.Invalid("ELITISM", c.Elitism, "must be in [0, POPULATION_SIZE)")
	}
	if c.Init != initGreedy && c.Init != initRandom {
		return config.Invalid("INITIALIZATION", c.Init, "must be greedy or random")
	}
	return nil
}

func (c *GeneticConfig) apply(v config.Values) error {
	var err error
	if c.PopulationSize, err = v.Int("POPULATION_SIZE", c.PopulationSize); err != nil {
		return err
	}
	if c.Generations, err = v.Int("GENERATIONS", c.Generations); err != nil {
		return err
	}
	if c.CrossoverProbability, err = v.Probability("CROSSOVER_PROBABILITY", c.CrossoverProbability); err != nil {
		return err
	}
	if c.MutationProbability, err = v.Probability("MUTATION_PROBABILITY", c.MutationProbability); err != nil {
		return err
	}
	if c.Selection, err = v.Choice("SELECTION", c.Selection, "tournament", "roulette"); err != nil {
		return err
	}
	if c.TournamentSize, err = v.Int("TOURNAMENT_SIZE", c.TournamentSize); err != nil {
		return err
	}
	if c.Elitism, err = v.Int("ELITISM", c.Elitism); err != nil {
		return err
	}
	if c.Init, err = v.Choice("INITIALIZATION", c.Init, initGreedy, initRandom); err != nil {
		return err
	}
	if c.Penalty, err = readPenalty(v); err != nil {
		return err
	}
	return c.Validate()
}

// generationHook runs after each generation is formed; last is true for the
// final one. It may rewrite members of pop in place.
type generationHook func(ctx context.Context, gen int, last bool, pop []ga.Individual, obj *objective) (Metrics, error)

// GeneticAlgorithmSolver evolves a population of genomes with tournament or
// roulette selection, order crossover and swap mutation. The best Elitism
// members survive unchanged into the next generation. Feasibility is not
// enforced; overload only raises the fitness.
type GeneticAlgorithmSolver struct {
	base
	name string
	cfg  GeneticConfig
	hook generationHook
}

func NewGeneticAlgorithm(p *model.Problem, rng *rand.Rand) *GeneticAlgorithmSolver {
	return newGenetic(string(KindGenetic), p, rng)
}

func newGenetic(name string, p *model.Problem, rng *rand.Rand) *GeneticAlgorithmSolver {
	return &GeneticAlgorithmSolver{base: newBase(name, p, rng), name: name, cfg: DefaultGeneticConfig()}
}

func (s *GeneticAlgorithmSolver) Name() string { return s.name }

func (s *GeneticAlgorithmSolver) Config() GeneticConfig { return s.cfg }

func (s *GeneticAlgorithmSolver) Configure(c GeneticConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.cfg = c
	return nil
}

func (s *GeneticAlgorithmSolver) LoadConfiguration(path string) error {
	v, err := loadValues(path)
	if err != nil {
		return err
	}
	c := s.cfg
	if err := c.apply(v); err != nil {
		return err
	}
	s.cfg = c
	return nil
}

func (s *GeneticAlgorithmSolver) FindSolution(ctx context.Context) (Result, error) {
	best, m, err := s.evolve(ctx)
	if best == nil {
		return Result{}, err
	}
	s.log.WithFields(logrus.Fields{"best": m.BestFitness, "generations": m.Iterations}).Debug("evolution finished")
	res, rerr := s.result(best, m)
	if rerr != nil {
		return res, rerr
	}
	return res, err
}

func (s *GeneticAlgorithmSolver) evolve(ctx context.Context) (*model.Solution, Metrics, error) {
	obj := &objective{problem: s.problem, penalty: s.cfg.Penalty}
	selector := ga.NewSelector(s.cfg.Selection, s.cfg.TournamentSize)

	pop := s.initialPopulation(obj)
	bi := ga.Best(pop)
	best := pop[bi].Solution.Clone()
	bestFit := pop[bi].Fitness

	m := Metrics{}
	next := make([]ga.Individual, 0, len(pop))

	for gen := 1; gen <= s.cfg.Generations; gen++ {
		if err := checkContext(ctx); err != nil {
			m.Evaluations += obj.evaluations
			m.BestFitness, m.FinalFitness = bestFit, bestFit
			return best, m, err
		}
		m.Iterations++

		next = next[:0]
		next = append(next, elite(pop, s.cfg.Elitism)...)
		for len(next) < len(pop) {
			p1 := pop[selector.Select(pop, s.rng)].Solution
			p2 := pop[selector.Select(pop, s.rng)].Solution
			var c1, c2 *model.Solution
			if s.rng.Float64() < s.cfg.CrossoverProbability {
				var err error
				if c1, c2, err = ga.OrderCrossover(p1, p2, s.rng); err != nil {
					return best, m, err
				}
			} else {
				c1, c2 = p1.Clone(), p2.Clone()
			}
			for _, c := range []*model.Solution{c1, c2} {
				if len(next) == len(pop) {
					break
				}
				ga.Mutate(c, s.cfg.MutationProbability, s.rng)
				next = append(next, ga.Individual{Solution: c, Fitness: obj.fitness(c)})
			}
		}
		pop, next = next, pop

		if s.hook != nil {
			hm, err := s.hook(ctx, gen, gen == s.cfg.Generations, pop, obj)
			m.absorb(hm)
			if err != nil {
				m.Evaluations += obj.evaluations
				return best, m, err
			}
		}

		if i := ga.Best(pop); pop[i].Fitness < bestFit {
			best.CopyFrom(pop[i].Solution)
			bestFit = pop[i].Fitness
			m.Improvements++
			s.notify(s.name, gen, bestFit, false)
		}
		m.sample(gen, bestFit)
	}

	m.Evaluations += obj.evaluations
	m.BestFitness = bestFit
	m.FinalFitness = pop[ga.Best(pop)].Fitness
	s.notify(s.name, m.Iterations, bestFit, true)
	return best, m, nil
}

// initialPopulation seeds with random genomes, or with greedy genomes started
// from distinct customers when INITIALIZATION is greedy. Greedy seeds beyond
// the number of customers are random.
func (s *GeneticAlgorithmSolver) initialPopulation(obj *objective) []ga.Individual {
	pop := make([]ga.Individual, s.cfg.PopulationSize)
	for i := range pop {
		var sol *model.Solution
		if s.cfg.Init == initGreedy && i < s.problem.Customers() {
			sol = greedySolution(s.problem, i+1)
		} else {
			sol = randomSolution(s.problem, s.rng)
		}
		pop[i] = ga.Individual{Solution: sol, Fitness: obj.fitness(sol)}
	}
	return pop
}

// elite returns clones of the k fittest members, fittest first.
func elite(pop []ga.Individual, k int) []ga.Individual {
	if k <= 0 {
		return nil
	}
	idx := make([]int, 0, k)
	taken := make([]bool, len(pop))
	for len(idx) < k && len(idx) < len(pop) {
		b := -1
		for i := range pop {
			if !taken[i] && (b < 0 || pop[i].Fitness < pop[b].Fitness) {
				b = i
			}
		}
		taken[b] = true
		idx = append(idx, b)
	}
	out := make([]ga.Individual, len(idx))
	for j, i := range idx {
		out[j] = ga.Individual{Solution: pop[i].Solution.Clone(), Fitness: pop[i].Fitness}
	}
	return out
}
