package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/sirupsen/logrus"

	"cvrpbench/internal/config"
	"cvrpbench/internal/model"
)

// Kind names one member of the closed solver family.
type Kind string

const (
	KindRandom    Kind = "random"
	KindGreedy    Kind = "greedy"
	KindGenetic   Kind = "ga"
	KindTabu      Kind = "ts"
	KindAnnealing Kind = "sa"
	KindHybridOne Kind = "h1"
	KindHybridTwo Kind = "h2"
)

// Kinds lists every solver kind in a stable order.
var Kinds = []Kind{KindRandom, KindGreedy, KindGenetic, KindTabu, KindAnnealing, KindHybridOne, KindHybridTwo}

var kindAliases = map[string]Kind{
	"random":    KindRandom,
	"greedy":    KindGreedy,
	"ga":        KindGenetic,
	"genetic":   KindGenetic,
	"ts":        KindTabu,
	"tabu":      KindTabu,
	"sa":        KindAnnealing,
	"annealing": KindAnnealing,
	"h1":        KindHybridOne,
	"hybrid1":   KindHybridOne,
	"h2":        KindHybridTwo,
	"hybrid2":   KindHybridTwo,
}

// ParseKind accepts the short names (ga, ts, sa, h1, h2) and their long forms.
func ParseKind(s string) (Kind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", config.Invalid("solver", s, "unknown solver kind")
	}
	return k, nil
}

// Solver is the capability shared by every strategy. FindSolution blocks
// until the search budget is spent or ctx is done.
type Solver interface {
	Name() string
	FindSolution(ctx context.Context) (Result, error)
	LoadConfiguration(path string) error
}

// Result is a returned genome tagged with its feasibility. Infeasible
// results are legitimate outcomes; the caller chooses whether to retry.
type Result struct {
	Solution *model.Solution
	Cost     float64
	Feasible bool
	Metrics  Metrics
}

// Progress is reported to an Observer when the best fitness improves and
// once when the search ends.
type Progress struct {
	Solver      string
	Iteration   int
	BestFitness float64
	Done        bool
}

type Observer func(Progress)

// Observable solvers accept a progress callback.
type Observable interface {
	SetObserver(Observer)
}

// ErrNoFeasibleSolution is returned by SolveFeasible when the attempt budget
// is spent without a capacity-feasible genome.
var ErrNoFeasibleSolution = errors.New("no feasible solution found")

// New builds a solver of the given kind with default configuration.
func New(kind Kind, p *model.Problem, rng *rand.Rand) (Solver, error) {
	switch kind {
	case KindRandom:
		return NewRandom(p, rng), nil
	case KindGreedy:
		g, err := NewGreedy(p, NoFirstLocation)
		if err != nil {
			return nil, err
		}
		return g, nil
	case KindGenetic:
		return NewGeneticAlgorithm(p, rng), nil
	case KindTabu:
		return NewTabuSearch(p, rng), nil
	case KindAnnealing:
		return NewSimulatedAnnealing(p, rng), nil
	case KindHybridOne:
		return NewHybridOne(p, rng), nil
	case KindHybridTwo:
		return NewHybridTwo(p, rng), nil
	}
	return nil, config.Invalid("solver", kind, "unknown solver kind")
}

// SolveFeasible calls FindSolution until it returns a feasible result or
// maxAttempts calls have been made. It returns the number of attempts used.
// On exhaustion the last result is returned with ErrNoFeasibleSolution.
func SolveFeasible(ctx context.Context, s Solver, maxAttempts int) (Result, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var last Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := s.FindSolution(ctx)
		if err != nil {
			return res, attempt, err
		}
		if res.Feasible {
			return res, attempt, nil
		}
		last = res
		logrus.WithFields(logrus.Fields{"solver": s.Name(), "attempt": attempt, "cost": res.Cost}).
			Debug("infeasible result, retrying")
	}
	return last, maxAttempts, fmt.Errorf("%s after %d attempts: %w", s.Name(), maxAttempts, ErrNoFeasibleSolution)
}

// base carries what every solver shares: the instance, the injected random
// source and the optional progress observer.
type base struct {
	problem  *model.Problem
	rng      *rand.Rand
	observer Observer
	log      *logrus.Entry
}

func newBase(name string, p *model.Problem, rng *rand.Rand) base {
	return base{
		problem: p,
		rng:     rng,
		log:     logrus.WithFields(logrus.Fields{"solver": name, "instance": p.Name()}),
	}
}

func (b *base) SetObserver(o Observer) { b.observer = o }

func (b *base) notify(name string, iteration int, best float64, done bool) {
	if b.observer != nil {
		b.observer(Progress{Solver: name, Iteration: iteration, BestFitness: best, Done: done})
	}
}

// result evaluates the returned genome. A structurally broken genome at
// this point is an operator bug and aborts the run.
func (b *base) result(s *model.Solution, m Metrics) (Result, error) {
	feasible, err := b.problem.CheckSolution(s)
	if err != nil {
		return Result{}, err
	}
	if !b.problem.ValidStructure(s) {
		return Result{}, fmt.Errorf("returned genome %v: %w", s, model.ErrInvalidEncoding)
	}
	cost := b.problem.CalculateCost(s)
	return Result{Solution: s, Cost: cost, Feasible: feasible, Metrics: m}, nil
}

// objective is the search fitness: route cost plus a penalty per unit of
// capacity overload. The penalty only steers the search; reported costs
// never include it.
type objective struct {
	problem     *model.Problem
	penalty     float64
	evaluations int
}

func (o *objective) fitness(s *model.Solution) float64 {
	o.evaluations++
	f := o.problem.CalculateCost(s)
	if o.penalty > 0 {
		f += o.penalty * float64(o.problem.Overload(s))
	}
	return f
}

// loadValues reads a configuration file; an empty path means defaults.
func loadValues(path string) (config.Values, error) {
	if path == "" {
		return config.Values{}, nil
	}
	return config.Load(path)
}

// initial builds a starting genome for the local searches.
func initial(p *model.Problem, rng *rand.Rand, init string) *model.Solution {
	if init == initRandom {
		return randomSolution(p, rng)
	}
	return greedySolution(p, NoFirstLocation)
}

const (
	initRandom = "random"
	initGreedy = "greedy"
)

const defaultPenalty = 1000.0

func readPenalty(v config.Values) (float64, error) {
	pen, err := v.Float("PENALTY", defaultPenalty)
	if err != nil {
		return defaultPenalty, err
	}
	if pen < 0 {
		return defaultPenalty, config.Invalid("PENALTY", pen, "must be >= 0")
	}
	return pen, nil
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
