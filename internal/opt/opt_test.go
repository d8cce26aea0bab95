package opt

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrpbench/internal/config"
	"cvrpbench/internal/model"
)

// lineProblem puts four unit-demand customers on the x axis at 1..4.
func lineProblem(t *testing.T, capacity int) *model.Problem {
	t.Helper()
	locs := []model.Location{{ID: 0}}
	for i := 1; i <= 4; i++ {
		locs = append(locs, model.Location{ID: i, X: float64(i), Demand: 1})
	}
	p, err := model.NewProblem("line", capacity, locs)
	require.NoError(t, err)
	return p
}

// gridProblem scatters customers over a 10x10 square so that one unit of
// overload always costs more than any route layout.
func gridProblem(t *testing.T, customers, capacity int, seed int64) *model.Problem {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	locs := []model.Location{{ID: 0, X: 5, Y: 5}}
	for i := 1; i <= customers; i++ {
		locs = append(locs, model.Location{
			ID:     i,
			X:      rng.Float64() * 10,
			Y:      rng.Float64() * 10,
			Demand: 1 + rng.Intn(capacity/2),
		})
	}
	p, err := model.NewProblem("grid", capacity, locs)
	require.NoError(t, err)
	return p
}

func seeded(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solver.cfg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func assertValid(t *testing.T, p *model.Problem, s *model.Solution) {
	t.Helper()
	require.NotNil(t, s)
	require.Equal(t, p.GenomeLength(), s.Len())
	assert.True(t, p.ValidStructure(s), "genome %v", s)
}

func TestGreedyLineScenario(t *testing.T) {
	p := lineProblem(t, 2)
	g, err := NewGreedy(p, NoFirstLocation)
	require.NoError(t, err)

	res, err := g.FindSolution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1 2 -1 3 4 -2 -3 -4", res.Solution.String())
	assert.True(t, res.Feasible)
	assert.InDelta(t, 12.0, res.Cost, 1e-9)
}

func TestGreedyFirstLocation(t *testing.T) {
	p := lineProblem(t, 4)
	g, err := NewGreedy(p, 3)
	require.NoError(t, err)

	res, err := g.FindSolution(context.Background())
	require.NoError(t, err)
	// 3 first, then nearest-first with ties to the lowest id.
	assert.Equal(t, "3 2 1 4 -1 -2 -3 -4", res.Solution.String())
	assert.True(t, res.Feasible)
}

func TestGreedyRejectsFirstLocationOutOfRange(t *testing.T) {
	p := lineProblem(t, 4)
	for _, first := range []int{0, 5, -2} {
		_, err := NewGreedy(p, first)
		assert.ErrorIs(t, err, config.ErrInvalidConfiguration, "first=%d", first)
	}
}

func TestGreedyCapacityBoundary(t *testing.T) {
	two := []model.Location{{ID: 0}, {ID: 1, X: 1, Demand: 3}, {ID: 2, X: 2, Demand: 2}}
	three := append(append([]model.Location(nil), two...), model.Location{ID: 3, X: 3, Demand: 5})
	cases := []struct {
		name     string
		locs     []model.Location
		capacity int
		want     string
	}{
		{"d1+d2 fits one vehicle", two, 5, "1 2 -1 -2"},
		{"d1+d2-1 forces a return", two, 4, "1 -1 2 -2"},
		// 3+2 fills the vehicle exactly; 5 alone fills the next one.
		{"exact fill then full load", three, 5, "1 2 -1 3 -2 -3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := model.NewProblem("boundary", tc.capacity, tc.locs)
			require.NoError(t, err)

			sol := greedySolution(p, NoFirstLocation)
			assert.Equal(t, tc.want, sol.String())
			ok, err := p.CheckSolution(sol)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestGreedyIsDeterministicAndFeasible(t *testing.T) {
	p := gridProblem(t, 25, 20, 7)
	for first := 1; first < p.Dimension(); first++ {
		a := greedySolution(p, first)
		b := greedySolution(p, first)
		assert.True(t, a.Equal(b))
		assertValid(t, p, a)
		ok, err := p.CheckSolution(a)
		require.NoError(t, err)
		assert.True(t, ok, "first=%d", first)
		assert.Equal(t, model.Customer(first), a.Genes[0])
	}
}

func TestRandomSolverClosure(t *testing.T) {
	p := gridProblem(t, 8, 10, 3)
	r := NewRandom(p, seeded(42))
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		res, err := r.FindSolution(context.Background())
		require.NoError(t, err)
		assertValid(t, p, res.Solution)
		seen[res.Solution.String()] = true
	}
	assert.Greater(t, len(seen), 900)
}

func TestMovesPreserveStructure(t *testing.T) {
	p := gridProblem(t, 10, 10, 5)
	rng := seeded(9)
	s := randomSolution(p, rng)
	for i := 0; i < 2000; i++ {
		mv := randomMove(rng, s.Len())
		require.NotEqual(t, mv.I, mv.J)
		mv.Apply(s)
		_, cached := s.Evaluation()
		require.False(t, cached, "%s must invalidate the cached cost", mv.Kind)
		p.CalculateCost(s)
	}
	assertValid(t, p, s)
}

func TestInsertAndReverse(t *testing.T) {
	g := []model.Gene{1, 2, 3, 4, 5}
	insertGene(g, 0, 3)
	assert.Equal(t, []model.Gene{2, 3, 4, 1, 5}, g)
	insertGene(g, 3, 0)
	assert.Equal(t, []model.Gene{1, 2, 3, 4, 5}, g)
	reverseSegment(g, 1, 3)
	assert.Equal(t, []model.Gene{1, 4, 3, 2, 5}, g)
	assert.Equal(t, "reverse", MoveReverse.String())
}

func TestTabuList(t *testing.T) {
	tl := newTabuList(2)
	tl.push(1)
	tl.push(2)
	assert.True(t, tl.contains(1))
	tl.push(3)
	assert.False(t, tl.contains(1))
	assert.True(t, tl.contains(2))
	assert.True(t, tl.contains(3))
	assert.Equal(t, 2, tl.len())

	tl.push(3)
	tl.push(3)
	assert.True(t, tl.contains(3))
	assert.False(t, tl.contains(2))
}

func TestLocalSearchNeverWorseThanGreedy(t *testing.T) {
	p := gridProblem(t, 15, 15, 11)
	greedyCost := p.CalculateCost(greedySolution(p, NoFirstLocation))

	ts := NewTabuSearch(p, seeded(1))
	c := ts.Config()
	c.Iterations, c.NeighborhoodSize = 200, 20
	require.NoError(t, ts.Configure(c))

	sa := NewSimulatedAnnealing(p, seeded(1))
	ac := sa.Config()
	ac.Iterations = 5000
	require.NoError(t, sa.Configure(ac))

	for _, s := range []Solver{ts, sa} {
		res, err := s.FindSolution(context.Background())
		require.NoError(t, err, s.Name())
		assertValid(t, p, res.Solution)
		assert.True(t, res.Feasible, s.Name())
		assert.LessOrEqual(t, res.Cost, greedyCost+1e-9, s.Name())
		assert.LessOrEqual(t, res.Metrics.BestFitness, greedyCost+1e-9, s.Name())
		assert.Positive(t, res.Metrics.Evaluations, s.Name())
	}
}

func TestTabuStopsOnStagnation(t *testing.T) {
	p := lineProblem(t, 4)
	ts := NewTabuSearch(p, seeded(3))
	c := ts.Config()
	c.Iterations, c.StagnationLimit = 10000, 5
	require.NoError(t, ts.Configure(c))

	res, err := ts.FindSolution(context.Background())
	require.NoError(t, err)
	assert.Less(t, res.Metrics.Iterations, 10000)
}

func TestGeneticBestIsMonotone(t *testing.T) {
	p := gridProblem(t, 12, 12, 13)
	g := NewGeneticAlgorithm(p, seeded(2))
	c := g.Config()
	c.PopulationSize, c.Generations = 30, 60
	require.NoError(t, g.Configure(c))

	var reports []Progress
	g.SetObserver(func(pr Progress) { reports = append(reports, pr) })

	res, err := g.FindSolution(context.Background())
	require.NoError(t, err)
	assertValid(t, p, res.Solution)
	require.NotEmpty(t, reports)
	assert.True(t, reports[len(reports)-1].Done)
	for i := 1; i < len(reports); i++ {
		assert.LessOrEqual(t, reports[i].BestFitness, reports[i-1].BestFitness)
	}
	assert.Equal(t, 60, res.Metrics.Iterations)
	assert.InDelta(t, reports[len(reports)-1].BestFitness, res.Metrics.BestFitness, 1e-9)
}

func TestGeneticGreedyInitialization(t *testing.T) {
	p := gridProblem(t, 6, 10, 17)
	g := NewGeneticAlgorithm(p, seeded(4))
	c := g.Config()
	c.PopulationSize, c.Generations, c.Init = 10, 5, initGreedy
	require.NoError(t, g.Configure(c))

	obj := &objective{problem: p, penalty: c.Penalty}
	pop := g.initialPopulation(obj)
	require.Len(t, pop, 10)
	for i := 0; i < p.Customers(); i++ {
		assert.Equal(t, model.Customer(i+1), pop[i].Solution.Genes[0])
	}
	for _, ind := range pop {
		assertValid(t, p, ind.Solution)
	}

	// elitism keeps the greedy seeds' best fitness as an upper bound
	res, err := g.FindSolution(context.Background())
	require.NoError(t, err)
	bestSeed := pop[0].Fitness
	for _, ind := range pop[:p.Customers()] {
		bestSeed = min(bestSeed, ind.Fitness)
	}
	assert.LessOrEqual(t, res.Metrics.BestFitness, bestSeed+1e-9)
}

func TestGeneticIsReproducible(t *testing.T) {
	p := gridProblem(t, 10, 10, 19)
	run := func() string {
		g := NewGeneticAlgorithm(p, seeded(99))
		c := g.Config()
		c.PopulationSize, c.Generations = 20, 20
		require.NoError(t, g.Configure(c))
		res, err := g.FindSolution(context.Background())
		require.NoError(t, err)
		return res.Solution.String()
	}
	assert.Equal(t, run(), run())
}

func TestHybridRefinementSchedule(t *testing.T) {
	p := gridProblem(t, 10, 10, 23)
	cases := []struct {
		name  string
		build func(*model.Problem, *rand.Rand) *HybridSolver
		local string
		want  int
	}{
		{"h1 tabu", NewHybridOne, localTabu, 8},
		{"h1 annealing", NewHybridOne, localAnnealing, 8},
		{"h2 tabu", NewHybridTwo, localTabu, 1},
		{"h2 annealing", NewHybridTwo, localAnnealing, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := tc.build(p, seeded(5))
			c := h.Config()
			c.PopulationSize, c.Generations = 10, 8
			require.NoError(t, h.Configure(c))
			require.NoError(t, h.ConfigureRefinement(HybridConfig{LocalSearch: tc.local, Refine: refineBest, LocalSearchIterations: 20}))

			res, err := h.FindSolution(context.Background())
			require.NoError(t, err)
			assertValid(t, p, res.Solution)
			assert.Equal(t, tc.want, h.refinements)
		})
	}
}

func TestHybridRefineAll(t *testing.T) {
	p := gridProblem(t, 8, 10, 29)
	h := NewHybridTwo(p, seeded(6))
	c := h.Config()
	c.PopulationSize, c.Generations = 6, 3
	require.NoError(t, h.Configure(c))
	require.NoError(t, h.ConfigureRefinement(HybridConfig{LocalSearch: localTabu, Refine: refineAll, LocalSearchIterations: 10}))

	_, err := h.FindSolution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, h.refinements)
	assert.Equal(t, string(KindHybridTwo), h.Name())
}

func TestCancelledContext(t *testing.T) {
	p := gridProblem(t, 10, 10, 31)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, kind := range Kinds {
		s, err := New(kind, p, seeded(1))
		require.NoError(t, err)
		_, err = s.FindSolution(ctx)
		if kind == KindAnnealing {
			// polled every few hundred iterations
			continue
		}
		assert.ErrorIs(t, err, context.Canceled, string(kind))
	}
}

func TestParseKindAndNew(t *testing.T) {
	p := lineProblem(t, 2)
	for alias, want := range map[string]Kind{"GA": KindGenetic, "tabu": KindTabu, " sa ": KindAnnealing, "hybrid2": KindHybridTwo} {
		k, err := ParseKind(alias)
		require.NoError(t, err)
		assert.Equal(t, want, k)
	}
	_, err := ParseKind("ant-colony")
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)

	for _, k := range Kinds {
		s, err := New(k, p, seeded(1))
		require.NoError(t, err)
		assert.Equal(t, string(k), s.Name())
		_, ok := s.(Observable)
		assert.True(t, ok, string(k))
	}
	_, err = New("nope", p, seeded(1))
	assert.Error(t, err)
}

type scripted struct {
	feasibleAt int
	calls      int
}

func (s *scripted) Name() string                  { return "scripted" }
func (s *scripted) LoadConfiguration(string) error { return nil }
func (s *scripted) FindSolution(context.Context) (Result, error) {
	s.calls++
	return Result{Cost: float64(s.calls), Feasible: s.calls == s.feasibleAt}, nil
}

func TestSolveFeasible(t *testing.T) {
	s := &scripted{feasibleAt: 3}
	res, attempts, err := SolveFeasible(context.Background(), s, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, res.Feasible)

	s = &scripted{feasibleAt: -1}
	res, attempts, err = SolveFeasible(context.Background(), s, 4)
	assert.ErrorIs(t, err, ErrNoFeasibleSolution)
	assert.Equal(t, 4, attempts)
	assert.False(t, res.Feasible)
	assert.Equal(t, 4.0, res.Cost)
}

func TestLoadConfiguration(t *testing.T) {
	p := lineProblem(t, 2)

	ga := NewGeneticAlgorithm(p, seeded(1))
	require.NoError(t, ga.LoadConfiguration(writeConfig(t, "POPULATION_SIZE: 40\nselection: ROULETTE\nUNKNOWN_KEY: 1\n")))
	assert.Equal(t, 40, ga.Config().PopulationSize)
	assert.Equal(t, "roulette", ga.Config().Selection)
	assert.Equal(t, 500, ga.Config().Generations)

	err := ga.LoadConfiguration(writeConfig(t, "GENERATIONS: many\n"))
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
	assert.Equal(t, 500, ga.Config().Generations, "a failed load must not change the configuration")

	sa := NewSimulatedAnnealing(p, seeded(1))
	err = sa.LoadConfiguration(writeConfig(t, "COOLING_RATE: 1.0\n"))
	var icErr *config.InvalidConfigurationError
	require.True(t, errors.As(err, &icErr))
	assert.Equal(t, "COOLING_RATE", icErr.Key)

	ts := NewTabuSearch(p, seeded(1))
	err = ts.LoadConfiguration(filepath.Join(t.TempDir(), "missing.cfg"))
	assert.ErrorIs(t, err, config.ErrConfigLoad)

	g, err := NewGreedy(p, NoFirstLocation)
	require.NoError(t, err)
	require.NoError(t, g.LoadConfiguration(writeConfig(t, "FIRST_CITY: 2\n")))
	assert.Equal(t, 2, g.FirstLocation())
	assert.ErrorIs(t, g.LoadConfiguration(writeConfig(t, "FIRST_CITY: 9\n")), config.ErrInvalidConfiguration)

	h := NewHybridOne(p, seeded(1))
	require.NoError(t, h.LoadConfiguration(writeConfig(t, "LOCAL_SEARCH: annealing\nREFINE: all\nTABU_SIZE: 7\nGENERATIONS: 3\n")))
	assert.Equal(t, localAnnealing, h.RefinementConfig().LocalSearch)
	assert.Equal(t, 7, h.tabu.Config().TabuSize)
	assert.Equal(t, 3, h.Config().Generations)
}

func TestHybridLoadConfigurationIsAllOrNothing(t *testing.T) {
	p := lineProblem(t, 2)
	h := NewHybridTwo(p, seeded(1))
	before := h.tabu.Config()

	err := h.LoadConfiguration(writeConfig(t, "GENERATIONS: 9\nREFINE: all\nTABU_SIZE: 7\nCOOLING_RATE: 1.5\n"))
	var icErr *config.InvalidConfigurationError
	require.ErrorAs(t, err, &icErr)
	assert.Equal(t, "COOLING_RATE", icErr.Key)

	assert.Equal(t, before, h.tabu.Config())
	assert.Equal(t, DefaultAnnealingConfig(), h.annealing.Config())
	assert.Equal(t, DefaultHybridConfig(), h.RefinementConfig())
	assert.Equal(t, 500, h.Config().Generations)
}

func TestMetricsStore(t *testing.T) {
	RecordMetrics("inst-a", "ga", Metrics{Iterations: 3})
	RecordMetrics("inst-a", "ts", Metrics{Iterations: 5})
	RecordMetrics("inst-b", "ga", Metrics{Iterations: 7})

	got := GetMetrics("inst-a")
	require.Len(t, got, 2)
	assert.Equal(t, 5, got["ts"].Iterations)
	assert.Empty(t, GetMetrics("inst-c"))
}
