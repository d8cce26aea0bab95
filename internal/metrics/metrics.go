package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for solver runs
	Registry = prometheus.NewRegistry()
	// SolverRuns counts finished runs by instance, solver and feasibility
	SolverRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cvrp_solver_runs_total", Help: "Finished solver runs."},
		[]string{"instance", "solver", "feasible"},
	)
	// SolverDuration records wall time per run in seconds, retries included
	SolverDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "cvrp_solver_run_duration_seconds", Help: "Solver run duration in seconds.", Buckets: prometheus.ExponentialBuckets(0.001, 4, 10)},
		[]string{"instance", "solver"},
	)
	// SolverAttempts observes how many FindSolution calls a feasible result took
	SolverAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "cvrp_solver_attempts", Help: "FindSolution calls per run.", Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100}},
		[]string{"instance", "solver"},
	)
	// BestCost is the lowest feasible cost seen per instance and solver
	BestCost = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "cvrp_best_cost", Help: "Best feasible cost found."},
		[]string{"instance", "solver"},
	)
	// Evaluations counts fitness evaluations spent by searches
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cvrp_fitness_evaluations_total", Help: "Fitness evaluations performed."},
		[]string{"instance", "solver"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(SolverRuns)
		Registry.MustRegister(SolverDuration)
		Registry.MustRegister(SolverAttempts)
		Registry.MustRegister(BestCost)
		Registry.MustRegister(Evaluations)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

var (
	bestMu sync.Mutex
	best   = map[[2]string]float64{}
)

// ObserveRun records one finished run.
func ObserveRun(instance, solver string, feasible bool, cost float64, attempts, evaluations int, d time.Duration) {
	f := "false"
	if feasible {
		f = "true"
	}
	SolverRuns.WithLabelValues(instance, solver, f).Inc()
	SolverDuration.WithLabelValues(instance, solver).Observe(d.Seconds())
	SolverAttempts.WithLabelValues(instance, solver).Observe(float64(attempts))
	Evaluations.WithLabelValues(instance, solver).Add(float64(evaluations))
	if !feasible {
		return
	}
	k := [2]string{instance, solver}
	bestMu.Lock()
	if b, ok := best[k]; !ok || cost < b {
		best[k] = cost
		BestCost.WithLabelValues(instance, solver).Set(cost)
	}
	bestMu.Unlock()
}

// WriteTextfile dumps Registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
