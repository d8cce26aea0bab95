package opt

import "sync"

// Metrics describes one search run.
type Metrics struct {
	Iterations    int
	Improvements  int
	AcceptedWorse int
	Evaluations   int
	BestFitness   float64
	FinalFitness  float64
	Trace         []TracePoint
}

// TracePoint samples the best fitness every traceEvery iterations.
type TracePoint struct {
	Iteration   int
	BestFitness float64
}

const traceEvery = 50

func (m *Metrics) sample(iteration int, best float64) {
	if iteration%traceEvery == 0 {
		m.Trace = append(m.Trace, TracePoint{Iteration: iteration, BestFitness: best})
	}
}

// absorb adds the counters of a nested search (hybrid refinements).
func (m *Metrics) absorb(o Metrics) {
	m.Evaluations += o.Evaluations
	m.AcceptedWorse += o.AcceptedWorse
}

type key struct {
	Instance string
	Solver   string
}

var (
	mu    sync.Mutex
	store = map[key]Metrics{}
)

// RecordMetrics keeps the metrics of the latest run per instance and solver.
func RecordMetrics(instance, solver string, m Metrics) {
	mu.Lock()
	store[key{Instance: instance, Solver: solver}] = m
	mu.Unlock()
}

// GetMetrics returns the latest metrics of every solver run on instance.
func GetMetrics(instance string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for k, v := range store {
		if k.Instance == instance {
			out[k.Solver] = v
		}
	}
	return out
}
