// Package experiment sequences solver runs over problem instances and
// writes the statistics, best solutions and run records they produce.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"cvrpbench/internal/config"
	"cvrpbench/internal/metrics"
	"cvrpbench/internal/model"
	"cvrpbench/internal/opt"
	"cvrpbench/internal/progress"
	"cvrpbench/internal/stats"
	"cvrpbench/internal/store"
	"cvrpbench/internal/sysinfo"
)

// Runner executes plans. Store is required; Progress may be nil.
type Runner struct {
	Store    store.Store
	Progress progress.Publisher
	Log      *logrus.Entry
	// Now is the clock used for run timestamps and output names.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) log() *logrus.Entry {
	if r.Log != nil {
		return r.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Outcome summarises one solver on one instance.
type Outcome struct {
	Instance     string
	Solver       string
	Runs         int
	Failures     int
	Summary      stats.Summary
	Best         opt.Result
	StatsPath    string
	SolutionPath string
}

// Job is one solver invocation request.
type Job struct {
	Kind        opt.Kind
	ConfigPath  string
	Index       int
	Seed        int64
	MaxAttempts int
	// FirstLocation, when > 0, overrides the greedy start customer.
	FirstLocation int
}

// Run executes every solver of the plan against every problem in order.
func (r *Runner) Run(ctx context.Context, plan *config.Plan) ([]Outcome, error) {
	baseSeed := plan.Seed
	if baseSeed == 0 {
		baseSeed = r.now().UnixNano()
	}
	var out []Outcome
	for _, path := range plan.Problems {
		p, err := model.LoadProblem(path)
		if err != nil {
			return out, err
		}
		r.log().WithFields(logrus.Fields{"instance": p.Name(), "dimension": p.Dimension(), "capacity": p.Capacity()}).Info("problem loaded")
		for _, sv := range plan.Solvers {
			o, err := r.runSolver(ctx, p, plan, sv, baseSeed)
			if err != nil {
				return out, err
			}
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *Runner) runSolver(ctx context.Context, p *model.Problem, plan *config.Plan, sv config.SolverSpec, baseSeed int64) (Outcome, error) {
	kind, err := opt.ParseKind(sv.Kind)
	if err != nil {
		return Outcome{}, err
	}
	o := Outcome{Instance: p.Name(), Solver: string(kind)}
	log := r.log().WithFields(logrus.Fields{"instance": p.Name(), "solver": kind})

	jobs := make([]Job, 0, plan.RunsFor(sv))
	if sv.Sweep && kind == opt.KindGreedy {
		for first := 1; first < p.Dimension(); first++ {
			jobs = append(jobs, Job{Kind: kind, Index: first, MaxAttempts: 1, FirstLocation: first})
		}
	} else {
		for i := 1; i <= plan.RunsFor(sv); i++ {
			jobs = append(jobs, Job{
				Kind:        kind,
				ConfigPath:  sv.Config,
				Index:       i,
				Seed:        baseSeed + int64(i),
				MaxAttempts: plan.MaxAttempts,
			})
		}
	}

	var costs []float64
	var durations []time.Duration
	for _, job := range jobs {
		res, run, err := r.Solve(ctx, p, job)
		durations = append(durations, run.Duration)
		o.Runs++
		switch {
		case errors.Is(err, opt.ErrNoFeasibleSolution):
			o.Failures++
			log.WithField("run", job.Index).Warn(err)
			continue
		case err != nil:
			return o, err
		}
		costs = append(costs, res.Cost)
		if o.Best.Solution == nil || res.Cost < o.Best.Cost {
			o.Best = res
		}
	}

	if len(costs) == 0 {
		log.WithField("runs", o.Runs).Error("no feasible run, statistics skipped")
		return o, nil
	}
	if o.Summary, err = stats.Summarize(costs); err != nil {
		return o, err
	}
	o.StatsPath = filepath.Join(plan.StatsDir, fmt.Sprintf("%sStats%s.csv", kind, p.Name()))
	if err := o.Summary.SaveCSV(o.StatsPath); err != nil {
		return o, err
	}
	if err := stats.SaveTimings(filepath.Join(plan.StatsDir, fmt.Sprintf("%sPerformance%s.csv", kind, p.Name())), durations); err != nil {
		return o, err
	}
	o.SolutionPath = filepath.Join(plan.SolutionsDir, r.now().Format("2006-01-02.15-04-05.000.")+p.Name()+"."+string(kind)+".sol")
	if err := SaveSolution(o.SolutionPath, p, o.Best.Solution); err != nil {
		return o, err
	}
	log.WithFields(logrus.Fields{
		"best":     o.Summary.Best,
		"worst":    o.Summary.Worst,
		"average":  o.Summary.Average,
		"std":      o.Summary.Std,
		"failures": o.Failures,
	}).Info("solver finished")
	return o, nil
}

// Solve builds, configures and runs one solver, then records the run in the
// store and the metrics registry. Random results are accepted as they come;
// every other kind is retried until feasible or MaxAttempts is spent.
func (r *Runner) Solve(ctx context.Context, p *model.Problem, job Job) (opt.Result, store.Run, error) {
	s, err := r.build(p, job)
	if err != nil {
		return opt.Result{}, store.Run{}, err
	}
	if o, ok := s.(opt.Observable); ok && r.Progress != nil {
		o.SetObserver(progress.Observer(ctx, r.Progress, p.Name(), job.Index))
	}

	started := r.now()
	t0 := time.Now()
	var res opt.Result
	attempts := 1
	if job.Kind == opt.KindRandom {
		res, err = s.FindSolution(ctx)
	} else {
		res, attempts, err = opt.SolveFeasible(ctx, s, job.MaxAttempts)
	}
	elapsed := time.Since(t0)
	run := store.Run{
		Instance:  p.Name(),
		Solver:    s.Name(),
		Index:     job.Index,
		Cost:      res.Cost,
		Feasible:  res.Feasible,
		Attempts:  attempts,
		Duration:  elapsed,
		StartedAt: started,
		Seed:      job.Seed,
		Host:      sysinfo.Collect().String(),
	}
	if err != nil && !errors.Is(err, opt.ErrNoFeasibleSolution) {
		return res, run, err
	}
	if res.Solution != nil {
		run.Genome = res.Solution.String()
	}

	opt.RecordMetrics(p.Name(), s.Name(), res.Metrics)
	metrics.ObserveRun(p.Name(), s.Name(), res.Feasible, res.Cost, attempts, res.Metrics.Evaluations, elapsed)
	id, serr := r.Store.SaveRun(ctx, run)
	if serr != nil {
		return res, run, serr
	}
	run.ID = id
	r.log().WithFields(logrus.Fields{
		"instance": p.Name(),
		"solver":   s.Name(),
		"run":      job.Index,
		"cost":     res.Cost,
		"feasible": res.Feasible,
		"attempts": attempts,
		"elapsed":  elapsed,
	}).Debug("run recorded")
	return res, run, err
}

func (r *Runner) build(p *model.Problem, job Job) (opt.Solver, error) {
	if job.Kind == opt.KindGreedy {
		g, err := opt.NewGreedy(p, opt.NoFirstLocation)
		if err != nil {
			return nil, err
		}
		if job.ConfigPath != "" {
			if err := g.LoadConfiguration(job.ConfigPath); err != nil {
				return nil, err
			}
		}
		if job.FirstLocation > 0 {
			if err := g.SetFirstLocation(job.FirstLocation); err != nil {
				return nil, err
			}
		}
		return g, nil
	}
	s, err := opt.New(job.Kind, p, rand.New(rand.NewSource(job.Seed)))
	if err != nil {
		return nil, err
	}
	if err := s.LoadConfiguration(job.ConfigPath); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveSolution writes s in the solution text format, creating parent
// directories.
func SaveSolution(path string, p *model.Problem, s *model.Solution) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := model.WriteSolution(f, p, s); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
