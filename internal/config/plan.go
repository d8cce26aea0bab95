package config

import (
	"errors"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"
)

// Plan describes an experiment batch: every solver is run against every
// problem, Runs times each.
type Plan struct {
	Problems     []string     `yaml:"problems"`
	Solvers      []SolverSpec `yaml:"solvers"`
	Runs         int          `yaml:"runs"`
	MaxAttempts  int          `yaml:"max_attempts"`
	Seed         int64        `yaml:"seed"`
	StatsDir     string       `yaml:"stats_dir"`
	SolutionsDir string       `yaml:"solutions_dir"`
}

// SolverSpec selects one solver kind and its configuration file.
type SolverSpec struct {
	Kind   string `yaml:"kind"`
	Config string `yaml:"config,omitempty"`
	// Runs overrides Plan.Runs for this solver.
	Runs int `yaml:"runs,omitempty"`
	// Sweep runs the greedy solver once per possible first customer
	// instead of Runs times.
	Sweep bool `yaml:"sweep,omitempty"`
}

const (
	DefaultRuns         = 10
	DefaultMaxAttempts  = 100
	DefaultStatsDir     = "stats"
	DefaultSolutionsDir = "solutions"
)

// LoadPlan reads a YAML experiment plan. Relative problem and config paths
// are resolved against the plan's directory.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigLoadError{Path: path, Err: err}
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, &InvalidConfigurationError{Key: "plan", Reason: err.Error()}
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for i, pr := range p.Problems {
		p.Problems[i] = resolve(base, pr)
	}
	for i, s := range p.Solvers {
		if s.Config != "" {
			p.Solvers[i].Config = resolve(base, s.Config)
		}
	}
	return &p, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func (p *Plan) applyDefaults() {
	if p.Runs == 0 {
		p.Runs = DefaultRuns
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.StatsDir == "" {
		p.StatsDir = DefaultStatsDir
	}
	if p.SolutionsDir == "" {
		p.SolutionsDir = DefaultSolutionsDir
	}
}

func (p *Plan) Validate() error {
	if len(p.Problems) == 0 {
		return Invalid("problems", "", "at least one problem is required")
	}
	if len(p.Solvers) == 0 {
		return Invalid("solvers", "", "at least one solver is required")
	}
	if p.Runs < 0 {
		return Invalid("runs", p.Runs, "must be > 0")
	}
	if p.MaxAttempts < 0 {
		return Invalid("max_attempts", p.MaxAttempts, "must be > 0")
	}
	for _, s := range p.Solvers {
		if s.Kind == "" {
			return Invalid("solvers.kind", "", "kind is required")
		}
		if s.Runs < 0 {
			return Invalid("solvers.runs", s.Runs, "must be >= 0")
		}
	}
	return nil
}

// RunsFor returns the number of runs for s.
func (p *Plan) RunsFor(s SolverSpec) int {
	if s.Runs > 0 {
		return s.Runs
	}
	return p.Runs
}

// IsLoadError reports whether err came from reading a file rather than
// from its content.
func IsLoadError(err error) bool { return errors.Is(err, ErrConfigLoad) }
