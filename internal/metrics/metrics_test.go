package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	ObserveRun("toy", "ga", true, 120, 2, 500, 30*time.Millisecond)
	ObserveRun("toy", "ga", true, 110, 1, 400, 10*time.Millisecond)
	ObserveRun("toy", "ga", true, 130, 1, 400, 10*time.Millisecond)
	ObserveRun("toy", "ga", false, 90, 100, 400, 10*time.Millisecond)

	if got := testutil.ToFloat64(SolverRuns.WithLabelValues("toy", "ga", "true")); got != 3 {
		t.Fatalf("want 3 feasible runs, got %v", got)
	}
	if got := testutil.ToFloat64(BestCost.WithLabelValues("toy", "ga")); got != 110 {
		t.Fatalf("infeasible or worse costs must not lower the gauge: got %v", got)
	}
	if got := testutil.ToFloat64(Evaluations.WithLabelValues("toy", "ga")); got != 1700 {
		t.Fatalf("want 1700 evaluations, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	RegisterDefault()
	ObserveRun("textfile", "sa", true, 1, 1, 1, time.Millisecond)
	path := filepath.Join(t.TempDir(), "cvrp.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `cvrp_solver_runs_total{feasible="true",instance="textfile",solver="sa"} 1`) {
		t.Fatalf("runs counter missing from textfile:\n%s", b)
	}
}
