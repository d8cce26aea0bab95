// Package stats aggregates the costs of repeated solver runs.
package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmpty is returned when a summary is asked of no values.
var ErrEmpty = errors.New("stats: no values")

// Summary holds the aggregate of a run set. Std is the population standard
// deviation.
type Summary struct {
	Count   int
	Best    float64
	Worst   float64
	Average float64
	Std     float64
}

func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrEmpty
	}
	mean, variance := stat.PopMeanVariance(values, nil)
	return Summary{
		Count:   len(values),
		Best:    floats.Min(values),
		Worst:   floats.Max(values),
		Average: mean,
		Std:     math.Sqrt(variance),
	}, nil
}

var header = []string{"best", "worst", "average", "std"}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// WriteCSV writes the best;worst;average;std header and one record.
func (s Summary) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write([]string{formatFloat(s.Best), formatFloat(s.Worst), formatFloat(s.Average), formatFloat(s.Std)}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the summary to path, creating parent directories.
func (s Summary) SaveCSV(path string) error {
	return writeFile(path, s.WriteCSV)
}

// WriteTimings writes one run duration in nanoseconds per line under a
// run;nanoseconds header.
func WriteTimings(w io.Writer, durations []time.Duration) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write([]string{"run", "nanoseconds"}); err != nil {
		return err
	}
	for i, d := range durations {
		if err := cw.Write([]string{strconv.Itoa(i + 1), strconv.FormatInt(d.Nanoseconds(), 10)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func SaveTimings(path string, durations []time.Duration) error {
	return writeFile(path, func(w io.Writer) error { return WriteTimings(w, durations) })
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
