package model

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteSolution renders s for inspection: a small header, one line per
// non-empty route and the raw token sequence.
func WriteSolution(w io.Writer, p *Problem, s *Solution) error {
	feasible, err := p.CheckSolution(s)
	if err != nil {
		return err
	}
	if !p.ValidStructure(s) {
		return fmt.Errorf("genome %q: %w", s.String(), ErrInvalidEncoding)
	}
	cost := p.CalculateCost(s)

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "NAME: %s\n", p.Name())
	fmt.Fprintf(bw, "COST: %s\n", strconv.FormatFloat(cost, 'f', -1, 64))
	fmt.Fprintf(bw, "FEASIBLE: %t\n", feasible)
	for i, route := range s.Routes() {
		fmt.Fprintf(bw, "Route #%d:", i+1)
		for _, c := range route {
			fmt.Fprintf(bw, " %d", c)
		}
		bw.WriteByte('\n')
	}
	fmt.Fprintf(bw, "GENOME: %s\n", s.String())
	return bw.Flush()
}

// ParseGenome reads a whitespace separated token sequence.
func ParseGenome(text string) (*Solution, error) {
	fields := strings.Fields(text)
	genes := make([]Gene, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v == 0 {
			return nil, &FormatError{Msg: fmt.Sprintf("bad token %q", f)}
		}
		genes = append(genes, Gene(v))
	}
	return NewSolution(genes), nil
}

// ParseSolution reads the GENOME line written by WriteSolution. A stream
// holding only a bare token sequence is accepted too.
func ParseSolution(r io.Reader) (*Solution, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var bare []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "GENOME:"); ok {
			return ParseGenome(rest)
		}
		if !strings.Contains(line, ":") {
			bare = append(bare, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read solution: %w", err)
	}
	if len(bare) == 0 {
		return nil, &FormatError{Msg: "no genome found"}
	}
	return ParseGenome(strings.Join(bare, " "))
}
