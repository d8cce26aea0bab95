package model

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Gene is one token of a genome: a customer visit (positive) or a return to
// the depot (negative). The magnitude of a delimiter is only a label.
type Gene int

// Customer returns the gene visiting customer id.
func Customer(id int) Gene { return Gene(id) }

// Delimiter returns a depot-return gene with the given label (label > 0).
func Delimiter(label int) Gene { return Gene(-label) }

func (g Gene) IsDelimiter() bool { return g < 0 }

// CustomerID returns the visited customer, or 0 for a delimiter.
func (g Gene) CustomerID() int {
	if g < 0 {
		return 0
	}
	return int(g)
}

// Solution is a fixed-length genome plus its cached cost.
// The cache is dropped on every mutation made through Swap or Set.
type Solution struct {
	Genes []Gene

	evaluation float64
	evaluated  bool
}

// NewSolution wraps genes without copying them.
func NewSolution(genes []Gene) *Solution {
	return &Solution{Genes: genes}
}

func (s *Solution) Len() int { return len(s.Genes) }

// Evaluation returns the last computed cost and whether it is current.
func (s *Solution) Evaluation() (float64, bool) {
	return s.evaluation, s.evaluated
}

// Invalidate drops the cached cost after a direct edit of Genes.
func (s *Solution) Invalidate() { s.evaluated = false }

func (s *Solution) setEvaluation(cost float64) {
	s.evaluation = cost
	s.evaluated = true
}

// Swap exchanges the genes at i and j.
func (s *Solution) Swap(i, j int) {
	s.Genes[i], s.Genes[j] = s.Genes[j], s.Genes[i]
	s.evaluated = false
}

func (s *Solution) Set(i int, g Gene) {
	s.Genes[i] = g
	s.evaluated = false
}

// Clone returns a deep copy including the cached cost.
func (s *Solution) Clone() *Solution {
	return &Solution{
		Genes:      append([]Gene(nil), s.Genes...),
		evaluation: s.evaluation,
		evaluated:  s.evaluated,
	}
}

// CopyFrom overwrites s with o, reusing the gene buffer when possible.
func (s *Solution) CopyFrom(o *Solution) {
	if cap(s.Genes) >= len(o.Genes) {
		s.Genes = s.Genes[:len(o.Genes)]
	} else {
		s.Genes = make([]Gene, len(o.Genes))
	}
	copy(s.Genes, o.Genes)
	s.evaluation = o.evaluation
	s.evaluated = o.evaluated
}

// Routes decodes the genome into customer sequences. Empty routes
// (consecutive or trailing delimiters) are dropped.
func (s *Solution) Routes() [][]int {
	var routes [][]int
	var cur []int
	for _, g := range s.Genes {
		if g.IsDelimiter() {
			if len(cur) > 0 {
				routes = append(routes, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, g.CustomerID())
	}
	if len(cur) > 0 {
		routes = append(routes, cur)
	}
	return routes
}

// Canonical returns a copy of the genes with delimiters relabelled
// -1, -2, ... from left to right.
func (s *Solution) Canonical() []Gene {
	out := make([]Gene, len(s.Genes))
	label := 0
	for i, g := range s.Genes {
		if g.IsDelimiter() {
			label++
			out[i] = Delimiter(label)
			continue
		}
		out[i] = g
	}
	return out
}

// Canonicalize relabels delimiters in place, see Canonical.
func (s *Solution) Canonicalize() {
	label := 0
	for i, g := range s.Genes {
		if g.IsDelimiter() {
			label++
			s.Genes[i] = Delimiter(label)
		}
	}
}

// Fingerprint hashes the canonical genome, so two genomes differing only in
// delimiter labels share a fingerprint.
func (s *Solution) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, g := range s.Canonical() {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(g)))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// Equal compares genes token by token.
func (s *Solution) Equal(o *Solution) bool {
	if len(s.Genes) != len(o.Genes) {
		return false
	}
	for i := range s.Genes {
		if s.Genes[i] != o.Genes[i] {
			return false
		}
	}
	return true
}

// String renders the token sequence separated by single spaces.
func (s *Solution) String() string {
	var b strings.Builder
	for i, g := range s.Genes {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(int(g)))
	}
	return b.String()
}
