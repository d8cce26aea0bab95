package opt

import (
	"fmt"
	"math/rand"

	"cvrpbench/internal/model"
)

// MoveKind is a neighbourhood operator over the genome.
type MoveKind int

const (
	// MoveSwap exchanges the genes at I and J.
	MoveSwap MoveKind = iota
	// MoveInsert removes the gene at I and reinserts it at J.
	MoveInsert
	// MoveReverse reverses the segment between I and J (2-opt).
	MoveReverse
)

func (k MoveKind) String() string {
	switch k {
	case MoveSwap:
		return "swap"
	case MoveInsert:
		return "insert"
	case MoveReverse:
		return "reverse"
	}
	return fmt.Sprintf("move(%d)", int(k))
}

// Move only permutes existing tokens, so every neighbour of a structurally
// valid genome is structurally valid too.
type Move struct {
	Kind MoveKind
	I, J int
}

// randomMove draws a move kind and two distinct positions of a genome of length n.
func randomMove(rng *rand.Rand, n int) Move {
	i := rng.Intn(n)
	j := rng.Intn(n - 1)
	if j >= i {
		j++
	}
	return Move{Kind: MoveKind(rng.Intn(3)), I: i, J: j}
}

// Apply performs the move in place.
func (m Move) Apply(s *model.Solution) {
	switch m.Kind {
	case MoveSwap:
		s.Swap(m.I, m.J)
	case MoveInsert:
		insertGene(s.Genes, m.I, m.J)
		s.Invalidate()
	case MoveReverse:
		i, k := m.I, m.J
		if i > k {
			i, k = k, i
		}
		reverseSegment(s.Genes, i, k)
		s.Invalidate()
	}
}

func insertGene(genes []model.Gene, from, to int) {
	g := genes[from]
	if from < to {
		copy(genes[from:to], genes[from+1:to+1])
	} else {
		copy(genes[to+1:from+1], genes[to:from])
	}
	genes[to] = g
}

// reverseSegment reverses genes[i..k] inclusive.
func reverseSegment(genes []model.Gene, i, k int) {
	for a, b := i, k; a < b; a, b = a+1, b-1 {
		genes[a], genes[b] = genes[b], genes[a]
	}
}
