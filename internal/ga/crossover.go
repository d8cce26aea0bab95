package ga

import (
	"math/rand"

	"cvrpbench/internal/model"
)

// OrderCrossover is OX adapted to the delimiter genome: child 1 keeps a
// random segment of p1 and takes the remaining genes in p2's cyclic order
// starting after the segment; child 2 is the mirror. Delimiters are an
// interchangeable multiset, so the children always hold every customer once
// and the parents' delimiter count whatever labels the parents use.
func OrderCrossover(p1, p2 *model.Solution, rng *rand.Rand) (*model.Solution, *model.Solution, error) {
	n := p1.Len()
	if p2.Len() != n {
		return nil, nil, &model.EncodingError{Want: n, Got: p2.Len()}
	}
	if n < 2 {
		return p1.Clone(), p2.Clone(), nil
	}

	a := rng.Intn(n)
	b := rng.Intn(n)
	if a > b {
		a, b = b, a
	}
	if a == b {
		b = a + 1
	}

	c1 := oxChild(p1.Genes, p2.Genes, a, b)
	c2 := oxChild(p2.Genes, p1.Genes, a, b)
	return c1, c2, nil
}

func oxChild(keep, fill []model.Gene, a, b int) *model.Solution {
	n := len(keep)
	maxID := 0
	delimiters := 0
	for _, g := range keep {
		if g.IsDelimiter() {
			delimiters++
		} else if int(g) > maxID {
			maxID = int(g)
		}
	}

	child := make([]model.Gene, n)
	used := make([]bool, maxID+1)
	budget := delimiters
	for i := a; i < b; i++ {
		g := keep[i]
		child[i] = g
		if g.IsDelimiter() {
			budget--
		} else {
			used[g] = true
		}
	}

	pos := b % n
	for k := 0; k < n && pos != a; k++ {
		g := fill[(b+k)%n]
		if g.IsDelimiter() {
			if budget == 0 {
				continue
			}
			budget--
		} else {
			id := int(g)
			if id < len(used) && used[id] {
				continue
			}
			if id < len(used) {
				used[id] = true
			}
		}
		child[pos] = g
		pos = (pos + 1) % n
	}

	s := model.NewSolution(child)
	s.Canonicalize()
	return s
}
