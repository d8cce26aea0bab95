package model

// CalculateCost walks the depot-anchored path encoded by s and returns its
// total distance. Delimiters are visits to the depot, so consecutive or
// trailing delimiters add nothing. The result is cached on s.
//
// s must only hold customer ids of this problem; CheckSolution validates that.
func (p *Problem) CalculateCost(s *Solution) float64 {
	total := 0.0
	prev := 0
	for _, g := range s.Genes {
		next := g.CustomerID()
		total += p.dist[prev][next]
		prev = next
	}
	total += p.dist[prev][0]
	s.setEvaluation(total)
	return total
}

// Overload sums, over all routes, the demand carried above capacity.
// Feasible genomes have zero overload.
func (p *Problem) Overload(s *Solution) int {
	over := 0
	load := 0
	for _, g := range s.Genes {
		if g.IsDelimiter() {
			if load > p.capacity {
				over += load - p.capacity
			}
			load = 0
			continue
		}
		load += p.locations[g.CustomerID()].Demand
	}
	if load > p.capacity {
		over += load - p.capacity
	}
	return over
}

// CheckSolution reports whether s is a structurally valid and
// capacity-feasible genome. A genome of the wrong length is an operator bug
// and yields an *EncodingError instead of false.
func (p *Problem) CheckSolution(s *Solution) (bool, error) {
	if len(s.Genes) != p.GenomeLength() {
		return false, &EncodingError{Want: p.GenomeLength(), Got: len(s.Genes)}
	}
	if !p.ValidStructure(s) {
		return false, nil
	}
	return p.Overload(s) == 0, nil
}

// ValidStructure checks the permutation invariant: every customer exactly
// once and N-1 delimiters.
func (p *Problem) ValidStructure(s *Solution) bool {
	if len(s.Genes) != p.GenomeLength() {
		return false
	}
	seen := make([]bool, p.Dimension())
	delimiters := 0
	for _, g := range s.Genes {
		switch {
		case g.IsDelimiter():
			delimiters++
		case g == 0 || int(g) >= p.Dimension():
			return false
		case seen[g]:
			return false
		default:
			seen[g] = true
		}
	}
	return delimiters == p.Customers()
}
