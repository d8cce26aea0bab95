package model

import (
	"fmt"
	"math"
)

// Location is a depot or customer of a CVRP instance. ID 0 is the depot.
type Location struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Demand int     `json:"demand"`
}

// Problem is an immutable CVRP instance. It is safe to share between
// solvers; nothing mutates it after NewProblem returns.
type Problem struct {
	name      string
	capacity  int
	locations []Location
	dist      [][]float64
}

// NewProblem validates the locations and precomputes the Euclidean
// distance matrix. locations[i].ID must equal i and locations[0] is the depot.
func NewProblem(name string, capacity int, locations []Location) (*Problem, error) {
	if len(locations) < 2 {
		return nil, fmt.Errorf("problem %q: need a depot and at least one customer, got %d locations", name, len(locations))
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("problem %q: capacity must be > 0 (got %d)", name, capacity)
	}
	for i, loc := range locations {
		if loc.ID != i {
			return nil, fmt.Errorf("problem %q: location at index %d has id %d", name, i, loc.ID)
		}
		if loc.Demand < 0 {
			return nil, fmt.Errorf("problem %q: location %d has negative demand %d", name, i, loc.Demand)
		}
		if loc.Demand > capacity {
			return nil, fmt.Errorf("problem %q: location %d demand %d exceeds capacity %d", name, i, loc.Demand, capacity)
		}
	}
	if locations[0].Demand != 0 {
		return nil, fmt.Errorf("problem %q: depot demand must be 0 (got %d)", name, locations[0].Demand)
	}

	locs := append([]Location(nil), locations...)
	n := len(locs)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			d := math.Hypot(locs[i].X-locs[j].X, locs[i].Y-locs[j].Y)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return &Problem{name: name, capacity: capacity, locations: locs, dist: dist}, nil
}

func (p *Problem) Name() string { return p.name }

// Dimension is the number of locations including the depot.
func (p *Problem) Dimension() int { return len(p.locations) }

// Customers is Dimension()-1.
func (p *Problem) Customers() int { return len(p.locations) - 1 }

func (p *Problem) Capacity() int { return p.capacity }

func (p *Problem) Location(id int) Location { return p.locations[id] }

func (p *Problem) Demand(id int) int { return p.locations[id].Demand }

// Distance returns the Euclidean distance between two location ids.
func (p *Problem) Distance(i, j int) float64 { return p.dist[i][j] }

// GenomeLength is the fixed number of genes of every solution: 2·(N-1).
func (p *Problem) GenomeLength() int { return 2 * p.Customers() }

// TotalDemand sums all customer demands.
func (p *Problem) TotalDemand() int {
	total := 0
	for _, loc := range p.locations {
		total += loc.Demand
	}
	return total
}
