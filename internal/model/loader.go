package model

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type section int

const (
	sectionHeader section = iota
	sectionCoords
	sectionDemands
	sectionDepot
	sectionDone
)

// LoadProblem reads a TSPLIB CVRP instance from disk.
func LoadProblem(path string) (*Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open problem: %w", err)
	}
	defer f.Close()
	p, err := ParseProblem(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}

type rawNode struct {
	x, y      float64
	demand    int
	hasCoord  bool
	hasDemand bool
}

// ParseProblem reads the TSPLIB CVRP format: KEY : VALUE headers followed by
// NODE_COORD_SECTION, DEMAND_SECTION and DEPOT_SECTION. Node ids may be
// 0- or 1-based; the depot is relabelled to id 0 and the remaining nodes
// keep their relative order.
func ParseProblem(r io.Reader) (*Problem, error) {
	var (
		name      string
		dimension = -1
		capacity  = -1
		weightTyp string
		nodes     map[int]*rawNode
		depots    []int
		sec       = sectionHeader
		lineNo    int
	)
	node := func(id int) *rawNode {
		if nodes == nil {
			nodes = map[int]*rawNode{}
		}
		if nodes[id] == nil {
			nodes[id] = &rawNode{}
		}
		return nodes[id]
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case upper == "EOF":
			sec = sectionDone
			continue
		case strings.HasPrefix(upper, "NODE_COORD_SECTION"):
			sec = sectionCoords
			continue
		case strings.HasPrefix(upper, "DEMAND_SECTION"):
			sec = sectionDemands
			continue
		case strings.HasPrefix(upper, "DEPOT_SECTION"):
			sec = sectionDepot
			continue
		}
		if sec == sectionDone {
			break
		}

		if key, val, ok := strings.Cut(line, ":"); ok && sec == sectionHeader {
			key = strings.ToUpper(strings.TrimSpace(key))
			val = strings.TrimSpace(val)
			switch key {
			case "NAME":
				name = val
			case "DIMENSION":
				n, err := strconv.Atoi(val)
				if err != nil || n < 2 {
					return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("bad DIMENSION %q", val)}
				}
				dimension = n
			case "CAPACITY":
				c, err := strconv.Atoi(val)
				if err != nil || c <= 0 {
					return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("bad CAPACITY %q", val)}
				}
				capacity = c
			case "EDGE_WEIGHT_TYPE":
				weightTyp = strings.ToUpper(val)
			}
			continue
		}

		fields := strings.Fields(line)
		switch sec {
		case sectionCoords:
			if len(fields) < 3 {
				return nil, &FormatError{Line: lineNo, Msg: "coordinate line needs id, x, y"}
			}
			id, err1 := strconv.Atoi(fields[0])
			x, err2 := strconv.ParseFloat(fields[1], 64)
			y, err3 := strconv.ParseFloat(fields[2], 64)
			if err1 != nil || err2 != nil || err3 != nil {
				return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("bad coordinate line %q", line)}
			}
			n := node(id)
			n.x, n.y, n.hasCoord = x, y, true
		case sectionDemands:
			if len(fields) < 2 {
				return nil, &FormatError{Line: lineNo, Msg: "demand line needs id and demand"}
			}
			id, err1 := strconv.Atoi(fields[0])
			d, err2 := strconv.Atoi(fields[1])
			if err1 != nil || err2 != nil || d < 0 {
				return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("bad demand line %q", line)}
			}
			n := node(id)
			n.demand, n.hasDemand = d, true
		case sectionDepot:
			for _, f := range fields {
				id, err := strconv.Atoi(f)
				if err != nil {
					return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("bad depot id %q", f)}
				}
				if id == -1 {
					sec = sectionDone
					break
				}
				depots = append(depots, id)
			}
		default:
			return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("unexpected line %q", line)}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read problem: %w", err)
	}

	if dimension < 0 {
		return nil, &FormatError{Msg: "missing DIMENSION"}
	}
	if capacity < 0 {
		return nil, &FormatError{Msg: "missing CAPACITY"}
	}
	if weightTyp != "" && weightTyp != "EUC_2D" {
		return nil, &FormatError{Msg: fmt.Sprintf("unsupported EDGE_WEIGHT_TYPE %s", weightTyp)}
	}
	if len(nodes) != dimension {
		return nil, &FormatError{Msg: fmt.Sprintf("DIMENSION is %d but %d nodes were listed", dimension, len(nodes))}
	}

	base := 1
	if _, ok := nodes[0]; ok {
		base = 0
	}
	for id, n := range nodes {
		if id < base || id >= base+dimension {
			return nil, &FormatError{Msg: fmt.Sprintf("node id %d out of range", id)}
		}
		if !n.hasCoord || !n.hasDemand {
			return nil, &FormatError{Msg: fmt.Sprintf("node %d is missing coordinates or demand", id)}
		}
	}

	depot := base
	if len(depots) > 0 {
		depot = depots[0]
	}
	if _, ok := nodes[depot]; !ok {
		return nil, &FormatError{Msg: fmt.Sprintf("depot %d is not a listed node", depot)}
	}

	locations := make([]Location, 0, dimension)
	d := nodes[depot]
	locations = append(locations, Location{ID: 0, X: d.x, Y: d.y, Demand: d.demand})
	for id := base; id < base+dimension; id++ {
		if id == depot {
			continue
		}
		n := nodes[id]
		locations = append(locations, Location{ID: len(locations), X: n.x, Y: n.y, Demand: n.demand})
	}
	return NewProblem(name, capacity, locations)
}
