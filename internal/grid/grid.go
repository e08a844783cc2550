// Package grid provides the cell grid, oriented nodes and track transitions
// the moving-block simulation runs on.
//
// Every other package consumes the track layout only through the Topology
// interface: given a cell and the direction a train is facing, which
// directions may it leave in.
package grid

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

var (
	ErrOutOfBounds      = errors.New("cell out of bounds")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrNotAdjacent      = errors.New("cells are not adjacent")
)

// Cell is a 2D integer grid coordinate.
type Cell struct {
	Row int `json:"row" yaml:"row" msgpack:"r"`
	Col int `json:"col" yaml:"col" msgpack:"c"`
}

// NoCell stands for "no position". Infrastructure lookups answer it with defaults.
var NoCell = Cell{Row: -1, Col: -1}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// Direction is a compass-aligned facing.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// NumDirections is the number of facings per cell.
const NumDirections = 4

var directionNames = [NumDirections]string{"N", "E", "S", "W"}

func (d Direction) Valid() bool { return d >= North && d <= West }

func (d Direction) Opposite() Direction { return (d + 2) % NumDirections }

// Left returns the facing after a 90 degree turn to the left.
func (d Direction) Left() Direction { return (d + 3) % NumDirections }

// Right returns the facing after a 90 degree turn to the right.
func (d Direction) Right() Direction { return (d + 1) % NumDirections }

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, int(d))
	}
	return []byte(directionNames[d]), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "n", "north":
		*d = North
	case "e", "east":
		*d = East
	case "s", "south":
		*d = South
	case "w", "west":
		*d = West
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, text)
	}
	return nil
}

// Neighbor returns the cell one step from c in direction d. The result may lie
// outside the grid.
func Neighbor(c Cell, d Direction) Cell {
	switch d {
	case North:
		return Cell{Row: c.Row - 1, Col: c.Col}
	case East:
		return Cell{Row: c.Row, Col: c.Col + 1}
	case South:
		return Cell{Row: c.Row + 1, Col: c.Col}
	case West:
		return Cell{Row: c.Row, Col: c.Col - 1}
	}
	return c
}

// DirectionBetween returns the direction leading from a to the adjacent cell b.
func DirectionBetween(a, b Cell) (Direction, error) {
	for d := North; d <= West; d++ {
		if Neighbor(a, d) == b {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %v and %v", ErrNotAdjacent, a, b)
}

// Transitions is a 4-bit mask of outgoing directions, bit i set for Direction(i).
type Transitions uint8

// Bit returns the mask with only d set.
func Bit(d Direction) Transitions { return 1 << uint(d) }

func (t Transitions) Has(d Direction) bool { return t&Bit(d) != 0 }

func (t Transitions) Count() int { return bits.OnesCount8(uint8(t & 0xF)) }

// Directions lists the set directions in N, E, S, W order.
func (t Transitions) Directions() []Direction {
	var ds []Direction
	for d := North; d <= West; d++ {
		if t.Has(d) {
			ds = append(ds, d)
		}
	}
	return ds
}

// Node is an oriented position: a cell and the direction a train in it faces.
type Node struct {
	Cell Cell      `json:"cell" yaml:"cell" msgpack:"cell"`
	Dir  Direction `json:"direction" yaml:"direction" msgpack:"dir"`
}

func (n Node) String() string { return fmt.Sprintf("%v/%v", n.Cell, n.Dir) }

// Topology is the track layout capability consumed by the simulation.
type Topology interface {
	Height() int
	Width() int
	// Transitions returns the outgoing directions permitted for a train in c
	// facing in.
	Transitions(c Cell, in Direction) Transitions
}

// InBounds reports whether c lies on the grid of t.
func InBounds(t Topology, c Cell) bool {
	return c.Row >= 0 && c.Row < t.Height() && c.Col >= 0 && c.Col < t.Width()
}

// Index returns the row-major index of c.
func Index(t Topology, c Cell) int { return c.Row*t.Width() + c.Col }

// HasTrack reports whether any transition leaves c.
func HasTrack(t Topology, c Cell) bool {
	for in := North; in <= West; in++ {
		if t.Transitions(c, in) != 0 {
			return true
		}
	}
	return false
}

// Connected reports whether a direct track transition joins c and its
// neighbour in direction d, in either travel direction. Grid adjacency alone
// is not enough.
func Connected(t Topology, c Cell, d Direction) bool {
	n := Neighbor(c, d)
	if !InBounds(t, c) || !InBounds(t, n) {
		return false
	}
	back := d.Opposite()
	for in := North; in <= West; in++ {
		if t.Transitions(c, in).Has(d) || t.Transitions(n, in).Has(back) {
			return true
		}
	}
	return false
}
