// Package switches finds the switch cells of a track layout and groups cells
// into the clusters that are locked as one unit: interlocking groups of
// connected switches, and the connecting edges between them.
package switches

import (
	"github.com/cxd309/movingblock/internal/grid"
)

const neighbourFlag = 0x10

// Classification marks every cell as a switch, a switch-neighbour or neither.
// It is computed once per topology and never changes afterwards.
type Classification struct {
	height, width int
	// Low nibble: incoming directions from which the cell branches.
	flags []uint8
}

// Classify scans t. A cell is a switch if some incoming direction has more
// than one outgoing transition; a non-switch cell is a switch-neighbour if
// one move from it can enter a switch.
func Classify(t grid.Topology) *Classification {
	c := &Classification{
		height: t.Height(),
		width:  t.Width(),
		flags:  make([]uint8, t.Height()*t.Width()),
	}
	for r := 0; r < c.height; r++ {
		for col := 0; col < c.width; col++ {
			cell := grid.Cell{Row: r, Col: col}
			for in := grid.North; in <= grid.West; in++ {
				if t.Transitions(cell, in).Count() > 1 {
					c.flags[c.index(cell)] |= uint8(grid.Bit(in))
				}
			}
		}
	}
	for r := 0; r < c.height; r++ {
		for col := 0; col < c.width; col++ {
			cell := grid.Cell{Row: r, Col: col}
			if c.IsSwitch(cell) {
				continue
			}
			if c.leadsIntoSwitch(t, cell) {
				c.flags[c.index(cell)] |= neighbourFlag
			}
		}
	}
	return c
}

func (c *Classification) leadsIntoSwitch(t grid.Topology, cell grid.Cell) bool {
	for in := grid.North; in <= grid.West; in++ {
		for _, out := range t.Transitions(cell, in).Directions() {
			if c.IsSwitch(grid.Neighbor(cell, out)) {
				return true
			}
		}
	}
	return false
}

func (c *Classification) index(cell grid.Cell) int { return cell.Row*c.width + cell.Col }

func (c *Classification) inBounds(cell grid.Cell) bool {
	return cell.Row >= 0 && cell.Row < c.height && cell.Col >= 0 && cell.Col < c.width
}

func (c *Classification) IsSwitch(cell grid.Cell) bool {
	return c.inBounds(cell) && c.flags[c.index(cell)]&0xF != 0
}

func (c *Classification) IsNeighbour(cell grid.Cell) bool {
	return c.inBounds(cell) && c.flags[c.index(cell)]&neighbourFlag != 0
}

// IsDecision reports whether a train entering cell facing in has a choice of
// route there.
func (c *Classification) IsDecision(cell grid.Cell, in grid.Direction) bool {
	return c.inBounds(cell) && in.Valid() && grid.Transitions(c.flags[c.index(cell)]).Has(in)
}

// Switches lists switch cells in row-major order.
func (c *Classification) Switches() []grid.Cell { return c.collect(c.IsSwitch) }

// Neighbours lists switch-neighbour cells in row-major order.
func (c *Classification) Neighbours() []grid.Cell { return c.collect(c.IsNeighbour) }

func (c *Classification) collect(keep func(grid.Cell) bool) []grid.Cell {
	var cells []grid.Cell
	for r := 0; r < c.height; r++ {
		for col := 0; col < c.width; col++ {
			if cell := (grid.Cell{Row: r, Col: col}); keep(cell) {
				cells = append(cells, cell)
			}
		}
	}
	return cells
}
