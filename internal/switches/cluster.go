package switches

import (
	"github.com/cxd309/movingblock/internal/grid"
)

// ClusterID labels a cluster. NoCluster marks cells outside any cluster.
type ClusterID int

const NoCluster ClusterID = 0

// Clusters holds the two independent labelings of a layout: switch clusters
// (interlocking groups) and connecting-edge clusters.
type Clusters struct {
	height, width int
	switchID      []ClusterID
	edgeID        []ClusterID
	// Reverse maps indexed by id; entry 0 is unused.
	switchMembers [][]grid.Cell
	edgeMembers   [][]grid.Cell
}

// BuildClusters labels the connected components of switch cells, then of the
// remaining track cells minus switch-neighbours, and finally folds each
// switch-neighbour into the edge cluster it is connected to. Cells count as
// connected only when the topology has a transition between them. Ids are
// assigned in row-major order of first appearance, so rebuilding on the same
// layout gives the same ids.
func BuildClusters(t grid.Topology, c *Classification) *Clusters {
	cl := &Clusters{height: t.Height(), width: t.Width()}

	cl.switchID = label(t, c.IsSwitch)
	cl.edgeID = label(t, func(cell grid.Cell) bool {
		return !c.IsSwitch(cell) && !c.IsNeighbour(cell) && grid.HasTrack(t, cell)
	})

	next := ClusterID(0)
	for _, id := range cl.edgeID {
		next = max(next, id)
	}
	for _, cell := range c.Neighbours() {
		id := NoCluster
		for d := grid.North; d <= grid.West; d++ {
			n := grid.Neighbor(cell, d)
			if c.IsSwitch(n) || !grid.Connected(t, cell, d) {
				continue
			}
			if nid := cl.edgeID[cl.index(n)]; nid != NoCluster {
				id = nid
				break
			}
		}
		if id == NoCluster {
			next++
			id = next
		}
		cl.edgeID[cl.index(cell)] = id
	}

	cl.switchMembers = members(cl.switchID, cl.width)
	cl.edgeMembers = members(cl.edgeID, cl.width)
	return cl
}

// label runs the two-pass connected-component labeling over the cells
// selected by in.
func label(t grid.Topology, in func(grid.Cell) bool) []ClusterID {
	w := t.Width()
	prov := make([]int, t.Height()*w)
	ls := newLabels()

	for r := 0; r < t.Height(); r++ {
		for c := 0; c < w; c++ {
			cell := grid.Cell{Row: r, Col: c}
			if !in(cell) {
				continue
			}
			var up, left int
			if r > 0 && grid.Connected(t, cell, grid.North) {
				up = prov[(r-1)*w+c]
			}
			if c > 0 && grid.Connected(t, cell, grid.West) {
				left = prov[r*w+c-1]
			}
			switch {
			case up == 0 && left == 0:
				prov[r*w+c] = ls.add()
			case up == 0:
				prov[r*w+c] = left
			case left == 0:
				prov[r*w+c] = up
			default:
				prov[r*w+c] = ls.union(up, left)
			}
		}
	}

	ids := make([]ClusterID, len(prov))
	compact := make(map[int]ClusterID)
	for i, p := range prov {
		if p == 0 {
			continue
		}
		root := ls.find(p)
		id, ok := compact[root]
		if !ok {
			id = ClusterID(len(compact) + 1)
			compact[root] = id
		}
		ids[i] = id
	}
	return ids
}

func members(ids []ClusterID, width int) [][]grid.Cell {
	var n ClusterID
	for _, id := range ids {
		n = max(n, id)
	}
	out := make([][]grid.Cell, n+1)
	for i, id := range ids {
		if id != NoCluster {
			out[id] = append(out[id], grid.Cell{Row: i / width, Col: i % width})
		}
	}
	return out
}

func (cl *Clusters) index(cell grid.Cell) int { return cell.Row*cl.width + cell.Col }

func (cl *Clusters) inBounds(cell grid.Cell) bool {
	return cell.Row >= 0 && cell.Row < cl.height && cell.Col >= 0 && cell.Col < cl.width
}

// SwitchCluster returns the switch cluster of cell, or NoCluster.
func (cl *Clusters) SwitchCluster(cell grid.Cell) ClusterID {
	if !cl.inBounds(cell) {
		return NoCluster
	}
	return cl.switchID[cl.index(cell)]
}

// EdgeCluster returns the connecting-edge cluster of cell, or NoCluster.
func (cl *Clusters) EdgeCluster(cell grid.Cell) ClusterID {
	if !cl.inBounds(cell) {
		return NoCluster
	}
	return cl.edgeID[cl.index(cell)]
}

func (cl *Clusters) SwitchMembers(id ClusterID) []grid.Cell {
	if id <= NoCluster || int(id) >= len(cl.switchMembers) {
		return nil
	}
	return append([]grid.Cell(nil), cl.switchMembers[id]...)
}

func (cl *Clusters) EdgeMembers(id ClusterID) []grid.Cell {
	if id <= NoCluster || int(id) >= len(cl.edgeMembers) {
		return nil
	}
	return append([]grid.Cell(nil), cl.edgeMembers[id]...)
}

func (cl *Clusters) NumSwitchClusters() int { return len(cl.switchMembers) - 1 }
func (cl *Clusters) NumEdgeClusters() int   { return len(cl.edgeMembers) - 1 }

// Policy selects which cluster kinds are locked as a whole.
type Policy struct {
	SwitchGroup    bool
	ConnectingEdge bool
}

// Expand returns cells plus every member of the clusters they belong to under
// p, without duplicates and in first-seen order.
func (cl *Clusters) Expand(cells []grid.Cell, p Policy) []grid.Cell {
	out := make([]grid.Cell, 0, len(cells))
	seen := make(map[grid.Cell]bool, len(cells))
	add := func(c grid.Cell) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range cells {
		add(c)
		if id := cl.SwitchCluster(c); p.SwitchGroup && id != NoCluster {
			for _, m := range cl.switchMembers[id] {
				add(m)
			}
		}
		if id := cl.EdgeCluster(c); p.ConnectingEdge && id != NoCluster {
			for _, m := range cl.edgeMembers[id] {
				add(m)
			}
		}
	}
	return out
}

// ExpandEntering is Expand for a train moving from cell from into cell to:
// only clusters of to that differ from those of from are added.
func (cl *Clusters) ExpandEntering(from, to grid.Cell, p Policy) []grid.Cell {
	out := []grid.Cell{to}
	seen := map[grid.Cell]bool{to: true}
	add := func(cs []grid.Cell) {
		for _, c := range cs {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	if id := cl.SwitchCluster(to); p.SwitchGroup && id != NoCluster && id != cl.SwitchCluster(from) {
		add(cl.switchMembers[id])
	}
	if id := cl.EdgeCluster(to); p.ConnectingEdge && id != NoCluster && id != cl.EdgeCluster(from) {
		add(cl.edgeMembers[id])
	}
	return out
}
