package grid

import (
	"container/heap"
	"math"
)

// CostFunc returns the cost of travelling through a cell. Non-finite or
// negative costs make the cell impassable.
type CostFunc func(c Cell) float64

// UnitCost counts cells.
func UnitCost(Cell) float64 { return 1 }

// DistanceMap answers "how far is target from this oriented node" over the
// track graph, with one table cached per target.
type DistanceMap struct {
	topo Topology
	cost CostFunc
	// Per-target tables; cleared whenever the cost function changes.
	tables map[Cell][]float64
}

func NewDistanceMap(t Topology, cost CostFunc) *DistanceMap {
	if cost == nil {
		cost = UnitCost
	}
	return &DistanceMap{topo: t, cost: cost, tables: make(map[Cell][]float64)}
}

// SetCost replaces the cost function and drops every cached table.
func (m *DistanceMap) SetCost(cost CostFunc) {
	if cost == nil {
		cost = UnitCost
	}
	m.cost = cost
	m.tables = make(map[Cell][]float64)
}

// Distance returns the minimum cost from n to target, +Inf when unreachable.
func (m *DistanceMap) Distance(target Cell, n Node) float64 {
	if !InBounds(m.topo, n.Cell) || !n.Dir.Valid() {
		return math.Inf(1)
	}
	return m.table(target)[m.nodeIndex(n)]
}

// NextDirection returns the outgoing direction from n that leads to target at
// the least cost. Ties prefer the facing direction, then left, then right.
func (m *DistanceMap) NextDirection(target Cell, n Node) (Direction, bool) {
	trans := m.topo.Transitions(n.Cell, n.Dir)
	best, bestDir, found := math.Inf(1), n.Dir, false
	for _, d := range []Direction{n.Dir, n.Dir.Left(), n.Dir.Right(), n.Dir.Opposite()} {
		if !trans.Has(d) {
			continue
		}
		next := Node{Cell: Neighbor(n.Cell, d), Dir: d}
		if !InBounds(m.topo, next.Cell) {
			continue
		}
		dist := m.cost(next.Cell) + m.Distance(target, next)
		if dist < best {
			best, bestDir, found = dist, d, true
		}
	}
	return bestDir, found
}

func (m *DistanceMap) nodeIndex(n Node) int {
	return Index(m.topo, n.Cell)*NumDirections + int(n.Dir)
}

func (m *DistanceMap) table(target Cell) []float64 {
	if t, ok := m.tables[target]; ok {
		return t
	}
	t := m.compute(target)
	m.tables[target] = t
	return t
}

// compute runs Dijkstra backwards from every facing of target.
func (m *DistanceMap) compute(target Cell) []float64 {
	n := m.topo.Height() * m.topo.Width() * NumDirections
	dist := make([]float64, n)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	if !InBounds(m.topo, target) {
		return dist
	}

	pq := &nodeQueue{}
	for d := North; d <= West; d++ {
		idx := m.nodeIndex(Node{Cell: target, Dir: d})
		dist[idx] = 0
		heap.Push(pq, queued{idx: idx})
	}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(queued)
		if cur.dist > dist[cur.idx] {
			continue
		}
		cell := Cell{Row: cur.idx / NumDirections / m.topo.Width(), Col: cur.idx / NumDirections % m.topo.Width()}
		heading := Direction(cur.idx % NumDirections)

		step := m.cost(cell)
		if math.IsNaN(step) || math.IsInf(step, 0) || step < 0 {
			continue
		}
		from := Neighbor(cell, heading.Opposite())
		if !InBounds(m.topo, from) {
			continue
		}
		for pd := North; pd <= West; pd++ {
			if !m.topo.Transitions(from, pd).Has(heading) {
				continue
			}
			idx := m.nodeIndex(Node{Cell: from, Dir: pd})
			if d := cur.dist + step; d < dist[idx] {
				dist[idx] = d
				heap.Push(pq, queued{idx: idx, dist: d})
			}
		}
	}
	return dist
}

type queued struct {
	idx  int
	dist float64
}

// nodeQueue is a min-heap on distance, ties broken by node index.
type nodeQueue []queued

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].idx < q[j].idx
}
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)   { *q = append(*q, x.(queued)) }
func (q *nodeQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
