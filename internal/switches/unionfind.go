package switches

// labels is a union-find arena of provisional component labels. Label 0 is
// reserved for "no label".
type labels struct {
	parent []int
}

func newLabels() *labels { return &labels{parent: []int{0}} }

func (l *labels) add() int {
	id := len(l.parent)
	l.parent = append(l.parent, id)
	return id
}

// find returns the root of x, compressing the path behind it.
func (l *labels) find(x int) int {
	root := x
	for l.parent[root] != root {
		root = l.parent[root]
	}
	for l.parent[x] != root {
		next := l.parent[x]
		l.parent[x] = root
		x = next
	}
	return root
}

// union merges the sets of a and b; the smaller root survives.
func (l *labels) union(a, b int) int {
	ra, rb := l.find(a), l.find(b)
	if ra == rb {
		return ra
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	l.parent[rb] = ra
	return ra
}
