// Package alloc implements the cell lock table shared by all trains.
//
// Allocation and deallocation are all-or-nothing over the requested cells.
// Failing to allocate is an ordinary outcome reported as false, never an
// error: the caller brakes the train and tries again next tick.
package alloc

import (
	"errors"
	"fmt"

	"github.com/cxd309/movingblock/internal/grid"
)

var ErrInvalidMinFreeTime = errors.New("minimum free time must be non-negative")

// Holder identifies the owner of a cell lock.
type Holder int

// Free is the holder of an unlocked cell.
const Free Holder = -1

// Clock reports the current simulation tick.
type Clock interface {
	Tick() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) Tick() int64 { return f() }

// Allocator is the lock table. It holds, per cell, the current holder, the
// last holder and the tick of the last change.
type Allocator struct {
	height, width int
	minFreeTime   int64
	clock         Clock

	holder     []Holder
	lastHolder []Holder
	changed    []int64
}

// New returns an empty lock table for a height x width grid. A cell freed by
// one holder may only be taken by another once minFreeTime ticks have passed.
func New(height, width int, minFreeTime int64, clock Clock) (*Allocator, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("lock table %dx%d: %w", height, width, grid.ErrOutOfBounds)
	}
	if minFreeTime < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMinFreeTime, minFreeTime)
	}
	n := height * width
	a := &Allocator{
		height:      height,
		width:       width,
		minFreeTime: minFreeTime,
		clock:       clock,
		holder:      make([]Holder, n),
		lastHolder:  make([]Holder, n),
		changed:     make([]int64, n),
	}
	a.Reset()
	return a, nil
}

// Reset clears holders and fairness history, for a new run.
func (a *Allocator) Reset() {
	for i := range a.holder {
		a.holder[i] = Free
		a.lastHolder[i] = Free
		a.changed[i] = 0
	}
}

// ResetLocks frees every cell but keeps the fairness history. Each held cell
// is stamped as released now by its holder, so a cell that is not reacquired
// this tick counts its minimum free time from this tick.
func (a *Allocator) ResetLocks() {
	now := a.clock.Tick()
	for i, h := range a.holder {
		if h == Free {
			continue
		}
		a.lastHolder[i] = h
		a.changed[i] = now
		a.holder[i] = Free
	}
}

func (a *Allocator) MinFreeTime() int64 { return a.minFreeTime }

func (a *Allocator) index(c grid.Cell) (int, bool) {
	if c.Row < 0 || c.Row >= a.height || c.Col < 0 || c.Col >= a.width {
		return 0, false
	}
	return c.Row*a.width + c.Col, true
}

// Allocate gives every cell to h, or none of them. It fails when a cell lies
// off the grid, is held by another holder, or was released by another holder
// less than the minimum free time ago.
func (a *Allocator) Allocate(h Holder, cells []grid.Cell) bool {
	now := a.clock.Tick()
	idx := make([]int, len(cells))
	for k, c := range cells {
		i, ok := a.index(c)
		if !ok {
			return false
		}
		if a.holder[i] != Free && a.holder[i] != h {
			return false
		}
		if last := a.lastHolder[i]; last != Free && last != h && now-a.changed[i] < a.minFreeTime {
			return false
		}
		idx[k] = i
	}
	for _, i := range idx {
		a.holder[i] = h
		a.lastHolder[i] = h
		a.changed[i] = now
	}
	return true
}

// Deallocate releases the cells h holds among cells. It fails without change
// if any cell is off the grid or held by another holder. Released cells
// remember h as their last holder.
func (a *Allocator) Deallocate(h Holder, cells []grid.Cell) bool {
	now := a.clock.Tick()
	idx := make([]int, 0, len(cells))
	for _, c := range cells {
		i, ok := a.index(c)
		if !ok {
			return false
		}
		switch a.holder[i] {
		case h:
			idx = append(idx, i)
		case Free:
		default:
			return false
		}
	}
	for _, i := range idx {
		a.holder[i] = Free
		a.lastHolder[i] = h
		a.changed[i] = now
	}
	return true
}

func (a *Allocator) IsLocked(c grid.Cell) bool { return a.HolderOf(c) != Free }

// HolderOf returns the holder of c; off-grid cells are Free.
func (a *Allocator) HolderOf(c grid.Cell) Holder {
	i, ok := a.index(c)
	if !ok {
		return Free
	}
	return a.holder[i]
}

// AssignedCells lists the cells held by h in row-major order.
func (a *Allocator) AssignedCells(h Holder) []grid.Cell {
	var cells []grid.Cell
	for i, x := range a.holder {
		if x == h && h != Free {
			cells = append(cells, grid.Cell{Row: i / a.width, Col: i % a.width})
		}
	}
	return cells
}

// FreeTime returns the first tick at which every cell may be allocated by a
// holder other than its last one.
func (a *Allocator) FreeTime(cells []grid.Cell) int64 {
	var t int64
	for _, c := range cells {
		i, ok := a.index(c)
		if !ok || a.lastHolder[i] == Free {
			continue
		}
		t = max(t, a.changed[i]+a.minFreeTime)
	}
	return t
}

// CountLocked returns the number of held cells.
func (a *Allocator) CountLocked() int {
	n := 0
	for _, h := range a.holder {
		if h != Free {
			n++
		}
	}
	return n
}

// LockSnapshot returns a copy of the holder grid, indexed [row][col].
func (a *Allocator) LockSnapshot() [][]Holder {
	out := make([][]Holder, a.height)
	for r := range out {
		out[r] = append([]Holder(nil), a.holder[r*a.width:(r+1)*a.width]...)
	}
	return out
}

// TimestampSnapshot returns a copy of the last-change tick grid, indexed
// [row][col].
func (a *Allocator) TimestampSnapshot() [][]int64 {
	out := make([][]int64, a.height)
	for r := range out {
		out[r] = append([]int64(nil), a.changed[r*a.width:(r+1)*a.width]...)
	}
	return out
}
