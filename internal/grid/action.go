package grid

import (
	"fmt"
	"strings"
)

// Action is a discrete movement proposal for one tick.
type Action int

const (
	ActionNone Action = iota
	ActionLeft
	ActionForward
	ActionRight
	ActionStop
)

var actionNames = [...]string{"none", "left", "forward", "right", "stop"}

func (a Action) String() string {
	if a < ActionNone || a > ActionStop {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i, n := range actionNames {
		if n == s {
			*a = Action(i)
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", text)
}

// Moving reports whether a asks the train to change cell.
func (a Action) Moving() bool { return a == ActionLeft || a == ActionForward || a == ActionRight }

// Resolve returns the node a train at n ends up in when it performs a, and
// whether it changes cell. Turns the track does not permit fall back to
// forward; when forward is not permitted either the train stays put.
// ActionNone is treated like ActionStop.
func Resolve(t Topology, n Node, a Action) (Node, bool) {
	if !a.Moving() {
		return n, false
	}
	trans := t.Transitions(n.Cell, n.Dir)
	out, ok := n.Dir, false
	switch a {
	case ActionLeft:
		out, ok = n.Dir.Left(), trans.Has(n.Dir.Left())
	case ActionRight:
		out, ok = n.Dir.Right(), trans.Has(n.Dir.Right())
	}
	if !ok {
		out, ok = forward(n, trans)
	}
	if !ok {
		return n, false
	}
	next := Node{Cell: Neighbor(n.Cell, out), Dir: out}
	if !InBounds(t, next.Cell) {
		return n, false
	}
	return next, true
}

// ActionTowards returns the action that makes a train at n leave in direction
// out, or ActionStop when the track does not allow it.
func ActionTowards(t Topology, n Node, out Direction) Action {
	trans := t.Transitions(n.Cell, n.Dir)
	if !trans.Has(out) {
		return ActionStop
	}
	if d, ok := forward(n, trans); ok && d == out {
		return ActionForward
	}
	switch out {
	case n.Dir.Left():
		return ActionLeft
	case n.Dir.Right():
		return ActionRight
	}
	return ActionStop
}

func forward(n Node, trans Transitions) (Direction, bool) {
	if trans.Count() == 1 {
		return trans.Directions()[0], true
	}
	return n.Dir, trans.Has(n.Dir)
}
