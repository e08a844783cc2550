// Package train defines the trains of the simulation: their static
// definition, their grid-level state, and the two agent variants, Simple
// (cell by cell, no physics) and Dynamic (continuous kinematics with a
// moving-block reservation).
package train

import (
	"errors"
	"fmt"

	"github.com/cxd309/movingblock/internal/alloc"
	"github.com/cxd309/movingblock/internal/grid"
	"github.com/cxd309/movingblock/internal/infra"
)

// TickDuration is the length of one simulation tick in seconds.
const TickDuration = 1.0

// ErrInvariant marks a train whose internal state became inconsistent. It is
// a programming error and aborts the run.
var ErrInvariant = errors.New("train state invariant violated")

// Kind selects the agent variant.
type Kind string

const (
	KindSimple  Kind = "simple"
	KindDynamic Kind = "dynamic"
)

// State describes the current motion state of a train.
type State string

const (
	StateOffGrid   State = "off_grid"
	StateAdvancing State = "advancing"
	StateBraking   State = "braking"
	StateHalted    State = "halted"
	StateDone      State = "done"
)

// Train is the static definition of a train.
type Train struct {
	ID               int            `json:"id" yaml:"id" validate:"gte=0"`
	Kind             Kind           `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=simple dynamic"`
	InitialPosition  grid.Cell      `json:"initial_position" yaml:"initial_position"`
	InitialDirection grid.Direction `json:"initial_direction" yaml:"initial_direction"`
	Target           grid.Cell      `json:"target" yaml:"target"`
	// DepartureTick is the first tick at which the train may be placed on the
	// grid. Use it for staggered departures. Zero = immediate.
	DepartureTick int64   `json:"departure_tick,omitempty" yaml:"departure_tick,omitempty" validate:"gte=0"`
	Vehicle       Vehicle `json:"vehicle" yaml:"vehicle"`
}

// Agent is the capability set the orchestrator drives every tick.
type Agent interface {
	Definition() Train
	Holder() alloc.Holder
	Position() (grid.Node, bool)
	IsDone() bool
	HardBraking() bool

	// MoveTo places the train on, or moves it to, n at the grid level.
	MoveTo(n grid.Node)
	// Remove takes the train off the board for good.
	Remove()

	// AllocatedCells returns the cells the train currently needs locked.
	AllocatedCells() []grid.Cell
	// AllResourceOK tells the train whether its locks were granted; a refusal
	// asserts the hard brake.
	AllResourceOK(ok bool)
	// UpdateMovementDynamics integrates one tick and reports whether the
	// train may advance to the next cell.
	UpdateMovementDynamics() (bool, error)
	// Update runs after the grid step has committed positions.
	Update() error

	State() State
	Log() Log
}

// NewAgent builds the agent variant selected by t.Kind. Dynamic agents read
// cell data from p and never exceed vMaxSim.
func NewAgent(t Train, p *infra.Provider, vMaxSim float64) (Agent, error) {
	switch t.Kind {
	case KindSimple:
		return NewSimple(t), nil
	case KindDynamic, "":
		return NewDynamic(t, p, vMaxSim)
	}
	return nil, fmt.Errorf("train %d: unknown kind %q", t.ID, t.Kind)
}

// Base is the grid-level state shared by every agent variant.
type Base struct {
	Train
	node      grid.Node
	placed    bool
	done      bool
	hardBrake bool
}

func (b *Base) Definition() Train     { return b.Train }
func (b *Base) Holder() alloc.Holder  { return alloc.Holder(b.ID) }
func (b *Base) IsDone() bool          { return b.done }
func (b *Base) HardBraking() bool     { return b.hardBrake }
func (b *Base) AllResourceOK(ok bool) { b.hardBrake = !ok }

func (b *Base) Position() (grid.Node, bool) { return b.node, b.placed }

func (b *Base) MoveTo(n grid.Node) {
	b.node = n
	b.placed = true
}

func (b *Base) Remove() {
	b.placed = false
	b.done = true
}

// Simple moves one cell per tick without kinematics and holds only the cell
// it stands on.
type Simple struct {
	Base
}

func NewSimple(t Train) *Simple {
	t.Kind = KindSimple
	return &Simple{Base: Base{Train: t}}
}

func (s *Simple) AllocatedCells() []grid.Cell {
	if !s.placed {
		return nil
	}
	return []grid.Cell{s.node.Cell}
}

func (s *Simple) UpdateMovementDynamics() (bool, error) { return !s.done, nil }

func (s *Simple) Update() error { return nil }

func (s *Simple) State() State {
	switch {
	case s.done:
		return StateDone
	case !s.placed:
		return StateOffGrid
	case s.hardBrake:
		return StateHalted
	}
	return StateAdvancing
}

func (s *Simple) Log() Log {
	l := s.baseLog(s.State())
	l.Allocated = s.AllocatedCells()
	return l
}

// Log is a point-in-time snapshot of a train's state.
type Log struct {
	ID                  int         `json:"id" msgpack:"id"`
	Kind                Kind        `json:"kind" msgpack:"kind"`
	State               State       `json:"state" msgpack:"state"`
	Position            *grid.Node  `json:"position,omitempty" msgpack:"position,omitempty"`
	HardBrake           bool        `json:"hard_brake" msgpack:"hard_brake"`
	Distance            float64     `json:"distance" msgpack:"distance"`                         // metres, train point
	ReservationDistance float64     `json:"reservation_distance" msgpack:"reservation_distance"` // metres
	Velocity            float64     `json:"velocity" msgpack:"velocity"`                         // m/s
	Acceleration        float64     `json:"acceleration" msgpack:"acceleration"`                 // m/s²
	MaxVelocity         float64     `json:"max_velocity" msgpack:"max_velocity"`                 // m/s
	TractiveEffort      float64     `json:"tractive_effort" msgpack:"tractive_effort"`           // N
	RearIndex           int         `json:"rear_index" msgpack:"rear_index"`
	FrontIndex          int         `json:"front_index" msgpack:"front_index"`
	ReservationIndex    int         `json:"reservation_index" msgpack:"reservation_index"`
	Allocated           []grid.Cell `json:"allocated,omitempty" msgpack:"allocated,omitempty"`
}

func (b *Base) baseLog(s State) Log {
	l := Log{ID: b.ID, Kind: b.Kind, State: s, HardBrake: b.hardBrake}
	if b.placed {
		n := b.node
		l.Position = &n
	}
	return l
}
