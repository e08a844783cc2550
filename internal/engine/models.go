package engine

import (
	"github.com/cxd309/movingblock/internal/alloc"
	"github.com/cxd309/movingblock/internal/grid"
	"github.com/cxd309/movingblock/internal/infra"
	"github.com/cxd309/movingblock/internal/train"
)

// DefaultVelocityCap is the global velocity cap applied when none is set.
const DefaultVelocityCap = 300.0 / 3.6 // m/s

// SimulationMeta holds the identity and length of a simulation run.
type SimulationMeta struct {
	SimulationID string `json:"simulation_id" yaml:"simulation_id" msgpack:"simulation_id"`
	MaxTicks     int64  `json:"max_ticks" yaml:"max_ticks" msgpack:"max_ticks" validate:"gt=0"`
}

// Options are the engine settings recognised by the core.
type Options struct {
	// MinFreeTime is the number of ticks a released cell stays reserved for
	// its previous holder.
	MinFreeTime           int64   `json:"min_free_time" yaml:"min_free_time" validate:"gte=0"`
	SwitchGroupLocking    bool    `json:"switch_group_locking" yaml:"switch_group_locking"`
	ConnectingEdgeLocking bool    `json:"connecting_edge_locking" yaml:"connecting_edge_locking"`
	VelocityCap           float64 `json:"velocity_cap" yaml:"velocity_cap" validate:"gte=0"` // m/s, 0 = default
}

// DefaultOptions enables both cluster locking modes. Decoders start from it so
// that omitted fields keep their defaults.
func DefaultOptions() Options {
	return Options{
		SwitchGroupLocking:    true,
		ConnectingEdgeLocking: true,
		VelocityCap:           DefaultVelocityCap,
	}
}

// SimulationInput is the serialisable input to the engine.
type SimulationInput struct {
	Meta           SimulationMeta `json:"simulation_meta" yaml:"simulation_meta"`
	Options        Options        `json:"options" yaml:"options"`
	Grid           grid.MapData   `json:"grid" yaml:"grid"`
	Infrastructure infra.Data     `json:"infrastructure" yaml:"infrastructure"`
	Trains         []train.Train  `json:"trains" yaml:"trains" validate:"dive"`
}

// NewSimulationInput returns an input with default options and default
// infrastructure data.
func NewSimulationInput() SimulationInput {
	return SimulationInput{Options: DefaultOptions(), Infrastructure: infra.NewData()}
}

// SimulationLogRow is the state of every train at the end of one tick.
type SimulationLogRow struct {
	Tick   int64       `json:"tick" msgpack:"tick"`
	Locked int         `json:"locked" msgpack:"locked"` // cells locked at the end of the tick
	Trains []train.Log `json:"trains" msgpack:"trains"`
}

// SimulationLog is the complete output of a simulation run.
type SimulationLog struct {
	Meta   SimulationMeta     `json:"simulation_meta" msgpack:"simulation_meta"`
	Output []SimulationLogRow `json:"output" msgpack:"output"`
}

// Snapshot is a read-only copy of the engine state for renderers and
// exporters. Changing it does not affect the engine.
type Snapshot struct {
	Tick       int64
	Locks      [][]alloc.Holder
	Timestamps [][]int64
	Assigned   map[int][]grid.Cell
	Paths      map[int]train.Path
	Series     map[int]train.Series
	Trains     []train.Log
}
