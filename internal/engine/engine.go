// Package engine implements the moving-block simulation loop.
//
// The simulation advances in fixed ticks. Each tick has three passes:
//
//  1. Reacquire pass - the lock table is cleared (holders only, release
//     times survive) and every train asks again for the cells between its
//     train point and reservation point. A refused train brakes hard.
//
//  2. Motion pass - in ascending id order every train gets a proposed action
//     from the driver and integrates its dynamics. A train that wants to
//     enter a new cell must first lock it, together with the whole switch or
//     connecting-edge cluster it enters; a refusal downgrades the action to
//     stop and asserts the hard brake.
//
//  3. Update pass - every train records the cell it now stands in and moves
//     its rear, front and reservation indices along its path.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/brunoga/deep"

	"github.com/cxd309/movingblock/internal/alloc"
	"github.com/cxd309/movingblock/internal/grid"
	"github.com/cxd309/movingblock/internal/infra"
	"github.com/cxd309/movingblock/internal/log"
	"github.com/cxd309/movingblock/internal/metrics"
	"github.com/cxd309/movingblock/internal/switches"
	"github.com/cxd309/movingblock/internal/train"
)

// Recorder receives every log row as soon as its tick completes.
type Recorder interface {
	Record(row SimulationLogRow) error
}

// Engine is the simulation state of one run.
type Engine struct {
	meta     SimulationMeta
	opts     Options
	policy   switches.Policy
	topo     *grid.Map
	classes  *switches.Classification
	clusters *switches.Clusters
	provider *infra.Provider
	locks    *alloc.Allocator
	agents   []train.Agent // ascending id
	ready    []bool        // per agent: dynamics ask for the next cell
	driver   Driver

	tick int64
	done bool

	log      *log.Logger
	metrics  *metrics.Metrics
	recorder Recorder
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option          { return func(e *Engine) { e.log = l } }
func WithMetrics(m *metrics.Metrics) Option    { return func(e *Engine) { e.metrics = m } }
func WithRecorder(r Recorder) Option           { return func(e *Engine) { e.recorder = r } }
func WithDriver(d Driver) Option               { return func(e *Engine) { e.driver = d } }
func WithInfrastructure(s infra.Source) Option { return func(e *Engine) { e.provider.SetInfrastructureData(s) } }

// NewEngine builds the topology, classifies switches, labels clusters and
// places nothing yet: trains enter the grid from their departure tick.
func NewEngine(input SimulationInput, opts ...Option) (*Engine, error) {
	topo, err := grid.NewMap(input.Grid)
	if err != nil {
		return nil, fmt.Errorf("building grid: %w", err)
	}
	table, err := infra.NewTable(input.Infrastructure)
	if err != nil {
		return nil, fmt.Errorf("infrastructure: %w", err)
	}
	provider, err := infra.NewProvider(table, 0)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		meta:     input.Meta,
		opts:     input.Options,
		topo:     topo,
		provider: provider,
		policy: switches.Policy{
			SwitchGroup:    input.Options.SwitchGroupLocking,
			ConnectingEdge: input.Options.ConnectingEdgeLocking,
		},
	}
	if e.opts.VelocityCap <= 0 {
		e.opts.VelocityCap = DefaultVelocityCap
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.provider.Validate(topo); err != nil {
		return nil, fmt.Errorf("infrastructure: %w", err)
	}

	e.locks, err = alloc.New(topo.Height(), topo.Width(), e.opts.MinFreeTime,
		alloc.ClockFunc(func() int64 { return e.tick }))
	if err != nil {
		return nil, err
	}
	e.classes = switches.Classify(topo)
	e.clusters = switches.BuildClusters(topo, e.classes)

	defs := slices.Clone(input.Trains)
	slices.SortFunc(defs, func(a, b train.Train) int { return a.ID - b.ID })
	for i, def := range defs {
		if i > 0 && defs[i-1].ID == def.ID {
			return nil, fmt.Errorf("train %d: duplicate id", def.ID)
		}
		if !grid.HasTrack(topo, def.InitialPosition) {
			return nil, fmt.Errorf("train %d: initial position %v is not on track", def.ID, def.InitialPosition)
		}
		if !grid.InBounds(topo, def.Target) {
			return nil, fmt.Errorf("train %d: target %v: %w", def.ID, def.Target, grid.ErrOutOfBounds)
		}
		a, err := train.NewAgent(def, e.provider, e.opts.VelocityCap)
		if err != nil {
			return nil, fmt.Errorf("creating train %d: %w", def.ID, err)
		}
		e.agents = append(e.agents, a)
		e.ready = append(e.ready, true)
	}

	if e.driver == nil {
		e.driver = NewRouteDriver(topo, e.provider)
	}
	e.log.Info("engine ready",
		"simulation_id", e.meta.SimulationID,
		"trains", len(e.agents),
		"switches", len(e.classes.Switches()),
		"switch_clusters", e.clusters.NumSwitchClusters(),
		"edge_clusters", e.clusters.NumEdgeClusters())
	return e, nil
}

// SetInfrastructureData swaps the cell data source. The new data is checked
// against every track cell first; on error the engine keeps its current data.
// Cached cell data and cached routes are dropped on success.
func (e *Engine) SetInfrastructureData(src infra.Source) error {
	check, err := infra.NewProvider(src, 0)
	if err != nil {
		return err
	}
	if err := check.Validate(e.topo); err != nil {
		return fmt.Errorf("infrastructure: %w", err)
	}
	e.provider.SetInfrastructureData(src)
	if rd, ok := e.driver.(*RouteDriver); ok {
		rd.SetProvider(e.provider)
	}
	return nil
}

func (e *Engine) Tick() int64                              { return e.tick }
func (e *Engine) Done() bool                               { return e.done }
func (e *Engine) Agents() []train.Agent                    { return slices.Clone(e.agents) }
func (e *Engine) Topology() grid.Topology                  { return e.topo }
func (e *Engine) Classification() *switches.Classification { return e.classes }
func (e *Engine) Clusters() *switches.Clusters             { return e.clusters }

// Run steps until every train is done or the tick limit is reached.
func (e *Engine) Run(ctx context.Context) (SimulationLog, error) {
	out := SimulationLog{Meta: e.meta}
	e.log.Info("simulation started", "simulation_id", e.meta.SimulationID, "max_ticks", e.meta.MaxTicks)
	for !e.done {
		if err := ctx.Err(); err != nil {
			return SimulationLog{}, err
		}
		row, err := e.Step()
		if err != nil {
			return SimulationLog{}, fmt.Errorf("at tick %d: %w", e.tick, err)
		}
		out.Output = append(out.Output, row)
	}
	e.log.Info("simulation finished", "simulation_id", e.meta.SimulationID, "ticks", e.tick, "arrived", e.arrived())
	return out, nil
}

// Step advances the simulation by one tick and returns the resulting log row.
func (e *Engine) Step() (SimulationLogRow, error) {
	start := time.Now()
	e.tick++

	// Pass 1: reacquire the spans held at the end of the previous tick.
	e.locks.ResetLocks()
	reacquired := make([]bool, len(e.agents))
	for i, a := range e.agents {
		if a.IsDone() {
			continue
		}
		cells := a.AllocatedCells()
		if n, placed := a.Position(); placed && len(cells) == 0 {
			cells = []grid.Cell{n.Cell}
		}
		if len(cells) == 0 {
			reacquired[i] = true
			continue
		}
		ok := e.allocate(a, e.clusters.Expand(cells, e.policy), "reacquire")
		a.AllResourceOK(ok)
		reacquired[i] = ok
	}

	// Pass 2: propose, lock and commit grid moves.
	for i, a := range e.agents {
		if a.IsDone() {
			continue
		}
		if err := e.move(i, reacquired[i]); err != nil {
			return SimulationLogRow{}, err
		}
	}

	// Pass 3: let every train catch up with its committed cell.
	for _, a := range e.agents {
		if err := a.Update(); err != nil {
			return SimulationLogRow{}, err
		}
	}

	e.done = e.tick >= e.meta.MaxTicks || e.arrived() == len(e.agents)

	row := e.row()
	e.metrics.RecordTick(time.Since(start), row.Locked, e.active())
	if e.recorder != nil {
		if err := e.recorder.Record(row); err != nil {
			return SimulationLogRow{}, fmt.Errorf("recording tick: %w", err)
		}
	}
	return row, nil
}

// move runs the motion pass for train i. Whether a train is ready for its
// next cell comes from the dynamics integrated in the previous tick. The
// dynamics of this tick run once the move is settled, so a refusal brakes the
// train straight away.
func (e *Engine) move(i int, reacquired bool) error {
	a := e.agents[i]
	def := a.Definition()
	action := e.driver.Propose(a, e.tick)
	if action == grid.ActionNone {
		action = grid.ActionForward
	}
	if !reacquired || e.tick < def.DepartureTick {
		action = grid.ActionStop
	}

	cur, placed := a.Position()
	next, moving := cur, false
	if action.Moving() && e.ready[i] {
		if placed {
			next, moving = grid.Resolve(e.topo, cur, action)
		} else {
			next, moving = grid.Node{Cell: def.InitialPosition, Dir: def.InitialDirection}, true
		}
	}

	if moving {
		var want []grid.Cell
		if placed {
			want = e.clusters.ExpandEntering(cur.Cell, next.Cell, e.policy)
		} else {
			want = e.clusters.Expand([]grid.Cell{next.Cell}, e.policy)
		}
		if !e.allocate(a, want, "enter") {
			moving = false
		} else if other := e.standingIn(next.Cell, a); other != nil {
			e.log.Debug("cell occupied", "tick", e.tick, "train", def.ID, "cell", next.Cell, "by", other.Definition().ID)
			moving = false
		}
	}

	// A train that needs a new cell but does not get one must stop.
	if !moving && placed && e.ready[i] {
		if !a.HardBraking() {
			e.metrics.RecordHardBrake()
		}
		a.AllResourceOK(false)
	}

	if moving {
		a.MoveTo(next)
		if next.Cell == def.Target {
			a.Remove()
			e.metrics.RecordArrival()
			e.log.Info("train arrived", "tick", e.tick, "train", def.ID, "cell", next.Cell)
		}
	}

	ready, err := a.UpdateMovementDynamics()
	if err != nil {
		return err
	}
	e.ready[i] = ready
	return nil
}

// allocate locks cells for a and records the outcome. Contention is expected
// and only logged at debug level.
func (e *Engine) allocate(a train.Agent, cells []grid.Cell, stage string) bool {
	ok := e.locks.Allocate(a.Holder(), cells)
	e.metrics.RecordAllocation(ok)
	if !ok {
		if e.log.DebugEnabled() {
			e.log.Debug("allocation refused",
				"tick", e.tick,
				"stage", stage,
				"train", a.Definition().ID,
				"cells", len(cells),
				"free_at", e.locks.FreeTime(cells))
		}
		if stage == "reacquire" {
			e.metrics.RecordHardBrake()
		}
	}
	return ok
}

// standingIn returns the placed train, other than self, whose grid position
// is c.
func (e *Engine) standingIn(c grid.Cell, self train.Agent) train.Agent {
	for _, o := range e.agents {
		if o == self {
			continue
		}
		if n, placed := o.Position(); placed && n.Cell == c {
			return o
		}
	}
	return nil
}

func (e *Engine) arrived() int {
	n := 0
	for _, a := range e.agents {
		if a.IsDone() {
			n++
		}
	}
	return n
}

func (e *Engine) active() int {
	n := 0
	for _, a := range e.agents {
		if _, placed := a.Position(); placed {
			n++
		}
	}
	return n
}

func (e *Engine) row() SimulationLogRow {
	logs := make([]train.Log, len(e.agents))
	for i, a := range e.agents {
		logs[i] = a.Log()
	}
	return SimulationLogRow{Tick: e.tick, Locked: e.locks.CountLocked(), Trains: logs}
}

// Snapshot returns a deep copy of the lock table, the per-train resources and
// paths, and the telemetry recorded so far.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Tick:       e.tick,
		Locks:      e.locks.LockSnapshot(),
		Timestamps: e.locks.TimestampSnapshot(),
		Assigned:   make(map[int][]grid.Cell, len(e.agents)),
		Paths:      make(map[int]train.Path),
		Series:     make(map[int]train.Series),
		Trains:     e.row().Trains,
	}
	for _, a := range e.agents {
		id := a.Definition().ID
		s.Assigned[id] = e.locks.AssignedCells(a.Holder())
		if d, ok := a.(*train.Dynamic); ok {
			s.Paths[id] = d.Path()
			s.Series[id] = d.Series()
		}
	}
	return deep.MustCopy(s)
}

// RunJSON is the primary entry point for the CLI and WASM targets. It accepts
// a JSON-encoded SimulationInput, runs the simulation, and returns a
// JSON-encoded SimulationLog.
func RunJSON(jsonInput string) (string, error) {
	input := NewSimulationInput()
	if err := json.Unmarshal([]byte(jsonInput), &input); err != nil {
		return "", fmt.Errorf("invalid input JSON: %w", err)
	}

	e, err := NewEngine(input)
	if err != nil {
		return "", err
	}

	simLog, err := e.Run(context.Background())
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(simLog)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}
