package train

import (
	"fmt"
	"math"

	"github.com/cxd309/movingblock/internal/grid"
	"github.com/cxd309/movingblock/internal/infra"
	"github.com/cxd309/movingblock/internal/kinematics"
)

// Dynamic is a train with continuous kinematics. It tracks two points along
// the path it has travelled: the train point, at the rear of the train, and
// the reservation point, ahead of the train by its length plus its braking
// distance. Every cell between the two must stay locked.
type Dynamic struct {
	Base
	provider *infra.Provider
	model    kinematics.TractionModel
	length   float64 // metres
	mass     float64 // tonnes
	vMaxSim  float64 // m/s

	distance       float64 // train point, metres along the path
	velocity       float64
	acceleration   float64
	rpDistance     float64
	rpVelocity     float64
	limit          float64 // applicable max velocity of the last integration
	tractiveEffort float64

	// Visited cells with the heading on entry, and the distance from the
	// start of the path to the end of each.
	path       []grid.Node
	cumulative []float64
	rear       int
	front      int
	reserve    int

	series Series
}

// NewDynamic builds a dynamic train. A nil provider answers every cell with
// the infrastructure defaults.
func NewDynamic(t Train, p *infra.Provider, vMaxSim float64) (*Dynamic, error) {
	if t.Vehicle.Model == nil {
		v := DefaultVehicle()
		v.Name = t.Vehicle.Name
		t.Vehicle = v
	}
	if err := t.Vehicle.Validate(); err != nil {
		return nil, fmt.Errorf("train %d: %w", t.ID, err)
	}
	if !(vMaxSim > 0) {
		return nil, fmt.Errorf("train %d: simulation velocity cap %v must be positive", t.ID, vMaxSim)
	}
	if p == nil {
		var err error
		if p, err = infra.NewProvider(nil, 0); err != nil {
			return nil, err
		}
	}
	t.Kind = KindDynamic
	return &Dynamic{
		Base:     Base{Train: t},
		provider: p,
		model:    t.Vehicle.Model,
		length:   t.Vehicle.Length,
		mass:     t.Vehicle.Mass,
		vMaxSim:  vMaxSim,
	}, nil
}

// reservationLead is the number of ticks between the reservation point
// crossing into a cell and the integration that first sees the cell's limit:
// the cell is locked on the next tick, recorded at the end of it, and read by
// the integration after that. One more tick is kept as margin.
const reservationLead = 3

func (d *Dynamic) cellData(i int) infra.CellData {
	if i < 0 || i >= len(d.path) {
		return d.provider.Lookup(grid.NoCell)
	}
	return d.provider.Lookup(d.path[i].Cell)
}

// AllocatedCells returns the cells from the train point to the reservation
// point. It is empty before the first cell has been recorded and after
// removal.
func (d *Dynamic) AllocatedCells() []grid.Cell {
	if d.done || len(d.path) == 0 {
		return nil
	}
	cells := make([]grid.Cell, 0, d.reserve-d.rear+1)
	for _, n := range d.path[d.rear : d.reserve+1] {
		cells = append(cells, n.Cell)
	}
	return cells
}

func (d *Dynamic) checkInvariants() error {
	switch {
	case len(d.path) != len(d.cumulative):
		return fmt.Errorf("%w: %d path cells, %d distances", ErrInvariant, len(d.path), len(d.cumulative))
	case d.rear < 0 || d.rear > d.front || d.front > d.reserve || d.reserve >= len(d.path):
		return fmt.Errorf("%w: indices rear=%d front=%d reservation=%d over %d cells",
			ErrInvariant, d.rear, d.front, d.reserve, len(d.path))
	case d.rpDistance < d.distance:
		return fmt.Errorf("%w: reservation point %.3f behind train point %.3f", ErrInvariant, d.rpDistance, d.distance)
	}
	return nil
}

// UpdateMovementDynamics integrates one tick of motion and reports whether
// the reservation point has run past the last visited cell, i.e. whether the
// train may advance into the next cell. Trains not yet on the grid may always
// be placed.
func (d *Dynamic) UpdateMovementDynamics() (bool, error) {
	if d.done {
		return false, nil
	}
	if !d.placed {
		return true, nil
	}
	if len(d.path) == 0 {
		// Placed this tick; the first cell is recorded by Update.
		return false, nil
	}
	if err := d.checkInvariants(); err != nil {
		return false, fmt.Errorf("train %d: %w", d.ID, err)
	}

	const dt = TickDuration
	v := d.velocity
	tp := d.cellData(d.rear)
	rp := d.cellData(d.reserve)
	agentMax := math.Min(d.model.MaxVelocity(), d.vMaxSim)

	maxV := min(tp.MaxVelocity, rp.MaxVelocity, agentMax)

	// Clear distance ahead of the train point inside the reservation. Cells
	// past the first one whose limit the train already exceeds do not count.
	clear := math.Max(0, d.cumulative[d.rear]-d.distance)
	spanMax := math.Min(tp.MaxVelocity, agentMax)
	usable := true
	for i := d.rear; i <= d.reserve; i++ {
		c := d.cellData(i)
		spanMax = math.Min(spanMax, c.MaxVelocity)
		if v > spanMax {
			usable = false
		}
		if usable && i > d.rear {
			clear += c.Length
		}
	}
	maxV = math.Min(maxV, spanMax)
	d.limit = maxV

	res := d.model.Accelerations(kinematics.Demand{
		Velocity:       v,
		TargetVelocity: maxV,
		Gradient:       tp.GradientFor(d.path[d.rear].Dir),
		Mass:           d.mass,
		Dt:             dt,
	})
	a, brake := res.Acceleration, res.MaxBraking
	aRP := kinematics.ReservationAcceleration(a, brake)
	vRP := d.rpVelocity
	d.tractiveEffort = res.TractiveEffort

	// Over the limit: coast when the clear distance still covers slowing
	// down later, brake otherwise.
	braking := v > maxV
	if braking && d.acceleration >= 0 {
		// One tick of travel on top of the continuous braking distance
		// covers the explicit integration below.
		needed := kinematics.BrakingDistanceTo(v, maxV, brake) + v*dt + d.length
		if clear-needed > tp.MaxVelocity*dt {
			braking = false
			maxV = v
		}
	}
	if d.hardBrake {
		maxV = 0
		braking = true
	}

	if braking {
		a = brake
		if need := (v - maxV) / dt; need < math.Abs(a) {
			a = -need
		}
		aRP, vRP = 0, 0
	}
	if v < maxV && vRP < v {
		vRP = v
	}
	if v == maxV {
		vRP = v
		a, aRP = 0, 0
	}

	d.distance += v * dt
	vNew := v + a*dt
	if vNew <= 0 {
		vNew, a = 0, 0
	}
	d.velocity = vNew
	d.acceleration = a

	// The reservation covers the stopping point of the train as it will be
	// reservationLead ticks from now, so that a limit found in a newly
	// reserved cell still leaves room to brake for it.
	lead := reservationLead * dt
	vAhead := vNew + math.Max(0, a)*lead
	reach := d.distance + vAhead*lead + kinematics.BrakingDistance(vAhead, brake) + d.length
	d.rpDistance += math.Max(0, reach-d.rpDistance)
	d.rpVelocity = math.Max(0, vRP+aRP*dt)

	return d.rpDistance > d.cumulative[len(d.cumulative)-1], nil
}

// Update records the cell the grid step put the train in, moves the rear and
// front indices along the path and appends one sample to the time series.
func (d *Dynamic) Update() error {
	if d.done || !d.placed {
		return nil
	}

	if !d.holds(d.node.Cell) {
		end := 0.0
		if n := len(d.cumulative); n > 0 {
			end = d.cumulative[n-1]
		}
		d.path = append(d.path, d.node)
		d.cumulative = append(d.cumulative, end+d.provider.Lookup(d.node.Cell).Length)
		d.reserve = len(d.path) - 1
	}
	d.rear = d.indexAt(d.distance, d.rear)
	d.front = d.indexAt(d.distance+d.length, max(d.front, d.rear))
	if err := d.checkInvariants(); err != nil {
		return fmt.Errorf("train %d: %w", d.ID, err)
	}

	d.series.append(d)
	return nil
}

func (d *Dynamic) holds(c grid.Cell) bool {
	if len(d.path) == 0 {
		return false
	}
	for _, n := range d.path[d.rear : d.reserve+1] {
		if n.Cell == c {
			return true
		}
	}
	return false
}

// indexAt returns the index of the first path cell ending beyond x, searching
// from start and never past the reservation index.
func (d *Dynamic) indexAt(x float64, start int) int {
	i := start
	for i < d.reserve && d.cumulative[i] <= x {
		i++
	}
	return i
}

func (d *Dynamic) State() State {
	switch {
	case d.done:
		return StateDone
	case !d.placed:
		return StateOffGrid
	case d.hardBrake && d.velocity == 0:
		return StateHalted
	case d.hardBrake || d.acceleration < 0 || d.velocity > d.limit:
		return StateBraking
	}
	return StateAdvancing
}

func (d *Dynamic) Velocity() float64            { return d.velocity }
func (d *Dynamic) Distance() float64            { return d.distance }
func (d *Dynamic) ReservationDistance() float64 { return d.rpDistance }

func (d *Dynamic) Log() Log {
	l := d.baseLog(d.State())
	l.Distance = d.distance
	l.ReservationDistance = d.rpDistance
	l.Velocity = d.velocity
	l.Acceleration = d.acceleration
	l.MaxVelocity = d.limit
	l.TractiveEffort = d.tractiveEffort
	l.RearIndex, l.FrontIndex, l.ReservationIndex = d.rear, d.front, d.reserve
	l.Allocated = d.AllocatedCells()
	return l
}

// Path is a copy of a dynamic train's visited cells and indices.
type Path struct {
	Nodes            []grid.Node `json:"nodes" msgpack:"nodes"`
	Cumulative       []float64   `json:"cumulative" msgpack:"cumulative"` // metres to the end of each cell
	RearIndex        int         `json:"rear_index" msgpack:"rear_index"`
	FrontIndex       int         `json:"front_index" msgpack:"front_index"`
	ReservationIndex int         `json:"reservation_index" msgpack:"reservation_index"`
}

func (d *Dynamic) Path() Path {
	return Path{
		Nodes:            append([]grid.Node(nil), d.path...),
		Cumulative:       append([]float64(nil), d.cumulative...),
		RearIndex:        d.rear,
		FrontIndex:       d.front,
		ReservationIndex: d.reserve,
	}
}

// Series holds one sample per tick on the grid, for offline plotting.
type Series struct {
	ReservationDistance []float64 `json:"reservation_distance" msgpack:"reservation_distance"`
	Distance            []float64 `json:"distance" msgpack:"distance"`
	Acceleration        []float64 `json:"acceleration" msgpack:"acceleration"`
	Velocity            []float64 `json:"velocity" msgpack:"velocity"`
	MaxVelocity         []float64 `json:"max_velocity" msgpack:"max_velocity"`
	TractiveEffort      []float64 `json:"tractive_effort" msgpack:"tractive_effort"`
	HardBrake           []bool    `json:"hard_brake" msgpack:"hard_brake"`
}

func (s *Series) append(d *Dynamic) {
	s.ReservationDistance = append(s.ReservationDistance, d.rpDistance)
	s.Distance = append(s.Distance, d.distance)
	s.Acceleration = append(s.Acceleration, d.acceleration)
	s.Velocity = append(s.Velocity, d.velocity)
	s.MaxVelocity = append(s.MaxVelocity, d.limit)
	s.TractiveEffort = append(s.TractiveEffort, d.tractiveEffort)
	s.HardBrake = append(s.HardBrake, d.hardBrake)
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Velocity) }

func (d *Dynamic) Series() Series {
	return Series{
		ReservationDistance: append([]float64(nil), d.series.ReservationDistance...),
		Distance:            append([]float64(nil), d.series.Distance...),
		Acceleration:        append([]float64(nil), d.series.Acceleration...),
		Velocity:            append([]float64(nil), d.series.Velocity...),
		MaxVelocity:         append([]float64(nil), d.series.MaxVelocity...),
		TractiveEffort:      append([]float64(nil), d.series.TractiveEffort...),
		HardBrake:           append([]bool(nil), d.series.HardBrake...),
	}
}
