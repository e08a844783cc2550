package train

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/cxd309/movingblock/internal/grid"
	"github.com/cxd309/movingblock/internal/infra"
	"github.com/cxd309/movingblock/internal/kinematics"
)

const eps = 1e-9

func TestVehicleUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Vehicle
		wantErr bool
	}{
		{
			name:  "defaults",
			input: `{"name":"ic"}`,
			want:  Vehicle{Name: "ic", Length: DefaultLength, Mass: DefaultMass, Model: kinematics.DefaultRollingStock()},
		},
		{
			name:  "rolling stock override",
			input: `{"name":"freight","length":600,"mass":2000,"kinematics":{"model":"rolling_stock","max_braking":-0.3}}`,
			want: Vehicle{Name: "freight", Length: 600, Mass: 2000, Model: func() kinematics.TractionModel {
				r := kinematics.DefaultRollingStock()
				r.MaxBraking = -0.3
				return r
			}()},
		},
		{
			name:  "constant",
			input: `{"kinematics":{"model":"constant","a_acc":1,"a_dcc":0.5,"v_max":30}}`,
			want: Vehicle{Length: DefaultLength, Mass: DefaultMass,
				Model: kinematics.ConstantAcceleration{AAcc: 1, ADcc: 0.5, VMaxVal: 30}},
		},
		{
			name:    "unknown model",
			input:   `{"kinematics":{"model":"maglev"}}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Vehicle
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Unmarshal() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Vehicle mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVehicleUnmarshalYAML(t *testing.T) {
	input := `
name: shuttle
length: 50
kinematics:
  model: constant
  a_acc: 0.8
  a_dcc: 0.6
  v_max: 25
`
	var got Vehicle
	if err := yaml.Unmarshal([]byte(input), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := Vehicle{Name: "shuttle", Length: 50, Mass: DefaultMass,
		Model: kinematics.ConstantAcceleration{AAcc: 0.8, ADcc: 0.6, VMaxVal: 25}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Vehicle mismatch (-want +got):\n%s", diff)
	}

	var def Vehicle
	if err := yaml.Unmarshal([]byte("name: plain\n"), &def); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if diff := cmp.Diff(kinematics.TractionModel(kinematics.DefaultRollingStock()), def.Model); diff != "" {
		t.Errorf("default model mismatch (-want +got):\n%s", diff)
	}
}

func TestNewAgent(t *testing.T) {
	if _, err := NewAgent(Train{ID: 1, Kind: "hovercraft"}, nil, 50); err == nil {
		t.Error("NewAgent accepted an unknown kind")
	}
	a, err := NewAgent(Train{ID: 2}, nil, 50)
	if err != nil {
		t.Fatalf("NewAgent() error = %v", err)
	}
	if got := a.Definition().Kind; got != KindDynamic {
		t.Errorf("default kind = %q, want %q", got, KindDynamic)
	}
	bad := Train{ID: 3, Vehicle: Vehicle{Length: -1, Mass: 1, Model: kinematics.DefaultRollingStock()}}
	if _, err := NewAgent(bad, nil, 50); err == nil {
		t.Error("NewAgent accepted a negative vehicle length")
	}
}

func TestSimpleAgent(t *testing.T) {
	s := NewSimple(Train{ID: 4})
	if s.State() != StateOffGrid || s.AllocatedCells() != nil {
		t.Fatalf("new simple agent: state %v, cells %v", s.State(), s.AllocatedCells())
	}
	n := grid.Node{Cell: grid.Cell{Row: 1, Col: 2}, Dir: grid.East}
	s.MoveTo(n)
	if diff := cmp.Diff([]grid.Cell{n.Cell}, s.AllocatedCells()); diff != "" {
		t.Errorf("AllocatedCells mismatch (-want +got):\n%s", diff)
	}
	s.AllResourceOK(false)
	if s.State() != StateHalted {
		t.Errorf("State() = %v after refused locks, want halted", s.State())
	}
	if ok, _ := s.UpdateMovementDynamics(); !ok {
		t.Error("placed simple agent may not move")
	}
	s.Remove()
	if ok, _ := s.UpdateMovementDynamics(); ok {
		t.Error("removed simple agent may still move")
	}
	if l := s.Log(); l.State != StateDone || l.Position != nil {
		t.Errorf("Log() = %+v after removal", l)
	}
}

// straightRun drives d along row 0 of a 1xN track towards the last column,
// mimicking the orchestrator's grid step, and calls check after every tick.
func straightRun(t *testing.T, d *Dynamic, cols, ticks int, check func(tick int)) {
	t.Helper()
	d.MoveTo(grid.Node{Cell: grid.Cell{Row: 0, Col: 0}, Dir: grid.East})
	if err := d.Update(); err != nil {
		t.Fatalf("placement: %v", err)
	}
	for tick := 1; tick <= ticks && !d.IsDone(); tick++ {
		d.AllResourceOK(true)
		advance, err := d.UpdateMovementDynamics()
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		pos, _ := d.Position()
		if advance && pos.Cell.Col < cols-1 {
			next := grid.Node{Cell: grid.Neighbor(pos.Cell, grid.East), Dir: grid.East}
			d.MoveTo(next)
			if next.Cell.Col == cols-1 {
				d.Remove()
			}
		}
		if err := d.Update(); err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		check(tick)
	}
}

func newStraightDynamic(t *testing.T, maxVelocity float64) *Dynamic {
	t.Helper()
	return newLineDynamic(t, infra.Data{Default: &infra.CellData{Length: 400, MaxVelocity: maxVelocity}}, 4)
}

// newLineDynamic places a dynamic train on row 0 bound for column target.
func newLineDynamic(t *testing.T, data infra.Data, target int) *Dynamic {
	t.Helper()
	table, err := infra.NewTable(data)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	p, err := infra.NewProvider(table, 0)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	d, err := NewDynamic(Train{ID: 0, Target: grid.Cell{Row: 0, Col: target}}, p, 300/3.6)
	if err != nil {
		t.Fatalf("NewDynamic: %v", err)
	}
	return d
}

func TestDynamicStraightTrack(t *testing.T) {
	const limit = 100 / 3.6
	d := newStraightDynamic(t, limit)

	prevRP := 0.0
	straightRun(t, d, 5, 1000, func(tick int) {
		if d.IsDone() {
			return
		}
		if v := d.Velocity(); v < 0 || v > limit+eps {
			t.Fatalf("tick %d: velocity %v outside [0, %v]", tick, v, limit)
		}
		rp := d.ReservationDistance()
		if rp < d.Distance() {
			t.Fatalf("tick %d: reservation point %v behind train point %v", tick, rp, d.Distance())
		}
		if rp < prevRP {
			t.Fatalf("tick %d: reservation point moved back from %v to %v", tick, prevRP, rp)
		}
		prevRP = rp

		p := d.Path()
		if !(p.RearIndex <= p.FrontIndex && p.FrontIndex <= p.ReservationIndex) {
			t.Fatalf("tick %d: indices out of order: %+v", tick, p)
		}
		if end := p.Cumulative[len(p.Cumulative)-1]; d.Distance()+DefaultLength > end+eps {
			t.Fatalf("tick %d: train front %v beyond the recorded path end %v", tick, d.Distance()+DefaultLength, end)
		}
	})

	if !d.IsDone() {
		t.Fatalf("train did not reach its target, state %v at distance %v", d.State(), d.Distance())
	}
	s := d.Series()
	if s.Len() == 0 {
		t.Fatal("no telemetry recorded")
	}
	if s.Velocity[s.Len()-1] <= 0 {
		t.Error("train was not moving when it reached the target")
	}
	if d.AllocatedCells() != nil {
		t.Error("removed train still reports allocated cells")
	}
}

func TestDynamicReservationCoversBrakingDistance(t *testing.T) {
	d := newStraightDynamic(t, 100/3.6)
	straightRun(t, d, 50, 60, func(tick int) {
		brake := kinematics.DefaultRollingStock().MaxBraking
		need := d.Distance() + kinematics.BrakingDistance(d.Velocity(), brake) + DefaultLength
		if d.ReservationDistance()+eps < need {
			t.Fatalf("tick %d: reservation point %v short of stopping point %v", tick, d.ReservationDistance(), need)
		}
	})
}

func TestDynamicSpeedRestrictionAhead(t *testing.T) {
	const (
		lineSpeed  = 100 / 3.6
		restricted = 5.0
		cellLength = 400.0
	)
	slow := grid.Cell{Row: 0, Col: 5}
	d := newLineDynamic(t, infra.Data{
		Default: &infra.CellData{Length: cellLength, MaxVelocity: lineSpeed},
		Cells:   []infra.CellEntry{{Cell: slow, CellData: infra.CellData{Length: cellLength, MaxVelocity: restricted}}},
	}, 8)
	limit := func(c grid.Cell) float64 {
		if c == slow {
			return restricted
		}
		return lineSpeed
	}
	start, end := 5*cellLength, 6*cellLength

	var overSpan, braked, entered bool
	entry := -1.0
	straightRun(t, d, 9, 2000, func(tick int) {
		if d.IsDone() {
			return
		}
		// A train faster than the lowest limit of its span on one tick must
		// be braking on the next.
		if overSpan {
			if s := d.State(); s != StateBraking && s != StateHalted {
				t.Fatalf("tick %d: state %v at %v m/s after exceeding the span limit", tick, s, d.Velocity())
			}
		}
		p := d.Path()
		spanMin := math.Inf(1)
		for _, n := range p.Nodes[p.RearIndex : p.ReservationIndex+1] {
			spanMin = math.Min(spanMin, limit(n.Cell))
		}
		v := d.Velocity()
		overSpan = v > spanMin+eps
		if d.State() == StateBraking && v > restricted {
			braked = true
		}

		if front := d.Distance() + DefaultLength; front > start && d.Distance() < end {
			if !entered {
				entered, entry = true, v
			}
			if v > restricted+1e-6 {
				t.Fatalf("tick %d: %v m/s with the train in the %v m/s cell", tick, v, restricted)
			}
		}
	})

	if !entered {
		t.Fatal("train never reached the restricted cell")
	}
	if !braked {
		t.Error("train never braked for the restricted cell")
	}
	if entry > restricted+1e-6 {
		t.Errorf("entry speed %v above %v", entry, restricted)
	}
	if !d.IsDone() {
		t.Errorf("train did not get past the restriction, state %v at distance %v", d.State(), d.Distance())
	}
}

func TestDynamicHardBrake(t *testing.T) {
	d := newStraightDynamic(t, 100/3.6)
	straightRun(t, d, 50, 30, func(int) {})
	if d.Velocity() <= 0 {
		t.Fatal("train did not start")
	}

	for tick := 0; tick < 2000 && d.Velocity() > 0; tick++ {
		d.AllResourceOK(false)
		before := d.Velocity()
		if _, err := d.UpdateMovementDynamics(); err != nil {
			t.Fatalf("UpdateMovementDynamics: %v", err)
		}
		if err := d.Update(); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if d.Velocity() > before {
			t.Fatalf("train accelerated from %v to %v under the hard brake", before, d.Velocity())
		}
		if d.Velocity() > 0 && d.State() != StateBraking {
			t.Fatalf("State() = %v while stopping, want braking", d.State())
		}
	}
	if d.Velocity() != 0 {
		t.Fatalf("velocity = %v, want 0", d.Velocity())
	}
	if d.State() != StateHalted {
		t.Errorf("State() = %v, want halted", d.State())
	}
	if !d.Log().HardBrake {
		t.Error("log does not report the hard brake")
	}
}

func TestDynamicInvariantViolation(t *testing.T) {
	d := newStraightDynamic(t, 100/3.6)
	straightRun(t, d, 5, 3, func(int) {})
	d.rear = d.reserve + 1
	if _, err := d.UpdateMovementDynamics(); !errors.Is(err, ErrInvariant) {
		t.Errorf("UpdateMovementDynamics() error = %v, want ErrInvariant", err)
	}
}

func TestDynamicOffGrid(t *testing.T) {
	d := newStraightDynamic(t, 100/3.6)
	if ok, err := d.UpdateMovementDynamics(); !ok || err != nil {
		t.Errorf("off-grid train: UpdateMovementDynamics() = %v, %v; want true, nil", ok, err)
	}
	if err := d.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if d.State() != StateOffGrid || d.AllocatedCells() != nil {
		t.Errorf("off-grid train: state %v, cells %v", d.State(), d.AllocatedCells())
	}
}
