package record

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cxd309/movingblock/internal/engine"
	"github.com/cxd309/movingblock/internal/grid"
	"github.com/cxd309/movingblock/internal/infra"
	"github.com/cxd309/movingblock/internal/train"
)

func lineInput() engine.SimulationInput {
	in := engine.NewSimulationInput()
	in.Meta = engine.SimulationMeta{SimulationID: "line", MaxTicks: 200}
	cells := make([]grid.Cell, 5)
	for i := range cells {
		cells[i] = grid.Cell{Row: 0, Col: i}
	}
	in.Grid = grid.MapData{Height: 1, Width: 5, Tracks: []grid.Track{{Cells: cells}}}
	in.Infrastructure = infra.Data{Default: &infra.CellData{Length: 400, MaxVelocity: 100 / 3.6}}
	in.Trains = []train.Train{
		{ID: 0, Kind: train.KindDynamic, InitialDirection: grid.East, Target: grid.Cell{Row: 0, Col: 4}},
		{ID: 1, Kind: train.KindSimple, InitialDirection: grid.East, Target: grid.Cell{Row: 0, Col: 4}, DepartureTick: 40},
	}
	return in
}

func run(t *testing.T, r engine.Recorder) engine.SimulationLog {
	t.Helper()
	e, err := engine.NewEngine(lineInput(), engine.WithRecorder(r))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	out, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out
}

func TestTraceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewTraceWriter(&buf, lineInput().Meta)
	if err != nil {
		t.Fatal(err)
	}
	want := run(t, w)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if w.Rows() != len(want.Output) {
		t.Errorf("Rows() = %d, want %d", w.Rows(), len(want.Output))
	}

	got, err := ReadTrace(&buf)
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "line.msgpack.zst")
	meta := engine.SimulationMeta{SimulationID: "empty", MaxTicks: 1}
	w, err := CreateTrace(path, meta)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := OpenTrace(path)
	if err != nil {
		t.Fatalf("OpenTrace: %v", err)
	}
	if diff := cmp.Diff(engine.SimulationLog{Meta: meta}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestTraceVersion(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := msgpack.NewEncoder(zw).Encode(traceHeader{Version: TraceVersion + 1}); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadTrace(&buf); !errors.Is(err, ErrTraceVersion) {
		t.Errorf("ReadTrace = %v, want ErrTraceVersion", err)
	}
	if _, err := ReadTrace(bytes.NewReader([]byte("not a trace"))); err == nil {
		t.Error("ReadTrace accepted garbage")
	}
}

func TestStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "db", "telemetry.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Record(engine.SimulationLogRow{}); !errors.Is(err, ErrNoRun) {
		t.Errorf("Record before BeginRun = %v, want ErrNoRun", err)
	}

	id, err := s.BeginRun(lineInput().Meta)
	if err != nil {
		t.Fatal(err)
	}
	out := run(t, s)
	if err := s.FinishRun(); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	last := out.Output[len(out.Output)-1].Tick
	if r := runs[0]; r.ID != id || r.SimulationID != "line" || r.MaxTicks != 200 || r.Ticks != last || r.FinishedAt.IsZero() {
		t.Errorf("run = %+v", r)
	}

	for _, trainID := range []int{0, 1} {
		samples, err := s.Samples(id, trainID)
		if err != nil {
			t.Fatal(err)
		}
		var want []Sample
		for _, row := range out.Output {
			for _, l := range row.Trains {
				if l.ID != trainID {
					continue
				}
				want = append(want, Sample{
					Tick: row.Tick, TrainID: l.ID, State: l.State, HardBrake: l.HardBrake,
					Distance: l.Distance, ReservationDistance: l.ReservationDistance,
					Velocity: l.Velocity, Acceleration: l.Acceleration,
					MaxVelocity: l.MaxVelocity, TractiveEffort: l.TractiveEffort,
				})
			}
		}
		if diff := cmp.Diff(want, samples); diff != "" {
			t.Errorf("train %d samples (-want +got):\n%s", trainID, diff)
		}
	}
}

type failing struct{ n int }

func (f *failing) Record(engine.SimulationLogRow) error {
	f.n++
	return errors.New("disk full")
}

type counting struct{ n int }

func (c *counting) Record(engine.SimulationLogRow) error {
	c.n++
	return nil
}

func TestMulti(t *testing.T) {
	f, c := &failing{}, &counting{}
	err := Multi{f, c}.Record(engine.SimulationLogRow{Tick: 1})
	if err == nil {
		t.Fatal("Multi swallowed the error")
	}
	if f.n != 1 || c.n != 1 {
		t.Errorf("calls = %d, %d, want 1, 1", f.n, c.n)
	}
	if err := (Multi{c}).Record(engine.SimulationLogRow{}); err != nil {
		t.Errorf("Multi = %v", err)
	}
}
