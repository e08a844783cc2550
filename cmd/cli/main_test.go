package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cxd309/movingblock/internal/engine"
	"github.com/cxd309/movingblock/internal/record"
)

const junction = "../../internal/config/testdata/junction.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-dir", t.TempDir()))
	err := cmd.Execute()
	return out.String(), err
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	trace := filepath.Join(dir, "junction.msgpack.zst")
	db := filepath.Join(dir, "telemetry.sqlite")

	out, err := execute(t, "run", junction, "--trace", trace, "--db", db)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var got engine.SimulationLog
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if got.Meta.SimulationID != "junction" || len(got.Output) == 0 {
		t.Fatalf("unexpected log: meta %+v, %d rows", got.Meta, len(got.Output))
	}

	tr, err := record.OpenTrace(trace)
	if err != nil {
		t.Fatalf("OpenTrace: %v", err)
	}
	if len(tr.Output) != len(got.Output) {
		t.Errorf("trace has %d rows, log has %d", len(tr.Output), len(got.Output))
	}

	st, err := record.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].FinishedAt.IsZero() {
		t.Errorf("runs = %+v, want one finished run", runs)
	}
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", junction)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "ok (junction, 2 trains)") {
		t.Errorf("output = %q", out)
	}

	if _, err := execute(t, "validate", "missing.yaml"); err == nil {
		t.Error("validate accepted a missing file")
	}
	if _, err := execute(t, "run", junction, "--log-level", "loud"); err == nil {
		t.Error("run accepted an unknown log level")
	}
}

func TestClusters(t *testing.T) {
	out, err := execute(t, "clusters", junction)
	if err != nil {
		t.Fatalf("clusters: %v", err)
	}
	if !strings.Contains(out, "switches:   [(1,3)]") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "switch cluster 1:") {
		t.Errorf("no switch cluster in output %q", out)
	}
}
