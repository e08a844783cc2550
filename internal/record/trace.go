// Package record persists simulation output: compressed msgpack traces for
// offline plotting and a SQLite store of per-train telemetry.
package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cxd309/movingblock/internal/engine"
)

// TraceVersion is bumped whenever the trace layout changes.
const TraceVersion = 1

var ErrTraceVersion = errors.New("unsupported trace version")

type traceHeader struct {
	Version int                   `msgpack:"version"`
	Meta    engine.SimulationMeta `msgpack:"meta"`
}

// TraceWriter streams a header followed by one msgpack value per tick
// through a zstd encoder. It implements engine.Recorder.
type TraceWriter struct {
	zw  *zstd.Encoder
	enc *msgpack.Encoder
	f   io.Closer // underlying file, when opened by CreateTrace
	n   int
}

// CreateTrace creates (or truncates) a trace file at path.
func CreateTrace(path string, meta engine.SimulationMeta) (*TraceWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewTraceWriter(f, meta)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.f = f
	return w, nil
}

func NewTraceWriter(w io.Writer, meta engine.SimulationMeta) (*TraceWriter, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	t := &TraceWriter{zw: zw, enc: msgpack.NewEncoder(zw)}
	if err := t.enc.Encode(traceHeader{Version: TraceVersion, Meta: meta}); err != nil {
		zw.Close()
		return nil, fmt.Errorf("writing trace header: %w", err)
	}
	return t, nil
}

func (t *TraceWriter) Record(row engine.SimulationLogRow) error {
	if err := t.enc.Encode(row); err != nil {
		return fmt.Errorf("tick %d: %w", row.Tick, err)
	}
	t.n++
	return nil
}

// Rows returns the number of rows written so far.
func (t *TraceWriter) Rows() int { return t.n }

// Close flushes the compressed stream and closes the file, if any.
func (t *TraceWriter) Close() error {
	err := t.zw.Close()
	if t.f != nil {
		if cerr := t.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadTrace decodes a complete trace.
func ReadTrace(r io.Reader) (engine.SimulationLog, error) {
	var out engine.SimulationLog

	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return out, err
	}
	defer zr.Close()

	dec := msgpack.NewDecoder(zr)
	var h traceHeader
	if err := dec.Decode(&h); err != nil {
		return out, fmt.Errorf("reading trace header: %w", err)
	}
	if h.Version != TraceVersion {
		return out, fmt.Errorf("%w: %d", ErrTraceVersion, h.Version)
	}
	out.Meta = h.Meta

	for {
		var row engine.SimulationLogRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return out, fmt.Errorf("reading row %d: %w", len(out.Output), err)
		}
		out.Output = append(out.Output, row)
	}
	return out, nil
}

func OpenTrace(path string) (engine.SimulationLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return engine.SimulationLog{}, err
	}
	defer f.Close()
	return ReadTrace(f)
}
