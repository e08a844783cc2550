// Package infra supplies the physical attributes of grid cells: length,
// maximum permitted velocity and gradient.
package infra

import (
	"errors"
	"fmt"
	"math"

	"github.com/cxd309/movingblock/internal/grid"
)

var (
	ErrInvalidLength   = errors.New("cell length must be positive")
	ErrInvalidVelocity = errors.New("cell max velocity must be non-negative")
	ErrInvalidGradient = errors.New("cell gradient must be finite")
	ErrDuplicateCell   = errors.New("duplicate cell entry")
)

const (
	DefaultLength      = 400.0       // metres
	DefaultMaxVelocity = 200.0 / 3.6 // m/s
	DefaultGradient    = 0.0
)

// CellData holds the physical attributes of one cell.
//
// Gradient is in per mille (N/kN of train weight), positive uphill for a train
// travelling north or east. Trains heading south or west see the sign flipped.
type CellData struct {
	Length      float64 `json:"length" yaml:"length"`             // metres
	MaxVelocity float64 `json:"max_velocity" yaml:"max_velocity"` // m/s
	Gradient    float64 `json:"gradient" yaml:"gradient"`
}

// Default is used for cells without data.
var Default = CellData{Length: DefaultLength, MaxVelocity: DefaultMaxVelocity, Gradient: DefaultGradient}

func (d CellData) Validate() error {
	switch {
	case !(d.Length > 0) || math.IsInf(d.Length, 0):
		return fmt.Errorf("%w: %v", ErrInvalidLength, d.Length)
	case !(d.MaxVelocity >= 0) || math.IsInf(d.MaxVelocity, 0):
		return fmt.Errorf("%w: %v", ErrInvalidVelocity, d.MaxVelocity)
	case math.IsNaN(d.Gradient) || math.IsInf(d.Gradient, 0):
		return fmt.Errorf("%w: %v", ErrInvalidGradient, d.Gradient)
	}
	return nil
}

// GradientFor returns the gradient seen by a train heading dir.
func (d CellData) GradientFor(dir grid.Direction) float64 {
	if dir == grid.South || dir == grid.West {
		return -d.Gradient
	}
	return d.Gradient
}

// Source is the infrastructure data capability. The boolean result is false
// when the source has no value for the cell.
type Source interface {
	Length(c grid.Cell) (float64, bool)
	MaxVelocity(c grid.Cell) (float64, bool)
	Gradient(c grid.Cell) (float64, bool)
}

// CellEntry overrides the data of one cell.
type CellEntry struct {
	grid.Cell `yaml:",inline"`
	CellData  `yaml:",inline"`
}

// Data is the serialisable form of a Table. A nil Default means the built-in
// Default; a given one is used as is, so a zero max velocity stays zero.
type Data struct {
	Default *CellData   `json:"default,omitempty" yaml:"default,omitempty"`
	Cells   []CellEntry `json:"cells,omitempty" yaml:"cells,omitempty"`
}

// NewData returns Data whose Default starts from the built-in values.
// Decoders start from it so that fields left out of the default section keep
// their built-in value.
func NewData() Data {
	def := Default
	return Data{Default: &def}
}

// Table is an in-memory Source.
type Table struct {
	def   CellData
	cells map[grid.Cell]CellData
}

// NewTable builds a Table from data, rejecting invalid values.
func NewTable(data Data) (*Table, error) {
	def := Default
	if data.Default != nil {
		def = *data.Default
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("default cell data: %w", err)
	}
	t := &Table{def: def, cells: make(map[grid.Cell]CellData, len(data.Cells))}
	for _, e := range data.Cells {
		if _, dup := t.cells[e.Cell]; dup {
			return nil, fmt.Errorf("cell %v: %w", e.Cell, ErrDuplicateCell)
		}
		if err := e.CellData.Validate(); err != nil {
			return nil, fmt.Errorf("cell %v: %w", e.Cell, err)
		}
		t.cells[e.Cell] = e.CellData
	}
	return t, nil
}

func (t *Table) lookup(c grid.Cell) CellData {
	if d, ok := t.cells[c]; ok {
		return d
	}
	return t.def
}

func (t *Table) Length(c grid.Cell) (float64, bool)      { return t.lookup(c).Length, true }
func (t *Table) MaxVelocity(c grid.Cell) (float64, bool) { return t.lookup(c).MaxVelocity, true }
func (t *Table) Gradient(c grid.Cell) (float64, bool)    { return t.lookup(c).Gradient, true }
