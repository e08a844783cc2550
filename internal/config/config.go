// Package config loads and validates scenario files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cxd309/movingblock/internal/engine"
	"github.com/cxd309/movingblock/internal/grid"
	"github.com/cxd309/movingblock/internal/infra"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Format is a scenario encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown scenario extension %q", ErrInvalidConfig, filepath.Ext(path))
}

var validate = validator.New()

// Load reads, decodes and validates the scenario at path. A missing
// simulation id is replaced by a random UUID.
func Load(path string) (engine.SimulationInput, error) {
	format, err := FormatOf(path)
	if err != nil {
		return engine.SimulationInput{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.SimulationInput{}, err
	}
	in, err := Decode(data, format)
	if err != nil {
		return in, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

// Decode parses a scenario, fills in defaults and validates it.
func Decode(data []byte, format Format) (engine.SimulationInput, error) {
	in := engine.NewSimulationInput()
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &in)
	case FormatJSON:
		err = json.Unmarshal(data, &in)
	default:
		return in, fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, format)
	}
	if err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if in.Meta.SimulationID == "" {
		in.Meta.SimulationID = uuid.NewString()
	}
	return in, Validate(in)
}

// Validate checks struct constraints and the relations between sections
// that the engine would otherwise reject at construction.
func Validate(in engine.SimulationInput) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	topo, err := grid.NewMap(in.Grid)
	if err != nil {
		return fmt.Errorf("%w: grid: %w", ErrInvalidConfig, err)
	}
	table, err := infra.NewTable(in.Infrastructure)
	if err != nil {
		return fmt.Errorf("%w: infrastructure: %w", ErrInvalidConfig, err)
	}
	p, err := infra.NewProvider(table, 0)
	if err != nil {
		return err
	}
	if err := p.Validate(topo); err != nil {
		return fmt.Errorf("%w: infrastructure: %w", ErrInvalidConfig, err)
	}

	seen := make(map[int]bool, len(in.Trains))
	for _, t := range in.Trains {
		switch {
		case seen[t.ID]:
			return fmt.Errorf("%w: train %d: duplicate id", ErrInvalidConfig, t.ID)
		case !t.InitialDirection.Valid():
			return fmt.Errorf("%w: train %d: %w", ErrInvalidConfig, t.ID, grid.ErrInvalidDirection)
		case !grid.HasTrack(topo, t.InitialPosition):
			return fmt.Errorf("%w: train %d: initial position %v is not on track", ErrInvalidConfig, t.ID, t.InitialPosition)
		case !grid.InBounds(topo, t.Target):
			return fmt.Errorf("%w: train %d: target %v: %w", ErrInvalidConfig, t.ID, t.Target, grid.ErrOutOfBounds)
		}
		seen[t.ID] = true
	}
	return nil
}
