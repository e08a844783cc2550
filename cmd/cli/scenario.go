package main

import (
	"io"
	"os"

	"github.com/cxd309/movingblock/internal/config"
	"github.com/cxd309/movingblock/internal/engine"
)

// loadScenario reads a scenario file, or JSON from stdin when path is "-".
func loadScenario(path string) (engine.SimulationInput, error) {
	if path != "-" {
		return config.Load(path)
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return engine.SimulationInput{}, err
	}
	return config.Decode(data, config.FormatJSON)
}
