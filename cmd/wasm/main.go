//go:build js && wasm

// Command wasm exposes the moving-block engine to the browser via WebAssembly.
// After loading, it registers a global JavaScript function:
//
//	runSimulation(jsonString) -> jsonString | {error: string}
//
// The argument is a scenario: simulation_meta, options, grid, infrastructure
// and trains, as accepted by "tms run" for JSON input. Fields left out keep
// their defaults.
//
// The result is the run log. It holds simulation_meta and an output array
// with one row per tick. A row has the tick, the number of locked cells and a
// trains array. Each train entry carries its id, kind and state, its
// position (cell and heading, absent off the grid), the hard_brake flag, the
// train point and reservation point distances in metres, velocity,
// acceleration and the applied max_velocity, the tractive effort in newtons,
// the rear, front and reservation path indices and the allocated cells.
//
// Input that fails to decode or validate, or a run that fails, yields an
// object with a single error message instead.
package main

import (
	"syscall/js"

	"github.com/cxd309/movingblock/internal/engine"
)

func main() {
	js.Global().Set("runSimulation", js.FuncOf(runSimulation))
	select {} // keep the WASM module alive until the page is closed
}

func runSimulation(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return map[string]any{"error": "no input provided"}
	}

	result, err := engine.RunJSON(args[0].String())
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return result
}
