package record

import (
	"errors"

	"github.com/cxd309/movingblock/internal/engine"
)

// Multi forwards every row to each recorder in order. A failing recorder does
// not stop the others; the errors are joined.
type Multi []engine.Recorder

func (m Multi) Record(row engine.SimulationLogRow) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
