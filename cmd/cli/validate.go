package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cxd309/movingblock/internal/engine"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario>...",
		Short: "Check scenarios without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				in, err := loadScenario(path)
				if err != nil {
					return err
				}
				// The engine adds the checks that need a built layout.
				if _, err := engine.NewEngine(in, engine.WithLogger(lg)); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s, %d trains)\n", path, in.Meta.SimulationID, len(in.Trains))
			}
			return nil
		},
	}
}
