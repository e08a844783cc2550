package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cxd309/movingblock/internal/engine"
	"github.com/cxd309/movingblock/internal/switches"
)

func newClustersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clusters <scenario>",
		Short: "Print the switches and lock clusters of a scenario's layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := loadScenario(args[0])
			if err != nil {
				return err
			}
			e, err := engine.NewEngine(in, engine.WithLogger(lg))
			if err != nil {
				return err
			}
			printClusters(cmd.OutOrStdout(), e.Classification(), e.Clusters())
			return nil
		},
	}
}

func printClusters(w io.Writer, c *switches.Classification, cl *switches.Clusters) {
	fmt.Fprintf(w, "switches:   %v\n", c.Switches())
	fmt.Fprintf(w, "neighbours: %v\n", c.Neighbours())
	for id := 1; id <= cl.NumSwitchClusters(); id++ {
		fmt.Fprintf(w, "switch cluster %d: %v\n", id, cl.SwitchMembers(switches.ClusterID(id)))
	}
	for id := 1; id <= cl.NumEdgeClusters(); id++ {
		fmt.Fprintf(w, "edge cluster %d: %v\n", id, cl.EdgeMembers(switches.ClusterID(id)))
	}
}
