package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cxd309/movingblock/internal/engine"
	"github.com/cxd309/movingblock/internal/metrics"
	"github.com/cxd309/movingblock/internal/record"
)

type runOptions struct {
	trace       string
	db          string
	metricsAddr string
	output      string
}

func newRunCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario and write the simulation log as JSON",
		Long: `Run loads a YAML or JSON scenario ("-" reads JSON from stdin), steps the
simulation until every train has arrived or max_ticks is reached, and writes
the SimulationLog JSON to stdout or --output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.trace, "trace", "", "write a msgpack+zstd trace to this file")
	cmd.Flags().StringVar(&opts.db, "db", "", "record per-train telemetry in this SQLite database")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the simulation log to this file instead of stdout")
	return cmd
}

func runScenario(cmd *cobra.Command, path string, opts runOptions) (err error) {
	ctx := cmd.Context()

	in, err := loadScenario(path)
	if err != nil {
		return err
	}

	m := metrics.New(metrics.DefaultNamespace)
	if opts.metricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, opts.metricsAddr); err != nil {
				lg.Error("metrics server", "addr", opts.metricsAddr, "err", err)
			}
		}()
		lg.Info("serving metrics", "addr", opts.metricsAddr)
	}

	var recs record.Multi
	if opts.trace != "" {
		tw, terr := record.CreateTrace(opts.trace, in.Meta)
		if terr != nil {
			return fmt.Errorf("creating trace: %w", terr)
		}
		defer func() {
			if cerr := tw.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("closing trace: %w", cerr)
			}
		}()
		recs = append(recs, tw)
	}
	if opts.db != "" {
		st, serr := record.Open(opts.db)
		if serr != nil {
			return fmt.Errorf("opening telemetry store: %w", serr)
		}
		defer st.Close()
		runID, serr := st.BeginRun(in.Meta)
		if serr != nil {
			return serr
		}
		defer func() {
			if ferr := st.FinishRun(); err == nil && ferr != nil {
				err = ferr
			}
		}()
		lg.Info("recording telemetry", "db", opts.db, "run_id", runID)
		recs = append(recs, st)
	}

	engineOpts := []engine.Option{engine.WithLogger(lg), engine.WithMetrics(m)}
	if len(recs) > 0 {
		engineOpts = append(engineOpts, engine.WithRecorder(recs))
	}
	e, err := engine.NewEngine(in, engineOpts...)
	if err != nil {
		return err
	}
	out, err := e.Run(ctx)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return json.NewEncoder(w).Encode(out)
}
