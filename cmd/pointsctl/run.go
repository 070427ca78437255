package main

import (
	"github.com/spf13/cobra"

	"github.com/PaIIermo/DIP-compass-gamification/services"
)

var runFlags struct {
	frequency  string
	mock       bool
	validate   bool
	noSnapshot bool
	migrate    bool
}

func init() {
	runCmd.Flags().StringVar(&runFlags.frequency, "frequency", "", "snapshot frequency (weekly|monthly|quarterly), default from SNAPSHOT_FREQUENCY")
	runCmd.Flags().BoolVar(&runFlags.mock, "mock", false, "use deterministic mock data")
	runCmd.Flags().BoolVar(&runFlags.validate, "validate", false, "run the validation report after snapshots")
	runCmd.Flags().BoolVar(&runFlags.noSnapshot, "no-current-snapshot", false, "skip the snapshot for today")
	runCmd.Flags().BoolVar(&runFlags.migrate, "migrate", false, "migrate tables and seed the decay lookup first")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print the run report",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		defer e.log.Sync()

		p := services.BuildPipeline(e.cfg, e.db, e.log, nil)
		if runFlags.migrate {
			if err := p.Store.Migrate(); err != nil {
				return err
			}
			if err := p.Store.SeedDecayLookup(cmd.Context()); err != nil {
				return err
			}
		}

		opts := services.DefaultTrigger(e.cfg)
		opts.RunMode = services.RunModeImmediate
		if runFlags.frequency != "" {
			opts.SnapshotFrequency = runFlags.frequency
		}
		opts.UseMockData = opts.UseMockData || runFlags.mock
		opts.ValidationMode = opts.ValidationMode || runFlags.validate
		if runFlags.noSnapshot {
			opts.SnapshotNow = false
		}

		report, err := p.Run(cmd.Context(), opts)
		if report != nil {
			if perr := printJSON(report); perr != nil {
				return perr
			}
		}
		return err
	},
}
