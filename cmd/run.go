package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/aoyama-lab/proximity-cli/internal/batch"
	"github.com/aoyama-lab/proximity-cli/internal/geoengine"
	"github.com/aoyama-lab/proximity-cli/internal/stats"
)

var runCmd = &cobra.Command{
	Use:   "run <project>",
	Short: "Process a single project directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		units, err := batch.Discover(cfg.Projects.BaseDir, []string{args[0]},
			cfg.Projects.InputSubdir, cfg.Projects.OutputSubdir)
		if err != nil {
			return err
		}

		engine, err := geoengine.NewPlanarEngine(
			geoengine.Metric(cfg.Analysis.Metric), cfg.Analysis.RandomSeed)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
		}

		pipe := batch.NewAnalysisPipeline(cfg, engine, stats.WelchTTester{})
		res, err := batch.NewOrchestrator(pipe, st).Run(ctx, units, cfg.Analysis.Mode, cfg.Projects.BaseDir)
		if err != nil {
			return err
		}

		if res.AnyFailed() {
			return eris.Errorf("project %s failed: %s", args[0], res.Units[0].Error)
		}
		if res.Skipped > 0 {
			return eris.Errorf("project %s has no %s directory", args[0], cfg.Projects.InputSubdir)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
