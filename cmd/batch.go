package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/batch"
	"github.com/aoyama-lab/proximity-cli/internal/geoengine"
	"github.com/aoyama-lab/proximity-cli/internal/stats"
)

var (
	batchBaseDir string
	batchInclude []string
	batchMode    string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every selected project directory",
	Long: "Discovers project units under the base directory, runs the full analysis " +
		"pipeline for each one sequentially, and records the outcomes. A unit failure " +
		"never stops the batch; the exit status reflects whether any unit failed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if batchBaseDir != "" {
			cfg.Projects.BaseDir = batchBaseDir
		}
		if len(batchInclude) > 0 {
			cfg.Projects.Include = batchInclude
		}
		if batchMode != "" {
			cfg.Analysis.Mode = batchMode
		}

		units, err := batch.Discover(cfg.Projects.BaseDir, cfg.Projects.Include,
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
			zap.L().Error("batch: completed with failures",
				zap.Int("failed", res.Failed), zap.Int("total", res.Total))
			return eris.Errorf("%d of %d project units failed", res.Failed, res.Total)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchBaseDir, "base-dir", "", "projects base directory (overrides config)")
	batchCmd.Flags().StringSliceVar(&batchInclude, "include", nil, `project names to process, or "all"`)
	batchCmd.Flags().StringVar(&batchMode, "mode", "", "rate mode: density or percentage (overrides config)")
	rootCmd.AddCommand(batchCmd)
}
