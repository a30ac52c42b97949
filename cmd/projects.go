package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aoyama-lab/proximity-cli/internal/batch"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List discovered project units and their input state",
	RunE: func(cmd *cobra.Command, args []string) error {
		units, err := batch.Discover(cfg.Projects.BaseDir, cfg.Projects.Include,
			cfg.Projects.InputSubdir, cfg.Projects.OutputSubdir)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tINPUTS\tDIR")
		for _, u := range units {
			state := "missing"
			if info, err := os.Stat(u.InputDir); err == nil && info.IsDir() {
				state = "ok"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", u.Name, state, u.Dir)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}
