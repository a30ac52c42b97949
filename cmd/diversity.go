package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/diversity"
	"github.com/aoyama-lab/proximity-cli/internal/loader"
	"github.com/aoyama-lab/proximity-cli/internal/schema"
)

var (
	diversityAttributes string
	diversityKey        string
	diversityOut        string
)

var diversityCmd = &cobra.Command{
	Use:   "diversity",
	Short: "Compute per-region diversity indices from an attribute table",
	Long: "Resolves the total, subgroup, and secondary-category population columns by " +
		"the configured name fragments and writes a per-region Simpson-style diversity " +
		"index with the post-hoc sanitize pass applied.",
	RunE: func(cmd *cobra.Command, args []string) error {
		key := diversityKey
		if key == "" {
			key = cfg.Inputs.JoinKey
		}

		table, err := loader.ReadTable(diversityAttributes, loader.TableOptions{
			ShiftJIS:  cfg.Inputs.ShiftJIS,
			SheetName: cfg.Inputs.XLSXSheet,
		})
		if err != nil {
			return err
		}

		binding, err := schema.Resolve(table.Columns(), diversitySpecs())
		if err != nil {
			return err
		}

		scores, err := diversity.Compute(table, key, binding, diversity.Params{
			TotalRole:         "total",
			SubgroupRoles:     subgroupRoles(),
			SecondaryRole:     secondaryRole(),
			SanitizeThreshold: cfg.Analysis.SanitizeThreshold,
		})
		if err != nil {
			return err
		}

		if err := diversity.WriteCSV(diversityOut, scores); err != nil {
			return err
		}

		zap.L().Info("diversity: table written",
			zap.String("path", diversityOut), zap.Int("rows", len(scores)))
		fmt.Fprintf(os.Stdout, "Wrote %d diversity scores to %s\n", len(scores), diversityOut)
		return nil
	},
}

// diversitySpecs builds the resolver input for the diversity columns from the
// configured fragments.
func diversitySpecs() []schema.FieldSpec {
	specs := []schema.FieldSpec{{
		Role:      "total",
		Substring: cfg.Schema.TotalSubstring,
		Exclude:   cfg.Schema.ExcludeSubstrings,
	}}
	for i, sub := range cfg.Schema.SubgroupSubstrings {
		specs = append(specs, schema.FieldSpec{
			Role:      subgroupRole(i),
			Substring: sub,
			Exclude:   cfg.Schema.ExcludeSubstrings,
		})
	}
	if cfg.Schema.SecondarySubstring != "" {
		specs = append(specs, schema.FieldSpec{
			Role:      "secondary",
			Substring: cfg.Schema.SecondarySubstring,
			Exclude:   cfg.Schema.ExcludeSubstrings,
		})
	}
	return specs
}

func subgroupRole(i int) string {
	return fmt.Sprintf("subgroup_%d", i)
}

func subgroupRoles() []string {
	roles := make([]string, len(cfg.Schema.SubgroupSubstrings))
	for i := range roles {
		roles[i] = subgroupRole(i)
	}
	return roles
}

func secondaryRole() string {
	if cfg.Schema.SecondarySubstring == "" {
		return ""
	}
	return "secondary"
}

func init() {
	diversityCmd.Flags().StringVar(&diversityAttributes, "attributes", "", "attribute table (.csv or .xlsx)")
	diversityCmd.Flags().StringVar(&diversityKey, "key", "", "key column (defaults to the configured join key)")
	diversityCmd.Flags().StringVar(&diversityOut, "out", "diversity.csv", "output CSV path")
	_ = diversityCmd.MarkFlagRequired("attributes")
	rootCmd.AddCommand(diversityCmd)
}
