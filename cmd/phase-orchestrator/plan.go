package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corpusforge/phase-orchestrator/internal/segmentation"
)

var (
	planUnits  int
	planSubset []int
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the segmentation plan for a unit count or a unit subset",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			plan segmentation.Plan
			err  error
		)
		if len(planSubset) > 0 {
			plan, err = segmentation.Subset(planSubset)
		} else {
			plan, err = segmentation.Compute(planUnits)
		}
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	planCmd.Flags().IntVarP(&planUnits, "units", "u", 0, "Total number of units")
	planCmd.Flags().IntSliceVar(&planSubset, "subset", nil, "Plan a re-extraction over these unit indices instead")
}
