package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-resolver/internal/equipment"
	"github.com/sells-group/listing-resolver/internal/llm"
	"github.com/sells-group/listing-resolver/internal/synthesis"
)

var equipmentNoLLM bool

var equipmentCmd = &cobra.Command{
	Use:   "equipment",
	Short: "Equipment list tools",
}

var equipmentCategorizeCmd = &cobra.Command{
	Use:   "categorize ITEM...",
	Short: "Assign equipment items to categories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var completer equipment.Completer
		if !equipmentNoLLM {
			lc, err := llm.NewCompleter(ctx, cfg.Completer())
			if err != nil {
				zap.L().Warn("llm unavailable, using keyword rules only", zap.Error(err))
			} else {
				completer = synthesis.New(lc, cfg.Agent.ToAgent().SynthesisTimeout)
			}
		}

		results := equipment.NewCategorizer(completer).CategorizeAll(ctx, args)
		return printJSON(cmd.OutOrStdout(), results)
	},
}

func init() {
	equipmentCategorizeCmd.Flags().BoolVar(&equipmentNoLLM, "no-llm", false, "use keyword rules only")
	equipmentCmd.AddCommand(equipmentCategorizeCmd)
	rootCmd.AddCommand(equipmentCmd)
}
