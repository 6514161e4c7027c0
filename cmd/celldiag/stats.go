package main

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph, lexicon and history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, _, _, cleanup, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := app.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
