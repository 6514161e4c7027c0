package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	importRobot  string
	importSeries string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Write sensor series from a JSON file into InfluxDB",
	Long: `Write recorded sensor series into InfluxDB so detect and watch can read them.

Example:
  celldiag import --robot R1 --series samples.json`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importRobot, "robot", "", "Robot tag for the samples (required)")
	importCmd.Flags().StringVar(&importSeries, "series", "", "JSON file holding [{axis, values, timestamps_ms}] (required)")
	importCmd.MarkFlagRequired("robot")
	importCmd.MarkFlagRequired("series")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	series, err := readSeries(importSeries)
	if err != nil {
		return err
	}
	cfg, log, err := loadSettings()
	if err != nil {
		return err
	}
	defer log.Sync()

	src, err := newInfluxSource(cfg, log)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx := cmd.Context()
	if err := src.Ping(ctx); err != nil {
		return err
	}
	if err := src.Write(ctx, importRobot, series...); err != nil {
		return err
	}
	samples := 0
	for _, s := range series {
		samples += s.Len()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d samples on %d axes for %s\n", samples, len(series), importRobot)
	return nil
}
