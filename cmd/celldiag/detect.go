package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cognicore/celldiag/pkg/celldiag/internalerr"
	"github.com/cognicore/celldiag/pkg/celldiag/signals"
)

var (
	detectSeries string
	detectRobot  string
	detectAxes   []string
	detectWindow time.Duration
	detectFacts  map[string]string
	detectRecord bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run pattern detection over sensor series",
	Long: `Run state inference, the pattern detectors, cause inference and resolution
lookup over sensor series read from a JSON file or from InfluxDB.

With --record, detected patterns are appended to the pattern history.

Example:
  celldiag detect --series samples.json --fact payload_kg=12
  celldiag detect --robot R1 --axes Fz,Tz --window 10m --record`,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().StringVar(&detectSeries, "series", "", "JSON file holding [{axis, values, timestamps_ms}]")
	detectCmd.Flags().StringVar(&detectRobot, "robot", "", "Robot tag to read from InfluxDB")
	detectCmd.Flags().StringSliceVar(&detectAxes, "axes", []string{"Fx", "Fy", "Fz", "Tx", "Ty", "Tz"}, "Axes to read from InfluxDB")
	detectCmd.Flags().DurationVar(&detectWindow, "window", 10*time.Minute, "How far back to read from InfluxDB")
	detectCmd.Flags().StringToStringVar(&detectFacts, "fact", nil, "Context fact key=value")
	detectCmd.Flags().BoolVar(&detectRecord, "record", false, "Append detected patterns to the history")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	if (detectSeries == "") == (detectRobot == "") {
		return fmt.Errorf("exactly one of --series or --robot is required")
	}
	ctx := cmd.Context()
	app, cfg, log, cleanup, err := openApp(ctx, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	var series []signals.Series
	if detectSeries != "" {
		if series, err = readSeries(detectSeries); err != nil {
			return err
		}
	} else {
		src, err := newInfluxSource(cfg, log)
		if err != nil {
			return err
		}
		defer src.Close()
		if series, err = src.SeriesAll(ctx, detectRobot, detectAxes, detectWindow); err != nil {
			return err
		}
		if len(series) == 0 {
			return fmt.Errorf("%w: no samples for robot %s on %s in the last %s", internalerr.ErrNotFound, detectRobot, strings.Join(detectAxes, ","), detectWindow)
		}
	}

	facts := parseFacts(detectFacts)
	if detectRobot != "" {
		if facts == nil {
			facts = map[string]any{}
		}
		facts["robot"] = detectRobot
	}

	if !detectRecord {
		return printJSON(cmd.OutOrStdout(), app.Detect(series, facts))
	}
	res, err := app.RecordDetections(ctx, series, facts)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}
