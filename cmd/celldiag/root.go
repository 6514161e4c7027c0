package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/celldiag/internal/logger"
	"github.com/cognicore/celldiag/pkg/celldiag"
	"github.com/cognicore/celldiag/pkg/celldiag/config"
	"github.com/cognicore/celldiag/pkg/celldiag/sensors/influx"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "celldiag",
	Short: "Diagnostic reasoning for a robot cell",
	Long: `celldiag answers classified questions about a robot cell from its knowledge
graph, its rule set and the history of detected sensor patterns. Answers that
lack evidence abstain with a reason code instead of guessing.

Settings come from celldiag.yaml (or --config) with CELLDIAG_* environment
overrides, e.g. CELLDIAG_NEO4J_PASSWORD.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Settings file (default: ./celldiag.yaml, ./config/celldiag.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level")
}

// loadSettings reads the settings and builds the logger they describe.
func loadSettings() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openApp loads settings and opens the application. The returned cleanup
// closes the app and flushes the logger.
func openApp(ctx context.Context, reg prometheus.Registerer) (*celldiag.App, *config.Config, *zap.Logger, func(), error) {
	cfg, log, err := loadSettings()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	app, err := celldiag.Open(ctx, cfg, log, reg)
	if err != nil {
		log.Sync()
		return nil, nil, nil, nil, err
	}
	cleanup := func() {
		if err := app.Close(ctx); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
		log.Sync()
	}
	return app, cfg, log, cleanup, nil
}

func newInfluxSource(cfg *config.Config, log *zap.Logger) (*influx.Source, error) {
	return influx.NewSource(influx.Options{
		URL:         cfg.Influx.URL,
		Token:       cfg.Influx.Token,
		Org:         cfg.Influx.Org,
		Bucket:      cfg.Influx.Bucket,
		Measurement: cfg.Influx.Measurement,
		Logger:      log.Named("influx"),
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
