package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/celldiag/pkg/celldiag"
	"github.com/cognicore/celldiag/pkg/celldiag/metrics"
	"github.com/cognicore/celldiag/pkg/celldiag/sensors/influx"
)

var (
	watchRobot    string
	watchAxes     []string
	watchInterval time.Duration
	watchAddr     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll InfluxDB, record detected patterns and serve metrics",
	Long: `Every interval, read the last interval of samples for a robot from InfluxDB,
run the detectors and append what they find to the pattern history. Metrics
are served on /metrics. SIGHUP reloads the schema, rules and lexicon.

Example:
  celldiag watch --robot R1 --interval 30s`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRobot, "robot", "", "Robot tag to watch (required)")
	watchCmd.Flags().StringSliceVar(&watchAxes, "axes", []string{"Fx", "Fy", "Fz", "Tx", "Ty", "Tz"}, "Axes to read")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "Poll interval and read window")
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "Metrics listen address (default: metrics.addr)")
	watchCmd.MarkFlagRequired("robot")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app, cfg, log, cleanup, err := openApp(ctx, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	src, err := newInfluxSource(cfg, log)
	if err != nil {
		return err
	}
	defer src.Close()

	addr := watchAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := app.Reload(gctx); err != nil {
					log.Warn("reload rejected, keeping current snapshot", zap.Error(err))
				}
			case <-ticker.C:
				poll(gctx, app, src, log)
			}
		}
	})
	return g.Wait()
}

// poll records one interval of detections. Failures are logged and the
// next tick tries again.
func poll(ctx context.Context, app *celldiag.App, src *influx.Source, log *zap.Logger) {
	series, err := src.SeriesAll(ctx, watchRobot, watchAxes, watchInterval)
	if err != nil {
		log.Warn("sensor read failed", zap.String("robot", watchRobot), zap.Error(err))
		return
	}
	if len(series) == 0 {
		return
	}
	res, err := app.RecordDetections(ctx, series, map[string]any{"robot": watchRobot})
	if err != nil {
		log.Error("record detections failed", zap.Error(err))
		return
	}
	for _, p := range res.Patterns {
		log.Info("pattern detected",
			zap.String("robot", watchRobot),
			zap.String("pattern", p.ResultID),
			zap.Float64("confidence", p.Confidence))
	}
}
