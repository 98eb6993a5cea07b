package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"stepwise/internal/auth"
	"stepwise/internal/catalog"
	"stepwise/internal/event"
	"stepwise/internal/logging"
	"stepwise/internal/metrics"
	"stepwise/internal/orchestrator"
	"stepwise/internal/session"
	"stepwise/internal/snapshot"
	"stepwise/internal/timer"
)

type runOptions struct {
	role        string
	operator    string
	station     string
	stock       string
	serial      string
	sipCode     string
	snapshotDir string
	noSnapshot  bool
	metricsAddr string
}

func newRunCommand(app *App) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <catalog>",
		Short: "Run a procedure session",
		Long: `Run a session of the procedure described by a catalog file.

Steps are entered in order, each with its own countdown. Type help at the
prompt for the console commands. The session report is written continuously
to the snapshot directory.

Exit codes:
  0  every step passed
  2  at least one step failed
  3  the session was finished before every step had a result`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runSession(cmd.Context(), app, args[0], opts)
			if _, ok := IsExitError(err); ok {
				// the summary already reported the verdict
				cmd.SilenceErrors = true
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.role, "role", string(auth.RoleOperator), "role of the operator (capabilities come from config)")
	cmd.Flags().StringVar(&opts.operator, "operator", os.Getenv("USER"), "operator name recorded with each result")
	cmd.Flags().StringVar(&opts.station, "station", "", "test station (default from config)")
	cmd.Flags().StringVar(&opts.stock, "stock", "", "stock number of the unit under test")
	cmd.Flags().StringVar(&opts.serial, "serial", "", "serial number of the unit under test")
	cmd.Flags().StringVar(&opts.sipCode, "sip", "", "SIP code of the unit under test")
	cmd.Flags().StringVar(&opts.snapshotDir, "snapshot-dir", "", "directory for session reports (default from config)")
	cmd.Flags().BoolVar(&opts.noSnapshot, "no-snapshot", false, "do not write session reports")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

// runSession drives one session from the console until it completes, the
// input ends, or ctx is cancelled. A session that has not completed when the
// console stops is finished manually so its report is final.
func runSession(ctx context.Context, app *App, path string, opts *runOptions) error {
	cfg := app.Config

	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}

	who, err := cfg.RoleTable().Resolve(opts.operator, auth.Role(opts.role))
	if err != nil {
		return err
	}

	logger, closeLog, err := app.logger()
	if err != nil {
		return err
	}
	defer closeLog()

	info := session.Info{
		StockNumber:  opts.stock,
		SerialNumber: opts.serial,
		Station:      firstNonEmpty(opts.station, cfg.Station),
		SIPCode:      opts.sipCode,
		Operator:     who.Name,
	}

	bus := event.NewBus(logger)
	engine := timer.New(
		timer.WithClock(app.now),
		timer.WithInterval(cfg.Timer.Interval),
		timer.WithThresholds(cfg.Thresholds()),
		timer.WithLogger(logger),
	)
	orch, err := orchestrator.New(cat, who,
		orchestrator.WithClock(app.now),
		orchestrator.WithLogger(logger),
		orchestrator.WithBus(bus),
		orchestrator.WithTimer(engine),
		orchestrator.WithTokens(cfg.Tokens),
		orchestrator.WithInfo(info),
	)
	if err != nil {
		return err
	}

	defer newSessionView(app.Printer, orch).attach(bus)()

	var writer *snapshot.Writer
	if cfg.Snapshot.Enabled && !opts.noSnapshot {
		writer = snapshot.NewWriter(firstNonEmpty(opts.snapshotDir, cfg.Snapshot.Dir),
			snapshot.WithClock(app.now), snapshot.WithLogger(logger))
		defer writer.Attach(bus, orch, cfg.Snapshot.IntervalTicks)()
	}

	var collector *metrics.Collector
	metricsAddr := firstNonEmpty(opts.metricsAddr, cfg.Metrics.Addr)
	if metricsAddr != "" {
		collector = metrics.New()
		defer collector.Attach(bus)()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := orch.Start(); err != nil {
		return err
	}

	con := &console{orch: orch, printer: app.Printer, who: who, tokens: cfg.Tokens}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(orch.Run(gctx))
	})
	g.Go(func() error {
		defer cancel()
		return con.loop(gctx, app.In)
	})
	if collector != nil {
		g.Go(func() error {
			return serveMetrics(gctx, metricsAddr, collector.Handler(), logger)
		})
	}
	runErr := g.Wait()

	if orch.State() == orchestrator.StateActive {
		if err := orch.Finish(); err != nil {
			logger.Error("finish failed", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	snap := orch.Snapshot()
	if writer != nil {
		if writer.Path() == "" {
			if _, err := writer.Write(snap); err != nil {
				return err
			}
		}
		app.Printer.Info("report written to %s", writer.Path())
	}

	return verdict(snap)
}

// verdict maps a completed session to its exit error.
func verdict(snap session.Snapshot) error {
	if snap.FailedCount > 0 {
		return NewExitError(ExitFailed)
	}
	if snap.PassedCount < len(snap.Steps) {
		return NewExitError(ExitIncomplete)
	}
	return nil
}

// logger returns the app logger, or one writing to the configured log file.
// Without a log file the logger writes to stderr.
func (a *App) logger() (*slog.Logger, func(), error) {
	if a.Logger != nil {
		return a.Logger, func() {}, nil
	}

	cfg := a.Config.Log
	if cfg.File == "" {
		return logging.New(os.Stderr, cfg.Level, cfg.Format), func() {}, nil
	}

	f, err := logging.OpenFile(cfg.File)
	if err != nil {
		return nil, nil, err
	}
	return logging.New(f, cfg.Level, cfg.Format), func() { _ = f.Close() }, nil
}

// serveMetrics serves /metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
