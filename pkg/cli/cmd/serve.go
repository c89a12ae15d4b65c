package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/version"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var metricsAddr, schedule string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the token sweeper and metrics endpoint",
		Long: `Run tokenctl as a daemon. Expired tokens are swept on the
token.sweep_schedule cron schedule and metrics are served on
metrics.address under /metrics, with a liveness probe on /health.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Create context with cancellation
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			s, err := newSession(ctx, reg)
			if err != nil {
				return err
			}
			defer s.Close()

			if cmd.Flags().Changed("metrics-addr") {
				s.config.Metrics.Address = metricsAddr
			}
			if cmd.Flags().Changed("sweep-schedule") {
				s.config.Token.SweepSchedule = schedule
			}

			// Set up signal handler for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					s.logger.Info("Received signal", log.Str("signal", sig.String()))
					cancel()
				case <-ctx.Done():
				}
			}()

			d, err := newDaemon(s, reg)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", s.config.Metrics.Address)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", s.config.Metrics.Address, err)
			}
			return d.Run(ctx, ln)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Metrics listen address (overrides metrics.address)")
	cmd.Flags().StringVar(&schedule, "sweep-schedule", "", "Cron schedule for sweeps, e.g. \"@every 1h\" (overrides token.sweep_schedule)")
	return cmd
}

// daemon runs scheduled sweeps and serves metrics for one session.
type daemon struct {
	// ctx is the context scheduled sweeps run under; Run replaces it with
	// its own so shutdown cancels a sweep in flight.
	ctx       context.Context
	session   *session
	registry  *prometheus.Registry
	cron      *cron.Cron
	lastSweep prometheus.Gauge
	failures  prometheus.Counter
}

func newDaemon(s *session, reg *prometheus.Registry) (*daemon, error) {
	factory := promauto.With(reg)
	d := &daemon{
		ctx:      context.Background(),
		session:  s,
		registry: reg,
		lastSweep: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tokenvault_sweep_last_success_timestamp_seconds",
			Help: "Unix time of the last sweep that completed",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tokenvault_sweep_failures_total",
			Help: "Total number of sweeps that returned an error",
		}),
	}

	// Standard 5-field parser plus descriptors such as @every and @hourly
	cronLogger := &cronLogAdapter{logger: s.logger.WithComponent("sweeper")}
	d.cron = cron.New(
		cron.WithParser(cron.NewParser(
			cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
		)),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if schedule := s.config.Token.SweepSchedule; schedule != "" {
		if _, err := d.cron.AddFunc(schedule, func() { d.sweep(d.ctx) }); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
		}
	}
	return d, nil
}

// sweep runs a single sweep and records its outcome.
func (d *daemon) sweep(ctx context.Context) {
	if _, err := d.session.manager.Sweep(ctx); err != nil {
		d.failures.Inc()
		d.session.logger.Error("Sweep failed", log.Err(err))
		return
	}
	d.lastSweep.SetToCurrentTime()
}

func (d *daemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{Registry: d.registry}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Run serves on ln and runs the sweep schedule until ctx is cancelled.
func (d *daemon) Run(ctx context.Context, ln net.Listener) error {
	logger := d.session.logger
	logger.Info("Starting token sweeper",
		log.Str("version", version.Version),
		log.Str("namespace", d.session.config.Token.Namespace),
		log.Str("backend", d.session.config.Store.Backend),
		log.Str("schedule", d.session.config.Token.SweepSchedule),
		log.Str("address", ln.Addr().String()))

	if d.session.config.Token.SweepSchedule == "" {
		logger.Warn("No sweep schedule configured, expired tokens are only purged lazily")
	}

	d.ctx = ctx
	server := &http.Server{Handler: d.handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	d.cron.Start()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	// Wait for a running sweep before closing the store
	<-d.cron.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop metrics server", log.Err(err))
	}

	logger.Info("Token sweeper stopped")
	return serveErr
}

// cronLogAdapter adapts our logger to cron's logger interface.
type cronLogAdapter struct {
	logger log.Logger
}

// Info implements cron.Logger.
func (l *cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

// Error implements cron.Logger.
func (l *cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(kvFields(keysAndValues), log.Err(err))...)
}

func kvFields(keysAndValues []interface{}) []log.Field {
	fields := make([]log.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields = append(fields, log.Any(key, keysAndValues[i+1]))
	}
	return fields
}
