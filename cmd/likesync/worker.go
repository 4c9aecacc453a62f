package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dailyyoga/likesync/cron"
	"github.com/dailyyoga/likesync/like"
	"github.com/dailyyoga/likesync/routine"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type workerOptions struct {
	*rootOptions
	TaskTimeout   time.Duration
	StatsInterval time.Duration
}

func newWorkerCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &workerOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the reconciliation worker until interrupted",
		Long: `Run the reconcile chain and the backlog monitor on their schedules and
serve Prometheus metrics. Several workers may run against the same Redis.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, opts.rootOptions, func(ctx context.Context, a *app) error {
				return runWorker(ctx, a, opts)
			})
		},
	}

	cmd.Flags().DurationVar(&opts.TaskTimeout, "task-timeout", time.Minute, "upper bound on one scheduled run")
	cmd.Flags().DurationVar(&opts.StatsInterval, "stats-interval", time.Minute, "how often shared reconcile totals are logged, 0 disables")

	return cmd
}

func runWorker(ctx context.Context, a *app, opts *workerOptions) error {
	reconciler, err := a.reconciler()
	if err != nil {
		return err
	}
	monitor, err := like.NewBacklogMonitor(a.log, a.cfg.Backlog, a.store, a.metrics)
	if err != nil {
		return err
	}

	scheduler := cron.NewCron(a.log, cron.TimeoutMiddleware(opts.TaskTimeout))
	if err := scheduler.AddTasks("reconcile", reconciler.Schedule(), reconciler.Task()); err != nil {
		return err
	}
	if err := scheduler.AddTasks("backlog", a.cfg.Backlog.Schedule, monitor); err != nil {
		return err
	}

	runner := routine.New(a.log)
	if opts.StatsInterval > 0 {
		runner.Every(ctx, "stats-log", opts.StatsInterval, func(ctx context.Context) {
			logStats(ctx, a, reconciler)
		})
	}

	var server *http.Server
	if a.cfg.MetricsAddr != "-" {
		server = &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           metricsHandler(a),
			ReadHeaderTimeout: 5 * time.Second,
		}
		routine.GoNamedWithContext(ctx, a.log, "metrics-server", func(ctx context.Context) {
			a.log.Info("serving metrics", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server stopped", zap.Error(err))
			}
		})
	}

	scheduler.Start()
	a.log.Info("worker started",
		zap.String("reconcile_schedule", reconciler.Schedule()),
		zap.String("backlog_schedule", a.cfg.Backlog.Schedule),
	)

	<-ctx.Done()
	a.log.Info("worker stopping")

	scheduler.Close()
	runner.Wait()
	// in-flight notifications finish before the producer is closed by app.close
	reconciler.Wait()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
	return nil
}

func metricsHandler(a *app) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func logStats(ctx context.Context, a *app, reconciler *like.Reconciler) {
	stats, ok := reconciler.Stats(ctx)
	if !ok {
		return
	}
	a.log.Info("reconcile totals",
		zap.Int64("committed", stats.Committed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("parked", stats.Parked),
		zap.Int64("dropped", stats.Dropped),
		zap.Time("updated_at", stats.UpdatedAt),
	)
}
