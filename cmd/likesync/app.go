package main

import (
	"context"
	"errors"

	"github.com/dailyyoga/likesync/cache"
	"github.com/dailyyoga/likesync/config"
	"github.com/dailyyoga/likesync/db"
	"github.com/dailyyoga/likesync/kafka"
	"github.com/dailyyoga/likesync/like"
	"github.com/dailyyoga/likesync/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the connections one command needs. Everything opened through it
// is released by close in reverse order.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	registry *prometheus.Registry
	metrics  *like.Metrics

	store    *cache.Store
	repo     *like.Repository
	producer kafka.Producer

	closers []func() error
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Logger.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		metrics:  like.NewMetrics(registry),
	}, nil
}

// openStore connects to Redis once
func (a *app) openStore() (*cache.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	rdb, err := cache.NewRedis(a.log, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	a.store = cache.NewStore(a.log, rdb)
	return a.store, nil
}

// openRepository connects to the system of record once
func (a *app) openRepository() (*like.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	database, err := db.NewMySQL(a.log, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, database.Close)

	gdb, err := database.DB()
	if err != nil {
		return nil, err
	}
	a.repo = like.NewRepository(gdb)
	return a.repo, nil
}

// notifier publishes to kafka when a producer is configured and logs otherwise
func (a *app) notifier() (like.Notifier, error) {
	if a.cfg.Kafka.Producer == nil {
		a.log.Warn("kafka producer not configured, notifications are only logged")
		return like.NewLogNotifier(a.log), nil
	}
	if a.producer == nil {
		producer, err := kafka.NewProducer(a.log, a.cfg.Kafka.Producer)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, producer.Close)
		a.producer = producer
	}
	return like.NewKafkaNotifier(a.log, a.producer, a.cfg.NotificationTopic), nil
}

// reconciler wires the store, the repository and the notifier
func (a *app) reconciler() (*like.Reconciler, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	repo, err := a.openRepository()
	if err != nil {
		return nil, err
	}
	notifier, err := a.notifier()
	if err != nil {
		return nil, err
	}
	return like.NewReconciler(a.log, a.cfg.Reconciler, store, repo, repo, notifier, like.WithMetrics(a.metrics))
}

// storeOnlyReconciler serves the parked and stats commands, which never
// touch the system of record
func (a *app) storeOnlyReconciler() (*like.Reconciler, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return like.NewReconciler(a.log, a.cfg.Reconciler, store, nil, nil, like.NewLogNotifier(a.log))
}

func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("failed to release resources", zap.Error(err))
	}
	_ = a.log.Sync()
}

// runWithApp builds the app, runs fn and releases everything afterwards
func runWithApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cmd.Context(), a)
}
