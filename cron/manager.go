package cron

import (
	"context"
	"sync/atomic"

	"github.com/dailyyoga/likesync/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// chainJob runs tasks sequentially and stops at the first failure
type chainJob struct {
	ctx    context.Context
	name   string
	tasks  []Task
	logger logger.Logger
}

func (j *chainJob) Run() {
	for _, task := range j.tasks {
		if j.ctx.Err() != nil {
			return
		}
		if err := task.Run(j.ctx); err != nil {
			j.logger.Error("chain job aborted due to task failure",
				zap.String("chain_name", j.name),
				zap.String("task_name", task.Name()),
				zap.Error(err),
			)
			return
		}
	}
}

// cronLogger routes robfig/cron's own messages to our logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

type cronManager struct {
	cron        *cron.Cron
	middlewares []Middleware
	logger      logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

func newCronManager(log logger.Logger, mws ...Middleware) *cronManager {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: log}
	return &cronManager{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		middlewares: mws,
		logger:      log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (m *cronManager) Start() {
	m.cron.Start()
}

func (m *cronManager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	stopped := m.cron.Stop()
	m.cancel()
	<-stopped.Done()
}

// AddTasks adds a chain of tasks to be executed according to the cron spec.
// Specs have six fields (seconds first) or use descriptors like "@every 1s".
func (m *cronManager) AddTasks(name, spec string, tasks ...Task) error {
	if m.closed.Load() {
		return ErrCronClosed
	}
	if len(tasks) == 0 {
		return ErrNoTasks
	}

	wrappedTasks := make([]Task, len(tasks))
	for i, task := range tasks {
		named := wrap(name+":"+task.Name(), task.Run)
		wrappedTasks[i] = applyMiddlewares(named, m.middlewares...)
	}

	job := &chainJob{
		ctx:    m.ctx,
		name:   name,
		tasks:  wrappedTasks,
		logger: m.logger,
	}

	if _, err := m.cron.AddJob(spec, job); err != nil {
		return ErrInvalidSpec(name, spec, err)
	}

	m.logger.Info("chain added",
		zap.String("chain_name", name),
		zap.String("spec", spec),
		zap.Int("task_count", len(tasks)),
	)
	return nil
}

func (m *cronManager) AddChain(chain Chain) error {
	return m.AddTasks(chain.Name, chain.Spec, chain.Tasks...)
}
