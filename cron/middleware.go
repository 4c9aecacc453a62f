package cron

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/dailyyoga/likesync/logger"
	"go.uber.org/zap"
)

// Middleware wraps a Task with additional behavior
type Middleware func(Task) Task

// applyMiddlewares wraps t so that mws[0] runs outermost
func applyMiddlewares(t Task, mws ...Middleware) Task {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// recoveryMiddleware turns a panic into ErrPanic so one bad run cannot stop
// the scheduler
func recoveryMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return wrap(next.Name(), func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("task panicked",
						zap.String("task", next.Name()),
						zap.Any("panic", r),
						zap.String("stack", string(debug.Stack())),
					)
					err = ErrRecovered(r)
				}
			}()
			return next.Run(ctx)
		})
	}
}

// loggingMiddleware reports every run; success is debug since the reconcile
// chain fires every second
func loggingMiddleware(log logger.Logger) Middleware {
	return func(next Task) Task {
		return wrap(next.Name(), func(ctx context.Context) error {
			start := time.Now()
			err := next.Run(ctx)
			fields := []zap.Field{
				zap.String("task", next.Name()),
				zap.Duration("duration", time.Since(start)),
			}

			switch {
			case err == nil:
				log.Debug("task completed", fields...)
			case errors.Is(err, context.DeadlineExceeded):
				log.Warn("task timed out", append(fields, zap.Error(err))...)
			default:
				log.Error("task failed", append(fields, zap.Error(err))...)
			}
			return err
		})
	}
}

// TimeoutMiddleware bounds each task run to d
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next Task) Task {
		return wrap(next.Name(), func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Run(ctx)
		})
	}
}

type wrappedTask struct {
	name string
	exec func(ctx context.Context) error
}

func wrap(name string, exec func(ctx context.Context) error) Task {
	return &wrappedTask{name: name, exec: exec}
}

func (w *wrappedTask) Name() string { return w.name }

func (w *wrappedTask) Run(ctx context.Context) error { return w.exec(ctx) }
