package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyyoga/likesync/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestApplyMiddlewares_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Task) Task {
			return wrap(next.Name(), func(ctx context.Context) error {
				order = append(order, name)
				return next.Run(ctx)
			})
		}
	}
	task := TaskFunc{TaskName: "t", Fn: func(ctx context.Context) error {
		order = append(order, "task")
		return nil
	}}

	require.NoError(t, applyMiddlewares(task, mw("a"), mw("b")).Run(context.Background()))
	assert.Equal(t, []string{"a", "b", "task"}, order)
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	task := TaskFunc{TaskName: "boom", Fn: func(ctx context.Context) error { panic("kaput") }}

	err := recoveryMiddleware(zap.New(core))(task).Run(context.Background())
	require.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "kaput")
	assert.Equal(t, 1, logs.FilterMessage("task panicked").Len())
}

func TestLoggingMiddleware_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	fail := errors.New("db down")

	err := loggingMiddleware(log)(TaskFunc{TaskName: "x", Fn: func(ctx context.Context) error { return fail }}).Run(context.Background())
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 1, logs.FilterMessage("task failed").Len())

	require.NoError(t, loggingMiddleware(log)(TaskFunc{TaskName: "y", Fn: func(ctx context.Context) error { return nil }}).Run(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("task completed").Len())

	timeout := func(ctx context.Context) error { return context.DeadlineExceeded }
	err = loggingMiddleware(log)(TaskFunc{TaskName: "z", Fn: timeout}).Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, logs.FilterMessage("task timed out").Len())
	assert.Equal(t, 1, logs.FilterMessage("task failed").Len())
}

func TestTimeoutMiddleware(t *testing.T) {
	task := TaskFunc{TaskName: "slow", Fn: func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		<-ctx.Done()
		return ctx.Err()
	}}
	err := TimeoutMiddleware(10 * time.Millisecond)(task).Run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChainJob_AbortsOnFailure(t *testing.T) {
	var ran []string
	job := &chainJob{
		ctx:    context.Background(),
		name:   "c",
		logger: logger.Nop(),
		tasks: []Task{
			TaskFunc{TaskName: "first", Fn: func(ctx context.Context) error { ran = append(ran, "first"); return errors.New("x") }},
			TaskFunc{TaskName: "second", Fn: func(ctx context.Context) error { ran = append(ran, "second"); return nil }},
		},
	}
	job.Run()
	assert.Equal(t, []string{"first"}, ran)
}

func TestCron_AddTasksErrors(t *testing.T) {
	c := NewCron(logger.Nop())

	assert.ErrorIs(t, c.AddTasks("empty", "@every 1s"), ErrNoTasks)

	noop := TaskFunc{TaskName: "noop", Fn: func(ctx context.Context) error { return nil }}
	assert.Error(t, c.AddTasks("bad", "not a spec", noop))

	c.Close()
	assert.ErrorIs(t, c.AddChain(Chain{Name: "late", Spec: "@every 1s", Tasks: []Task{noop}}), ErrCronClosed)
}

func TestCron_RunsChainAndCancelsOnClose(t *testing.T) {
	c := NewCron(logger.Nop())

	var runs atomic.Int32
	var cancelled atomic.Bool
	task := TaskFunc{TaskName: "tick", Fn: func(ctx context.Context) error {
		if runs.Add(1) > 1 {
			return nil
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}}
	require.NoError(t, c.AddTasks("reconcile", "@every 1s", task))

	c.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	c.Close()

	assert.True(t, cancelled.Load())
	// the first run blocked until Close, so later ticks were skipped
	assert.Equal(t, int32(1), runs.Load())
}
