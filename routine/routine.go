// Package routine runs goroutines with panic recovery.
//
// A panic inside a background loop (reconciliation, relay, metrics server) is
// logged with its stack instead of taking the whole worker process down.
package routine

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dailyyoga/likesync/logger"
	"go.uber.org/zap"
)

// Runner provides safe goroutine execution with panic recovery
type Runner interface {
	// Go executes a function in a new goroutine with panic recovery
	Go(fn func())

	// GoNamedWithContext executes a named function with context in a new goroutine
	GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context))

	// Every runs fn every interval until ctx is cancelled
	Every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context))

	// Wait waits for all goroutines started by this runner to complete
	Wait()
}

type defaultRunner struct {
	log logger.Logger
	wg  sync.WaitGroup
}

// New creates a new Runner with the given logger
func New(log logger.Logger) Runner {
	return &defaultRunner{log: log}
}

func (r *defaultRunner) Go(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer recoverWithLog(r.log, "")
		fn()
	}()
}

func (r *defaultRunner) GoNamedWithContext(ctx context.Context, name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer recoverWithLog(r.log, name)
		fn(ctx)
	}()
}

func (r *defaultRunner) Every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context)) {
	r.GoNamedWithContext(ctx, name, func(ctx context.Context) {
		tick(ctx, r.log, name, interval, fn)
	})
}

func (r *defaultRunner) Wait() {
	r.wg.Wait()
}

// GoNamedWithContext executes a named function with context in a new goroutine
// without tracking it in a Runner
func GoNamedWithContext(ctx context.Context, log logger.Logger, name string, fn func(ctx context.Context)) {
	go func() {
		defer recoverWithLog(log, name)
		fn(ctx)
	}()
}

// tick invokes fn on every tick; a panicking invocation does not stop the loop
func tick(ctx context.Context, log logger.Logger, name string, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			func() {
				defer recoverWithLog(log, name)
				fn(ctx)
			}()
		case <-ctx.Done():
			log.Debug("routine loop stopped", zap.String("routine", name))
			return
		}
	}
}

func recoverWithLog(log logger.Logger, name string) {
	if rec := recover(); rec != nil {
		fields := []zap.Field{
			zap.Any("panic", rec),
			zap.String("stack", string(debug.Stack())),
		}
		if name != "" {
			fields = append([]zap.Field{zap.String("routine", name)}, fields...)
		}
		log.Error("goroutine panicked", fields...)
	}
}
