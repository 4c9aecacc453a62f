// Package cron schedules the reconciliation tasks of a worker process.
//
// Tasks are grouped into chains that run sequentially on a cron spec with a
// seconds field; a chain whose previous run is still going is skipped.
package cron

import (
	"context"

	"github.com/dailyyoga/likesync/logger"
)

// Task is one unit of scheduled work
type Task interface {
	// Name returns the unique identifier for this task
	Name() string
	// Run executes the task; ctx is cancelled when the scheduler closes
	Run(ctx context.Context) error
}

// Chain represents a chain of tasks that execute sequentially
type Chain struct {
	Name  string
	Spec  string
	Tasks []Task
}

// Cron is the interface for managing cron jobs
type Cron interface {
	// Start begins the cron scheduler
	Start()
	// Close cancels running tasks and waits for them to return
	Close()
	// AddTasks adds a chain of tasks run on spec; a failing task aborts the
	// rest of that run
	AddTasks(name string, spec string, tasks ...Task) error
	// AddChain is alias for AddTasks
	AddChain(chain Chain) error
}

// NewCron creates a new cron manager with the given logger and middlewares.
// Recovery and logging run outermost, before the given middlewares.
func NewCron(log logger.Logger, mws ...Middleware) Cron {
	defaultMws := []Middleware{
		recoveryMiddleware(log),
		loggingMiddleware(log),
	}
	return newCronManager(log, append(defaultMws, mws...)...)
}

// TaskFunc adapts a function to Task
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (f TaskFunc) Name() string { return f.TaskName }

func (f TaskFunc) Run(ctx context.Context) error { return f.Fn(ctx) }
