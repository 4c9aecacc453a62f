package cron

import "fmt"

var (
	ErrNoTasks    = fmt.Errorf("cron: no tasks provided")
	ErrCronClosed = fmt.Errorf("cron: manager is closed")
	// ErrPanic is wrapped by the error a recovered task run returns
	ErrPanic = fmt.Errorf("cron: task panicked")
)

func ErrInvalidSpec(chain, spec string, err error) error {
	return fmt.Errorf("cron: chain %s: invalid spec %q: %w", chain, spec, err)
}

func ErrRecovered(r any) error {
	return fmt.Errorf("%w: %v", ErrPanic, r)
}
