package cache

import (
	"fmt"
)

var (
	// ErrTxConflict is returned when an optimistic transaction kept losing to concurrent writers
	ErrTxConflict = fmt.Errorf("cache: transaction aborted by concurrent writes")
	// ErrInvalidGroup is returned when a batch is requested for a zero affinity group
	ErrInvalidGroup = fmt.Errorf("cache: invalid affinity group")
)

// ErrInvalidConfig returns an error for an invalid cache configuration
func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("cache: invalid config: %s", msg)
}

// ErrConnection wraps a connection error
func ErrConnection(err error) error {
	return fmt.Errorf("cache: connection failed: %w", err)
}

// ErrBatch wraps a failed atomic batch
func ErrBatch(group string, err error) error {
	return fmt.Errorf("cache: batch on %s failed: %w", group, err)
}
