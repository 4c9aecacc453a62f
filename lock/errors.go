package lock

import "fmt"

var (
	// ErrNotAcquired is returned by WithLock when another holder owns the lock
	ErrNotAcquired = fmt.Errorf("lock: not acquired, held by another owner")
	// ErrConflict is returned by Update when every attempt lost to a concurrent writer
	ErrConflict = fmt.Errorf("lock: version conflict, attempts exhausted")
)

// ErrEncode wraps a failure to encode an optimistic value
func ErrEncode(key string, err error) error {
	return fmt.Errorf("lock: encode value for %s: %w", key, err)
}
