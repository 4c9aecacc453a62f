package db

import "fmt"

var (
	ErrConnectionNotEstablished = fmt.Errorf("db: connection not established")
	ErrInvalid                  = fmt.Errorf("db: invalid config")
)

func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

func ErrConnection(err error) error {
	return fmt.Errorf("db: connect: %w", err)
}
