package ch

import (
	"fmt"
)

var (
	// ErrBufferFull is returned by Write when the buffer cannot take the rows
	ErrBufferFull     = fmt.Errorf("ch: buffer is full")
	ErrWriterClosed   = fmt.Errorf("ch: writer is closed")
	ErrClientClosed   = fmt.Errorf("ch: client is closed")
	ErrWriterDisabled = fmt.Errorf("ch: writer is disabled, add a writer section to enable it")
	ErrInvalid        = fmt.Errorf("ch: invalid config")
)

func ErrInvalidConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

func ErrConnection(err error) error {
	return fmt.Errorf("ch: connection: %w", err)
}

func ErrExec(err error) error {
	return fmt.Errorf("ch: exec: %w", err)
}

func ErrInsert(table TableName, err error) error {
	return fmt.Errorf("ch: insert into %s: %w", table, err)
}

func ErrColumnMismatch(table TableName, columns, values int) error {
	return fmt.Errorf("ch: %s row has %d values for %d columns", table, values, columns)
}
