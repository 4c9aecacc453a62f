// Package ch writes like events to ClickHouse in buffered batches.
package ch

import (
	"context"
)

type TableName string

// Table is one row to insert. Columns and Values must line up, and every
// row of a table must report the same Columns.
type Table interface {
	TableName() TableName
	Columns() []string
	Values() []any
}

type Writer interface {
	Start() error
	Close() error
	Write(ctx context.Context, rows []Table) error
}

// Client owns one ClickHouse connection pool: DDL goes through Exec, rows
// through the lazily created Writer
type Client interface {
	// Writer returns the batch writer; ErrWriterDisabled without a writer section
	Writer() (Writer, error)
	// Exec runs a statement without result rows
	Exec(ctx context.Context, query string, args ...any) error
	Ping(ctx context.Context) error
	// Close flushes the writer and closes the pool
	Close() error
}
