package ch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dailyyoga/likesync/logger"
	"github.com/smallnest/chanx"
	"go.uber.org/zap"
)

type defaultWriter struct {
	config *WriterConfig
	logger logger.Logger

	conn driver.Conn
	// insert sends one table's rows; batchInsert unless replaced in tests
	insert func(ctx context.Context, table TableName, rows []Table) error

	dataChan    *chanx.UnboundedChan[Table]
	flushTicker *time.Ticker

	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// newWriterWithConn creates a writer with an existing connection (used by Client)
func newWriterWithConn(conn driver.Conn, config *Config, log logger.Logger) Writer {
	wc := config.WriterConfig
	if wc == nil {
		wc = DefaultWriterConfig()
	}

	writer := &defaultWriter{
		config:      wc,
		logger:      log,
		conn:        conn,
		dataChan:    chanx.NewUnboundedChan[Table](context.Background(), wc.FlushSize),
		flushTicker: time.NewTicker(wc.FlushInterval),
		done:        make(chan struct{}),
	}
	writer.insert = writer.batchInsert

	log.Info("clickhouse writer initialized",
		zap.Duration("flush_interval", wc.FlushInterval),
		zap.Int("flush_size", wc.FlushSize),
		zap.Int("min_flush_size", wc.MinFlushSize),
		zap.Duration("max_wait_time", wc.MaxWaitTime),
	)
	return writer
}

func (w *defaultWriter) Start() error {
	w.wg.Add(1)
	go w.processLoop()

	w.logger.Info("clickhouse writer started")
	return nil
}

func (w *defaultWriter) Write(ctx context.Context, rows []Table) error {
	if len(rows) == 0 {
		return nil
	}

	if w.closed.Load() {
		return ErrWriterClosed
	}

	for _, row := range rows {
		select {
		case w.dataChan.In <- row:
			continue
		case <-ctx.Done():
			return ctx.Err()
		default:
			w.logger.Error("channel is full, data may be lost",
				zap.Int("channel_size", w.dataChan.Len()),
				zap.Int("rows", len(rows)),
			)
			return ErrBufferFull
		}
	}
	return nil
}

// Close stops accepting rows, flushes everything buffered and waits for the
// final insert
func (w *defaultWriter) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	w.logger.Info("clickhouse writer shutting down")

	w.flushTicker.Stop()
	close(w.done)
	w.wg.Wait()
	close(w.dataChan.In)

	w.logger.Info("clickhouse writer shutdown complete")
	return nil
}

func (w *defaultWriter) processLoop() {
	defer w.wg.Done()

	buffer := make(map[TableName][]Table)
	totalRows := 0
	var firstDataTime time.Time

	reset := func() {
		buffer = make(map[TableName][]Table)
		totalRows = 0
		firstDataTime = time.Time{}
	}

	for {
		select {
		case row, ok := <-w.dataChan.Out:
			if !ok {
				w.logger.Warn("data channel closed unexpectedly")
				return
			}
			if row == nil {
				continue
			}
			if totalRows == 0 {
				firstDataTime = time.Now()
			}
			buffer[row.TableName()] = append(buffer[row.TableName()], row)
			totalRows++

			if totalRows >= w.config.FlushSize {
				w.flush(buffer)
				reset()
			}

		case <-w.flushTicker.C:
			if totalRows == 0 {
				continue
			}
			if shouldFlush(w.config, totalRows, time.Since(firstDataTime)) {
				w.flush(buffer)
				reset()
			} else {
				w.logger.Debug("skipping flush, waiting for more data",
					zap.Int("current_rows", totalRows),
					zap.Int("min_flush_size", w.config.MinFlushSize),
					zap.Duration("waited", time.Since(firstDataTime)),
				)
			}

		case <-w.done:
			w.drainChannel(buffer, &totalRows)
			if totalRows > 0 {
				w.flush(buffer)
			}
			w.logger.Info("process loop stopped")
			return
		}
	}
}

// shouldFlush decides a time-triggered flush: enough rows, or the oldest row
// waited past MaxWaitTime
func shouldFlush(cfg *WriterConfig, totalRows int, waited time.Duration) bool {
	if cfg.MinFlushSize == 0 {
		return true
	}
	if totalRows >= cfg.MinFlushSize {
		return true
	}
	return cfg.MaxWaitTime > 0 && waited >= cfg.MaxWaitTime
}

// drainChannel moves rows already queued into buffer without blocking
func (w *defaultWriter) drainChannel(buffer map[TableName][]Table, totalRows *int) {
	for {
		select {
		case row, ok := <-w.dataChan.Out:
			if !ok {
				return
			}
			if row == nil {
				continue
			}
			buffer[row.TableName()] = append(buffer[row.TableName()], row)
			*totalRows++
		default:
			if w.dataChan.Len() == 0 {
				return
			}
		}
	}
}

func (w *defaultWriter) flush(buffer map[TableName][]Table) {
	successRows := 0
	failedRows := 0

	for table, rows := range buffer {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.InsertTimeout)
		err := w.insert(ctx, table, rows)
		cancel()

		if err != nil {
			w.logger.Error("failed to batch insert", zap.String("table", string(table)), zap.Error(err))
			failedRows += len(rows)
		} else {
			successRows += len(rows)
		}
	}

	w.logger.Info("flush completed",
		zap.Int("success_rows", successRows),
		zap.Int("failed_rows", failedRows),
	)
}

func (w *defaultWriter) batchInsert(ctx context.Context, table TableName, rows []Table) error {
	if len(rows) == 0 {
		return nil
	}

	columns := rows[0].Columns()
	batch, err := w.conn.PrepareBatch(ctx, insertQuery(table, columns))
	if err != nil {
		return ErrInsert(table, err)
	}

	for _, row := range rows {
		values := row.Values()
		if len(values) != len(columns) {
			_ = batch.Abort()
			return ErrColumnMismatch(table, len(columns), len(values))
		}
		if err := batch.Append(values...); err != nil {
			_ = batch.Abort()
			return ErrInsert(table, err)
		}
	}

	if err := batch.Send(); err != nil {
		return ErrInsert(table, err)
	}
	return nil
}

func insertQuery(table TableName, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = "`" + c + "`"
	}
	return fmt.Sprintf("INSERT INTO `%s` (%s)", table, strings.Join(quoted, ", "))
}
