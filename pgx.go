package fluentsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrLastInsertIDUnsupported is returned by pgx results; use RETURNING
// instead.
var ErrLastInsertIDUnsupported = errors.New("fluentsql: LastInsertId not supported by pgx")

// pgxQuerier abstracts *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Pgx adapts a pgx handle. Statements must use the Postgres dialect.
func Pgx(q pgxQuerier) Conn {
	return pgxConn{q: q}
}

type pgxConn struct {
	q pgxQuerier
}

func (c pgxConn) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	tag, err := c.q.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgxResult{tag: tag}, nil
}

func (c pgxConn) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

// ExecBatch queues every item into one pgx.Batch and reads the results in
// order.
func (c pgxConn) ExecBatch(ctx context.Context, items []BatchItem) (counts []int64, err error) {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(it.SQL, it.Args...)
	}

	br := c.q.SendBatch(ctx, batch)
	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("batch close: %w", closeErr)
		}
	}()

	counts = make([]int64, len(items))
	for i := range items {
		tag, err := br.Exec()
		if err != nil {
			return nil, fmt.Errorf("batch exec (item %d): %w", i, err)
		}
		counts[i] = tag.RowsAffected()
	}
	return counts, nil
}

type pgxResult struct {
	tag pgconn.CommandTag
}

func (r pgxResult) LastInsertId() (int64, error) {
	return 0, ErrLastInsertIDUnsupported
}

func (r pgxResult) RowsAffected() (int64, error) {
	return r.tag.RowsAffected(), nil
}

// pgxRows adapts pgx.Rows to Rows.
type pgxRows struct {
	rows pgx.Rows
	cols []string
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Err() error             { return r.rows.Err() }
func (r *pgxRows) Close() error           { r.rows.Close(); return nil }

func (r *pgxRows) Columns() ([]string, error) {
	if r.cols == nil {
		fds := r.rows.FieldDescriptions()
		r.cols = make([]string, len(fds))
		for i, fd := range fds {
			r.cols[i] = fd.Name
		}
	}
	return r.cols, nil
}
