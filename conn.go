package fluentsql

import (
	"context"
	"database/sql"
	"fmt"
)

// Result is the outcome of a statement that returns no rows. sql.Result
// satisfies it.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Rows is a forward-only cursor over a result set. *sql.Rows satisfies it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Close() error
	Err() error
}

// Conn is the narrow surface statements are executed against. Use SQL or
// Pgx to obtain one.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// BatchItem is one statement of a batch with its bound arguments.
type BatchItem struct {
	SQL  string
	Args []any
}

// BatchExecer is implemented by connections able to run several
// statements in one go. Batch.Run falls back to one ExecContext per item
// otherwise.
type BatchExecer interface {
	ExecBatch(ctx context.Context, items []BatchItem) ([]int64, error)
}

// sqlDB abstracts *sql.DB, *sql.Tx and *sql.Conn.
type sqlDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// SQL adapts a database/sql handle (*sql.DB, *sql.Tx or *sql.Conn).
func SQL(db sqlDB) Conn {
	return sqlConn{db: db}
}

type sqlConn struct {
	db sqlDB
}

func (c sqlConn) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c sqlConn) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecBatch prepares each distinct statement once and executes it for every
// item using it. Prepared statements are closed before returning. Drivers
// that cannot report affected rows yield -1.
func (c sqlConn) ExecBatch(ctx context.Context, items []BatchItem) (counts []int64, err error) {
	stmts := make(map[string]*sql.Stmt, 1)
	defer func() {
		for _, st := range stmts {
			if closeErr := st.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("batch close: %w", closeErr)
			}
		}
	}()

	counts = make([]int64, len(items))
	for i, it := range items {
		st, ok := stmts[it.SQL]
		if !ok {
			if st, err = c.db.PrepareContext(ctx, it.SQL); err != nil {
				return nil, fmt.Errorf("batch prepare (item %d): %w", i, err)
			}
			stmts[it.SQL] = st
		}
		res, err := st.ExecContext(ctx, it.Args...)
		if err != nil {
			return nil, fmt.Errorf("batch exec (item %d): %w", i, err)
		}
		if counts[i], err = res.RowsAffected(); err != nil {
			counts[i] = -1
		}
	}
	return counts, nil
}
