package fluentsql

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// prepared is a statement with every parameter bound, ready for a Conn.
type prepared struct {
	sql  string
	args []any
	outs map[int]any
}

// prepare resolves the template against b and binds the values through the
// registry. Nothing touches the connection if binding fails.
func (s *FluentSQL) prepare(template string, b bindings, callable bool) (*prepared, error) {
	q, values, names, err := s.resolve(template, b)
	if err != nil {
		return nil, err
	}
	if callable {
		st := newCallStatement(len(values))
		if err := s.registry.assign(st, values, names); err != nil {
			return nil, err
		}
		return &prepared{sql: q, args: st.Args(), outs: st.outs}, nil
	}
	st := newArgStatement(len(values))
	if err := s.registry.assign(st, values, names); err != nil {
		return nil, err
	}
	return &prepared{sql: q, args: st.Args()}, nil
}

func (s *FluentSQL) exec(ctx context.Context, conn Conn, p *prepared) (Result, error) {
	if conn == nil {
		return nil, ErrNoConnection
	}
	start := time.Now()
	res, err := conn.ExecContext(ctx, p.sql, p.args...)
	if err != nil {
		err = execError(p.sql, err)
	}
	s.notify(ctx, p.sql, len(p.args), start, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// query runs p and hands the open rows to fn. Rows are closed before query
// returns.
func (s *FluentSQL) query(ctx context.Context, conn Conn, p *prepared, fn func(Rows) error) error {
	if conn == nil {
		return ErrNoConnection
	}
	start := time.Now()
	rows, err := conn.QueryContext(ctx, p.sql, p.args...)
	if err != nil {
		err = execError(p.sql, err)
		s.notify(ctx, p.sql, len(p.args), start, err)
		return err
	}

	err = fn(rows)
	if closeErr := rows.Close(); closeErr != nil && err == nil {
		err = execError(p.sql, closeErr)
	}
	s.notify(ctx, p.sql, len(p.args), start, err)
	return err
}

// execBatch sends items in chunks of size, through BatchExecer when conn
// implements it.
func (s *FluentSQL) execBatch(ctx context.Context, conn Conn, items []BatchItem, size int) ([]int64, error) {
	if conn == nil {
		return nil, ErrNoConnection
	}
	if size <= 0 || size > len(items) {
		size = len(items)
	}

	counts := make([]int64, 0, len(items))
	for lo := 0; lo < len(items); lo += size {
		chunk := items[lo:min(lo+size, len(items))]
		params := 0
		for _, it := range chunk {
			params += len(it.Args)
		}

		start := time.Now()
		n, err := runChunk(ctx, conn, chunk)
		if err != nil {
			err = execError(chunk[0].SQL, fmt.Errorf("batch offset %d: %w", lo, err))
		}
		s.notify(ctx, chunk[0].SQL, params, start, err)
		if err != nil {
			return counts, err
		}
		counts = append(counts, n...)
	}
	return counts, nil
}

func runChunk(ctx context.Context, conn Conn, chunk []BatchItem) ([]int64, error) {
	if be, ok := conn.(BatchExecer); ok {
		return be.ExecBatch(ctx, chunk)
	}
	counts := make([]int64, len(chunk))
	for i, it := range chunk {
		res, err := conn.ExecContext(ctx, it.SQL, it.Args...)
		if err != nil {
			return nil, fmt.Errorf("batch exec (item %d): %w", i, err)
		}
		if counts[i], err = res.RowsAffected(); err != nil {
			counts[i] = -1
		}
	}
	return counts, nil
}

func (s *FluentSQL) notify(ctx context.Context, sql string, params int, start time.Time, err error) {
	if s.listener == nil {
		return
	}
	s.listener(ctx, ExecutionDetails{
		ID:       ulid.Make(),
		SQL:      sql,
		Params:   params,
		Duration: time.Since(start),
		Err:      err,
	})
}

func execError(sql string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSQLExecution, sql, err)
}
