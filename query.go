package fluentsql

import (
	"context"
	"database/sql"
)

// Query assembles a single statement and its parameters.
// It is NOT safe for concurrent use and is single-use: after the first
// execution (or Build) every further execution returns ErrAlreadyExecuted.
type Query struct {
	s       *FluentSQL
	sql     string
	params  params
	maxRows int
	done    bool
}

// Param appends one positional parameter.
func (q *Query) Param(v any) *Query {
	q.params.add(v)
	return q
}

// Params appends positional parameters.
func (q *Query) Params(vs ...any) *Query {
	q.params.add(vs...)
	return q
}

// NamedParam sets the value bound to :name. Later values win.
func (q *Query) NamedParam(name string, v any) *Query {
	q.params.addNamed(map[string]any{name: v})
	return q
}

// NamedParams sets several named values. Later values win.
func (q *Query) NamedParams(m map[string]any) *Query {
	q.params.addNamed(m)
	return q
}

// NamedStruct sets a named value per exported field of v, a struct or a
// pointer to one. Fields are named by their `db` tag, else their Go name.
func (q *Query) NamedStruct(v any) *Query {
	q.params.addStruct(v)
	return q
}

// MaxRows caps the number of rows mapped by ScanAll and Iterate. Zero means
// no limit.
func (q *Query) MaxRows(n int) *Query {
	q.maxRows = n
	return q
}

// Err returns the first error recorded while adding parameters.
func (q *Query) Err() error {
	return q.params.err
}

// Preview renders the SQL statement and bound args without finalizing the
// query. Safe to call multiple times.
func (q *Query) Preview() (string, []any, error) {
	if q.done {
		return "", nil, ErrAlreadyExecuted
	}
	if q.params.err != nil {
		return "", nil, q.params.err
	}
	p, err := q.s.prepare(q.sql, q.params.bound, false)
	if err != nil {
		return "", nil, err
	}
	return p.sql, p.args, nil
}

// Build renders the statement and finalizes the query. Use it to run the
// statement through a handle this package does not adapt.
func (q *Query) Build() (string, []any, error) {
	p, err := q.finalize()
	if err != nil {
		return "", nil, err
	}
	return p.sql, p.args, nil
}

// Exec runs a statement returning no rows.
func (q *Query) Exec(ctx context.Context, conn Conn) (Result, error) {
	p, err := q.finalize()
	if err != nil {
		return nil, err
	}
	return q.s.exec(ctx, conn, p)
}

// ScanOne runs the statement, scanning exactly one row into dest.
// It returns sql.ErrNoRows if no rows are returned. It errors if more than one row.
func (q *Query) ScanOne(ctx context.Context, conn Conn, dest any) error {
	p, err := q.finalize()
	if err != nil {
		return err
	}
	return q.s.query(ctx, conn, p, func(rows Rows) error {
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return sql.ErrNoRows
		}
		if err := scanOne(rows, dest); err != nil {
			return err
		}

		// Must be at most ONE row
		if rows.Next() {
			return ErrMoreThanOneRow
		}
		return rows.Err()
	})
}

// ScanAll runs the statement, scanning all rows (up to MaxRows) into dest,
// a pointer to a slice.
func (q *Query) ScanAll(ctx context.Context, conn Conn, dest any) error {
	p, err := q.finalize()
	if err != nil {
		return err
	}
	return q.s.query(ctx, conn, p, func(rows Rows) error {
		return scanAll(rows, dest, q.maxRows)
	})
}

// Iterate runs the statement and calls fn for each row (up to MaxRows).
// Iteration stops at the first error returned by fn.
func (q *Query) Iterate(ctx context.Context, conn Conn, fn func(rows Rows) error) error {
	p, err := q.finalize()
	if err != nil {
		return err
	}
	return q.s.query(ctx, conn, p, func(rows Rows) error {
		for n := 0; q.maxRows <= 0 || n < q.maxRows; n++ {
			if !rows.Next() {
				break
			}
			if err := fn(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// finalize marks the query executed and binds its parameters.
func (q *Query) finalize() (*prepared, error) {
	if q.done {
		return nil, ErrAlreadyExecuted
	}
	q.done = true
	if q.params.err != nil {
		return nil, q.params.err
	}
	return q.s.prepare(q.sql, q.params.bound, false)
}
