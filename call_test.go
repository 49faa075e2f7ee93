package fluentsql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outFiller plays the driver role for callable statements: it writes a
// value into every sql.Out destination it receives.
type outFiller struct {
	fakeConn
}

func (c *outFiller) ExecContext(ctx context.Context, q string, args ...any) (Result, error) {
	for _, a := range args {
		out, ok := a.(sql.Out)
		if !ok {
			continue
		}
		switch d := out.Dest.(type) {
		case *sql.NullInt64:
			*d = sql.NullInt64{Int64: 42, Valid: true}
		case *string:
			*d = "done"
		}
	}
	return c.fakeConn.ExecContext(ctx, q, args...)
}

func TestCall_PositionalOutParams(t *testing.T) {
	conn := &outFiller{}
	var status string

	res, err := New(SQLServer).
		Call("EXEC p @p1, @p2 OUTPUT, @p3 OUTPUT").
		Params("in", TypeInteger, Out(TypeVarchar, &status)).
		Exec(context.Background(), conn)
	require.NoError(t, err)

	require.Len(t, conn.lastArgs, 3)
	assert.Equal(t, "in", conn.lastArgs[0])
	assert.IsType(t, sql.Out{}, conn.lastArgs[1])
	assert.IsType(t, sql.Out{}, conn.lastArgs[2])

	got, ok := res.Out(2).(*sql.NullInt64)
	require.True(t, ok, "Out(2) is %T", res.Out(2))
	assert.Equal(t, sql.NullInt64{Int64: 42, Valid: true}, *got)
	assert.Equal(t, "done", status)
	assert.Same(t, &status, res.Out(3))
	assert.Nil(t, res.Out(1))

	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCall_NamedOutParams(t *testing.T) {
	conn := &outFiller{}
	res, err := New(Postgres).
		Call("CALL count_users(:role, :total)").
		NamedParam("role", "admin").
		NamedParam("total", TypeBigInt).
		Exec(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, "CALL count_users($1, $2)", conn.lastQuery)
	assert.Equal(t, "admin", conn.lastArgs[0])
	assert.Equal(t, int64(42), res.Out(2).(*sql.NullInt64).Int64)
}

func TestCall_SingleUseAndErrors(t *testing.T) {
	conn := &fakeConn{}
	c := New(MySQL).Call("CALL p(?)").Param(1)
	_, err := c.Exec(context.Background(), conn)
	require.NoError(t, err)
	_, err = c.Exec(context.Background(), conn)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)

	mixed := New(MySQL).Call("CALL p(:a)").NamedParams(P{"a": 1}).Param(2)
	assert.ErrorIs(t, mixed.Err(), ErrMixedParameterMode)
	_, err = mixed.Exec(context.Background(), conn)
	assert.ErrorIs(t, err, ErrMixedParameterMode)

	boom := errors.New("proc failed")
	_, err = New(MySQL).Call("CALL p()").Exec(context.Background(), &fakeConn{err: boom})
	assert.ErrorIs(t, err, ErrSQLExecution)
	assert.ErrorIs(t, err, boom)
}
