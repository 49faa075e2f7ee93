package fluentsql

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// --------------------------------
// Test utilities
// --------------------------------

// dcase groups a dialect with a display name for table-driven tests.
type dcase struct {
	name string
	d    Dialect
}

// allDialects returns the list of dialects to iterate over in tests.
func allDialects() []dcase {
	return []dcase{
		{"postgres", Postgres},
		{"mysql", MySQL},
		{"sqlite", SQLite},
		{"sqlserver", SQLServer},
	}
}

// placeholderRegex returns a compiled regex that matches placeholders for each dialect.
func placeholderRegex(d Dialect) *regexp.Regexp {
	switch d {
	case Postgres:
		return regexp.MustCompile(`\$(?:[1-9][0-9]*)`)
	case SQLServer:
		return regexp.MustCompile(`@p(?:[1-9][0-9]*)`)
	default: // MySQL, SQLite
		return regexp.MustCompile(`\?`)
	}
}

// countPlaceholders counts the placeholders present in a query for the given dialect.
func countPlaceholders(q string, d Dialect) int {
	return len(placeholderRegex(d).FindAllStringIndex(q, -1))
}

// assertNoError fails the test immediately if err != nil.
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// mustPreview renders a named query and asserts no error.
func mustPreview(t *testing.T, d Dialect, q string, params map[string]any) (string, []any) {
	t.Helper()
	out, args, err := New(d).Query(q).NamedParams(params).Preview()
	assertNoError(t, err)
	return out, args
}

// assertArgsEqual compares args semantically (with []byte equality support).
func assertArgsEqual(t *testing.T, got []any, want []any) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len(args)=%d, want %d\n got=%v\nwant=%v", len(got), len(want), got, want)
	}
	for i := range got {
		if !equalArg(got[i], want[i]) {
			t.Fatalf("arg #%d = %#v, want %#v", i+1, got[i], want[i])
		}
	}
}

// equalArg is a robust equality check for test arguments (handles []byte).
func equalArg(a, b any) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok || bok {
		if !(aok && bok) {
			return false
		}
		return bytes.Equal(ab, bb)
	}
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}

// mustContainInOrder asserts that subs appear in s in the given order.
func mustContainInOrder(t *testing.T, s string, subs ...string) {
	t.Helper()
	pos := 0
	for _, sub := range subs {
		i := strings.Index(s[pos:], sub)
		if i < 0 {
			t.Fatalf("substring not found (in order) %q\nTEXT:\n%s", sub, s)
		}
		pos += i + len(sub)
	}
}

func newMockDB(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	return db, mock
}

// bindCall records one call made on a recordingStatement.
type bindCall struct {
	method string
	index  int
	value  any
}

// recordingStatement is a Statement that records every bind call.
type recordingStatement struct {
	calls []bindCall
	fail  error // returned by every call when set
}

func (r *recordingStatement) record(method string, index int, v any) error {
	r.calls = append(r.calls, bindCall{method: method, index: index, value: v})
	return r.fail
}

func (r *recordingStatement) SetObject(i int, v any) error   { return r.record("SetObject", i, v) }
func (r *recordingStatement) SetNull(i int, t SQLType) error { return r.record("SetNull", i, t) }
func (r *recordingStatement) SetTimestamp(i int, t time.Time) error {
	return r.record("SetTimestamp", i, t)
}
func (r *recordingStatement) SetDate(i int, t time.Time) error { return r.record("SetDate", i, t) }
func (r *recordingStatement) SetTime(i int, t time.Time) error { return r.record("SetTime", i, t) }
func (r *recordingStatement) SetBytes(i int, b []byte) error   { return r.record("SetBytes", i, b) }

// recordingCallable adds out parameter support.
type recordingCallable struct {
	recordingStatement
}

func (r *recordingCallable) RegisterOut(i int, t SQLType, dest any) error {
	return r.record("RegisterOut", i, t)
}

// fakeConn is a Conn recording the last statement it was asked to run.
type fakeConn struct {
	lastQuery string
	lastArgs  []any
	execs     int
	err       error
}

type fakeResult struct{ n int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

func (c *fakeConn) ExecContext(_ context.Context, q string, args ...any) (Result, error) {
	c.execs++
	c.lastQuery, c.lastArgs = q, args
	if c.err != nil {
		return nil, c.err
	}
	return fakeResult{n: 1}, nil
}

func (c *fakeConn) QueryContext(_ context.Context, q string, args ...any) (Rows, error) {
	c.lastQuery, c.lastArgs = q, args
	return nil, fmt.Errorf("fakeConn: queries not supported")
}

// --------------------------------
// Tests: entry point and config
// --------------------------------

// TestDialectString ensures Dialect.String() returns expected values.
func TestDialectString(t *testing.T) {
	tests := []struct {
		in   Dialect
		want string
	}{
		{Postgres, "postgres"},
		{MySQL, "mysql"},
		{SQLite, "sqlite"},
		{SQLServer, "sqlserver"},
		{Dialect(-1), "unknown"},
		{Dialect(123), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Fatalf("Dialect(%d).String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestDefaultConfig_PerDialect checks the per-dialect parameter limits and
// the fallbacks applied to unset fields.
func TestDefaultConfig_PerDialect(t *testing.T) {
	want := map[Dialect]int{Postgres: 65535, MySQL: 65535, SQLite: 999, SQLServer: 2100}
	for d, limit := range want {
		c := defaultConfig(d)
		if c.MaxParams != limit {
			t.Fatalf("%s: MaxParams=%d, want %d", d, c.MaxParams, limit)
		}
		if c.MaxNameLen != 64 {
			t.Fatalf("%s: MaxNameLen=%d, want 64", d, c.MaxNameLen)
		}
		if c.TemplateCacheSize != cacheSize {
			t.Fatalf("%s: TemplateCacheSize=%d, want %d", d, c.TemplateCacheSize, cacheSize)
		}
	}

	c := defaultConfig(SQLite, Config{MaxParams: -1, MaxNameLen: 8, TemplateCacheSize: -1})
	if c.MaxParams != -1 || c.MaxNameLen != 8 || c.TemplateCacheSize != -1 {
		t.Fatalf("explicit values overridden: %+v", c)
	}
}

// TestNew_SettersAreFixedAtConstruction ensures later changes to the Config
// map do not leak into an existing instance.
func TestNew_SettersAreFixedAtConstruction(t *testing.T) {
	type money int64
	var cfg Config
	RegisterParamSetter(&cfg, func(v money, stmt Statement, i int) error {
		return stmt.SetObject(i, int64(v)*100)
	})
	s := New(SQLite, cfg)

	cfg.ParamSetters[reflect.TypeFor[money]()] = func(any, Statement, int) error {
		return fmt.Errorf("should not be called")
	}

	_, args, err := s.Query("SELECT ?").Param(money(3)).Preview()
	assertNoError(t, err)
	assertArgsEqual(t, args, []any{int64(300)})
}
