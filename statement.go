package fluentsql

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLType describes the declared SQL type of a parameter. It is used as a
// hint when binding nulls and as the descriptor of callable out parameters.
type SQLType int

const (
	TypeNull SQLType = iota
	TypeBoolean
	TypeSmallInt
	TypeInteger
	TypeBigInt
	TypeReal
	TypeDouble
	TypeNumeric
	TypeChar
	TypeVarchar
	TypeBinary
	TypeDate
	TypeTime
	TypeTimestamp
	TypeTimestampTZ
	TypeOther
)

var sqlTypeNames = [...]string{
	TypeNull:        "NULL",
	TypeBoolean:     "BOOLEAN",
	TypeSmallInt:    "SMALLINT",
	TypeInteger:     "INTEGER",
	TypeBigInt:      "BIGINT",
	TypeReal:        "REAL",
	TypeDouble:      "DOUBLE",
	TypeNumeric:     "NUMERIC",
	TypeChar:        "CHAR",
	TypeVarchar:     "VARCHAR",
	TypeBinary:      "BINARY",
	TypeDate:        "DATE",
	TypeTime:        "TIME",
	TypeTimestamp:   "TIMESTAMP",
	TypeTimestampTZ: "TIMESTAMP WITH TIME ZONE",
	TypeOther:       "OTHER",
}

// String returns the SQL name of the type.
func (t SQLType) String() string {
	if t >= 0 && int(t) < len(sqlTypeNames) {
		return sqlTypeNames[t]
	}
	return fmt.Sprintf("SQLType(%d)", int(t))
}

// OutType makes a bare SQLType usable as an out parameter whose destination
// is allocated by the statement.
func (t SQLType) OutType() SQLType { return t }

// OutParameter is implemented by values that register a callable out
// parameter instead of binding an input value.
type OutParameter interface {
	OutType() SQLType
}

// OutParam is an out parameter with an explicit destination.
type OutParam struct {
	Type SQLType
	Dest any // pointer receiving the value; nil lets the statement allocate one
}

// OutType implements OutParameter.
func (o *OutParam) OutType() SQLType { return o.Type }

// Out returns an out parameter of type t scanned into dest.
func Out(t SQLType, dest any) *OutParam {
	return &OutParam{Type: t, Dest: dest}
}

// Statement is the driver-level binding target handed to parameter setters.
// Indexes are 1-based.
type Statement interface {
	SetObject(index int, v any) error
	SetNull(index int, t SQLType) error
	SetTimestamp(index int, t time.Time) error
	SetDate(index int, t time.Time) error
	SetTime(index int, t time.Time) error
	SetBytes(index int, b []byte) error
}

// CallableStatement is a Statement that also accepts out parameters.
type CallableStatement interface {
	Statement
	RegisterOut(index int, t SQLType, dest any) error
}

// argStatement collects bound values into the positional argument slice
// handed to database/sql or pgx.
type argStatement struct {
	args []any
}

func newArgStatement(n int) *argStatement {
	return &argStatement{args: make([]any, n)}
}

// Args returns the bound arguments in positional order.
func (s *argStatement) Args() []any {
	return s.args
}

func (s *argStatement) slot(index int) (*any, error) {
	if index < 1 || index > len(s.args) {
		return nil, fmt.Errorf("fluentsql: parameter index %d out of range [1, %d]", index, len(s.args))
	}
	return &s.args[index-1], nil
}

func (s *argStatement) set(index int, v any) error {
	p, err := s.slot(index)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (s *argStatement) SetObject(index int, v any) error {
	return s.set(index, v)
}

// SetNull binds a plain nil: database/sql and pgx infer the null's type from
// the parameter's declared type on the server.
func (s *argStatement) SetNull(index int, _ SQLType) error {
	return s.set(index, nil)
}

func (s *argStatement) SetTimestamp(index int, t time.Time) error {
	return s.set(index, t)
}

func (s *argStatement) SetDate(index int, t time.Time) error {
	y, m, d := t.Date()
	return s.set(index, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func (s *argStatement) SetTime(index int, t time.Time) error {
	return s.set(index, t.Format(timeLayout))
}

func (s *argStatement) SetBytes(index int, b []byte) error {
	return s.set(index, b)
}

// callStatement is an argStatement that registers out parameters as sql.Out
// and remembers their destinations.
type callStatement struct {
	*argStatement
	outs map[int]any
}

func newCallStatement(n int) *callStatement {
	return &callStatement{argStatement: newArgStatement(n), outs: make(map[int]any)}
}

func (s *callStatement) RegisterOut(index int, t SQLType, dest any) error {
	if dest == nil {
		dest = newOutDest(t)
	}
	if err := s.set(index, sql.Out{Dest: dest}); err != nil {
		return err
	}
	s.outs[index] = dest
	return nil
}

// newOutDest allocates a nullable destination suited to t.
func newOutDest(t SQLType) any {
	switch t {
	case TypeBoolean:
		return new(sql.NullBool)
	case TypeSmallInt, TypeInteger, TypeBigInt:
		return new(sql.NullInt64)
	case TypeReal, TypeDouble:
		return new(sql.NullFloat64)
	case TypeDate, TypeTimestamp, TypeTimestampTZ:
		return new(sql.NullTime)
	case TypeBinary:
		return new([]byte)
	default:
		return new(sql.NullString)
	}
}
