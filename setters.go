package fluentsql

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ParamSetter binds value at the 1-based index of stmt. Setters are looked
// up by the exact runtime type of the value and must not retain stmt.
type ParamSetter func(value any, stmt Statement, index int) error

// typedNull is a null carrying a declared SQL type.
type typedNull struct {
	t SQLType
}

// Null returns a value that binds as a null of the declared type t.
func Null(t SQLType) any {
	return typedNull{t: t}
}

// RegisterParamSetter registers fn for values of exact type T in cfg,
// overriding the built-in setter for T, if any. It must be called before
// the Config is handed to New.
func RegisterParamSetter[T any](cfg *Config, fn func(v T, stmt Statement, index int) error) {
	if cfg.ParamSetters == nil {
		cfg.ParamSetters = make(map[reflect.Type]ParamSetter)
	}
	cfg.ParamSetters[reflect.TypeFor[T]()] = typed(fn)
}

func typed[T any](fn func(v T, stmt Statement, index int) error) ParamSetter {
	return func(v any, stmt Statement, index int) error {
		return fn(v.(T), stmt, index)
	}
}

var (
	timeType  = reflect.TypeFor[time.Time]()
	bytesType = reflect.TypeFor[[]byte]()
)

var defaultSetters = func() map[reflect.Type]ParamSetter {
	m := make(map[reflect.Type]ParamSetter, 16)
	reg := func(t reflect.Type, fn ParamSetter) { m[t] = fn }

	// Temporal: time.Time covers both the generic date wrapper and the
	// instant/offset/zoned kinds, so it is normalized to UTC.
	reg(timeType, typed(func(v time.Time, stmt Statement, i int) error {
		return stmt.SetTimestamp(i, v.UTC())
	}))
	reg(reflect.TypeFor[LocalDate](), typed(func(v LocalDate, stmt Statement, i int) error {
		return stmt.SetDate(i, v.midnight())
	}))
	reg(reflect.TypeFor[LocalTime](), typed(func(v LocalTime, stmt Statement, i int) error {
		return stmt.SetTime(i, v.clock())
	}))
	reg(reflect.TypeFor[LocalDateTime](), typed(func(v LocalDateTime, stmt Statement, i int) error {
		return stmt.SetTimestamp(i, v.wall())
	}))
	reg(reflect.TypeFor[Year](), typed(func(v Year, stmt Statement, i int) error {
		return stmt.SetDate(i, time.Date(int(v), time.January, 1, 0, 0, 0, 0, time.UTC))
	}))
	reg(reflect.TypeFor[YearMonth](), typed(func(v YearMonth, stmt Statement, i int) error {
		return stmt.SetDate(i, time.Date(v.Year, v.Month, 1, 0, 0, 0, 0, time.UTC))
	}))

	// Binary: exact []byte only; named byte types pass through.
	reg(bytesType, typed(func(v []byte, stmt Statement, i int) error {
		return stmt.SetBytes(i, v)
	}))

	// Identifiers bind in their canonical text form.
	reg(reflect.TypeFor[uuid.UUID](), typed(func(v uuid.UUID, stmt Statement, i int) error {
		return stmt.SetObject(i, v.String())
	}))
	reg(reflect.TypeFor[ulid.ULID](), typed(func(v ulid.ULID, stmt Statement, i int) error {
		return stmt.SetObject(i, v.String())
	}))

	reg(reflect.TypeFor[typedNull](), typed(func(v typedNull, stmt Statement, i int) error {
		return stmt.SetNull(i, v.t)
	}))

	// Callable out parameters.
	reg(reflect.TypeFor[SQLType](), setOut)
	reg(reflect.TypeFor[*OutParam](), setOut)
	return m
}()

// setOut registers v as an out parameter on a callable statement.
func setOut(v any, stmt Statement, index int) error {
	if p, ok := v.(*OutParam); ok && p == nil {
		return stmt.SetNull(index, TypeNull)
	}
	op := v.(OutParameter)
	cs, ok := stmt.(CallableStatement)
	if !ok {
		return fmt.Errorf("%w: %s out parameter at index %d", ErrUnsupportedBindingTarget, op.OutType(), index)
	}
	var dest any
	if p, ok := op.(*OutParam); ok {
		dest = p.Dest
	}
	return cs.RegisterOut(index, op.OutType(), dest)
}

func setObject(v any, stmt Statement, index int) error {
	return stmt.SetObject(index, v)
}

func setNull(_ any, stmt Statement, index int) error {
	return stmt.SetNull(index, TypeNull)
}

// registry maps exact runtime types to setters. It is immutable after
// newRegistry and safe for concurrent reads.
type registry struct {
	setters map[reflect.Type]ParamSetter
}

// newRegistry merges the built-in setters with overrides; overrides win.
func newRegistry(overrides map[reflect.Type]ParamSetter) *registry {
	m := make(map[reflect.Type]ParamSetter, len(defaultSetters)+len(overrides))
	for t, fn := range defaultSetters {
		m[t] = fn
	}
	for t, fn := range overrides {
		if fn != nil {
			m[t] = fn
		}
	}
	return &registry{setters: m}
}

// resolve returns the setter for v. Lookup is by exact type; the only
// capability match is OutParameter. Unknown types pass through to
// Statement.SetObject.
func (r *registry) resolve(v any) ParamSetter {
	if v == nil {
		return setNull
	}
	t := reflect.TypeOf(v)
	if fn, ok := r.setters[t]; ok {
		return fn
	}
	if t.Kind() == reflect.Pointer && reflect.ValueOf(v).IsNil() {
		hint := nullHint(t.Elem())
		return func(_ any, stmt Statement, index int) error {
			return stmt.SetNull(index, hint)
		}
	}
	if _, ok := v.(OutParameter); ok {
		return setOut
	}
	return setObject
}

// nullHint returns the SQL type a nil *T is declared as, or TypeNull.
func nullHint(t reflect.Type) SQLType {
	switch t {
	case timeType:
		return TypeTimestampTZ
	case bytesType:
		return TypeBinary
	case reflect.TypeFor[LocalDate](), reflect.TypeFor[Year](), reflect.TypeFor[YearMonth]():
		return TypeDate
	case reflect.TypeFor[LocalTime]():
		return TypeTime
	case reflect.TypeFor[LocalDateTime]():
		return TypeTimestamp
	}
	switch t.Kind() {
	case reflect.Bool:
		return TypeBoolean
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return TypeSmallInt
	case reflect.Int32, reflect.Uint16:
		return TypeInteger
	case reflect.Int, reflect.Int64, reflect.Uint32, reflect.Uint, reflect.Uint64:
		return TypeBigInt
	case reflect.Float32:
		return TypeReal
	case reflect.Float64:
		return TypeDouble
	case reflect.String:
		return TypeVarchar
	}
	return TypeNull
}
