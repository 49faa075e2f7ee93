package fluentsql

import (
	"database/sql"
	"errors"
	"reflect"

	"github.com/rs/zerolog"
)

// Dialect identifies the SQL dialect for placeholder rendering and a few
// dialect-specific lexing behaviors.
type Dialect int

// FluentSQL is the main entry point. It holds the selected dialect, the
// configuration, the parameter setter registry and the template cache.
// A single FluentSQL instance is safe for concurrent use; the builders it
// returns are not.
type FluentSQL struct {
	dialect     Dialect
	config      Config
	registry    *registry
	transformer *transformer
	listener    AfterQueryListener
}

// Config defines limits and behavior tweaks for the transformer, the binder
// and the executors.
type Config struct {
	// MaxParams limits the total number of placeholders that can be emitted by
	// a single statement.
	// If = 0 (or omitted), it uses a sensible per-dialect default.
	// If < 0, it's treated as "unlimited".
	MaxParams int
	// MaxNameLen limits the maximum allowed length of a placeholder name,
	// e.g. ":this_is_a_name". Names longer than this cause ErrParamNameTooLong.
	MaxNameLen int
	// TemplateCacheSize bounds the number of parsed templates kept in memory.
	// If = 0 it defaults to 4096, if < 0 caching is disabled.
	TemplateCacheSize int
	// BatchSize is the default number of parameter sets sent per round trip
	// by Batch.Run. If <= 0 all sets are sent at once.
	BatchSize int
	// ParamSetters overrides or extends the built-in setters, keyed by the
	// exact type of the bound value. Use RegisterParamSetter to fill it.
	ParamSetters map[reflect.Type]ParamSetter
	// AfterQuery is notified after every execution, successful or not.
	AfterQuery AfterQueryListener
	// Logger, when set, receives a debug entry per execution.
	Logger *zerolog.Logger
	// TxOptions are the default options used by Transaction and PgxTransaction.
	TxOptions *sql.TxOptions
}

// P is a convenient alias for map[string]any to use with NamedParams().
type P = map[string]any

const (
	Postgres Dialect = iota
	MySQL
	SQLite
	SQLServer
)

const cacheSize = 4096 // Default size for the template and field-index caches

var (
	ErrMixedParameterMode       = errors.New("fluentsql: positional and named parameters cannot be mixed")
	ErrUnknownNamedParameter    = errors.New("fluentsql: unknown named parameter")
	ErrMalformedPlaceholder     = errors.New("fluentsql: malformed placeholder")
	ErrUnsupportedBindingTarget = errors.New("fluentsql: out parameters require a callable statement")
	ErrParameterBindingFailed   = errors.New("fluentsql: parameter binding failed")
	ErrAlreadyExecuted          = errors.New("fluentsql: query already executed; build a new one")
	ErrEmptyCollection          = errors.New("fluentsql: empty collection")
	ErrTooManyParams            = errors.New("fluentsql: too many parameters")
	ErrParamNameTooLong         = errors.New("fluentsql: parameter name too long")
	ErrSQLExecution             = errors.New("fluentsql: sql execution failed")
	ErrFieldAmbiguous           = errors.New("fluentsql: ambiguous field name")
	ErrMoreThanOneRow           = errors.New("fluentsql: more than one row")
	ErrNoConnection             = errors.New("fluentsql: nil connection")
)

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	case SQLServer:
		return "sqlserver"
	default:
		return "unknown"
	}
}

// New returns a new FluentSQL for the given dialect. Optionally provide a
// Config; unspecified fields fall back to sensible per-dialect defaults.
// The parameter setters are fixed here and cannot be changed afterwards.
func New(dialect Dialect, cfg ...Config) *FluentSQL {
	c := defaultConfig(dialect, cfg...)
	s := &FluentSQL{
		dialect:     dialect,
		config:      c,
		registry:    newRegistry(c.ParamSetters),
		transformer: newTransformer(dialect, c),
	}

	var listeners []AfterQueryListener
	if c.Logger != nil {
		listeners = append(listeners, LogQueries(*c.Logger))
	}
	if c.AfterQuery != nil {
		listeners = append(listeners, c.AfterQuery)
	}
	s.listener = chainListeners(listeners...)
	return s
}

// Dialect returns the dialect the instance renders placeholders for.
func (s *FluentSQL) Dialect() Dialect {
	return s.dialect
}

// Query starts a new single statement. The returned Query is single-use.
func (s *FluentSQL) Query(sql string) *Query {
	return &Query{s: s, sql: sql}
}

// Batch starts a new statement executed once per added parameter set.
func (s *FluentSQL) Batch(sql string) *Batch {
	return &Batch{s: s, sql: sql}
}

// Call starts a new callable statement, the only kind accepting out
// parameters.
func (s *FluentSQL) Call(sql string) *Call {
	return &Call{s: s, sql: sql}
}

// Transform rewrites a named template into positional SQL for the
// instance's dialect. Only the keys of params and the lengths of collection
// values are inspected.
func (s *FluentSQL) Transform(template string, params map[string]any) (Transformed, error) {
	return s.transformer.Transform(template, params)
}

// defaultConfig merges user config with per-dialect defaults.
func defaultConfig(dialect Dialect, config ...Config) Config {
	c := Config{}

	if len(config) > 0 {
		c = config[0]
	}

	if c.MaxParams == 0 {
		switch dialect {
		case SQLServer:
			c.MaxParams = 2100
		case SQLite:
			c.MaxParams = 999
		case Postgres, MySQL:
			c.MaxParams = 65535
		}
	}

	if c.MaxNameLen <= 0 {
		c.MaxNameLen = 64
	}

	if c.TemplateCacheSize == 0 {
		c.TemplateCacheSize = cacheSize
	}

	return c
}
