package fluentsql

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// ExecutionDetails describes one finished execution.
type ExecutionDetails struct {
	ID       ulid.ULID
	SQL      string
	Params   int
	Duration time.Duration
	Err      error
}

// Success reports whether the execution completed without error.
func (d ExecutionDetails) Success() bool {
	return d.Err == nil
}

// AfterQueryListener is called synchronously after every execution.
type AfterQueryListener func(ctx context.Context, d ExecutionDetails)

// LogQueries returns a listener writing one entry per execution to logger:
// debug on success, warn on failure.
func LogQueries(logger zerolog.Logger) AfterQueryListener {
	return func(_ context.Context, d ExecutionDetails) {
		var ev *zerolog.Event
		if d.Err != nil {
			ev = logger.Warn().Err(d.Err)
		} else {
			ev = logger.Debug()
		}
		ev.Str("query_id", d.ID.String()).
			Str("sql", d.SQL).
			Int("params", d.Params).
			Dur("duration", d.Duration).
			Msg("query executed")
	}
}

func chainListeners(ls ...AfterQueryListener) AfterQueryListener {
	switch len(ls) {
	case 0:
		return nil
	case 1:
		return ls[0]
	}
	return func(ctx context.Context, d ExecutionDetails) {
		for _, l := range ls {
			l(ctx, d)
		}
	}
}
