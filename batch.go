package fluentsql

import (
	"context"
	"fmt"
)

// Batch runs one statement once per parameter set. All sets of a batch are
// either positional or named. Like Query it is single-use.
type Batch struct {
	s    *FluentSQL
	sql  string
	sets []bindings
	size int
	err  error
	done bool
}

// Add appends a positional parameter set.
func (b *Batch) Add(values ...any) *Batch {
	if b.err != nil {
		return b
	}
	if b.named() {
		b.err = fmt.Errorf("%w: cannot add a positional set to a named batch", ErrMixedParameterMode)
		return b
	}
	b.sets = append(b.sets, append(make(positional, 0, len(values)), values...))
	return b
}

// AddNamed appends a named parameter set.
func (b *Batch) AddNamed(m map[string]any) *Batch {
	if b.err != nil {
		return b
	}
	if len(b.sets) > 0 && !b.named() {
		b.err = fmt.Errorf("%w: cannot add a named set to a positional batch", ErrMixedParameterMode)
		return b
	}
	var p params
	p.addNamed(m)
	if p.err != nil {
		b.err = p.err
		return b
	}
	b.sets = append(b.sets, p.bound)
	return b
}

// Size sets how many parameter sets are sent per round trip, overriding
// Config.BatchSize.
func (b *Batch) Size(n int) *Batch {
	b.size = n
	return b
}

// Err returns the first error recorded while adding parameter sets.
func (b *Batch) Err() error {
	return b.err
}

// Run binds every set and executes them in order, returning the affected
// row count per set. Binding failures abort before anything is sent. On an
// execution failure the counts of the chunks already sent are returned with
// the error.
func (b *Batch) Run(ctx context.Context, conn Conn) ([]int64, error) {
	if b.done {
		return nil, ErrAlreadyExecuted
	}
	b.done = true
	if b.err != nil {
		return nil, b.err
	}
	if len(b.sets) == 0 {
		return nil, nil
	}

	items := make([]BatchItem, len(b.sets))
	for i, set := range b.sets {
		p, err := b.s.prepare(b.sql, set, false)
		if err != nil {
			return nil, fmt.Errorf("fluentsql: batch set %d: %w", i, err)
		}
		items[i] = BatchItem{SQL: p.sql, Args: p.args}
	}

	size := b.size
	if size <= 0 {
		size = b.s.config.BatchSize
	}
	return b.s.execBatch(ctx, conn, items, size)
}

func (b *Batch) named() bool {
	if len(b.sets) == 0 {
		return false
	}
	_, ok := b.sets[0].(named)
	return ok
}
