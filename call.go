package fluentsql

import "context"

// Call assembles a callable statement. Values implementing OutParameter
// (see Out) register out parameters instead of binding inputs.
// Like Query it is single-use.
type Call struct {
	s      *FluentSQL
	sql    string
	params params
	done   bool
}

// CallResult is the outcome of a callable statement.
type CallResult struct {
	Result
	outs map[int]any
}

// Out returns the destination of the out parameter bound at the 1-based
// index, or nil. Destinations allocated for bare SQLTypes are sql.Null*
// pointers.
func (r *CallResult) Out(index int) any {
	return r.outs[index]
}

// Param appends one positional parameter.
func (c *Call) Param(v any) *Call {
	c.params.add(v)
	return c
}

// Params appends positional parameters.
func (c *Call) Params(vs ...any) *Call {
	c.params.add(vs...)
	return c
}

// NamedParam sets the value bound to :name.
func (c *Call) NamedParam(name string, v any) *Call {
	c.params.addNamed(map[string]any{name: v})
	return c
}

// NamedParams sets several named values.
func (c *Call) NamedParams(m map[string]any) *Call {
	c.params.addNamed(m)
	return c
}

// Err returns the first error recorded while adding parameters.
func (c *Call) Err() error {
	return c.params.err
}

// Exec runs the callable statement. Out destinations are filled by the
// driver.
func (c *Call) Exec(ctx context.Context, conn Conn) (*CallResult, error) {
	if c.done {
		return nil, ErrAlreadyExecuted
	}
	c.done = true
	if c.params.err != nil {
		return nil, c.params.err
	}
	p, err := c.s.prepare(c.sql, c.params.bound, true)
	if err != nil {
		return nil, err
	}
	res, err := c.s.exec(ctx, conn, p)
	if err != nil {
		return nil, err
	}
	return &CallResult{Result: res, outs: p.outs}, nil
}
