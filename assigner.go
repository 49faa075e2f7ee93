package fluentsql

import "fmt"

// BindError reports a parameter that could not be bound. It matches both
// ErrParameterBindingFailed and its cause under errors.Is.
type BindError struct {
	Index int    // 1-based placeholder position
	Name  string // named parameter bound at Index, if any
	Cause error
}

func (e *BindError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: index %d (:%s): %v", ErrParameterBindingFailed, e.Index, e.Name, e.Cause)
	}
	return fmt.Sprintf("%s: index %d: %v", ErrParameterBindingFailed, e.Index, e.Cause)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrParameterBindingFailed, e.Cause}
}

// assign binds values[i] at index i+1 of stmt, stopping at the first
// failure. names, when present, labels each position for error reporting.
func (r *registry) assign(stmt Statement, values []any, names []string) error {
	for i, v := range values {
		if err := r.resolve(v)(v, stmt, i+1); err != nil {
			be := &BindError{Index: i + 1, Cause: err}
			if i < len(names) {
				be.Name = names[i]
			}
			return be
		}
	}
	return nil
}
