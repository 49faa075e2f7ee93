package fluentsql

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// scalar is a wrapper to force scalar binding semantics.
type scalar struct {
	v any
}

// Scalar wraps a value to force it to be treated as a single scalar argument
// even if it is a slice/array. Useful for ANY(:ids)-style idioms.
func Scalar(v any) any {
	return scalar{v: v}
}

// Transformed is a named template rewritten to positional placeholders.
type Transformed struct {
	// SQL is the statement with dialect-specific positional placeholders.
	SQL string
	// Positions maps each name to the strictly increasing 1-based
	// placeholder positions it occupies in SQL.
	Positions map[string][]int
	// Count is the total number of placeholders in SQL.
	Count int
}

// parsedSQL is the lexical form of a template: literal text around each
// placeholder. len(parts) == len(names)+1.
type parsedSQL struct {
	parts   []string
	names   []string
	offsets []int // byte offset of each placeholder in the template
}

// transformer lexes named templates once and renders them per call.
// It is safe for concurrent use.
type transformer struct {
	dialect Dialect
	config  Config
	cache   *lru.Cache[string, *parsedSQL]
}

func newTransformer(dialect Dialect, config Config) *transformer {
	t := &transformer{dialect: dialect, config: config}
	if config.TemplateCacheSize > 0 {
		t.cache, _ = lru.New[string, *parsedSQL](config.TemplateCacheSize)
	}
	return t
}

// parse returns the cached lexical form of q, lexing it on a miss. Two
// goroutines missing on the same template both lex it; the results are
// identical.
func (t *transformer) parse(q string) (*parsedSQL, error) {
	if t.cache != nil {
		if p, ok := t.cache.Get(q); ok {
			return p, nil
		}
	}
	p, err := lex(t.dialect, q, t.config.MaxNameLen)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		t.cache.Add(q, p)
	}
	return p, nil
}

// Transform renders q with positional placeholders. Collection values in
// params widen their placeholder to one slot per element.
func (t *transformer) Transform(q string, params map[string]any) (Transformed, error) {
	p, err := t.parse(q)
	if err != nil {
		return Transformed{}, err
	}

	var buf strings.Builder
	// Small oversizing to reduce reallocations; some dialects emit longer tokens.
	extraPer := 1
	switch t.dialect {
	case Postgres, SQLServer:
		extraPer = 4
	}
	buf.Grow(len(q) + 16 + len(p.names)*extraPer)

	positions := make(map[string][]int, len(p.names))
	n := 0
	for i, name := range p.names {
		buf.WriteString(p.parts[i])

		v, ok := params[name]
		if !ok {
			return Transformed{}, fmt.Errorf("%w: %q near %q", ErrUnknownNamedParameter, name, fragment(q, p.offsets[i]))
		}

		width := 1
		if ln, isColl := collectionLen(v); isColl {
			if ln == 0 {
				return Transformed{}, fmt.Errorf("%w: %q near %q", ErrEmptyCollection, name, fragment(q, p.offsets[i]))
			}
			width = ln
		}
		if t.config.MaxParams > 0 && n+width > t.config.MaxParams {
			return Transformed{}, fmt.Errorf("%w: requested=%d, limit=%d", ErrTooManyParams, n+width, t.config.MaxParams)
		}

		for k := 0; k < width; k++ {
			if k > 0 {
				buf.WriteString(", ")
			}
			n++
			writePlaceholder(&buf, t.dialect, n)
			positions[name] = append(positions[name], n)
		}
	}
	buf.WriteString(p.parts[len(p.parts)-1])

	return Transformed{SQL: buf.String(), Positions: positions, Count: n}, nil
}

// expand lays the named values out in placeholder order: a scalar is copied
// to every position of its name, a collection contributes its elements in
// order, restarting at each occurrence of the name. names[i] is the name
// bound at position i+1.
func expand(tr Transformed, params map[string]any) (values []any, names []string) {
	values = make([]any, tr.Count)
	names = make([]string, tr.Count)
	for name, pos := range tr.Positions {
		v := params[name]
		rv, isColl := elements(v)
		if sc, ok := v.(scalar); ok {
			v = sc.v
		}
		for k, at := range pos {
			if isColl {
				values[at-1] = rv.Index(k % rv.Len()).Interface()
			} else {
				values[at-1] = v
			}
			names[at-1] = name
		}
	}
	return values, names
}

// collectionLen reports whether v expands to several placeholders, and how
// many.
func collectionLen(v any) (int, bool) {
	rv, ok := elements(v)
	if !ok {
		return 0, false
	}
	return rv.Len(), true
}

// elements returns v as an indexable reflect.Value when v is a slice or
// array that expands. Scalar wrappers, driver.Valuers, out parameters and
// byte slices/arrays bind as one value.
func elements(v any) (reflect.Value, bool) {
	switch v.(type) {
	case nil, scalar, driver.Valuer, OutParameter, []byte:
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return reflect.Value{}, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return reflect.Value{}, false
	}
	return rv, true
}

// lex walks q and splits it around :name placeholders. A small state machine
// keeps quoted strings, quoted identifiers and comments intact.
func lex(dialect Dialect, q string, maxNameLen int) (*parsedSQL, error) {
	p := &parsedSQL{}
	var cur strings.Builder
	cur.Grow(len(q))

	var dqTag string // active dollar-quoted tag (Postgres-like)

	// State machine for safe parsing through strings, comments, identifiers, etc.
	const (
		sText = iota
		sSQ   // '...'
		sDQ   // "..."
		sBT   // `...` (MySQL/SQLite)
		sBR   // [...] (SQL Server)
		sLC   // line comment -- or # (MySQL only)
		sBC   // block comment /* ... */
		sDQD  // $tag$ ... $tag$ (dollar-quoted)
	)
	state := sText

	for i := 0; i < len(q); {
		c := q[i]

		switch state {
		case sText:
			// Enter/exit helper states while preserving the raw text
			if c == '-' && i+1 < len(q) && q[i+1] == '-' {
				state = sLC
				cur.WriteString("--")
				i += 2
				continue
			}
			if c == '#' && dialect == MySQL {
				state = sLC
				cur.WriteByte('#')
				i++
				continue
			}
			if c == '/' && i+1 < len(q) && q[i+1] == '*' {
				state = sBC
				cur.WriteString("/*")
				i += 2
				continue
			}
			if c == '\'' {
				state = sSQ
				cur.WriteByte(c)
				i++
				continue
			}
			if c == '"' {
				state = sDQ
				cur.WriteByte(c)
				i++
				continue
			}
			if c == '`' && (dialect == MySQL || dialect == SQLite) {
				state = sBT
				cur.WriteByte(c)
				i++
				continue
			}
			if c == '[' && dialect == SQLServer {
				state = sBR
				cur.WriteByte(c)
				i++
				continue
			}
			if c == '$' {
				if tag, ok := readDollarTag(q[i:]); ok {
					state = sDQD
					dqTag = tag
					cur.WriteString(tag)
					i += len(tag)
					continue
				}
			}

			if c == ':' && !(i > 0 && q[i-1] == ':') {
				// '::' cast
				if i+1 < len(q) && q[i+1] == ':' {
					cur.WriteString("::")
					i += 2
					continue
				}
				if i+1 == len(q) || isMarkerTerminator(q[i+1]) {
					return nil, fmt.Errorf("%w: missing name at offset %d near %q", ErrMalformedPlaceholder, i, fragment(q, i))
				}
				if isAlphaUnderscore(q[i+1]) {
					k := i + 2
					for k < len(q) && isAlphaNumUnderscore(q[k]) {
						k++
					}
					name := q[i+1 : k]
					if maxNameLen > 0 && len(name) > maxNameLen {
						return nil, fmt.Errorf("%w: %q (%d > %d)", ErrParamNameTooLong, name, len(name), maxNameLen)
					}
					p.parts = append(p.parts, cur.String())
					p.names = append(p.names, name)
					p.offsets = append(p.offsets, i)
					cur.Reset()
					i = k
					continue
				}
			}

			cur.WriteByte(c)
			i++

		case sSQ:
			// Only MySQL escapes with backslashes inside string literals.
			if c == '\\' && dialect == MySQL {
				cur.WriteByte(c)
				i++
				if i < len(q) {
					cur.WriteByte(q[i])
					i++
				}
				continue
			}
			cur.WriteByte(c)
			i++
			if c == '\'' {
				if i < len(q) && q[i] == '\'' {
					cur.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sDQ:
			cur.WriteByte(c)
			i++
			if c == '"' {
				if i < len(q) && q[i] == '"' {
					cur.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sBT:
			cur.WriteByte(c)
			i++
			if c == '`' {
				if i < len(q) && q[i] == '`' {
					cur.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sBR:
			cur.WriteByte(c)
			i++
			if c == ']' {
				if i < len(q) && q[i] == ']' {
					cur.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sLC:
			cur.WriteByte(c)
			i++
			if c == '\n' || c == '\r' {
				state = sText
			}

		case sBC:
			cur.WriteByte(c)
			i++
			if c == '*' && i < len(q) && q[i] == '/' {
				cur.WriteByte('/')
				i++
				state = sText
			}

		case sDQD:
			end := strings.Index(q[i:], dqTag)
			if end < 0 {
				cur.WriteString(q[i:])
				i = len(q)
			} else {
				cur.WriteString(q[i : i+end])
				cur.WriteString(dqTag)
				i += end + len(dqTag)
				dqTag = ""
				state = sText
			}
		}
	}

	p.parts = append(p.parts, cur.String())
	return p, nil
}

// writePlaceholder emits a dialect-specific placeholder token for argument idx.
func writePlaceholder(b *strings.Builder, d Dialect, idx int) {
	switch d {
	case Postgres:
		b.WriteByte('$')
		var tmp [20]byte
		n := strconv.AppendInt(tmp[:0], int64(idx), 10)
		b.Write(n)
	case SQLServer:
		b.WriteString("@p")
		var tmp [20]byte
		n := strconv.AppendInt(tmp[:0], int64(idx), 10)
		b.Write(n)
	default: // MySQL, SQLite
		b.WriteByte('?')
	}
}

// fragment returns up to 16 bytes of q on each side of offset, for error
// messages.
func fragment(q string, offset int) string {
	const span = 16
	lo, hi := offset-span, offset+span
	if lo < 0 {
		lo = 0
	}
	if hi > len(q) {
		hi = len(q)
	}
	return q[lo:hi]
}

// isMarkerTerminator reports whether b right after ':' means the name was
// left out.
func isMarkerTerminator(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', ',', ')', ';':
		return true
	}
	return false
}

// isAlphaUnderscore reports whether b is [A-Za-z_] .
func isAlphaUnderscore(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '_'
}

// isAlphaNumUnderscore reports whether b is [A-Za-z0-9_] .
func isAlphaNumUnderscore(b byte) bool {
	return isAlphaUnderscore(b) || (b >= '0' && b <= '9')
}

// readDollarTag detects a dollar-quoted opening tag ("$tag$") at the start of s.
// It returns the full tag (e.g. "$tag$") and true if found.
func readDollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	j := 1
	for j < len(s) && isAlphaNumUnderscore(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[:j+1], true
	}
	return "", false
}
