package fluentsql

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// colKind classifies the strategy for scanning a result column into a struct field.
type colKind uint8

const (
	ckSink  colKind = iota // column is ignored, scan into sink
	ckField                // scan into the field's address (Scanner, *T or value)
)

// fieldInfo describes a leaf field: its full index path, and whether
// several fields share its name.
type fieldInfo struct {
	index     []int
	ambiguous bool
}

// scanPlan describes how to map each result column to a struct field (immutable).
type scanPlan struct {
	kinds []colKind
	fPath [][]int
}

// planKey identifies a scanPlan by destination struct type and the column signature.
type planKey struct {
	dstType reflect.Type
	sig     string
}

var (
	scannerIface    = reflect.TypeFor[sql.Scanner]()
	fieldIndexCache = mustLRU[reflect.Type, map[string]fieldInfo](cacheSize)
	scanPlanCache   = mustLRU[planKey, *scanPlan](cacheSize)
)

func mustLRU[K comparable, V any](size int) *lru.Cache[K, V] {
	c, err := lru.New[K, V](size)
	if err != nil {
		panic(err)
	}
	return c
}

// scanOne scans the current row into dest. It supports:
//   - pointer to Scanner types (with exactly one column)
//   - primitives (with exactly one column)
//   - structs (flattened mapping via `db` tags or field names)
func scanOne(rows Rows, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("fluentsql: dest must be a non-nil pointer")
	}
	rv = rv.Elem()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	if isLeaf(rv.Type()) {
		if len(cols) != 1 {
			return fmt.Errorf("fluentsql: Scan on type %s requires 1 column, got %d", rv.Type(), len(cols))
		}
		return rows.Scan(rv.Addr().Interface())
	}

	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		rv = rv.Elem()
	}
	plan, err := getScanPlan(cols, rv.Type())
	if err != nil {
		return err
	}
	return plan.scan(rows, rv)
}

// scanAll appends up to max rows (all if max <= 0) to the slice dest points
// to. Elements may be structs, pointers to structs, or single-column leaves.
func scanAll(rows Rows, dest any, max int) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("fluentsql: dest must be a non-nil pointer")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("fluentsql: ScanAll requires a pointer to slice")
	}
	rv.Set(rv.Slice(0, 0))

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	elemT := rv.Type().Elem()
	isPtr := elemT.Kind() == reflect.Pointer && !isLeaf(elemT)
	structT := elemT
	if isPtr {
		structT = elemT.Elem()
		if structT.Kind() != reflect.Struct {
			return fmt.Errorf("fluentsql: slice of pointers to non-struct")
		}
	}

	var plan *scanPlan
	if isLeaf(structT) {
		if len(cols) != 1 {
			return fmt.Errorf("fluentsql: ScanAll on slice of non-struct requires 1 column, got %d", len(cols))
		}
	} else if plan, err = getScanPlan(cols, structT); err != nil {
		return err
	}

	for n := 0; max <= 0 || n < max; n++ {
		if !rows.Next() {
			break
		}
		item := reflect.New(structT)
		if plan == nil {
			err = rows.Scan(item.Interface())
		} else {
			err = plan.scan(rows, item.Elem())
		}
		if err != nil {
			return err
		}
		if isPtr {
			rv.Set(reflect.Append(rv, item))
		} else {
			rv.Set(reflect.Append(rv, item.Elem()))
		}
	}
	return rows.Err()
}

// scan reads the current row into dst, a settable struct value.
func (p *scanPlan) scan(rows Rows, dst reflect.Value) error {
	targets := make([]any, len(p.kinds))
	for i, k := range p.kinds {
		switch k {
		case ckSink:
			targets[i] = new(any)
		case ckField:
			targets[i] = fieldByIndexAlloc(dst, p.fPath[i]).Addr().Interface()
		}
	}
	return rows.Scan(targets...)
}

// isLeaf reports whether t is scanned as a single column: anything that is
// not a (pointer to) struct, plus Scanner implementations and time.Time.
func isLeaf(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if reflect.PointerTo(t).Implements(scannerIface) || t.Implements(scannerIface) {
		return true
	}
	return t.Kind() != reflect.Struct || t == timeType
}

// getScanPlan returns a cached scanPlan for (dst struct type, cols), or builds and caches it.
// The returned plan is immutable and safe for concurrent reuse.
func getScanPlan(cols []string, dstT reflect.Type) (*scanPlan, error) {
	key := planKey{dstType: dstT, sig: strings.Join(cols, "\x1f")}
	if p, ok := scanPlanCache.Get(key); ok {
		return p, nil
	}

	fmap := fieldIndexMap(dstT)
	p := &scanPlan{
		kinds: make([]colKind, len(cols)),
		fPath: make([][]int, len(cols)),
	}
	for i, col := range cols {
		fi, ok := fmap[col]
		if !ok {
			continue // unmapped column, sink it
		}
		if fi.ambiguous {
			return nil, fmt.Errorf("%w: %q", ErrFieldAmbiguous, col)
		}
		p.kinds[i] = ckField
		p.fPath[i] = fi.index
	}

	scanPlanCache.Add(key, p)
	return p, nil
}

// fieldIndexMap returns a mapping from column name → fieldInfo for struct
// type t. It flattens nested structs (excluding leaves such as time.Time)
// and honors `db:"name"` tags; `db:"-"` skips a field.
func fieldIndexMap(t reflect.Type) map[string]fieldInfo {
	if m, ok := fieldIndexCache.Get(t); ok {
		return m
	}

	m := make(map[string]fieldInfo, t.NumField())
	visited := map[reflect.Type]bool{}

	var walk func(rt reflect.Type, path []int)
	walk = func(rt reflect.Type, path []int) {
		if visited[rt] {
			return
		}
		visited[rt] = true
		defer delete(visited, rt)

		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if !f.IsExported() {
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "-" {
				continue
			}
			name := f.Name
			if tag != "" {
				if n, _, _ := strings.Cut(tag, ","); n != "" {
					name = n
				}
			}

			ft := f.Type
			if ft.Kind() == reflect.Pointer && !isLeaf(ft) {
				ft = ft.Elem()
			}
			if !isLeaf(ft) {
				walk(ft, appendIndex(path, i))
				continue
			}

			if _, exists := m[name]; exists {
				m[name] = fieldInfo{ambiguous: true}
				continue
			}
			m[name] = fieldInfo{index: appendIndex(path, i)}
		}
	}

	walk(t, nil)
	fieldIndexCache.Add(t, m)
	return m
}

// appendIndex returns a new index path with idx appended.
func appendIndex(path []int, idx int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = idx
	return out
}

// fieldByIndexAlloc walks a struct by index path, allocating intermediate
// pointer nodes on the way (but NOT allocating the leaf pointer itself).
func fieldByIndexAlloc(root reflect.Value, path []int) reflect.Value {
	v := root
	for i, idx := range path {
		f := v.Field(idx)
		if i == len(path)-1 {
			return f
		}
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				f.Set(reflect.New(f.Type().Elem()))
			}
			v = f.Elem()
		} else {
			v = f
		}
	}
	return v
}

// getValueByPath extracts the value at the end of path from root.
// A nil pointer along the path yields (nil, true), i.e. SQL NULL.
func getValueByPath(root reflect.Value, path []int) (any, bool) {
	v := root
	for i, idx := range path {
		v = deIndirect(v)
		if !v.IsValid() || v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
			return nil, true
		}
		if v.Kind() != reflect.Struct {
			return nil, false
		}
		v = v.Field(idx)
		if i == len(path)-1 {
			if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
				return nil, true
			}
			return v.Interface(), true
		}
	}
	return nil, false
}

// deIndirect unwraps interface and pointers until a concrete value (or nil).
func deIndirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}
