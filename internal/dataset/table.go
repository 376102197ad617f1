package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the storage type of a column.
type Kind int

const (
	// KindText stores values as free text.
	KindText Kind = iota
	// KindInt stores values as 64-bit integers.
	KindInt
)

// MissingToken is the admitted-value spelling that a filter selection uses to
// include rows whose value is missing.
const MissingToken = "(missing)"

// column is the storage unit of a Table. Exactly one of text/ints is
// populated depending on kind; missing marks absent values in either case.
type column struct {
	name    string
	kind    Kind
	text    []string
	ints    []int64
	missing []bool
	levels  []string
}

// Table is an immutable, column-major table of crash records. The column set
// is fixed at construction; every pipeline stage (postprocess, normalize,
// filter) derives a new Table instead of mutating its input, so a loaded
// snapshot can be shared across requests without locking.
type Table struct {
	cols  []*column
	index map[string]int
	rows  int
}

// New builds a Table from a header row and text records. Every value starts
// as text; structurally empty cells are marked missing. Type coercion is the
// postprocessor's job, not the constructor's.
func New(header []string, records [][]string) (*Table, error) {
	index := make(map[string]int, len(header))
	cols := make([]*column, 0, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		index[name] = i
		cols = append(cols, &column{
			name:    name,
			kind:    KindText,
			text:    make([]string, len(records)),
			missing: make([]bool, len(records)),
		})
	}

	for r, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("record %d has %d fields, header has %d", r+1, len(rec), len(header))
		}
		for c, v := range rec {
			if v == "" {
				cols[c].missing[r] = true
				continue
			}
			cols[c].text[r] = v
		}
	}

	return &Table{cols: cols, index: index, rows: len(records)}, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Columns returns the column names in table order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.name
	}
	return names
}

// Has reports whether the table carries the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnKind returns the storage kind of the named column.
func (t *Table) ColumnKind(name string) (Kind, bool) {
	i, ok := t.index[name]
	if !ok {
		return KindText, false
	}
	return t.cols[i].kind, true
}

// Levels returns the ordered domain attached to the named column, or nil when
// the column is unordered.
func (t *Table) Levels(name string) []string {
	i, ok := t.index[name]
	if !ok || t.cols[i].levels == nil {
		return nil
	}
	out := make([]string, len(t.cols[i].levels))
	copy(out, t.cols[i].levels)
	return out
}

// Value returns the string form of a cell and whether it is present.
func (t *Table) Value(name string, row int) (string, bool) {
	i, ok := t.index[name]
	if !ok || row < 0 || row >= t.rows {
		return "", false
	}
	return t.cols[i].valueString(row)
}

// Int returns the integer value of a cell in an integer column.
func (t *Table) Int(name string, row int) (int64, bool) {
	i, ok := t.index[name]
	if !ok || row < 0 || row >= t.rows {
		return 0, false
	}
	c := t.cols[i]
	if c.kind != KindInt || c.missing[row] {
		return 0, false
	}
	return c.ints[row], true
}

// MissingCount returns the number of missing values in the named column.
func (t *Table) MissingCount(name string) int {
	i, ok := t.index[name]
	if !ok {
		return 0
	}
	n := 0
	for _, m := range t.cols[i].missing {
		if m {
			n++
		}
	}
	return n
}

// Distinct returns the observed non-missing values of a column. A column
// with an ordered domain lists values in domain order; integer columns sort
// ascending; plain text columns sort lexicographically so multi-select
// controls render stably.
func (t *Table) Distinct(name string) []string {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	c := t.cols[i]

	seen := make(map[string]bool)
	var values []string
	for r := 0; r < t.rows; r++ {
		v, present := c.valueString(r)
		if !present || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}

	switch {
	case c.levels != nil:
		ordered := make([]string, 0, len(values))
		for _, lv := range c.levels {
			if seen[lv] {
				ordered = append(ordered, lv)
			}
		}
		return ordered
	case c.kind == KindInt:
		sort.Slice(values, func(a, b int) bool {
			x, _ := strconv.ParseInt(values[a], 10, 64)
			y, _ := strconv.ParseInt(values[b], 10, 64)
			return x < y
		})
	default:
		sort.Strings(values)
	}
	return values
}

// Row materializes a single row as string values aligned with Columns().
// Missing cells come back as empty strings.
func (t *Table) Row(row int) []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		if v, ok := c.valueString(row); ok {
			out[i] = v
		}
	}
	return out
}

func (c *column) valueString(row int) (string, bool) {
	if c.missing[row] {
		return "", false
	}
	if c.kind == KindInt {
		return strconv.FormatInt(c.ints[row], 10), true
	}
	return c.text[row], true
}

// clone produces a deep copy whose columns can be rewritten by a pipeline
// stage before the new table is published.
func (t *Table) clone() *Table {
	cols := make([]*column, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.clone()
	}
	index := make(map[string]int, len(t.index))
	for k, v := range t.index {
		index[k] = v
	}
	return &Table{cols: cols, index: index, rows: t.rows}
}

func (c *column) clone() *column {
	out := &column{name: c.name, kind: c.kind}
	if c.text != nil {
		out.text = append([]string(nil), c.text...)
	}
	if c.ints != nil {
		out.ints = append([]int64(nil), c.ints...)
	}
	out.missing = append([]bool(nil), c.missing...)
	if c.levels != nil {
		out.levels = append([]string(nil), c.levels...)
	}
	return out
}

// take materializes a derived table containing only the given rows, in order.
func (t *Table) take(rows []int) *Table {
	cols := make([]*column, len(t.cols))
	for i, c := range t.cols {
		nc := &column{name: c.name, kind: c.kind, missing: make([]bool, len(rows))}
		if c.levels != nil {
			nc.levels = append([]string(nil), c.levels...)
		}
		if c.kind == KindInt {
			nc.ints = make([]int64, len(rows))
			for j, r := range rows {
				nc.ints[j] = c.ints[r]
				nc.missing[j] = c.missing[r]
			}
		} else {
			nc.text = make([]string, len(rows))
			for j, r := range rows {
				nc.text[j] = c.text[r]
				nc.missing[j] = c.missing[r]
			}
		}
		cols[i] = nc
	}
	index := make(map[string]int, len(t.index))
	for k, v := range t.index {
		index[k] = v
	}
	return &Table{cols: cols, index: index, rows: len(rows)}
}
