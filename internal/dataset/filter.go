package dataset

import "strconv"

// Selection maps a column name to the set of admitted values. An empty (or
// nil) value set means "no filter on this column" — clearing a multi-select
// in the dashboard shows everything rather than nothing. Missing values are
// excluded unless MissingToken is among the admitted values. Selections on
// columns the table does not carry are ignored.
type Selection map[string][]string

// Filter derives the view that satisfies every active column filter (logical
// AND). The input table is not modified. Cost is a single pass over the rows
// regardless of how many columns are selected on.
func Filter(t *Table, sel Selection) *Table {
	type colFilter struct {
		col          *column
		admitText    map[string]bool
		admitInts    map[int64]bool
		admitMissing bool
	}

	var active []colFilter
	for name, values := range sel {
		if len(values) == 0 {
			continue
		}
		i, ok := t.index[name]
		if !ok {
			continue
		}
		f := colFilter{col: t.cols[i]}
		if f.col.kind == KindInt {
			f.admitInts = make(map[int64]bool, len(values))
			for _, v := range values {
				if v == MissingToken {
					f.admitMissing = true
					continue
				}
				if n, err := strconv.ParseInt(v, 10, 64); err == nil {
					f.admitInts[n] = true
				}
			}
		} else {
			f.admitText = make(map[string]bool, len(values))
			for _, v := range values {
				if v == MissingToken {
					f.admitMissing = true
					continue
				}
				f.admitText[v] = true
			}
		}
		active = append(active, f)
	}

	if len(active) == 0 {
		return t
	}

	keep := make([]int, 0, t.rows)
rows:
	for r := 0; r < t.rows; r++ {
		for _, f := range active {
			if f.col.missing[r] {
				if !f.admitMissing {
					continue rows
				}
				continue
			}
			if f.col.kind == KindInt {
				if !f.admitInts[f.col.ints[r]] {
					continue rows
				}
			} else if !f.admitText[f.col.text[r]] {
				continue rows
			}
		}
		keep = append(keep, r)
	}
	return t.take(keep)
}
