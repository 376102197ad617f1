package dataset

import (
	"fmt"
	"sort"
)

// GroupCount is one bucket of a CountBy result. Key holds one value per
// grouping column, in the order the columns were requested.
type GroupCount struct {
	Key   []string `json:"key"`
	Count int      `json:"count"`
}

// HistogramBin is one equal-width bucket of an integer column's distribution.
type HistogramBin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// CountBy groups rows by the given columns and counts each group. Rows with
// a missing value in any grouping column are dropped first, so the result
// never carries a missing bucket and the counts sum to the number of fully
// observed rows.
//
// Ordering: when a grouping column carries an ordered domain (AgeGroup), the
// result follows that domain's order; a univariate count over an unordered
// column sorts by descending count with first-encountered keys breaking
// ties; cross-tabulations destined for heatmaps keep encounter order.
func CountBy(t *Table, columns ...string) ([]GroupCount, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("count: no grouping columns given")
	}
	cols := make([]*column, len(columns))
	for i, name := range columns {
		ci, ok := t.index[name]
		if !ok {
			return nil, fmt.Errorf("count: %w: %s", ErrColumnNotFound, name)
		}
		cols[i] = t.cols[ci]
	}

	type bucket struct {
		key   []string
		count int
		first int
	}
	byKey := make(map[string]*bucket)
	var order []*bucket

rows:
	for r := 0; r < t.rows; r++ {
		key := make([]string, len(cols))
		for i, c := range cols {
			v, ok := c.valueString(r)
			if !ok {
				continue rows
			}
			key[i] = v
		}
		joined := joinKey(key)
		b, ok := byKey[joined]
		if !ok {
			b = &bucket{key: key, first: r}
			byKey[joined] = b
			order = append(order, b)
		}
		b.count++
	}

	// Pick the ordering column: the first grouping column with a domain.
	levelIdx := -1
	var levelRank map[string]int
	for i, c := range cols {
		if c.levels != nil {
			levelIdx = i
			levelRank = make(map[string]int, len(c.levels))
			for rank, lv := range c.levels {
				levelRank[lv] = rank
			}
			break
		}
	}

	switch {
	case levelIdx >= 0:
		sort.SliceStable(order, func(a, b int) bool {
			ra, rb := levelRank[order[a].key[levelIdx]], levelRank[order[b].key[levelIdx]]
			if ra != rb {
				return ra < rb
			}
			return order[a].first < order[b].first
		})
	case len(columns) == 1:
		sort.SliceStable(order, func(a, b int) bool {
			if order[a].count != order[b].count {
				return order[a].count > order[b].count
			}
			return order[a].first < order[b].first
		})
	}

	out := make([]GroupCount, len(order))
	for i, b := range order {
		out[i] = GroupCount{Key: b.key, Count: b.count}
	}
	return out, nil
}

// Histogram bins a non-missing integer column into equal-width buckets.
func Histogram(t *Table, name string, bins int) ([]HistogramBin, error) {
	ci, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("histogram: %w: %s", ErrColumnNotFound, name)
	}
	c := t.cols[ci]
	if c.kind != KindInt {
		return nil, fmt.Errorf("histogram: column %s is not numeric", name)
	}
	if bins <= 0 {
		bins = 50
	}

	var vals []int64
	for r := 0; r < t.rows; r++ {
		if !c.missing[r] {
			vals = append(vals, c.ints[r])
		}
	}
	if len(vals) == 0 {
		return nil, nil
	}

	min, max := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		return []HistogramBin{{Low: float64(min), High: float64(max), Count: len(vals)}}, nil
	}
	if span := int(max - min + 1); span < bins {
		bins = span
	}

	width := float64(max-min) / float64(bins)
	out := make([]HistogramBin, bins)
	for i := range out {
		out[i].Low = float64(min) + width*float64(i)
		out[i].High = float64(min) + width*float64(i+1)
	}
	for _, v := range vals {
		i := int(float64(v-min) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out, nil
}

// joinKey builds a map key from a tuple. \x1f never appears in CSV text.
func joinKey(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	buf := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, 0x1f)
		}
		buf = append(buf, p...)
	}
	return string(buf)
}
