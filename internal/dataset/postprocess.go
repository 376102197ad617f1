package dataset

import (
	"strconv"
	"strings"
)

// Column names the postprocessor and auditors recognize. Features degrade
// gracefully when a column is absent; nothing outside this set is touched.
const (
	ColumnYear     = "Year"
	ColumnAgeGroup = "AgeGroup"
	ColumnPcrKey   = "PcrKey"
	ColumnDivision = "USCensusDivision"
)

// ageGroupLevels is the fixed ordered bracket domain for AgeGroup. Ordering
// is by bracket, not alphabetic, and must survive into every aggregation.
var ageGroupLevels = []string{"0-24", "25-34", "35-44", "45-54", "55-64", "65-74", "75-84", "85+"}

// AgeGroupLevels returns the ordered AgeGroup bracket domain.
func AgeGroupLevels() []string {
	return append([]string(nil), ageGroupLevels...)
}

// Postprocess applies schema-aware coercion after raw parsing: the Year
// column becomes an integer column (unparseable values turn missing, never
// error), and AgeGroup gets the fixed ordered bracket domain attached, with
// out-of-domain values marked missing. Other columns pass through untouched.
// The function is pure and idempotent: running it on its own output yields
// an identical table.
func Postprocess(t *Table) *Table {
	out := t.clone()

	if i, ok := out.index[ColumnYear]; ok && out.cols[i].kind == KindText {
		c := out.cols[i]
		ints := make([]int64, t.rows)
		missing := make([]bool, t.rows)
		for r := 0; r < t.rows; r++ {
			if c.missing[r] {
				missing[r] = true
				continue
			}
			v, err := strconv.ParseInt(strings.TrimSpace(c.text[r]), 10, 64)
			if err != nil {
				// Pandas-style coercion: bad years become missing.
				missing[r] = true
				continue
			}
			ints[r] = v
		}
		c.kind = KindInt
		c.text = nil
		c.ints = ints
		c.missing = missing
	}

	if i, ok := out.index[ColumnAgeGroup]; ok {
		c := out.cols[i]
		inDomain := make(map[string]bool, len(ageGroupLevels))
		for _, lv := range ageGroupLevels {
			inDomain[lv] = true
		}
		for r := 0; r < t.rows; r++ {
			if !c.missing[r] && !inDomain[c.text[r]] {
				c.missing[r] = true
			}
		}
		c.levels = append([]string(nil), ageGroupLevels...)
	}

	return out
}
