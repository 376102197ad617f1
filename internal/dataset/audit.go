package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// DuplicateCause classifies why rows share an incident key that should be
// unique.
type DuplicateCause string

const (
	// CauseCrossPeriod means the group spans more than one reporting period.
	CauseCrossPeriod DuplicateCause = "cross_period"
	// CauseMultiSubject means per-subject fields differ, suggesting several
	// patients were recorded under one incident key.
	CauseMultiSubject DuplicateCause = "multi_subject"
	// CauseRevision means timestamp fields differ, suggesting a re-filed
	// record.
	CauseRevision DuplicateCause = "revision"
	// CauseUnexplained means none of the hypotheses hold; the group is most
	// likely a single-field data-entry correction.
	CauseUnexplained DuplicateCause = "unexplained"
)

// AuditConfig names the columns each duplicate hypothesis inspects.
type AuditConfig struct {
	// PeriodColumn distinguishes reporting periods (cross-period check).
	PeriodColumn string
	// SubjectColumns describe the person attached to a record (multi-subject
	// check).
	SubjectColumns []string
	// TimePattern is a substring matched against column names to find
	// timestamp columns (revision check).
	TimePattern string
}

// DefaultAuditConfig matches the NEMSIS crash export schema.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		PeriodColumn:   ColumnYear,
		SubjectColumns: []string{"Gender", "AgeGroup", "AgeUnits"},
		TimePattern:    "Time",
	}
}

// DuplicateGroup is the set of rows sharing one value of the key column.
type DuplicateGroup struct {
	Key  string `json:"key"`
	Rows []int  `json:"rows"`
}

// CauseReport is the outcome of classifying one duplicate group.
type CauseReport struct {
	Cause DuplicateCause `json:"cause"`
	// DifferingColumns lists every column whose values are not constant
	// across the group. For an unexplained group this is the single-field
	// correction evidence.
	DifferingColumns []string `json:"differing_columns,omitempty"`
}

// ColumnMissingness is the missing-value share of one column.
type ColumnMissingness struct {
	Column   string  `json:"column"`
	Fraction float64 `json:"fraction"`
}

// FindDuplicateGroups groups rows by the key column and returns only the
// groups with more than one row, sorted by key for deterministic reports.
// Rows with a missing key are skipped: absence of an identifier is a
// missingness problem, not a duplication problem.
func FindDuplicateGroups(t *Table, keyColumn string) ([]DuplicateGroup, error) {
	if !t.Has(keyColumn) {
		return nil, fmt.Errorf("duplicates: %w: %s", ErrColumnNotFound, keyColumn)
	}
	byKey := make(map[string][]int)
	for r := 0; r < t.rows; r++ {
		v, ok := t.Value(keyColumn, r)
		if !ok {
			continue
		}
		byKey[v] = append(byKey[v], r)
	}

	var groups []DuplicateGroup
	for k, rows := range byKey {
		if len(rows) > 1 {
			groups = append(groups, DuplicateGroup{Key: k, Rows: rows})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups, nil
}

// ClassifyDuplicateCause evaluates the duplicate hypotheses in order:
// cross-period, multi-subject, revision. When none hold the group is
// reported unexplained together with the columns that actually differ.
func ClassifyDuplicateCause(t *Table, group DuplicateGroup, cfg AuditConfig) CauseReport {
	if t.Has(cfg.PeriodColumn) && countDistinct(t, cfg.PeriodColumn, group.Rows) > 1 {
		return CauseReport{Cause: CauseCrossPeriod, DifferingColumns: []string{cfg.PeriodColumn}}
	}

	var subjectDiff []string
	for _, name := range cfg.SubjectColumns {
		if t.Has(name) && countDistinct(t, name, group.Rows) > 1 {
			subjectDiff = append(subjectDiff, name)
		}
	}
	if len(subjectDiff) > 0 {
		return CauseReport{Cause: CauseMultiSubject, DifferingColumns: subjectDiff}
	}

	var timeDiff []string
	for _, name := range t.Columns() {
		if cfg.TimePattern != "" && strings.Contains(name, cfg.TimePattern) &&
			countDistinct(t, name, group.Rows) > 1 {
			timeDiff = append(timeDiff, name)
		}
	}
	if len(timeDiff) > 0 {
		return CauseReport{Cause: CauseRevision, DifferingColumns: timeDiff}
	}

	var differing []string
	for _, name := range t.Columns() {
		if countDistinct(t, name, group.Rows) > 1 {
			differing = append(differing, name)
		}
	}
	return CauseReport{Cause: CauseUnexplained, DifferingColumns: differing}
}

// MissingnessReport returns, per column, the fraction of rows with a missing
// value, sorted descending. Ties keep table column order.
func MissingnessReport(t *Table) []ColumnMissingness {
	if t.rows == 0 {
		return nil
	}
	out := make([]ColumnMissingness, 0, len(t.cols))
	for _, c := range t.cols {
		n := 0
		for _, m := range c.missing {
			if m {
				n++
			}
		}
		out = append(out, ColumnMissingness{
			Column:   c.name,
			Fraction: float64(n) / float64(t.rows),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Fraction > out[j].Fraction })
	return out
}

// countDistinct counts distinct values of a column across the given rows,
// with missing treated as its own value so a present/absent pair counts as a
// difference.
func countDistinct(t *Table, name string, rows []int) int {
	seen := make(map[string]bool, 2)
	for _, r := range rows {
		v, ok := t.Value(name, r)
		if !ok {
			v = MissingToken
		}
		seen[v] = true
	}
	return len(seen)
}
