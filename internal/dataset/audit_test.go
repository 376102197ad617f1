package dataset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crashHeader() []string {
	return []string{"PcrKey", "Year", "Gender", "AgeGroup", "AgeUnits", "Race", "IncidentTime"}
}

func TestFindDuplicateGroups(t *testing.T) {
	table := Postprocess(mustTable(t, crashHeader(), [][]string{
		{"B2", "2020", "Male", "0-24", "Years", "White", "08:00"},
		{"A1", "2020", "Male", "0-24", "Years", "White", "08:00"},
		{"A1", "2021", "Male", "0-24", "Years", "White", "08:00"},
		{"", "2020", "Female", "85+", "Years", "Black", "09:00"},
		{"", "2020", "Female", "85+", "Years", "Black", "09:00"},
	}))

	groups, err := FindDuplicateGroups(table, "PcrKey")
	require.NoError(t, err)

	// Only keys seen more than once; missing keys are skipped entirely.
	require.Len(t, groups, 1)
	assert.Equal(t, "A1", groups[0].Key)
	assert.Equal(t, []int{1, 2}, groups[0].Rows)
}

func TestFindDuplicateGroups_SortedByKey(t *testing.T) {
	table := mustTable(t,
		[]string{"PcrKey"},
		[][]string{{"Z9"}, {"Z9"}, {"A1"}, {"A1"}})

	groups, err := FindDuplicateGroups(table, "PcrKey")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "A1", groups[0].Key)
	assert.Equal(t, "Z9", groups[1].Key)
}

func TestFindDuplicateGroups_UnknownColumn(t *testing.T) {
	table := mustTable(t, []string{"Gender"}, [][]string{{"Male"}})
	_, err := FindDuplicateGroups(table, "PcrKey")
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}

func TestClassifyDuplicateCause(t *testing.T) {
	tests := []struct {
		name          string
		rows          [][]string
		wantCause     DuplicateCause
		wantDiffering []string
	}{
		{
			name: "cross period",
			rows: [][]string{
				{"A1", "2020", "Male", "0-24", "Years", "White", "08:00"},
				{"A1", "2021", "Male", "0-24", "Years", "White", "08:00"},
			},
			wantCause:     CauseCrossPeriod,
			wantDiffering: []string{"Year"},
		},
		{
			name: "multi subject",
			rows: [][]string{
				{"A1", "2020", "Male", "0-24", "Years", "White", "08:00"},
				{"A1", "2020", "Female", "85+", "Years", "White", "08:00"},
			},
			wantCause:     CauseMultiSubject,
			wantDiffering: []string{"Gender", "AgeGroup"},
		},
		{
			name: "revision via timestamp column",
			rows: [][]string{
				{"A1", "2020", "Male", "0-24", "Years", "White", "08:00"},
				{"A1", "2020", "Male", "0-24", "Years", "White", "09:30"},
			},
			wantCause:     CauseRevision,
			wantDiffering: []string{"IncidentTime"},
		},
		{
			name: "unexplained single-field correction",
			rows: [][]string{
				{"A1", "2020", "Male", "0-24", "Years", "White", "08:00"},
				{"A1", "2020", "Male", "0-24", "Years", "Black", "08:00"},
			},
			wantCause:     CauseUnexplained,
			wantDiffering: []string{"Race"},
		},
		{
			name: "cross period wins over subject differences",
			rows: [][]string{
				{"A1", "2020", "Male", "0-24", "Years", "White", "08:00"},
				{"A1", "2021", "Female", "85+", "Years", "Black", "09:00"},
			},
			wantCause:     CauseCrossPeriod,
			wantDiffering: []string{"Year"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Postprocess(mustTable(t, crashHeader(), tt.rows))
			groups, err := FindDuplicateGroups(table, "PcrKey")
			require.NoError(t, err)
			require.Len(t, groups, 1)

			report := ClassifyDuplicateCause(table, groups[0], DefaultAuditConfig())
			assert.Equal(t, tt.wantCause, report.Cause)
			assert.Equal(t, tt.wantDiffering, report.DifferingColumns)
		})
	}
}

func TestClassifyDuplicateCause_MissingCountsAsDistinct(t *testing.T) {
	// One row has a recorded gender, the other does not: the present/absent
	// pair is a subject difference.
	table := Postprocess(mustTable(t, crashHeader(), [][]string{
		{"A1", "2020", "Male", "0-24", "Years", "White", "08:00"},
		{"A1", "2020", "", "0-24", "Years", "White", "08:00"},
	}))

	groups, err := FindDuplicateGroups(table, "PcrKey")
	require.NoError(t, err)
	require.Len(t, groups, 1)

	report := ClassifyDuplicateCause(table, groups[0], DefaultAuditConfig())
	assert.Equal(t, CauseMultiSubject, report.Cause)
	assert.Equal(t, []string{"Gender"}, report.DifferingColumns)
}

func TestMissingnessReport(t *testing.T) {
	table := mustTable(t,
		[]string{"PcrKey", "Race", "Gender"},
		[][]string{
			{"A1", "", "Male"},
			{"A2", "", "Female"},
			{"A3", "", "Male"},
			{"A4", "White", ""},
			{"A5", "White", "Male"},
			{"A6", "White", "Female"},
			{"A7", "White", "Male"},
			{"A8", "White", "Female"},
			{"A9", "White", "Male"},
			{"A10", "White", "Female"},
		})

	report := MissingnessReport(table)
	require.Len(t, report, 3)

	// Worst column first.
	assert.Equal(t, "Race", report[0].Column)
	assert.InDelta(t, 0.3, report[0].Fraction, 1e-9)
	assert.Equal(t, "Gender", report[1].Column)
	assert.InDelta(t, 0.1, report[1].Fraction, 1e-9)
	assert.Equal(t, "PcrKey", report[2].Column)
	assert.Zero(t, report[2].Fraction)
}

func TestMissingnessReport_TiesKeepColumnOrder(t *testing.T) {
	table := mustTable(t,
		[]string{"B", "A"},
		[][]string{{"x", "y"}})

	report := MissingnessReport(table)
	require.Len(t, report, 2)
	assert.Equal(t, "B", report[0].Column)
	assert.Equal(t, "A", report[1].Column)
}

func TestMissingnessReport_EmptyTable(t *testing.T) {
	table := mustTable(t, []string{"A"}, nil)
	assert.Nil(t, MissingnessReport(table))
}
