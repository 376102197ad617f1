package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostprocess_YearCoercion(t *testing.T) {
	table := mustTable(t,
		[]string{"Year"},
		[][]string{{"2020"}, {" 2021 "}, {"bad"}, {""}})

	out := Postprocess(table)

	kind, ok := out.ColumnKind("Year")
	require.True(t, ok)
	assert.Equal(t, KindInt, kind)

	v, ok := out.Int("Year", 0)
	require.True(t, ok)
	assert.Equal(t, int64(2020), v)

	v, ok = out.Int("Year", 1)
	require.True(t, ok)
	assert.Equal(t, int64(2021), v)

	// Unparseable and empty values turn missing instead of failing the load.
	assert.Equal(t, 2, out.MissingCount("Year"))

	// The input table is untouched.
	kind, _ = table.ColumnKind("Year")
	assert.Equal(t, KindText, kind)
}

func TestPostprocess_AgeGroupDomain(t *testing.T) {
	table := mustTable(t,
		[]string{"AgeGroup"},
		[][]string{{"0-24"}, {"85+"}, {"110-120"}, {""}})

	out := Postprocess(table)

	assert.Equal(t, AgeGroupLevels(), out.Levels("AgeGroup"))
	// Out-of-domain brackets are marked missing, rows are not dropped.
	assert.Equal(t, 4, out.NumRows())
	assert.Equal(t, 2, out.MissingCount("AgeGroup"))
}

func TestPostprocess_Idempotent(t *testing.T) {
	table := mustTable(t,
		[]string{"Year", "AgeGroup", "Gender"},
		[][]string{{"2020", "0-24", "Male"}, {"x", "85+", "Female"}})

	once := Postprocess(table)
	twice := Postprocess(once)

	assert.Equal(t, once.NumRows(), twice.NumRows())
	assert.Equal(t, once.Columns(), twice.Columns())
	for _, name := range once.Columns() {
		assert.Equal(t, once.MissingCount(name), twice.MissingCount(name), name)
		assert.Equal(t, once.Distinct(name), twice.Distinct(name), name)
	}
}

func TestNormalize(t *testing.T) {
	table := mustTable(t,
		[]string{"Gender", "Race"},
		[][]string{
			{"Male", "White"},
			{"  FEMALE ", "Unknown"},
			{"not recorded", "N/A"},
		})

	out := Normalize(table, nil)

	v, _ := out.Value("Gender", 0)
	assert.Equal(t, "male", v)
	v, _ = out.Value("Gender", 1)
	assert.Equal(t, "female", v)

	// Semantic nulls become missing, case-insensitively.
	assert.Equal(t, 1, out.MissingCount("Gender"))
	assert.Equal(t, 2, out.MissingCount("Race"))

	// The input table is untouched.
	v, _ = table.Value("Gender", 1)
	assert.Equal(t, "  FEMALE ", v)
	assert.Equal(t, 0, table.MissingCount("Race"))
}

func TestNormalize_CustomTokens(t *testing.T) {
	table := mustTable(t,
		[]string{"Gender"},
		[][]string{{"Male"}, {"redacted"}, {"unknown"}})

	out := Normalize(table, []string{"redacted"})

	// Only the custom token set applies; "unknown" survives.
	assert.Equal(t, 1, out.MissingCount("Gender"))
	assert.Equal(t, []string{"male", "unknown"}, out.Distinct("Gender"))
}

func TestNormalize_IntColumnsUntouched(t *testing.T) {
	table := Postprocess(mustTable(t,
		[]string{"Year"},
		[][]string{{"2020"}, {"2021"}}))

	out := Normalize(table, nil)
	v, ok := out.Int("Year", 0)
	require.True(t, ok)
	assert.Equal(t, int64(2020), v)
}

func TestFilter(t *testing.T) {
	table := Postprocess(mustTable(t,
		[]string{"Gender", "Year", "Race"},
		[][]string{
			{"Male", "2020", "White"},
			{"Female", "2020", "Black"},
			{"Male", "2021", ""},
			{"", "2021", "White"},
		}))

	t.Run("no selection returns the same table", func(t *testing.T) {
		assert.Same(t, table, Filter(table, nil))
		assert.Same(t, table, Filter(table, Selection{}))
	})

	t.Run("empty value set means no filter on that column", func(t *testing.T) {
		out := Filter(table, Selection{"Gender": {}})
		assert.Equal(t, 4, out.NumRows())
	})

	t.Run("single column", func(t *testing.T) {
		out := Filter(table, Selection{"Gender": {"Male"}})
		assert.Equal(t, 2, out.NumRows())
	})

	t.Run("columns combine with AND", func(t *testing.T) {
		out := Filter(table, Selection{
			"Gender": {"Male"},
			"Year":   {"2020"},
		})
		assert.Equal(t, 1, out.NumRows())
		v, _ := out.Value("Race", 0)
		assert.Equal(t, "White", v)
	})

	t.Run("combined filter equals sequential filtering", func(t *testing.T) {
		combined := Filter(table, Selection{
			"Gender": {"Male"},
			"Year":   {"2020", "2021"},
		})
		sequential := Filter(Filter(table, Selection{"Gender": {"Male"}}),
			Selection{"Year": {"2020", "2021"}})

		require.Equal(t, sequential.NumRows(), combined.NumRows())
		for r := 0; r < combined.NumRows(); r++ {
			assert.Equal(t, sequential.Row(r), combined.Row(r))
		}
	})

	t.Run("missing excluded unless token admitted", func(t *testing.T) {
		out := Filter(table, Selection{"Race": {"White"}})
		assert.Equal(t, 2, out.NumRows())

		out = Filter(table, Selection{"Race": {"White", MissingToken}})
		assert.Equal(t, 3, out.NumRows())
	})

	t.Run("integer column filters by string value", func(t *testing.T) {
		out := Filter(table, Selection{"Year": {"2021"}})
		assert.Equal(t, 2, out.NumRows())
	})

	t.Run("unknown column is ignored", func(t *testing.T) {
		out := Filter(table, Selection{"Nope": {"x"}})
		assert.Equal(t, 4, out.NumRows())
	})

	t.Run("narrowing a selection never grows the result", func(t *testing.T) {
		broad := Filter(table, Selection{"Gender": {"Male", "Female"}})
		narrow := Filter(table, Selection{"Gender": {"Male"}})
		assert.LessOrEqual(t, narrow.NumRows(), broad.NumRows())
	})

	t.Run("input table is not modified", func(t *testing.T) {
		Filter(table, Selection{"Gender": {"Male"}})
		assert.Equal(t, 4, table.NumRows())
	})
}
