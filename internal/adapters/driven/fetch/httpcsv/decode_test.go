package httpcsv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

func decode(t *testing.T, body string, params map[string]any) (*domain.Table, error) {
	t.Helper()
	opts, err := parseOptions(params)
	require.NoError(t, err)
	return decodeTable(strings.NewReader(body), opts)
}

func TestDecodeTable_Basic(t *testing.T) {
	table, err := decode(t, "city,temp\nOslo,3\nRome,18\n", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"city", "temp"}, table.Columns)
	assert.Equal(t, [][]string{{"Oslo", "3"}, {"Rome", "18"}}, table.Rows)
}

func TestDecodeTable_QuotedFields(t *testing.T) {
	table, err := decode(t, "a,b\n\"x, y\",\"line1\nline2\"\n", nil)
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	assert.Equal(t, "x, y", table.Rows[0][0])
	assert.Equal(t, "line1\nline2", table.Rows[0][1])
}

func TestDecodeTable_StripsBOM(t *testing.T) {
	table, err := decode(t, "\xEF\xBB\xBFcity,temp\nOslo,3\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "city", table.Columns[0])
}

func TestDecodeTable_Delimiter(t *testing.T) {
	table, err := decode(t, "a;b\n1;2\n", map[string]any{"sep": ";"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Columns)
	assert.Equal(t, [][]string{{"1", "2"}}, table.Rows)
}

func TestDecodeTable_NoHeader(t *testing.T) {
	table, err := decode(t, "1,2\n3,4\n", map[string]any{"header": nil})
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, table.Columns)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, table.Rows)
}

func TestDecodeTable_Names(t *testing.T) {
	table, err := decode(t, "1,2\n3,4\n", map[string]any{"names": []any{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, table.Columns)
	assert.Len(t, table.Rows, 2)

	// Names replacing an existing header row.
	table, err = decode(t, "a,b\n3,4\n", map[string]any{"names": []any{"x", "y"}, "header": 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, table.Columns)
	assert.Equal(t, [][]string{{"3", "4"}}, table.Rows)
}

func TestDecodeTable_HeaderRow(t *testing.T) {
	body := "generated by provider\ncity,temp\nOslo,3\n"
	table, err := decode(t, body, map[string]any{"header": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "temp"}, table.Columns)
	assert.Equal(t, [][]string{{"Oslo", "3"}}, table.Rows)
}

func TestDecodeTable_SkipRows(t *testing.T) {
	body := "title\nsubtitle\ncity,temp\nOslo,3\nRome,18\n"
	table, err := decode(t, body, map[string]any{"skiprows": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "temp"}, table.Columns)
	assert.Len(t, table.Rows, 2)

	table, err = decode(t, "city,temp\nOslo,3\nRome,18\n", map[string]any{"skiprows": []any{1}})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Rome", "18"}}, table.Rows)
}

func TestDecodeTable_NRows(t *testing.T) {
	table, err := decode(t, "a\n1\n2\n3\n", map[string]any{"nrows": 2})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}, {"2"}}, table.Rows)

	table, err = decode(t, "a\n1\n2\n", map[string]any{"nrows": 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, table.Columns)
	assert.Empty(t, table.Rows)
}

func TestDecodeTable_UseCols(t *testing.T) {
	body := "a,b,c\n1,2,3\n4,5,6\n"
	table, err := decode(t, body, map[string]any{"usecols": []any{"c", 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, table.Columns, "file order is kept")
	assert.Equal(t, [][]string{{"1", "3"}, {"4", "6"}}, table.Rows)
}

func TestDecodeTable_Comment(t *testing.T) {
	table, err := decode(t, "# exported\na,b\n#skipped\n1,2\n", map[string]any{"comment": "#"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, table.Columns)
	assert.Equal(t, [][]string{{"1", "2"}}, table.Rows)
}

func TestDecodeTable_Encoding(t *testing.T) {
	// "Zürich" in ISO-8859-1.
	body := "city\nZ\xfcrich\n"
	table, err := decode(t, body, map[string]any{"encoding": "latin1"})
	require.NoError(t, err)
	assert.Equal(t, "Zürich", table.Rows[0][0])
}

func TestDecodeTable_PadsShortRows(t *testing.T) {
	table, err := decode(t, "a,b,c\n1\n", nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "", ""}}, table.Rows)
}

func TestDecodeTable_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		params map[string]any
	}{
		{"empty", "", nil},
		{"only blank lines", "\n\n", nil},
		{"long row", "a,b\n1,2,3\n", nil},
		{"bad quote", "a,b\n\"unterminated,2\n", nil},
		{"bare quote", "a,b\nx\"y,2\n", nil},
		{"unknown usecol", "a,b\n1,2\n", map[string]any{"usecols": []any{"z"}}},
		{"usecol index", "a,b\n1,2\n", map[string]any{"usecols": []any{5}}},
		{"too few names", "a,b,c\n1,2,3\n", map[string]any{"names": []any{"x"}, "header": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, tt.body, tt.params)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrPermanent)
		})
	}
}
