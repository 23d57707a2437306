package httpcsv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions_Defaults(t *testing.T) {
	opts, err := parseOptions(nil)
	require.NoError(t, err)

	assert.Equal(t, ',', opts.delimiter)
	assert.Equal(t, 0, opts.headerRow)
	assert.Equal(t, -1, opts.nrows)
	assert.Nil(t, opts.encoding)
	assert.Empty(t, opts.headers)
}

func TestParseOptions_Valid(t *testing.T) {
	opts, err := parseOptions(map[string]any{
		"sep":      ";",
		"header":   2,
		"names":    []any{"a", "b"},
		"skiprows": 1,
		"nrows":    float64(10),
		"usecols":  []any{"a", 1},
		"comment":  "#",
		"encoding": "latin1",
		"storage_options": map[string]any{
			"Authorization": "Bearer abc",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ';', opts.delimiter)
	assert.Equal(t, 2, opts.headerRow)
	assert.Equal(t, []string{"a", "b"}, opts.names)
	assert.Equal(t, 1, opts.skipFirst)
	assert.Equal(t, 10, opts.nrows)
	assert.Equal(t, []any{"a", 1}, opts.useCols)
	assert.Equal(t, '#', opts.comment)
	assert.NotNil(t, opts.encoding)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc"}, opts.headers)
}

func TestParseOptions_TabDelimiter(t *testing.T) {
	for _, sep := range []string{"\t", `\t`} {
		opts, err := parseOptions(map[string]any{"delimiter": sep})
		require.NoError(t, err)
		assert.Equal(t, '\t', opts.delimiter)
	}
}

func TestParseOptions_HeaderNull(t *testing.T) {
	opts, err := parseOptions(map[string]any{"header": nil})
	require.NoError(t, err)
	assert.Equal(t, -1, opts.headerRow)
}

func TestParseOptions_NamesImplyNoHeader(t *testing.T) {
	opts, err := parseOptions(map[string]any{"names": []any{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, -1, opts.headerRow)

	opts, err = parseOptions(map[string]any{"names": []any{"x", "y"}, "header": 0})
	require.NoError(t, err)
	assert.Equal(t, 0, opts.headerRow)
}

func TestParseOptions_SkipRowsList(t *testing.T) {
	opts, err := parseOptions(map[string]any{"skiprows": []any{0, 2}})
	require.NoError(t, err)

	assert.True(t, opts.skipLine(0))
	assert.False(t, opts.skipLine(1))
	assert.True(t, opts.skipLine(2))
}

func TestParseOptions_UTF8IsNative(t *testing.T) {
	opts, err := parseOptions(map[string]any{"encoding": "UTF-8"})
	require.NoError(t, err)
	assert.Nil(t, opts.encoding)
}

func TestParseOptions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{"unknown key", map[string]any{"index_col": 0}},
		{"multi-char sep", map[string]any{"sep": "::"}},
		{"quote sep", map[string]any{"sep": `"`}},
		{"sep and delimiter", map[string]any{"sep": ",", "delimiter": ";"}},
		{"non-string sep", map[string]any{"sep": 1}},
		{"negative header", map[string]any{"header": -1}},
		{"fractional nrows", map[string]any{"nrows": 1.5}},
		{"string skiprows", map[string]any{"skiprows": "2"}},
		{"names not list", map[string]any{"names": "a,b"}},
		{"duplicate names", map[string]any{"names": []any{"a", "a"}}},
		{"usecols bool", map[string]any{"usecols": []any{true}}},
		{"unknown encoding", map[string]any{"encoding": "klingon"}},
		{"storage_options list", map[string]any{"storage_options": []any{"a"}}},
		{"comment equals sep", map[string]any{"comment": ","}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOptions(tt.params)
			assert.Error(t, err)
		})
	}
}
