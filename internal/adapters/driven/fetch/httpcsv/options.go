package httpcsv

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Recognised PARAMS keys.
const (
	ParamSep            = "sep"
	ParamDelimiter      = "delimiter"
	ParamHeader         = "header"
	ParamNames          = "names"
	ParamSkipRows       = "skiprows"
	ParamNRows          = "nrows"
	ParamUseCols        = "usecols"
	ParamComment        = "comment"
	ParamEncoding       = "encoding"
	ParamStorageOptions = "storage_options"
)

// readOptions is the parsed form of a source's PARAMS.
type readOptions struct {
	delimiter rune
	comment   rune

	// headerRow is the record index holding column names; -1 means none.
	headerRow int
	names     []string

	skipFirst int
	skipRows  map[int]bool

	// nrows limits data rows; -1 means all.
	nrows int

	useCols []any

	encoding encoding.Encoding
	headers  map[string]string
}

func defaultOptions() readOptions {
	return readOptions{
		delimiter: ',',
		headerRow: 0,
		nrows:     -1,
	}
}

// parseOptions validates PARAMS. Unknown keys and malformed values are errors.
func parseOptions(params map[string]any) (readOptions, error) {
	opts := defaultOptions()
	_, headerSet := params[ParamHeader]
	_, hasSep := params[ParamSep]
	if _, hasDelim := params[ParamDelimiter]; hasSep && hasDelim {
		return opts, fmt.Errorf("PARAMS: %s and %s are mutually exclusive", ParamSep, ParamDelimiter)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := params[key]
		var err error
		switch key {
		case ParamSep, ParamDelimiter:
			opts.delimiter, err = singleRune(value)
			if err == nil && (opts.delimiter == '"' || opts.delimiter == '\n' || opts.delimiter == '\r') {
				err = fmt.Errorf("%q cannot be used as a delimiter", opts.delimiter)
			}
		case ParamHeader:
			if value == nil {
				opts.headerRow = -1
				break
			}
			opts.headerRow, err = nonNegativeInt(value)
		case ParamNames:
			opts.names, err = stringList(value)
		case ParamSkipRows:
			err = opts.setSkipRows(value)
		case ParamNRows:
			if value == nil {
				break
			}
			opts.nrows, err = nonNegativeInt(value)
		case ParamUseCols:
			if value == nil {
				break
			}
			opts.useCols, err = colList(value)
		case ParamComment:
			if value == nil {
				break
			}
			opts.comment, err = singleRune(value)
		case ParamEncoding:
			if value == nil {
				break
			}
			opts.encoding, err = lookupEncoding(value)
		case ParamStorageOptions:
			opts.headers, err = stringMap(value)
		default:
			err = fmt.Errorf("unsupported option")
		}
		if err != nil {
			return opts, fmt.Errorf("PARAMS %s: %w", key, err)
		}
	}

	// Explicit names without a header row mean the file has no header.
	if len(opts.names) > 0 && !headerSet {
		opts.headerRow = -1
	}
	if opts.comment != 0 && opts.comment == opts.delimiter {
		return opts, fmt.Errorf("PARAMS %s: same as delimiter", ParamComment)
	}
	return opts, nil
}

func (o *readOptions) setSkipRows(value any) error {
	if value == nil {
		return nil
	}
	if list, ok := value.([]any); ok {
		o.skipRows = make(map[int]bool, len(list))
		for _, item := range list {
			n, err := nonNegativeInt(item)
			if err != nil {
				return err
			}
			o.skipRows[n] = true
		}
		return nil
	}
	n, err := nonNegativeInt(value)
	if err != nil {
		return err
	}
	o.skipFirst = n
	return nil
}

// skipLine reports whether physical record i is dropped before parsing.
func (o *readOptions) skipLine(i int) bool {
	return i < o.skipFirst || o.skipRows[i]
}

func singleRune(value any) (rune, error) {
	s, ok := value.(string)
	if !ok {
		return 0, fmt.Errorf("expected a string, got %T", value)
	}
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("expected a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func nonNegativeInt(value any) (int, error) {
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case uint64:
		if v > math.MaxInt32 {
			return 0, fmt.Errorf("value %d out of range", v)
		}
		n = int(v)
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt32 {
			return 0, fmt.Errorf("expected an integer, got %v", v)
		}
		n = int(v)
	default:
		return 0, fmt.Errorf("expected an integer, got %T", value)
	}
	if n < 0 {
		return 0, fmt.Errorf("expected a non-negative integer, got %d", n)
	}
	return n, nil
}

func stringList(value any) ([]string, error) {
	list, ok := value.([]any)
	if !ok {
		if strs, ok := value.([]string); ok {
			return strs, nil
		}
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
	out := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		s := fmt.Sprint(item)
		if seen[s] {
			return nil, fmt.Errorf("duplicate name %q", s)
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// colList accepts column names and indices; each element is a string or int.
func colList(value any) ([]any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
			continue
		}
		n, err := nonNegativeInt(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func stringMap(value any) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", value)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("empty header name")
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

func lookupEncoding(value any) (encoding.Encoding, error) {
	name, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %T", value)
	}
	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "utf-8", "utf8", "utf_8":
		return nil, nil
	case "latin1", "latin-1", "l1":
		normalized = "iso-8859-1"
	}
	enc, err := htmlindex.Get(normalized)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc, nil
}
