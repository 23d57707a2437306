package httpcsv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/transform"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// malformed marks a payload problem that retrying cannot fix.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrPermanent, fmt.Sprintf(format, args...))
}

// decodeTable parses CSV from r according to opts.
func decodeTable(r io.Reader, opts readOptions) (*domain.Table, error) {
	if opts.encoding != nil {
		r = transform.NewReader(r, opts.encoding.NewDecoder())
	}
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = opts.delimiter
	cr.Comment = opts.comment
	cr.FieldsPerRecord = -1

	table := &domain.Table{}
	width := -1
	record := -1
	parsed := 0

	for {
		if width >= 0 && opts.nrows >= 0 && len(table.Rows) >= opts.nrows {
			break
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, malformed("%v", perr)
			}
			return nil, fmt.Errorf("reading body: %w", err)
		}

		record++
		if opts.skipLine(record) {
			continue
		}
		parsed++

		if width < 0 {
			// Still looking for the header.
			if opts.headerRow >= 0 && parsed-1 < opts.headerRow {
				continue
			}
			columns, err := resolveColumns(rec, opts)
			if err != nil {
				return nil, err
			}
			table.Columns = columns
			width = len(columns)
			if opts.headerRow >= 0 {
				continue
			}
		}

		if len(rec) > width {
			line, _ := cr.FieldPos(0)
			return nil, malformed("line %d: %d fields, expected %d", line, len(rec), width)
		}
		row := rec
		if len(rec) < width {
			row = make([]string, width)
			copy(row, rec)
		}
		table.Rows = append(table.Rows, row)
	}

	if width <= 0 {
		return nil, malformed("no columns to parse")
	}
	if len(opts.useCols) > 0 {
		return selectColumns(table, opts.useCols)
	}
	return table, nil
}

// resolveColumns returns the column names given the first usable record.
func resolveColumns(first []string, opts readOptions) ([]string, error) {
	if len(opts.names) > 0 {
		if len(opts.names) < len(first) && opts.headerRow >= 0 {
			return nil, malformed("%d names for %d header fields", len(opts.names), len(first))
		}
		return append([]string(nil), opts.names...), nil
	}
	if opts.headerRow >= 0 {
		return append([]string(nil), first...), nil
	}
	columns := make([]string, len(first))
	for i := range columns {
		columns[i] = strconv.Itoa(i)
	}
	return columns, nil
}

// selectColumns keeps the requested columns in their original order.
func selectColumns(table *domain.Table, useCols []any) (*domain.Table, error) {
	keep := make([]bool, len(table.Columns))
	for _, col := range useCols {
		switch c := col.(type) {
		case string:
			i := table.ColumnIndex(c)
			if i < 0 {
				return nil, malformed("usecols: no column %q", c)
			}
			keep[i] = true
		case int:
			if c >= len(table.Columns) {
				return nil, malformed("usecols: index %d out of range", c)
			}
			keep[c] = true
		}
	}

	out := &domain.Table{}
	var idx []int
	for i, k := range keep {
		if k {
			idx = append(idx, i)
			out.Columns = append(out.Columns, table.Columns[i])
		}
	}
	out.Rows = make([][]string, len(table.Rows))
	for r, row := range table.Rows {
		sel := make([]string, len(idx))
		for j, i := range idx {
			sel[j] = row[i]
		}
		out.Rows[r] = sel
	}
	return out, nil
}
