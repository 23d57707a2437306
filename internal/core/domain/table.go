package domain

// Table is the in-memory result of a fetch: a header row and data rows.
// Values are kept as the provider sent them; no schema is applied.
type Table struct {
	// Columns holds the column names in order.
	Columns []string

	// Rows holds data rows; each row has len(Columns) values.
	Rows [][]string
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns the values of column i in row order.
// It returns nil when i is out of range.
func (t *Table) Column(i int) []string {
	if t == nil || i < 0 || i >= len(t.Columns) {
		return nil
	}
	values := make([]string, len(t.Rows))
	for r, row := range t.Rows {
		if i < len(row) {
			values[r] = row[i]
		}
	}
	return values
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
