package table

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/23skdu/qemistree/internal/core"
)

// Well-known metadata columns.
const (
	// ColumnFeatureID holds the comma-joined original feature identifiers
	// that collapsed into a label.
	ColumnFeatureID = "#featureID"
	// ColumnSource holds the experiment qualifier(s) a label came from.
	ColumnSource = "source"
	// DefaultMassColumn is the precursor m/z column of feature data tables.
	DefaultMassColumn = "row m/z"
)

// Metadata is a string-valued feature x attribute table. Empty strings
// denote missing values.
type Metadata struct {
	IDs     []string
	Columns []string
	Values  [][]string

	index map[string]int
	cols  map[string]int
}

// NewMetadata validates shapes and identifier uniqueness.
func NewMetadata(ids, columns []string, values [][]string) (*Metadata, error) {
	if len(ids) != len(values) {
		return nil, core.NewInvalidArgumentError("values",
			fmt.Sprintf("%d ids but %d rows", len(ids), len(values)))
	}
	cols := make(map[string]int, len(columns))
	for j, c := range columns {
		if _, dup := cols[c]; dup {
			return nil, core.NewInvalidArgumentError("columns", "duplicate column "+c)
		}
		cols[c] = j
	}
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return nil, core.NewInvalidArgumentError("ids", "duplicate row "+id)
		}
		if len(values[i]) != len(columns) {
			return nil, core.NewInvalidArgumentError("values",
				fmt.Sprintf("row %s has %d values, want %d", id, len(values[i]), len(columns)))
		}
		index[id] = i
	}
	return &Metadata{IDs: ids, Columns: columns, Values: values, index: index, cols: cols}, nil
}

// Len returns the number of rows.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}
	return len(m.IDs)
}

// HasColumn reports whether column exists.
func (m *Metadata) HasColumn(column string) bool {
	if m == nil {
		return false
	}
	_, ok := m.cols[column]
	return ok
}

// HasRow reports whether id exists.
func (m *Metadata) HasRow(id string) bool {
	if m == nil {
		return false
	}
	_, ok := m.index[id]
	return ok
}

// Get returns one cell; ok is false when the row or column is absent.
func (m *Metadata) Get(id, column string) (string, bool) {
	if m == nil {
		return "", false
	}
	i, ok := m.index[id]
	if !ok {
		return "", false
	}
	j, ok := m.cols[column]
	if !ok {
		return "", false
	}
	return m.Values[i][j], true
}

// Float parses one cell as a float.
func (m *Metadata) Float(id, column string) (float64, error) {
	v, ok := m.Get(id, column)
	if !ok || strings.TrimSpace(v) == "" {
		return 0, core.NewInvalidArgumentError(column, "missing value for "+id)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, core.NewInvalidArgumentError(column, fmt.Sprintf("non-numeric value %q for %s", v, id))
	}
	return f, nil
}

// Record returns a copy of one row as a column -> value map.
func (m *Metadata) Record(id string) map[string]string {
	out := make(map[string]string, len(m.Columns))
	i, ok := m.index[id]
	if !ok {
		return out
	}
	for j, c := range m.Columns {
		out[c] = m.Values[i][j]
	}
	return out
}

// Builder assembles a Metadata table row by row. Columns are added in first
// use order; rows missing a column read as empty.
type Builder struct {
	ids     []string
	columns []string
	cols    map[string]int
	rows    []map[string]string
	index   map[string]int
}

// NewBuilder returns a builder whose leading columns are fixed.
func NewBuilder(columns ...string) *Builder {
	b := &Builder{cols: make(map[string]int), index: make(map[string]int)}
	for _, c := range columns {
		b.addColumn(c)
	}
	return b
}

func (b *Builder) addColumn(c string) {
	if _, ok := b.cols[c]; !ok {
		b.cols[c] = len(b.columns)
		b.columns = append(b.columns, c)
	}
}

// Set writes fields into row id, creating it if needed.
func (b *Builder) Set(id string, fields map[string]string) {
	i, ok := b.index[id]
	if !ok {
		i = len(b.ids)
		b.index[id] = i
		b.ids = append(b.ids, id)
		b.rows = append(b.rows, make(map[string]string))
	}
	for _, c := range sortedKeys(fields) {
		b.addColumn(c)
		b.rows[i][c] = fields[c]
	}
}

// Row returns the current fields of id, or nil.
func (b *Builder) Row(id string) map[string]string {
	i, ok := b.index[id]
	if !ok {
		return nil
	}
	return b.rows[i]
}

// Build produces the table.
func (b *Builder) Build() (*Metadata, error) {
	values := make([][]string, len(b.ids))
	for i, row := range b.rows {
		out := make([]string, len(b.columns))
		for j, c := range b.columns {
			out[j] = row[c]
		}
		values[i] = out
	}
	return NewMetadata(b.ids, b.columns, values)
}

// JoinField appends value to a comma-joined field, skipping empties.
func JoinField(existing, value string) string {
	switch {
	case value == "":
		return existing
	case existing == "":
		return value
	default:
		return existing + "," + value
	}
}
