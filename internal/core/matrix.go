package core

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a feature x substructure table of fingerprint probabilities.
// Rows keep insertion order; Columns hold absolute substructure identifiers.
// A Matrix is never mutated after construction; derived matrices are copies.
type Matrix struct {
	IDs     []string
	Columns []string

	// data is nil when the matrix has no rows or no columns; gonum does
	// not allow zero-sized dense matrices.
	data  *mat.Dense
	index map[string]int
}

// NewMatrix validates shapes and copies values into a dense matrix. Row
// identifiers must be unique.
func NewMatrix(ids, columns []string, values [][]float64) (*Matrix, error) {
	if len(ids) != len(values) {
		return nil, NewInvalidArgumentError("values", fmt.Sprintf("%d ids but %d rows", len(ids), len(values)))
	}
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return nil, NewInvalidArgumentError("ids", "duplicate row identifier "+id)
		}
		if len(values[i]) != len(columns) {
			return nil, NewInvalidArgumentError("values",
				fmt.Sprintf("row %s has %d values, want %d", id, len(values[i]), len(columns)))
		}
		index[id] = i
	}
	m := &Matrix{IDs: ids, Columns: columns, index: index}
	if len(ids) > 0 && len(columns) > 0 {
		m.data = mat.NewDense(len(ids), len(columns), nil)
		for i, row := range values {
			m.data.SetRow(i, row)
		}
	}
	return m, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return len(m.IDs) }

// Width returns the number of columns.
func (m *Matrix) Width() int { return len(m.Columns) }

// Empty reports whether the matrix has no rows or no columns.
func (m *Matrix) Empty() bool { return m == nil || len(m.IDs) == 0 || len(m.Columns) == 0 }

// Dense exposes the backing matrix, nil when Empty. Callers must not
// modify it.
func (m *Matrix) Dense() *mat.Dense { return m.data }

// RawRow returns row i as a view into the backing storage. Callers must
// not modify it.
func (m *Matrix) RawRow(i int) []float64 {
	if m.data == nil {
		return []float64{}
	}
	return m.data.RawRowView(i)
}

// Row returns the values for id as a read-only view.
func (m *Matrix) Row(id string) ([]float64, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return m.RawRow(i), true
}

// Has reports whether id is a row of m.
func (m *Matrix) Has(id string) bool {
	_, ok := m.index[id]
	return ok
}

// SelectRows returns a new matrix restricted to ids, in the given order.
func (m *Matrix) SelectRows(ids []string) (*Matrix, error) {
	values := make([][]float64, len(ids))
	for i, id := range ids {
		row, ok := m.Row(id)
		if !ok {
			return nil, NewInvalidArgumentError("ids", "unknown row "+id)
		}
		values[i] = row
	}
	return NewMatrix(append([]string(nil), ids...), append([]string(nil), m.Columns...), values)
}

// SelectColumns returns a new matrix keeping only the listed columns,
// preserving m's column order. Unknown columns are ignored.
func (m *Matrix) SelectColumns(keep map[string]bool) *Matrix {
	var cols []string
	var pos []int
	for j, c := range m.Columns {
		if keep[c] {
			cols = append(cols, c)
			pos = append(pos, j)
		}
	}
	values := make([][]float64, len(m.IDs))
	for i := range m.IDs {
		row := m.RawRow(i)
		out := make([]float64, len(pos))
		for k, j := range pos {
			out[k] = row[j]
		}
		values[i] = out
	}
	out, _ := NewMatrix(append([]string(nil), m.IDs...), cols, values)
	return out
}
