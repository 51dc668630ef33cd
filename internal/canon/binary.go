// Package canon binarizes fingerprint probabilities and derives the
// content-addressed labels used as the join key across experiments.
package canon

import (
	"fmt"

	"github.com/23skdu/qemistree/internal/core"
	"github.com/RoaringBitmap/roaring/v2"
)

// Cutoff is the fixed probability above which a substructure counts as
// present. Keeping it fixed makes labels and distances comparable across runs.
const Cutoff = 0.5

// Row is a binarized fingerprint: the set bits are the column positions of
// present substructures. A Row is read-only once built.
type Row struct {
	bits  *roaring.Bitmap
	width int
}

// NewRow builds a row of the given width with the listed positions set.
func NewRow(width int, set ...int) Row {
	bm := roaring.New()
	for _, i := range set {
		if i >= 0 && i < width {
			bm.Add(uint32(i))
		}
	}
	return Row{bits: bm, width: width}
}

// Width returns the number of columns.
func (r Row) Width() int { return r.width }

// Get reports whether position i is set.
func (r Row) Get(i int) bool { return r.bits != nil && r.bits.Contains(uint32(i)) }

// Count returns the number of set positions.
func (r Row) Count() int {
	if r.bits == nil {
		return 0
	}
	return int(r.bits.GetCardinality())
}

// Bits exposes the underlying bitmap. Callers must not modify it.
func (r Row) Bits() *roaring.Bitmap {
	if r.bits == nil {
		return roaring.New()
	}
	return r.bits
}

// Bytes serializes the row as one byte (0 or 1) per column in column order.
func (r Row) Bytes() []byte {
	out := make([]byte, r.width)
	if r.bits == nil {
		return out
	}
	it := r.bits.Iterator()
	for it.HasNext() {
		out[it.Next()] = 1
	}
	return out
}

// Floats returns the row as 0/1 floats.
func (r Row) Floats() []float64 {
	out := make([]float64, r.width)
	for i, b := range r.Bytes() {
		out[i] = float64(b)
	}
	return out
}

// Equal reports whether both rows have the same width and set bits.
func (r Row) Equal(o Row) bool {
	return r.width == o.width && r.Bits().Equals(o.Bits())
}

// Matrix is a binarized fingerprint table. Rows keep insertion order.
type Matrix struct {
	IDs     []string
	Columns []string
	Rows    []Row

	index map[string]int
}

// NewMatrix validates and builds a binary matrix. Row identifiers must be
// unique and every row must be as wide as the column list.
func NewMatrix(ids, columns []string, rows []Row) (*Matrix, error) {
	if len(ids) != len(rows) {
		return nil, core.NewInvalidArgumentError("rows", fmt.Sprintf("%d ids but %d rows", len(ids), len(rows)))
	}
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return nil, core.NewInvalidArgumentError("ids", "duplicate row identifier "+id)
		}
		if rows[i].width != len(columns) {
			return nil, core.NewInvalidArgumentError("rows",
				fmt.Sprintf("row %s has width %d, want %d", id, rows[i].width, len(columns)))
		}
		index[id] = i
	}
	return &Matrix{IDs: ids, Columns: columns, Rows: rows, index: index}, nil
}

// Len returns the number of rows.
func (m *Matrix) Len() int { return len(m.IDs) }

// Row returns the row for id.
func (m *Matrix) Row(id string) (Row, bool) {
	i, ok := m.index[id]
	if !ok {
		return Row{}, false
	}
	return m.Rows[i], true
}

// Binarize thresholds every probability: strictly greater than cutoff maps
// to 1, anything else to 0.
func Binarize(m *core.Matrix, cutoff float64) (*Matrix, error) {
	if m.Empty() {
		return nil, core.NewEmptyInputError("binarize", "fingerprint matrix has no rows or columns")
	}
	if cutoff < 0 || cutoff > 1 {
		return nil, core.NewInvalidArgumentError("cutoff", fmt.Sprintf("%g is not in [0,1]", cutoff))
	}
	rows := make([]Row, m.Rows())
	for i := range m.IDs {
		bm := roaring.New()
		for j, v := range m.RawRow(i) {
			if v > cutoff {
				bm.Add(uint32(j))
			}
		}
		bm.RunOptimize()
		rows[i] = Row{bits: bm, width: m.Width()}
	}
	return NewMatrix(append([]string(nil), m.IDs...), append([]string(nil), m.Columns...), rows)
}
