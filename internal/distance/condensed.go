// Package distance computes condensed pairwise distance matrices over the
// rows of a dataset.
package distance

import (
	"fmt"

	"github.com/23skdu/qemistree/internal/core"
	"gonum.org/v1/gonum/mat"
)

// Condensed is the upper triangle of a symmetric, zero-diagonal distance
// matrix stored row-major, the same layout scipy's pdist uses. Pair (i,j)
// with i<j lives at Index(n, i, j).
type Condensed struct {
	IDs    []string
	Values []float64
}

// NewCondensed checks that values has n(n-1)/2 entries for n ids.
func NewCondensed(ids []string, values []float64) (*Condensed, error) {
	n := len(ids)
	if want := Size(n); len(values) != want {
		return nil, core.NewInvalidArgumentError("values",
			fmt.Sprintf("%d distances for %d ids, want %d", len(values), n, want))
	}
	return &Condensed{IDs: ids, Values: values}, nil
}

// Size returns the condensed length for n observations.
func Size(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// Index returns the condensed position of pair (i,j), i != j.
func Index(n, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return n*i - i*(i+1)/2 + (j - i - 1)
}

// N returns the number of observations.
func (c *Condensed) N() int { return len(c.IDs) }

// At returns the distance between rows i and j.
func (c *Condensed) At(i, j int) float64 {
	if i == j {
		return 0
	}
	return c.Values[Index(c.N(), i, j)]
}

// Square expands the condensed form into a full symmetric matrix. It
// returns nil for fewer than one observation.
func (c *Condensed) Square() *mat.SymDense {
	n := c.N()
	if n == 0 {
		return nil
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out.SetSym(i, j, c.At(i, j))
		}
	}
	return out
}
