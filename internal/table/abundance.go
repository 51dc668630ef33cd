// Package table holds the feature x sample abundance table and per-feature
// metadata that travel alongside fingerprints through matching and merging.
package table

import (
	"fmt"
	"math"

	"github.com/23skdu/qemistree/internal/core"
)

// Abundance is a dense feature x sample table of non-negative intensities.
// Feature and sample order is insertion order. Abundance values are treated
// as immutable; every transformation returns a new table.
type Abundance struct {
	Features []string
	Samples  []string
	// Values is indexed [feature][sample].
	Values [][]float64

	fidx map[string]int
	sidx map[string]int
}

// NewAbundance validates shapes, identifier uniqueness and non-negativity.
func NewAbundance(features, samples []string, values [][]float64) (*Abundance, error) {
	if len(features) != len(values) {
		return nil, core.NewInvalidArgumentError("values",
			fmt.Sprintf("%d features but %d rows", len(features), len(values)))
	}
	sidx := make(map[string]int, len(samples))
	for j, s := range samples {
		if _, dup := sidx[s]; dup {
			return nil, core.NewInvalidArgumentError("samples", "duplicate sample "+s)
		}
		sidx[s] = j
	}
	fidx := make(map[string]int, len(features))
	for i, f := range features {
		if _, dup := fidx[f]; dup {
			return nil, core.NewInvalidArgumentError("features", "duplicate feature "+f)
		}
		if len(values[i]) != len(samples) {
			return nil, core.NewInvalidArgumentError("values",
				fmt.Sprintf("feature %s has %d values, want %d", f, len(values[i]), len(samples)))
		}
		for j, v := range values[i] {
			if v < 0 || math.IsNaN(v) {
				return nil, core.NewInvalidArgumentError("values",
					fmt.Sprintf("feature %s sample %s has invalid abundance %g", f, samples[j], v))
			}
		}
		fidx[f] = i
	}
	return &Abundance{Features: features, Samples: samples, Values: values, fidx: fidx, sidx: sidx}, nil
}

// Empty reports whether the table has no features or no samples.
func (a *Abundance) Empty() bool {
	return a == nil || len(a.Features) == 0 || len(a.Samples) == 0
}

// Has reports whether feature id is present.
func (a *Abundance) Has(id string) bool {
	_, ok := a.fidx[id]
	return ok
}

// Row returns the abundances of one feature.
func (a *Abundance) Row(id string) ([]float64, bool) {
	i, ok := a.fidx[id]
	if !ok {
		return nil, false
	}
	return a.Values[i], true
}

// Value returns a single cell.
func (a *Abundance) Value(feature, sample string) (float64, bool) {
	i, ok := a.fidx[feature]
	if !ok {
		return 0, false
	}
	j, ok := a.sidx[sample]
	if !ok {
		return 0, false
	}
	return a.Values[i][j], true
}

// Subset returns the rows for ids, in that order.
func (a *Abundance) Subset(ids []string) (*Abundance, error) {
	values := make([][]float64, len(ids))
	for i, id := range ids {
		row, ok := a.Row(id)
		if !ok {
			return nil, core.NewInvalidArgumentError("ids", "feature not in table: "+id)
		}
		values[i] = append([]float64(nil), row...)
	}
	return NewAbundance(append([]string(nil), ids...), append([]string(nil), a.Samples...), values)
}

// Collapse re-keys every row by key(feature) and sums rows sharing a key.
// Output rows follow the first occurrence of each key.
func (a *Abundance) Collapse(key func(feature string) string) (*Abundance, error) {
	var keys []string
	pos := make(map[string]int)
	var values [][]float64
	for i, f := range a.Features {
		k := key(f)
		p, ok := pos[k]
		if !ok {
			p = len(keys)
			pos[k] = p
			keys = append(keys, k)
			values = append(values, make([]float64, len(a.Samples)))
		}
		for j, v := range a.Values[i] {
			values[p][j] += v
		}
	}
	return NewAbundance(keys, append([]string(nil), a.Samples...), values)
}

// Relabel renames features in place of position: labels[i] replaces
// a.Features[i]. Duplicate labels are summed.
func (a *Abundance) Relabel(labels []string) (*Abundance, error) {
	if len(labels) != len(a.Features) {
		return nil, core.NewInvalidArgumentError("labels",
			fmt.Sprintf("%d labels for %d features", len(labels), len(a.Features)))
	}
	byFeature := make(map[string]string, len(labels))
	for i, f := range a.Features {
		byFeature[f] = labels[i]
	}
	return a.Collapse(func(f string) string { return byFeature[f] })
}

// OuterMerge unions tables over features and samples. Cells absent from a
// table read as zero. When two tables both carry the same feature and
// sample with different values the merge fails with OverlapConflictError.
func OuterMerge(tables ...*Abundance) (*Abundance, error) {
	if len(tables) == 0 {
		return nil, core.NewEmptyInputError("merge_tables", "no tables to merge")
	}
	var features, samples []string
	fpos := make(map[string]int)
	spos := make(map[string]int)
	for _, t := range tables {
		for _, f := range t.Features {
			if _, ok := fpos[f]; !ok {
				fpos[f] = len(features)
				features = append(features, f)
			}
		}
		for _, s := range t.Samples {
			if _, ok := spos[s]; !ok {
				spos[s] = len(samples)
				samples = append(samples, s)
			}
		}
	}

	values := make([][]float64, len(features))
	seen := make([][]bool, len(features))
	for i := range values {
		values[i] = make([]float64, len(samples))
		seen[i] = make([]bool, len(samples))
	}
	for _, t := range tables {
		for i, f := range t.Features {
			fi := fpos[f]
			for j, s := range t.Samples {
				sj := spos[s]
				v := t.Values[i][j]
				if seen[fi][sj] && values[fi][sj] != v {
					return nil, &core.OverlapConflictError{
						Feature: f,
						Sample:  s,
						Values:  [2]float64{values[fi][sj], v},
					}
				}
				values[fi][sj] = v
				seen[fi][sj] = true
			}
		}
	}
	return NewAbundance(features, samples, values)
}
