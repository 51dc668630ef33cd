// Package search finds structurally similar features with an HNSW graph
// over fingerprint probability rows. It is exploratory and never feeds
// tree construction.
package search

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/coder/hnsw"
	"github.com/rs/zerolog"
)

// Neighbor is one search hit.
type Neighbor struct {
	Label    string
	Distance float32
}

// FeatureIndex maps canonical labels to probability vectors in an HNSW
// graph using cosine distance.
type FeatureIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	logger  zerolog.Logger
	skipped []string
}

// NewFeatureIndex indexes every row of ds. Rows with an all-zero
// probability vector have no direction under cosine distance and are left
// out; Skipped lists them.
func NewFeatureIndex(ds *dataset.Dataset, logger zerolog.Logger) (*FeatureIndex, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, core.NewEmptyInputError("search", "no rows to index")
	}
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance

	idx := &FeatureIndex{graph: g, logger: logger}
	nodes := make([]hnsw.Node[string], 0, ds.Len())
	for i, label := range ds.Labels() {
		vec := toFloat32(ds.Probabilities.RawRow(i))
		if zero(vec) {
			idx.skipped = append(idx.skipped, label)
			continue
		}
		nodes = append(nodes, hnsw.MakeNode(label, vec))
	}
	if len(nodes) == 0 {
		return nil, core.NewEmptyInputError("search", "every probability row is zero")
	}
	g.Add(nodes...)

	logger.Info().
		Int("indexed", len(nodes)).
		Int("skipped", len(idx.skipped)).
		Msg("Built feature index")
	return idx, nil
}

// Len returns the number of indexed labels.
func (f *FeatureIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.graph.Len()
}

// Skipped returns labels left out of the index.
func (f *FeatureIndex) Skipped() []string { return f.skipped }

// Neighbors returns up to k indexed labels closest to label, nearest
// first, excluding label itself.
func (f *FeatureIndex) Neighbors(label string, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, core.NewInvalidArgumentError("k", fmt.Sprintf("must be positive, got %d", k))
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	vec, ok := f.graph.Lookup(label)
	if !ok {
		return nil, core.NewInvalidArgumentError("label", "not indexed: "+label)
	}
	return f.search(vec, k, label), nil
}

// Nearest returns up to k labels closest to an arbitrary probability
// vector.
func (f *FeatureIndex) Nearest(probs []float64, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, core.NewInvalidArgumentError("k", fmt.Sprintf("must be positive, got %d", k))
	}
	vec := toFloat32(probs)
	if zero(vec) {
		return nil, core.NewInvalidArgumentError("probabilities", "zero vector")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if dims := f.graph.Dims(); dims != len(vec) {
		return nil, core.NewInvalidArgumentError("probabilities",
			fmt.Sprintf("vector has %d dimensions, index has %d", len(vec), dims))
	}
	return f.search(vec, k, ""), nil
}

func (f *FeatureIndex) search(vec []float32, k int, exclude string) []Neighbor {
	want := k
	if exclude != "" {
		want++
	}
	hits := f.graph.Search(vec, want)
	out := make([]Neighbor, 0, len(hits))
	for _, h := range hits {
		if h.Key == exclude {
			continue
		}
		d := hnsw.CosineDistance(vec, h.Value)
		if math.IsNaN(float64(d)) {
			continue
		}
		out = append(out, Neighbor{Label: h.Key, Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func zero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
