package distance

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/logging"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// build makes a dataset whose rows are the given probability vectors; the
// binary rows are derived at the usual cutoff. masses may be nil.
func build(t *testing.T, probs [][]float64, masses []string) *dataset.Dataset {
	t.Helper()
	width := len(probs[0])
	ids := make([]string, len(probs))
	cols := make([]string, width)
	for j := range cols {
		cols[j] = fmt.Sprintf("%d", j)
	}
	rows := make([]canon.Row, len(probs))
	ab := make([][]float64, len(probs))
	md := make([][]string, len(probs))
	for i, p := range probs {
		ids[i] = fmt.Sprintf("r%d", i)
		var set []int
		for j, v := range p {
			if v > canon.Cutoff {
				set = append(set, j)
			}
		}
		rows[i] = canon.NewRow(width, set...)
		ab[i] = []float64{1}
		mass := ""
		if masses != nil {
			mass = masses[i]
		}
		md[i] = []string{mass}
	}
	fps, err := canon.NewMatrix(ids, cols, rows)
	require.NoError(t, err)
	pm, err := core.NewMatrix(append([]string(nil), ids...), cols, probs)
	require.NoError(t, err)
	a, err := table.NewAbundance(append([]string(nil), ids...), []string{"s"}, ab)
	require.NoError(t, err)
	m, err := table.NewMetadata(append([]string(nil), ids...), []string{table.DefaultMassColumn}, md)
	require.NoError(t, err)
	ds, err := dataset.New(fps, pm, a, m)
	require.NoError(t, err)
	return ds
}

func TestIndex(t *testing.T) {
	n := 4
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			assert.Equal(t, k, Index(n, i, j))
			assert.Equal(t, k, Index(n, j, i))
			k++
		}
	}
	assert.Equal(t, 6, Size(4))
	assert.Equal(t, 0, Size(1))
	assert.Equal(t, 0, Size(0))
}

func TestNewCondensed_Size(t *testing.T) {
	_, err := NewCondensed([]string{"a", "b", "c"}, []float64{0.1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))

	c, err := NewCondensed([]string{"a", "b", "c"}, []float64{0.1, 0.2, 0.3})
	require.NoError(t, err)
	sq := c.Square()
	n, _ := sq.Dims()
	assert.Equal(t, 3, n)
	assert.Equal(t, 0.0, sq.At(1, 1))
	assert.Equal(t, 0.3, sq.At(2, 1))
	assert.Equal(t, sq.At(1, 2), sq.At(2, 1))
	assert.Equal(t, 0.2, c.At(2, 0))

	empty, err := NewCondensed(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Square())
}

func TestVectorMetrics(t *testing.T) {
	a := []float64{1, 0, 0, 0}
	b := []float64{0, 1, 0, 0}
	assert.InDelta(t, math.Sqrt(2)/2, Euclidean(a, b), 1e-12)
	assert.Equal(t, 0.0, Euclidean(a, a))
	assert.Equal(t, 0.0, Euclidean(nil, nil))

	assert.InDelta(t, 1.0, Cosine(a, b), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{0.2, 0.4}, []float64{0.1, 0.2}), 1e-12)
	assert.Equal(t, 1.0, Cosine([]float64{0, 0}, []float64{0.5, 0.5}))
}

func TestJaccard(t *testing.T) {
	a := canon.NewRow(4, 0, 1).Bits()
	b := canon.NewRow(4, 1, 2).Bits()
	assert.InDelta(t, 1-1.0/3, Jaccard(a, b), 1e-12)
	assert.Equal(t, 0.0, Jaccard(a, a))
	assert.Equal(t, 0.0, Jaccard(canon.NewRow(4).Bits(), canon.NewRow(4).Bits()))
}

func TestJaccardMZ(t *testing.T) {
	zero := canon.NewRow(3).Bits()
	assert.Equal(t, 0.0, JaccardMZ(zero, zero, 100.0, 100.005, 0.01))
	assert.Equal(t, 1.0, JaccardMZ(zero, zero, 100.0, 101.0, 0.01))

	a := canon.NewRow(4, 0, 1).Bits()
	b := canon.NewRow(4, 1, 2).Bits()
	// union 3, intersection 1
	assert.InDelta(t, 1-2.0/4, JaccardMZ(a, b, 10, 10, 0.01), 1e-12)
	assert.InDelta(t, 1-1.0/4, JaccardMZ(a, b, 10, 20, 0.01), 1e-12)
	assert.Equal(t, 0.0, JaccardMZ(a, a, 10, 10, 0.01))
}

func TestEuclideanCosine(t *testing.T) {
	assert.Equal(t, 0.0, Euclidean([]float64{0.2, 0.4}, []float64{0.2, 0.4}))
	assert.InDelta(t, 1.0, Euclidean([]float64{0, 0}, []float64{1, 1}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 1.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.Equal(t, 1.0, Cosine([]float64{0, 0}, []float64{0, 1}))
}

func TestPairwise_SingleRow(t *testing.T) {
	ds := build(t, [][]float64{{0.9, 0.1}}, []string{"100"})
	for _, m := range []core.DistanceMetric{core.MetricJaccard, core.MetricJaccardMZ, core.MetricEuclidean, core.MetricCosine} {
		c, err := NewEngine(logging.DiscardLogger()).Pairwise(ds, m, DefaultOptions())
		require.NoError(t, err, m)
		assert.Empty(t, c.Values, m)
		assert.Equal(t, 1, c.N())
	}
}

func TestPairwise_IdenticalRows(t *testing.T) {
	ds := build(t, [][]float64{{0.9, 0.1, 0.8}, {0.7, 0.2, 0.6}}, []string{"100", "250"})
	c, err := NewEngine(logging.DiscardLogger()).Pairwise(ds, core.MetricJaccard, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, c.Values)
	assert.Equal(t, ds.Labels(), c.IDs)

	// masses differ, so the extra bit is not shared
	c, err = NewEngine(logging.DiscardLogger()).Pairwise(ds, core.MetricJaccardMZ, DefaultOptions())
	require.NoError(t, err)
	assert.InDelta(t, 1-2.0/3, c.Values[0], 1e-12)
}

func TestPairwise_MassAwareEdgeCases(t *testing.T) {
	ds := build(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}, {0.0, 0.1}},
		[]string{"300.000", "300.004", "500.0"})
	c, err := NewEngine(logging.DiscardLogger()).Pairwise(ds, core.MetricJaccardMZ, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.At(0, 1))
	assert.Equal(t, 1.0, c.At(0, 2))
	assert.Equal(t, 1.0, c.At(1, 2))
}

func TestPairwise_Errors(t *testing.T) {
	e := NewEngine(logging.DiscardLogger())
	ds := build(t, [][]float64{{0.9}, {0.1}}, nil)

	_, err := e.Pairwise(ds, core.MetricJaccardMZ, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))

	_, err = e.Pairwise(ds, core.MetricJaccardMZ, Options{MZTolerance: 0.01, MassColumn: "nope"})
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))

	_, err = e.Pairwise(ds, core.DistanceMetric("manhattan"), DefaultOptions())
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))

	_, err = e.Pairwise(ds, core.MetricJaccard, Options{MZTolerance: -1})
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))

	_, err = e.Pairwise(nil, core.MetricJaccard, DefaultOptions())
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
}

func TestPairwise_RangeProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)
	engine := NewEngine(logging.DiscardLogger())

	rowGen := gen.SliceOfN(6, gen.Float64Range(0, 1))
	properties.Property("distances stay in [0,1] and have n(n-1)/2 entries", prop.ForAll(
		func(a, b, c []float64, ma, mb, mc float64) bool {
			ds := build(t, [][]float64{a, b, c}, []string{
				fmt.Sprintf("%f", ma), fmt.Sprintf("%f", mb), fmt.Sprintf("%f", mc),
			})
			for _, m := range []core.DistanceMetric{core.MetricJaccard, core.MetricJaccardMZ, core.MetricEuclidean, core.MetricCosine} {
				cd, err := engine.Pairwise(ds, m, DefaultOptions())
				if err != nil || len(cd.Values) != 3 {
					return false
				}
				for _, v := range cd.Values {
					if math.IsNaN(v) || v < 0 || v > 1 {
						return false
					}
				}
			}
			return true
		},
		rowGen, rowGen, rowGen,
		gen.Float64Range(100, 101), gen.Float64Range(100, 101), gen.Float64Range(100, 101),
	))

	properties.TestingRun(t)
}
