package match

import (
	"errors"
	"testing"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/logging"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) (*core.Matrix, *table.Abundance, *table.Metadata) {
	t.Helper()
	fps, err := core.NewMatrix(
		[]string{"f1", "f2", "f3"},
		[]string{"10", "11", "12"},
		[][]float64{
			{0.9, 0.2, 0.7},
			{0.1, 0.8, 0.3},
			{0.6, 0.4, 0.95},
		})
	require.NoError(t, err)
	ab, err := table.NewAbundance(
		[]string{"f0", "f1", "f2", "f3"},
		[]string{"s1", "s2"},
		[][]float64{{9, 9}, {1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	md, err := table.NewMetadata(
		[]string{"f1", "f2", "f3"},
		[]string{"row m/z"},
		[][]string{{"301.1"}, {"150.2"}, {""}})
	require.NoError(t, err)
	return fps, ab, md
}

func TestMatch_CollapsesDuplicates(t *testing.T) {
	fps, ab, md := fixture(t)
	ds, err := NewMatcher(logging.DiscardLogger(), core.MatchStrict).Match(fps, ab, md)
	require.NoError(t, err)

	require.Equal(t, 2, ds.Len())
	l13 := canon.Label(canon.NewRow(3, 0, 2))
	l2 := canon.Label(canon.NewRow(3, 1))
	assert.Equal(t, []string{l13, l2}, ds.Labels())
	assert.Equal(t, ds.Labels(), ds.Abundance.Features)
	assert.Equal(t, ds.Labels(), ds.Metadata.IDs)

	row, _ := ds.Abundance.Row(l13)
	assert.Equal(t, []float64{6, 8}, row)

	ids, _ := ds.Metadata.Get(l13, table.ColumnFeatureID)
	assert.Equal(t, "f1,f3", ids)
	mz, _ := ds.Metadata.Get(l13, "row m/z")
	assert.Equal(t, "301.1", mz)

	prob, ok := ds.Probabilities.Row(l13)
	require.True(t, ok)
	assert.Equal(t, []float64{0.9, 0.2, 0.7}, prob)
}

func TestMatch_NilMetadata(t *testing.T) {
	fps, ab, _ := fixture(t)
	ds, err := NewMatcher(logging.DiscardLogger(), core.MatchStrict).Match(fps, ab, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{table.ColumnFeatureID}, ds.Metadata.Columns)
}

func TestMatch_StrictUnmatched(t *testing.T) {
	fps, _, md := fixture(t)
	ab, err := table.NewAbundance([]string{"f1"}, []string{"s1"}, [][]float64{{1}})
	require.NoError(t, err)

	_, err = NewMatcher(logging.DiscardLogger(), core.MatchStrict).Match(fps, ab, md)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnmatchedFeatures))

	var unmatched *core.UnmatchedFeaturesError
	require.True(t, errors.As(err, &unmatched))
	assert.Equal(t, []string{"f2", "f3"}, unmatched.IDs)
}

func TestMatch_LenientDrops(t *testing.T) {
	fps, _, md := fixture(t)
	ab, err := table.NewAbundance([]string{"f2"}, []string{"s1"}, [][]float64{{7}})
	require.NoError(t, err)

	ds, err := NewMatcher(logging.DiscardLogger(), core.MatchLenient).Match(fps, ab, md)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	ids, _ := ds.Metadata.Get(ds.Labels()[0], table.ColumnFeatureID)
	assert.Equal(t, "f2", ids)

	none, err := table.NewAbundance([]string{"zz"}, []string{"s1"}, [][]float64{{7}})
	require.NoError(t, err)
	_, err = NewMatcher(logging.DiscardLogger(), core.MatchLenient).Match(fps, none, md)
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
}

func TestMatch_Empty(t *testing.T) {
	_, ab, md := fixture(t)
	_, err := NewMatcher(logging.DiscardLogger(), core.MatchStrict).Match(&core.Matrix{}, ab, md)
	assert.True(t, errors.Is(err, core.ErrEmptyInput))

	fps, _, _ := fixture(t)
	empty, err := table.NewAbundance(nil, nil, nil)
	require.NoError(t, err)
	_, err = NewMatcher(logging.DiscardLogger(), core.MatchStrict).Match(fps, empty, md)
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
}

func TestMatch_LabelSetsAgree(t *testing.T) {
	fps, ab, md := fixture(t)
	for _, p := range []core.MatchPolicy{core.MatchStrict, core.MatchLenient} {
		ds, err := NewMatcher(logging.DiscardLogger(), p).Match(fps, ab, md)
		require.NoError(t, err)
		assert.ElementsMatch(t, ds.Fingerprints.IDs, ds.Abundance.Features)
	}
}
