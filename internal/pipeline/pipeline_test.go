package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/logging"
	"github.com/23skdu/qemistree/internal/merge"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const index = "relativeIndex\tabsoluteIndex\ttype\n0\t1\tPUBCHEM\n1\t2\tPUBCHEM\n2\t3\tMACCS\n"

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// run lays out a prediction run with one folder per feature.
func run(t *testing.T, features map[string][]string) string {
	t.Helper()
	dir := t.TempDir()
	write(t, filepath.Join(dir, "csi_fingerid.tsv"), index)
	for id, probs := range features {
		write(t, filepath.Join(dir, "0_run_"+id, "fingerprints", "C6H6.fpt"), strings.Join(probs, "\n"))
	}
	return dir
}

func abundance(t *testing.T, ids []string, samples []string, values [][]float64) *table.Abundance {
	t.Helper()
	a, err := table.NewAbundance(ids, samples, values)
	require.NoError(t, err)
	return a
}

func masses(t *testing.T, ids []string, mz ...string) *table.Metadata {
	t.Helper()
	values := make([][]string, len(ids))
	for i := range ids {
		values[i] = []string{mz[i]}
	}
	md, err := table.NewMetadata(ids, []string{table.DefaultMassColumn}, values)
	require.NoError(t, err)
	return md
}

func twoExperiments(t *testing.T) Inputs {
	dir1 := run(t, map[string][]string{"f1": {"0.9", "0.1", "0.8"}})
	dir2 := run(t, map[string][]string{"g1": {"0.7", "0.3", "0.6"}})
	return Inputs{
		RunDirs: []string{dir1, dir2},
		Tables: []*table.Abundance{
			abundance(t, []string{"f1"}, []string{"sampleA"}, [][]float64{{5}}),
			abundance(t, []string{"g1"}, []string{"sampleA"}, [][]float64{{3}}),
		},
		Metadata: []*table.Metadata{
			masses(t, []string{"f1"}, "200.1"),
			masses(t, []string{"g1"}, "200.1"),
		},
	}
}

func TestMakeHierarchy_QualifiedLabelsStayApart(t *testing.T) {
	res, err := MakeHierarchy(context.Background(), logging.DiscardLogger(), twoExperiments(t), DefaultOptions())
	require.NoError(t, err)

	label := canon.Label(canon.NewRow(3, 0, 2))
	assert.Equal(t, []string{merge.Qualify(1, label), merge.Qualify(2, label)}, res.Merged.Labels())
	assert.Equal(t, 2, res.Tree.LeafCount())
	assert.Equal(t, 1, res.Tree.InternalCount())
	assert.ElementsMatch(t, res.Merged.Labels(), res.Tree.Leaves())
	// identical bits and masses
	assert.Equal(t, []float64{0}, res.Distances.Values)

	v, _ := res.Merged.Abundance.Value(merge.Qualify(1, label), "sampleA")
	assert.Equal(t, 5.0, v)
	v, _ = res.Merged.Abundance.Value(merge.Qualify(2, label), "sampleA")
	assert.Equal(t, 3.0, v)
}

func TestMakeHierarchy_Dedup(t *testing.T) {
	opts := DefaultOptions()
	opts.Dedup = true
	res, err := MakeHierarchy(context.Background(), logging.DiscardLogger(), twoExperiments(t), opts)
	require.NoError(t, err)

	label := canon.Label(canon.NewRow(3, 0, 2))
	assert.Equal(t, []string{label}, res.Tree.Leaves())
	v, _ := res.Merged.Abundance.Value(label, "sampleA")
	assert.Equal(t, 8.0, v)
}

func TestMakeHierarchy_StructuresAndRestrict(t *testing.T) {
	dir := run(t, map[string][]string{
		"1": {"0.9", "0.1", "0.8"},
		"2": {"0.1", "0.9", "0.2"},
		"3": {"0.6", "0.7", "0.9"},
	})
	write(t, filepath.Join(dir, "compound_identifications.tsv"),
		"id\tsmiles\n0_run_1\tC1=CC=CC=C1\n0_run_3\tCCO\n")
	in := Inputs{
		RunDirs: []string{dir},
		Tables: []*table.Abundance{abundance(t, []string{"1", "2", "3"}, []string{"s1", "s2"},
			[][]float64{{1, 0}, {0, 2}, {3, 3}})},
	}
	opts := DefaultOptions()
	opts.Metric = core.MetricJaccard
	opts.Restrict = "PUBCHEM"

	res, err := MakeHierarchy(context.Background(), logging.DiscardLogger(), in, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, res.Merged.Fingerprints.Columns)
	assert.Equal(t, 3, res.Tree.LeafCount())

	label := merge.Qualify(1, canon.Label(canon.NewRow(2, 0)))
	smiles, ok := res.Merged.Metadata.Get(label, "csi_smiles")
	require.True(t, ok)
	assert.Equal(t, "C1=CC=CC=C1", smiles)
	label = merge.Qualify(1, canon.Label(canon.NewRow(2, 1)))
	smiles, _ = res.Merged.Metadata.Get(label, "csi_smiles")
	assert.Equal(t, "missing", smiles)
}

func TestMakeHierarchy_Correspondence(t *testing.T) {
	in := twoExperiments(t)
	in.Tables = in.Tables[:1]
	_, err := MakeHierarchy(context.Background(), logging.DiscardLogger(), in, DefaultOptions())
	var ce *core.CorrespondenceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Lists["fingerprints"])
	assert.Equal(t, 1, ce.Lists["feature_tables"])
}

func TestMakeHierarchy_EmptyTable(t *testing.T) {
	in := twoExperiments(t)
	in.Tables[1] = abundance(t, nil, nil, nil)
	_, err := MakeHierarchy(context.Background(), logging.DiscardLogger(), in, DefaultOptions())
	assert.True(t, errors.Is(err, core.ErrEmptyInput))

	_, err = MakeHierarchy(context.Background(), logging.DiscardLogger(), Inputs{}, DefaultOptions())
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
}

func TestMakeHierarchy_UnmatchedPolicies(t *testing.T) {
	dir := run(t, map[string][]string{"1": {"0.9", "0.1", "0.8"}, "2": {"0.1", "0.9", "0.2"}, "9": {"0.1", "0.1", "0.9"}})
	in := Inputs{
		RunDirs: []string{dir},
		Tables: []*table.Abundance{abundance(t, []string{"1", "2"}, []string{"s"}, [][]float64{{1}, {2}})},
	}
	opts := DefaultOptions()
	opts.Metric = core.MetricJaccard

	_, err := MakeHierarchy(context.Background(), logging.DiscardLogger(), in, opts)
	var ue *core.UnmatchedFeaturesError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, []string{"9"}, ue.IDs)

	opts.Policy = core.MatchLenient
	res, err := MakeHierarchy(context.Background(), logging.DiscardLogger(), in, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Tree.LeafCount())
}

func TestMakeHierarchy_MissingMass(t *testing.T) {
	in := twoExperiments(t)
	in.Metadata = nil
	_, err := MakeHierarchy(context.Background(), logging.DiscardLogger(), in, DefaultOptions())
	assert.True(t, errors.Is(err, core.ErrInvalidArgument))
}

func TestMakeHierarchy_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := MakeHierarchy(ctx, logging.DiscardLogger(), twoExperiments(t), DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
