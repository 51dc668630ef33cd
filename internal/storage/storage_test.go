package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/hierarchy"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func fixture(t *testing.T) (*dataset.Dataset, *hierarchy.Tree) {
	t.Helper()
	ids := []string{"table1_aa", "table2_bb", "table2_cc"}
	cols := []string{"7", "9", "12"}
	rows := []canon.Row{canon.NewRow(3, 0, 2), canon.NewRow(3, 1), canon.NewRow(3)}
	fps, err := canon.NewMatrix(ids, cols, rows)
	require.NoError(t, err)
	probs, err := core.NewMatrix(ids, cols, [][]float64{{0.9, 0.1, 0.8}, {0.2, 0.7, 0.1}, {0.1, 0.2, 0.3}})
	require.NoError(t, err)
	ab, err := table.NewAbundance(ids, []string{"s1", "s2"}, [][]float64{{5, 0}, {3, 1}, {0, 2.5}})
	require.NoError(t, err)
	md, err := table.NewMetadata(ids, []string{table.ColumnFeatureID, table.ColumnSource},
		[][]string{{"f1,f3", "table1"}, {"g1", "table2"}, {"g2", "table2"}})
	require.NoError(t, err)
	ds, err := dataset.New(fps, probs, ab, md)
	require.NoError(t, err)
	tree, err := hierarchy.ParseNewick("((table1_aa:0.25,table2_bb:0.25):0.1,table2_cc:0.35);")
	require.NoError(t, err)
	return ds, tree
}

func TestWriteArtifacts(t *testing.T) {
	ds, tree := fixture(t)
	dir := t.TempDir()
	require.NoError(t, WriteArtifacts(dir, ds, tree))

	for _, name := range []string{FingerprintsFile, AbundanceFile, MetadataFile, TreeFile,
		FingerprintsArrowFile, AbundanceArrowFile,
		filepath.Join(snapshotDirName, "fingerprints.parquet"),
		filepath.Join(snapshotDirName, "abundance.parquet"),
		filepath.Join(snapshotDirName, "metadata.parquet")} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	_, err := os.Stat(filepath.Join(dir, snapshotDirName+"_tmp"))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(dir, FingerprintsFile))
	require.NoError(t, err)
	assert.Equal(t, "id\t7\t9\t12\ntable1_aa\t1\t0\t1\ntable2_bb\t0\t1\t0\ntable2_cc\t0\t0\t0\n", string(data))

	back, err := ReadTree(filepath.Join(dir, TreeFile))
	require.NoError(t, err)
	assert.Equal(t, tree.Newick(), back.Newick())

	md, err := ReadMetadataFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	assert.Equal(t, ds.Labels(), md.IDs)
	v, _ := md.Get("table1_aa", table.ColumnFeatureID)
	assert.Equal(t, "f1,f3", v)

	ab, err := ReadAbundanceFile(filepath.Join(dir, AbundanceFile))
	require.NoError(t, err)
	assert.Equal(t, ds.Abundance.Values, ab.Values)
}

func TestWriteArtifacts_NoTree(t *testing.T) {
	ds, _ := fixture(t)
	dir := t.TempDir()
	require.NoError(t, WriteArtifacts(dir, ds, nil))
	_, err := os.Stat(filepath.Join(dir, TreeFile))
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotRoundTrip(t *testing.T) {
	ds, _ := fixture(t)
	dir := t.TempDir()
	require.NoError(t, WriteSnapshot(dir, ds))

	back, err := ReadSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, ds.Labels(), back.Labels())
	assert.Equal(t, ds.Fingerprints.Columns, back.Fingerprints.Columns)
	for i := range ds.Fingerprints.Rows {
		assert.True(t, ds.Fingerprints.Rows[i].Equal(back.Fingerprints.Rows[i]))
	}
	assert.True(t, mat.Equal(ds.Probabilities.Dense(), back.Probabilities.Dense()))
	assert.Equal(t, ds.Abundance.Samples, back.Abundance.Samples)
	assert.Equal(t, ds.Abundance.Values, back.Abundance.Values)
	assert.Equal(t, ds.Metadata.Columns, back.Metadata.Columns)
	assert.Equal(t, ds.Metadata.Values, back.Metadata.Values)
}

func TestReadSnapshot_Missing(t *testing.T) {
	_, err := ReadSnapshot(t.TempDir())
	require.Error(t, err)
	var ae *ArtifactError
	assert.ErrorAs(t, err, &ae)
}

func TestArrowRecords(t *testing.T) {
	ds, _ := fixture(t)
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	recs := Records(mem, ds)
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	fps := recs[TableFingerprints]
	assert.Equal(t, int64(3), fps.NumRows())
	labels := fps.Column(0).(*array.String)
	assert.Equal(t, "table2_bb", labels.Value(1))
	bits := fps.Column(1).(*array.List)
	start, end := bits.ValueOffsets(0)
	assert.Equal(t, int64(2), end-start)
	cols, ok := fps.Schema().Metadata().GetValue(columnsKey)
	require.True(t, ok)
	assert.Equal(t, "7\t9\t12", cols)

	ab := recs[TableAbundance]
	assert.Equal(t, int64(3), ab.NumCols())
	assert.Equal(t, "s2", ab.Schema().Field(2).Name)
	assert.Equal(t, 2.5, ab.Column(2).(*array.Float64).Value(2))

	md := recs[TableMetadata]
	assert.Equal(t, "table2", md.Column(2).(*array.String).Value(1))
}

func TestIPCRoundTrip(t *testing.T) {
	ds, _ := fixture(t)
	mem := memory.NewGoAllocator()
	path := filepath.Join(t.TempDir(), AbundanceArrowFile)

	rec := AbundanceArrow(mem, ds.Abundance)
	defer rec.Release()
	require.NoError(t, writeIPC(path, mem, rec))

	back, err := ReadIPC(path, mem)
	require.NoError(t, err)
	require.Len(t, back, 1)
	defer back[0].Release()
	assert.True(t, array.RecordEqual(rec, back[0]))
}

func TestDuckDBAdapter_SampleTotals(t *testing.T) {
	ds, _ := fixture(t)
	dir := t.TempDir()
	require.NoError(t, WriteSnapshot(dir, ds))

	adapter := NewDuckDBAdapter(dir)
	totals, err := adapter.SampleTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []SampleTotal{{Sample: "s1", Total: 8}, {Sample: "s2", Total: 3.5}}, totals)
}

func TestDuckDBAdapter_Query(t *testing.T) {
	ds, _ := fixture(t)
	dir := t.TempDir()
	require.NoError(t, WriteSnapshot(dir, ds))
	adapter := NewDuckDBAdapter(dir)

	tests := []struct {
		name      string
		query     string
		wantCount int
		wantErr   bool
	}{
		{"fingerprints", "SELECT label FROM fingerprints", 3, false},
		{"metadata filter", "SELECT label FROM metadata WHERE \"column\" = 'source' AND value = 'table2'", 2, false},
		{"join", "SELECT f.label FROM fingerprints f JOIN abundance a ON f.label = a.label WHERE a.value > 0", 4, false},
		{"unknown table", "SELECT * FROM nope", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdr, cleanup, err := adapter.Query(context.Background(), tt.query)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer cleanup()
			count := 0
			for rdr.Next() {
				count += int(rdr.Record().NumRows())
			}
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestDuckDBAdapter_NoSnapshots(t *testing.T) {
	_, _, err := NewDuckDBAdapter(t.TempDir()).Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
