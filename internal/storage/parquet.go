package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/parquet-go/parquet-go"
)

const (
	snapshotDirName = "snapshots"

	columnsKey = "qemistree.columns"
	samplesKey = "qemistree.samples"
	listSep    = "\t"
)

// Snapshot table names. Each is also the DuckDB view name.
const (
	TableFingerprints = "fingerprints"
	TableAbundance    = "abundance"
	TableMetadata     = "metadata"
)

// FingerprintRecord is one label of the fingerprint snapshot. Bits holds
// the positions set in the binary row.
type FingerprintRecord struct {
	Label         string    `parquet:"label"`
	Bits          []int32   `parquet:"bits,list"`
	Probabilities []float64 `parquet:"probabilities,list"`
}

// AbundanceRecord is one cell of the abundance snapshot.
type AbundanceRecord struct {
	Label  string  `parquet:"label"`
	Sample string  `parquet:"sample"`
	Value  float64 `parquet:"value"`
}

// MetadataRecord is one cell of the metadata snapshot.
type MetadataRecord struct {
	Label  string `parquet:"label"`
	Column string `parquet:"column"`
	Value  string `parquet:"value"`
}

func writeFingerprintParquet(w io.Writer, ds *dataset.Dataset) error {
	pw := parquet.NewGenericWriter[FingerprintRecord](w,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(columnsKey, strings.Join(ds.Fingerprints.Columns, listSep)))
	defer func() {
		// Best effort close on early return
		_ = pw.Close()
	}()

	records := make([]FingerprintRecord, ds.Len())
	for i, label := range ds.Labels() {
		row := ds.Fingerprints.Rows[i]
		bits := make([]int32, 0, row.Count())
		it := row.Bits().Iterator()
		for it.HasNext() {
			bits = append(bits, int32(it.Next()))
		}
		records[i] = FingerprintRecord{
			Label:         label,
			Bits:          bits,
			Probabilities: append([]float64(nil), ds.Probabilities.RawRow(i)...),
		}
	}
	if _, err := pw.Write(records); err != nil {
		return err
	}
	return pw.Close()
}

func writeAbundanceParquet(w io.Writer, a *table.Abundance) error {
	pw := parquet.NewGenericWriter[AbundanceRecord](w,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(samplesKey, strings.Join(a.Samples, listSep)))
	defer func() {
		_ = pw.Close()
	}()

	records := make([]AbundanceRecord, 0, len(a.Features)*len(a.Samples))
	for i, f := range a.Features {
		for j, s := range a.Samples {
			records = append(records, AbundanceRecord{Label: f, Sample: s, Value: a.Values[i][j]})
		}
	}
	if _, err := pw.Write(records); err != nil {
		return err
	}
	return pw.Close()
}

func writeMetadataParquet(w io.Writer, m *table.Metadata) error {
	pw := parquet.NewGenericWriter[MetadataRecord](w,
		parquet.Compression(&parquet.Zstd),
		parquet.KeyValueMetadata(columnsKey, strings.Join(m.Columns, listSep)))
	defer func() {
		_ = pw.Close()
	}()

	records := make([]MetadataRecord, 0, len(m.IDs)*len(m.Columns))
	for i, id := range m.IDs {
		for j, c := range m.Columns {
			records = append(records, MetadataRecord{Label: id, Column: c, Value: m.Values[i][j]})
		}
	}
	if _, err := pw.Write(records); err != nil {
		return err
	}
	return pw.Close()
}

// readParquet opens path and reads every row of type T together with the
// value stored under key in the file metadata.
func readParquet[T any](path, key string) ([]T, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, nil, err
	}
	var list []string
	if v, ok := pf.Lookup(key); ok && v != "" {
		list = strings.Split(v, listSep)
	}

	pr := parquet.NewGenericReader[T](pf)
	defer func() { _ = pr.Close() }()
	rows := make([]T, pr.NumRows())
	n, err := pr.Read(rows)
	if err != nil && err != io.EOF {
		return nil, nil, err
	}
	return rows[:n], list, nil
}

// WriteSnapshot writes the parquet snapshot of ds under dir/snapshots. The
// files are written to a temporary directory first and swapped in whole.
func WriteSnapshot(dir string, ds *dataset.Dataset) error {
	snapshotDir := filepath.Join(dir, snapshotDirName)
	tempDir := filepath.Join(dir, snapshotDirName+"_tmp")

	if err := os.RemoveAll(tempDir); err != nil {
		return NewArtifactError("write", tempDir, err)
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return NewArtifactError("write", tempDir, err)
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{TableFingerprints, func(w io.Writer) error { return writeFingerprintParquet(w, ds) }},
		{TableAbundance, func(w io.Writer) error { return writeAbundanceParquet(w, ds.Abundance) }},
		{TableMetadata, func(w io.Writer) error { return writeMetadataParquet(w, ds.Metadata) }},
	}
	for _, item := range writers {
		path := filepath.Join(tempDir, item.name+".parquet")
		if err := writeFile(path, "parquet", item.write); err != nil {
			return err
		}
	}

	_ = os.RemoveAll(snapshotDir)
	if err := os.Rename(tempDir, snapshotDir); err != nil {
		return NewArtifactError("write", snapshotDir, err)
	}
	return nil
}

// ReadSnapshot loads a dataset back from dir/snapshots.
func ReadSnapshot(dir string) (*dataset.Dataset, error) {
	snapshotDir := filepath.Join(dir, snapshotDirName)
	path := func(name string) string { return filepath.Join(snapshotDir, name+".parquet") }

	fps, columns, err := readParquet[FingerprintRecord](path(TableFingerprints), columnsKey)
	if err != nil {
		return nil, NewArtifactError("read", path(TableFingerprints), err)
	}
	if len(fps) == 0 {
		return nil, core.NewEmptyInputError("snapshot", "no fingerprint rows")
	}
	labels := make([]string, len(fps))
	rows := make([]canon.Row, len(fps))
	probs := make([][]float64, len(fps))
	for i, r := range fps {
		labels[i] = r.Label
		set := make([]int, len(r.Bits))
		for k, b := range r.Bits {
			set[k] = int(b)
		}
		rows[i] = canon.NewRow(len(columns), set...)
		probs[i] = r.Probabilities
	}
	fm, err := canon.NewMatrix(labels, columns, rows)
	if err != nil {
		return nil, err
	}
	pm, err := core.NewMatrix(append([]string(nil), labels...), append([]string(nil), columns...), probs)
	if err != nil {
		return nil, err
	}

	cells, samples, err := readParquet[AbundanceRecord](path(TableAbundance), samplesKey)
	if err != nil {
		return nil, NewArtifactError("read", path(TableAbundance), err)
	}
	ab, err := abundanceFromCells(labels, samples, cells)
	if err != nil {
		return nil, err
	}

	mcells, mcols, err := readParquet[MetadataRecord](path(TableMetadata), columnsKey)
	if err != nil {
		return nil, NewArtifactError("read", path(TableMetadata), err)
	}
	b := table.NewBuilder(mcols...)
	for _, l := range labels {
		b.Set(l, nil)
	}
	for _, c := range mcells {
		b.Set(c.Label, map[string]string{c.Column: c.Value})
	}
	md, err := b.Build()
	if err != nil {
		return nil, err
	}
	return dataset.New(fm, pm, ab, md)
}

func abundanceFromCells(labels, samples []string, cells []AbundanceRecord) (*table.Abundance, error) {
	fpos := make(map[string]int, len(labels))
	for i, l := range labels {
		fpos[l] = i
	}
	spos := make(map[string]int, len(samples))
	for j, s := range samples {
		spos[s] = j
	}
	values := make([][]float64, len(labels))
	for i := range values {
		values[i] = make([]float64, len(samples))
	}
	for _, c := range cells {
		i, ok := fpos[c.Label]
		if !ok {
			return nil, core.NewInvalidArgumentError("abundance", "snapshot references unknown label "+c.Label)
		}
		j, ok := spos[c.Sample]
		if !ok {
			return nil, core.NewInvalidArgumentError("abundance", "snapshot references unknown sample "+c.Sample)
		}
		values[i][j] = c.Value
	}
	return table.NewAbundance(append([]string(nil), labels...), append([]string(nil), samples...), values)
}
