package storage

import (
	"io"
	"os"
	"strings"

	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// LabelField names the row key column of every Arrow record.
const LabelField = "label"

// FingerprintArrow builds an Arrow record with one row per label: the
// label, the set bit positions and the probability row. The substructure
// identifiers travel in the schema metadata.
func FingerprintArrow(mem memory.Allocator, ds *dataset.Dataset) arrow.Record {
	width := len(ds.Fingerprints.Columns)
	md := arrow.NewMetadata(
		[]string{"qemistree.table", columnsKey},
		[]string{TableFingerprints, strings.Join(ds.Fingerprints.Columns, listSep)})
	schema := arrow.NewSchema([]arrow.Field{
		{Name: LabelField, Type: arrow.BinaryTypes.String},
		{Name: "bits", Type: arrow.ListOf(arrow.PrimitiveTypes.Int32)},
		{Name: "probabilities", Type: arrow.FixedSizeListOf(int32(width), arrow.PrimitiveTypes.Float64)},
	}, &md)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	labelBuilder := b.Field(0).(*array.StringBuilder)
	bitsBuilder := b.Field(1).(*array.ListBuilder)
	bitValues := bitsBuilder.ValueBuilder().(*array.Int32Builder)
	probBuilder := b.Field(2).(*array.FixedSizeListBuilder)
	probValues := probBuilder.ValueBuilder().(*array.Float64Builder)

	for i, label := range ds.Labels() {
		labelBuilder.Append(label)
		bitsBuilder.Append(true)
		it := ds.Fingerprints.Rows[i].Bits().Iterator()
		for it.HasNext() {
			bitValues.Append(int32(it.Next()))
		}
		probBuilder.Append(true)
		probValues.AppendValues(ds.Probabilities.RawRow(i), nil)
	}
	return b.NewRecord()
}

// AbundanceArrow builds a wide record: the label then one float64 column
// per sample.
func AbundanceArrow(mem memory.Allocator, a *table.Abundance) arrow.Record {
	fields := make([]arrow.Field, 0, len(a.Samples)+1)
	fields = append(fields, arrow.Field{Name: LabelField, Type: arrow.BinaryTypes.String})
	for _, s := range a.Samples {
		fields = append(fields, arrow.Field{Name: s, Type: arrow.PrimitiveTypes.Float64})
	}
	md := arrow.NewMetadata([]string{"qemistree.table"}, []string{TableAbundance})
	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, &md))
	defer b.Release()

	b.Field(0).(*array.StringBuilder).AppendValues(a.Features, nil)
	for j := range a.Samples {
		col := b.Field(j + 1).(*array.Float64Builder)
		for i := range a.Features {
			col.Append(a.Values[i][j])
		}
	}
	return b.NewRecord()
}

// MetadataArrow builds a wide record of string columns.
func MetadataArrow(mem memory.Allocator, m *table.Metadata) arrow.Record {
	fields := make([]arrow.Field, 0, len(m.Columns)+1)
	fields = append(fields, arrow.Field{Name: LabelField, Type: arrow.BinaryTypes.String})
	for _, c := range m.Columns {
		fields = append(fields, arrow.Field{Name: c, Type: arrow.BinaryTypes.String})
	}
	md := arrow.NewMetadata([]string{"qemistree.table"}, []string{TableMetadata})
	b := array.NewRecordBuilder(mem, arrow.NewSchema(fields, &md))
	defer b.Release()

	b.Field(0).(*array.StringBuilder).AppendValues(m.IDs, nil)
	for j := range m.Columns {
		col := b.Field(j + 1).(*array.StringBuilder)
		for i := range m.IDs {
			col.Append(m.Values[i][j])
		}
	}
	return b.NewRecord()
}

// Records builds all three Arrow records of ds keyed by table name. The
// caller releases them.
func Records(mem memory.Allocator, ds *dataset.Dataset) map[string]arrow.Record {
	return map[string]arrow.Record{
		TableFingerprints: FingerprintArrow(mem, ds),
		TableAbundance:    AbundanceArrow(mem, ds.Abundance),
		TableMetadata:     MetadataArrow(mem, ds.Metadata),
	}
}

func writeIPC(path string, mem memory.Allocator, rec arrow.Record) error {
	return writeFile(path, "arrow", func(f io.Writer) error {
		w, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
		if err != nil {
			return err
		}
		if err := w.Write(rec); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})
}

// ReadIPC reads every record of an Arrow IPC file. The caller releases
// them.
func ReadIPC(path string, mem memory.Allocator) ([]arrow.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewArtifactError("read", path, err)
	}
	defer func() { _ = f.Close() }()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return nil, NewArtifactError("read", path, err)
	}
	defer func() { _ = r.Close() }()

	out := make([]arrow.Record, 0, r.NumRecords())
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			for _, o := range out {
				o.Release()
			}
			return nil, NewArtifactError("read", path, err)
		}
		rec.Retain()
		out = append(out, rec)
	}
	return out, nil
}
