// Package storage persists merged datasets and trees as flat files,
// parquet snapshots and Arrow IPC files, and queries snapshots with
// DuckDB.
package storage

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/hierarchy"
	"github.com/23skdu/qemistree/internal/metrics"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Artifact file names inside an output directory.
const (
	FingerprintsFile      = "fingerprints.tsv"
	AbundanceFile         = "abundance.tsv"
	MetadataFile          = "metadata.tsv"
	TreeFile              = "tree.nwk"
	FingerprintsArrowFile = "fingerprints.arrow"
	AbundanceArrowFile    = "abundance.arrow"

	// KeyColumn heads the row key column of every TSV artifact.
	KeyColumn = "id"
)

// countingWriter tracks bytes for the artifact metrics.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// writeFile creates path, streams fn into it through a buffer and records
// the bytes written under format.
func writeFile(path, format string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return NewArtifactError("write", path, err)
	}
	cw := &countingWriter{w: f}
	bw := bufio.NewWriter(cw)
	if err := fn(bw); err != nil {
		_ = f.Close()
		return NewArtifactError("write", path, err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return NewArtifactError("write", path, err)
	}
	if err := f.Close(); err != nil {
		return NewArtifactError("write", path, err)
	}
	metrics.ArtifactBytesWritten.WithLabelValues(format).Add(float64(cw.n))
	return nil
}

// WriteArtifacts writes every artifact of a merged dataset into dir. tree
// may be nil.
func WriteArtifacts(dir string, ds *dataset.Dataset, tree *hierarchy.Tree) error {
	start := time.Now()
	defer func() {
		metrics.StageDurationSeconds.WithLabelValues("write").Observe(time.Since(start).Seconds())
	}()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewArtifactError("write", dir, err)
	}
	at := func(name string) string { return filepath.Join(dir, name) }

	if err := writeFile(at(FingerprintsFile), "tsv", func(w io.Writer) error {
		return writeFingerprintsTSV(w, ds)
	}); err != nil {
		return err
	}
	if err := writeFile(at(AbundanceFile), "tsv", func(w io.Writer) error {
		return table.WriteAbundance(w, ds.Abundance, KeyColumn)
	}); err != nil {
		return err
	}
	if err := writeFile(at(MetadataFile), "tsv", func(w io.Writer) error {
		return table.WriteMetadata(w, ds.Metadata, KeyColumn)
	}); err != nil {
		return err
	}
	if tree != nil {
		if err := WriteTree(at(TreeFile), tree); err != nil {
			return err
		}
	}

	if err := WriteSnapshot(dir, ds); err != nil {
		return err
	}

	mem := memory.NewGoAllocator()
	fps := FingerprintArrow(mem, ds)
	defer fps.Release()
	if err := writeIPC(at(FingerprintsArrowFile), mem, fps); err != nil {
		return err
	}
	ab := AbundanceArrow(mem, ds.Abundance)
	defer ab.Release()
	return writeIPC(at(AbundanceArrowFile), mem, ab)
}

// writeFingerprintsTSV writes the binary fingerprint matrix as 0/1 cells.
func writeFingerprintsTSV(w io.Writer, ds *dataset.Dataset) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	header := append([]string{KeyColumn}, ds.Fingerprints.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, label := range ds.Labels() {
		row := ds.Fingerprints.Rows[i]
		rec := make([]string, 0, row.Width()+1)
		rec = append(rec, label)
		for j := 0; j < row.Width(); j++ {
			if row.Get(j) {
				rec = append(rec, "1")
			} else {
				rec = append(rec, "0")
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTree writes tree as Newick.
func WriteTree(path string, tree *hierarchy.Tree) error {
	return writeFile(path, "newick", tree.WriteNewick)
}

// ReadTree reads a Newick tree file.
func ReadTree(path string) (*hierarchy.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewArtifactError("read", path, err)
	}
	defer func() { _ = f.Close() }()
	return hierarchy.ReadNewick(f)
}

// ReadMetadataFile reads a tab-separated feature metadata file.
func ReadMetadataFile(path string) (*table.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewArtifactError("read", path, err)
	}
	defer func() { _ = f.Close() }()
	return table.ReadMetadata(f)
}

// ReadAbundanceFile reads a tab-separated feature x sample table.
func ReadAbundanceFile(path string) (*table.Abundance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewArtifactError("read", path, err)
	}
	defer func() { _ = f.Close() }()
	return table.ReadAbundance(f)
}
