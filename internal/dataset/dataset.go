// Package dataset defines the label-keyed bundle produced by matching and
// merging: binary fingerprints, probabilities, abundances and metadata, all
// sharing one row order.
package dataset

import (
	"fmt"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/table"
)

// Dataset is a MatchedDataset (one experiment) or a MergedDataset (many).
// Every component is indexed by label and follows Labels() order, so the
// distance matrix and tree can be built from any of them without resorting.
type Dataset struct {
	// Fingerprints holds one binary row per label.
	Fingerprints *canon.Matrix
	// Probabilities holds the first-occurrence probability row per label.
	Probabilities *core.Matrix
	// Abundance holds summed abundances per label.
	Abundance *table.Abundance
	// Metadata holds per-label attributes, including ColumnFeatureID.
	Metadata *table.Metadata
}

// New checks that all components share the same row order.
func New(fps *canon.Matrix, probs *core.Matrix, ab *table.Abundance, md *table.Metadata) (*Dataset, error) {
	if fps == nil || fps.Len() == 0 {
		return nil, core.NewEmptyInputError("dataset", "no fingerprint rows")
	}
	labels := fps.IDs
	if err := sameOrder("probabilities", labels, probs.IDs); err != nil {
		return nil, err
	}
	if err := sameOrder("abundance", labels, ab.Features); err != nil {
		return nil, err
	}
	if err := sameOrder("metadata", labels, md.IDs); err != nil {
		return nil, err
	}
	return &Dataset{Fingerprints: fps, Probabilities: probs, Abundance: ab, Metadata: md}, nil
}

// Labels returns the row order shared by every component.
func (d *Dataset) Labels() []string { return d.Fingerprints.IDs }

// Len returns the number of rows.
func (d *Dataset) Len() int { return d.Fingerprints.Len() }

// Masses reads the precursor mass of every row from the metadata column.
func (d *Dataset) Masses(column string) ([]float64, error) {
	if !d.Metadata.HasColumn(column) {
		return nil, core.NewInvalidArgumentError("mass_column", fmt.Sprintf("metadata has no column %q", column))
	}
	out := make([]float64, d.Len())
	for i, label := range d.Labels() {
		v, err := d.Metadata.Float(label, column)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func sameOrder(name string, want, got []string) error {
	if len(want) != len(got) {
		return core.NewInvalidArgumentError(name, fmt.Sprintf("%d rows, want %d", len(got), len(want)))
	}
	for i := range want {
		if want[i] != got[i] {
			return core.NewInvalidArgumentError(name,
				fmt.Sprintf("row %d is %s, want %s", i, got[i], want[i]))
		}
	}
	return nil
}
