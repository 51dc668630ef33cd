// Package merge unions per-experiment matched datasets into one global
// dataset with experiment-qualified labels.
package merge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/metrics"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/rs/zerolog"
)

// qualifierPrefix starts every experiment qualifier: table1_, table2_, ...
const qualifierPrefix = "table"

// Qualifier returns the 1-based experiment qualifier.
func Qualifier(experiment int) string {
	return qualifierPrefix + strconv.Itoa(experiment)
}

// Qualify prefixes label with the 1-based experiment qualifier.
func Qualify(experiment int, label string) string {
	return Qualifier(experiment) + "_" + label
}

// Unqualify strips an experiment qualifier, returning the canonical label.
func Unqualify(label string) string {
	if !strings.HasPrefix(label, qualifierPrefix) {
		return label
	}
	rest := label[len(qualifierPrefix):]
	i := strings.IndexByte(rest, '_')
	if i <= 0 {
		return label
	}
	if _, err := strconv.Atoi(rest[:i]); err != nil {
		return label
	}
	return rest[i+1:]
}

// Inputs are parallel per-experiment lists; element i of every list belongs
// to experiment i+1. Probabilities may be nil, in which case the binary
// rows stand in for them.
type Inputs struct {
	Fingerprints  []*canon.Matrix
	Probabilities []*core.Matrix
	Tables        []*table.Abundance
	Metadata      []*table.Metadata
}

// Merger implements the multi-experiment merge stage.
type Merger struct {
	logger zerolog.Logger
}

// NewMerger creates a Merger.
func NewMerger(logger zerolog.Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge unions matched datasets in order.
func (m *Merger) Merge(datasets []*dataset.Dataset) (*dataset.Dataset, error) {
	in := Inputs{}
	for _, ds := range datasets {
		in.Fingerprints = append(in.Fingerprints, ds.Fingerprints)
		in.Probabilities = append(in.Probabilities, ds.Probabilities)
		in.Tables = append(in.Tables, ds.Abundance)
		in.Metadata = append(in.Metadata, ds.Metadata)
	}
	return m.MergeInputs(in)
}

// MergeInputs qualifies every label with its experiment, concatenates
// fingerprints and metadata keeping first occurrences, and outer-merges the
// abundance tables. Inconsistent list lengths fail with a
// CorrespondenceError; conflicting abundance cells with an
// OverlapConflictError.
func (m *Merger) MergeInputs(in Inputs) (*dataset.Dataset, error) {
	start := time.Now()
	defer func() {
		metrics.StageDurationSeconds.WithLabelValues("merge").Observe(time.Since(start).Seconds())
	}()

	lists := map[string]int{
		"fingerprints": len(in.Fingerprints),
		"tables":       len(in.Tables),
		"metadata":     len(in.Metadata),
	}
	if in.Probabilities != nil {
		lists["probabilities"] = len(in.Probabilities)
	}
	if err := core.CheckCorrespondence(lists); err != nil {
		return nil, err
	}
	if len(in.Fingerprints) == 0 {
		return nil, core.NewEmptyInputError("merge", "no experiments to merge")
	}

	columns := in.Fingerprints[0].Columns
	var (
		labels   []string
		rows     []canon.Row
		probRows [][]float64
		tables   []*table.Abundance
		mdb      = table.NewBuilder(table.ColumnFeatureID, table.ColumnSource)
	)
	for i, fps := range in.Fingerprints {
		n := i + 1
		if fps == nil || fps.Len() == 0 {
			return nil, core.NewEmptyInputError("merge", fmt.Sprintf("experiment %d has no fingerprints", n))
		}
		if !sameColumns(columns, fps.Columns) {
			return nil, core.NewInvalidArgumentError("fingerprints",
				fmt.Sprintf("experiment %d substructure columns differ from experiment 1", n))
		}
		if in.Tables[i] == nil {
			return nil, core.NewEmptyInputError("merge", fmt.Sprintf("experiment %d has no feature table", n))
		}
		var probs *core.Matrix
		if in.Probabilities != nil {
			probs = in.Probabilities[i]
		}
		md := in.Metadata[i]

		// fps.IDs are unique and the qualifier differs per experiment, so
		// qualified labels never collide; Dedup folds equal fingerprints.
		for r, label := range fps.IDs {
			q := Qualify(n, label)
			rec := map[string]string{table.ColumnSource: Qualifier(n)}
			if md.HasRow(label) {
				for col, v := range md.Record(label) {
					rec[col] = v
				}
				rec[table.ColumnSource] = table.JoinField(md.Record(label)[table.ColumnSource], Qualifier(n))
			}
			labels = append(labels, q)
			rows = append(rows, fps.Rows[r])
			probRows = append(probRows, probabilityRow(probs, label, fps.Rows[r]))
			mdb.Set(q, rec)
		}

		qualified, err := in.Tables[i].Collapse(func(f string) string { return Qualify(n, f) })
		if err != nil {
			return nil, err
		}
		tables = append(tables, qualified)
	}

	merged, err := table.OuterMerge(tables...)
	if err != nil {
		return nil, err
	}
	if len(merged.Features) != len(labels) {
		return nil, core.NewInvalidArgumentError("tables",
			fmt.Sprintf("merged feature table has %d features but there are %d fingerprints",
				len(merged.Features), len(labels)))
	}
	ordered, err := merged.Subset(labels)
	if err != nil {
		return nil, err
	}

	fpm, err := canon.NewMatrix(labels, append([]string(nil), columns...), rows)
	if err != nil {
		return nil, err
	}
	pm, err := core.NewMatrix(append([]string(nil), labels...), append([]string(nil), columns...), probRows)
	if err != nil {
		return nil, err
	}
	meta, err := mdb.Build()
	if err != nil {
		return nil, err
	}

	metrics.LabelsTotal.WithLabelValues("merge").Add(float64(len(labels)))
	m.logger.Info().
		Int("experiments", len(in.Fingerprints)).
		Int("labels", len(labels)).
		Int("samples", len(ordered.Samples)).
		Msg("Merged experiments")
	return dataset.New(fpm, pm, ordered, meta)
}

func probabilityRow(probs *core.Matrix, label string, row canon.Row) []float64 {
	if probs != nil {
		if p, ok := probs.Row(label); ok {
			return append([]float64(nil), p...)
		}
	}
	return row.Floats()
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
