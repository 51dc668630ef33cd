package merge

import (
	"time"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/metrics"
	"github.com/23skdu/qemistree/internal/table"
)

// Dedup is the explicit re-deduplication step across experiments. It strips
// the experiment qualifier and collapses rows sharing a canonical label:
// the first fingerprint is kept, abundances are summed, and the feature
// identifier and source fields are comma-joined. Other metadata fields keep
// their first non-empty value.
func (m *Merger) Dedup(ds *dataset.Dataset) (*dataset.Dataset, error) {
	start := time.Now()
	defer func() {
		metrics.StageDurationSeconds.WithLabelValues("dedup").Observe(time.Since(start).Seconds())
	}()

	var (
		labels   []string
		rows     []canon.Row
		probRows [][]float64
		pos      = make(map[string]int)
		mdb      = table.NewBuilder(ds.Metadata.Columns...)
	)
	for i, q := range ds.Labels() {
		label := Unqualify(q)
		rec := ds.Metadata.Record(q)
		if _, ok := pos[label]; ok {
			prev := mdb.Row(label)
			update := map[string]string{}
			for col, v := range rec {
				switch col {
				case table.ColumnFeatureID, table.ColumnSource:
					update[col] = table.JoinField(prev[col], v)
				default:
					if prev[col] == "" && v != "" {
						update[col] = v
					}
				}
			}
			mdb.Set(label, update)
			continue
		}
		pos[label] = len(labels)
		labels = append(labels, label)
		rows = append(rows, ds.Fingerprints.Rows[i])
		probRows = append(probRows, append([]float64(nil), ds.Probabilities.RawRow(i)...))
		mdb.Set(label, rec)
	}

	ab, err := ds.Abundance.Collapse(Unqualify)
	if err != nil {
		return nil, err
	}
	columns := ds.Fingerprints.Columns
	fpm, err := canon.NewMatrix(labels, append([]string(nil), columns...), rows)
	if err != nil {
		return nil, err
	}
	pm, err := core.NewMatrix(append([]string(nil), labels...), append([]string(nil), ds.Probabilities.Columns...), probRows)
	if err != nil {
		return nil, err
	}
	meta, err := mdb.Build()
	if err != nil {
		return nil, err
	}

	metrics.LabelsTotal.WithLabelValues("dedup").Add(float64(len(labels)))
	m.logger.Info().
		Int("before", ds.Len()).
		Int("after", len(labels)).
		Msg("Re-deduplicated merged labels")
	return dataset.New(fpm, pm, ab, meta)
}
