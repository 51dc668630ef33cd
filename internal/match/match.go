// Package match reconciles one experiment's fingerprints with its abundance
// table and feature metadata, re-keying every row by canonical label.
package match

import (
	"sort"
	"time"

	"github.com/23skdu/qemistree/internal/canon"
	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/metrics"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/rs/zerolog"
)

// Matcher implements the table matching stage.
type Matcher struct {
	logger zerolog.Logger
	policy core.MatchPolicy
}

// NewMatcher creates a Matcher with the given unmatched-feature policy.
func NewMatcher(logger zerolog.Logger, policy core.MatchPolicy) *Matcher {
	return &Matcher{logger: logger, policy: policy}
}

// Policy returns the matcher's unmatched-feature policy.
func (m *Matcher) Policy() core.MatchPolicy { return m.policy }

// Match restricts the abundance table to the fingerprinted features,
// binarizes and labels the fingerprints, and collapses features sharing a
// label: one fingerprint row is kept, abundances are summed and the
// original identifiers are comma-joined into metadata. md may be nil.
func (m *Matcher) Match(fps *core.Matrix, ab *table.Abundance, md *table.Metadata) (*dataset.Dataset, error) {
	start := time.Now()
	defer func() {
		metrics.StageDurationSeconds.WithLabelValues("match").Observe(time.Since(start).Seconds())
	}()

	if fps.Empty() {
		return nil, core.NewEmptyInputError("match", "cannot have empty fingerprint table")
	}
	if ab.Empty() {
		return nil, core.NewEmptyInputError("match", "cannot have empty feature table")
	}

	var kept, missing []string
	for _, id := range fps.IDs {
		if ab.Has(id) {
			kept = append(kept, id)
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sorted := append([]string(nil), missing...)
		sort.Strings(sorted)
		if m.policy == core.MatchStrict {
			return nil, &core.UnmatchedFeaturesError{IDs: sorted}
		}
		metrics.MatchedRowsTotal.WithLabelValues("dropped").Add(float64(len(missing)))
		m.logger.Warn().
			Strs("features", sorted).
			Int("dropped", len(missing)).
			Msg("The following fingerprints were not found in the feature table and were dropped")
		if len(kept) == 0 {
			return nil, core.NewEmptyInputError("match", "no fingerprinted feature is present in the feature table")
		}
	}
	metrics.MatchedRowsTotal.WithLabelValues("matched").Add(float64(len(kept)))

	probs := fps
	if len(missing) > 0 {
		var err error
		if probs, err = fps.SelectRows(kept); err != nil {
			return nil, err
		}
	}
	filtered, err := ab.Subset(kept)
	if err != nil {
		return nil, err
	}

	bin, err := canon.Binarize(probs, canon.Cutoff)
	if err != nil {
		return nil, err
	}
	labels := canon.Labels(bin)
	groups := canon.GroupByLabel(bin)

	ids := make([]string, len(groups))
	rows := make([]canon.Row, len(groups))
	probRows := make([][]float64, len(groups))
	mdb := table.NewBuilder(table.ColumnFeatureID)
	for i, g := range groups {
		ids[i] = g.Label
		rows[i] = g.Row
		probRows[i] = append([]float64(nil), probs.RawRow(g.First)...)
		mdb.Set(g.Label, labelRecord(g.Members, md))
	}

	relabeledFps, err := canon.NewMatrix(ids, append([]string(nil), bin.Columns...), rows)
	if err != nil {
		return nil, err
	}
	relabeledProbs, err := core.NewMatrix(append([]string(nil), ids...), append([]string(nil), probs.Columns...), probRows)
	if err != nil {
		return nil, err
	}
	collapsed, err := filtered.Relabel(labels)
	if err != nil {
		return nil, err
	}
	meta, err := mdb.Build()
	if err != nil {
		return nil, err
	}

	metrics.LabelsTotal.WithLabelValues("match").Add(float64(len(ids)))
	m.logger.Info().
		Int("features", len(kept)).
		Int("labels", len(ids)).
		Int("samples", len(collapsed.Samples)).
		Msg("Matched fingerprints to feature table")
	return dataset.New(relabeledFps, relabeledProbs, collapsed, meta)
}

// labelRecord builds the metadata of one label: the joined identifiers of
// every contributing feature plus the first non-empty value of each
// feature data column.
func labelRecord(members []string, md *table.Metadata) map[string]string {
	rec := map[string]string{}
	for _, id := range members {
		rec[table.ColumnFeatureID] = table.JoinField(rec[table.ColumnFeatureID], id)
		if !md.HasRow(id) {
			continue
		}
		for col, v := range md.Record(id) {
			if col == table.ColumnFeatureID {
				continue
			}
			if rec[col] == "" {
				rec[col] = v
			}
		}
	}
	if md != nil {
		for _, col := range md.Columns {
			if _, ok := rec[col]; !ok {
				rec[col] = ""
			}
		}
	}
	return rec
}
