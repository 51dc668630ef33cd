package hierarchy

import (
	"time"

	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/distance"
	"github.com/23skdu/qemistree/internal/metrics"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/rs/zerolog"
)

// Builder clusters datasets into trees and prunes them.
type Builder struct {
	logger zerolog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{logger: logger}
}

// Build runs average linkage over c and labels the leaves with ds labels.
// c must follow ds row order.
func (b *Builder) Build(ds *dataset.Dataset, c *distance.Condensed) (*Tree, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, core.NewEmptyInputError("tree", "no rows")
	}
	labels := ds.Labels()
	if c.N() != len(labels) {
		return nil, core.NewInvalidArgumentError("distances", "distance matrix does not cover the dataset rows")
	}
	for i, id := range c.IDs {
		if id != labels[i] {
			return nil, core.NewInvalidArgumentError("distances", "distance matrix row order differs from dataset at "+id)
		}
	}
	start := time.Now()

	l, err := AverageLinkage(c)
	if err != nil {
		return nil, err
	}
	t, err := FromLinkage(l, labels)
	if err != nil {
		return nil, err
	}

	metrics.TreeLeaves.WithLabelValues("built").Set(float64(len(labels)))
	metrics.StageDurationSeconds.WithLabelValues("tree").Observe(time.Since(start).Seconds())
	b.logger.Info().
		Int("leaves", len(labels)).
		Int("internal", t.InternalCount()).
		Msg("Built hierarchy")
	return t, nil
}

// Prune resolves opts against md and prunes t.
func (b *Builder) Prune(t *Tree, md *table.Metadata, opts PruneOptions) (*Tree, error) {
	column, err := ResolveColumn(md, opts)
	if err != nil {
		return nil, err
	}
	pruned, err := Prune(t, md, column)
	if err != nil {
		b.logger.Error().Err(err).Str("column", column).Msg("Pruning aborted")
		return nil, err
	}
	metrics.TreeLeaves.WithLabelValues("pruned").Set(float64(pruned.LeafCount()))
	b.logger.Info().
		Str("column", column).
		Int("before", t.LeafCount()).
		Int("after", pruned.LeafCount()).
		Msg("Pruned hierarchy")
	return pruned, nil
}
