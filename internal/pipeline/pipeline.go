// Package pipeline wires the stages together: collate fingerprints per
// experiment, match them against their feature tables, merge experiments,
// compute distances and build the hierarchy.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/distance"
	"github.com/23skdu/qemistree/internal/fingerprint"
	"github.com/23skdu/qemistree/internal/hierarchy"
	"github.com/23skdu/qemistree/internal/match"
	"github.com/23skdu/qemistree/internal/merge"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/rs/zerolog"
)

// Inputs are the parallel per-experiment lists. Metadata may be nil as a
// whole or per experiment.
type Inputs struct {
	RunDirs  []string
	Tables   []*table.Abundance
	Metadata []*table.Metadata
}

// Options configure one run.
type Options struct {
	Metric   core.DistanceMetric
	Distance distance.Options
	Policy   core.MatchPolicy
	// Restrict keeps only substructures of this type, e.g. PUBCHEM.
	Restrict string
	Workers  int
	// Dedup collapses identical fingerprints across experiments after the
	// merge.
	Dedup bool
	// Structures attaches predicted SMILES when the run directory has a
	// structure summary.
	Structures bool
}

// DefaultOptions returns the command line defaults.
func DefaultOptions() Options {
	return Options{
		Metric:     core.MetricJaccardMZ,
		Distance:   distance.DefaultOptions(),
		Policy:     core.MatchStrict,
		Workers:    runtime.NumCPU(),
		Structures: true,
	}
}

// Result is the output of MakeHierarchy.
type Result struct {
	Tree      *hierarchy.Tree
	Merged    *dataset.Dataset
	Distances *distance.Condensed
}

// MakeHierarchy runs the whole pipeline. Context cancellation is checked
// between stages and during collation.
func MakeHierarchy(ctx context.Context, logger zerolog.Logger, in Inputs, opts Options) (*Result, error) {
	lists := map[string]int{
		"fingerprints":   len(in.RunDirs),
		"feature_tables": len(in.Tables),
	}
	if in.Metadata != nil {
		lists["feature_data"] = len(in.Metadata)
	}
	if err := core.CheckCorrespondence(lists); err != nil {
		return nil, err
	}
	if len(in.RunDirs) == 0 {
		return nil, core.NewEmptyInputError("make_hierarchy", "no experiments")
	}
	for i, t := range in.Tables {
		if t.Empty() {
			return nil, core.NewEmptyInputError("make_hierarchy",
				fmt.Sprintf("feature table %d is empty", i+1))
		}
	}

	store := fingerprint.NewStore(logger, fingerprint.WithWorkers(opts.Workers))
	matcher := match.NewMatcher(logger, opts.Policy)
	merger := merge.NewMerger(logger)

	matched := make([]*dataset.Dataset, len(in.RunDirs))
	for i, dir := range in.RunDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log := logger.With().Int("experiment", i+1).Str("dir", dir).Logger()

		fps, err := store.Collate(ctx, dir, opts.Restrict)
		if err != nil {
			return nil, err
		}
		var md *table.Metadata
		if in.Metadata != nil {
			md = in.Metadata[i]
		}
		if opts.Structures {
			md, err = attachStructures(log, dir, fps.IDs, md)
			if err != nil {
				return nil, err
			}
		}
		matched[i], err = matcher.Match(fps, in.Tables[i], md)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	merged, err := merger.Merge(matched)
	if err != nil {
		return nil, err
	}
	if opts.Dedup {
		if merged, err = merger.Dedup(merged); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	distances, err := distance.NewEngine(logger).Pairwise(merged, opts.Metric, opts.Distance)
	if err != nil {
		return nil, err
	}
	tree, err := hierarchy.NewBuilder(logger).Build(merged, distances)
	if err != nil {
		return nil, err
	}
	return &Result{Tree: tree, Merged: merged, Distances: distances}, nil
}

// attachStructures adds the csi_smiles column to md. A run without a
// structure summary is left as is.
func attachStructures(logger zerolog.Logger, dir string, ids []string, md *table.Metadata) (*table.Metadata, error) {
	structures, err := fingerprint.CollateStructures(dir, ids)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug().Msg("No structure summary, skipping SMILES")
		return md, nil
	}
	if err != nil {
		return nil, err
	}

	var b *table.Builder
	if md != nil {
		b = table.NewBuilder(md.Columns...)
		for _, id := range md.IDs {
			b.Set(id, md.Record(id))
		}
	} else {
		b = table.NewBuilder()
	}
	for _, id := range structures.IDs {
		if md != nil && !md.HasRow(id) {
			continue
		}
		b.Set(id, map[string]string{fingerprint.ColumnCSISmiles: structures.Record(id)[fingerprint.ColumnCSISmiles]})
	}
	return b.Build()
}
