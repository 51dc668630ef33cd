package distance

import (
	"fmt"
	"math"
	"time"

	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/dataset"
	"github.com/23skdu/qemistree/internal/metrics"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/rs/zerolog"
)

// DefaultMZTolerance is the precursor mass window for jaccard-mz.
const DefaultMZTolerance = 0.01

// Options tune the mass-aware metric.
type Options struct {
	MZTolerance float64
	MassColumn  string
}

// DefaultOptions returns the options used by the command line.
func DefaultOptions() Options {
	return Options{MZTolerance: DefaultMZTolerance, MassColumn: table.DefaultMassColumn}
}

// Engine computes pairwise distances.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates an Engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Pairwise returns the condensed distance matrix over ds rows in ds order.
// Binary metrics use the fingerprint bitmaps; euclidean and cosine use the
// probability rows.
func (e *Engine) Pairwise(ds *dataset.Dataset, metric core.DistanceMetric, opts Options) (*Condensed, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, core.NewEmptyInputError("distance", "no rows")
	}
	if opts.MZTolerance < 0 || math.IsNaN(opts.MZTolerance) {
		return nil, core.NewInvalidArgumentError("mz_tolerance", fmt.Sprintf("must be non-negative, got %g", opts.MZTolerance))
	}
	start := time.Now()

	var pair func(i, j int) float64
	switch metric {
	case core.MetricJaccard:
		bits := bitmaps(ds)
		pair = func(i, j int) float64 { return Jaccard(bits[i], bits[j]) }
	case core.MetricJaccardMZ:
		column := opts.MassColumn
		if column == "" {
			column = table.DefaultMassColumn
		}
		masses, err := ds.Masses(column)
		if err != nil {
			return nil, err
		}
		bits := bitmaps(ds)
		tol := opts.MZTolerance
		pair = func(i, j int) float64 { return JaccardMZ(bits[i], bits[j], masses[i], masses[j], tol) }
	case core.MetricEuclidean:
		p := ds.Probabilities
		pair = func(i, j int) float64 { return Euclidean(p.RawRow(i), p.RawRow(j)) }
	case core.MetricCosine:
		p := ds.Probabilities
		pair = func(i, j int) float64 { return Cosine(p.RawRow(i), p.RawRow(j)) }
	default:
		return nil, core.NewInvalidArgumentError("metric", "unknown distance metric "+string(metric))
	}

	n := ds.Len()
	values := make([]float64, Size(n))
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			values[k] = pair(i, j)
			k++
		}
	}

	metrics.DistancePairsTotal.WithLabelValues(string(metric)).Add(float64(len(values)))
	metrics.StageDurationSeconds.WithLabelValues("distance").Observe(time.Since(start).Seconds())
	e.logger.Info().
		Str("metric", string(metric)).
		Int("rows", n).
		Int("pairs", len(values)).
		Dur("elapsed", time.Since(start)).
		Msg("Computed pairwise distances")
	return NewCondensed(append([]string(nil), ds.Labels()...), values)
}

func bitmaps(ds *dataset.Dataset) []*roaring.Bitmap {
	out := make([]*roaring.Bitmap, ds.Len())
	for i, r := range ds.Fingerprints.Rows {
		out[i] = r.Bits()
	}
	return out
}
