// Package fingerprint reads per-feature fingerprint probability vectors from
// a prediction run directory and assembles them into a feature x
// substructure matrix.
package fingerprint

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/23skdu/qemistree/internal/core"
	qerrors "github.com/23skdu/qemistree/internal/errors"
	"github.com/23skdu/qemistree/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// fingerprintDir is the per-feature sub-directory holding the vector file.
const fingerprintDir = "fingerprints"

// Store collates run directories. It carries no global state: the optional
// property table replaces the run's own index for vocabulary lookups.
type Store struct {
	logger     zerolog.Logger
	workers    int
	properties *Index
}

// Option configures a Store.
type Option func(*Store)

// WithWorkers bounds the number of feature folders parsed concurrently.
func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithProperties supplies a substructure table used to resolve type tags
// instead of the run's index.
func WithProperties(idx *Index) Option {
	return func(s *Store) { s.properties = idx }
}

// NewStore creates a Store.
func NewStore(logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{logger: logger, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type parsed struct {
	id     string
	folder string
	values []float64
	reason string
}

// Collate parses every feature folder under dir into a Matrix keyed by
// feature identifier, with columns renamed to absolute substructure
// identifiers. When restrict is non-empty only columns of that vocabulary
// are kept. Unreadable or malformed feature files are skipped; an empty
// result is an EmptyInputError.
func (s *Store) Collate(ctx context.Context, dir, restrict string) (*core.Matrix, error) {
	start := time.Now()
	defer func() {
		metrics.StageDurationSeconds.WithLabelValues("collate").Observe(time.Since(start).Seconds())
	}()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, qerrors.WrapStorageError(err, "collate", "cannot list run directory").WithContext("dir", dir)
	}

	var folders []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, e.Name(), fingerprintDir))
		if err != nil || !info.IsDir() {
			continue
		}
		folders = append(folders, e.Name())
	}

	results := make([]parsed, len(folders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, folder := range folders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = parseFolder(filepath.Join(dir, folder), folder)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	parseable := 0
	for _, r := range results {
		if r.reason == "" {
			parseable++
		}
	}
	if parseable == 0 {
		return nil, core.NewEmptyInputError("collate",
			fmt.Sprintf("no parseable fingerprint files in %s", dir))
	}

	idx, err := LoadIndex(dir)
	if err != nil {
		return nil, err
	}

	rows := make(map[string][]float64)
	for _, r := range results {
		switch {
		case r.reason != "":
		case len(r.values) != idx.Len():
			r.reason = "width"
		case rows[r.id] != nil:
			r.reason = "duplicate"
		}
		if r.reason != "" {
			metrics.FingerprintFilesSkippedTotal.WithLabelValues(r.reason).Inc()
			s.logger.Warn().Str("folder", r.folder).Str("reason", r.reason).Msg("Skipping fingerprint file")
			continue
		}
		rows[r.id] = r.values
	}
	if len(rows) == 0 {
		return nil, core.NewEmptyInputError("collate",
			fmt.Sprintf("no parseable fingerprint files in %s", dir))
	}

	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	values := make([][]float64, len(ids))
	for i, id := range ids {
		values[i] = rows[id]
	}

	columns := make([]string, idx.Len())
	for p := range columns {
		abs, ok := idx.Absolute(p)
		if !ok {
			return nil, qerrors.NewParseError("collate", "index has no entry for vector position").
				WithContext("position", p)
		}
		columns[p] = abs
	}

	m, err := core.NewMatrix(ids, columns, values)
	if err != nil {
		return nil, err
	}
	if restrict != "" {
		vocab := idx.Vocabulary(restrict)
		if s.properties != nil {
			vocab = s.properties.Vocabulary(restrict)
		}
		m = m.SelectColumns(vocab)
		if m.Width() == 0 {
			return nil, core.NewEmptyInputError("collate",
				fmt.Sprintf("no substructures of type %s", restrict))
		}
	}

	metrics.FeaturesCollatedTotal.Add(float64(m.Rows()))
	s.logger.Info().
		Str("dir", dir).
		Int("features", m.Rows()).
		Int("substructures", m.Width()).
		Str("restrict", restrict).
		Msg("Collated fingerprints")
	return m, nil
}

// FeatureID returns the feature identifier encoded in a folder name: the
// suffix after the last underscore.
func FeatureID(folder string) string {
	if i := strings.LastIndex(folder, "_"); i >= 0 {
		return folder[i+1:]
	}
	return folder
}

func parseFolder(path, folder string) parsed {
	out := parsed{id: FeatureID(folder), folder: folder}
	entries, err := os.ReadDir(filepath.Join(path, fingerprintDir))
	if err != nil {
		out.reason = "unreadable"
		return out
	}
	var file string
	for _, e := range entries {
		if e.Type().IsRegular() {
			file = filepath.Join(path, fingerprintDir, e.Name())
			break
		}
	}
	if file == "" {
		out.reason = "missing"
		return out
	}
	values, err := readVector(file)
	if err != nil {
		out.reason = "malformed"
		return out
	}
	if len(values) == 0 {
		out.reason = "empty"
		return out
	}
	out.values = values
	return out
}

// readVector parses a newline-delimited probability vector.
func readVector(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, sc.Err()
}
