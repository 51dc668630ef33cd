package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/23skdu/qemistree/internal/flight"
	"github.com/23skdu/qemistree/internal/hierarchy"
	"github.com/23skdu/qemistree/internal/logging"
	"github.com/23skdu/qemistree/internal/pipeline"
	"github.com/23skdu/qemistree/internal/search"
	"github.com/23skdu/qemistree/internal/storage"
	"github.com/23skdu/qemistree/internal/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const usage = `usage: qemistree <command> [flags]

commands:
  make-hierarchy  collate, match and merge experiments, then build the tree
  prune           keep only annotated leaves of a tree
  query           run SQL over the parquet snapshots of an output directory
  neighbors       list the features most similar to a label
  serve           serve an output directory over Arrow Flight
`

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "qemistree:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "make-hierarchy":
		return makeHierarchy(ctx, &cfg, rest)
	case "prune":
		return prune(&cfg, rest)
	case "query":
		return query(ctx, &cfg, rest, stdout)
	case "neighbors":
		return neighbors(&cfg, rest, stdout)
	case "serve":
		return serve(ctx, &cfg, rest)
	case "help", "-h", "--help":
		_, err := io.WriteString(stdout, usage)
		return err
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

// commonFlags registers the flags every subcommand accepts.
func commonFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or console")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "address for Prometheus metrics (empty disables)")
}

// setup validates cfg, builds the logger and starts the metrics endpoint.
func setup(cfg *Config) (zerolog.Logger, error) {
	if err := ValidateConfig(cfg); err != nil {
		return zerolog.Nop(), err
	}
	logger, err := logging.NewLogger(cfg.LoggingConfig())
	if err != nil {
		return zerolog.Nop(), err
	}
	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info().Str("address", cfg.MetricsAddr).Msg("Starting metrics server")
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("Failed to start metrics server")
			}
		}()
	}
	return logger, nil
}

func makeHierarchy(ctx context.Context, cfg *Config, args []string) error {
	fs := flag.NewFlagSet("make-hierarchy", flag.ContinueOnError)
	commonFlags(fs, cfg)
	var runDirs, tables, metadata listFlag
	fs.Var(&runDirs, "fingerprints", "fingerprint run directory (repeat once per experiment)")
	fs.Var(&tables, "table", "feature table TSV (repeat once per experiment)")
	fs.Var(&metadata, "metadata", "feature metadata TSV (optional, repeat once per experiment)")
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "output directory")
	fs.StringVar(&cfg.Metric, "metric", cfg.Metric, "distance metric")
	fs.Float64Var(&cfg.MZTolerance, "mz-tolerance", cfg.MZTolerance, "precursor m/z tolerance for jaccard-mz")
	fs.StringVar(&cfg.MatchPolicy, "policy", cfg.MatchPolicy, "unmatched feature policy: strict or lenient")
	fs.StringVar(&cfg.MassColumn, "mass-column", cfg.MassColumn, "metadata column with precursor m/z")
	fs.StringVar(&cfg.Restrict, "restrict", cfg.Restrict, "keep only substructures of this type, e.g. PUBCHEM")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "collate workers (0 = one per CPU)")
	dedup := fs.Bool("dedup", false, "collapse identical fingerprints across experiments")
	structures := fs.Bool("structures", true, "attach predicted SMILES when available")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := setup(cfg)
	if err != nil {
		return err
	}
	opts, err := cfg.PipelineOptions()
	if err != nil {
		return err
	}
	opts.Dedup = *dedup
	opts.Structures = *structures

	in := pipeline.Inputs{RunDirs: runDirs}
	for _, p := range tables {
		ab, err := storage.ReadAbundanceFile(p)
		if err != nil {
			return err
		}
		in.Tables = append(in.Tables, ab)
	}
	if len(metadata) > 0 {
		in.Metadata = make([]*table.Metadata, 0, len(metadata))
		for _, p := range metadata {
			md, err := storage.ReadMetadataFile(p)
			if err != nil {
				return err
			}
			in.Metadata = append(in.Metadata, md)
		}
	}

	res, err := pipeline.MakeHierarchy(ctx, logger, in, opts)
	if err != nil {
		return err
	}
	if err := storage.WriteArtifacts(cfg.OutputDir, res.Merged, res.Tree); err != nil {
		return err
	}
	logger.Info().
		Str("output", cfg.OutputDir).
		Int("features", res.Merged.Len()).
		Int("leaves", res.Tree.LeafCount()).
		Msg("Hierarchy written")
	return nil
}

func prune(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	commonFlags(fs, cfg)
	treePath := fs.String("tree", "", "Newick tree (default <output>/tree.nwk)")
	mdPath := fs.String("metadata", "", "feature metadata TSV (default <output>/metadata.tsv)")
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "directory holding the hierarchy artifacts")
	pruneType := fs.String("type", string(hierarchy.PruneClassyfire), "classyfire, smiles or column")
	level := fs.String("level", hierarchy.DefaultClassyfireLevel, "classyfire level")
	column := fs.String("column", "", "metadata column for -type column")
	out := fs.String("out", "", "pruned tree path (default <output>/pruned.nwk)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := setup(cfg)
	if err != nil {
		return err
	}
	if *treePath == "" {
		*treePath = filepath.Join(cfg.OutputDir, storage.TreeFile)
	}
	if *mdPath == "" {
		*mdPath = filepath.Join(cfg.OutputDir, storage.MetadataFile)
	}
	if *out == "" {
		*out = filepath.Join(cfg.OutputDir, "pruned.nwk")
	}

	tree, err := storage.ReadTree(*treePath)
	if err != nil {
		return err
	}
	md, err := storage.ReadMetadataFile(*mdPath)
	if err != nil {
		return err
	}
	pruned, err := hierarchy.NewBuilder(logger).Prune(tree, md, hierarchy.PruneOptions{
		Type:   hierarchy.PruneType(*pruneType),
		Level:  *level,
		Column: *column,
	})
	if err != nil {
		return err
	}
	return storage.WriteTree(*out, pruned)
}

func query(ctx context.Context, cfg *Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	commonFlags(fs, cfg)
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "directory holding the snapshots")
	sqlText := fs.String("sql", "", "query to run; empty prints summed abundance per sample")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := setup(cfg); err != nil {
		return err
	}
	adapter := storage.NewDuckDBAdapter(cfg.OutputDir)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if *sqlText == "" {
		totals, err := adapter.SampleTotals(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "sample\ttotal")
		for _, t := range totals {
			fmt.Fprintf(tw, "%s\t%g\n", t.Sample, t.Total)
		}
		return nil
	}

	rdr, cleanup, err := adapter.Query(ctx, *sqlText)
	if err != nil {
		return err
	}
	defer cleanup()

	schema := rdr.Schema()
	names := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for rdr.Next() {
		rec := rdr.Record()
		cells := make([]string, rec.NumCols())
		for r := 0; r < int(rec.NumRows()); r++ {
			for c := range cells {
				cells[c] = rec.Column(c).ValueStr(r)
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
	}
	return rdr.Err()
}

func neighbors(cfg *Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("neighbors", flag.ContinueOnError)
	commonFlags(fs, cfg)
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "directory holding the snapshots")
	label := fs.String("label", "", "feature label to look up")
	k := fs.Int("k", 10, "number of neighbors")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := setup(cfg)
	if err != nil {
		return err
	}
	if *label == "" {
		return errors.New("neighbors: -label is required")
	}
	ds, err := storage.ReadSnapshot(cfg.OutputDir)
	if err != nil {
		return err
	}
	idx, err := search.NewFeatureIndex(ds, logger)
	if err != nil {
		return err
	}
	hits, err := idx.Neighbors(*label, *k)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "label\tdistance")
	for _, h := range hits {
		fmt.Fprintf(tw, "%s\t%.6f\n", h.Label, h.Distance)
	}
	return nil
}

func serve(ctx context.Context, cfg *Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	commonFlags(fs, cfg)
	fs.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "directory holding the snapshots")
	fs.StringVar(&cfg.FlightAddr, "listen", cfg.FlightAddr, "address for the Flight service")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := setup(cfg)
	if err != nil {
		return err
	}
	ds, err := storage.ReadSnapshot(cfg.OutputDir)
	if err != nil {
		return err
	}
	srv, err := flight.NewServer(ds, logger.With().Str("component", "flight").Logger(),
		flight.WithGRPCOptions(cfg.BuildGRPCServerOptions()...))
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Serve(ctx, cfg.FlightAddr)
}
