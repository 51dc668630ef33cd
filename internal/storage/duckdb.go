package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	qerrors "github.com/23skdu/qemistree/internal/errors"
	"github.com/23skdu/qemistree/internal/metrics"
	"github.com/apache/arrow-go/v18/arrow/array"
	duckdb "github.com/marcboeker/go-duckdb"
)

// DuckDBAdapter runs analytical SQL over the parquet snapshots of an
// output directory. Each snapshot file is visible as a view named after
// its table: fingerprints, abundance, metadata.
type DuckDBAdapter struct {
	dataPath string
}

func NewDuckDBAdapter(dataPath string) *DuckDBAdapter {
	return &DuckDBAdapter{dataPath: dataPath}
}

// Query executes query with every snapshot registered as a view.
// Returns a RecordReader and a cleanup function. The caller must call cleanup() when done.
func (d *DuckDBAdapter) Query(ctx context.Context, query string) (array.RecordReader, func(), error) {
	start := time.Now()
	defer func() {
		metrics.QueryDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, nil, qerrors.WrapQueryError(err, "duckdb_open", "failed to open duckdb")
	}

	// A dedicated connection exposes the driver-specific Arrow interface
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, qerrors.WrapQueryError(err, "duckdb_conn", "failed to open conn")
	}

	var ar *duckdb.Arrow
	err = conn.Raw(func(c interface{}) error {
		dc, ok := c.(driver.Conn)
		if !ok {
			return fmt.Errorf("not a duckdb driver connection")
		}
		var err error
		ar, err = duckdb.NewArrowFromConn(dc)
		return err
	})
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, qerrors.WrapQueryError(err, "duckdb_arrow", "failed to init arrow")
	}

	views := 0
	for _, name := range []string{TableFingerprints, TableAbundance, TableMetadata} {
		path := filepath.Join(d.dataPath, snapshotDirName, name+".parquet")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		createViewSQL := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM read_parquet('%s')",
			name, strings.ReplaceAll(path, "'", "''"))
		if _, err := conn.ExecContext(ctx, createViewSQL); err != nil {
			_ = conn.Close()
			_ = db.Close()
			return nil, nil, qerrors.WrapQueryError(err, "duckdb_view", "failed to create view for snapshot").
				WithContext("table", name)
		}
		views++
	}
	if views == 0 {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, NewArtifactError("query", filepath.Join(d.dataPath, snapshotDirName), os.ErrNotExist)
	}

	rdr, err := ar.QueryContext(ctx, query)
	if err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, nil, qerrors.WrapQueryError(err, "duckdb_query", "query execution failed")
	}

	cleanup := func() {
		rdr.Release()
		_ = conn.Close()
		_ = db.Close()
	}
	return rdr, cleanup, nil
}

// SampleTotal is the summed abundance of one sample.
type SampleTotal struct {
	Sample string
	Total  float64
}

const sampleTotalsSQL = `SELECT sample, CAST(SUM(value) AS DOUBLE) AS total
FROM abundance GROUP BY sample ORDER BY sample`

// SampleTotals sums abundance per sample.
func (d *DuckDBAdapter) SampleTotals(ctx context.Context) ([]SampleTotal, error) {
	rdr, cleanup, err := d.Query(ctx, sampleTotalsSQL)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var out []SampleTotal
	for rdr.Next() {
		rec := rdr.Record()
		totals, ok := rec.Column(1).(*array.Float64)
		if !ok {
			return nil, qerrors.New(qerrors.ErrorTypeQuery, "sample_totals",
				fmt.Sprintf("unexpected total column type %s", rec.Column(1).DataType()))
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			out = append(out, SampleTotal{Sample: stringAt(rec.Column(0), i), Total: totals.Value(i)})
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, qerrors.WrapQueryError(err, "sample_totals", "reading results failed")
	}
	return out, nil
}

func stringAt(col interface{ ValueStr(int) string }, i int) string {
	switch c := col.(type) {
	case *array.String:
		return c.Value(i)
	case *array.LargeString:
		return c.Value(i)
	}
	return col.ValueStr(i)
}
