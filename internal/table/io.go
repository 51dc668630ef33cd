package table

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/23skdu/qemistree/internal/core"
	qerrors "github.com/23skdu/qemistree/internal/errors"
)

// keyColumn is used as the row key of feature data tables when present.
const keyColumn = "cluster index"

func newTSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.Comment = 0
	return cr
}

func newTSVWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

// ReadAbundance parses a tab-separated feature x sample table. The first
// header cell names the feature column; the rest are sample identifiers.
func ReadAbundance(r io.Reader) (*Abundance, error) {
	records, err := newTSVReader(r).ReadAll()
	if err != nil {
		return nil, qerrors.WrapParseError(err, "read_abundance", "malformed table")
	}
	records = dropComments(records)
	if len(records) == 0 || len(records[0]) < 1 {
		return nil, core.NewEmptyInputError("read_abundance", "table has no header")
	}
	samples := append([]string(nil), records[0][1:]...)
	features := make([]string, 0, len(records)-1)
	values := make([][]float64, 0, len(records)-1)
	for line, rec := range records[1:] {
		if len(rec) != len(samples)+1 {
			return nil, qerrors.NewParseError("read_abundance", "wrong number of fields").
				WithContext("line", line+2)
		}
		row := make([]float64, len(samples))
		for j, cell := range rec[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, qerrors.WrapParseError(err, "read_abundance", "non-numeric abundance").
					WithContext("line", line+2).WithContext("sample", samples[j])
			}
			row[j] = v
		}
		features = append(features, strings.TrimSpace(rec[0]))
		values = append(values, row)
	}
	return NewAbundance(features, samples, values)
}

// WriteAbundance writes a in the format read by ReadAbundance.
func WriteAbundance(w io.Writer, a *Abundance, keyName string) error {
	cw := newTSVWriter(w)
	if err := cw.Write(append([]string{keyName}, a.Samples...)); err != nil {
		return err
	}
	for i, f := range a.Features {
		rec := make([]string, 0, len(a.Samples)+1)
		rec = append(rec, f)
		for _, v := range a.Values[i] {
			rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMetadata parses a tab-separated feature data table. The row key is the
// "cluster index" column when present, otherwise the first column. All
// values are kept as strings.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	records, err := newTSVReader(r).ReadAll()
	if err != nil {
		return nil, qerrors.WrapParseError(err, "read_metadata", "malformed table")
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, core.NewEmptyInputError("read_metadata", "table has no header")
	}
	header := records[0]
	key := 0
	for j, h := range header {
		if h == keyColumn {
			key = j
			break
		}
	}
	columns := make([]string, 0, len(header)-1)
	for j, h := range header {
		if j != key {
			columns = append(columns, h)
		}
	}
	ids := make([]string, 0, len(records)-1)
	values := make([][]string, 0, len(records)-1)
	for line, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, qerrors.NewParseError("read_metadata", "wrong number of fields").
				WithContext("line", line+2)
		}
		row := make([]string, 0, len(columns))
		for j, cell := range rec {
			if j != key {
				row = append(row, strings.TrimSpace(cell))
			}
		}
		ids = append(ids, strings.TrimSpace(rec[key]))
		values = append(values, row)
	}
	return NewMetadata(ids, columns, values)
}

// WriteMetadata writes m with keyName as the first header cell.
func WriteMetadata(w io.Writer, m *Metadata, keyName string) error {
	cw := newTSVWriter(w)
	if err := cw.Write(append([]string{keyName}, m.Columns...)); err != nil {
		return err
	}
	for i, id := range m.IDs {
		if err := cw.Write(append([]string{id}, m.Values[i]...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// dropComments removes "# Constructed from biom file" style preamble rows
// that precede the real header in exported feature tables.
func dropComments(records [][]string) [][]string {
	for len(records) > 1 && len(records[0]) == 1 && strings.HasPrefix(records[0][0], "# ") {
		records = records[1:]
	}
	return records
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
