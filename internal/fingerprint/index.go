package fingerprint

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/23skdu/qemistree/internal/core"
	qerrors "github.com/23skdu/qemistree/internal/errors"
)

// Index file names written by the prediction tool, in lookup order.
var IndexFileNames = []string{"fingerprints.csv", "csi_fingerid.tsv"}

// Substructure is one entry of the substructure index.
type Substructure struct {
	// Relative is the position in the raw probability vector.
	Relative int
	// Absolute is the identifier that is stable across runs.
	Absolute string
	// Type is the vocabulary tag, e.g. PUBCHEM or MACCS.
	Type string
}

// Index maps raw vector positions to absolute substructure identifiers.
type Index struct {
	Entries []Substructure

	byRelative map[int]int
	byAbsolute map[string]int
}

// ReadIndex parses a tab-separated index with a header naming at least
// relativeIndex and absoluteIndex. A type column is optional.
func ReadIndex(r io.Reader) (*Index, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, qerrors.WrapParseError(err, "read_index", "malformed substructure index")
	}
	if len(records) == 0 {
		return nil, core.NewEmptyInputError("read_index", "substructure index is empty")
	}
	rel, abs, typ := -1, -1, -1
	for j, h := range records[0] {
		switch strings.TrimSpace(h) {
		case "relativeIndex":
			rel = j
		case "absoluteIndex":
			abs = j
		case "type":
			typ = j
		}
	}
	if rel < 0 || abs < 0 {
		return nil, qerrors.NewParseError("read_index", "header must name relativeIndex and absoluteIndex")
	}

	idx := &Index{byRelative: make(map[int]int), byAbsolute: make(map[string]int)}
	for line, rec := range records[1:] {
		if len(rec) <= rel || len(rec) <= abs {
			return nil, qerrors.NewParseError("read_index", "short row").WithContext("line", line+2)
		}
		r, err := strconv.Atoi(strings.TrimSpace(rec[rel]))
		if err != nil {
			return nil, qerrors.WrapParseError(err, "read_index", "relativeIndex is not an integer").
				WithContext("line", line+2)
		}
		s := Substructure{Relative: r, Absolute: strings.TrimSpace(rec[abs])}
		if typ >= 0 && typ < len(rec) {
			s.Type = strings.TrimSpace(rec[typ])
		}
		if _, dup := idx.byRelative[r]; dup {
			return nil, qerrors.NewParseError("read_index", "duplicate relativeIndex").WithContext("line", line+2)
		}
		idx.byRelative[r] = len(idx.Entries)
		idx.byAbsolute[s.Absolute] = len(idx.Entries)
		idx.Entries = append(idx.Entries, s)
	}
	if len(idx.Entries) == 0 {
		return nil, core.NewEmptyInputError("read_index", "substructure index has no entries")
	}
	return idx, nil
}

// LoadIndex reads the first index file found in dir.
func LoadIndex(dir string) (*Index, error) {
	for _, name := range IndexFileNames {
		f, err := os.Open(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, qerrors.WrapStorageError(err, "load_index", "cannot open substructure index")
		}
		idx, err := ReadIndex(f)
		_ = f.Close()
		return idx, err
	}
	return nil, qerrors.NewParseError("load_index", "no substructure index in run directory").
		WithContext("dir", dir).WithContext("candidates", IndexFileNames)
}

// Len returns the number of entries.
func (x *Index) Len() int { return len(x.Entries) }

// Absolute returns the absolute identifier of a raw vector position.
func (x *Index) Absolute(relative int) (string, bool) {
	i, ok := x.byRelative[relative]
	if !ok {
		return "", false
	}
	return x.Entries[i].Absolute, true
}

// TypeOf returns the vocabulary tag of an absolute identifier.
func (x *Index) TypeOf(absolute string) (string, bool) {
	i, ok := x.byAbsolute[absolute]
	if !ok {
		return "", false
	}
	return x.Entries[i].Type, true
}

// Vocabulary returns the absolute identifiers tagged with typ.
func (x *Index) Vocabulary(typ string) map[string]bool {
	out := make(map[string]bool)
	for _, e := range x.Entries {
		if strings.EqualFold(e.Type, typ) {
			out[e.Absolute] = true
		}
	}
	return out
}
