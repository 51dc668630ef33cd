package fingerprint

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/23skdu/qemistree/internal/core"
	qerrors "github.com/23skdu/qemistree/internal/errors"
	"github.com/23skdu/qemistree/internal/table"
)

// Structure annotation constants.
const (
	// StructureSummaryFile lists the top structure candidate per feature.
	StructureSummaryFile = "compound_identifications.tsv"
	// ColumnCSISmiles receives the predicted SMILES of each feature.
	ColumnCSISmiles = "csi_smiles"
	// Missing marks features without a usable annotation.
	Missing = "missing"
)

// CollateStructures reads the run's structure summary and returns one
// metadata row per id with the predicted SMILES, or Missing.
func CollateStructures(dir string, ids []string) (*table.Metadata, error) {
	if len(ids) == 0 {
		return nil, core.NewEmptyInputError("collate_structures", "no feature identifiers")
	}
	f, err := os.Open(filepath.Join(dir, StructureSummaryFile))
	if err != nil {
		return nil, qerrors.WrapStorageError(err, "collate_structures", "cannot open structure summary").
			WithContext("dir", dir)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, qerrors.WrapParseError(err, "collate_structures", "malformed structure summary")
	}

	smiles := make(map[string]string)
	if len(records) > 0 {
		idCol, smilesCol := -1, -1
		for j, h := range records[0] {
			switch strings.TrimSpace(h) {
			case "id":
				idCol = j
			case "smiles":
				smilesCol = j
			}
		}
		if idCol < 0 || smilesCol < 0 {
			return nil, qerrors.NewParseError("collate_structures", "header must name id and smiles")
		}
		for _, rec := range records[1:] {
			if len(rec) <= idCol || len(rec) <= smilesCol {
				continue
			}
			parts := strings.SplitN(rec[idCol], "_", 3)
			if len(parts) < 3 {
				continue
			}
			smiles[parts[2]] = strings.TrimSpace(rec[smilesCol])
		}
	}

	values := make([][]string, len(ids))
	for i, id := range ids {
		v := smiles[id]
		if v == "" {
			v = Missing
		}
		values[i] = []string{v}
	}
	return table.NewMetadata(append([]string(nil), ids...), []string{ColumnCSISmiles}, values)
}
