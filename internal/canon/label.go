package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// Label returns the canonical label of a binary row: the hex SHA-256 digest
// of its byte serialization. Column order is part of the content, so labels
// are only comparable between column-aligned matrices.
func Label(r Row) string {
	sum := sha256.Sum256(r.Bytes())
	return hex.EncodeToString(sum[:])
}

// Labels returns the label of every row of m, in row order.
func Labels(m *Matrix) []string {
	out := make([]string, m.Len())
	for i, r := range m.Rows {
		out[i] = Label(r)
	}
	return out
}

// Group is one label's worth of rows.
type Group struct {
	Label string
	// Members lists the row identifiers sharing Label, in row order.
	Members []string
	// Row is the first occurrence's binary row.
	Row Row
	// First is the row index of the first occurrence.
	First int
}

// GroupByLabel partitions the rows of m by canonical label. Groups are
// returned in order of first occurrence.
func GroupByLabel(m *Matrix) []Group {
	var groups []Group
	pos := make(map[string]int)
	for i, r := range m.Rows {
		label := Label(r)
		if g, ok := pos[label]; ok {
			groups[g].Members = append(groups[g].Members, m.IDs[i])
			continue
		}
		pos[label] = len(groups)
		groups = append(groups, Group{
			Label:   label,
			Members: []string{m.IDs[i]},
			Row:     r,
			First:   i,
		})
	}
	return groups
}
