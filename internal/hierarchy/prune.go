package hierarchy

import (
	"fmt"
	"strings"

	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/table"
)

// MinAnnotatedLeaves is the smallest tree Prune will return.
const MinAnnotatedLeaves = 2

// PruneType selects which annotation column decides whether a leaf stays.
type PruneType string

const (
	PruneClassyfire PruneType = "classyfire"
	PruneSmiles     PruneType = "smiles"
	PruneColumn     PruneType = "column"
)

// ClassyfireLevels are the taxonomy columns a classyfire prune may use.
var ClassyfireLevels = []string{"kingdom", "superclass", "class", "subclass", "direct_parent"}

// DefaultClassyfireLevel is used when PruneOptions.Level is empty.
const DefaultClassyfireLevel = "class"

// Values that mark a leaf as unannotated, besides an empty cell.
var unannotated = map[string]bool{
	"":                           true,
	"missing":                    true,
	"unclassified":               true,
	"unexpected server response": true,
	"SMILE parse error":          true,
}

// PruneOptions pick the annotation column.
type PruneOptions struct {
	Type   PruneType
	Level  string
	Column string
}

// Annotated reports whether v counts as an annotation.
func Annotated(v string) bool {
	return !unannotated[strings.TrimSpace(v)]
}

// ResolveColumn maps opts to a metadata column of md.
func ResolveColumn(md *table.Metadata, opts PruneOptions) (string, error) {
	var column string
	switch opts.Type {
	case PruneClassyfire, "":
		column = opts.Level
		if column == "" {
			column = DefaultClassyfireLevel
		}
		known := false
		for _, l := range ClassyfireLevels {
			known = known || l == column
		}
		if !known {
			return "", core.NewInvalidArgumentError("level",
				fmt.Sprintf("%q is not one of %s", column, strings.Join(ClassyfireLevels, ", ")))
		}
	case PruneSmiles:
		column = "smiles"
		if !md.HasColumn(column) && md.HasColumn("csi_smiles") {
			column = "csi_smiles"
		}
	case PruneColumn:
		column = opts.Column
	default:
		return "", core.NewInvalidArgumentError("type", "unknown prune type "+string(opts.Type))
	}
	if column == "" || !md.HasColumn(column) {
		return "", core.NewInvalidArgumentError("column",
			fmt.Sprintf("feature data does not contain the column %q", column))
	}
	return column, nil
}

// Prune keeps the leaves of t whose value in column is an annotation. The
// result is a new tree: dropped leaves are removed, internal nodes left
// with one child are collapsed into it (branch lengths add up), and t
// itself is left unchanged.
func Prune(t *Tree, md *table.Metadata, column string) (*Tree, error) {
	if !md.HasColumn(column) {
		return nil, core.NewInvalidArgumentError("column",
			fmt.Sprintf("feature data does not contain the column %q", column))
	}
	keep := make(map[string]bool)
	for _, leaf := range t.Leaves() {
		if v, ok := md.Get(leaf, column); ok && Annotated(v) {
			keep[leaf] = true
		}
	}
	if len(keep) < MinAnnotatedLeaves {
		return nil, &core.InsufficientAnnotationsError{
			Column:   column,
			Found:    len(keep),
			Required: MinAnnotatedLeaves,
		}
	}
	return Shear(t, keep), nil
}

// Shear returns a copy of t restricted to the named leaves with unary
// nodes collapsed. The root keeps no branch length.
func Shear(t *Tree, keep map[string]bool) *Tree {
	if t == nil || t.Root == nil {
		return &Tree{}
	}
	root := shear(t.Root, keep)
	if root != nil {
		root.Length = 0
	}
	return &Tree{Root: root}
}

func shear(n *Node, keep map[string]bool) *Node {
	if n.IsLeaf() {
		if !keep[n.Name] {
			return nil
		}
		return &Node{Name: n.Name, Length: n.Length}
	}
	var children []*Node
	for _, c := range n.Children {
		if s := shear(c, keep); s != nil {
			children = append(children, s)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		only := children[0]
		only.Length += n.Length
		return only
	}
	return &Node{Name: n.Name, Length: n.Length, Children: children}
}
