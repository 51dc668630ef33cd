package hierarchy

import (
	"fmt"

	"github.com/23skdu/qemistree/internal/core"
)

// Node is a tree vertex. Leaves carry a Name; internal nodes carry
// children. Length is the branch length to the parent.
type Node struct {
	Name     string
	Length   float64
	Children []*Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

func (n *Node) clone() *Node {
	out := &Node{Name: n.Name, Length: n.Length}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.clone()
		}
	}
	return out
}

// Tree is a rooted tree. Trees are not mutated once built; Prune and Clone
// return new trees.
type Tree struct {
	Root *Node
}

// Clone deep-copies t.
func (t *Tree) Clone() *Tree {
	if t == nil || t.Root == nil {
		return &Tree{}
	}
	return &Tree{Root: t.Root.clone()}
}

// Leaves returns leaf names in left-to-right order.
func (t *Tree) Leaves() []string {
	var out []string
	t.walk(func(n *Node) {
		if n.IsLeaf() {
			out = append(out, n.Name)
		}
	})
	return out
}

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int {
	c := 0
	t.walk(func(n *Node) {
		if n.IsLeaf() {
			c++
		}
	})
	return c
}

// InternalCount returns the number of internal nodes, root included.
func (t *Tree) InternalCount() int {
	c := 0
	t.walk(func(n *Node) {
		if !n.IsLeaf() {
			c++
		}
	})
	return c
}

func (t *Tree) walk(fn func(*Node)) {
	if t == nil || t.Root == nil {
		return
	}
	stack := []*Node{t.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// FromLinkage converts a linkage over len(names) observations into a tree.
// Internal nodes sit at half their merge distance so that the tree is
// ultrametric; branch lengths are height differences.
func FromLinkage(l Linkage, names []string) (*Tree, error) {
	n := len(names)
	if n == 0 {
		return nil, core.NewEmptyInputError("tree", "no leaves")
	}
	if l.Observations() != n {
		return nil, core.NewInvalidArgumentError("linkage",
			fmt.Sprintf("linkage covers %d observations, got %d names", l.Observations(), n))
	}

	nodes := make([]*Node, 2*n-1)
	heights := make([]float64, 2*n-1)
	for i, name := range names {
		nodes[i] = &Node{Name: name}
	}
	for i, s := range l {
		id := n + i
		if s.A >= id || s.B >= id || nodes[s.A] == nil || nodes[s.B] == nil {
			return nil, core.NewInvalidArgumentError("linkage", fmt.Sprintf("step %d references an unknown cluster", i))
		}
		h := s.Distance / 2
		left, right := nodes[s.A], nodes[s.B]
		left.Length = h - heights[s.A]
		right.Length = h - heights[s.B]
		nodes[id] = &Node{Children: []*Node{left, right}}
		heights[id] = h
		nodes[s.A], nodes[s.B] = nil, nil
	}
	return &Tree{Root: nodes[2*n-2]}, nil
}
