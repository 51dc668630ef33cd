// Package hierarchy turns a condensed distance matrix into a rooted binary
// tree via average-linkage agglomerative clustering, and prunes such trees.
package hierarchy

import (
	"math"
	"sort"

	"github.com/23skdu/qemistree/internal/core"
	"github.com/23skdu/qemistree/internal/distance"
)

// Step is one agglomeration: clusters A and B (A < B) merge at Distance
// into a new cluster of Size observations. Clusters 0..n-1 are the
// observations; step i creates cluster n+i.
type Step struct {
	A, B     int
	Distance float64
	Size     int
}

// Linkage is the merge table of n observations, n-1 steps sorted by
// distance.
type Linkage []Step

// Observations returns n for an n-1 step linkage.
func (l Linkage) Observations() int { return len(l) + 1 }

// AverageLinkage clusters the observations of c with UPGMA. It uses the
// nearest-neighbor chain algorithm and relabels the steps so that cluster
// numbering follows the sorted merge order.
func AverageLinkage(c *distance.Condensed) (Linkage, error) {
	n := c.N()
	if n == 0 {
		return nil, core.NewEmptyInputError("linkage", "no observations")
	}
	for _, v := range c.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, core.NewInvalidArgumentError("distances", "non-finite distance")
		}
	}
	if n == 1 {
		return Linkage{}, nil
	}

	d := append([]float64(nil), c.Values...)
	at := func(i, j int) float64 { return d[distance.Index(n, i, j)] }
	set := func(i, j int, v float64) { d[distance.Index(n, i, j)] = v }

	size := make([]int, n)
	for i := range size {
		size[i] = 1
	}
	steps := make(Linkage, 0, n-1)
	chain := make([]int, 0, n)

	for k := 0; k < n-1; k++ {
		if len(chain) == 0 {
			for i := 0; i < n; i++ {
				if size[i] > 0 {
					chain = append(chain, i)
					break
				}
			}
		}

		var x, y int
		var best float64
		for {
			x = chain[len(chain)-1]
			best = math.Inf(1)
			if len(chain) > 1 {
				y = chain[len(chain)-2]
				best = at(x, y)
			}
			for i := 0; i < n; i++ {
				if size[i] == 0 || i == x {
					continue
				}
				if v := at(x, i); v < best {
					best = v
					y = i
				}
			}
			if len(chain) > 1 && y == chain[len(chain)-2] {
				break
			}
			chain = append(chain, y)
		}
		chain = chain[:len(chain)-2]

		if x > y {
			x, y = y, x
		}
		nx, ny := size[x], size[y]
		steps = append(steps, Step{A: x, B: y, Distance: best, Size: nx + ny})

		// y represents the merged cluster from now on.
		size[x] = 0
		size[y] = nx + ny
		for i := 0; i < n; i++ {
			if size[i] == 0 || i == y {
				continue
			}
			set(i, y, (float64(nx)*at(i, x)+float64(ny)*at(i, y))/float64(nx+ny))
		}
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Distance < steps[j].Distance })
	relabel(steps, n)
	return steps, nil
}

// relabel rewrites raw observation indices into cluster ids with a
// union-find over the sorted steps.
func relabel(steps Linkage, n int) {
	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		if i < n {
			size[i] = 1
		}
	}
	find := func(x int) int {
		root := x
		for parent[root] != root {
			root = parent[root]
		}
		for parent[x] != root {
			parent[x], x = root, parent[x]
		}
		return root
	}
	next := n
	for i := range steps {
		a, b := find(steps[i].A), find(steps[i].B)
		if a > b {
			a, b = b, a
		}
		parent[a], parent[b] = next, next
		size[next] = size[a] + size[b]
		steps[i].A, steps[i].B, steps[i].Size = a, b, size[next]
		next++
	}
}
