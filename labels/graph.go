package labels

import (
	"sort"

	"github.com/janelia-flyem/reseg/adjacency"
	"github.com/janelia-flyem/reseg/volume"
)

// Graph is a symmetric region-adjacency graph over labels 0..MaxLabel kept as sparse
// adjacency sets.  Iteration is always in ascending label order so results match a scan
// of the equivalent dense (MaxLabel+1) x (MaxLabel+1) matrix.
type Graph struct {
	MaxLabel int32
	adj      map[int32]map[int32]struct{}
}

// GraphOptions modify graph construction.
type GraphOptions struct {
	// IncludeBackground lets labels <= 0 take part as regions.
	IncludeBackground bool
}

// NewGraph returns an empty graph.
func NewGraph(maxLabel int32) *Graph {
	return &Graph{MaxLabel: maxLabel, adj: make(map[int32]map[int32]struct{})}
}

// AddEdge records that a and b touch.  Self edges are ignored.
func (g *Graph) AddEdge(a, b int32) {
	if a == b {
		return
	}
	g.link(a, b)
	g.link(b, a)
	if a > g.MaxLabel {
		g.MaxLabel = a
	}
	if b > g.MaxLabel {
		g.MaxLabel = b
	}
}

func (g *Graph) link(a, b int32) {
	nbrs, found := g.adj[a]
	if !found {
		nbrs = make(map[int32]struct{})
		g.adj[a] = nbrs
	}
	nbrs[b] = struct{}{}
}

// Adjacent returns true if a and b touch.
func (g *Graph) Adjacent(a, b int32) bool {
	_, found := g.adj[a][b]
	return found
}

// Neighbors returns the labels touching a in ascending order.
func (g *Graph) Neighbors(a int32) []int32 {
	nbrs := make([]int32, 0, len(g.adj[a]))
	for b := range g.adj[a] {
		nbrs = append(nbrs, b)
	}
	sort.Slice(nbrs, func(i, j int) bool { return nbrs[i] < nbrs[j] })
	return nbrs
}

// Touched returns every label with at least one neighbor in ascending order.
func (g *Graph) Touched() []int32 {
	touched := make([]int32, 0, len(g.adj))
	for a, nbrs := range g.adj {
		if len(nbrs) > 0 {
			touched = append(touched, a)
		}
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })
	return touched
}

// Pairs returns all ordered adjacent pairs (a, b) in row-major order: by a, then by b.
// Both (a, b) and (b, a) are present.
func (g *Graph) Pairs() [][2]int32 {
	var pairs [][2]int32
	for _, a := range g.Touched() {
		for _, b := range g.Neighbors(a) {
			pairs = append(pairs, [2]int32{a, b})
		}
	}
	return pairs
}

// NumEdges returns the number of unordered adjacent pairs.
func (g *Graph) NumEdges() int {
	var n int
	for _, nbrs := range g.adj {
		n += len(nbrs)
	}
	return n / 2
}

// Empty returns true if no two labels touch.
func (g *Graph) Empty() bool {
	return g.NumEdges() == 0
}

// Remove deletes every edge of label a.
func (g *Graph) Remove(a int32) {
	for b := range g.adj[a] {
		delete(g.adj[b], a)
		if len(g.adj[b]) == 0 {
			delete(g.adj, b)
		}
	}
	delete(g.adj, a)
}

// BuildGraph returns the region-adjacency graph of vol under the adjacency relation.
// Each voxel is compared only against the forward half of its neighborhood, so every
// unordered voxel pair is examined once.
func BuildGraph(vol *volume.Volume, adj *adjacency.Relation, opts GraphOptions) *Graph {
	g := NewGraph(vol.MaxLabel())
	fwd := adj.Forward()
	for i, a := range vol.Data {
		if a <= 0 && !opts.IncludeBackground {
			continue
		}
		p := vol.Coord(i)
		for _, off := range fwd {
			q := p.Add(off)
			if !vol.Valid(q) {
				continue
			}
			b := vol.Data[vol.Index(q)]
			if b == a || (b <= 0 && !opts.IncludeBackground) {
				continue
			}
			g.AddEdge(a, b)
		}
	}
	return g
}
