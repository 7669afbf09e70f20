/*
Package ift grows labeled regions from seed voxels with the image foresting transform:
a competitive shortest-path forest in which each voxel is conquered by the seed offering
the cheapest path.  With the default max-arc path cost a path is only as expensive as
its largest step, so region borders settle on the strongest feature edges between seeds.
*/
package ift

import (
	"context"
	"fmt"
	"math"

	"github.com/DmitriyVTitov/size"
	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/reseg/adjacency"
	"github.com/janelia-flyem/reseg/dheap"
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

const (
	unconquered int32 = -1
	noRoot            = -1
)

// Options configure a growth session.  Zero values select 8- or 26-connectivity, unit
// arc weights, max-arc path cost and a single worker.
type Options struct {
	Adjacency *adjacency.Relation
	Arc       ArcCost
	Path      PathCost
	Workers   int
}

// ParseOptions builds options from setting strings.  An empty connectivity selects the
// default for the grid's dimension.  An empty arc selects feature distances when
// features are given and uniform arcs otherwise.
func ParseOptions(conn, arc, path string, workers int, features *volume.Features, gridSize dvid.Point3d) (Options, error) {
	var opts Options
	c := adjacency.Default(gridSize[2] > 1)
	if conn != "" {
		var err error
		if c, err = adjacency.ParseConnectivity(conn); err != nil {
			return opts, err
		}
	}
	if c.Is3D() && gridSize[2] == 1 {
		return opts, fmt.Errorf("%s neighborhood for 2d grid %s: %w", c, gridSize, dvid.ErrInvalidArgument)
	}
	adj, err := adjacency.ForConnectivity(c)
	if err != nil {
		return opts, err
	}
	if features != nil {
		if err := features.CheckSize(gridSize); err != nil {
			return opts, err
		}
		if arc == "" {
			arc = "feature"
		}
	}
	if opts.Arc, err = ParseArcCost(arc, features); err != nil {
		return opts, err
	}
	if opts.Path, err = ParsePathCost(path); err != nil {
		return opts, err
	}
	opts.Adjacency = adj
	opts.Workers = workers
	return opts, nil
}

// Stats summarize the last growth of a session.
type Stats struct {
	Seeds   int
	Pops    int
	Updates int

	// NonMonotonic counts pops whose cost was lower than the previous pop.  It is always
	// zero for max-arc and additive costs with non-negative arcs.
	NonMonotonic int

	// Sizes holds the number of voxels conquered per seed set, index 0 for label 1.
	Sizes []int
}

// Empty returns the 1-based labels that conquered no voxel.
func (s Stats) Empty() []int32 {
	var empty []int32
	for i, n := range s.Sizes {
		if n == 0 {
			empty = append(empty, int32(i+1))
		}
	}
	return empty
}

// Session owns the cost map, root map, priority queue and output labels for one grid
// size.  A session may be reused for several growths but must not be shared between
// goroutines.
type Session struct {
	size    dvid.Point3d
	adj     *adjacency.Relation
	arc     ArcCost
	path    PathCost
	workers int

	cost  []float64
	root  []int
	heap  *dheap.DHeap
	stats Stats
}

// NewSession allocates the buffers for a grid of the given size.
func NewSession(gridSize dvid.Point3d, opts Options) (*Session, error) {
	if err := volume.CheckSize(gridSize); err != nil {
		return nil, err
	}
	s := &Session{
		size:    gridSize,
		adj:     opts.Adjacency,
		arc:     opts.Arc,
		path:    opts.Path,
		workers: opts.Workers,
	}
	if s.adj == nil {
		var err error
		if s.adj, err = adjacency.ForConnectivity(adjacency.Default(gridSize[2] > 1)); err != nil {
			return nil, err
		}
	}
	if s.arc == nil {
		s.arc = Uniform(1)
	}
	if s.path == nil {
		s.path = MaxArc
	}
	if s.workers < 1 {
		s.workers = 1
	}
	n := int(gridSize.Prod())
	s.cost = make([]float64, n)
	s.root = make([]int, n)
	s.heap = dheap.New(n, s.cost, dheap.MinValue)
	if dvid.LogMode() <= dvid.DebugMode {
		dvid.Debugf("ift session for %s grid uses %s\n", gridSize, dvid.Bytes(uint64(size.Of(s))))
	}
	return s, nil
}

// Stats returns statistics of the last growth.
func (s *Session) Stats() Stats {
	return s.stats
}

// Cost returns the settled path cost of voxel i after a growth.
func (s *Session) Cost(i int) float64 {
	return s.cost[i]
}

// Root returns the seed voxel whose path conquered voxel i, or -1.
func (s *Session) Root(i int) int {
	return s.root[i]
}

// GrowFrom grows one region per seed set: voxels of seeds[k] are planted with label k+1
// and cost 0.  Voxels where mask is 0 are never conquered.  A nil mask makes every voxel
// eligible.  Voxels not reachable from any seed are 0 in the returned volume.
func (s *Session) GrowFrom(ctx context.Context, mask *volume.Volume, seeds [][]int) (*volume.Volume, error) {
	if mask != nil && mask.Size != s.size {
		return nil, fmt.Errorf("mask size %s differs from session size %s: %w", mask.Size, s.size, dvid.ErrInvalidArgument)
	}
	n := len(s.cost)
	for k, set := range seeds {
		for _, i := range set {
			if i < 0 || i >= n {
				return nil, fmt.Errorf("seed %d of set %d outside grid %s: %w", i, k, s.size, dvid.ErrInvalidArgument)
			}
		}
	}
	out := volume.New(s.size)
	if err := s.initialize(ctx, mask, out); err != nil {
		return nil, err
	}

	s.heap.Reset()
	s.stats = Stats{Sizes: make([]int, len(seeds))}
	for k, set := range seeds {
		for _, i := range set {
			if s.heap.State(i) == dheap.Gray {
				// planted twice: the later set wins
				if err := s.heap.Remove(i); err != nil {
					return nil, err
				}
			}
			out.Data[i] = int32(k + 1)
			s.cost[i] = 0
			s.root[i] = i
			if err := s.heap.Insert(i); err != nil {
				return nil, err
			}
			s.stats.Seeds++
		}
	}

	if err := s.propagate(ctx, out); err != nil {
		return nil, err
	}

	for i, label := range out.Data {
		if label == unconquered {
			out.Data[i] = 0
		} else if label > 0 {
			s.stats.Sizes[label-1]++
		}
	}
	if empty := s.stats.Empty(); len(empty) > 0 {
		dvid.Warningf("labels %v conquered no voxels: %v\n", empty, dvid.ErrEmptyResult)
	}
	return out, nil
}

// initialize sets cost, root and labels for every voxel, splitting the index range
// statically across workers.
func (s *Session) initialize(ctx context.Context, mask *volume.Volume, out *volume.Volume) error {
	n := len(s.cost)
	chunk := (n + s.workers - 1) / s.workers
	g, gctx := errgroup.WithContext(ctx)
	for begin := 0; begin < n; begin += chunk {
		begin := begin
		end := begin + chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := begin; i < end; i++ {
				s.root[i] = noRoot
				if mask != nil && mask.Data[i] == 0 {
					out.Data[i] = 0
					s.cost[i] = math.Inf(-1)
				} else {
					out.Data[i] = unconquered
					s.cost[i] = math.Inf(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("initializing cost map: %w", err)
	}
	return nil
}

func (s *Session) propagate(ctx context.Context, out *volume.Volume) error {
	last := math.Inf(-1)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("growth canceled after %d pops: %w", s.stats.Pops, err)
		}
		u, ok := s.heap.Pop()
		if !ok {
			return nil
		}
		s.stats.Pops++
		if s.cost[u] < last {
			s.stats.NonMonotonic++
		}
		last = s.cost[u]

		p := volume.Coord(s.size, u)
		for k := 1; k < s.adj.Len(); k++ {
			q := s.adj.Neighbor(p, k)
			if !volume.Valid(s.size, q) {
				continue
			}
			v := volume.Index(s.size, q)
			if s.heap.State(v) == dheap.Black {
				continue
			}
			pathcost := s.path(s.cost[u], s.arc.Arc(u, v, s.root[u]))
			if pathcost >= s.cost[v] {
				continue
			}
			if s.heap.State(v) == dheap.Gray {
				if err := s.heap.Remove(v); err != nil {
					return err
				}
			}
			out.Data[v] = out.Data[u]
			s.cost[v] = pathcost
			s.root[v] = s.root[u]
			if err := s.heap.Insert(v); err != nil {
				return err
			}
			s.stats.Updates++
		}
	}
}

// Reseg splits the eligible voxels of mask (nonzero) into two regions grown from the
// two seeds and returns a volume with labels 1 and 2, and 0 for ineligible or
// unreachable voxels.
func Reseg(ctx context.Context, mask *volume.Volume, seeds [2]dvid.Point3d, opts Options) (*volume.Volume, error) {
	if mask == nil {
		return nil, fmt.Errorf("no mask given: %w", dvid.ErrInvalidArgument)
	}
	for k, seed := range seeds {
		if !mask.Valid(seed) {
			return nil, fmt.Errorf("seed %d at %s outside image of size %s: %w", k, seed, mask.Size, dvid.ErrInvalidArgument)
		}
	}
	if seeds[0] == seeds[1] {
		return nil, fmt.Errorf("both seeds at %s: %w", seeds[0], dvid.ErrInvalidArgument)
	}
	if err := checkFeatures(opts.Arc, mask.Size); err != nil {
		return nil, err
	}
	s, err := NewSession(mask.Size, opts)
	if err != nil {
		return nil, err
	}
	timedLog := dvid.NewTimeLog()
	out, err := s.GrowFrom(ctx, mask, [][]int{{mask.Index(seeds[0])}, {mask.Index(seeds[1])}})
	if err != nil {
		return nil, err
	}
	stats := s.Stats()
	timedLog.Debugf("reseg of %s grid from %s and %s: %d pops, %d updates, sizes %v",
		mask.Size, seeds[0], seeds[1], stats.Pops, stats.Updates, stats.Sizes)
	return out, nil
}

// checkFeatures verifies that feature-based arc costs cover the grid.
func checkFeatures(arc ArcCost, gridSize dvid.Point3d) error {
	var f *volume.Features
	switch c := arc.(type) {
	case FeatureDistance:
		f = c.Features
	case RootFeatureDistance:
		f = c.Features
	case LabDistance:
		f = c.Features
		if f != nil && f.Bands != 3 {
			return fmt.Errorf("lab arc cost needs 3 bands, got %d: %w", f.Bands, dvid.ErrInvalidArgument)
		}
	case Geometric:
		if c.Size != gridSize {
			return fmt.Errorf("geometric arc cost size %s differs from %s: %w", c.Size, gridSize, dvid.ErrInvalidArgument)
		}
		return nil
	default:
		return nil
	}
	if f == nil {
		return fmt.Errorf("feature arc cost has no feature image: %w", dvid.ErrInvalidArgument)
	}
	return f.CheckSize(gridSize)
}
