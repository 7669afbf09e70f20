package multiscale

import (
	"context"
	"fmt"

	"github.com/janelia-flyem/reseg/adjacency"
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/ift"
	"github.com/janelia-flyem/reseg/labels"
	"github.com/janelia-flyem/reseg/volume"
)

// Labels of regions frozen to the first and second anchor's side.
const (
	Frozen1 int32 = -1
	Frozen2 int32 = -2
)

// WalkerOptions modify how a stack is prepared for the walk.
type WalkerOptions struct {
	// Connectivity within a scale.  Zero selects 8-connectivity.
	Connectivity adjacency.Connectivity

	// Relabel splits every scale into connected components before walking.
	Relabel bool

	// Crop restricts the stack to the coarsest-scale region under the first anchor.
	Crop bool
}

// Walker alternately freezes the regions under two anchors across scales and moves each
// anchor to the farthest adjacent unconsumed region of the finest scale.
type Walker struct {
	stack     *volume.Volume // working copy with frozen regions
	base      *volume.Volume // finest scale before freezing
	graph     *labels.Graph
	centroids *Centroids
	visited   *Visited
	adj       *adjacency.Relation

	anchors [2]dvid.Point3d
	steps   int
	done    bool
}

// NewWalker prepares a walk over a copy of stack.  Anchors are (x,y) positions; their z
// is ignored.  Both anchors must lie in different, non-background regions of the finest
// scale.
func NewWalker(stack *volume.Volume, anchors [2]dvid.Point3d, opts WalkerOptions) (*Walker, error) {
	conn := opts.Connectivity
	if conn == 0 {
		conn = adjacency.Conn8
	}
	if conn.Is3D() {
		return nil, fmt.Errorf("scales are 2d, cannot walk with %s: %w", conn, dvid.ErrInvalidArgument)
	}
	adj, err := adjacency.ForConnectivity(conn)
	if err != nil {
		return nil, err
	}
	for k := range anchors {
		anchors[k][2] = 0
		if !stack.Valid(anchors[k]) {
			return nil, fmt.Errorf("anchor %d at %s outside stack of size %s: %w", k, anchors[k], stack.Size, dvid.ErrInvalidArgument)
		}
	}

	work := stack.Clone()
	if opts.Crop {
		if err := CropAsLayer(work, work.Size[2]-1, anchors[0]); err != nil {
			return nil, err
		}
	}
	if opts.Relabel {
		if work, _, err = labels.RelabelSlices(work, adj); err != nil {
			return nil, err
		}
	}
	base, err := work.Slice(0)
	if err != nil {
		return nil, err
	}
	l1, l2 := base.At(anchors[0]), base.At(anchors[1])
	if l1 <= 0 || l2 <= 0 {
		return nil, fmt.Errorf("anchors %s and %s must be on foreground, got labels %d and %d: %w", anchors[0], anchors[1], l1, l2, dvid.ErrInvalidArgument)
	}
	if l1 == l2 {
		return nil, fmt.Errorf("anchors %s and %s share region %d: %w", anchors[0], anchors[1], l1, dvid.ErrInvalidArgument)
	}

	w := &Walker{
		stack:     work,
		base:      base,
		graph:     labels.BuildGraph(base, adj, labels.GraphOptions{}),
		centroids: ComputeCentroids(base),
		visited:   NewVisited(work),
		adj:       adj,
		anchors:   anchors,
	}
	dvid.Debugf("walker over %s stack: %d regions, %d adjacencies at finest scale\n",
		work.Size, w.visited.Pending(0), w.graph.NumEdges())
	return w, nil
}

// Anchors returns the current anchor positions.
func (w *Walker) Anchors() [2]dvid.Point3d {
	return w.anchors
}

// Steps returns the number of steps taken.
func (w *Walker) Steps() int {
	return w.steps
}

// Done returns true once no adjacent region remains to move to.
func (w *Walker) Done() bool {
	return w.done
}

// Visited returns the visit list.
func (w *Walker) Visited() *Visited {
	return w.visited
}

// Stack returns the working stack including frozen regions.
func (w *Walker) Stack() *volume.Volume {
	return w.stack
}

// freezeScales freezes the regions under the anchors, scale by scale from the finest,
// while the anchors fall in different regions.  The coarsest scale is never frozen
// unless it is the only one.  A region frozen to one side is never refrozen.
func (w *Walker) freezeScales() {
	top := w.stack.Size[2] - 1
	if top < 1 {
		top = 1
	}
	for z := int32(0); z < top; z++ {
		p1, p2 := w.anchors[0], w.anchors[1]
		p1[2], p2[2] = z, z
		a1, a2 := w.stack.At(p1), w.stack.At(p2)
		if a1 == a2 {
			break
		}
		if a1 > 0 {
			freeze(w.stack, z, a1, Frozen1)
			w.visited.Mark(a1, int(z))
		}
		if a2 > 0 {
			freeze(w.stack, z, a2, Frozen2)
			w.visited.Mark(a2, int(z))
		}
	}
}

// Step freezes the regions under the anchors and moves each anchor to the farthest
// region adjacent to its own, consuming the regions left behind.  It returns false once
// the walk is done.
func (w *Walker) Step() bool {
	if w.done {
		return false
	}
	w.freezeScales()
	w.steps++

	b1, b2 := w.base.At(w.anchors[0]), w.base.At(w.anchors[1])
	c1, ok1 := FindFarthestAdjacent(w.graph, w.centroids, b1, w.anchors[0], b2)
	w.graph.Remove(b1)
	if ok1 {
		w.anchors[0] = c1.Voxel
	}
	c2, ok2 := FindFarthestAdjacent(w.graph, w.centroids, b2, w.anchors[1], c1.Label)
	w.graph.Remove(b2)
	if ok2 {
		w.anchors[1] = c2.Voxel
	}
	if !ok1 || !ok2 {
		w.done = true
	}
	dvid.Debugf("walk step %d: anchors %s (label %d) and %s (label %d)\n",
		w.steps, w.anchors[0], c1.Label, w.anchors[1], c2.Label)
	return !w.done
}

// Run steps until every finest-scale region is consumed, the walk is done, or maxSteps
// steps were taken (no limit if maxSteps <= 0).  The regions under the final anchors
// are frozen before returning.
func (w *Walker) Run(ctx context.Context, maxSteps int) error {
	for w.visited.Pending(0) > 0 && !w.done {
		if maxSteps > 0 && w.steps >= maxSteps {
			break
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("walk canceled after %d steps: %w", w.steps, err)
		}
		w.Step()
	}
	w.freezeScales()
	return nil
}

// Result returns the two-sided labeling of every scale: 1 and 2 for regions frozen to
// the first and second anchor, 0 elsewhere.
func (w *Walker) Result() *volume.Volume {
	out := w.stack.Clone()
	for i, label := range out.Data {
		if label >= 0 {
			out.Data[i] = 0
		}
	}
	for z := int32(0); z < out.Size[2]; z++ {
		SwapLabel(out, Frozen1, 1, z)
		SwapLabel(out, Frozen2, 2, z)
	}
	return out
}

// Segment grows the two sides over the foreground of the finest scale, seeded with
// every voxel frozen so far.  Options without an adjacency use the walker's.
func (w *Walker) Segment(ctx context.Context, opts ift.Options) (*volume.Volume, error) {
	w.freezeScales()
	if opts.Adjacency == nil {
		opts.Adjacency = w.adj
	}
	mask := volume.New(w.base.Size)
	var seeds [2][]int
	n := w.base.NumVoxels()
	for i := 0; i < n; i++ {
		if w.base.Data[i] > 0 {
			mask.Data[i] = 1
		}
		switch w.stack.Data[i] {
		case Frozen1:
			seeds[0] = append(seeds[0], i)
		case Frozen2:
			seeds[1] = append(seeds[1], i)
		}
	}
	s, err := ift.NewSession(w.base.Size, opts)
	if err != nil {
		return nil, err
	}
	return s.GrowFrom(ctx, mask, seeds[:])
}
