package multiscale

import (
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/labels"
)

// Choice is a label picked as the next anchor region.
type Choice struct {
	Label int32

	// Point is the label's mean coordinate; Voxel is a voxel inside the region.
	Point dvid.Point3d
	Voxel dvid.Point3d

	// Fallback is set when no region was adjacent to the anchor's and the choice is
	// the first adjacent pair in the graph instead.
	Fallback bool
}

// FindFarthestAdjacent returns the region adjacent to anchorLabel whose centroid is
// farthest from the anchor voxel.  Ties keep the lowest label.  Labels in exclude are
// never chosen.  If no region qualifies, the row label of the first adjacent pair in
// graph order that is neither the anchor's nor excluded is returned with Fallback set.
// ok is false only when the graph has no adjacent pairs left, in which case the
// anchor itself is returned.
func FindFarthestAdjacent(g *labels.Graph, c *Centroids, anchorLabel int32, anchor dvid.Point3d, exclude ...int32) (choice Choice, ok bool) {
	excluded := func(label int32) bool {
		for _, x := range exclude {
			if x == label {
				return true
			}
		}
		return false
	}

	best := -1.0
	for _, label := range g.Neighbors(anchorLabel) {
		if label == anchorLabel || !c.Present(label) || excluded(label) {
			continue
		}
		if dist := c.Mean[label].Distance(anchor); dist > best {
			best = dist
			choice = Choice{Label: label, Point: c.Mean[label], Voxel: c.Inside[label]}
		}
	}
	if best >= 0 {
		return choice, true
	}

	for _, pair := range g.Pairs() {
		label := pair[0]
		if label == anchorLabel || !c.Present(label) || excluded(label) {
			continue
		}
		dvid.Debugf("no region adjacent to label %d, falling back to label %d: %v\n", anchorLabel, label, dvid.ErrGraphInconsistency)
		return Choice{Label: label, Point: c.Mean[label], Voxel: c.Inside[label], Fallback: true}, true
	}
	return Choice{Label: anchorLabel, Point: anchor, Voxel: anchor}, false
}
