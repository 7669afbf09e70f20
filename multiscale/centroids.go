/*
Package multiscale selects re-segmentation anchors across a stack of segmentation
scales, where slice z of a label volume holds the segmentation at scale z (0 finest).
Two anchors walk the region-adjacency graph of the finest scale, hopping each step to
the farthest adjacent region, while the regions under them are frozen into one side or
the other at every scale where the anchors still fall in different regions.
*/
package multiscale

import (
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// Centroids holds per-label spatial statistics indexed by label 0..MaxLabel.
type Centroids struct {
	// Mean is the integer (truncated) mean coordinate of each label's voxels.  It need
	// not lie inside the region.
	Mean []dvid.Point3d

	// Inside is the member voxel closest to Mean, first in raster order on ties.
	Inside []dvid.Point3d

	// Count is the number of voxels per label.
	Count []int
}

// ComputeCentroids returns the centroid table for labels >= 0 of vol.
func ComputeCentroids(vol *volume.Volume) *Centroids {
	maxLabel := vol.MaxLabel()
	n := int(maxLabel) + 1
	c := &Centroids{
		Mean:   make([]dvid.Point3d, n),
		Inside: make([]dvid.Point3d, n),
		Count:  make([]int, n),
	}
	sums := make([][3]int64, n)
	for i, label := range vol.Data {
		if label < 0 {
			continue
		}
		p := vol.Coord(i)
		for k := 0; k < 3; k++ {
			sums[label][k] += int64(p[k])
		}
		c.Count[label]++
	}
	for label, count := range c.Count {
		if count == 0 {
			continue
		}
		for k := 0; k < 3; k++ {
			c.Mean[label][k] = int32(sums[label][k] / int64(count))
		}
	}

	best := make([]int64, n)
	for i := range best {
		best[i] = -1
	}
	for i, label := range vol.Data {
		if label < 0 {
			continue
		}
		p := vol.Coord(i)
		d := p.Sub(c.Mean[label]).SquaredNorm()
		if best[label] < 0 || d < best[label] {
			best[label] = d
			c.Inside[label] = p
		}
	}
	return c
}

// MaxLabel returns the largest label in the table.
func (c *Centroids) MaxLabel() int32 {
	return int32(len(c.Count)) - 1
}

// Present returns true if the label has at least one voxel.
func (c *Centroids) Present(label int32) bool {
	return label >= 0 && int(label) < len(c.Count) && c.Count[label] > 0
}
