/*
	Package labels supports operations on label images shared by the re-segmentation
	engine and the multi-scale walk: connected-component relabeling and construction of
	region-adjacency graphs.
*/
package labels

import (
	"github.com/janelia-flyem/reseg/adjacency"
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// bitmap is a fixed-size visited set.
type bitmap []uint64

func newBitmap(n int) bitmap {
	return make(bitmap, (n+63)/64)
}

func (b bitmap) set(i int) {
	b[i>>6] |= 1 << uint(i&63)
}

func (b bitmap) isSet(i int) bool {
	return b[i>>6]&(1<<uint(i&63)) != 0
}

// Relabel returns a copy of vol where every connected component of equal positive label,
// under the given adjacency, receives its own label counting up from 1 in raster order of
// each component's first voxel.  Labels <= 0 are background and are 0 in the output.
// The number of components is also returned.
func Relabel(vol *volume.Volume, adj *adjacency.Relation) (*volume.Volume, int32) {
	out := volume.New(vol.Size)
	visited := newBitmap(len(vol.Data))
	var queue []int
	var next int32
	for start, label := range vol.Data {
		if label <= 0 || visited.isSet(start) {
			continue
		}
		next++
		visited.set(start)
		out.Data[start] = next
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			p := vol.Coord(i)
			for k := 1; k < adj.Len(); k++ {
				q := adj.Neighbor(p, k)
				if !vol.Valid(q) {
					continue
				}
				j := vol.Index(q)
				if visited.isSet(j) || vol.Data[j] != label {
					continue
				}
				visited.set(j)
				out.Data[j] = next
				queue = append(queue, j)
			}
		}
	}
	return out, next
}

// RelabelSlices relabels each z slice independently, e.g., each scale of a multi-scale
// stack.  The component count of every slice is returned.
func RelabelSlices(vol *volume.Volume, adj *adjacency.Relation) (*volume.Volume, []int32, error) {
	out := volume.New(vol.Size)
	counts := make([]int32, vol.Size[2])
	for z := int32(0); z < vol.Size[2]; z++ {
		slice, err := vol.Slice(z)
		if err != nil {
			return nil, nil, err
		}
		relabeled, n := Relabel(slice, adj)
		if err := out.SetSlice(z, relabeled); err != nil {
			return nil, nil, err
		}
		counts[z] = n
	}
	dvid.Debugf("relabeled %d slices of %d x %d: %v components\n", vol.Size[2], vol.Size[0], vol.Size[1], counts)
	return out, counts, nil
}
