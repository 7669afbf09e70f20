package multiscale

import (
	"github.com/janelia-flyem/reseg/volume"
)

// Visited tracks which (label, scale) regions the walk has consumed.  Only labels
// present at a scale are tracked.
type Visited struct {
	present [][]bool
	visited [][]bool
	pending []int
}

// NewVisited returns a visit list with every positive label of every scale pending.
func NewVisited(stack *volume.Volume) *Visited {
	depth := int(stack.Size[2])
	v := &Visited{
		present: make([][]bool, depth),
		visited: make([][]bool, depth),
		pending: make([]int, depth),
	}
	n := stack.SliceSize()
	for z := 0; z < depth; z++ {
		slice := stack.Data[z*n : (z+1)*n]
		var max int32
		for _, label := range slice {
			if label > max {
				max = label
			}
		}
		v.present[z] = make([]bool, max+1)
		v.visited[z] = make([]bool, max+1)
		for _, label := range slice {
			if label > 0 && !v.present[z][label] {
				v.present[z][label] = true
				v.pending[z]++
			}
		}
	}
	return v
}

// Mark records label as consumed at scale z.  Unknown labels are ignored.
func (v *Visited) Mark(label int32, z int) {
	if !v.tracked(label, z) || v.visited[z][label] {
		return
	}
	v.visited[z][label] = true
	v.pending[z]--
}

// IsVisited returns true if label was consumed at scale z.
func (v *Visited) IsVisited(label int32, z int) bool {
	return v.tracked(label, z) && v.visited[z][label]
}

// Pending returns the number of unconsumed labels at scale z.
func (v *Visited) Pending(z int) int {
	if z < 0 || z >= len(v.pending) {
		return 0
	}
	return v.pending[z]
}

// AnyPending returns true if some label of some scale is unconsumed.
func (v *Visited) AnyPending() bool {
	for _, n := range v.pending {
		if n > 0 {
			return true
		}
	}
	return false
}

func (v *Visited) tracked(label int32, z int) bool {
	return z >= 0 && z < len(v.present) && label > 0 && int(label) < len(v.present[z]) && v.present[z][label]
}
