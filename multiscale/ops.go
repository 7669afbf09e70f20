package multiscale

import (
	"fmt"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// SelectSuperpixel returns a binary mask that is 1 wherever vol carries the label found
// at p, e.g., to pick the region handed to re-segmentation.
func SelectSuperpixel(vol *volume.Volume, p dvid.Point3d) (*volume.Volume, error) {
	if !vol.Valid(p) {
		return nil, fmt.Errorf("point %s outside volume of size %s: %w", p, vol.Size, dvid.ErrInvalidArgument)
	}
	label := vol.At(p)
	mask := volume.New(vol.Size)
	for i, l := range vol.Data {
		if l == label {
			mask.Data[i] = 1
		}
	}
	return mask, nil
}

// CropAsLayer zeroes, through every scale of the stack, each (x,y) column whose label
// at scale layer differs from the label under p at that scale.  This restricts the whole
// stack to the region chosen at one scale.
func CropAsLayer(stack *volume.Volume, layer int32, p dvid.Point3d) error {
	p[2] = layer
	if !stack.Valid(p) {
		return fmt.Errorf("point %s outside stack of size %s: %w", p, stack.Size, dvid.ErrInvalidArgument)
	}
	keep := stack.At(p)
	n := stack.SliceSize()
	offset := int(layer) * n
	for i := 0; i < n; i++ {
		if stack.Data[offset+i] == keep {
			continue
		}
		for z := 0; z < int(stack.Size[2]); z++ {
			stack.Data[z*n+i] = 0
		}
	}
	return nil
}

// Merge returns a copy of labels where every voxel of side 2 in the re-segmentation
// gets a new label one above the current maximum, splitting the region.
func Merge(labels, reseg *volume.Volume) (*volume.Volume, error) {
	if labels.Size != reseg.Size {
		return nil, fmt.Errorf("label size %s differs from re-segmentation size %s: %w", labels.Size, reseg.Size, dvid.ErrInvalidArgument)
	}
	out := labels.Clone()
	newLabel := out.MaxLabel() + 1
	for i, side := range reseg.Data {
		if side == 2 {
			out.Data[i] = newLabel
		}
	}
	return out, nil
}

// SwapLabel exchanges labels a and b in slice z.
func SwapLabel(vol *volume.Volume, a, b int32, z int32) error {
	if z < 0 || z >= vol.Size[2] {
		return fmt.Errorf("slice %d outside volume of depth %d: %w", z, vol.Size[2], dvid.ErrInvalidArgument)
	}
	n := vol.SliceSize()
	slice := vol.Data[int(z)*n : int(z+1)*n]
	for i, label := range slice {
		switch label {
		case a:
			slice[i] = b
		case b:
			slice[i] = a
		}
	}
	return nil
}

// freeze replaces label with value in slice z.
func freeze(vol *volume.Volume, z int32, label, value int32) {
	n := vol.SliceSize()
	slice := vol.Data[int(z)*n : int(z+1)*n]
	for i := range slice {
		if slice[i] == label {
			slice[i] = value
		}
	}
}
