// Package volume holds label and feature images on a 3d voxel grid.  A 2d image is a
// volume of depth 1.
package volume

import (
	"encoding/binary"
	"fmt"

	"github.com/janelia-flyem/reseg/dvid"
)

// Volume is a label image: one int32 per voxel stored x-fastest, then y, then z.
// Label 0 is background.
type Volume struct {
	Size dvid.Point3d
	Data []int32
}

// New returns a zeroed volume of the given size.
func New(size dvid.Point3d) *Volume {
	return &Volume{Size: size, Data: make([]int32, size.Prod())}
}

// New2d returns a zeroed width x height image.
func New2d(width, height int32) *Volume {
	return New(dvid.Point3d{width, height, 1})
}

// CheckSize returns an error if any dimension is non-positive.
func CheckSize(size dvid.Point3d) error {
	if size[0] <= 0 || size[1] <= 0 || size[2] <= 0 {
		return fmt.Errorf("bad volume size %s: %w", size, dvid.ErrInvalidArgument)
	}
	return nil
}

// MaxVoxels bounds the voxel count of any volume so sizes index safely as ints.
const MaxVoxels int64 = 1 << 40

// CheckVoxels is CheckSize that also rejects sizes with more than maxVoxels voxels.  A
// non-positive maxVoxels only applies the MaxVoxels bound.
func CheckVoxels(size dvid.Point3d, maxVoxels int64) error {
	if err := CheckSize(size); err != nil {
		return err
	}
	if maxVoxels <= 0 || maxVoxels > MaxVoxels {
		maxVoxels = MaxVoxels
	}
	if float64(size[0])*float64(size[1])*float64(size[2]) > float64(maxVoxels) {
		return fmt.Errorf("volume size %s exceeds %d voxels: %w", size, maxVoxels, dvid.ErrInvalidArgument)
	}
	return nil
}

// NumVoxels returns width * height * depth.
func (v *Volume) NumVoxels() int {
	return int(v.Size.Prod())
}

// Is3D returns true if the volume has more than one slice.
func (v *Volume) Is3D() bool {
	return v.Size[2] > 1
}

// Index returns the linear index of p.
func (v *Volume) Index(p dvid.Point3d) int {
	return Index(v.Size, p)
}

// Coord returns the coordinate of the linear index i.
func (v *Volume) Coord(i int) dvid.Point3d {
	return Coord(v.Size, i)
}

// Valid returns true if p lies inside the volume.
func (v *Volume) Valid(p dvid.Point3d) bool {
	return Valid(v.Size, p)
}

// At returns the label at p, which must be valid.
func (v *Volume) At(p dvid.Point3d) int32 {
	return v.Data[v.Index(p)]
}

// Set stores a label at p, which must be valid.
func (v *Volume) Set(p dvid.Point3d, label int32) {
	v.Data[v.Index(p)] = label
}

// Clone returns a deep copy.
func (v *Volume) Clone() *Volume {
	data := make([]int32, len(v.Data))
	copy(data, v.Data)
	return &Volume{Size: v.Size, Data: data}
}

// MaxLabel returns the largest label in the volume, or 0 for an empty volume.
func (v *Volume) MaxLabel() int32 {
	var max int32
	for _, label := range v.Data {
		if label > max {
			max = label
		}
	}
	return max
}

// SliceSize returns the number of voxels in one z slice.
func (v *Volume) SliceSize() int {
	return int(v.Size[0]) * int(v.Size[1])
}

// Slice returns a copy of slice z as a 2d volume.
func (v *Volume) Slice(z int32) (*Volume, error) {
	if z < 0 || z >= v.Size[2] {
		return nil, fmt.Errorf("slice %d outside volume of depth %d: %w", z, v.Size[2], dvid.ErrInvalidArgument)
	}
	n := v.SliceSize()
	out := New2d(v.Size[0], v.Size[1])
	copy(out.Data, v.Data[int(z)*n:int(z+1)*n])
	return out, nil
}

// SetSlice copies a 2d volume into slice z.
func (v *Volume) SetSlice(z int32, slice *Volume) error {
	if z < 0 || z >= v.Size[2] {
		return fmt.Errorf("slice %d outside volume of depth %d: %w", z, v.Size[2], dvid.ErrInvalidArgument)
	}
	if slice.Size[0] != v.Size[0] || slice.Size[1] != v.Size[1] || slice.Size[2] != 1 {
		return fmt.Errorf("slice of size %s cannot be placed in volume of size %s: %w", slice.Size, v.Size, dvid.ErrInvalidArgument)
	}
	n := v.SliceSize()
	copy(v.Data[int(z)*n:int(z+1)*n], slice.Data)
	return nil
}

// Stack concatenates equally sized 2d slices into one volume.
func Stack(slices []*Volume) (*Volume, error) {
	if len(slices) == 0 {
		return nil, fmt.Errorf("no slices to stack: %w", dvid.ErrInvalidArgument)
	}
	size := slices[0].Size
	out := New(dvid.Point3d{size[0], size[1], int32(len(slices))})
	for z, slice := range slices {
		if err := out.SetSlice(int32(z), slice); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Bytes returns the labels as little-endian int32 values.
func (v *Volume) Bytes() []byte {
	buf := make([]byte, 4*len(v.Data))
	for i, label := range v.Data {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(label))
	}
	return buf
}

// FromBytes returns a volume of the given size from little-endian int32 values.
func FromBytes(size dvid.Point3d, buf []byte) (*Volume, error) {
	if err := CheckSize(size); err != nil {
		return nil, err
	}
	n := int(size.Prod())
	if len(buf) != 4*n {
		return nil, fmt.Errorf("expected %d bytes for volume %s, got %d: %w", 4*n, size, len(buf), dvid.ErrInvalidArgument)
	}
	v := New(size)
	for i := range v.Data {
		v.Data[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

// Index returns the linear index of p in a grid of the given size.
func Index(size, p dvid.Point3d) int {
	return int(p[0]) + int(p[1])*int(size[0]) + int(p[2])*int(size[0])*int(size[1])
}

// Coord returns the coordinate of linear index i in a grid of the given size.
func Coord(size dvid.Point3d, i int) dvid.Point3d {
	xy := int(size[0]) * int(size[1])
	z := i / xy
	r := i % xy
	return dvid.Point3d{int32(r % int(size[0])), int32(r / int(size[0])), int32(z)}
}

// Valid returns true if 0 <= p[k] < size[k] along all three axes.
func Valid(size, p dvid.Point3d) bool {
	return p[0] >= 0 && p[0] < size[0] &&
		p[1] >= 0 && p[1] < size[1] &&
		p[2] >= 0 && p[2] < size[2]
}
