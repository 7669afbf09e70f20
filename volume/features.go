package volume

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/reseg/dvid"
)

// Features is a per-voxel vector image, e.g., grey intensity (1 band) or CIE L*a*b*
// color (3 bands), stored band-interleaved.
type Features struct {
	Size  dvid.Point3d
	Bands int
	Data  []float64
}

// NewFeatures returns a zeroed feature image.
func NewFeatures(size dvid.Point3d, bands int) *Features {
	return &Features{Size: size, Bands: bands, Data: make([]float64, int(size.Prod())*bands)}
}

// FeaturesFromVolume uses the labels or intensities of a volume as a 1-band feature image.
func FeaturesFromVolume(v *Volume) *Features {
	f := NewFeatures(v.Size, 1)
	for i, value := range v.Data {
		f.Data[i] = float64(value)
	}
	return f
}

// At returns the feature vector of voxel i.  The returned slice aliases the image.
func (f *Features) At(i int) []float64 {
	return f.Data[i*f.Bands : (i+1)*f.Bands]
}

// Distance returns the Euclidean distance between the feature vectors of voxels i and j.
func (f *Features) Distance(i, j int) float64 {
	a, b := f.At(i), f.At(j)
	var sum float64
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// CheckSize returns an error if the feature image grid differs from size.
func (f *Features) CheckSize(size dvid.Point3d) error {
	if f.Size != size {
		return fmt.Errorf("feature image size %s does not match label image size %s: %w", f.Size, size, dvid.ErrInvalidArgument)
	}
	if f.Bands <= 0 || len(f.Data) != int(size.Prod())*f.Bands {
		return fmt.Errorf("feature image has %d values for %d bands of size %s: %w", len(f.Data), f.Bands, size, dvid.ErrInvalidArgument)
	}
	return nil
}
