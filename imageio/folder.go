package imageio

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// SliceName returns the file name of slice z in a folder volume.
func SliceName(z int32) string {
	return fmt.Sprintf("%05d.png", z)
}

// listSlices returns the image files of a folder in natural name order.
func listSlices(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no images in folder %s: %w", dir, dvid.ErrUnsupportedFormat)
	}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// naturalLess compares names so embedded numbers order by value: "slice2" < "slice10".
func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			sj := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na, nb := trimZeros(a[si:i]), trimZeros(b[sj:j])
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	if len(a)-i != len(b)-j {
		return len(a)-i < len(b)-j
	}
	return a < b
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}

// LoadVolumeFromFolder reads every image of a folder as one z slice.  All slices must
// share width and height.
func LoadVolumeFromFolder(dir string) (*volume.Volume, error) {
	paths, err := listSlices(dir)
	if err != nil {
		return nil, err
	}
	timedLog := dvid.NewTimeLog()
	slices := make([]*volume.Volume, len(paths))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for z, path := range paths {
		z, path := z, path
		g.Go(func() error {
			slice, err := LoadImage(path)
			if err != nil {
				return err
			}
			slices[z] = slice
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := checkSlices(dir, paths, sizes(slices)); err != nil {
		return nil, err
	}
	vol, err := volume.Stack(slices)
	if err != nil {
		return nil, err
	}
	timedLog.Debugf("loaded %d slices of %s from %s", len(paths), vol.Size, dir)
	return vol, nil
}

// LoadFeaturesFromFolder reads every image of a folder as one z slice of a feature image.
func LoadFeaturesFromFolder(dir string) (*volume.Features, error) {
	paths, err := listSlices(dir)
	if err != nil {
		return nil, err
	}
	slices := make([]*volume.Features, len(paths))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for z, path := range paths {
		z, path := z, path
		g.Go(func() error {
			f, err := LoadFeatures(path)
			if err != nil {
				return err
			}
			slices[z] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sz := make([]dvid.Point3d, len(slices))
	for z, f := range slices {
		sz[z] = f.Size
		if f.Bands != slices[0].Bands {
			return nil, fmt.Errorf("slice %s has %d bands, expected %d: %w", paths[z], f.Bands, slices[0].Bands, dvid.ErrInvalidArgument)
		}
	}
	if err := checkSlices(dir, paths, sz); err != nil {
		return nil, err
	}
	size := dvid.Point3d{sz[0][0], sz[0][1], int32(len(slices))}
	out := volume.NewFeatures(size, slices[0].Bands)
	n := len(slices[0].Data)
	for z, f := range slices {
		copy(out.Data[z*n:(z+1)*n], f.Data)
	}
	return out, nil
}

func sizes(slices []*volume.Volume) []dvid.Point3d {
	sz := make([]dvid.Point3d, len(slices))
	for z, slice := range slices {
		sz[z] = slice.Size
	}
	return sz
}

func checkSlices(dir string, paths []string, sz []dvid.Point3d) error {
	for z := range sz {
		if sz[z] != sz[0] {
			return fmt.Errorf("slice %s in %s has size %s, expected %s: %w", paths[z], dir, sz[z], sz[0], dvid.ErrInvalidArgument)
		}
	}
	return nil
}

// WriteVolumeAsFolder writes each z slice as a 16-bit png named by SliceName.
func WriteVolumeAsFolder(vol *volume.Volume, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for z := int32(0); z < vol.Size[2]; z++ {
		z := z
		g.Go(func() error {
			slice, err := vol.Slice(z)
			if err != nil {
				return err
			}
			return WriteImage(slice, filepath.Join(dir, SliceName(z)))
		})
	}
	return g.Wait()
}
