/*
Package imageio reads and writes label images, feature images and seed tables.  2d
images are read by file extension: png, jpeg and gif through the standard decoders,
tiff and bmp through golang.org/x/image, ppm through github.com/lmittmann/ppm, and pgm
through a reader in this package.  A folder of 2d images is read as a volume, one
slice per file in natural file-name order.  Volumes can also be kept in the compressed
.lbv label volume format.
*/
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/multierr"
	_ "golang.org/x/image/bmp" // register bmp
	"golang.org/x/image/tiff"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".ppm":  true,
	".pgm":  true,
}

// IsImageFile returns true if path names a regular file with a supported 2d image
// extension.
func IsImageFile(path string) bool {
	if !imageExts[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// isDir returns true if path is an existing directory.
func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func decode(path string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !imageExts[ext] {
		return nil, fmt.Errorf("unknown image extension %q for %s: %w", ext, path, dvid.ErrUnsupportedFormat)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if ext == ".pgm" {
		return decodePGM(f, 0)
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s (%v): %w", path, err, dvid.ErrUnsupportedFormat)
	}
	return img, nil
}

// LoadImage reads a 2d image as a volume of depth 1.  Grey images give their grey
// value, 16-bit grey images included.  Color images give their first (red) channel.
func LoadImage(path string) (*volume.Volume, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	return imageToVolume(img), nil
}

func imageToVolume(img image.Image) *volume.Volume {
	b := img.Bounds()
	vol := volume.New2d(int32(b.Dx()), int32(b.Dy()))
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			switch m := img.(type) {
			case *image.Gray16:
				vol.Data[i] = int32(m.Gray16At(x, y).Y)
			case *image.Gray:
				vol.Data[i] = int32(m.GrayAt(x, y).Y)
			default:
				r, _, _, _ := img.At(x, y).RGBA()
				vol.Data[i] = int32(r >> 8)
			}
			i++
		}
	}
	return vol
}

// LoadFeatures reads a 2d image as a feature image: one band of grey values for grey
// images, three bands of CIE L*a*b* for color images.
func LoadFeatures(path string) (*volume.Features, error) {
	img, err := decode(path)
	if err != nil {
		return nil, err
	}
	return imageToFeatures(img), nil
}

func isGrey(img image.Image) bool {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return true
	}
	return false
}

func imageToFeatures(img image.Image) *volume.Features {
	b := img.Bounds()
	size := dvid.Point3d{int32(b.Dx()), int32(b.Dy()), 1}
	if isGrey(img) {
		vol := imageToVolume(img)
		return volume.FeaturesFromVolume(vol)
	}
	f := volume.NewFeatures(size, 3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, _ := colorful.MakeColor(img.At(x, y))
			l, a, bb := c.Lab()
			f.Data[3*i], f.Data[3*i+1], f.Data[3*i+2] = l, a, bb
			i++
		}
	}
	return f
}

// LoadAny reads an image file, a folder of images, or an .lbv label volume.  isFolder
// is true for folders, whose results are written back as folders.
func LoadAny(path string) (vol *volume.Volume, isFolder bool, err error) {
	switch {
	case strings.EqualFold(filepath.Ext(path), LabelVolumeExt):
		vol, err = ReadLabelVolume(path)
	case IsImageFile(path):
		vol, err = LoadImage(path)
	case isDir(path):
		vol, err = LoadVolumeFromFolder(path)
		isFolder = true
	default:
		err = fmt.Errorf("%q is neither an image file nor a folder: %w", path, dvid.ErrUnsupportedFormat)
	}
	return
}

// LoadAnyFeatures reads a feature image from an image file or a folder of images.
func LoadAnyFeatures(path string) (*volume.Features, error) {
	switch {
	case IsImageFile(path):
		return LoadFeatures(path)
	case isDir(path):
		return LoadFeaturesFromFolder(path)
	default:
		return nil, fmt.Errorf("%q is neither an image file nor a folder: %w", path, dvid.ErrUnsupportedFormat)
	}
}

// Write stores vol by the form of path: an .lbv file, a folder of slices for volumes or
// when asFolder is set, and a 2d image otherwise.
func Write(vol *volume.Volume, path string, asFolder bool) error {
	switch {
	case strings.EqualFold(filepath.Ext(path), LabelVolumeExt):
		return WriteLabelVolume(vol, path, dvid.Zstd)
	case asFolder || vol.Is3D():
		return WriteVolumeAsFolder(vol, path)
	default:
		return WriteImage(vol, path)
	}
}

func toGray16(vol *volume.Volume) (*image.Gray16, error) {
	img := image.NewGray16(image.Rect(0, 0, int(vol.Size[0]), int(vol.Size[1])))
	for i, label := range vol.Data {
		if label < 0 || label > 0xFFFF {
			return nil, fmt.Errorf("label %d does not fit a 16-bit image: %w", label, dvid.ErrInvalidArgument)
		}
		p := vol.Coord(i)
		img.SetGray16(int(p[0]), int(p[1]), color.Gray16{Y: uint16(label)})
	}
	return img, nil
}

// WriteImage writes a 2d volume as a 16-bit grey png, tiff, or pgm by extension.
func WriteImage(vol *volume.Volume, path string) (err error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png", ".tif", ".tiff", ".pgm":
	default:
		return fmt.Errorf("cannot write images with extension %q: %w", ext, dvid.ErrUnsupportedFormat)
	}
	img, err := grayImage(vol)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return encode(f, img, strings.TrimPrefix(ext, "."))
}

// EncodeImage writes a 2d volume to w as a 16-bit grey image in the named format:
// "png", "tif", "tiff", or "pgm".
func EncodeImage(w io.Writer, vol *volume.Volume, format string) error {
	switch format = strings.ToLower(format); format {
	case "png", "tif", "tiff", "pgm":
	default:
		return fmt.Errorf("cannot encode images as %q: %w", format, dvid.ErrUnsupportedFormat)
	}
	img, err := grayImage(vol)
	if err != nil {
		return err
	}
	return encode(w, img, format)
}

// ReadImage decodes a 2d image in any registered format from r.  The pgm reader of
// this package is used for P2 and P5 data.
func ReadImage(r io.Reader) (*volume.Volume, error) {
	return ReadImageLimit(r, 0)
}

// ReadImageLimit is ReadImage for images of at most maxVoxels pixels.  The image size
// is read from its header and checked before the pixels are decoded.  A non-positive
// maxVoxels sets no limit beyond volume.MaxVoxels.
func ReadImageLimit(r io.Reader, maxVoxels int64) (*volume.Volume, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < 2 {
		return nil, fmt.Errorf("reading image of %d bytes: %w", len(data), dvid.ErrUnsupportedFormat)
	}
	var img image.Image
	if magic := string(data[:2]); magic == "P2" || magic == "P5" {
		img, err = decodePGM(bytes.NewReader(data), maxVoxels)
	} else {
		var config image.Config
		if config, _, err = image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("decoding image header (%v): %w", err, dvid.ErrUnsupportedFormat)
		}
		size := dvid.Point3d{int32(config.Width), int32(config.Height), 1}
		if config.Width > math.MaxInt32 || config.Height > math.MaxInt32 {
			return nil, fmt.Errorf("image size %dx%d too large: %w", config.Width, config.Height, dvid.ErrInvalidArgument)
		}
		if err = volume.CheckVoxels(size, maxVoxels); err != nil {
			return nil, err
		}
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding image (%v): %w", err, dvid.ErrUnsupportedFormat)
		}
	}
	if err != nil {
		return nil, err
	}
	return imageToVolume(img), nil
}

func grayImage(vol *volume.Volume) (*image.Gray16, error) {
	if vol.Is3D() {
		return nil, fmt.Errorf("cannot write volume of size %s as a 2d image: %w", vol.Size, dvid.ErrInvalidArgument)
	}
	return toGray16(vol)
}

func encode(w io.Writer, img *image.Gray16, format string) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "tif", "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return encodePGM(w, img)
	}
}
