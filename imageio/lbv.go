package imageio

import (
	"fmt"
	"os"

	"github.com/blang/semver"
	"github.com/tinylib/msgp/msgp"
	"go.uber.org/multierr"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// LabelVolumeExt is the extension of label volume files.
const LabelVolumeExt = ".lbv"

// LabelVolumeVersion is the version of the label volume format written by this package.
// Files with a different major version are rejected.
var LabelVolumeVersion = semver.MustParse("1.0.0")

// LabelVolumeHeader precedes the serialized little-endian int32 labels of a label
// volume.  It is encoded as a msgpack map.
type LabelVolumeHeader struct {
	Version     string
	Size        dvid.Point3d
	Compression dvid.Compression
}

// MarshalMsg implements msgp.Marshaler
func (z *LabelVolumeHeader) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, z.Msgsize())
	o = msgp.AppendMapHeader(o, 3)
	o = msgp.AppendString(o, "Version")
	o = msgp.AppendString(o, z.Version)
	o = msgp.AppendString(o, "Size")
	o = msgp.AppendArrayHeader(o, 3)
	for k := range z.Size {
		o = msgp.AppendInt32(o, z.Size[k])
	}
	o = msgp.AppendString(o, "Compression")
	o = msgp.AppendUint8(o, uint8(z.Compression))
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (z *LabelVolumeHeader) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var field []byte
	var isz uint32
	isz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return
	}
	for isz > 0 {
		isz--
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return
		}
		switch msgp.UnsafeString(field) {
		case "Version":
			z.Version, bts, err = msgp.ReadStringBytes(bts)
		case "Size":
			var asz uint32
			asz, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return
			}
			if asz != 3 {
				err = msgp.ArrayError{Wanted: 3, Got: asz}
				return
			}
			for k := range z.Size {
				z.Size[k], bts, err = msgp.ReadInt32Bytes(bts)
				if err != nil {
					return
				}
			}
		case "Compression":
			var c uint8
			c, bts, err = msgp.ReadUint8Bytes(bts)
			z.Compression = dvid.Compression(c)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *LabelVolumeHeader) Msgsize() (s int) {
	s = msgp.MapHeaderSize + msgp.StringPrefixSize + 7 + msgp.StringPrefixSize + len(z.Version) +
		msgp.StringPrefixSize + 4 + msgp.ArrayHeaderSize + 3*msgp.Int32Size +
		msgp.StringPrefixSize + 11 + msgp.Uint8Size
	return
}

// EncodeLabelVolume returns the header followed by the labels serialized with the given
// compression and a CRC32 checksum.
func EncodeLabelVolume(vol *volume.Volume, compress dvid.Compression) ([]byte, error) {
	header := LabelVolumeHeader{
		Version:     LabelVolumeVersion.String(),
		Size:        vol.Size,
		Compression: compress,
	}
	buf, err := header.MarshalMsg(nil)
	if err != nil {
		return nil, err
	}
	payload, err := dvid.SerializeData(vol.Bytes(), compress, dvid.CRC32)
	if err != nil {
		return nil, err
	}
	return append(buf, payload...), nil
}

// DecodeLabelVolume parses the output of EncodeLabelVolume.
func DecodeLabelVolume(data []byte) (*volume.Volume, error) {
	return DecodeLabelVolumeLimit(data, 0)
}

// DecodeLabelVolumeLimit is DecodeLabelVolume for volumes of at most maxVoxels voxels.
// The size in the header is checked before the labels are uncompressed, and the labels
// may not uncompress past that size.  A non-positive maxVoxels sets no limit beyond
// volume.MaxVoxels.
func DecodeLabelVolumeLimit(data []byte, maxVoxels int64) (*volume.Volume, error) {
	var header LabelVolumeHeader
	payload, err := header.UnmarshalMsg(data)
	if err != nil {
		return nil, fmt.Errorf("bad label volume header (%v): %w", err, dvid.ErrUnsupportedFormat)
	}
	version, err := semver.Parse(header.Version)
	if err != nil {
		return nil, fmt.Errorf("bad label volume version %q: %w", header.Version, dvid.ErrUnsupportedFormat)
	}
	if version.Major != LabelVolumeVersion.Major {
		return nil, fmt.Errorf("label volume version %s not readable by version %s: %w", version, LabelVolumeVersion, dvid.ErrUnsupportedFormat)
	}
	if err := volume.CheckVoxels(header.Size, maxVoxels); err != nil {
		return nil, err
	}
	raw, _, err := dvid.DeserializeDataLimit(payload, int(header.Size.Prod())*4)
	if err != nil {
		return nil, err
	}
	return volume.FromBytes(header.Size, raw)
}

// WriteLabelVolume writes vol to an .lbv file.
func WriteLabelVolume(vol *volume.Volume, path string, compress dvid.Compression) (err error) {
	data, err := EncodeLabelVolume(vol, compress)
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
	_, err = f.Write(data)
	return err
}

// ReadLabelVolume reads an .lbv file.
func ReadLabelVolume(path string) (*volume.Volume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vol, err := DecodeLabelVolume(data)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	dvid.Debugf("read label volume %s of size %s from %s\n", path, vol.Size, dvid.Bytes(uint64(len(data))))
	return vol, nil
}
