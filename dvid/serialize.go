/*
	This file supports serialization/deserialization and compression of data.
*/

package dvid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression is the format of compression for storing data.
// NOTE: Should be no more than 8 (3 bits) of compression types.
type Compression uint8

const (
	Uncompressed Compression = 0
	Snappy       Compression = 1
	Zstd         Compression = 2
)

func (compress Compression) String() string {
	switch compress {
	case Uncompressed:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression returns the Compression named by s, e.g., "snappy", "zstd", or "none".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "uncompressed":
		return Uncompressed, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	default:
		return Uncompressed, fmt.Errorf("unknown compression %q: %w", s, ErrInvalidArgument)
	}
}

// Checksum is the type of checksum employed for error checking stored data.
// NOTE: Should be no more than 4 (2 bits) of checksum types.
type Checksum uint8

const (
	NoChecksum Checksum = 0
	CRC32      Checksum = 1
)

func (checksum Checksum) String() string {
	switch checksum {
	case NoChecksum:
		return "No checksum"
	case CRC32:
		return "CRC32 checksum"
	default:
		return "Unknown checksum"
	}
}

// SerializationFormat is a single byte combining both compression and checksum methods.
type SerializationFormat uint8

func EncodeSerializationFormat(compress Compression, checksum Checksum) SerializationFormat {
	a := (uint8(compress) & 0x07) << 5
	b := (uint8(checksum) & 0x03) << 3
	return SerializationFormat(a | b)
}

func DecodeSerializationFormat(s SerializationFormat) (compress Compression, checksum Checksum) {
	compress = Compression(uint8(s) >> 5)
	checksum = Checksum((uint8(s) >> 3) & 0x03)
	return
}

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// SerializeData prefixes the (possibly compressed) data with a format byte and an optional checksum.
func SerializeData(data []byte, compress Compression, checksum Checksum) ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte(byte(EncodeSerializationFormat(compress, checksum)))

	var byteData []byte
	switch compress {
	case Uncompressed:
		byteData = data
	case Snappy:
		byteData = snappy.Encode(nil, data)
	case Zstd:
		byteData = zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	default:
		return nil, fmt.Errorf("illegal compression (%s) during serialization: %w", compress, ErrInvalidArgument)
	}

	switch checksum {
	case NoChecksum:
	case CRC32:
		if err := binary.Write(&buffer, binary.LittleEndian, crc32.ChecksumIEEE(byteData)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("illegal checksum (%s) during serialization: %w", checksum, ErrInvalidArgument)
	}

	// Data is written last, after any checksum, so no length is needed on deserialization.
	buffer.Write(byteData)
	return buffer.Bytes(), nil
}

// DeserializeData deserializes a slice of bytes using stored compression, checksum.
// If uncompress parameter is false, the data is not uncompressed.
func DeserializeData(s []byte, uncompress bool) (data []byte, compress Compression, err error) {
	return deserialize(s, uncompress, 0)
}

// DeserializeDataLimit is DeserializeData for data known to uncompress to at most
// maxSize bytes.  Larger data is rejected before it is uncompressed in full.
func DeserializeDataLimit(s []byte, maxSize int) (data []byte, compress Compression, err error) {
	if maxSize <= 0 {
		err = fmt.Errorf("bad size limit %d for deserialization: %w", maxSize, ErrInvalidArgument)
		return
	}
	return deserialize(s, true, maxSize)
}

func deserialize(s []byte, uncompress bool, maxSize int) (data []byte, compress Compression, err error) {
	if len(s) == 0 {
		err = fmt.Errorf("no data to deserialize: %w", ErrInvalidArgument)
		return
	}
	var checksum Checksum
	compress, checksum = DecodeSerializationFormat(SerializationFormat(s[0]))
	cdata := s[1:]

	switch checksum {
	case NoChecksum:
	case CRC32:
		if len(cdata) < 4 {
			err = fmt.Errorf("serialized data too short for checksum: %w", ErrInvalidArgument)
			return
		}
		storedCrc32 := binary.LittleEndian.Uint32(cdata[:4])
		cdata = cdata[4:]
		if crcChecksum := crc32.ChecksumIEEE(cdata); crcChecksum != storedCrc32 {
			err = fmt.Errorf("bad checksum, stored %x got %x: %w", storedCrc32, crcChecksum, ErrInvalidArgument)
			return
		}
	default:
		err = fmt.Errorf("illegal checksum in deserializing data: %w", ErrInvalidArgument)
		return
	}

	if !uncompress {
		data = cdata
		return
	}
	switch compress {
	case Uncompressed:
		data = cdata
	case Snappy:
		if maxSize > 0 {
			var n int
			if n, err = snappy.DecodedLen(cdata); err != nil {
				err = fmt.Errorf("bad snappy data (%v): %w", err, ErrInvalidArgument)
				return
			}
			if n > maxSize {
				err = fmt.Errorf("snappy data uncompresses to %d bytes, limit %d: %w", n, maxSize, ErrInvalidArgument)
				return
			}
		}
		data, err = snappy.Decode(nil, cdata)
	case Zstd:
		if maxSize > 0 {
			data, err = zstdDecodeLimit(cdata, maxSize)
		} else {
			data, err = zstdDecoder.DecodeAll(cdata, nil)
		}
	default:
		err = fmt.Errorf("illegal compression format (%d) in deserialization: %w", compress, ErrInvalidArgument)
	}
	if err == nil && maxSize > 0 && len(data) > maxSize {
		err = fmt.Errorf("data of %d bytes exceeds limit %d: %w", len(data), maxSize, ErrInvalidArgument)
	}
	return
}

// zstdDecodeLimit uncompresses at most maxSize bytes.  The decoder limit is rounded up
// to a power of two no smaller than the minimum window, since encoders round frame
// windows that way; the exact size is checked by the caller.
func zstdDecodeLimit(cdata []byte, maxSize int) ([]byte, error) {
	limit := uint64(zstd.MinWindowSize)
	for limit < uint64(maxSize) {
		limit <<= 1
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(limit), zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := dec.DecodeAll(cdata, nil)
	switch {
	case errors.Is(err, zstd.ErrDecoderSizeExceeded), errors.Is(err, zstd.ErrWindowSizeExceeded):
		return nil, fmt.Errorf("zstd data exceeds limit of %d bytes: %w", maxSize, ErrInvalidArgument)
	case err != nil:
		return nil, fmt.Errorf("bad zstd data (%v): %w", err, ErrInvalidArgument)
	}
	return data, nil
}
