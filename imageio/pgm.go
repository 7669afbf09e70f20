package imageio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"strconv"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// decodePGM reads plain (P2) and raw (P5) portable graymaps.  Maxval above 255 gives a
// 16-bit image with big-endian samples for P5.  Images of more than maxVoxels pixels
// are rejected before any samples are read.
func decodePGM(r io.Reader, maxVoxels int64) (image.Image, error) {
	br := bufio.NewReader(r)
	magic, err := pgmToken(br)
	if err != nil {
		return nil, err
	}
	if magic != "P2" && magic != "P5" {
		return nil, fmt.Errorf("bad pgm magic %q: %w", magic, dvid.ErrUnsupportedFormat)
	}
	var header [3]int
	for k := range header {
		tok, err := pgmToken(br)
		if err != nil {
			return nil, err
		}
		if header[k], err = strconv.Atoi(tok); err != nil || header[k] <= 0 {
			return nil, fmt.Errorf("bad pgm header value %q: %w", tok, dvid.ErrUnsupportedFormat)
		}
	}
	width, height, maxval := header[0], header[1], header[2]
	if maxval > 0xFFFF {
		return nil, fmt.Errorf("pgm maxval %d too large: %w", maxval, dvid.ErrUnsupportedFormat)
	}
	if width > math.MaxInt32 || height > math.MaxInt32 {
		return nil, fmt.Errorf("pgm size %dx%d too large: %w", width, height, dvid.ErrInvalidArgument)
	}
	if err := volume.CheckVoxels(dvid.Point3d{int32(width), int32(height), 1}, maxVoxels); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, width, height)
	n := width * height

	samples := make([]uint16, n)
	if magic == "P2" {
		for i := range samples {
			tok, err := pgmToken(br)
			if err != nil {
				return nil, err
			}
			v, err := strconv.Atoi(tok)
			if err != nil || v < 0 || v > maxval {
				return nil, fmt.Errorf("bad pgm sample %q: %w", tok, dvid.ErrUnsupportedFormat)
			}
			samples[i] = uint16(v)
		}
	} else if maxval < 256 {
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("reading pgm samples: %w", err)
		}
		for i, v := range buf {
			samples[i] = uint16(v)
		}
	} else {
		buf := make([]byte, 2*n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("reading pgm samples: %w", err)
		}
		for i := range samples {
			samples[i] = binary.BigEndian.Uint16(buf[2*i:])
		}
	}

	if maxval < 256 {
		img := image.NewGray(rect)
		for i, v := range samples {
			img.Pix[i] = uint8(v)
		}
		return img, nil
	}
	img := image.NewGray16(rect)
	for i, v := range samples {
		img.SetGray16(i%width, i/width, color.Gray16{Y: v})
	}
	return img, nil
}

// pgmToken returns the next whitespace-delimited header token, skipping # comments.
// After the token exactly one whitespace byte has been consumed.
func pgmToken(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(tok) > 0 {
				return string(tok), nil
			}
			return "", fmt.Errorf("reading pgm header: %w", err)
		}
		switch {
		case c == '#' && len(tok) == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", fmt.Errorf("reading pgm comment: %w", err)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, c)
		}
	}
}

// encodePGM writes a raw 16-bit graymap.
func encodePGM(w io.Writer, img *image.Gray16) error {
	b := img.Bounds()
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P5\n%d %d\n65535\n", b.Dx(), b.Dy()); err != nil {
		return err
	}
	var sample [2]byte
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			binary.BigEndian.PutUint16(sample[:], img.Gray16At(x, y).Y)
			if _, err := bw.Write(sample[:]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
