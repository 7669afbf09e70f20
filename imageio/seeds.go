package imageio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/janelia-flyem/reseg/dvid"
)

// Kinds of rows in a seed table.
const (
	SeedKind       = "Seed"
	SuperpixelKind = "Superpixel"
)

// SeedRow is one "Type;X;Y[;Z]" row of a seed table.
type SeedRow struct {
	Kind  string
	Point dvid.Point3d
}

// SeedTable holds the rows of a seed file in file order.
type SeedTable struct {
	Rows []SeedRow
}

// LoadSeedTable reads a ';'-separated seed file.  A first row whose coordinates are
// not integers is taken as a header.
func LoadSeedTable(path string) (*SeedTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSeedTable(f)
}

// ReadSeedTable parses a seed table from r.
func ReadSeedTable(r io.Reader) (*SeedTable, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading seed table (%v): %w", err, dvid.ErrInvalidArgument)
	}
	table := new(SeedTable)
	for n, record := range records {
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < 3 || len(record) > 4 {
			return nil, fmt.Errorf("seed table row %d has %d fields, expected Type;X;Y[;Z]: %w", n+1, len(record), dvid.ErrInvalidArgument)
		}
		var p dvid.Point3d
		var bad bool
		for k := 1; k < len(record); k++ {
			v, err := strconv.ParseInt(strings.TrimSpace(record[k]), 10, 32)
			if err != nil {
				bad = true
				break
			}
			p[k-1] = int32(v)
		}
		if bad {
			if n == 0 {
				continue
			}
			return nil, fmt.Errorf("seed table row %d has bad coordinates %v: %w", n+1, record[1:], dvid.ErrInvalidArgument)
		}
		table.Rows = append(table.Rows, SeedRow{Kind: strings.TrimSpace(record[0]), Point: p})
	}
	return table, nil
}

// Points returns the points of every row of the given kind in file order.
func (t *SeedTable) Points(kind string) []dvid.Point3d {
	var pts []dvid.Point3d
	for _, row := range t.Rows {
		if row.Kind == kind {
			pts = append(pts, row.Point)
		}
	}
	return pts
}

// Seeds returns the first two "Seed" points.
func (t *SeedTable) Seeds() ([2]dvid.Point3d, error) {
	var seeds [2]dvid.Point3d
	pts := t.Points(SeedKind)
	if len(pts) < 2 {
		return seeds, fmt.Errorf("seed table has %d %q rows, need 2: %w", len(pts), SeedKind, dvid.ErrInvalidArgument)
	}
	copy(seeds[:], pts)
	return seeds, nil
}

// Superpixel returns the first "Superpixel" point.
func (t *SeedTable) Superpixel() (dvid.Point3d, error) {
	pts := t.Points(SuperpixelKind)
	if len(pts) == 0 {
		return dvid.Point3d{}, fmt.Errorf("seed table has no %q row: %w", SuperpixelKind, dvid.ErrInvalidArgument)
	}
	return pts[0], nil
}
