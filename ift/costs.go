package ift

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// ArcCost returns the non-negative weight of the arc from voxel u to its neighbor v,
// where root is the seed voxel whose path currently reaches u.
type ArcCost interface {
	Arc(u, v, root int) float64
}

// Uniform gives every arc the same weight.
type Uniform float64

func (c Uniform) Arc(u, v, root int) float64 {
	return float64(c)
}

// FeatureDistance weighs an arc by the Euclidean distance between the feature vectors
// of its two voxels.
type FeatureDistance struct {
	Features *volume.Features
}

func (c FeatureDistance) Arc(u, v, root int) float64 {
	return c.Features.Distance(u, v)
}

// RootFeatureDistance weighs an arc by the distance between the features of the path's
// root seed and the neighbor, favoring regions homogeneous with the seed.
type RootFeatureDistance struct {
	Features *volume.Features
}

func (c RootFeatureDistance) Arc(u, v, root int) float64 {
	return c.Features.Distance(root, v)
}

// LabDistance weighs an arc by the CIEDE2000 color difference of two voxels whose
// 3-band features hold CIE L*a*b* values.
type LabDistance struct {
	Features *volume.Features
}

func (c LabDistance) Arc(u, v, root int) float64 {
	a, b := c.Features.At(u), c.Features.At(v)
	return colorful.Lab(a[0], a[1], a[2]).DistanceCIEDE2000(colorful.Lab(b[0], b[1], b[2]))
}

// Geometric weighs an arc by the Euclidean distance between its voxel coordinates.
type Geometric struct {
	Size dvid.Point3d
}

func (c Geometric) Arc(u, v, root int) float64 {
	return volume.Coord(c.Size, u).Distance(volume.Coord(c.Size, v))
}

// PathCost extends the cost of the path reaching a voxel by one arc.
type PathCost func(current, arc float64) float64

// MaxArc is the path cost of the largest arc along the path.
func MaxArc(current, arc float64) float64 {
	return math.Max(current, arc)
}

// Additive is the path cost of the summed arcs along the path.
func Additive(current, arc float64) float64 {
	return current + arc
}

// WeightedPower sums arcs raised to a power, strongly penalizing any large arc while
// still accumulating path length.
func WeightedPower(power float64) PathCost {
	return func(current, arc float64) float64 {
		return current + math.Pow(arc, power)
	}
}

// ParseArcCost returns the arc cost named by s: "uniform", "feature", "root", or "lab".
// All but "uniform" need features.
func ParseArcCost(s string, features *volume.Features) (ArcCost, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" || name == "uniform" {
		return Uniform(1), nil
	}
	if features == nil {
		return nil, fmt.Errorf("arc cost %q needs a feature image: %w", s, dvid.ErrInvalidArgument)
	}
	switch name {
	case "feature":
		return FeatureDistance{features}, nil
	case "root":
		return RootFeatureDistance{features}, nil
	case "lab":
		if features.Bands != 3 {
			return nil, fmt.Errorf("lab arc cost needs a color image, got %d bands: %w", features.Bands, dvid.ErrInvalidArgument)
		}
		return LabDistance{features}, nil
	default:
		return nil, fmt.Errorf("unknown arc cost %q: %w", s, dvid.ErrInvalidArgument)
	}
}

// ParsePathCost returns the path cost named by s: "max", "sum", or "power:<p>".
func ParsePathCost(s string) (PathCost, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch {
	case name == "" || name == "max":
		return MaxArc, nil
	case name == "sum":
		return Additive, nil
	case strings.HasPrefix(name, "power:"):
		p, err := strconv.ParseFloat(name[len("power:"):], 64)
		if err != nil || p <= 0 {
			return nil, fmt.Errorf("bad path cost power in %q: %w", s, dvid.ErrInvalidArgument)
		}
		return WeightedPower(p), nil
	default:
		return nil, fmt.Errorf("unknown path cost %q: %w", s, dvid.ErrInvalidArgument)
	}
}
