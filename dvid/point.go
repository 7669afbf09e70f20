package dvid

import (
	"fmt"
	"math"
	"strings"
)

// Point3d is an ordered list of three 32-bit signed integers: x, y, and z.
// 2d data uses z = 0.
type Point3d [3]int32

// Add returns the sum of the two points.
func (p Point3d) Add(x Point3d) Point3d {
	return Point3d{p[0] + x[0], p[1] + x[1], p[2] + x[2]}
}

// Sub returns the difference of the two points.
func (p Point3d) Sub(x Point3d) Point3d {
	return Point3d{p[0] - x[0], p[1] - x[1], p[2] - x[2]}
}

// SquaredNorm returns x*x + y*y + z*z.
func (p Point3d) SquaredNorm() int64 {
	return int64(p[0])*int64(p[0]) + int64(p[1])*int64(p[1]) + int64(p[2])*int64(p[2])
}

// Distance returns the Euclidean distance between the two points.
func (p Point3d) Distance(x Point3d) float64 {
	return math.Sqrt(float64(p.Sub(x).SquaredNorm()))
}

// Prod returns the product of the three components, e.g., the number of voxels
// in a volume of this size.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// PointStr is a coordinate in string format "x,y" or "x,y,z" where each coordinate
// is a 32-bit integer.
type PointStr string

// Point3d parses the string.  A missing z is taken as 0.
func (s PointStr) Point3d() (Point3d, error) {
	var p Point3d
	str := strings.TrimSpace(string(s))
	n := strings.Count(str, ",") + 1
	var err error
	switch n {
	case 2:
		_, err = fmt.Sscanf(str, "%d,%d", &p[0], &p[1])
	case 3:
		_, err = fmt.Sscanf(str, "%d,%d,%d", &p[0], &p[1], &p[2])
	default:
		return p, fmt.Errorf("point %q must have 2 or 3 comma-separated coordinates: %w", str, ErrInvalidArgument)
	}
	if err != nil {
		return p, fmt.Errorf("bad point %q (%v): %w", str, err, ErrInvalidArgument)
	}
	return p, nil
}
