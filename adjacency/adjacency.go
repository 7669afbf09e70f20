/*
Package adjacency provides neighborhood relations on the voxel grid: the set of integer
offsets within a Euclidean radius of a voxel.  The zero offset is always first and the
remaining offsets are ordered by (distance, dz, dy, dx), so traversal order is stable
across runs.
*/
package adjacency

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/janelia-flyem/reseg/dvid"
)

// Relation is an ordered set of displacements.
type Relation struct {
	Radius  float64
	Is3D    bool
	Offsets []dvid.Point3d
}

// Connectivity names the usual neighborhoods.
type Connectivity uint8

const (
	Conn4  Connectivity = 4
	Conn8  Connectivity = 8
	Conn6  Connectivity = 6
	Conn18 Connectivity = 18
	Conn26 Connectivity = 26
)

func (c Connectivity) String() string {
	return fmt.Sprintf("%d-connected", uint8(c))
}

// Is3D returns true for the 3d connectivities.
func (c Connectivity) Is3D() bool {
	return c == Conn6 || c == Conn18 || c == Conn26
}

// Radius returns the Euclidean radius producing the connectivity.
func (c Connectivity) Radius() (float64, error) {
	switch c {
	case Conn4, Conn6:
		return 1, nil
	case Conn8, Conn18:
		return math.Sqrt2, nil
	case Conn26:
		return math.Sqrt(3), nil
	default:
		return 0, fmt.Errorf("unsupported connectivity %d: %w", uint8(c), dvid.ErrInvalidArgument)
	}
}

// ParseConnectivity parses "4", "8", "6", "18" or "26".
func ParseConnectivity(s string) (Connectivity, error) {
	switch strings.TrimSpace(s) {
	case "4":
		return Conn4, nil
	case "8":
		return Conn8, nil
	case "6":
		return Conn6, nil
	case "18":
		return Conn18, nil
	case "26":
		return Conn26, nil
	default:
		return 0, fmt.Errorf("unsupported connectivity %q: %w", s, dvid.ErrInvalidArgument)
	}
}

// Default returns 8-connectivity for images and 26-connectivity for volumes.
func Default(is3D bool) Connectivity {
	if is3D {
		return Conn26
	}
	return Conn8
}

// cache of built relations keyed by radius and dimension.
var (
	cacheMu sync.Mutex
	cache   = lru.New(32)
)

type cacheKey struct {
	radius float64
	is3D   bool
}

// Circular returns the 2d relation of all offsets with norm <= r.
func Circular(r float64) (*Relation, error) {
	return build(r, false)
}

// Spheric returns the 3d relation of all offsets with norm <= r.
func Spheric(r float64) (*Relation, error) {
	return build(r, true)
}

// ForConnectivity returns the relation for a named connectivity.
func ForConnectivity(c Connectivity) (*Relation, error) {
	r, err := c.Radius()
	if err != nil {
		return nil, err
	}
	return build(r, c.Is3D())
}

// Relations are shared through the cache and must not be modified by callers.
func build(r float64, is3D bool) (*Relation, error) {
	if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return nil, fmt.Errorf("bad adjacency radius %f: %w", r, dvid.ErrInvalidArgument)
	}
	key := cacheKey{r, is3D}
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if rel, found := cache.Get(key); found {
		return rel.(*Relation), nil
	}

	n := int32(r)
	nz := n
	if !is3D {
		nz = 0
	}
	r2 := r * r
	var offsets []dvid.Point3d
	for dz := -nz; dz <= nz; dz++ {
		for dy := -n; dy <= n; dy++ {
			for dx := -n; dx <= n; dx++ {
				p := dvid.Point3d{dx, dy, dz}
				if float64(p.SquaredNorm()) <= r2 {
					offsets = append(offsets, p)
				}
			}
		}
	}
	sort.SliceStable(offsets, func(i, j int) bool {
		a, b := offsets[i], offsets[j]
		if na, nb := a.SquaredNorm(), b.SquaredNorm(); na != nb {
			return na < nb
		}
		if a[2] != b[2] {
			return a[2] < b[2]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[0] < b[0]
	})
	rel := &Relation{Radius: r, Is3D: is3D, Offsets: offsets}
	cache.Add(key, rel)
	dvid.Debugf("built %d-offset adjacency of radius %.3f (3d %t)\n", len(offsets), r, is3D)
	return rel, nil
}

// Len returns the number of offsets including the zero offset.
func (rel *Relation) Len() int {
	return len(rel.Offsets)
}

// Neighbor returns base displaced by the i-th offset.
func (rel *Relation) Neighbor(base dvid.Point3d, i int) dvid.Point3d {
	return base.Add(rel.Offsets[i])
}

// Forward returns the offsets preceding a voxel in raster order (previous planes, previous
// rows, then to the left).  Scanning every voxel against its forward half visits each
// unordered neighbor pair exactly once.
func (rel *Relation) Forward() []dvid.Point3d {
	var fwd []dvid.Point3d
	for _, off := range rel.Offsets[1:] {
		if off[2] < 0 || (off[2] == 0 && off[1] < 0) || (off[2] == 0 && off[1] == 0 && off[0] < 0) {
			fwd = append(fwd, off)
		}
	}
	return fwd
}
