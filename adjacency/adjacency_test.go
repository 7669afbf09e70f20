package adjacency

import (
	"testing"

	"github.com/janelia-flyem/reseg/dvid"
)

func TestConnectivitySizes(t *testing.T) {
	tests := []struct {
		conn Connectivity
		n    int
	}{
		{Conn4, 5},
		{Conn8, 9},
		{Conn6, 7},
		{Conn18, 19},
		{Conn26, 27},
	}
	for _, tc := range tests {
		rel, err := ForConnectivity(tc.conn)
		if err != nil {
			t.Fatalf("%s: %v", tc.conn, err)
		}
		if rel.Len() != tc.n {
			t.Errorf("%s: expected %d offsets, got %d", tc.conn, tc.n, rel.Len())
		}
		if rel.Offsets[0] != (dvid.Point3d{}) {
			t.Errorf("%s: zero offset not first: %v", tc.conn, rel.Offsets[0])
		}
		if fwd := rel.Forward(); len(fwd) != (tc.n-1)/2 {
			t.Errorf("%s: expected %d forward offsets, got %d", tc.conn, (tc.n-1)/2, len(fwd))
		}
	}
	if _, err := ForConnectivity(Connectivity(5)); err == nil {
		t.Errorf("expected error for 5-connectivity")
	}
}

func TestStableOrder(t *testing.T) {
	rel, err := Circular(1.5)
	if err != nil {
		t.Fatal(err)
	}
	expected := []dvid.Point3d{
		{0, 0, 0},
		{0, -1, 0}, {-1, 0, 0}, {1, 0, 0}, {0, 1, 0},
		{-1, -1, 0}, {1, -1, 0}, {-1, 1, 0}, {1, 1, 0},
	}
	if rel.Len() != len(expected) {
		t.Fatalf("expected %d offsets, got %d: %v", len(expected), rel.Len(), rel.Offsets)
	}
	for i, off := range expected {
		if rel.Offsets[i] != off {
			t.Errorf("offset %d: expected %s, got %s", i, off, rel.Offsets[i])
		}
	}
	if p := rel.Neighbor(dvid.Point3d{5, 5, 0}, 1); p != (dvid.Point3d{5, 4, 0}) {
		t.Errorf("bad neighbor %s", p)
	}

	again, _ := Circular(1.5)
	if again != rel {
		t.Errorf("expected cached relation to be reused")
	}
}

func TestSpheric(t *testing.T) {
	rel, err := Spheric(2)
	if err != nil {
		t.Fatal(err)
	}
	// 1 + 6 + 12 + 8 + 6 offsets with squared norms 0, 1, 2, 3, 4.
	if rel.Len() != 33 {
		t.Errorf("expected 33 offsets in sphere of radius 2, got %d", rel.Len())
	}
	last := int64(0)
	for _, off := range rel.Offsets {
		if n := off.SquaredNorm(); n < last {
			t.Fatalf("offsets not sorted by distance: %v", rel.Offsets)
		} else {
			last = n
		}
	}
	if _, err := Spheric(-1); err == nil {
		t.Errorf("expected error on negative radius")
	}
}

func TestParseConnectivity(t *testing.T) {
	c, err := ParseConnectivity("18")
	if err != nil || c != Conn18 || !c.Is3D() {
		t.Errorf("bad parse of 18: %v %v", c, err)
	}
	if _, err := ParseConnectivity("7"); err == nil {
		t.Errorf("expected error parsing 7")
	}
	if Default(false) != Conn8 || Default(true) != Conn26 {
		t.Errorf("bad defaults")
	}
}
