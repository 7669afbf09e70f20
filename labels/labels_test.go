package labels

import (
	"math/rand"
	"testing"

	"github.com/janelia-flyem/reseg/adjacency"
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

func makeImage(width, height int32, data []int32) *volume.Volume {
	v := volume.New2d(width, height)
	copy(v.Data, data)
	return v
}

func conn(t *testing.T, c adjacency.Connectivity) *adjacency.Relation {
	rel, err := adjacency.ForConnectivity(c)
	if err != nil {
		t.Fatalf("connectivity %s: %v", c, err)
	}
	return rel
}

func TestRelabelDisjointBlobs(t *testing.T) {
	vol := makeImage(5, 1, []int32{1, 1, 0, 1, 1})
	out, n := Relabel(vol, conn(t, adjacency.Conn8))
	if n != 2 {
		t.Errorf("expected 2 components, got %d", n)
	}
	expected := []int32{1, 1, 0, 2, 2}
	for i := range expected {
		if out.Data[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, out.Data)
		}
	}
}

func TestRelabelConnectivity(t *testing.T) {
	// two diagonal touching voxels of the same label
	vol := makeImage(3, 3, []int32{
		7, 0, 0,
		0, 7, 0,
		0, 0, -3,
	})
	if _, n := Relabel(vol, conn(t, adjacency.Conn8)); n != 1 {
		t.Errorf("expected 1 component under 8-connectivity, got %d", n)
	}
	out, n := Relabel(vol, conn(t, adjacency.Conn4))
	if n != 2 {
		t.Errorf("expected 2 components under 4-connectivity, got %d", n)
	}
	if out.Data[8] != 0 {
		t.Errorf("negative label should be background, got %d", out.Data[8])
	}
}

func TestRelabelIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vol := volume.New(dvid.Point3d{12, 9, 3})
	for i := range vol.Data {
		vol.Data[i] = int32(rng.Intn(4))
	}
	adj := conn(t, adjacency.Conn6)
	once, n1 := Relabel(vol, adj)
	twice, n2 := Relabel(once, adj)
	if n1 != n2 {
		t.Fatalf("component count changed from %d to %d", n1, n2)
	}
	// dense labels are already in first-voxel raster order, so the result is identical
	for i := range once.Data {
		if once.Data[i] != twice.Data[i] {
			t.Fatalf("relabeling is not stable at voxel %d: %d vs %d", i, once.Data[i], twice.Data[i])
		}
	}
	// every original region maps into components that never span two original labels
	owner := make(map[int32]int32)
	for i, label := range once.Data {
		if label == 0 {
			if vol.Data[i] > 0 {
				t.Fatalf("foreground voxel %d lost its label", i)
			}
			continue
		}
		if prev, found := owner[label]; found && prev != vol.Data[i] {
			t.Fatalf("component %d spans labels %d and %d", label, prev, vol.Data[i])
		}
		owner[label] = vol.Data[i]
	}
	if int32(len(owner)) != n1 {
		t.Errorf("expected %d distinct components, found %d", n1, len(owner))
	}
}

func TestRelabelSlices(t *testing.T) {
	a := makeImage(3, 1, []int32{4, 0, 4})
	b := makeImage(3, 1, []int32{2, 2, 9})
	stack, err := volume.Stack([]*volume.Volume{a, b})
	if err != nil {
		t.Fatal(err)
	}
	out, counts, err := RelabelSlices(stack, conn(t, adjacency.Conn8))
	if err != nil {
		t.Fatal(err)
	}
	if counts[0] != 2 || counts[1] != 2 {
		t.Errorf("bad counts %v", counts)
	}
	expected := []int32{1, 0, 2, 1, 1, 2}
	for i := range expected {
		if out.Data[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, out.Data)
		}
	}
}
