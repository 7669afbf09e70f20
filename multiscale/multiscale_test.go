package multiscale

import (
	"context"
	"errors"
	"testing"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/ift"
	"github.com/janelia-flyem/reseg/labels"
	"github.com/janelia-flyem/reseg/volume"
)

func makeImage(width, height int32, data []int32) *volume.Volume {
	v := volume.New2d(width, height)
	copy(v.Data, data)
	return v
}

func makeStack(t *testing.T, width, height int32, scales ...[]int32) *volume.Volume {
	var slices []*volume.Volume
	for _, data := range scales {
		slices = append(slices, makeImage(width, height, data))
	}
	stack, err := volume.Stack(slices)
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	return stack
}

func checkData(t *testing.T, name string, got []int32, expected []int32) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("%s: expected %v, got %v", name, expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("%s: expected %v, got %v", name, expected, got)
		}
	}
}

// unit square corners for nodes 0..3
func squareCentroids() *Centroids {
	pts := []dvid.Point3d{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}
	return &Centroids{Mean: pts, Inside: pts, Count: []int{1, 1, 1, 1}}
}

func TestFarthestOnRing(t *testing.T) {
	g := labels.NewGraph(3)
	g.AddEdge(0, 1)
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	g.AddEdge(3, 0)
	c := squareCentroids()

	choice, ok := FindFarthestAdjacent(g, c, 0, dvid.Point3d{0, 0, 0})
	if !ok || choice.Fallback {
		t.Fatalf("expected direct choice, got %+v %t", choice, ok)
	}
	if choice.Label != 1 {
		t.Errorf("equidistant neighbors 1 and 3 should resolve to 1, got %d", choice.Label)
	}

	g.AddEdge(0, 2)
	choice, ok = FindFarthestAdjacent(g, c, 0, dvid.Point3d{0, 0, 0})
	if !ok || choice.Label != 2 || choice.Point != (dvid.Point3d{1, 1, 0}) {
		t.Errorf("expected farthest adjacent node 2, got %+v", choice)
	}

	choice, _ = FindFarthestAdjacent(g, c, 0, dvid.Point3d{0, 0, 0}, 2)
	if choice.Label != 1 {
		t.Errorf("expected 1 with 2 excluded, got %d", choice.Label)
	}
}

func TestFarthestFallback(t *testing.T) {
	g := labels.NewGraph(3)
	g.AddEdge(2, 3)
	c := squareCentroids()
	choice, ok := FindFarthestAdjacent(g, c, 1, dvid.Point3d{1, 0, 0})
	if !ok || !choice.Fallback || choice.Label != 2 {
		t.Errorf("expected fallback to label 2, got %+v %t", choice, ok)
	}

	g.Remove(2)
	choice, ok = FindFarthestAdjacent(g, c, 1, dvid.Point3d{1, 0, 0})
	if ok || choice.Point != (dvid.Point3d{1, 0, 0}) {
		t.Errorf("expected no choice on empty graph, got %+v %t", choice, ok)
	}
}

func TestCentroids(t *testing.T) {
	vol := makeImage(4, 3, []int32{
		1, 1, 1, 2,
		1, 0, 0, 2,
		1, 0, 0, 2,
	})
	c := ComputeCentroids(vol)
	if c.MaxLabel() != 2 || !c.Present(1) || !c.Present(2) || c.Present(3) {
		t.Fatalf("bad presence: %+v", c)
	}
	if c.Count[1] != 5 || c.Count[2] != 3 {
		t.Errorf("bad counts %v", c.Count)
	}
	// label 1 mean (3/5, 3/5) truncates to (0,0), which is inside
	if c.Mean[1] != (dvid.Point3d{0, 0, 0}) || c.Inside[1] != (dvid.Point3d{0, 0, 0}) {
		t.Errorf("bad centroid of 1: %s inside %s", c.Mean[1], c.Inside[1])
	}
	if c.Mean[2] != (dvid.Point3d{3, 1, 0}) {
		t.Errorf("bad centroid of 2: %s", c.Mean[2])
	}
	// background mean (1.5, 1.5) -> (1,1)
	if c.Mean[0] != (dvid.Point3d{1, 1, 0}) {
		t.Errorf("bad centroid of 0: %s", c.Mean[0])
	}

	ring := makeImage(3, 3, []int32{
		5, 5, 5,
		5, 0, 5,
		5, 5, 5,
	})
	c = ComputeCentroids(ring)
	if c.Mean[5] != (dvid.Point3d{1, 1, 0}) {
		t.Errorf("bad ring centroid %s", c.Mean[5])
	}
	if ring.At(c.Inside[5]) != 5 || c.Inside[5] != (dvid.Point3d{1, 0, 0}) {
		t.Errorf("expected inside voxel (1,0,0), got %s", c.Inside[5])
	}
}

func TestVisited(t *testing.T) {
	stack := makeStack(t, 3, 1, []int32{1, 2, 4}, []int32{1, 1, 0})
	v := NewVisited(stack)
	if v.Pending(0) != 3 || v.Pending(1) != 1 || !v.AnyPending() {
		t.Fatalf("bad pending counts %d %d", v.Pending(0), v.Pending(1))
	}
	v.Mark(2, 0)
	v.Mark(2, 0)
	v.Mark(3, 0)
	v.Mark(7, 1)
	if v.Pending(0) != 2 || !v.IsVisited(2, 0) || v.IsVisited(3, 0) {
		t.Errorf("bad marks: pending %d", v.Pending(0))
	}
	v.Mark(1, 0)
	v.Mark(4, 0)
	v.Mark(1, 1)
	if v.AnyPending() {
		t.Errorf("expected nothing pending")
	}
}

func TestWalk(t *testing.T) {
	stack := makeStack(t, 6, 2,
		[]int32{
			1, 2, 3, 4, 5, 6,
			1, 2, 3, 4, 5, 6,
		},
		[]int32{
			1, 1, 1, 2, 2, 2,
			1, 1, 1, 2, 2, 2,
		},
		[]int32{
			1, 1, 1, 1, 1, 1,
			1, 1, 1, 1, 1, 1,
		},
	)
	w, err := NewWalker(stack, [2]dvid.Point3d{{0, 0, 0}, {5, 0, 0}}, WalkerOptions{Connectivity: 4})
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	if err := w.Run(context.Background(), 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	if w.Visited().Pending(0) != 0 {
		t.Errorf("expected every finest region consumed, %d pending", w.Visited().Pending(0))
	}
	if w.Steps() != 3 {
		t.Errorf("expected 3 steps, got %d", w.Steps())
	}
	result := w.Result()
	sides := []int32{
		1, 1, 1, 2, 2, 2,
		1, 1, 1, 2, 2, 2,
	}
	n := result.SliceSize()
	checkData(t, "scale 0", result.Data[:n], sides)
	checkData(t, "scale 1", result.Data[n:2*n], sides)
	checkData(t, "scale 2", result.Data[2*n:], make([]int32, n))

	seg, err := w.Segment(context.Background(), ift.Options{})
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	checkData(t, "segment", seg.Data, sides)

	// the input stack is untouched
	if stack.Data[0] != 1 || stack.Data[5] != 6 {
		t.Errorf("walker modified its input")
	}
}

func TestWalkMaxSteps(t *testing.T) {
	stack := makeStack(t, 6, 1,
		[]int32{1, 2, 3, 4, 5, 6},
		[]int32{1, 1, 1, 1, 1, 1},
	)
	w, err := NewWalker(stack, [2]dvid.Point3d{{0, 0, 0}, {5, 0, 0}}, WalkerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Run(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if w.Steps() != 1 {
		t.Errorf("expected 1 step, got %d", w.Steps())
	}
	// after one step the anchors moved to regions 2 and 5, which the run froze
	checkData(t, "scale 0", w.Result().Data[:6], []int32{1, 1, 0, 0, 2, 2})

	seg, err := w.Segment(context.Background(), ift.Options{})
	if err != nil {
		t.Fatal(err)
	}
	checkData(t, "segment", seg.Data, []int32{1, 1, 1, 2, 2, 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled walk, got %v", err)
	}
}

func TestWalkerArguments(t *testing.T) {
	stack := makeStack(t, 3, 1, []int32{1, 1, 0}, []int32{1, 1, 1})
	tests := [][2]dvid.Point3d{
		{{0, 0, 0}, {1, 0, 0}},
		{{0, 0, 0}, {2, 0, 0}},
		{{0, 0, 0}, {3, 0, 0}},
	}
	for _, anchors := range tests {
		if _, err := NewWalker(stack, anchors, WalkerOptions{}); !errors.Is(err, dvid.ErrInvalidArgument) {
			t.Errorf("anchors %v: expected invalid argument, got %v", anchors, err)
		}
	}
	if _, err := NewWalker(stack, tests[0], WalkerOptions{Connectivity: 26}); !errors.Is(err, dvid.ErrInvalidArgument) {
		t.Errorf("expected invalid argument for 3d connectivity, got %v", err)
	}
}

func TestWalkerCropRelabel(t *testing.T) {
	// two disjoint pieces share label 3 at the finest scale; the coarse scale has a
	// second object the crop removes
	stack := makeStack(t, 5, 1,
		[]int32{3, 4, 3, 7, 7},
		[]int32{1, 1, 1, 2, 2},
	)
	w, err := NewWalker(stack, [2]dvid.Point3d{{0, 0, 0}, {2, 0, 0}}, WalkerOptions{Relabel: true, Crop: true})
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	if w.Visited().Pending(0) != 3 {
		t.Errorf("expected 3 regions after crop and relabel, got %d", w.Visited().Pending(0))
	}
	if err := w.Run(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	seg, err := w.Segment(context.Background(), ift.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if seg.Data[0] != 1 || seg.Data[2] != 2 || seg.Data[3] != 0 || seg.Data[4] != 0 {
		t.Errorf("bad segmentation %v", seg.Data)
	}
}

func TestSelectSuperpixel(t *testing.T) {
	vol := makeImage(3, 2, []int32{4, 4, 2, 1, 4, 2})
	mask, err := SelectSuperpixel(vol, dvid.Point3d{1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	checkData(t, "mask", mask.Data, []int32{1, 1, 0, 0, 1, 0})
	if _, err := SelectSuperpixel(vol, dvid.Point3d{3, 0, 0}); !errors.Is(err, dvid.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestCropAsLayer(t *testing.T) {
	stack := makeStack(t, 4, 1, []int32{1, 2, 3, 4}, []int32{8, 8, 9, 9})
	if err := CropAsLayer(stack, 1, dvid.Point3d{0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	checkData(t, "cropped", stack.Data, []int32{1, 2, 0, 0, 8, 8, 0, 0})
	if err := CropAsLayer(stack, 2, dvid.Point3d{0, 0, 0}); err == nil {
		t.Errorf("expected error for missing layer")
	}
}

func TestMergeAndSwap(t *testing.T) {
	lbls := makeImage(4, 1, []int32{3, 3, 5, 5})
	reseg := makeImage(4, 1, []int32{1, 2, 0, 0})
	merged, err := Merge(lbls, reseg)
	if err != nil {
		t.Fatal(err)
	}
	checkData(t, "merged", merged.Data, []int32{3, 6, 5, 5})
	checkData(t, "original", lbls.Data, []int32{3, 3, 5, 5})
	if _, err := Merge(lbls, volume.New2d(2, 2)); !errors.Is(err, dvid.ErrInvalidArgument) {
		t.Errorf("expected invalid argument on size mismatch, got %v", err)
	}

	if err := SwapLabel(merged, 5, 6, 0); err != nil {
		t.Fatal(err)
	}
	checkData(t, "swapped", merged.Data, []int32{3, 5, 6, 6})
	if err := SwapLabel(merged, 5, 6, 1); err == nil {
		t.Errorf("expected error swapping in missing slice")
	}
}
