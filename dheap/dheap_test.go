package dheap

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"
)

func TestPopOrder(t *testing.T) {
	cost := []float64{5, 1, 3, 1, math.Inf(1), 0}
	h := New(len(cost), cost, MinValue)
	for _, v := range []int{0, 1, 2, 3, 4, 5} {
		if err := h.Insert(v); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
	}
	if h.Len() != 6 {
		t.Fatalf("expected 6 queued, got %d", h.Len())
	}
	// equal costs 1 pop in insertion order
	expected := []int{5, 1, 3, 2, 0, 4}
	for _, want := range expected {
		v, ok := h.Pop()
		if !ok || v != want {
			t.Fatalf("expected pop %d, got %d (%t)", want, v, ok)
		}
		if h.State(v) != Black {
			t.Errorf("popped element %d is %s", v, h.State(v))
		}
	}
	if !h.Empty() {
		t.Errorf("expected empty queue")
	}
	if _, ok := h.Pop(); ok {
		t.Errorf("pop on empty queue succeeded")
	}
}

func TestMaxPolicy(t *testing.T) {
	cost := []float64{2, 7, 7, -1}
	h := New(len(cost), cost, MaxValue)
	for v := range cost {
		h.Insert(v)
	}
	var got []int
	for !h.Empty() {
		v, _ := h.Pop()
		got = append(got, v)
	}
	expected := []int{1, 2, 0, 3}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}
}

func TestStates(t *testing.T) {
	cost := []float64{4, 2, 9}
	h := New(3, cost, MinValue)
	if err := h.Remove(0); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState removing white element, got %v", err)
	}
	h.Insert(0)
	if err := h.Insert(0); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState inserting gray element, got %v", err)
	}
	h.Insert(1)
	h.Insert(2)

	// lower the cost of a queued element: remove, update, reinsert
	if err := h.Remove(2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if h.State(2) != White {
		t.Errorf("removed element is %s", h.State(2))
	}
	cost[2] = 1
	h.Insert(2)
	if v, _ := h.Pop(); v != 2 {
		t.Errorf("expected reinserted element 2 first, got %d", v)
	}
	if err := h.Insert(2); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState inserting black element, got %v", err)
	}
	if err := h.Insert(7); !errors.Is(err, ErrState) {
		t.Errorf("expected ErrState inserting out-of-range element, got %v", err)
	}

	h.Reset()
	if !h.Empty() || h.State(2) != White || h.State(0) != White {
		t.Errorf("reset did not clear the queue")
	}
}

func TestRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n := 500
	cost := make([]float64, n)
	for i := range cost {
		cost[i] = float64(rng.Intn(50))
	}
	h := New(n, cost, MinValue)
	for i := 0; i < n; i++ {
		h.Insert(i)
	}
	// remove a third at random
	removed := make(map[int]bool)
	for len(removed) < n/3 {
		v := rng.Intn(n)
		if removed[v] {
			continue
		}
		if err := h.Remove(v); err != nil {
			t.Fatalf("remove %d: %v", v, err)
		}
		removed[v] = true
	}
	var expected []int
	for i := 0; i < n; i++ {
		if !removed[i] {
			expected = append(expected, i)
		}
	}
	sort.SliceStable(expected, func(i, j int) bool { return cost[expected[i]] < cost[expected[j]] })
	for _, want := range expected {
		v, ok := h.Pop()
		if !ok || v != want {
			t.Fatalf("expected %d (cost %f), got %d (cost %f)", want, cost[want], v, cost[v])
		}
	}
	if !h.Empty() {
		t.Errorf("queue not empty: %d left", h.Len())
	}
}
