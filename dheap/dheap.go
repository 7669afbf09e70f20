/*
Package dheap implements a differential priority queue over the integer elements
0..n-1 whose priorities live in a cost slice shared with the caller.  Each element
carries a state (White, Gray, Black) so a caller can tell never-queued, queued and
settled elements apart, and a queued element can be removed so its cost can be
lowered and the element reinserted.

Elements of equal cost are popped in insertion order.
*/
package dheap

import (
	"errors"
	"fmt"
)

// State of an element.
type State uint8

const (
	White State = iota // never inserted, or removed
	Gray               // in the queue
	Black              // popped
)

func (s State) String() string {
	switch s {
	case White:
		return "white"
	case Gray:
		return "gray"
	case Black:
		return "black"
	default:
		return "unknown"
	}
}

// Policy selects whether Pop returns the minimum or maximum cost.
type Policy uint8

const (
	MinValue Policy = iota
	MaxValue
)

// ErrState is returned when an operation is not allowed in an element's current state.
var ErrState = errors.New("element in wrong state")

// DHeap is a binary heap of element ids keyed on cost[id].  It is not safe for
// concurrent use.
type DHeap struct {
	cost   []float64
	policy Policy

	nodes []int    // heap array of element ids
	pos   []int    // position of each element in nodes, -1 if absent
	seq   []uint64 // insertion sequence for tie-breaking
	state []State

	next uint64
}

// New returns an empty queue for n elements whose priorities are read from cost.
// The caller must not change the cost of a Gray element; remove it first.
func New(n int, cost []float64, policy Policy) *DHeap {
	h := &DHeap{
		cost:   cost,
		policy: policy,
		nodes:  make([]int, 0, n),
		pos:    make([]int, n),
		seq:    make([]uint64, n),
		state:  make([]State, n),
	}
	for i := range h.pos {
		h.pos[i] = -1
	}
	return h
}

// Len returns the number of queued elements.
func (h *DHeap) Len() int {
	return len(h.nodes)
}

// Empty returns true if no element is queued.
func (h *DHeap) Empty() bool {
	return len(h.nodes) == 0
}

// State returns the state of element v.
func (h *DHeap) State(v int) State {
	return h.state[v]
}

// Insert queues a White element.
func (h *DHeap) Insert(v int) error {
	if v < 0 || v >= len(h.state) {
		return fmt.Errorf("element %d outside queue of size %d: %w", v, len(h.state), ErrState)
	}
	if h.state[v] != White {
		return fmt.Errorf("cannot insert %s element %d: %w", h.state[v], v, ErrState)
	}
	h.state[v] = Gray
	h.seq[v] = h.next
	h.next++
	h.pos[v] = len(h.nodes)
	h.nodes = append(h.nodes, v)
	h.up(h.pos[v])
	return nil
}

// Pop removes the element of best cost, marks it Black and returns it.  ok is false if
// the queue is empty.
func (h *DHeap) Pop() (v int, ok bool) {
	if len(h.nodes) == 0 {
		return -1, false
	}
	v = h.nodes[0]
	h.removeAt(0)
	h.state[v] = Black
	return v, true
}

// Remove takes a Gray element out of the queue and returns it to White.
func (h *DHeap) Remove(v int) error {
	if v < 0 || v >= len(h.state) {
		return fmt.Errorf("element %d outside queue of size %d: %w", v, len(h.state), ErrState)
	}
	if h.state[v] != Gray {
		return fmt.Errorf("cannot remove %s element %d: %w", h.state[v], v, ErrState)
	}
	h.removeAt(h.pos[v])
	h.state[v] = White
	return nil
}

// Reset empties the queue and returns every element to White.
func (h *DHeap) Reset() {
	h.nodes = h.nodes[:0]
	for i := range h.pos {
		h.pos[i] = -1
		h.state[i] = White
	}
	h.next = 0
}

func (h *DHeap) removeAt(i int) {
	v := h.nodes[i]
	last := len(h.nodes) - 1
	if i != last {
		h.swap(i, last)
	}
	h.nodes = h.nodes[:last]
	h.pos[v] = -1
	if i < last {
		if !h.down(i) {
			h.up(i)
		}
	}
}

// before returns true if the element at heap position i should pop before that at j.
func (h *DHeap) before(i, j int) bool {
	a, b := h.nodes[i], h.nodes[j]
	ca, cb := h.cost[a], h.cost[b]
	if ca != cb {
		if h.policy == MaxValue {
			return ca > cb
		}
		return ca < cb
	}
	return h.seq[a] < h.seq[b]
}

func (h *DHeap) swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.pos[h.nodes[i]] = i
	h.pos[h.nodes[j]] = j
}

func (h *DHeap) up(j int) {
	for j > 0 {
		parent := (j - 1) / 2
		if !h.before(j, parent) {
			break
		}
		h.swap(parent, j)
		j = parent
	}
}

// down sifts the element at i toward the leaves and reports whether it moved.
func (h *DHeap) down(i0 int) bool {
	i := i0
	n := len(h.nodes)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		j := left
		if right := left + 1; right < n && h.before(right, left) {
			j = right
		}
		if !h.before(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
	return i > i0
}
