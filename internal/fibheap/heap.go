package fibheap

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrStaleHandle is returned when a handle refers to an entry that has
	// already been extracted or deleted.
	ErrStaleHandle = errors.New("fibheap: stale handle")
	// ErrInvalidKeyOrder is returned when DecreaseKey is called with a key
	// greater than the entry's current key.
	ErrInvalidKeyOrder = errors.New("fibheap: new key is greater than current key")
)

// entry is a single node in the heap's forest of heap-ordered multi-way trees.
type entry struct {
	key   int
	seq   uint64
	value any

	parent *entry
	child  *entry
	left   *entry
	right  *entry

	degree int
	// marked tracks whether this entry has lost a child since it last became
	// a child itself; losing a second child triggers a cascading cut.
	marked  bool
	removed bool
}

// Handle is an opaque reference to an inserted entry, used for DecreaseKey
// and Delete. A handle becomes stale once its entry leaves the heap.
type Handle struct {
	e *entry
}

// seqCounter issues insertion sequence numbers. It is process-wide so that
// FIFO ties stay deterministic when independently built heaps are merged.
var seqCounter atomic.Uint64

// Heap is a Fibonacci min-heap. Equal keys are ordered FIFO by insertion.
// It is not safe for concurrent use; callers serialize access.
type Heap struct {
	min *entry
	n   int
}

// New returns an empty heap.
func New() *Heap {
	return &Heap{}
}

// Len returns the number of entries in the heap.
func (h *Heap) Len() int { return h.n }

// IsEmpty reports whether the heap has no entries.
func (h *Heap) IsEmpty() bool { return h.n == 0 }

// less orders entries by key, breaking ties by insertion sequence.
func less(a, b *entry) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.seq < b.seq
}

// Insert adds value under the given key and returns a handle for later
// DecreaseKey/Delete. O(1).
func (h *Heap) Insert(key int, value any) *Handle {
	e := &entry{key: key, seq: seqCounter.Add(1), value: value}
	e.left = e
	e.right = e
	h.addToRootList(e)
	h.n++
	return &Handle{e: e}
}

// PeekMin returns the minimum entry without removing it. The third return
// value is false when the heap is empty.
func (h *Heap) PeekMin() (key int, value any, ok bool) {
	if h.min == nil {
		return 0, nil, false
	}
	return h.min.key, h.min.value, true
}

// ExtractMin removes and returns the minimum entry. O(log n) amortized.
func (h *Heap) ExtractMin() (key int, value any, ok bool) {
	z := h.min
	if z == nil {
		return 0, nil, false
	}

	// Promote all children to the root list.
	if z.child != nil {
		c := z.child
		for {
			next := c.right
			c.parent = nil
			c.marked = false
			h.spliceIntoRootList(c)
			if next == z.child {
				break
			}
			c = next
		}
		z.child = nil
	}

	successor := z.right
	alone := successor == z
	h.removeFromList(z)
	if alone {
		h.min = nil
	} else {
		h.min = successor
		h.consolidate()
	}
	h.n--
	z.removed = true
	z.parent = nil
	return z.key, z.value, true
}

// DecreaseKey lowers the key of the entry referenced by handle. The new key
// must not exceed the current key; otherwise the heap is left unchanged and
// ErrInvalidKeyOrder is returned. O(1) amortized.
func (h *Heap) DecreaseKey(handle *Handle, newKey int) error {
	if handle == nil || handle.e == nil || handle.e.removed {
		return ErrStaleHandle
	}
	e := handle.e
	if newKey > e.key {
		return ErrInvalidKeyOrder
	}
	e.key = newKey
	p := e.parent
	if p != nil && less(e, p) {
		h.cut(e, p)
		h.cascadingCut(p)
	}
	if less(e, h.min) {
		h.min = e
	}
	return nil
}

// Delete removes an arbitrary entry. O(log n) amortized. Implemented by
// promoting the entry to the root list as the provisional minimum and then
// extracting it, which avoids a sentinel "-infinity" key.
func (h *Heap) Delete(handle *Handle) error {
	if handle == nil || handle.e == nil || handle.e.removed {
		return ErrStaleHandle
	}
	e := handle.e
	if p := e.parent; p != nil {
		h.cut(e, p)
		h.cascadingCut(p)
	}
	h.min = e
	h.ExtractMin()
	return nil
}

// Merge moves all entries of other into h and empties other. O(1). Sequence
// numbers are issued by one shared counter, so equal keys from both heaps
// keep their global insertion order after the merge.
func (h *Heap) Merge(other *Heap) {
	if other == nil || other.min == nil {
		return
	}
	if h.min == nil {
		h.min = other.min
	} else {
		// Splice the two circular root lists together.
		hRight := h.min.right
		oLeft := other.min.left
		h.min.right = other.min
		other.min.left = h.min
		oLeft.right = hRight
		hRight.left = oLeft
		if less(other.min, h.min) {
			h.min = other.min
		}
	}
	h.n += other.n
	other.min = nil
	other.n = 0
}

// addToRootList inserts a detached entry into the root list and updates min.
func (h *Heap) addToRootList(e *entry) {
	if h.min == nil {
		e.left = e
		e.right = e
		h.min = e
		return
	}
	h.spliceIntoRootList(e)
	if less(e, h.min) {
		h.min = e
	}
}

// spliceIntoRootList links e next to the current minimum without updating min.
func (h *Heap) spliceIntoRootList(e *entry) {
	if h.min == nil {
		e.left = e
		e.right = e
		h.min = e
		return
	}
	e.left = h.min
	e.right = h.min.right
	h.min.right.left = e
	h.min.right = e
}

// removeFromList unlinks e from its sibling ring.
func (h *Heap) removeFromList(e *entry) {
	e.left.right = e.right
	e.right.left = e.left
	e.left = e
	e.right = e
}

// consolidate pairwise-links roots of equal degree until every root degree is
// unique, then rebuilds the min pointer. Called only from ExtractMin.
func (h *Heap) consolidate() {
	// Collect the roots first; linking mutates the ring as we go.
	var roots []*entry
	r := h.min
	for {
		roots = append(roots, r)
		r = r.right
		if r == h.min {
			break
		}
	}

	degrees := make([]*entry, maxDegree(h.n)+1)
	for _, x := range roots {
		if x.parent != nil {
			// Already linked under another root earlier in this pass.
			continue
		}
		for {
			for x.degree >= len(degrees) {
				degrees = append(degrees, nil)
			}
			y := degrees[x.degree]
			if y == nil {
				break
			}
			if less(y, x) {
				x, y = y, x
			}
			degrees[x.degree] = nil
			h.link(y, x)
		}
		degrees[x.degree] = x
	}

	h.min = nil
	for _, x := range degrees {
		if x == nil {
			continue
		}
		x.left = x
		x.right = x
		h.addToRootList(x)
	}
}

// link makes y a child of x; both must be roots and x must not sort after y.
func (h *Heap) link(y, x *entry) {
	h.removeFromList(y)
	y.parent = x
	y.marked = false
	if x.child == nil {
		x.child = y
		y.left = y
		y.right = y
	} else {
		y.left = x.child
		y.right = x.child.right
		x.child.right.left = y
		x.child.right = y
	}
	x.degree++
}

// cut detaches e from its parent p and returns it to the root list.
func (h *Heap) cut(e, p *entry) {
	if p.child == e {
		if e.right != e {
			p.child = e.right
		} else {
			p.child = nil
		}
	}
	h.removeFromList(e)
	p.degree--
	e.parent = nil
	e.marked = false
	h.spliceIntoRootList(e)
}

// cascadingCut walks up from a node that just lost a child, cutting every
// already-marked ancestor. This is what bounds tree degree and keeps
// DecreaseKey O(1) amortized.
func (h *Heap) cascadingCut(e *entry) {
	for {
		p := e.parent
		if p == nil {
			return
		}
		if !e.marked {
			e.marked = true
			return
		}
		h.cut(e, p)
		e = p
	}
}

// maxDegree bounds the root degree after consolidation: D(n) <= log_phi(n).
// A loose base-2 bound with headroom is sufficient and cheap.
func maxDegree(n int) int {
	d := 1
	for m := 1; m < n; m <<= 1 {
		d++
	}
	return d + 1
}
