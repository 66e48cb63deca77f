package fibheap

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	h := New()
	require.NotNil(t, h)
	assert.True(t, h.IsEmpty())
	assert.Zero(t, h.Len())

	_, _, ok := h.PeekMin()
	assert.False(t, ok)
	_, _, ok = h.ExtractMin()
	assert.False(t, ok)
}

func TestInsertAndExtractOrder(t *testing.T) {
	t.Run("values come out in non-decreasing key order", func(t *testing.T) {
		h := New()
		keys := []int{5, 3, 8, 1, 9, 2, 7, 4, 6, 0}
		for _, k := range keys {
			h.Insert(k, k)
		}
		require.Equal(t, len(keys), h.Len())

		for want := 0; want < len(keys); want++ {
			k, v, ok := h.ExtractMin()
			require.True(t, ok)
			assert.Equal(t, want, k)
			assert.Equal(t, want, v)
		}
		assert.True(t, h.IsEmpty())
	})

	t.Run("equal keys are FIFO", func(t *testing.T) {
		h := New()
		h.Insert(1, "first")
		h.Insert(1, "second")
		h.Insert(0, "zero")
		h.Insert(1, "third")

		_, v, _ := h.ExtractMin()
		assert.Equal(t, "zero", v)
		_, v, _ = h.ExtractMin()
		assert.Equal(t, "first", v)
		_, v, _ = h.ExtractMin()
		assert.Equal(t, "second", v)
		_, v, _ = h.ExtractMin()
		assert.Equal(t, "third", v)
	})
}

func TestPeekMin(t *testing.T) {
	h := New()
	h.Insert(10, "ten")
	h.Insert(3, "three")

	k, v, ok := h.PeekMin()
	require.True(t, ok)
	assert.Equal(t, 3, k)
	assert.Equal(t, "three", v)
	assert.Equal(t, 2, h.Len(), "peek must not remove")
}

func TestDecreaseKey(t *testing.T) {
	t.Run("moves entry ahead of the minimum", func(t *testing.T) {
		h := New()
		h.Insert(2, "b")
		handle := h.Insert(10, "c")
		h.Insert(1, "a")

		require.NoError(t, h.DecreaseKey(handle, 0))

		k, v, ok := h.PeekMin()
		require.True(t, ok)
		assert.Equal(t, 0, k)
		assert.Equal(t, "c", v)
	})

	t.Run("increase is rejected and heap unchanged", func(t *testing.T) {
		h := New()
		handle := h.Insert(5, "x")
		h.Insert(7, "y")

		err := h.DecreaseKey(handle, 6)
		assert.ErrorIs(t, err, ErrInvalidKeyOrder)
		assert.Equal(t, 2, h.Len())

		k, v, ok := h.PeekMin()
		require.True(t, ok)
		assert.Equal(t, 5, k)
		assert.Equal(t, "x", v)
	})

	t.Run("cascading cuts keep order under heavy decreases", func(t *testing.T) {
		h := New()
		handles := make([]*Handle, 0, 64)
		for i := 0; i < 64; i++ {
			handles = append(handles, h.Insert(100+i, i))
		}
		// Force tree construction, then cut deep children repeatedly.
		k, _, ok := h.ExtractMin()
		require.True(t, ok)
		require.Equal(t, 100, k)

		for i := 10; i < 40; i++ {
			require.NoError(t, h.DecreaseKey(handles[i], 100-i))
		}

		prev := -1 << 30
		for !h.IsEmpty() {
			k, _, ok := h.ExtractMin()
			require.True(t, ok)
			assert.GreaterOrEqual(t, k, prev)
			prev = k
		}
	})

	t.Run("stale handle", func(t *testing.T) {
		h := New()
		handle := h.Insert(1, "x")
		_, _, ok := h.ExtractMin()
		require.True(t, ok)

		assert.ErrorIs(t, h.DecreaseKey(handle, 0), ErrStaleHandle)
		assert.ErrorIs(t, h.Delete(handle), ErrStaleHandle)
	})
}

func TestDelete(t *testing.T) {
	h := New()
	h.Insert(1, "keep-1")
	victim := h.Insert(2, "victim")
	h.Insert(3, "keep-3")

	require.NoError(t, h.Delete(victim))
	assert.Equal(t, 2, h.Len())

	_, v, _ := h.ExtractMin()
	assert.Equal(t, "keep-1", v)
	_, v, _ = h.ExtractMin()
	assert.Equal(t, "keep-3", v)

	assert.ErrorIs(t, h.Delete(victim), ErrStaleHandle)
}

func TestMerge(t *testing.T) {
	a := New()
	b := New()
	for i := 0; i < 5; i++ {
		a.Insert(i*2, i*2) // 0 2 4 6 8
		b.Insert(i*2+1, i*2+1)
	}

	a.Merge(b)
	assert.Equal(t, 10, a.Len())
	assert.True(t, b.IsEmpty(), "merge consumes the other heap")

	for want := 0; want < 10; want++ {
		k, _, ok := a.ExtractMin()
		require.True(t, ok)
		assert.Equal(t, want, k)
	}

	t.Run("merging an empty heap is a no-op", func(t *testing.T) {
		a.Insert(1, 1)
		a.Merge(New())
		assert.Equal(t, 1, a.Len())
	})

	t.Run("equal keys keep insertion order across heaps", func(t *testing.T) {
		x := New()
		y := New()
		x.Insert(1, "x1")
		y.Insert(1, "y1")
		x.Insert(1, "x2")
		y.Insert(1, "y2")

		x.Merge(y)
		var got []any
		for !x.IsEmpty() {
			_, v, ok := x.ExtractMin()
			require.True(t, ok)
			got = append(got, v)
		}
		assert.Equal(t, []any{"x1", "y1", "x2", "y2"}, got)
	})
}

func TestRandomizedAgainstSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	h := New()
	var live []*Handle
	var keys []int

	for i := 0; i < 2000; i++ {
		switch rng.Intn(10) {
		case 0, 1, 2, 3, 4: // insert
			k := rng.Intn(500)
			live = append(live, h.Insert(k, k))
			keys = append(keys, k)
		case 5, 6: // extract
			if len(keys) == 0 {
				continue
			}
			sort.Ints(keys)
			k, _, ok := h.ExtractMin()
			require.True(t, ok)
			require.Equal(t, keys[0], k)
			keys = keys[1:]
		case 7, 8: // decrease a random live handle
			if len(live) == 0 {
				continue
			}
			handle := live[rng.Intn(len(live))]
			if handle.e.removed {
				continue
			}
			cur := handle.e.key
			nk := cur - rng.Intn(50)
			require.NoError(t, h.DecreaseKey(handle, nk))
			for j, k := range keys {
				if k == cur {
					keys[j] = nk
					break
				}
			}
		default: // delete
			if len(live) == 0 {
				continue
			}
			handle := live[rng.Intn(len(live))]
			if handle.e.removed {
				continue
			}
			cur := handle.e.key
			require.NoError(t, h.Delete(handle))
			for j, k := range keys {
				if k == cur {
					keys = append(keys[:j], keys[j+1:]...)
					break
				}
			}
		}
		require.Equal(t, len(keys), h.Len())
	}

	sort.Ints(keys)
	for _, want := range keys {
		k, _, ok := h.ExtractMin()
		require.True(t, ok)
		require.Equal(t, want, k)
	}
	require.True(t, h.IsEmpty())
}
