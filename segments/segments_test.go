package segments

import (
	"testing"

	qt "github.com/go-quicktest/qt"
)

type hit struct {
	Index   int
	Overlap Extent
}

func locateAll(i Index, needle Extent) (hits []hit, covered bool) {
	covered = i.Locate(needle, func(index int, o Extent) bool {
		hits = append(hits, hit{index, o})
		return true
	})
	return
}

func TestLocate(t *testing.T) {
	// Files of 10, 0, 5 and 7 bytes laid end to end.
	index := NewIndex([]int64{10, 0, 5, 7})

	hits, covered := locateAll(index, Extent{8, 4})
	qt.Assert(t, qt.IsTrue(covered))
	qt.Assert(t, qt.DeepEquals(hits, []hit{
		{0, Extent{8, 2}},
		{2, Extent{0, 2}},
	}))

	hits, covered = locateAll(index, Extent{0, 22})
	qt.Assert(t, qt.IsTrue(covered))
	qt.Assert(t, qt.DeepEquals(hits, []hit{
		{0, Extent{0, 10}},
		{2, Extent{0, 5}},
		{3, Extent{0, 7}},
	}))

	// Runs off the end.
	hits, covered = locateAll(index, Extent{20, 5})
	qt.Assert(t, qt.IsFalse(covered))
	qt.Assert(t, qt.DeepEquals(hits, []hit{
		{3, Extent{5, 2}},
	}))

	// Zero-length needles always succeed and match nothing.
	hits, covered = locateAll(index, Extent{3, 0})
	qt.Assert(t, qt.IsTrue(covered))
	qt.Assert(t, qt.HasLen(hits, 0))
}

func TestLocateStopsEarly(t *testing.T) {
	index := NewIndex([]int64{5, 5})
	var calls int
	qt.Assert(t, qt.IsTrue(index.Locate(Extent{0, 10}, func(int, Extent) bool {
		calls++
		return false
	})))
	qt.Assert(t, qt.Equals(calls, 1))
}

func TestLocateOffset(t *testing.T) {
	index := NewIndex([]int64{10, 0, 5, 7})

	res := index.LocateOffset(0)
	qt.Assert(t, qt.IsTrue(res.Ok))
	qt.Assert(t, qt.Equals(res.Value, IndexAndOffset{0, 0}))

	// The zero-length file never matches; its neighbour does.
	res = index.LocateOffset(10)
	qt.Assert(t, qt.IsTrue(res.Ok))
	qt.Assert(t, qt.Equals(res.Value, IndexAndOffset{2, 0}))

	res = index.LocateOffset(21)
	qt.Assert(t, qt.IsTrue(res.Ok))
	qt.Assert(t, qt.Equals(res.Value, IndexAndOffset{3, 6}))

	// One past the end.
	res = index.LocateOffset(22)
	qt.Assert(t, qt.IsFalse(res.Ok))
}
