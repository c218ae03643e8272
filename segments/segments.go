// Package segments maps extents in a torrent's byte space onto the files
// that store them.
package segments

import (
	"sort"

	g "github.com/anacrolix/generics"
	"github.com/anacrolix/missinggo/v2/panicif"
)

type Extent struct {
	Start, Length int64
}

func (e Extent) End() int64 {
	return e.Start + e.Length
}

// Called with a segment index and the overlap relative to that segment's
// start. Returning false stops iteration.
type Callback = func(segmentIndex int, overlap Extent) bool

// Index locates extents within an ordered, contiguous sequence of segments,
// such as the files of a torrent laid end to end.
type Index struct {
	segments []Extent
}

// NewIndex builds an Index from consecutive segment lengths. Zero lengths
// are allowed; they just never match anything.
func NewIndex(lengths []int64) (ret Index) {
	var start int64
	for _, l := range lengths {
		ret.segments = append(ret.segments, Extent{start, l})
		start += l
	}
	return
}

func (me Index) Len() int {
	return len(me.segments)
}

func (me Index) Index(i int) Extent {
	return me.segments[i]
}

// Locate yields, in order, each segment overlapping the needle. Returns true
// if the callback stopped early or the whole needle was covered.
func (me Index) Locate(needle Extent, output Callback) bool {
	if needle.Length == 0 {
		return true
	}
	first := sort.Search(len(me.segments), func(i int) bool {
		return me.segments[i].End() > needle.Start
	})
	var covered int64
	for i := first; i < len(me.segments); i++ {
		seg := me.segments[i]
		if seg.Start >= needle.End() {
			break
		}
		o := Extent{Start: max(needle.Start-seg.Start, 0)}
		o.Length = min(seg.End(), needle.End()) - (seg.Start + o.Start)
		if o.Length <= 0 {
			// A zero-length segment, or one entirely before the needle.
			continue
		}
		if !output(i, o) {
			return true
		}
		covered += o.Length
	}
	return covered == needle.Length
}

type IndexAndOffset struct {
	Index  int
	Offset int64
}

// LocateOffset resolves a single byte offset to the segment holding it.
// None if the offset is out of bounds.
func (me Index) LocateOffset(off int64) (ret g.Option[IndexAndOffset]) {
	me.Locate(Extent{off, 1}, func(i int, o Extent) bool {
		panicif.NotEq(o.Length, 1)
		ret.Set(IndexAndOffset{
			Index:  i,
			Offset: o.Start,
		})
		return false
	})
	return
}
