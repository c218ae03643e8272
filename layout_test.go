package webseed

import (
	"testing"

	qt "github.com/go-quicktest/qt"
)

func TestFileLayout(t *testing.T) {
	layout := NewFileLayout([]File{
		{"t/a", 20480},
		{"t/empty", 0},
		{"t/b", 30000},
	}, 16384)

	qt.Assert(t, qt.Equals(layout.TotalLength(), int64(50480)))
	qt.Assert(t, qt.Equals(layout.NumBlocks(), BlockIndex(4)))

	// All but the final block are full sized.
	qt.Check(t, qt.Equals(layout.BlockSize(0), uint32(16384)))
	qt.Check(t, qt.Equals(layout.BlockSize(2), uint32(16384)))
	qt.Check(t, qt.Equals(layout.BlockSize(3), uint32(50480-3*16384)))

	loc := layout.ByteLoc(20480)
	qt.Assert(t, qt.Equals(loc, Location{Byte: 20480, Block: 1, BlockOffset: 4096}))

	// The boundary offset resolves to the start of the next non-empty file.
	file, off := layout.FileOffset(loc)
	qt.Check(t, qt.Equals(file, 2))
	qt.Check(t, qt.Equals(off, int64(0)))

	file, off = layout.FileOffset(layout.ByteLoc(0))
	qt.Check(t, qt.Equals(file, 0))
	qt.Check(t, qt.Equals(off, int64(0)))

	file, off = layout.FileOffset(layout.ByteLoc(50479))
	qt.Check(t, qt.Equals(file, 2))
	qt.Check(t, qt.Equals(off, int64(29999)))

	qt.Check(t, qt.Equals(layout.FileSize(2), int64(30000)))
	qt.Check(t, qt.Equals(layout.FileSubpath(0), "t/a"))

	qt.Check(t, qt.Equals(layout.BlockLoc(2), Location{Byte: 32768, Block: 2}))
}
