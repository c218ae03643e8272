package webseed

import (
	"github.com/anacrolix/missinggo/v2/panicif"

	"github.com/tempweb/webseed/segments"
)

// File is one entry in a torrent's file list.
type File struct {
	// Path below the webseed base URL, slash separated, unescaped. Includes
	// the torrent name component for multi-file torrents.
	Subpath string
	Length  int64
}

// FileLayout implements the layout half of the Torrent interface: the
// mapping between torrent-space bytes, fixed-size blocks, and the files
// storing them. Zero-length files occupy no extent and are never returned
// by FileOffset.
type FileLayout struct {
	files       []File
	index       segments.Index
	blockSize   int64
	totalLength int64
}

func NewFileLayout(files []File, blockSize int64) FileLayout {
	panicif.LessThanOrEqual(blockSize, 0)
	lengths := make([]int64, len(files))
	var total int64
	for i, f := range files {
		lengths[i] = f.Length
		total += f.Length
	}
	return FileLayout{
		files:       files,
		index:       segments.NewIndex(lengths),
		blockSize:   blockSize,
		totalLength: total,
	}
}

func (me FileLayout) TotalLength() int64 {
	return me.totalLength
}

func (me FileLayout) NumBlocks() BlockIndex {
	return BlockIndex((me.totalLength + me.blockSize - 1) / me.blockSize)
}

func (me FileLayout) ByteLoc(byte int64) Location {
	panicif.GreaterThan(byte, me.totalLength)
	return Location{
		Byte:        byte,
		Block:       BlockIndex(byte / me.blockSize),
		BlockOffset: uint32(byte % me.blockSize),
	}
}

func (me FileLayout) BlockLoc(block BlockIndex) Location {
	return me.ByteLoc(int64(block) * me.blockSize)
}

func (me FileLayout) BlockSize(block BlockIndex) uint32 {
	panicif.False(block < me.NumBlocks())
	return uint32(min(me.blockSize, me.totalLength-int64(block)*me.blockSize))
}

func (me FileLayout) FileOffset(loc Location) (int, int64) {
	res := me.index.LocateOffset(loc.Byte)
	panicif.False(res.Ok)
	return res.Value.Index, res.Value.Offset
}

func (me FileLayout) FileSize(file int) int64 {
	return me.files[file].Length
}

func (me FileLayout) FileSubpath(file int) string {
	return me.files[file].Subpath
}

// Locate yields the per-file extents covering the given torrent-space
// extent, for callers that move block data in and out of files.
func (me FileLayout) Locate(e segments.Extent, output segments.Callback) bool {
	return me.index.Locate(e, output)
}
