package webseed

import (
	"github.com/RoaringBitmap/roaring"
)

type TorrentID int

type BlockIndex = uint32

// BlockSpan is a half-open range of block indices requested together.
type BlockSpan struct {
	Begin, End BlockIndex
}

func (me BlockSpan) Len() int {
	return int(me.End - me.Begin)
}

// Location is a byte offset in torrent space together with its block
// coordinates.
type Location struct {
	Byte        int64
	Block       BlockIndex
	BlockOffset uint32
}

// Torrent is the webseed's view of the torrent it serves: the file layout
// math and the little state it needs to decide whether fetching still makes
// sense. Implementations are only called with the client lock held.
type Torrent interface {
	ID() TorrentID
	NumPieces() int
	BlockLoc(BlockIndex) Location
	ByteLoc(int64) Location
	BlockSize(BlockIndex) uint32
	// Resolves a location to the file containing it and the offset within
	// that file.
	FileOffset(Location) (file int, offset int64)
	FileSize(file int) int64
	FileSubpath(file int) string
	HasBlock(BlockIndex) bool
	IsRunning() bool
	IsDone() bool
}

// TorrentResolver looks torrents up by id, returning nil once a torrent has
// been removed. In-flight webseed work re-resolves on every re-entry so that
// a removed torrent is never touched.
type TorrentResolver interface {
	Torrent(TorrentID) Torrent
}

// PeerManager is the scheduling policy deciding which blocks to request
// next, across all peers. It depends only on the Peer capability surface.
type PeerManager interface {
	// Returns up to maxBlocks blocks needed next, grouped into contiguous
	// spans.
	GetNextRequests(t Torrent, p Peer, maxBlocks int) []BlockSpan
	// Bookkeeping: the given span has been sent as requests on this peer.
	ClientSentRequests(t Torrent, p Peer, span BlockSpan)
}

// Cache is the shared on-disk block cache. WriteBlock is only ever called
// with the client lock held, from the block writer goroutine.
type Cache interface {
	WriteBlock(id TorrentID, block BlockIndex, data []byte) error
}

type Direction int

const (
	// Data flowing from the peer to us.
	Down Direction = iota
	Up
)

type RequestLimit struct {
	MaxSpans, MaxBlocks int
}

// Peer is the capability surface the peer manager schedules against,
// implemented by wire peers and webseeds alike.
type Peer interface {
	CanRequest() RequestLimit
	RequestBlocks([]BlockSpan)
	ActiveRequestCount(Direction) int
	GetPieceSpeed(Direction) float64
	Has() *roaring.Bitmap
	DisplayName() string
}
