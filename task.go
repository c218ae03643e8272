package webseed

import (
	"errors"
	"net/http"

	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2/panicif"
)

// fetchTask covers one contiguous block span. At most one HTTP request
// (chunk) is in flight per task; a span crossing file boundaries takes
// several chunks in sequence, since webseed requests are per-file.
type fetchTask struct {
	ws     *Webseed
	blocks BlockSpan
	// Absolute end byte of the span.
	endByte int64
	// The current position in the task: the next block to hand off. The next
	// chunk begins at loc.Byte plus whatever is sitting in the buffer.
	loc Location
	buf recvBuffer
	// Set once by teardown. A dead task's callbacks do nothing but return.
	dead bool
}

func newFetchTask(ws *Webseed, tor Torrent, span BlockSpan) *fetchTask {
	t := &fetchTask{
		ws:      ws,
		blocks:  span,
		endByte: tor.BlockLoc(span.End-1).Byte + int64(tor.BlockSize(span.End-1)),
		loc:     tor.BlockLoc(span.Begin),
	}
	t.buf.onAdd = t.bufferGotData
	return t
}

// Runs on the transport goroutine for every append to the buffer, possibly
// several times during one response.
func (t *fetchTask) bufferGotData(n int) {
	t.ws.locker.Lock()
	defer t.ws.locker.Unlock()
	if t.dead {
		return
	}
	t.ws.gotPieceData(n)
}

// Issues the next HTTP request for the span, clamped to whichever runs out
// first: the current file or the task.
func (t *fetchTask) requestNextChunk() {
	tor := t.ws.getTorrent()
	if tor == nil {
		return
	}
	loc := tor.ByteLoc(t.loc.Byte + int64(t.buf.Len()))
	file, fileOffset := tor.FileOffset(loc)
	leftInFile := tor.FileSize(file) - fileOffset
	leftInTask := t.endByte - loc.Byte
	thisChunk := min(leftInFile, leftInTask)
	panicif.LessThanOrEqual(thisChunk, 0)

	t.ws.limiter.taskStarted()
	t.ws.fetcher.Fetch(FetchRequest{
		URL:           urlForFile(t.ws.baseURL, tor.FileSubpath(file), t.ws.pathEscaper),
		Range:         ByteRange{fileOffset, fileOffset + thisChunk - 1},
		SpeedLimitTag: tor.ID(),
		Body:          &t.buf,
		OnDone:        t.fetchDone,
	})
}

// Completion handler, on the transport goroutine. Success means a clean 206:
// anything else counts against the connection limiter.
func (t *fetchTask) fetchDone(res FetchResult) {
	t.ws.locker.Lock()
	defer t.ws.locker.Unlock()
	if t.dead {
		// Teardown already detached us.
		return
	}

	success := res.Status == http.StatusPartialContent && res.Err == nil
	t.ws.limiter.taskFinished(success)

	tor := t.ws.getTorrent()
	if tor == nil {
		t.ws.deleteTask(t)
		return
	}

	if !success {
		level := log.Warning
		if errors.Is(res.Err, ErrTooFast) {
			level = log.Debug
		}
		t.ws.logger.Levelf(level, "fetch for blocks [%v,%v) failed: status %v, err: %v",
			t.blocks.Begin, t.blocks.End, res.Status, res.Err)
		t.ws.publishRejection(BlockSpan{t.loc.Block, t.blocks.End})
		t.ws.deleteTask(t)
		return
	}

	t.useFetchedBlocks(tor)

	if t.loc.Byte < t.endByte {
		// The request finished but the span isn't done: we ran out of file,
		// so continue with the next one.
		t.requestNextChunk()
		return
	}

	panicif.NotEq(t.buf.Len(), 0)
	t.ws.deleteTask(t)

	// A slot just freed up.
	t.ws.onIdle()
}

// Drains every complete block sitting in the buffer, in cursor order.
func (t *fetchTask) useFetchedBlocks(tor Torrent) {
	for t.loc.Byte < t.endByte {
		blockSize := int(tor.BlockSize(t.loc.Block))
		if t.buf.Len() < blockSize {
			break
		}

		if tor.HasBlock(t.loc.Block) {
			// Someone else got there first.
			t.buf.discard(blockSize)
		} else {
			t.ws.writer.queue(blockWrite{
				torrentID: tor.ID(),
				block:     t.loc.Block,
				data:      t.buf.take(blockSize),
				ws:        t.ws,
			})
		}

		t.loc = tor.ByteLoc(t.loc.Byte + int64(blockSize))
		panicif.GreaterThan(t.loc.Byte, t.endByte)
		panicif.True(t.loc.Byte < t.endByte && t.loc.BlockOffset != 0)
	}
}
