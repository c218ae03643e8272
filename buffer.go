package webseed

import (
	"bytes"
	"io"

	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/anacrolix/sync"
)

// recvBuffer accumulates response bytes as the transport streams them in.
// onAdd fires outside the buffer lock for every append, so the owner can do
// bandwidth accounting under its own lock. Drains only happen from the
// completion path, after the transport has stopped writing for the current
// chunk.
type recvBuffer struct {
	mu    sync.Mutex
	b     bytes.Buffer
	onAdd func(n int)
}

func (me *recvBuffer) Write(p []byte) (int, error) {
	me.mu.Lock()
	n, err := me.b.Write(p)
	me.mu.Unlock()
	if n > 0 && me.onAdd != nil {
		me.onAdd(n)
	}
	return n, err
}

func (me *recvBuffer) Len() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.b.Len()
}

// take removes and returns the next n bytes, which must be present.
func (me *recvBuffer) take(n int) []byte {
	me.mu.Lock()
	defer me.mu.Unlock()
	panicif.GreaterThan(n, me.b.Len())
	ret := make([]byte, n)
	_, err := io.ReadFull(&me.b, ret)
	panicif.Err(err)
	return ret
}

func (me *recvBuffer) discard(n int) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.b.Next(n)
}
