package webseed

import (
	stdsync "sync"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
)

// blockWrite is one completed block bound for the cache.
type blockWrite struct {
	torrentID TorrentID
	block     BlockIndex
	data      []byte
	ws        *Webseed
}

// BlockWriter funnels completed blocks from transport goroutines to the
// shared cache on a single goroutine, taking the client lock per write, so
// write order matches fetch order no matter which goroutine completed the
// HTTP response. The queue needs no fixed bound: the connection limiter
// already caps how much data can be in flight, and senders hold the client
// lock, so they must never block against the drainer.
type BlockWriter struct {
	cache    Cache
	resolver TorrentResolver
	locker   stdsync.Locker
	logger   log.Logger

	mu      stdsync.Mutex
	pending []blockWrite
	wake    chan struct{}
	closed  chansync.SetOnce
}

func NewBlockWriter(cache Cache, resolver TorrentResolver, locker stdsync.Locker, logger log.Logger) *BlockWriter {
	me := &BlockWriter{
		cache:    cache,
		resolver: resolver,
		locker:   locker,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
	go me.run()
	return me
}

// queue hands a block over for writing. Never blocks; called with the client
// lock held.
func (me *BlockWriter) queue(w blockWrite) {
	me.mu.Lock()
	me.pending = append(me.pending, w)
	me.mu.Unlock()
	select {
	case me.wake <- struct{}{}:
	default:
	}
}

// Close stops the drainer after it has finished anything already queued.
func (me *BlockWriter) Close() {
	me.closed.Set()
	select {
	case me.wake <- struct{}{}:
	default:
	}
}

func (me *BlockWriter) run() {
	for {
		me.drain()
		select {
		case <-me.wake:
		case <-me.closed.Done():
			me.drain()
			return
		}
	}
}

func (me *BlockWriter) drain() {
	for {
		me.mu.Lock()
		if len(me.pending) == 0 {
			me.mu.Unlock()
			return
		}
		w := me.pending[0]
		me.pending = me.pending[1:]
		me.mu.Unlock()
		me.write(w)
	}
}

func (me *BlockWriter) write(w blockWrite) {
	me.locker.Lock()
	defer me.locker.Unlock()
	tor := me.resolver.Torrent(w.torrentID)
	if tor == nil {
		return
	}
	if err := me.cache.WriteBlock(w.torrentID, w.block, w.data); err != nil {
		me.logger.Levelf(log.Error, "error writing block %v of torrent %v: %v", w.block, w.torrentID, err)
		return
	}
	if !w.ws.closed.IsSet() {
		w.ws.publish(Event{Type: GotBlock, Block: w.block})
	}
}
