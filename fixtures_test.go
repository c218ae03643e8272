package webseed

import (
	"sync"
	"testing"
	"time"

	"github.com/anacrolix/log"
)

type testTorrent struct {
	FileLayout
	id        TorrentID
	numPieces int
	has       map[BlockIndex]bool
	stopped   bool
	done      bool
}

func (me *testTorrent) ID() TorrentID              { return me.id }
func (me *testTorrent) NumPieces() int             { return me.numPieces }
func (me *testTorrent) HasBlock(b BlockIndex) bool { return me.has[b] }
func (me *testTorrent) IsRunning() bool            { return !me.stopped }
func (me *testTorrent) IsDone() bool               { return me.done }

type testResolver struct {
	tor Torrent
}

func (me *testResolver) Torrent(TorrentID) Torrent { return me.tor }

// stubFetcher records requests; tests deliver bodies and completions by
// hand, standing in for the transport goroutine.
type stubFetcher struct {
	mu   sync.Mutex
	reqs []FetchRequest
}

func (me *stubFetcher) Fetch(r FetchRequest) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.reqs = append(me.reqs, r)
}

func (me *stubFetcher) numRequests() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return len(me.reqs)
}

func (me *stubFetcher) request(i int) FetchRequest {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.reqs[i]
}

type eventRecorder struct {
	// Appended under the client lock.
	events []Event
}

func (me *eventRecorder) callback() EventCallback {
	return func(e Event) {
		me.events = append(me.events, e)
	}
}

func (me *eventRecorder) countType(et EventType) (n int) {
	for _, e := range me.events {
		if e.Type == et {
			n++
		}
	}
	return
}

func (me *eventRecorder) blocksOfType(et EventType) (blocks []BlockIndex) {
	for _, e := range me.events {
		if e.Type == et {
			blocks = append(blocks, e.Block)
		}
	}
	return
}

type cacheWrite struct {
	id    TorrentID
	block BlockIndex
	data  []byte
}

type recordingCache struct {
	writes []cacheWrite
}

func (me *recordingCache) WriteBlock(id TorrentID, block BlockIndex, data []byte) error {
	me.writes = append(me.writes, cacheWrite{id, block, data})
	return nil
}

type recordingPeerMgr struct {
	next      []BlockSpan
	nextCalls int
	sent      []BlockSpan
}

func (me *recordingPeerMgr) GetNextRequests(t Torrent, p Peer, maxBlocks int) []BlockSpan {
	me.nextCalls++
	return me.next
}

func (me *recordingPeerMgr) ClientSentRequests(t Torrent, p Peer, span BlockSpan) {
	me.sent = append(me.sent, span)
}

type fixture struct {
	mu      sync.Mutex
	tor     *testTorrent
	res     *testResolver
	fetcher *stubFetcher
	events  *eventRecorder
	cache   *recordingCache
	mgr     *recordingPeerMgr
	writer  *BlockWriter
	ws      *Webseed
}

func newFixture(t *testing.T, files []File, blockSize int64) *fixture {
	f := &fixture{
		fetcher: new(stubFetcher),
		events:  new(eventRecorder),
		cache:   new(recordingCache),
		mgr:     new(recordingPeerMgr),
	}
	f.tor = &testTorrent{
		FileLayout: NewFileLayout(files, blockSize),
		id:         1,
		numPieces:  1,
		has:        make(map[BlockIndex]bool),
	}
	f.res = &testResolver{f.tor}
	f.writer = NewBlockWriter(f.cache, f.res, &f.mu, log.Default)
	f.ws = New(Options{
		TorrentID:   1,
		BaseURL:     "https://example.com/seed/",
		Resolver:    f.res,
		PeerManager: f.mgr,
		BlockWriter: f.writer,
		Fetcher:     f.fetcher,
		Callback:    f.events.callback(),
		Locker:      &f.mu,
		Logger:      log.Default,
		// Tests drive the idle logic themselves.
		IdleInterval: time.Hour,
	})
	t.Cleanup(func() {
		f.ws.Close()
		f.writer.Close()
	})
	return f
}

func (f *fixture) locked(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

// feed streams bytes into a request's sink the way the transport would.
func (f *fixture) feed(r FetchRequest, data []byte) {
	_, err := r.Body.Write(data)
	if err != nil {
		panic(err)
	}
}

func makeData(n int) []byte {
	ret := make([]byte, n)
	for i := range ret {
		ret[i] = byte(i % 251)
	}
	return ret
}
