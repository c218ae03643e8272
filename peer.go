package webseed

import (
	"fmt"
	"net"
	"net/url"
	stdsync "sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/rcrowley/go-metrics"
)

const (
	// Prefer to request large, contiguous chunks from webseeds. The actual
	// value of 64 is arbitrary here; we could probably be smarter about it.
	preferredBlocksPerTask = 64
	defaultIdleInterval    = 2 * time.Second
)

// Options for a Webseed. Everything without a stated default is required.
type Options struct {
	TorrentID TorrentID
	// The webseed URL per BEP 19. Treated as a directory if it ends in "/".
	BaseURL     string
	Resolver    TorrentResolver
	PeerManager PeerManager
	BlockWriter *BlockWriter
	// Defaults to an HTTPFetcher on http.DefaultClient.
	Fetcher  Fetcher
	Callback EventCallback
	// The lock serializing all torrent and peer state in the embedding
	// client.
	Locker      stdsync.Locker
	Logger      log.Logger
	PathEscaper PathEscaper
	// Period of the idle tick that pulls more requests from the peer
	// manager. Zero means the 2s default.
	IdleInterval time.Duration
}

// Webseed presents an HTTP(S) server holding a torrent's files as a
// pseudo-peer. Exported methods other than Close and String assume the
// caller holds the client lock, like any other peer the manager drives.
type Webseed struct {
	torrentID   TorrentID
	baseURL     string
	callback    EventCallback
	resolver    TorrentResolver
	peerMgr     PeerManager
	fetcher     Fetcher
	writer      *BlockWriter
	pathEscaper PathEscaper
	locker      stdsync.Locker
	logger      log.Logger

	limiter       connectionLimiter
	tasks         map[*fetchTask]struct{}
	have          roaring.Bitmap
	downloadSpeed metrics.Meter
	closed        chansync.SetOnce
}

var _ Peer = (*Webseed)(nil)

func New(opts Options) *Webseed {
	if opts.Logger.IsZero() {
		opts.Logger = log.Default
	}
	ws := &Webseed{
		torrentID:     opts.TorrentID,
		baseURL:       opts.BaseURL,
		callback:      opts.Callback,
		resolver:      opts.Resolver,
		peerMgr:       opts.PeerManager,
		fetcher:       opts.Fetcher,
		writer:        opts.BlockWriter,
		pathEscaper:   opts.PathEscaper,
		locker:        opts.Locker,
		logger:        opts.Logger.WithContextText(fmt.Sprintf("webseed %q", opts.BaseURL)),
		tasks:         make(map[*fetchTask]struct{}),
		downloadSpeed: metrics.NewMeter(),
	}
	if ws.fetcher == nil {
		ws.fetcher = &HTTPFetcher{Logger: ws.logger}
	}
	// A webseed logically offers the whole torrent.
	if tor := ws.getTorrent(); tor != nil {
		ws.have.AddRange(0, uint64(tor.NumPieces()))
	}
	interval := opts.IdleInterval
	if interval == 0 {
		interval = defaultIdleInterval
	}
	go ws.idleLoop(interval)
	return ws
}

func (ws *Webseed) String() string {
	return fmt.Sprintf("webseed peer for %q", ws.baseURL)
}

func (ws *Webseed) getTorrent() Torrent {
	return ws.resolver.Torrent(ws.torrentID)
}

// The idle tick is the sole driver of proactive work: completions only ever
// continue or retire existing tasks.
func (ws *Webseed) idleLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ws.closed.Done():
			return
		case <-ticker.C:
			ws.locker.Lock()
			ws.onIdle()
			ws.locker.Unlock()
		}
	}
}

// Pulls more block requests from the peer manager if there's capacity.
func (ws *Webseed) onIdle() {
	limit := ws.CanRequest()
	if limit.MaxSpans == 0 || limit.MaxBlocks == 0 {
		return
	}
	spans := ws.peerMgr.GetNextRequests(ws.getTorrent(), ws, limit.MaxBlocks)
	if len(spans) > limit.MaxSpans {
		// Dropped spans may be partially represented in what remains; that's
		// fine, the next idle tick picks the rest up again.
		spans = spans[:limit.MaxSpans]
	}
	ws.RequestBlocks(spans)
}

// CanRequest returns how much the peer manager may usefully request right
// now, and the granularity we'd prefer it used.
func (ws *Webseed) CanRequest() RequestLimit {
	if ws.closed.IsSet() {
		return RequestLimit{}
	}
	nSlots := ws.limiter.slotsAvailable()
	if nSlots == 0 {
		return RequestLimit{}
	}
	if tor := ws.getTorrent(); tor == nil || !tor.IsRunning() || tor.IsDone() {
		return RequestLimit{}
	}
	return RequestLimit{nSlots, nSlots * preferredBlocksPerTask}
}

// RequestBlocks starts a fetch task per span. A no-op if the torrent is
// gone, stopped, or already complete.
func (ws *Webseed) RequestBlocks(spans []BlockSpan) {
	tor := ws.getTorrent()
	if tor == nil || !tor.IsRunning() || tor.IsDone() {
		return
	}
	for _, span := range spans {
		t := newFetchTask(ws, tor, span)
		ws.tasks[t] = struct{}{}
		t.requestNextChunk()

		ws.peerMgr.ClientSentRequests(tor, ws, span)
	}
}

func (ws *Webseed) deleteTask(t *fetchTask) {
	delete(ws.tasks, t)
}

func (ws *Webseed) gotPieceData(n int) {
	ws.downloadSpeed.Mark(int64(n))
	ws.publish(Event{Type: GotPieceData, Bytes: n})
	ws.limiter.gotData()
}

func (ws *Webseed) publish(e Event) {
	if ws.callback != nil {
		ws.callback(e)
	}
}

func (ws *Webseed) publishRejection(span BlockSpan) {
	for block := span.Begin; block < span.End; block++ {
		ws.publish(Event{Type: GotRejected, Block: block})
	}
}

func (ws *Webseed) ActiveRequestCount(dir Direction) int {
	if dir != Down {
		// A webseed never requests blocks from us.
		return 0
	}
	var sum int
	for t := range ws.tasks {
		sum += t.blocks.Len()
	}
	return sum
}

func (ws *Webseed) GetPieceSpeed(dir Direction) float64 {
	if dir != Down {
		return 0
	}
	return ws.downloadSpeed.Rate1()
}

func (ws *Webseed) Has() *roaring.Bitmap {
	return &ws.have
}

func (ws *Webseed) DisplayName() string {
	u, err := url.Parse(ws.baseURL)
	if err != nil || u.Host == "" {
		return ws.baseURL
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// Close detaches all in-flight work without waiting for the transport.
// Tasks are flagged dead under the lock; their late completions reduce to
// no-ops.
func (ws *Webseed) Close() {
	if !ws.closed.Set() {
		return
	}
	ws.locker.Lock()
	for t := range ws.tasks {
		t.dead = true
	}
	clear(ws.tasks)
	ws.locker.Unlock()
	ws.downloadSpeed.Stop()
}

// View is a read-only snapshot for status displays.
type View struct {
	URL           string
	IsDownloading bool
	// Bytes per second.
	DownloadSpeed float64
}

func (ws *Webseed) View() View {
	return View{
		URL:           ws.baseURL,
		IsDownloading: len(ws.tasks) > 0,
		DownloadSpeed: ws.downloadSpeed.Rate1(),
	}
}
