// webseed-get downloads a torrent's files from its webseeds (BEP 19 url-list)
// alone, without touching the peer-wire swarm. Mostly useful for checking
// what a webseed host actually serves.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"
	arg "github.com/alexflint/go-arg"
	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/log"
	"github.com/anacrolix/sync"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/dustin/go-humanize"

	"github.com/tempweb/webseed"
	"github.com/tempweb/webseed/segments"
)

// Request granularity. The BitTorrent convention for a block.
const blockSize = 16 << 10

func main() {
	defer envpprof.Stop()
	var args struct {
		Torrent string   `arg:"positional,required" help:"path to a .torrent file carrying a url-list"`
		Out     string   `arg:"-o,--out" default:"." help:"output directory"`
		URL     []string `arg:"--url" help:"webseed URLs to use instead of the torrent's url-list"`
	}
	arg.MustParse(&args)
	if err := download(args.Torrent, args.Out, args.URL); err != nil {
		log.Default.Levelf(log.Critical, "error downloading: %v", err)
		os.Exit(1)
	}
}

// torrentState is the single torrent being downloaded: the file layout plus
// which blocks we have. Only touched under the client lock.
type torrentState struct {
	webseed.FileLayout
	id        webseed.TorrentID
	numPieces int
	completed roaring.Bitmap
}

func (me *torrentState) ID() webseed.TorrentID { return me.id }
func (me *torrentState) NumPieces() int        { return me.numPieces }

func (me *torrentState) HasBlock(b webseed.BlockIndex) bool {
	return me.completed.Contains(b)
}

func (me *torrentState) IsRunning() bool { return true }

func (me *torrentState) IsDone() bool {
	return me.completed.GetCardinality() == uint64(me.NumBlocks())
}

type soloResolver struct {
	tor *torrentState
}

func (me soloResolver) Torrent(id webseed.TorrentID) webseed.Torrent {
	if id != me.tor.id {
		return nil
	}
	return me.tor
}

// sequentialRequests hands out missing blocks front to back, in spans capped
// at 64 blocks. Rejected blocks are returned to the pool by the event
// callback below.
type sequentialRequests struct {
	requested roaring.Bitmap
}

const maxSpanBlocks = 64

func (me *sequentialRequests) GetNextRequests(t webseed.Torrent, p webseed.Peer, maxBlocks int) (spans []webseed.BlockSpan) {
	tor := t.(*torrentState)
	var span webseed.BlockSpan
	flush := func() {
		if span.Len() > 0 {
			spans = append(spans, span)
		}
		span = webseed.BlockSpan{}
	}
	for b := webseed.BlockIndex(0); b < tor.NumBlocks() && maxBlocks > 0; b++ {
		if tor.completed.Contains(b) || me.requested.Contains(b) {
			flush()
			continue
		}
		if span.Len() == 0 {
			span = webseed.BlockSpan{Begin: b, End: b + 1}
		} else if span.End == b && span.Len() < maxSpanBlocks {
			span.End = b + 1
		} else {
			flush()
			span = webseed.BlockSpan{Begin: b, End: b + 1}
		}
		maxBlocks--
	}
	flush()
	return
}

func (me *sequentialRequests) ClientSentRequests(t webseed.Torrent, p webseed.Peer, span webseed.BlockSpan) {
	me.requested.AddRange(uint64(span.Begin), uint64(span.End))
}

// fileWriter is the block cache: block writes land directly in the output
// files, split across file boundaries by the layout.
type fileWriter struct {
	tor   *torrentState
	files []*os.File
}

func (me *fileWriter) WriteBlock(id webseed.TorrentID, block webseed.BlockIndex, data []byte) error {
	loc := me.tor.BlockLoc(block)
	var writeErr error
	covered := me.tor.Locate(segments.Extent{Start: loc.Byte, Length: int64(len(data))},
		func(i int, e segments.Extent) bool {
			_, writeErr = me.files[i].WriteAt(data[:e.Length], e.Start)
			data = data[e.Length:]
			return writeErr == nil
		})
	if writeErr != nil {
		return writeErr
	}
	if !covered {
		return fmt.Errorf("block %v extends outside the torrent", block)
	}
	me.tor.completed.Add(block)
	return nil
}

func download(torrentPath, outDir string, urls []string) error {
	mi, err := metainfo.LoadFromFile(torrentPath)
	if err != nil {
		return fmt.Errorf("loading torrent file: %w", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return fmt.Errorf("unmarshalling info: %w", err)
	}
	if len(urls) == 0 {
		urls = mi.UrlList
	}
	if len(urls) == 0 {
		return errors.New("torrent has no url-list and no --url given")
	}

	var files []webseed.File
	for _, f := range info.UpvertedFiles() {
		files = append(files, webseed.File{
			Subpath: strings.Join(append([]string{info.BestName()}, f.BestPath()...), "/"),
			Length:  f.Length,
		})
	}
	tor := &torrentState{
		FileLayout: webseed.NewFileLayout(files, blockSize),
		id:         1,
		numPieces:  info.NumPieces(),
	}

	out := make([]*os.File, len(files))
	for i, f := range files {
		p := filepath.Join(outDir, filepath.FromSlash(f.Subpath))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if out[i], err = os.Create(p); err != nil {
			return err
		}
		defer out[i].Close()
	}

	logger := log.Default
	var locker sync.Mutex
	resolver := soloResolver{tor}
	requests := new(sequentialRequests)
	writer := webseed.NewBlockWriter(&fileWriter{tor, out}, resolver, &locker, logger)
	defer writer.Close()

	callback := func(e webseed.Event) {
		if e.Type == webseed.GotRejected {
			// Back into the pool so another webseed (or a later tick) can
			// retry it.
			requests.requested.Remove(e.Block)
		}
	}

	var seeds []*webseed.Webseed
	for _, u := range urls {
		seeds = append(seeds, webseed.New(webseed.Options{
			TorrentID:   tor.id,
			BaseURL:     u,
			Resolver:    resolver,
			PeerManager: requests,
			BlockWriter: writer,
			Callback:    callback,
			Locker:      &locker,
			Logger:      logger,
		}))
	}
	defer func() {
		for _, ws := range seeds {
			ws.Close()
		}
	}()

	total := tor.TotalLength()
	for {
		time.Sleep(time.Second)
		locker.Lock()
		done := tor.IsDone()
		haveBlocks := tor.completed.GetCardinality()
		var speed float64
		for _, ws := range seeds {
			speed += ws.View().DownloadSpeed
		}
		locker.Unlock()
		fmt.Printf("\r%v/%v blocks, %v/s   ",
			haveBlocks, tor.NumBlocks(), humanize.Bytes(uint64(speed)))
		if done {
			break
		}
	}
	fmt.Printf("\ndownloaded %v to %q\n", humanize.Bytes(uint64(total)), outDir)
	return nil
}
