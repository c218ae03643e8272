package webseed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/anacrolix/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// Output debug information to stdout.
var PrintDebug = false

func init() {
	_, PrintDebug = os.LookupEnv("WEBSEED_DEBUG")
}

// FetchRequest is one HTTP range request's worth of work: a contiguous byte
// range within one file of the torrent.
type FetchRequest struct {
	URL   string
	Range ByteRange
	// Tags the request for bandwidth accounting.
	SpeedLimitTag TorrentID
	// Streaming sink for response bytes. Writes occur on the transport
	// goroutine as data arrives.
	Body io.Writer
	// Called exactly once when the fetch finishes, on the transport
	// goroutine.
	OnDone func(FetchResult)
}

type FetchResult struct {
	// HTTP status, zero if no response was received.
	Status int
	Err    error
}

// Fetcher issues HTTP range requests asynchronously. The webseed layer
// treats anything but a clean 206 as a failed fetch.
type Fetcher interface {
	Fetch(FetchRequest)
}

type ErrBadResponse struct {
	Msg      string
	Response *http.Response
}

func (me ErrBadResponse) Error() string {
	return me.Msg
}

var ErrTooFast = errors.New("making requests too fast")

// HTTPFetcher is the default Fetcher, running each fetch on its own
// goroutine over a shared http.Client.
type HTTPFetcher struct {
	Logger     log.Logger
	HttpClient *http.Client
	// Wraps response bodies, for example to limit the download rate.
	ResponseBodyWrapper     func(io.Reader) io.Reader
	ResponseBodyRateLimiter *rate.Limiter
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (me *HTTPFetcher) httpClient() *http.Client {
	if me.HttpClient != nil {
		return me.HttpClient
	}
	return http.DefaultClient
}

func (me *HTTPFetcher) Fetch(r FetchRequest) {
	go func() {
		r.OnDone(me.run(r))
	}()
}

func (me *HTTPFetcher) run(r FetchRequest) FetchResult {
	req, err := http.NewRequest(http.MethodGet, r.URL, nil)
	if err != nil {
		return FetchResult{Err: err}
	}
	req.Header.Set("Range", r.Range.Header())
	if PrintDebug {
		fmt.Printf(
			"fetching %q (%v), Range: %q\n",
			r.URL,
			humanize.Bytes(uint64(r.Range.Length())),
			req.Header.Get("Range"),
		)
	}
	resp, err := me.httpClient().Do(req)
	if err != nil {
		return FetchResult{Err: err}
	}
	return FetchResult{
		Status: resp.StatusCode,
		Err:    me.recvBody(r, resp),
	}
}

// Warn about bad content-lengths.
func (me *HTTPFetcher) checkContentLength(resp *http.Response, r FetchRequest) {
	if resp.ContentLength == -1 {
		return
	}
	switch resp.Header.Get("Content-Encoding") {
	case "identity", "":
	default:
		return
	}
	if resp.ContentLength != r.Range.Length() {
		me.Logger.Levelf(log.Warning,
			"unexpected identity response Content-Length value: actual %v, expected %v [url=%q]",
			resp.ContentLength, r.Range.Length(), r.URL)
	}
}

// Streams the body into the request sink. All expected bytes must arrive or
// an error is returned.
func (me *HTTPFetcher) recvBody(r FetchRequest, resp *http.Response) error {
	defer resp.Body.Close()
	var body io.Reader = resp.Body
	if me.ResponseBodyWrapper != nil {
		body = me.ResponseBodyWrapper(body)
	} else if me.ResponseBodyRateLimiter != nil {
		body = rateLimitedReader{me.ResponseBodyRateLimiter, resp.Body}
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		// The response should be just as long as we requested.
		me.checkContentLength(resp, r)
		copied, err := io.Copy(r.Body, body)
		if err != nil {
			return err
		}
		if copied != r.Range.Length() {
			return fmt.Errorf("got %v bytes, expected %v", copied, r.Range.Length())
		}
		return nil
	case http.StatusOK:
		// Some webservers refuse to do partial responses, usually for small
		// files, and reply with the whole file instead. The fetch contract
		// requires 206, so this is a bad response, but it's worth telling
		// apart from a plain 404 when diagnosing a webseed.
		me.Logger.Levelf(log.Debug, "server for %q ignored Range %q", r.URL, r.Range.Header())
		return ErrBadResponse{"resp status ok but requested range", resp}
	case http.StatusServiceUnavailable:
		return ErrTooFast
	default:
		return ErrBadResponse{
			fmt.Sprintf("unhandled response status code (%v)", resp.Status),
			resp,
		}
	}
}

type rateLimitedReader struct {
	limiter *rate.Limiter
	r       io.Reader
}

func (me rateLimitedReader) Read(p []byte) (int, error) {
	if me.limiter.Limit() == rate.Inf {
		return me.r.Read(p)
	}
	if burst := me.limiter.Burst(); burst > 0 && len(p) > burst {
		p = p[:burst]
	}
	n, err := me.r.Read(p)
	if n > 0 {
		if waitErr := me.limiter.WaitN(context.Background(), n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
