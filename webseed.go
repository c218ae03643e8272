// Package webseed fetches torrent data from HTTP servers that mirror a
// torrent's files (BEP 19), presenting each server as a pseudo-peer with the
// same request surface the peer manager uses for wire peers. Block spans
// requested by the peer manager become HTTP range requests, clamped so that
// no request crosses a file boundary, and completed blocks are handed to the
// shared block cache in fetch order.
package webseed
