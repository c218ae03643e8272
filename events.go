package webseed

type EventType int

// The subset of the peer-wire event vocabulary a webseed publishes.
const (
	// Some bytes arrived on an active fetch.
	GotPieceData EventType = iota
	// A block was fetched in full and handed to the cache.
	GotBlock
	// A requested block won't be delivered; the peer manager should reroute
	// it elsewhere.
	GotRejected
)

type Event struct {
	Type  EventType
	Bytes int        // GotPieceData
	Block BlockIndex // GotBlock, GotRejected
}

// EventCallback receives peer events. It is invoked with the client lock
// held, possibly from transport or block writer goroutines.
type EventCallback func(Event)
