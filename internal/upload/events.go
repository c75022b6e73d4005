package upload

import "sync"

// EventKind distinguishes progress from the terminal events.
type EventKind int

const (
	Progress EventKind = iota + 1
	Succeeded
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Progress:
		return "progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Event is one item of an upload's event stream.
type Event struct {
	Kind       EventKind
	AssetID    string
	BytesSent  int64
	BytesTotal int64

	// PublicURL is set on Succeeded.
	PublicURL string

	// Err is set on Failed. It wraps ErrUpload.
	Err error
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool { return e.Kind == Succeeded || e.Kind == Failed }

const eventBuffer = 64

// emitter delivers events without ever blocking the transfer. Progress
// events are dropped while the consumer lags; one buffer slot is always
// kept free for the terminal event.
type emitter struct {
	assetID string

	mu     sync.Mutex
	ch     chan Event
	sent   int64
	total  int64
	closed bool
}

func newEmitter(assetID string) *emitter {
	return &emitter{assetID: assetID, ch: make(chan Event, eventBuffer)}
}

// progress reports whether the update advanced the transfer.
func (e *emitter) progress(sent, total int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || sent < e.sent || (sent == e.sent && total == e.total) {
		return false
	}
	e.sent, e.total = sent, total
	if len(e.ch) < cap(e.ch)-1 {
		e.ch <- Event{Kind: Progress, AssetID: e.assetID, BytesSent: sent, BytesTotal: total}
	}
	return true
}

func (e *emitter) finish(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	ev.AssetID = e.assetID
	ev.BytesSent, ev.BytesTotal = e.sent, e.total
	e.ch <- ev
	close(e.ch)
	e.closed = true
}
