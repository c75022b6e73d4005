// Package notify lets long-lived readers follow a view across commits and
// compute the minimal change list between the snapshot they last rendered
// and the current one.
package notify

import (
	"errors"
	"sync"

	"save-go/internal/graph"
	"save-go/internal/save"
	"save-go/internal/store"
	"save-go/internal/view"
)

// ErrStaleCursor means a reader's pinned snapshot no longer chains to the
// current one. Readers recover from it by reloading fully; it is never
// returned to callers.
var ErrStaleCursor = errors.New("stale reader cursor")

// DefaultHistory is the number of commits the bus remembers.
const DefaultHistory = 256

// Entry is the bus's record of one commit.
type Entry struct {
	Number   uint64
	External bool
	Changes  []graph.Ref
	Views    map[string]view.Changeset
}

// Bus keeps a bounded history of commits and wakes readers when a new one
// is published.
type Bus struct {
	logger save.Logger

	mu      sync.Mutex
	history []Entry
	limit   int
	latest  *store.Snapshot
	readers map[*Reader]struct{}
	closed  bool

	unsubscribe func()
}

// Source is the part of the store the bus needs.
type Source interface {
	Snapshot() *store.Snapshot
	Subscribe(fn func(store.Commit)) (unsubscribe func())
}

// NewBus subscribes to s. history bounds the number of remembered commits;
// readers further behind reload fully.
func NewBus(s Source, history int, logger save.Logger) *Bus {
	if history <= 0 {
		history = DefaultHistory
	}
	if logger == nil {
		logger = save.NewNopLogger()
	}
	b := &Bus{
		logger:  logger,
		limit:   history,
		readers: make(map[*Reader]struct{}),
	}
	b.unsubscribe = s.Subscribe(b.publish)

	b.mu.Lock()
	if b.latest == nil {
		b.latest = s.Snapshot()
	}
	b.mu.Unlock()
	return b
}

func (b *Bus) publish(c store.Commit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, Entry{
		Number:   c.Number,
		External: c.External,
		Changes:  c.Changes,
		Views:    c.Views,
	})
	if n := len(b.history) - b.limit; n > 0 {
		b.history = append(b.history[:0:0], b.history[n:]...)
	}
	b.latest = c.Snapshot
	if c.External {
		b.logger.Debug("external commit published", "snapshot", c.Number)
	}
	for r := range b.readers {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// Latest returns the newest snapshot the bus has seen.
func (b *Bus) Latest() *store.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// NewReader pins the latest snapshot for the named view.
func (b *Bus) NewReader(name string) (*Reader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("notification bus closed")
	}
	p, err := b.latest.View(name)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		bus:     b,
		name:    name,
		snap:    b.latest,
		proj:    p,
		version: p.Version(),
		wake:    make(chan struct{}, 1),
	}
	b.readers[r] = struct{}{}
	return r, nil
}

// Close stops following the store. Readers keep their pinned snapshots.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for r := range b.readers {
		close(r.wake)
	}
	b.readers = nil
	b.mu.Unlock()
	b.unsubscribe()
}

// since returns the entries after snapshot number from, up to and
// including the latest. Callers hold b.mu.
func (b *Bus) since(from uint64) ([]Entry, error) {
	to := b.latest.Number()
	if to == from {
		return nil, nil
	}
	if len(b.history) == 0 || b.history[0].Number > from+1 || b.history[len(b.history)-1].Number != to {
		return nil, ErrStaleCursor
	}
	i := int(from + 1 - b.history[0].Number)
	return b.history[i:], nil
}
