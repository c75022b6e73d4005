package save

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs. Used for spaces, projects,
// collections and assets.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// ULIDGenerator produces lexically time-ordered ids. Upload records use it so
// that enumerating the uploads collection by key yields start order.
type ULIDGenerator struct {
	Clock Clock

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *ULIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entropy == nil {
		g.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	var now time.Time
	if g.Clock != nil {
		now = g.Clock.Now()
	} else {
		now = time.Now()
	}
	return ulid.MustNew(ulid.Timestamp(now), g.entropy).String()
}
