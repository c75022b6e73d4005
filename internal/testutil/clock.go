package testutil

import (
	"fmt"
	"sync"
	"time"

	"save-go/internal/save"
)

// StubClock returns a fixed time that only moves when told to. Safe for
// concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Tick advances the clock by d and returns the new time. Records created in
// sequence get distinct, increasing creation times this way.
func (c *StubClock) Tick(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// StubIDGenerator returns sequential, zero-padded ids with a prefix, such as
// "asset-0001", so that key order equals creation order.
type StubIDGenerator struct {
	prefix string

	mu      sync.Mutex
	counter int
}

func NewStubIDGenerator(prefix string) *StubIDGenerator {
	return &StubIDGenerator{prefix: prefix}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%04d", g.prefix, g.counter)
}

var (
	_ save.Clock       = (*StubClock)(nil)
	_ save.IDGenerator = (*StubIDGenerator)(nil)
)
