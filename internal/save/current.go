package save

import "sync"

// Profile is the author information applied to assets when the owning Space
// does not carry its own.
type Profile struct {
	Alias string
	Role  string
	Other string
}

// Current holds the small amount of process-wide context: the selected Space
// and the user's profile. Writes are last-write-wins.
type Current struct {
	mu       sync.RWMutex
	spaceID  string
	profile  Profile
	onChange func(spaceID string, profile Profile)
}

// NewCurrent creates a Current with initial values. onChange, if not nil, is
// called after every change (e.g. to persist the config file).
func NewCurrent(spaceID string, profile Profile, onChange func(string, Profile)) *Current {
	return &Current{spaceID: spaceID, profile: profile, onChange: onChange}
}

// SpaceID returns the selected Space id, or "" if none is selected.
func (c *Current) SpaceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spaceID
}

// SelectSpace replaces the selected Space. Pass "" to clear the selection.
func (c *Current) SelectSpace(id string) {
	c.mu.Lock()
	c.spaceID = id
	spaceID, profile, fn := c.spaceID, c.profile, c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(spaceID, profile)
	}
}

// ClearSpace clears the selection only if id is the selected Space.
func (c *Current) ClearSpace(id string) {
	c.mu.Lock()
	if c.spaceID != id {
		c.mu.Unlock()
		return
	}
	c.spaceID = ""
	profile, fn := c.profile, c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn("", profile)
	}
}

func (c *Current) Profile() Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

func (c *Current) SetProfile(p Profile) {
	c.mu.Lock()
	c.profile = p
	spaceID, fn := c.spaceID, c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(spaceID, p)
	}
}
