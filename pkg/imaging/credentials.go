package imaging

import "sync"

// Credentials holds the bearer token shared by every request of a client.
// Invalidate clears it after the service reports the session as expired.
type Credentials struct {
	mu          sync.RWMutex
	token       string
	invalidated bool
}

// NewCredentials creates a store holding token, which may be empty
func NewCredentials(token string) *Credentials {
	return &Credentials{token: token}
}

// Token returns the current token and whether one is available
func (c *Credentials) Token() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// Set stores a fresh token
func (c *Credentials) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.invalidated = false
}

// Invalidate drops the token
func (c *Credentials) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.invalidated = true
}

// Invalidated reports whether the last token was rejected by the service
func (c *Credentials) Invalidated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.invalidated
}
