package identity

import "sync"

// Current tracks the signed-in user for a client session and notifies
// listeners when it changes. Live views subscribe to these notifications
// so a sign-out tears them down without the auth path knowing about them.
type Current struct {
	mu        sync.RWMutex
	userID    string
	listeners []func(userID string)
}

// NewCurrent returns an empty holder (no signed-in user).
func NewCurrent() *Current {
	return &Current{}
}

// UserID returns the current user id, or "" when signed out.
func (c *Current) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Set records a sign-in and notifies listeners when the user changed.
func (c *Current) Set(userID string) {
	c.mu.Lock()
	changed := c.userID != userID
	c.userID = userID
	listeners := c.listeners
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, listener := range listeners {
		listener(userID)
	}
}

// Clear records a sign-out. Listeners are notified with an empty id.
func (c *Current) Clear() {
	c.Set("")
}

// OnChange registers a listener invoked after every session change.
func (c *Current) OnChange(listener func(userID string)) {
	if listener == nil {
		return
	}
	c.mu.Lock()
	c.listeners = append(c.listeners, listener)
	c.mu.Unlock()
}
