// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"sync"
)

// unlocked runs fn with l released and re-acquires l on every path.
func unlocked(l sync.Locker, fn func() error) error {
	l.Unlock()
	defer l.Lock()
	return fn()
}

// completion is the drain handshake of one session. It has its own lock,
// which may be taken while holding the stream lock but never the other way
// round.
type completion struct {
	mu       sync.Mutex
	draining bool
	// fault is set when the device reported an error outside a drain; no
	// EOS is expected after that.
	fault   bool
	aborted bool
	done    chan struct{}
}

func newCompletion() *completion {
	return &completion{}
}

// begin marks the start of a drain. It returns nil when the session already
// faulted or was torn down, in which case waiting would never end.
func (c *completion) begin() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fault || c.aborted {
		return nil
	}
	c.draining = true
	c.done = make(chan struct{})
	return c.done
}

// end clears the drain state after the waiter woke up.
func (c *completion) end() (aborted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draining = false
	c.done = nil
	return c.aborted
}

func (c *completion) isDraining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draining
}

// signal wakes the waiter, if any, and reports whether a drain was pending.
func (c *completion) signal() (expected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expected = c.draining
	c.wakeLocked()
	return expected
}

// onError classifies a device error. While draining the error ends the drain
// like EOS and true is returned; otherwise the session is marked faulted.
func (c *completion) onError() (swallowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining {
		c.wakeLocked()
		return true
	}
	c.fault = true
	return false
}

// abort releases any waiter during teardown.
func (c *completion) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	c.wakeLocked()
}

func (c *completion) wakeLocked() {
	c.draining = false
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}
