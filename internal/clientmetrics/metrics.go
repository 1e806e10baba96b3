// Package clientmetrics tracks connection and message counters for the
// real-time channel.
package clientmetrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counters is safe for concurrent use. Message counters are lock-free; the
// connection clock and last error share a mutex.
type Counters struct {
	sent, received         atomic.Int64
	bytesSent, bytesRecv   atomic.Int64
	dropped, errors        atomic.Int64
	connects, disconnects  atomic.Int64
	reconnects             atomic.Int64
	lastSent, lastReceived atomic.Int64 // unix nanos

	mu          sync.Mutex
	connectedAt time.Time
	connected   time.Duration // closed sessions only
	lastErr     string
	lastErrAt   time.Time
	now         func() time.Time
}

// New returns zeroed counters.
func New() *Counters {
	return &Counters{now: time.Now}
}

// Connected starts the session clock.
func (c *Counters) Connected() {
	c.connects.Add(1)
	c.mu.Lock()
	c.connectedAt = c.now()
	c.mu.Unlock()
}

// Disconnected stops the session clock. Calls without an open session are
// ignored.
func (c *Counters) Disconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectedAt.IsZero() {
		return
	}
	c.connected += c.now().Sub(c.connectedAt)
	c.connectedAt = time.Time{}
	c.disconnects.Add(1)
}

// ReconnectScheduled counts an automatic reconnection attempt.
func (c *Counters) ReconnectScheduled() { c.reconnects.Add(1) }

// Sent counts one outbound frame of n bytes.
func (c *Counters) Sent(n int) {
	c.sent.Add(1)
	c.bytesSent.Add(int64(n))
	c.lastSent.Store(c.now().UnixNano())
}

// Received counts one inbound frame of n bytes.
func (c *Counters) Received(n int) {
	c.received.Add(1)
	c.bytesRecv.Add(int64(n))
	c.lastReceived.Store(c.now().UnixNano())
}

// Dropped counts a payload discarded while no connection was open.
func (c *Counters) Dropped() { c.dropped.Add(1) }

// Error counts err and keeps it as the last error.
func (c *Counters) Error(err error) {
	c.errors.Add(1)
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err.Error()
	c.lastErrAt = c.now()
	c.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Connects         int64
	Disconnects      int64
	Reconnects       int64
	MessagesSent     int64
	MessagesReceived int64
	BytesSent        int64
	BytesReceived    int64
	Dropped          int64
	Errors           int64

	// ConnectionDuration is the age of the open session, zero when closed.
	ConnectionDuration time.Duration
	// ConnectedTotal sums every session including the open one.
	ConnectedTotal time.Duration
	LastSent       time.Time
	LastReceived   time.Time
	LastError      string
	LastErrorAt    time.Time
}

// Snapshot copies the current values.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Connects:         c.connects.Load(),
		Disconnects:      c.disconnects.Load(),
		Reconnects:       c.reconnects.Load(),
		MessagesSent:     c.sent.Load(),
		MessagesReceived: c.received.Load(),
		BytesSent:        c.bytesSent.Load(),
		BytesReceived:    c.bytesRecv.Load(),
		Dropped:          c.dropped.Load(),
		Errors:           c.errors.Load(),
		LastSent:         unixNano(c.lastSent.Load()),
		LastReceived:     unixNano(c.lastReceived.Load()),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s.ConnectedTotal = c.connected
	if !c.connectedAt.IsZero() {
		s.ConnectionDuration = c.now().Sub(c.connectedAt)
		s.ConnectedTotal += s.ConnectionDuration
	}
	s.LastError = c.lastErr
	s.LastErrorAt = c.lastErrAt
	return s
}

func unixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
