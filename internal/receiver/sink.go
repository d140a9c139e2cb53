// Package receiver forwards validated correction messages to a GNSS
// receiver's correction input.
package receiver

import (
	"sync"
	"time"
)

// Sink consumes whole, validated SPARTN messages.
type Sink interface {
	Name() string
	Send(msg []byte) error
	Close() error
}

type Snapshot struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Target    string `json:"target"`
	Messages  uint64 `json:"messages"`
	Bytes     uint64 `json:"bytes"`
	Errors    uint64 `json:"errors"`
	LastError string `json:"last_error,omitempty"`
	LastSent  string `json:"last_sent_utc,omitempty"`

	// RxPending is what the receiver has queued for the host, where the
	// link can report it. A count that keeps growing means nothing drains
	// the receiver's output.
	RxPending *int `json:"rx_pending,omitempty"`
}

// counters tracks delivery for a sink.
type counters struct {
	mu       sync.Mutex
	messages uint64
	bytes    uint64
	errors   uint64
	lastErr  string
	lastSent time.Time
}

func (c *counters) record(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errors++
		c.lastErr = err.Error()
		return
	}
	c.messages++
	c.bytes += uint64(n)
	c.lastSent = time.Now().UTC()
}

func (c *counters) snapshot(name, kind, target string) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Snapshot{
		Name:      name,
		Kind:      kind,
		Target:    target,
		Messages:  c.messages,
		Bytes:     c.bytes,
		Errors:    c.errors,
		LastError: c.lastErr,
	}
	if !c.lastSent.IsZero() {
		out.LastSent = c.lastSent.Format(time.RFC3339Nano)
	}
	return out
}
