// Package source delivers raw correction bytes from wherever they originate:
// a local serial port, a TCP stream, a capture file or the built-in generator.
package source

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ChunkFunc receives a copy of each block of bytes read from a source.
// It should be fast; if it can block, it should offload work.
type ChunkFunc func(chunk []byte) error

type Source interface {
	Start(ctx context.Context, onChunk ChunkFunc) error
	Close()
	// Done is closed once the source has stopped delivering.
	Done() <-chan struct{}
	Snapshot(nowUTC time.Time) Snapshot
}

type Snapshot struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Addr        string `json:"addr,omitempty"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Chunks      uint64 `json:"chunks"`
	Bytes       uint64 `json:"bytes"`
}

// runner holds the lifecycle and status shared by every source.
type runner struct {
	name string
	kind string
	addr string

	started atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	chunks   uint64
	bytes    uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func (r *runner) init(name, kind, addr string) {
	r.name = name
	r.kind = kind
	r.addr = addr
	r.state = "stopped"
	r.done = make(chan struct{})
}

func (r *runner) start(ctx context.Context, onChunk ChunkFunc, loop func(context.Context, ChunkFunc)) error {
	if r.closed.Load() {
		return fmt.Errorf("%s source is closed", r.kind)
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	if onChunk == nil {
		return fmt.Errorf("%s source onChunk is nil", r.kind)
	}
	if r.started.Swap(true) {
		return fmt.Errorf("%s source already started", r.kind)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.setState("connecting", "")

	go func() {
		defer close(r.done)
		loop(runCtx, onChunk)
	}()
	return nil
}

func (r *runner) Close() {
	if r.closed.Swap(true) {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.started.Load() {
		<-r.done
	}
}

// Done is closed once the read loop has exited.
func (r *runner) Done() <-chan struct{} { return r.done }

func (r *runner) Snapshot(nowUTC time.Time) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		Name:      r.name,
		Kind:      r.kind,
		Addr:      r.addr,
		State:     r.state,
		LastError: r.lastErr,
		Chunks:    r.chunks,
		Bytes:     r.bytes,
	}
	if !r.lastSeen.IsZero() {
		out.LastSeenUTC = r.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// deliver hands a copy of p to onChunk and updates counters.
func (r *runner) deliver(p []byte, onChunk ChunkFunc) {
	if len(p) == 0 {
		return
	}
	chunk := append([]byte(nil), p...)
	if err := onChunk(chunk); err != nil {
		r.setState("error", "handler: "+err.Error())
		return
	}
	r.mu.Lock()
	if r.state == "error" {
		r.state = "connected"
		r.lastErr = ""
	}
	r.lastSeen = time.Now().UTC()
	r.chunks++
	r.bytes += uint64(len(chunk))
	r.mu.Unlock()
}

func (r *runner) setState(state string, lastErr string) {
	r.mu.Lock()
	r.state = state
	if lastErr != "" {
		r.lastErr = lastErr
	} else if state == "connected" || state == "connecting" || state == "stopped" || state == "done" {
		r.lastErr = ""
	}
	r.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
