package source

import (
	"context"
	"fmt"
	"log"
	"time"

	"spartn-relay/internal/sim"
	"spartn-relay/internal/ubx"
)

type SimConfig struct {
	Name   string
	Script sim.Script

	// Tick is how often generated bytes are delivered.
	Tick time.Duration

	// UBX wraps each delivery in an RXM-PMP packet the way an L-band
	// receiver does.
	UBX bool
}

// Sim delivers a synthetic stream from the built-in generator.
type Sim struct {
	runner
	cfg SimConfig
	gen *sim.Generator
	now func() time.Time
}

func NewSim(cfg SimConfig) (*Sim, error) {
	if cfg.Name == "" {
		cfg.Name = "sim"
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	gen, err := sim.NewGenerator(cfg.Script)
	if err != nil {
		return nil, fmt.Errorf("sim source: %w", err)
	}
	s := &Sim{cfg: cfg, gen: gen, now: time.Now}
	s.init(cfg.Name, "sim", "")
	return s, nil
}

func (s *Sim) Start(ctx context.Context, onChunk ChunkFunc) error {
	return s.start(ctx, onChunk, s.runLoop)
}

// GeneratorStats reports what the generator has produced so far.
func (s *Sim) GeneratorStats() sim.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen.Stats()
}

func (s *Sim) runLoop(ctx context.Context, onChunk ChunkFunc) {
	s.setState("connected", "")
	log.Printf("source %s: generating %d message streams tick=%s ubx=%t", s.cfg.Name, len(s.cfg.Script.Messages), s.cfg.Tick, s.cfg.UBX)

	start := s.now()
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	var seq uint32

	for {
		s.mu.Lock()
		out := s.gen.Advance(s.now().Sub(start))
		s.mu.Unlock()

		if len(out) > 0 {
			if s.cfg.UBX {
				out, seq = wrapPMP(out, seq)
			}
			s.deliver(out, onChunk)
		}

		select {
		case <-ctx.Done():
			s.setState("stopped", "")
			return
		case <-ticker.C:
		}
	}
}

// pmpUserBytes is the user data carried per RXM-PMP frame on the air.
const pmpUserBytes = 504

func wrapPMP(data []byte, seq uint32) ([]byte, uint32) {
	var out []byte
	for len(data) > 0 {
		n := min(len(data), pmpUserBytes)
		out = append(out, ubx.EncodePMP(0x5555, seq, data[:n])...)
		data = data[n:]
		seq++
	}
	return out, seq
}
