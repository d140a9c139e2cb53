package source

import (
	"context"
	"fmt"
	"log"
	"time"

	"spartn-relay/internal/replay"
)

type ReplayConfig struct {
	Name  string
	Path  string
	Speed float64
	Loop  bool
}

// Replay plays a capture file back with its original timing and chunking.
type Replay struct {
	runner
	cfg     ReplayConfig
	records []replay.Record
	sleeper replay.Sleeper
}

func NewReplay(cfg ReplayConfig) (*Replay, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("replay source path is required")
	}
	recs, err := replay.LoadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load capture: %w", err)
	}
	return newReplay(cfg, recs, nil)
}

func newReplay(cfg ReplayConfig, recs []replay.Record, sleeper replay.Sleeper) (*Replay, error) {
	if cfg.Name == "" {
		cfg.Name = "replay"
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1
	}
	if cfg.Speed < 0 {
		return nil, fmt.Errorf("replay speed must be > 0")
	}
	r := &Replay{cfg: cfg, records: recs, sleeper: sleeper}
	r.init(cfg.Name, "replay", cfg.Path)
	return r, nil
}

func (r *Replay) Start(ctx context.Context, onChunk ChunkFunc) error {
	return r.start(ctx, onChunk, r.runLoop)
}

func (r *Replay) runLoop(ctx context.Context, onChunk ChunkFunc) {
	sleeper := r.sleeper
	if sleeper == nil {
		sleeper = ctxSleeper{ctx}
	}
	r.setState("connected", "")
	log.Printf("source %s: replaying %s speed=%.2f loop=%t", r.cfg.Name, r.cfg.Path, r.cfg.Speed, r.cfg.Loop)

	err := replay.Play(r.records, r.cfg.Speed, r.cfg.Loop, sleeper, func(data []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.deliver(data, onChunk)
		return nil
	})
	switch {
	case ctx.Err() != nil:
		r.setState("stopped", "")
	case err != nil:
		r.setState("error", err.Error())
	default:
		r.setState("done", "")
	}
}

// ctxSleeper cuts waits short on cancellation; Play then stops at the next
// callback.
type ctxSleeper struct{ ctx context.Context }

func (s ctxSleeper) Sleep(d time.Duration) { sleepCtx(s.ctx, d) }
