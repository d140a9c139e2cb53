package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

type SerialConfig struct {
	Name   string
	Device string
	Baud   int

	// ReopenDelay is the pause before reopening a device that failed.
	ReopenDelay time.Duration
}

// Serial reads a correction receiver's UART, e.g. the NEO-D9S L-band
// receiver on /dev/ttyACM0. The device is reopened after read errors.
type Serial struct {
	runner
	cfg  SerialConfig
	open func(path string, baud int) (io.ReadCloser, error)
}

func NewSerial(cfg SerialConfig) (*Serial, error) {
	return newSerial(cfg, func(path string, baud int) (io.ReadCloser, error) {
		return openSerial(path, baud)
	})
}

func newSerial(cfg SerialConfig, open func(string, int) (io.ReadCloser, error)) (*Serial, error) {
	cfg.Device = strings.TrimSpace(cfg.Device)
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial source device is required")
	}
	if cfg.Name == "" {
		cfg.Name = "serial"
	}
	if cfg.Baud == 0 {
		cfg.Baud = 38400
	}
	if cfg.ReopenDelay <= 0 {
		cfg.ReopenDelay = 2 * time.Second
	}
	s := &Serial{cfg: cfg, open: open}
	s.init(cfg.Name, "serial", fmt.Sprintf("%s@%d", cfg.Device, cfg.Baud))
	return s, nil
}

func (s *Serial) Start(ctx context.Context, onChunk ChunkFunc) error {
	return s.start(ctx, onChunk, s.runLoop)
}

func (s *Serial) runLoop(ctx context.Context, onChunk ChunkFunc) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			s.setState("stopped", "")
			return
		}

		s.setState("connecting", "")
		f, err := s.open(s.cfg.Device, s.cfg.Baud)
		if err != nil {
			s.setState("error", fmt.Sprintf("open %s: %v", s.cfg.Device, err))
			if !sleepCtx(ctx, s.cfg.ReopenDelay) {
				s.setState("stopped", "")
				return
			}
			continue
		}
		log.Printf("source %s: opened %s baud=%d", s.cfg.Name, s.cfg.Device, s.cfg.Baud)
		s.setState("connected", "")

		// Unblock a pending read on shutdown.
		stop := context.AfterFunc(ctx, func() { _ = f.Close() })

		for {
			n, err := f.Read(buf)
			if n > 0 {
				s.deliver(buf[:n], onChunk)
			}
			if ctx.Err() != nil {
				break
			}
			if err != nil {
				// With VMIN=1 a tty only reports EOF once it has hung up.
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf("%s hung up", s.cfg.Device)
				}
				log.Printf("source %s: %v", s.cfg.Name, err)
				s.setState("disconnected", err.Error())
				break
			}
		}
		if stop() {
			_ = f.Close()
		}

		if !sleepCtx(ctx, s.cfg.ReopenDelay) {
			s.setState("stopped", "")
			return
		}
	}
}
