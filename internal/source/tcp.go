package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

type TCPConfig struct {
	Name string
	Addr string

	ReconnectDelay time.Duration

	// DialTimeout is used for each TCP connect.
	DialTimeout time.Duration

	// IdleTimeout drops a connection that has delivered nothing for this
	// long. Zero disables it.
	IdleTimeout time.Duration
}

// TCP reads a raw byte stream from a TCP endpoint (for example ser2net in
// front of a receiver, or an NTRIP-style relay), reconnecting as needed.
type TCP struct {
	runner
	cfg TCPConfig
}

func NewTCP(cfg TCPConfig) (*TCP, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("tcp source addr is required")
	}
	if cfg.Name == "" {
		cfg.Name = "tcp"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	c := &TCP{cfg: cfg}
	c.init(cfg.Name, "tcp", cfg.Addr)
	return c, nil
}

func (c *TCP) Start(ctx context.Context, onChunk ChunkFunc) error {
	return c.start(ctx, onChunk, c.runLoop)
}

func (c *TCP) runLoop(ctx context.Context, onChunk ChunkFunc) {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}
	buf := make([]byte, 4096)

	for {
		if ctx.Err() != nil {
			c.setState("stopped", "")
			return
		}

		c.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			c.setState("error", err.Error())
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				c.setState("stopped", "")
				return
			}
			continue
		}
		log.Printf("source %s: connected to %s", c.cfg.Name, c.cfg.Addr)
		c.setState("connected", "")
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

		for {
			if c.cfg.IdleTimeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
			}
			n, err := conn.Read(buf)
			if n > 0 {
				c.deliver(buf[:n], onChunk)
			}
			if err != nil {
				switch {
				case ctx.Err() != nil:
				case errors.Is(err, net.ErrClosed):
					c.setState("disconnected", "")
				default:
					c.setState("disconnected", err.Error())
				}
				break
			}
		}
		if stop() {
			_ = conn.Close()
		}

		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			c.setState("stopped", "")
			return
		}
	}
}
