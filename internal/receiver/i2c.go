package receiver

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"spartn-relay/internal/i2c"
)

// DefaultI2CAddr is the DDC address of u-blox receivers.
const DefaultI2CAddr = 0x42

// u-blox DDC register holding the number of bytes waiting to be read.
const regBytesAvailable = 0xFD

type I2CConfig struct {
	Name string
	// Bus is a periph bus name ("1", "/dev/i2c-1") or, with the ioctl
	// driver, a device path.
	Bus    string
	Addr   uint16
	Driver string // "periph" (default) or "ioctl"

	// ChunkSize bounds a single write transfer.
	ChunkSize int
}

// txer is one I2C device: write w, then read into r.
type txer interface {
	Tx(w, r []byte) error
}

// I2C writes messages to a receiver over its DDC (I2C) port.
type I2C struct {
	cfg    I2CConfig
	dev    txer
	closer io.Closer

	mu sync.Mutex
	counters
}

func NewI2C(cfg I2CConfig) (*I2C, error) {
	cfg, err := normalizeI2C(cfg)
	if err != nil {
		return nil, err
	}
	var dev txer
	var closer io.Closer
	switch cfg.Driver {
	case "periph":
		dev, closer, err = openPeriph(cfg.Bus, cfg.Addr)
	case "ioctl":
		var bus *i2c.Bus
		bus, err = i2c.Open(cfg.Bus)
		if err == nil {
			dev, closer = bus.Dev(cfg.Addr), bus
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open i2c %s: %w", cfg.Bus, err)
	}
	return newI2C(cfg, dev, closer), nil
}

func normalizeI2C(cfg I2CConfig) (I2CConfig, error) {
	cfg.Bus = strings.TrimSpace(cfg.Bus)
	if cfg.Bus == "" {
		return cfg, fmt.Errorf("i2c receiver bus is required")
	}
	if cfg.Name == "" {
		cfg.Name = "receiver-i2c"
	}
	if cfg.Addr == 0 {
		cfg.Addr = DefaultI2CAddr
	}
	if cfg.Addr > 0x7F {
		return cfg, fmt.Errorf("i2c receiver addr 0x%X out of range", cfg.Addr)
	}
	cfg.Driver = strings.ToLower(strings.TrimSpace(cfg.Driver))
	if cfg.Driver == "" {
		cfg.Driver = "periph"
	}
	if cfg.Driver != "periph" && cfg.Driver != "ioctl" {
		return cfg, fmt.Errorf("i2c receiver driver must be periph or ioctl")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64
	}
	if cfg.ChunkSize < 2 {
		cfg.ChunkSize = 2
	}
	return cfg, nil
}

func newI2C(cfg I2CConfig, dev txer, closer io.Closer) *I2C {
	return &I2C{cfg: cfg, dev: dev, closer: closer}
}

func (d *I2C) Name() string { return d.cfg.Name }

// Send writes msg in chunks. The receiver treats a one-byte write as a
// register address, so no chunk is ever shorter than two bytes.
func (d *I2C) Send(msg []byte) error {
	if len(msg) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for _, c := range splitChunks(msg, d.cfg.ChunkSize) {
		if err = d.dev.Tx(c, nil); err != nil {
			err = fmt.Errorf("i2c write: %w", err)
			break
		}
	}
	d.counters.record(len(msg), err)
	return err
}

// Pending reads how many bytes the receiver has queued for the host.
func (d *I2C) Pending() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b [2]byte
	if err := d.dev.Tx([]byte{regBytesAvailable}, b[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint16(b[:])), nil
}

// Snapshot includes the receiver's pending byte count when the bus answers.
func (d *I2C) Snapshot() Snapshot {
	snap := d.counters.snapshot(d.cfg.Name, "i2c", fmt.Sprintf("%s/0x%02X", d.cfg.Bus, d.cfg.Addr))
	if n, err := d.Pending(); err == nil {
		snap.RxPending = &n
	}
	return snap
}

func (d *I2C) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

func splitChunks(msg []byte, size int) [][]byte {
	var out [][]byte
	for len(msg) > 0 {
		n := min(size, len(msg))
		if rest := len(msg) - n; rest == 1 {
			n--
		}
		if n < 2 {
			n = len(msg)
		}
		out = append(out, msg[:n])
		msg = msg[n:]
	}
	return out
}
