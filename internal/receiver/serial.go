package receiver

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

type SerialConfig struct {
	Name   string
	Device string
	Baud   int

	// RetryDelay limits how often a failed port is reopened.
	RetryDelay time.Duration
}

// Serial writes messages to a receiver UART configured for SPARTN input,
// e.g. UART2 of a ZED-F9P.
type Serial struct {
	cfg  SerialConfig
	open func(device string, mode *serial.Mode) (io.WriteCloser, error)
	now  func() time.Time

	mu       sync.Mutex
	port     io.WriteCloser
	lastOpen time.Time

	counters
}

func NewSerial(cfg SerialConfig) (*Serial, error) {
	return newSerial(cfg, func(device string, mode *serial.Mode) (io.WriteCloser, error) {
		return serial.Open(device, mode)
	})
}

func newSerial(cfg SerialConfig, open func(string, *serial.Mode) (io.WriteCloser, error)) (*Serial, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("serial receiver device is required")
	}
	if cfg.Name == "" {
		cfg.Name = "receiver-serial"
	}
	if cfg.Baud <= 0 {
		cfg.Baud = 38400
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	s := &Serial{cfg: cfg, open: open, now: time.Now}

	s.mu.Lock()
	err := s.openLocked()
	s.mu.Unlock()
	if err != nil {
		// The port is retried on the next Send.
		log.Printf("receiver %s: %v", cfg.Name, err)
		s.counters.record(0, err)
	}
	return s, nil
}

func (s *Serial) Name() string { return s.cfg.Name }

func (s *Serial) Send(msg []byte) error {
	if len(msg) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		if s.now().Sub(s.lastOpen) < s.cfg.RetryDelay {
			err := fmt.Errorf("port %s unavailable", s.cfg.Device)
			s.counters.record(0, err)
			return err
		}
		if err := s.openLocked(); err != nil {
			s.counters.record(0, err)
			return err
		}
		log.Printf("receiver %s: reopened %s", s.cfg.Name, s.cfg.Device)
	}

	_, err := s.port.Write(msg)
	if err != nil {
		_ = s.port.Close()
		s.port = nil
		err = fmt.Errorf("write %s: %w", s.cfg.Device, err)
	}
	s.counters.record(len(msg), err)
	return err
}

func (s *Serial) openLocked() error {
	s.lastOpen = s.now()
	port, err := s.open(s.cfg.Device, &serial.Mode{
		BaudRate: s.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", s.cfg.Device, err)
	}
	s.port = port
	return nil
}

func (s *Serial) Snapshot() Snapshot {
	return s.counters.snapshot(s.cfg.Name, "serial", fmt.Sprintf("%s@%d", s.cfg.Device, s.cfg.Baud))
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
