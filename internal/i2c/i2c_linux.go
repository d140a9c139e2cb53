//go:build linux

// Package i2c talks to an I2C bus through the Linux i2c-dev ioctl interface,
// without any driver registry.
package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	flagRead  = 0x0001
	ioctlRdwr = 0x0707
)

type rdwrMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type rdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an open /dev/i2c-N. Transfers on one Bus must not run concurrently.
type Bus struct {
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Bus{f: f, path: path}, nil
}

func (b *Bus) String() string { return b.path }

func (b *Bus) Close() error {
	if b == nil || b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

// Dev returns the device at 7-bit address addr.
func (b *Bus) Dev(addr uint16) *Dev {
	return &Dev{bus: b, addr: addr}
}

type Dev struct {
	bus  *Bus
	addr uint16
}

// Tx writes w then reads into r with a repeated start. Either may be empty.
func (d *Dev) Tx(w, r []byte) error {
	if d == nil || d.bus == nil || d.bus.f == nil {
		return errors.New("i2c device is not open")
	}
	if d.addr == 0 || d.addr > 0x7F {
		return fmt.Errorf("invalid i2c addr 0x%X", d.addr)
	}

	msgs := make([]rdwrMsg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, rdwrMsg{addr: d.addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, rdwrMsg{addr: d.addr, flags: flagRead, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}

	data := rdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), uintptr(ioctlRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return fmt.Errorf("i2c %s addr 0x%02X: %w", d.bus.path, d.addr, errno)
	}
	return nil
}
