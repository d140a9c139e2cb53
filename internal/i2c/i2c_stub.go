//go:build !linux

package i2c

import "fmt"

type Bus struct{}

type Dev struct{}

func Open(path string) (*Bus, error) { return nil, fmt.Errorf("i2c: unsupported OS (need linux)") }

func (b *Bus) String() string       { return "" }
func (b *Bus) Close() error         { return nil }
func (b *Bus) Dev(addr uint16) *Dev { return &Dev{} }
func (d *Dev) Tx(w, r []byte) error { return fmt.Errorf("i2c: unsupported OS") }
