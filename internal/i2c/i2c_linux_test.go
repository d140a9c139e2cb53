//go:build linux

package i2c

import (
	"os"
	"strings"
	"testing"
)

func openNull(t *testing.T) *Bus {
	t.Helper()
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	b := &Bus{f: f, path: "/dev/null"}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestDevTx_InvalidAddr(t *testing.T) {
	b := openNull(t)
	for _, addr := range []uint16{0, 0x80} {
		err := b.Dev(addr).Tx([]byte{0x00, 0x01}, nil)
		if err == nil || !strings.Contains(err.Error(), "invalid i2c addr") {
			t.Fatalf("addr 0x%X: err=%v want invalid i2c addr", addr, err)
		}
	}
}

func TestDevTx_EmptyIsNoop(t *testing.T) {
	b := openNull(t)
	if err := b.Dev(0x42).Tx(nil, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestDevTx_ClosedBus(t *testing.T) {
	b := openNull(t)
	_ = b.Close()
	if err := b.Dev(0x42).Tx([]byte{1, 2}, nil); err == nil {
		t.Fatalf("expected error on closed bus")
	}
}
