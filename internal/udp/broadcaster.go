// Package udp forwards validated correction messages as UDP datagrams, one
// message per datagram.
package udp

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"spartn-relay/internal/receiver"
)

type udpConn interface {
	io.Writer
	io.Closer
}

type Broadcaster struct {
	dest string
	conn udpConn

	sent   atomic.Uint64
	bytes  atomic.Uint64
	errors atomic.Uint64
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(
	dest string,
	resolve func(network, address string) (*net.UDPAddr, error),
	dial func(network string, laddr, raddr *net.UDPAddr) (udpConn, error),
) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Name() string { return "udp:" + b.dest }

func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if _, err := b.conn.Write(payload); err != nil {
		b.errors.Add(1)
		return err
	}
	b.sent.Add(1)
	b.bytes.Add(uint64(len(payload)))
	return nil
}

// Counts returns datagrams sent and write failures.
func (b *Broadcaster) Counts() (sent, failed uint64) {
	return b.sent.Load(), b.errors.Load()
}

func (b *Broadcaster) Snapshot() receiver.Snapshot {
	return receiver.Snapshot{
		Name:     b.Name(),
		Kind:     "udp",
		Target:   b.dest,
		Messages: b.sent.Load(),
		Bytes:    b.bytes.Load(),
		Errors:   b.errors.Load(),
	}
}

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
