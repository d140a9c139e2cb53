package ubx

import (
	"bytes"
	"errors"
)

// ErrIncomplete is returned by Scanner.Next when more input is needed.
var ErrIncomplete = errors.New("ubx: incomplete packet")

var syncBytes = []byte{Sync1, Sync2}

// ScannerStats are lifetime counters of a Scanner.
type ScannerStats struct {
	BytesIn        uint64
	BytesDiscarded uint64
	Packets        uint64
	ChecksumFailed uint64
	Oversize       uint64
}

// Scanner extracts checksummed UBX packets from a byte stream that may also
// carry NMEA or other traffic. It is not safe for concurrent use.
type Scanner struct {
	buf   []byte
	stats ScannerStats
}

func NewScanner() *Scanner {
	return &Scanner{buf: make([]byte, 0, 4096)}
}

func (s *Scanner) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	s.stats.BytesIn += uint64(len(p))
	return len(p), nil
}

// Next returns the next complete packet (sync through checksum) as a copy.
func (s *Scanner) Next() ([]byte, Header, error) {
	for {
		idx := bytes.Index(s.buf, syncBytes)
		if idx < 0 {
			// A trailing Sync1 may be completed by the next write.
			keep := 0
			if n := len(s.buf); n > 0 && s.buf[n-1] == Sync1 {
				keep = 1
			}
			s.discard(len(s.buf) - keep)
			return nil, Header{}, ErrIncomplete
		}
		s.discard(idx)

		h, ok := ParseHeader(s.buf)
		if !ok {
			return nil, Header{}, ErrIncomplete
		}
		if int(h.Length) > MaxPayloadLength {
			s.stats.Oversize++
			s.discard(1)
			continue
		}
		n := Overhead + int(h.Length)
		if len(s.buf) < n {
			return nil, Header{}, ErrIncomplete
		}
		if !VerifyChecksum(s.buf[:n]) {
			s.stats.ChecksumFailed++
			s.discard(1)
			continue
		}
		pkt := append([]byte(nil), s.buf[:n]...)
		s.consume(n)
		s.stats.Packets++
		return pkt, h, nil
	}
}

func (s *Scanner) Buffered() int { return len(s.buf) }

func (s *Scanner) Stats() ScannerStats { return s.stats }

func (s *Scanner) discard(n int) {
	s.stats.BytesDiscarded += uint64(n)
	s.consume(n)
}

func (s *Scanner) consume(n int) {
	if n <= 0 {
		return
	}
	s.buf = s.buf[:copy(s.buf, s.buf[n:])]
}
