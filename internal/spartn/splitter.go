package spartn

import "errors"

// SplitterStats accumulates counters over the life of a Splitter.
type SplitterStats struct {
	ScanStats

	BytesIn        uint64
	BytesDiscarded uint64 // noise and rejected candidates
	Messages       uint64
}

// Splitter recovers validated messages from a byte stream delivered in
// arbitrary fragments. It is not safe for concurrent use.
//
// Feed it with Write and drain it with Next until Next returns
// ErrIncomplete.
type Splitter struct {
	buf   []byte
	eof   bool
	stats SplitterStats
}

func NewSplitter() *Splitter {
	return &Splitter{buf: make([]byte, 0, 2*MaxMessageLength)}
}

// Write buffers p. It never fails.
func (s *Splitter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	s.stats.BytesIn += uint64(len(p))
	return len(p), nil
}

// Next returns the next validated message and its header. The slice is a
// copy owned by the caller. ErrIncomplete means more input is needed.
//
// Bytes that cannot belong to a message are dropped as they are found, so
// the buffer stays bounded by MaxMessageLength plus one write.
func (s *Splitter) Next() ([]byte, Header, error) {
	for len(s.buf) > 0 {
		m, err := ValidateWithStats(s.buf, &s.stats.ScanStats)
		switch {
		case err == nil:
			msg := append([]byte(nil), m.Bytes(s.buf)...)
			s.discard(m.Offset)
			s.consume(m.Length)
			s.stats.Messages++
			return msg, m.Header, nil
		case errors.Is(err, ErrIncomplete):
			if !s.eof {
				s.discard(m.Offset)
				return nil, Header{}, ErrIncomplete
			}
			// No more input can complete this candidate.
			s.discard(m.Offset + 1)
		default:
			s.discard(len(s.buf))
		}
	}
	return nil, Header{}, ErrIncomplete
}

// EndOfInput marks the stream as finished. Later calls to Next skip
// candidates that claim more bytes than are buffered instead of waiting for
// them, so messages behind a false header are still recovered. Reset clears
// the mark.
func (s *Splitter) EndOfInput() { s.eof = true }

// Buffered is the number of bytes held waiting for more input.
func (s *Splitter) Buffered() int { return len(s.buf) }

func (s *Splitter) Stats() SplitterStats { return s.stats }

// Reset drops buffered bytes; counters are kept.
func (s *Splitter) Reset() {
	s.discard(len(s.buf))
	s.eof = false
}

func (s *Splitter) discard(n int) {
	s.stats.BytesDiscarded += uint64(n)
	s.consume(n)
}

func (s *Splitter) consume(n int) {
	if n <= 0 {
		return
	}
	s.buf = s.buf[:copy(s.buf, s.buf[n:])]
}
