package ubx

import (
	"bytes"
	"errors"
	"testing"
)

func drain(t *testing.T, s *Scanner) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		pkt, _, err := s.Next()
		if errors.Is(err, ErrIncomplete) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		out = append(out, pkt)
	}
}

func TestScanner_MixedTraffic(t *testing.T) {
	a := Encode(0x0A, 0x04, nil)
	b := EncodePMP(21845, 1000, []byte{0x73, 0x01, 0x02, 0x03})

	var stream []byte
	stream = append(stream, "$GNGGA,,,,,,0,00,99.99,,,,,,*56\r\n"...)
	stream = append(stream, a...)
	stream = append(stream, 0xB5, 0x00)
	stream = append(stream, b...)

	for _, chunk := range []int{1, 3, len(stream)} {
		s := NewScanner()
		var got [][]byte
		for pos := 0; pos < len(stream); pos += chunk {
			end := pos + chunk
			if end > len(stream) {
				end = len(stream)
			}
			_, _ = s.Write(stream[pos:end])
			got = append(got, drain(t, s)...)
		}
		if len(got) != 2 || !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
			t.Fatalf("chunk=%d: got %d packets", chunk, len(got))
		}
		if s.Buffered() != 0 {
			t.Fatalf("chunk=%d: Buffered()=%d want 0", chunk, s.Buffered())
		}
		if st := s.Stats(); st.Packets != 2 || st.BytesIn != uint64(len(stream)) {
			t.Fatalf("chunk=%d: stats=%+v", chunk, st)
		}
	}
}

func TestScanner_SkipsBadChecksum(t *testing.T) {
	good := Encode(0x0A, 0x04, nil)
	bad := Encode(0x06, 0x01, []byte{0xF0, 0x01, 0x00})
	bad[len(bad)-1] ^= 0xFF

	s := NewScanner()
	_, _ = s.Write(append(bad, good...))
	got := drain(t, s)
	if len(got) != 1 || !bytes.Equal(got[0], good) {
		t.Fatalf("got %d packets", len(got))
	}
	if s.Stats().ChecksumFailed != 1 {
		t.Fatalf("ChecksumFailed=%d want 1", s.Stats().ChecksumFailed)
	}
}

func TestScanner_SkipsOversizeLength(t *testing.T) {
	good := Encode(0x0A, 0x04, nil)
	s := NewScanner()
	_, _ = s.Write([]byte{Sync1, Sync2, 0x02, 0x72, 0xFF, 0xFF})
	_, _ = s.Write(good)
	got := drain(t, s)
	if len(got) != 1 || !bytes.Equal(got[0], good) {
		t.Fatalf("got %d packets", len(got))
	}
	if s.Stats().Oversize != 1 {
		t.Fatalf("Oversize=%d want 1", s.Stats().Oversize)
	}
}
