package spartn

import "errors"

var (
	// ErrIncomplete means the buffer may hold the start of a message but not
	// enough of it; retry from the same place once more bytes have arrived.
	ErrIncomplete = errors.New("spartn: incomplete message")

	// ErrNotFound means no message start exists in the buffer as laid out.
	ErrNotFound = errors.New("spartn: no message found")

	// ErrInvalidParameter is returned for a nil buffer.
	ErrInvalidParameter = errors.New("spartn: invalid parameter")
)

// Message locates a SPARTN message inside a caller's buffer.
//
// On success Offset is the index of the preamble and Length the size of the
// whole message. With ErrIncomplete, Offset is the candidate the caller
// should keep and Length is zero unless the header could be decoded.
type Message struct {
	Offset int
	Length int
	Header Header
}

// End is the index just past the message.
func (m Message) End() int { return m.Offset + m.Length }

// Bytes returns the message as a sub-slice of buf, which must be the buffer
// m was found in. It returns nil if the message is not wholly inside buf.
func (m Message) Bytes(buf []byte) []byte {
	if m.Length <= 0 || m.Offset < 0 || m.End() > len(buf) {
		return nil
	}
	return buf[m.Offset:m.End():m.End()]
}

// ScanStats counts what a scan saw. It exists for diagnostics only; the
// result of a scan never depends on it.
type ScanStats struct {
	Candidates     uint64 // preamble bytes examined
	HeaderRejected uint64 // frame CRC or authentication length rejected
	CRCFailed      uint64 // plausible header, message CRC mismatch
}

func (s *ScanStats) Add(o ScanStats) {
	s.Candidates += o.Candidates
	s.HeaderRejected += o.HeaderRejected
	s.CRCFailed += o.CRCFailed
}

// Detect finds the first plausible SPARTN message in buf.
//
// Only the 4-bit frame CRC is checked, so random data can produce false
// positives; use Validate before trusting a message. The returned Length
// may run past the end of buf: Detect needs the header only.
func Detect(buf []byte) (Message, error) {
	return scan(buf, false, nil)
}

// Validate finds the first SPARTN message in buf whose message CRC checks.
//
// The whole message must be present. Candidates that pass the frame CRC but
// fail the message CRC are skipped and scanning resumes at the next byte.
func Validate(buf []byte) (Message, error) {
	return scan(buf, true, nil)
}

// ValidateWithStats is Validate, additionally recording into stats.
func ValidateWithStats(buf []byte, stats *ScanStats) (Message, error) {
	return scan(buf, true, stats)
}

func scan(buf []byte, validate bool, stats *ScanStats) (Message, error) {
	if buf == nil {
		return Message{}, ErrInvalidParameter
	}
	var local ScanStats
	if stats != nil {
		defer func() { stats.Add(local) }()
	}

	for i := 0; i < len(buf); i++ {
		if buf[i] != Preamble {
			continue
		}
		local.Candidates++

		h, st := decodeHeader(buf[i:])
		switch st {
		case headerIncomplete:
			return Message{Offset: i}, ErrIncomplete
		case headerRejected:
			local.HeaderRejected++
			continue
		}

		m := Message{Offset: i, Length: h.MessageLength(), Header: h}
		if !validate {
			return m, nil
		}
		if m.End() > len(buf) {
			return m, ErrIncomplete
		}
		if !messageCRCOK(buf[i:m.End()], h.CRCType) {
			local.CRCFailed++
			continue
		}
		return m, nil
	}
	return Message{}, ErrNotFound
}

// messageCRCOK checks the trailing CRC of msg, which runs from the preamble
// to the end of the CRC field. The preamble is not covered.
func messageCRCOK(msg []byte, t CRCType) bool {
	crcStart := len(msg) - t.Size()
	var got uint32
	for _, b := range msg[crcStart:] {
		got = got<<8 | uint32(b)
	}
	return t.Checksum(msg[1:crcStart]) == got
}
