package spartn

// Preamble is the first byte of every SPARTN message (TF001).
const Preamble = 0x73

const (
	// MinHeaderLength is the smallest header: preamble, frame start and a
	// payload description with a 16-bit time tag.
	MinHeaderLength = 8

	// MaxPayloadLength is the largest value of the 10-bit payload length field.
	MaxPayloadLength = 1023

	// MaxMessageLength bounds the size of any SPARTN message.
	MaxMessageLength = 1104

	frameStartLength = 4
)

// Authentication trailer sizes indexed by the embedded authentication
// length code (TF015).
var authLengths = [...]int{8, 12, 16, 32, 64}

// Header holds the decoded frame start and payload description of a message.
type Header struct {
	MessageType   uint8 // TF002, 7 bits
	PayloadLength int   // TF003, 10 bits
	Encrypted     bool  // TF004
	CRCType       CRCType
	FrameCRC      uint8 // TF006, 4 bits

	SubType     uint8 // TF007, 4 bits
	TimeTag32   bool  // TF008
	TimeTag     uint32
	SolutionID  uint8 // TF010, 7 bits
	ProcessorID uint8 // TF011, 4 bits

	// Present only when Encrypted.
	EncryptionID   uint8 // TF012, 4 bits
	SequenceNumber uint8 // TF013, 6 bits
	AuthIndicator  uint8 // TF014, 3 bits
	AuthLength     uint8 // TF015, 3 bits
}

// HeaderLength is the number of bytes from the preamble to the first payload
// byte: 8, 10 or 12.
func (h Header) HeaderLength() int {
	n := MinHeaderLength
	if h.TimeTag32 {
		n += 2
	}
	if h.Encrypted {
		n += 2
	}
	return n
}

// AuthBytes is the size of the embedded authentication trailer, zero when
// the message carries none.
func (h Header) AuthBytes() int {
	if !h.Encrypted || h.AuthIndicator <= 1 || int(h.AuthLength) >= len(authLengths) {
		return 0
	}
	return authLengths[h.AuthLength]
}

// MessageLength is the total size of the message including the preamble and
// the message CRC.
func (h Header) MessageLength() int {
	return h.HeaderLength() + h.PayloadLength + h.AuthBytes() + h.CRCType.Size()
}

// Name is the catalogue name of the message type and subtype, e.g. "OCB-GPS".
func (h Header) Name() string {
	return MessageName(h.MessageType, h.SubType)
}

type headerStatus int

const (
	headerOK headerStatus = iota
	// More bytes are needed before the candidate can be judged.
	headerIncomplete
	// The candidate cannot be a message start.
	headerRejected
)

// frameCRCOK checks TF006 against the three bytes following the preamble,
// with the CRC nibble itself zeroed.
func frameCRCOK(buf []byte) bool {
	var in [frameStartLength - 1]byte
	copy(in[:], buf[1:frameStartLength])
	in[2] &= 0xF0
	return CRC4(in[:]) == buf[3]&0x0F
}

// decodeHeader decodes the header of a candidate message; buf[0] must be
// the preamble.
func decodeHeader(buf []byte) (Header, headerStatus) {
	var h Header
	if len(buf) < MinHeaderLength {
		return h, headerIncomplete
	}
	if !frameCRCOK(buf) {
		return h, headerRejected
	}

	r := newBitReader(buf[1:])
	h.MessageType = uint8(r.read(7))
	h.PayloadLength = int(r.read(10))
	h.Encrypted = r.bool()
	h.CRCType = CRCType(r.read(2))
	h.FrameCRC = uint8(r.read(4))

	h.SubType = uint8(r.read(4))
	h.TimeTag32 = r.bool()
	if len(buf) < h.HeaderLength() {
		return h, headerIncomplete
	}
	if h.TimeTag32 {
		h.TimeTag = r.read(32)
	} else {
		h.TimeTag = r.read(16)
	}
	h.SolutionID = uint8(r.read(7))
	h.ProcessorID = uint8(r.read(4))

	if h.Encrypted {
		h.EncryptionID = uint8(r.read(4))
		h.SequenceNumber = uint8(r.read(6))
		h.AuthIndicator = uint8(r.read(3))
		h.AuthLength = uint8(r.read(3))
		if int(h.AuthLength) >= len(authLengths) {
			return h, headerRejected
		}
	}
	return h, headerOK
}
