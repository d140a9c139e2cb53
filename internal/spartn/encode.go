package spartn

import "fmt"

// Append encodes a complete message with header h onto dst and returns the
// extended slice. PayloadLength and FrameCRC in h are ignored: they are
// derived from payload and computed. auth must match h.AuthBytes().
func (h Header) Append(dst, payload, auth []byte) ([]byte, error) {
	if err := h.check(len(payload), len(auth)); err != nil {
		return dst, err
	}
	h.PayloadLength = len(payload)

	var w bitWriter
	w.write(uint32(h.MessageType), 7)
	w.write(uint32(h.PayloadLength), 10)
	w.bool(h.Encrypted)
	w.write(uint32(h.CRCType), 2)
	w.write(0, 4)

	w.write(uint32(h.SubType), 4)
	w.bool(h.TimeTag32)
	if h.TimeTag32 {
		w.write(h.TimeTag, 32)
	} else {
		w.write(h.TimeTag, 16)
	}
	w.write(uint32(h.SolutionID), 7)
	w.write(uint32(h.ProcessorID), 4)
	if h.Encrypted {
		w.write(uint32(h.EncryptionID), 4)
		w.write(uint32(h.SequenceNumber), 6)
		w.write(uint32(h.AuthIndicator), 3)
		w.write(uint32(h.AuthLength), 3)
	}

	start := len(dst)
	dst = append(dst, Preamble)
	dst = append(dst, w.bytes()...)
	dst[start+3] |= CRC4([]byte{dst[start+1], dst[start+2], dst[start+3]})
	dst = append(dst, payload...)
	dst = append(dst, auth...)

	c := h.CRCType.Checksum(dst[start+1:])
	for i := h.CRCType.Size() - 1; i >= 0; i-- {
		dst = append(dst, byte(c>>(8*i)))
	}
	return dst, nil
}

// Encode is Append onto a new slice.
func (h Header) Encode(payload, auth []byte) ([]byte, error) {
	h.PayloadLength = len(payload)
	return h.Append(make([]byte, 0, h.MessageLength()), payload, auth)
}

func (h Header) check(payloadLen, authLen int) error {
	switch {
	case h.MessageType > 0x7F:
		return fmt.Errorf("message type %d out of range", h.MessageType)
	case payloadLen > MaxPayloadLength:
		return fmt.Errorf("payload length %d exceeds %d", payloadLen, MaxPayloadLength)
	case !h.CRCType.Valid():
		return fmt.Errorf("invalid crc type %d", h.CRCType)
	case h.SubType > 0x0F:
		return fmt.Errorf("subtype %d out of range", h.SubType)
	case !h.TimeTag32 && h.TimeTag > 0xFFFF:
		return fmt.Errorf("time tag %d does not fit 16 bits", h.TimeTag)
	case h.SolutionID > 0x7F:
		return fmt.Errorf("solution id %d out of range", h.SolutionID)
	case h.ProcessorID > 0x0F:
		return fmt.Errorf("processor id %d out of range", h.ProcessorID)
	}
	if h.Encrypted {
		switch {
		case h.EncryptionID > 0x0F:
			return fmt.Errorf("encryption id %d out of range", h.EncryptionID)
		case h.SequenceNumber > 0x3F:
			return fmt.Errorf("sequence number %d out of range", h.SequenceNumber)
		case h.AuthIndicator > 0x07:
			return fmt.Errorf("auth indicator %d out of range", h.AuthIndicator)
		case int(h.AuthLength) >= len(authLengths):
			return fmt.Errorf("auth length code %d out of range", h.AuthLength)
		}
	}
	if want := h.AuthBytes(); authLen != want {
		return fmt.Errorf("auth trailer is %d bytes, header needs %d", authLen, want)
	}
	return nil
}
