// Package ubx implements the u-blox UBX binary framing used to carry L-band
// correction data (UBX-RXM-PMP) out of a receiver.
package ubx

import (
	"encoding/binary"
	"fmt"
)

const (
	Sync1 = 0xB5
	Sync2 = 0x62

	// HeaderLength covers sync, class, id and the length field.
	HeaderLength = 6
	// Overhead is header plus the two checksum bytes.
	Overhead = HeaderLength + 2

	// MaxPayloadLength bounds what the scanner will wait for; the largest
	// message this package consumes is RXM-PMP at 528 bytes.
	MaxPayloadLength = 2048
)

const (
	ClassRXM = 0x02
	IDRXMPMP = 0x72
)

// Header is the fixed part of a UBX packet.
type Header struct {
	Class  uint8
	ID     uint8
	Length uint16
}

func (h Header) String() string {
	return fmt.Sprintf("UBX %02X-%02X len=%d", h.Class, h.ID, h.Length)
}

// Checksum is the 8-bit Fletcher checksum over class, id, length and payload.
func Checksum(data []byte) (ckA, ckB uint8) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Encode builds a complete packet.
func Encode(class, id uint8, payload []byte) []byte {
	buf := make([]byte, 0, Overhead+len(payload))
	buf = append(buf, Sync1, Sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[2:])
	return append(buf, ckA, ckB)
}

// ParseHeader reads the header at the start of buf.
func ParseHeader(buf []byte) (Header, bool) {
	if len(buf) < HeaderLength || buf[0] != Sync1 || buf[1] != Sync2 {
		return Header{}, false
	}
	return Header{
		Class:  buf[2],
		ID:     buf[3],
		Length: binary.LittleEndian.Uint16(buf[4:6]),
	}, true
}

// VerifyChecksum checks a whole packet (header, payload and checksum).
func VerifyChecksum(packet []byte) bool {
	if len(packet) < Overhead {
		return false
	}
	ckA, ckB := Checksum(packet[2 : len(packet)-2])
	return packet[len(packet)-2] == ckA && packet[len(packet)-1] == ckB
}

// Payload returns the payload of a whole packet.
func Payload(packet []byte) []byte {
	if len(packet) < Overhead {
		return nil
	}
	return packet[HeaderLength : len(packet)-2]
}
