package spartn

import (
	"fmt"
	"strings"

	"github.com/sigurn/crc16"
	"github.com/sigurn/crc8"
	"github.com/snksoft/crc"
)

// CRCType selects the algorithm protecting a whole SPARTN message (TF005).
type CRCType uint8

const (
	CRCType8  CRCType = 0
	CRCType16 CRCType = 1
	CRCType24 CRCType = 2
	CRCType32 CRCType = 3
)

// Valid reports whether t is one of the four codes the 2-bit field can carry.
func (t CRCType) Valid() bool { return t <= CRCType32 }

// Size is the width of the message CRC field in bytes.
func (t CRCType) Size() int { return int(t) + 1 }

func (t CRCType) String() string {
	switch t {
	case CRCType8:
		return "crc8"
	case CRCType16:
		return "crc16"
	case CRCType24:
		return "crc24"
	case CRCType32:
		return "crc32"
	default:
		return fmt.Sprintf("crc(%d)", uint8(t))
	}
}

// ParseCRCType maps "crc8", "crc16", "crc24" or "crc32" to a CRCType.
func ParseCRCType(s string) (CRCType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crc8":
		return CRCType8, nil
	case "crc16":
		return CRCType16, nil
	case "crc24":
		return CRCType24, nil
	case "crc32":
		return CRCType32, nil
	default:
		return 0, fmt.Errorf("unknown crc type %q", s)
	}
}

// Checksum computes the message CRC selected by t over data.
func (t CRCType) Checksum(data []byte) uint32 {
	switch t {
	case CRCType8:
		return uint32(CRC8(data))
	case CRCType16:
		return uint32(CRC16(data))
	case CRCType24:
		return CRC24(data)
	default:
		return CRC32(data)
	}
}

// Parameter sets. The frame CRC-4 is reflected; every message CRC is not.
var (
	crc4Params = &crc.Parameters{
		Width:      4,
		Polynomial: 0x09,
		ReflectIn:  true,
		ReflectOut: true,
	}
	crc32Params = &crc.Parameters{
		Width:      32,
		Polynomial: 0x04C11DB7,
		Init:       0xFFFFFFFF,
		FinalXor:   0xFFFFFFFF,
	}

	crc8Table  = crc8.MakeTable(crc8.CRC8)
	crc16Table = crc16.MakeTable(crc16.CRC16_XMODEM)
	crc32Table = crc.NewTable(crc32Params)
)

// CRC4 is the 4-bit frame CRC (TF006). It only ever covers three bytes so it
// is computed bit by bit.
func CRC4(data []byte) uint8 {
	return uint8(crc.CalculateCRC(crc4Params, data))
}

// CRC8 is CRC-8 with polynomial 0x07, zero init and no output XOR.
func CRC8(data []byte) uint8 {
	return crc8.Checksum(data, crc8Table)
}

// CRC16 is CRC-16/XMODEM (polynomial 0x1021, zero init, no output XOR).
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crc16Table)
}

const (
	crc24Init = 0xB704CE
	crc24Poly = 0x1864CFB
)

// CRC24 is the Radix-64 CRC-24 of RFC 4880 section 6.1.
func CRC24(data []byte) uint32 {
	c := uint32(crc24Init)
	for _, b := range data {
		c ^= uint32(b) << 16
		for i := 0; i < 8; i++ {
			c <<= 1
			if c&0x1000000 != 0 {
				c ^= crc24Poly
			}
		}
	}
	return c & 0xFFFFFF
}

// CRC32 is CRC-32/BZIP2: polynomial 0x04C11DB7, MSB-first, init and output
// XOR 0xFFFFFFFF. It is not the reflected zlib/Ethernet CRC-32.
func CRC32(data []byte) uint32 {
	return uint32(crc32Table.CalculateCRC(data))
}
