package ubx

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrNotPMP = errors.New("ubx: not an RXM-PMP packet")

const (
	pmpV0Length       = 528
	pmpV0UserData     = 504
	pmpV0UserDataOff  = 20
	pmpV1HeaderLength = 24
)

// PMP is a decoded UBX-RXM-PMP message: one block of L-band user data as
// received from the correction satellite.
type PMP struct {
	Version             uint8
	TimeTag             uint32 // ms
	ServiceID           uint16
	UniqueWordBitErrors uint8
	FECBits             uint16
	EbNo                float64 // dB
	UserData            []byte
}

// ParsePMP decodes the payload of an RXM-PMP packet. UserData aliases payload.
func ParsePMP(payload []byte) (PMP, error) {
	if len(payload) < 1 {
		return PMP{}, fmt.Errorf("rxm-pmp: empty payload")
	}
	var p PMP
	p.Version = payload[0]
	switch p.Version {
	case 0:
		if len(payload) != pmpV0Length {
			return PMP{}, fmt.Errorf("rxm-pmp v0: length %d want %d", len(payload), pmpV0Length)
		}
		p.TimeTag = binary.LittleEndian.Uint32(payload[4:8])
		p.ServiceID = binary.LittleEndian.Uint16(payload[16:18])
		p.UniqueWordBitErrors = payload[19]
		p.UserData = payload[pmpV0UserDataOff : pmpV0UserDataOff+pmpV0UserData]
		p.FECBits = binary.LittleEndian.Uint16(payload[524:526])
		p.EbNo = float64(payload[526]) / 8
	case 1:
		if len(payload) < pmpV1HeaderLength {
			return PMP{}, fmt.Errorf("rxm-pmp v1: short payload (%d bytes)", len(payload))
		}
		n := int(binary.LittleEndian.Uint16(payload[2:4]))
		if len(payload) != pmpV1HeaderLength+n {
			return PMP{}, fmt.Errorf("rxm-pmp v1: length %d does not match %d user bytes", len(payload), n)
		}
		p.TimeTag = binary.LittleEndian.Uint32(payload[4:8])
		p.ServiceID = binary.LittleEndian.Uint16(payload[16:18])
		p.UniqueWordBitErrors = payload[19]
		p.FECBits = binary.LittleEndian.Uint16(payload[20:22])
		p.EbNo = float64(payload[22]) / 8
		p.UserData = payload[pmpV1HeaderLength:]
	default:
		return PMP{}, fmt.Errorf("rxm-pmp: unsupported version %d", p.Version)
	}
	return p, nil
}

// PMPUserData returns the user data carried by a whole UBX packet if it is
// an RXM-PMP message.
func PMPUserData(packet []byte) ([]byte, error) {
	h, ok := ParseHeader(packet)
	if !ok || h.Class != ClassRXM || h.ID != IDRXMPMP {
		return nil, ErrNotPMP
	}
	p, err := ParsePMP(Payload(packet))
	if err != nil {
		return nil, err
	}
	return p.UserData, nil
}

// EncodePMP builds an RXM-PMP v1 packet around userData.
func EncodePMP(serviceID uint16, timeTag uint32, userData []byte) []byte {
	payload := make([]byte, pmpV1HeaderLength, pmpV1HeaderLength+len(userData))
	payload[0] = 1
	binary.LittleEndian.PutUint16(payload[2:4], uint16(len(userData)))
	binary.LittleEndian.PutUint32(payload[4:8], timeTag)
	binary.LittleEndian.PutUint16(payload[16:18], serviceID)
	payload = append(payload, userData...)
	return Encode(ClassRXM, IDRXMPMP, payload)
}
