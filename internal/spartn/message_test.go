package spartn

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

// An encrypted HPAC message with a 32-bit time tag and a CRC-24.
const sampleMessageHex = "" +
	"7302a9e228d159e268531440030a11181f262d343b424950575e656c737a8188" +
	"8f969da4abb2b9c0c7ced5dce3eaf1f8ff060d141b222930373e454c535a6168" +
	"6f767d848b9299a0a7aeb5bcc3cad1d8dfe6edf4fb020910171e252c333a4148" +
	"4f565d646b727980878e959ca3aab1b8bfc6cdd4dbe2e9f0f7fe050c131a2128" +
	"2f363d444b525960676e757c838a91989fa6adb4bbc2c9d0d7dee5ecf3fa0108" +
	"0f161d242b323940474e555c636a71787f868d949ba2a9b0b7bec5ccd3dae1e8" +
	"eff6fd040b121920272e353c434a51585f666d747b828990979ea5acb3bac1c8" +
	"cfd6dde4ebf2f900070e151c232a31383f464d545b626970777e858c939aa1a8" +
	"afb6bdc4cbd2d9e0e7eef5fc030a11181f262d343b424950575e656c737a8188" +
	"8f969da4abb2b9c0c7ced5dce3eaf1f8ff060d141b222930373e454c535a6168" +
	"6f767d848b9299a0a7aeb5bcc3cad1d8dfe6edf4fb020910171e252c333a41a4" +
	"25c4"

var sampleHeader = Header{
	MessageType:    TypeHPAC,
	PayloadLength:  339,
	Encrypted:      true,
	CRCType:        CRCType24,
	FrameCRC:       0x2,
	SubType:        2,
	TimeTag32:      true,
	TimeTag:        0x1A2B3C4D,
	SolutionID:     5,
	ProcessorID:    3,
	EncryptionID:   1,
	SequenceNumber: 17,
}

func sampleMessage(t *testing.T) []byte {
	t.Helper()
	b, err := hex.DecodeString(sampleMessageHex)
	if err != nil {
		t.Fatalf("DecodeString() error: %v", err)
	}
	return b
}

func samplePayload() []byte {
	p := make([]byte, 339)
	for i := range p {
		p[i] = byte(i*7 + 3)
	}
	return p
}

// testPayload never contains the preamble, so messages built from it only
// offer a scan candidate at their first byte.
func testPayload(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)*seed + 1
		if p[i] == Preamble {
			p[i] = 0
		}
	}
	return p
}

// A GAD message assembled bit by bit from the field table, outside this
// package: frame CRC-4 by a reflected bitwise loop, message CRC-16 by
// Python's binascii.crc_hqx. Payload "GAD AREA 07 N52 E013".
const handBuiltGADHex = "73040a1e0152d8314741442041524541203037204e3532204530313385c2"

var handBuiltGADHeader = Header{
	MessageType:   TypeGAD,
	PayloadLength: 20,
	CRCType:       CRCType16,
	FrameCRC:      0xE,
	TimeTag:       0x2A5B,
	SolutionID:    3,
	ProcessorID:   1,
}

func handBuiltGAD(t *testing.T) []byte {
	t.Helper()
	b, err := hex.DecodeString(handBuiltGADHex)
	if err != nil {
		t.Fatalf("DecodeString() error: %v", err)
	}
	return b
}

func TestValidate_HandBuiltMessage(t *testing.T) {
	buf := handBuiltGAD(t)
	m, err := Validate(buf)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if m.Offset != 0 || m.Length != 30 {
		t.Fatalf("offset=%d len=%d want 0/30", m.Offset, m.Length)
	}
	if m.Header != handBuiltGADHeader {
		t.Fatalf("header=%+v want %+v", m.Header, handBuiltGADHeader)
	}
	if got := string(buf[m.Header.HeaderLength() : m.Header.HeaderLength()+m.Header.PayloadLength]); got != "GAD AREA 07 N52 E013" {
		t.Fatalf("payload=%q", got)
	}

	enc, err := handBuiltGADHeader.Encode([]byte("GAD AREA 07 N52 E013"), nil)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if !bytes.Equal(enc, buf) {
		t.Fatalf("Encode() mismatch\n got: %x\nwant: %x", enc, buf)
	}

	// A single flipped payload bit must be caught by the CRC-16.
	bad := append([]byte(nil), buf...)
	bad[12] ^= 0x04
	if _, err := Validate(bad); !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupted: err=%v want %v", err, ErrNotFound)
	}
}

type testMessage struct {
	name   string
	header Header
	pay    []byte
	auth   []byte
	length int
}

func testMessages() []testMessage {
	return []testMessage{
		{
			name:   "ocb-crc8",
			header: Header{MessageType: TypeOCB, CRCType: CRCType8, TimeTag: 0x1234, SolutionID: 1, ProcessorID: 2},
			pay:    testPayload(40, 3),
			length: 49,
		},
		{
			name:   "hpac-crc16-tt32",
			header: Header{MessageType: TypeHPAC, SubType: 1, CRCType: CRCType16, TimeTag32: true, TimeTag: 0xCAFEBABE, SolutionID: 9},
			pay:    testPayload(100, 5),
			length: 112,
		},
		{
			name:   "gad-crc24-auth",
			header: Header{MessageType: TypeGAD, CRCType: CRCType24, Encrypted: true, EncryptionID: 2, SequenceNumber: 33, AuthIndicator: 3, AuthLength: 1},
			pay:    testPayload(64, 7),
			auth:   testPayload(12, 11),
			length: 89,
		},
		{
			name:   "bpac-crc32",
			header: Header{MessageType: TypeBPAC, CRCType: CRCType32, TimeTag: 0x0102},
			pay:    testPayload(17, 13),
			length: 29,
		},
	}
}

func encodeTest(t *testing.T, m testMessage) []byte {
	t.Helper()
	b, err := m.header.Encode(m.pay, m.auth)
	if err != nil {
		t.Fatalf("%s: Encode() error: %v", m.name, err)
	}
	if len(b) != m.length {
		t.Fatalf("%s: encoded len=%d want %d", m.name, len(b), m.length)
	}
	return b
}

func TestValidate_SampleMessage(t *testing.T) {
	buf := sampleMessage(t)
	if len(buf) != 354 || buf[0] != Preamble || buf[1] != 0x02 {
		t.Fatalf("unexpected sample: len=%d % X", len(buf), buf[:2])
	}

	for name, fn := range map[string]func([]byte) (Message, error){"Validate": Validate, "Detect": Detect} {
		m, err := fn(buf)
		if err != nil {
			t.Fatalf("%s() error: %v", name, err)
		}
		if m.Offset != 0 || m.Length != 354 {
			t.Fatalf("%s() offset=%d len=%d want 0/354", name, m.Offset, m.Length)
		}
		if m.Header != sampleHeader {
			t.Fatalf("%s() header=%+v want %+v", name, m.Header, sampleHeader)
		}
	}
}

func TestEncode_ReproducesSample(t *testing.T) {
	h := sampleHeader
	h.FrameCRC = 0
	got, err := h.Encode(samplePayload(), nil)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := sampleMessage(t)
	if !bytes.Equal(got, want) {
		t.Fatalf("encoded message mismatch\n got: %x\nwant: %x", got, want)
	}
}

func TestValidate_SampleCorruptionIsRejected(t *testing.T) {
	orig := sampleMessage(t)
	crcStart := len(orig) - CRCType24.Size()

	for i := 0; i < crcStart; i++ {
		buf := append([]byte(nil), orig...)
		buf[i] ^= 0x01

		if _, err := Validate(buf); !errors.Is(err, ErrNotFound) {
			t.Fatalf("byte %d corrupted: Validate() err=%v want %v", i, err, ErrNotFound)
		}
		if i < sampleHeader.HeaderLength() {
			continue
		}
		// The header is intact so the light check still passes.
		m, err := Detect(buf)
		if err != nil || m.Offset != 0 || m.Length != 354 {
			t.Fatalf("byte %d corrupted: Detect()=%+v, %v want offset 0 len 354", i, m, err)
		}
	}
}

func TestDetect_ShortBuffers(t *testing.T) {
	sample := sampleMessage(t)
	cases := []struct {
		name       string
		buf        []byte
		wantErr    error
		wantOffset int
	}{
		{name: "nil", buf: nil, wantErr: ErrInvalidParameter},
		{name: "empty", buf: []byte{}, wantErr: ErrNotFound},
		{name: "noise", buf: []byte{0x00, 0x01, 0x72, 0x74, 0xFF}, wantErr: ErrNotFound},
		{name: "preamble-only", buf: []byte{Preamble}, wantErr: ErrIncomplete},
		{name: "seven-bytes", buf: sample[:7], wantErr: ErrIncomplete},
		{name: "noise-then-preamble", buf: []byte{0x01, 0x02, 0x03, Preamble, 0x00}, wantErr: ErrIncomplete, wantOffset: 3},
		// The sample has a 32-bit time tag and encryption fields: 12 header bytes.
		{name: "time-tag-missing", buf: sample[:9], wantErr: ErrIncomplete},
		{name: "encryption-fields-missing", buf: sample[:11], wantErr: ErrIncomplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Detect(tc.buf)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err=%v want %v", err, tc.wantErr)
			}
			if m.Offset != tc.wantOffset {
				t.Fatalf("offset=%d want %d", m.Offset, tc.wantOffset)
			}
		})
	}
}

func TestDetect_LengthMayExceedBuffer(t *testing.T) {
	buf := sampleMessage(t)[:sampleHeader.HeaderLength()]

	m, err := Detect(buf)
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if m.Length != 354 {
		t.Fatalf("len=%d want 354", m.Length)
	}
	if m.Bytes(buf) != nil {
		t.Fatalf("Bytes() should be nil for a message past the buffer end")
	}

	m, err = Validate(buf)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Validate() err=%v want %v", err, ErrIncomplete)
	}
	if m.Offset != 0 || m.Length != 354 {
		t.Fatalf("Validate() offset=%d len=%d want 0/354", m.Offset, m.Length)
	}
}

func TestDetect_FrameCRCMismatchSkipsCandidate(t *testing.T) {
	good := encodeTest(t, testMessages()[0])
	bad := append([]byte(nil), good[:MinHeaderLength]...)
	bad[3] ^= 0x01 // frame CRC nibble

	buf := append(append([]byte{0x10, 0x20}, bad...), good...)
	var stats ScanStats
	m, err := ValidateWithStats(buf, &stats)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if want := 2 + len(bad); m.Offset != want {
		t.Fatalf("offset=%d want %d", m.Offset, want)
	}
	if stats.HeaderRejected != 1 || stats.Candidates != 2 || stats.CRCFailed != 0 {
		t.Fatalf("stats=%+v", stats)
	}

	m, err = Detect(buf)
	if err != nil || m.Offset != 2+len(bad) {
		t.Fatalf("Detect()=%+v, %v", m, err)
	}
}

func TestDetect_InvalidAuthLengthRejected(t *testing.T) {
	h := Header{MessageType: TypeEAS, Encrypted: true, EncryptionID: 1, SequenceNumber: 2, CRCType: CRCType8}
	msg, err := h.Encode(make([]byte, 4), nil)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	for code := byte(5); code <= 7; code++ {
		buf := append([]byte(nil), msg[:h.HeaderLength()]...)
		buf[len(buf)-1] = buf[len(buf)-1]&^0x07 | code
		buf = append(buf, make([]byte, 20)...)

		if _, err := Detect(buf); !errors.Is(err, ErrNotFound) {
			t.Fatalf("auth length code %d: err=%v want %v", code, err, ErrNotFound)
		}
	}
}

func TestValidate_SkipsMessageCRCFailure(t *testing.T) {
	msgs := testMessages()
	first := encodeTest(t, msgs[0])
	second := encodeTest(t, msgs[1])
	first[msgs[0].header.HeaderLength()] ^= 0xFF

	buf := append(append([]byte(nil), first...), second...)

	var stats ScanStats
	m, err := ValidateWithStats(buf, &stats)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if m.Offset != len(first) || m.Length != len(second) {
		t.Fatalf("offset=%d len=%d want %d/%d", m.Offset, m.Length, len(first), len(second))
	}
	if stats.CRCFailed != 1 {
		t.Fatalf("CRCFailed=%d want 1", stats.CRCFailed)
	}

	// Detect is fooled by the corrupt message.
	m, err = Detect(buf)
	if err != nil || m.Offset != 0 {
		t.Fatalf("Detect()=%+v, %v want offset 0", m, err)
	}
}

func TestValidate_IteratesBackToBackMessages(t *testing.T) {
	msgs := testMessages()
	var buf []byte
	for _, m := range msgs {
		buf = append(buf, encodeTest(t, m)...)
	}

	for name, fn := range map[string]func([]byte) (Message, error){"Validate": Validate, "Detect": Detect} {
		var got []Header
		for pos := 0; pos < len(buf); {
			m, err := fn(buf[pos:])
			if err != nil {
				t.Fatalf("%s() at %d error: %v", name, pos, err)
			}
			if m.Offset != 0 {
				t.Fatalf("%s() at %d offset=%d want 0", name, pos, m.Offset)
			}
			got = append(got, m.Header)
			pos += m.End()
		}
		if len(got) != len(msgs) {
			t.Fatalf("%s() found %d messages want %d", name, len(got), len(msgs))
		}
		for i, h := range got {
			if h.MessageType != msgs[i].header.MessageType || h.MessageLength() != msgs[i].length {
				t.Fatalf("%s() message %d: type=%d len=%d", name, i, h.MessageType, h.MessageLength())
			}
		}
	}
}

// Detect needs only the header; Validate needs the whole message. Wherever
// Validate succeeds Detect succeeds at the same place.
func TestDetect_SucceedsWhereValidateDoes(t *testing.T) {
	for _, tm := range testMessages() {
		msg := encodeTest(t, tm)
		hl := tm.header.HeaderLength()

		for n := hl; n <= len(msg); n++ {
			d, derr := Detect(msg[:n])
			if derr != nil || d.Offset != 0 || d.Length != len(msg) {
				t.Fatalf("%s: Detect(%d bytes)=%+v, %v", tm.name, n, d, derr)
			}
			_, verr := Validate(msg[:n])
			if n < len(msg) && !errors.Is(verr, ErrIncomplete) {
				t.Fatalf("%s: Validate(%d bytes) err=%v want %v", tm.name, n, verr, ErrIncomplete)
			}
			if n == len(msg) && verr != nil {
				t.Fatalf("%s: Validate(full) error: %v", tm.name, verr)
			}
		}
	}
}

func TestValidate_MaximumLengthMessage(t *testing.T) {
	h := Header{
		MessageType:   TypeOCB,
		CRCType:       CRCType32,
		Encrypted:     true,
		TimeTag32:     true,
		TimeTag:       0xFFFFFFFF,
		AuthIndicator: 2,
		AuthLength:    4,
	}
	payload := bytes.Repeat([]byte{0x55}, MaxPayloadLength)
	auth := make([]byte, 64)

	msg, err := h.Encode(payload, auth)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if len(msg) != 1103 || len(msg) > MaxMessageLength {
		t.Fatalf("len=%d want 1103 (<= %d)", len(msg), MaxMessageLength)
	}

	m, err := Validate(msg)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if m.Length != len(msg) || m.Header.PayloadLength != MaxPayloadLength || m.Header.AuthBytes() != 64 {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestValidate_DoesNotModifyInput(t *testing.T) {
	buf := sampleMessage(t)
	before := append([]byte(nil), buf...)
	_, _ = Validate(buf)
	_, _ = Detect(buf)
	if !bytes.Equal(buf, before) {
		t.Fatalf("input buffer modified")
	}
}

func TestMessage_Bytes(t *testing.T) {
	msgs := testMessages()
	msg := encodeTest(t, msgs[3])
	buf := append([]byte{0x00, 0x00, 0x00}, msg...)

	m, err := Validate(buf)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !bytes.Equal(m.Bytes(buf), msg) {
		t.Fatalf("Bytes()=%x want %x", m.Bytes(buf), msg)
	}
	if m.End() != len(buf) {
		t.Fatalf("End()=%d want %d", m.End(), len(buf))
	}
}

func TestEncode_RejectsOutOfRangeFields(t *testing.T) {
	cases := []struct {
		name string
		h    Header
		pay  int
		auth int
	}{
		{"payload-too-long", Header{}, MaxPayloadLength + 1, 0},
		{"message-type", Header{MessageType: 0x80}, 1, 0},
		{"crc-type", Header{CRCType: 4}, 1, 0},
		{"time-tag-16", Header{TimeTag: 0x10000}, 1, 0},
		{"auth-length-code", Header{Encrypted: true, AuthIndicator: 2, AuthLength: 5}, 1, 0},
		{"auth-missing", Header{Encrypted: true, AuthIndicator: 2, AuthLength: 0}, 1, 0},
		{"auth-unexpected", Header{}, 1, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.h.Encode(make([]byte, tc.pay), make([]byte, tc.auth)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestMessageName(t *testing.T) {
	cases := []struct {
		typ, sub uint8
		want     string
	}{
		{TypeOCB, 0, "OCB-GPS"},
		{TypeHPAC, 2, "HPAC-GAL"},
		{TypeGAD, 0, "GAD"},
		{TypeEAS, 1, "EAS-GROUP-AUTH"},
		{TypeOCB, 9, "OCB-9"},
		{77, 0, "TYPE77-0"},
	}
	for _, tc := range cases {
		if got := MessageName(tc.typ, tc.sub); got != tc.want {
			t.Fatalf("MessageName(%d,%d)=%q want %q", tc.typ, tc.sub, got, tc.want)
		}
	}
}
