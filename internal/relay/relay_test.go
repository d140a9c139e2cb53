package relay

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"spartn-relay/internal/spartn"
	"spartn-relay/internal/ubx"
)

type fakeSink struct {
	name   string
	msgs   [][]byte
	err    error
	closed bool
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Send(msg []byte) error {
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

type fakeRecorder struct {
	chunks [][]byte
	err    error
}

func (r *fakeRecorder) WriteChunk(now time.Time, data []byte) error {
	if r.err != nil {
		return r.err
	}
	r.chunks = append(r.chunks, data)
	return nil
}

func encode(t *testing.T, h spartn.Header, payloadLen int) []byte {
	t.Helper()
	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = byte(i * 3)
		if payload[i] == spartn.Preamble {
			payload[i] = 0
		}
	}
	msg, err := h.Encode(payload, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return msg
}

func testStream(t *testing.T) [][]byte {
	return [][]byte{
		encode(t, spartn.Header{MessageType: spartn.TypeOCB, SubType: 0, CRCType: spartn.CRCType24, TimeTag32: true, TimeTag: 100}, 200),
		encode(t, spartn.Header{MessageType: spartn.TypeOCB, SubType: 2, CRCType: spartn.CRCType24, TimeTag32: true, TimeTag: 100}, 150),
		encode(t, spartn.Header{MessageType: spartn.TypeGAD, CRCType: spartn.CRCType16, TimeTag: 7}, 40),
		encode(t, spartn.Header{MessageType: spartn.TypeOCB, SubType: 0, CRCType: spartn.CRCType24, TimeTag32: true, TimeTag: 105}, 210),
	}
}

func TestRelay_RawStreamFanOut(t *testing.T) {
	msgs := testStream(t)
	stream := append([]byte{0x00, 0x11}, bytes.Join(msgs, nil)...)

	a, b := &fakeSink{name: "a"}, &fakeSink{name: "b"}
	rec := &fakeRecorder{}
	r, err := New(Config{Recorder: rec}, a, b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for pos := 0; pos < len(stream); pos += 37 {
		end := min(pos+37, len(stream))
		if err := r.HandleChunk(stream[pos:end]); err != nil {
			t.Fatalf("HandleChunk: %v", err)
		}
	}

	for _, s := range []*fakeSink{a, b} {
		if len(s.msgs) != len(msgs) {
			t.Fatalf("sink %s got %d messages want %d", s.name, len(s.msgs), len(msgs))
		}
		for i := range msgs {
			if !bytes.Equal(s.msgs[i], msgs[i]) {
				t.Fatalf("sink %s message %d mismatch", s.name, i)
			}
		}
	}

	snap := r.Snapshot()
	if snap.Encapsulation != EncapRaw || snap.Messages != 4 || snap.BytesDiscarded != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.ByType["OCB-GPS"] != 2 || snap.ByType["OCB-GAL"] != 1 || snap.ByType["GAD"] != 1 {
		t.Fatalf("by type=%v", snap.ByType)
	}
	if snap.LastMessage != "OCB-GPS" || snap.LastMessageUTC == "" {
		t.Fatalf("last=%q at %q", snap.LastMessage, snap.LastMessageUTC)
	}
	if names := snap.TypeNames(); len(names) != 3 || names[0] != "GAD" {
		t.Fatalf("TypeNames()=%v", names)
	}
	if !bytes.Equal(bytes.Join(rec.chunks, nil), stream) || snap.RecordedBytes != uint64(len(stream)) {
		t.Fatalf("recorded %d bytes", snap.RecordedBytes)
	}

	if err := r.Close(); err != nil || !a.closed || !b.closed {
		t.Fatalf("Close: %v", err)
	}
}

func TestRelay_UBXEncapsulation(t *testing.T) {
	msgs := testStream(t)
	joined := bytes.Join(msgs, nil)

	// Split the SPARTN stream across PMP frames at awkward points and mix in
	// unrelated UBX traffic.
	var stream []byte
	stream = append(stream, ubx.EncodePMP(1, 0, joined[:100])...)
	stream = append(stream, ubx.Encode(0x01, 0x07, make([]byte, 92))...)
	stream = append(stream, ubx.EncodePMP(1, 1, joined[100:333])...)
	stream = append(stream, "$GNGGA,,,,,,0,00,99.99,,,,,,*56\r\n"...)
	stream = append(stream, ubx.EncodePMP(1, 2, joined[333:])...)

	sink := &fakeSink{name: "rx"}
	r, err := New(Config{Encapsulation: " UBX "}, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.HandleChunk(stream); err != nil {
		t.Fatalf("HandleChunk: %v", err)
	}
	if len(sink.msgs) != len(msgs) {
		t.Fatalf("got %d messages want %d", len(sink.msgs), len(msgs))
	}
	snap := r.Snapshot()
	if snap.UBXPackets != 4 || snap.UBXIgnored != 1 || snap.Messages != 4 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestRelay_SinkErrorsCountedAndOthersStillServed(t *testing.T) {
	bad := &fakeSink{name: "bad", err: errors.New("EIO")}
	good := &fakeSink{name: "good"}
	r, _ := New(Config{}, bad, good)

	msgs := testStream(t)
	if err := r.HandleChunk(bytes.Join(msgs, nil)); err != nil {
		t.Fatalf("HandleChunk: %v", err)
	}
	if len(good.msgs) != len(msgs) {
		t.Fatalf("good sink got %d", len(good.msgs))
	}
	if r.Snapshot().SinkErrors != uint64(len(msgs)) {
		t.Fatalf("SinkErrors=%d", r.Snapshot().SinkErrors)
	}

	bad.err = nil
	_ = r.HandleChunk(msgs[0])
	if len(bad.msgs) != 1 {
		t.Fatalf("recovered sink got %d", len(bad.msgs))
	}
	if _, ok := r.sinkLastErr["bad"]; ok {
		t.Fatalf("recovered sink still marked failing")
	}
}

func TestRelay_RecordErrorDoesNotStopForwarding(t *testing.T) {
	sink := &fakeSink{name: "rx"}
	r, _ := New(Config{Recorder: &fakeRecorder{err: errors.New("disk full")}}, sink)
	msgs := testStream(t)
	_ = r.HandleChunk(msgs[0])
	_ = r.HandleChunk(msgs[1])
	if len(sink.msgs) != 2 || r.Snapshot().RecordErrors != 2 {
		t.Fatalf("msgs=%d snapshot=%+v", len(sink.msgs), r.Snapshot())
	}
}

func TestNew_RejectsUnknownEncapsulation(t *testing.T) {
	if _, err := New(Config{Encapsulation: "rtcm"}); err == nil {
		t.Fatalf("expected error")
	}
}
