// Package relay turns raw source bytes into validated SPARTN messages and
// forwards each one to every configured sink.
package relay

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"spartn-relay/internal/receiver"
	"spartn-relay/internal/spartn"
	"spartn-relay/internal/ubx"
)

const (
	EncapRaw = "raw"
	EncapUBX = "ubx"
)

// Recorder captures source chunks as received.
type Recorder interface {
	WriteChunk(now time.Time, data []byte) error
}

type Config struct {
	// Encapsulation is "raw" for a bare SPARTN stream or "ubx" when the
	// stream is UBX-RXM-PMP output of an L-band receiver.
	Encapsulation string
	Recorder      Recorder
}

type Snapshot struct {
	Encapsulation string `json:"encapsulation"`

	Messages       uint64            `json:"messages"`
	ByType         map[string]uint64 `json:"by_type"`
	LastMessage    string            `json:"last_message,omitempty"`
	LastMessageUTC string            `json:"last_message_utc,omitempty"`

	BytesIn        uint64 `json:"bytes_in"`
	BytesDiscarded uint64 `json:"bytes_discarded"`
	Candidates     uint64 `json:"candidates"`
	HeaderRejected uint64 `json:"header_rejected"`
	CRCFailed      uint64 `json:"crc_failed"`

	UBXPackets        uint64 `json:"ubx_packets,omitempty"`
	UBXIgnored        uint64 `json:"ubx_ignored,omitempty"`
	UBXChecksumFailed uint64 `json:"ubx_checksum_failed,omitempty"`
	PMPErrors         uint64 `json:"pmp_errors,omitempty"`

	SinkErrors    uint64 `json:"sink_errors"`
	RecordedBytes uint64 `json:"recorded_bytes,omitempty"`
	RecordErrors  uint64 `json:"record_errors,omitempty"`
}

// Relay is safe for concurrent use; chunks are processed one at a time.
type Relay struct {
	cfg   Config
	sinks []receiver.Sink
	now   func() time.Time

	mu       sync.Mutex
	scanner  *ubx.Scanner
	splitter *spartn.Splitter
	byType   map[string]uint64
	lastName string
	lastAt   time.Time

	ubxIgnored   uint64
	pmpErrors    uint64
	sinkErrors   uint64
	sinkLastErr  map[string]string
	recorded     uint64
	recordErrors uint64
}

func New(cfg Config, sinks ...receiver.Sink) (*Relay, error) {
	cfg.Encapsulation = strings.ToLower(strings.TrimSpace(cfg.Encapsulation))
	if cfg.Encapsulation == "" {
		cfg.Encapsulation = EncapRaw
	}
	r := &Relay{
		cfg:         cfg,
		sinks:       sinks,
		now:         time.Now,
		splitter:    spartn.NewSplitter(),
		byType:      make(map[string]uint64),
		sinkLastErr: make(map[string]string),
	}
	switch cfg.Encapsulation {
	case EncapRaw:
	case EncapUBX:
		r.scanner = ubx.NewScanner()
	default:
		return nil, fmt.Errorf("unknown encapsulation %q (want raw or ubx)", cfg.Encapsulation)
	}
	return r, nil
}

// HandleChunk consumes one block of source bytes. It has the signature of
// source.ChunkFunc.
func (r *Relay) HandleChunk(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.cfg.Recorder != nil {
		if err := r.cfg.Recorder.WriteChunk(now, chunk); err != nil {
			if r.recordErrors == 0 {
				log.Printf("relay: record failed: %v", err)
			}
			r.recordErrors++
		} else {
			r.recorded += uint64(len(chunk))
		}
	}

	if r.scanner == nil {
		_, _ = r.splitter.Write(chunk)
	} else {
		r.unwrapUBXLocked(chunk)
	}

	for {
		msg, h, err := r.splitter.Next()
		if errors.Is(err, spartn.ErrIncomplete) {
			return nil
		}
		if err != nil {
			return err
		}
		r.forwardLocked(now, msg, h)
	}
}

// Flush is called once the source has delivered its last chunk. Messages
// still buffered behind a candidate that can no longer complete are
// forwarded.
func (r *Relay) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.splitter.EndOfInput()
	for {
		msg, h, err := r.splitter.Next()
		if err != nil {
			return
		}
		r.forwardLocked(now, msg, h)
	}
}

func (r *Relay) unwrapUBXLocked(chunk []byte) {
	_, _ = r.scanner.Write(chunk)
	for {
		pkt, _, err := r.scanner.Next()
		if err != nil {
			return
		}
		data, err := ubx.PMPUserData(pkt)
		switch {
		case errors.Is(err, ubx.ErrNotPMP):
			r.ubxIgnored++
		case err != nil:
			if r.pmpErrors == 0 {
				log.Printf("relay: %v", err)
			}
			r.pmpErrors++
		default:
			_, _ = r.splitter.Write(data)
		}
	}
}

func (r *Relay) forwardLocked(now time.Time, msg []byte, h spartn.Header) {
	name := h.Name()
	if r.lastAt.IsZero() {
		log.Printf("relay: first message %s (%d bytes)", name, len(msg))
	}
	r.byType[name]++
	r.lastName = name
	r.lastAt = now

	for _, s := range r.sinks {
		err := s.Send(msg)
		if err != nil {
			r.sinkErrors++
		}
		r.noteSinkLocked(s.Name(), err)
	}
}

// noteSinkLocked logs sink failures and recoveries once per transition.
func (r *Relay) noteSinkLocked(name string, err error) {
	prev := r.sinkLastErr[name]
	switch {
	case err != nil && err.Error() != prev:
		log.Printf("relay: sink %s: %v", name, err)
		r.sinkLastErr[name] = err.Error()
	case err == nil && prev != "":
		log.Printf("relay: sink %s recovered", name)
		delete(r.sinkLastErr, name)
	}
}

func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.splitter.Stats()
	out := Snapshot{
		Encapsulation:  r.cfg.Encapsulation,
		Messages:       st.Messages,
		ByType:         make(map[string]uint64, len(r.byType)),
		LastMessage:    r.lastName,
		BytesIn:        st.BytesIn,
		BytesDiscarded: st.BytesDiscarded,
		Candidates:     st.Candidates,
		HeaderRejected: st.HeaderRejected,
		CRCFailed:      st.CRCFailed,
		UBXIgnored:     r.ubxIgnored,
		PMPErrors:      r.pmpErrors,
		SinkErrors:     r.sinkErrors,
		RecordedBytes:  r.recorded,
		RecordErrors:   r.recordErrors,
	}
	for k, v := range r.byType {
		out.ByType[k] = v
	}
	if !r.lastAt.IsZero() {
		out.LastMessageUTC = r.lastAt.UTC().Format(time.RFC3339Nano)
	}
	if r.scanner != nil {
		us := r.scanner.Stats()
		out.UBXPackets = us.Packets
		out.UBXChecksumFailed = us.ChecksumFailed
	}
	return out
}

// TypeNames returns the message names seen so far, sorted.
func (s Snapshot) TypeNames() []string {
	names := make([]string, 0, len(s.ByType))
	for k := range s.ByType {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Close closes every sink and returns the first error.
func (r *Relay) Close() error {
	var first error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("close sink %s: %w", s.Name(), err)
		}
	}
	return first
}
