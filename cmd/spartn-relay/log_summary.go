package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"spartn-relay/internal/relay"
	"spartn-relay/internal/replay"
)

type logSummary struct {
	Chunks   int
	Bytes    int
	Duration time.Duration
	Relay    relay.Snapshot
}

// summarizeCapture runs a capture through the relay pipeline without sinks.
func summarizeCapture(records []replay.Record, encap string) (logSummary, error) {
	r, err := relay.New(relay.Config{Encapsulation: encap})
	if err != nil {
		return logSummary{}, err
	}
	var s logSummary
	for _, rec := range records {
		s.Chunks++
		s.Bytes += len(rec.Data)
		if rec.At > s.Duration {
			s.Duration = rec.At
		}
		if err := r.HandleChunk(rec.Data); err != nil {
			return logSummary{}, err
		}
	}
	r.Flush()
	s.Relay = r.Snapshot()
	return s, nil
}

func printLogSummary(w io.Writer, path string, encap string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	recs, err := replay.LoadFile(path)
	if err != nil {
		return err
	}
	s, err := summarizeCapture(recs, encap)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "encapsulation: %s\n", s.Relay.Encapsulation)
	fmt.Fprintf(w, "chunks: %d\n", s.Chunks)
	fmt.Fprintf(w, "bytes: %d\n", s.Bytes)
	fmt.Fprintf(w, "duration: %s\n", s.Duration)
	fmt.Fprintf(w, "messages: %d\n", s.Relay.Messages)
	fmt.Fprintf(w, "bytes_discarded: %d\n", s.Relay.BytesDiscarded)
	fmt.Fprintf(w, "crc_failed: %d\n", s.Relay.CRCFailed)
	if s.Relay.Encapsulation == relay.EncapUBX {
		fmt.Fprintf(w, "ubx_packets: %d\n", s.Relay.UBXPackets)
		fmt.Fprintf(w, "ubx_ignored: %d\n", s.Relay.UBXIgnored)
	}
	fmt.Fprintf(w, "message_counts:\n")
	for _, name := range s.Relay.TypeNames() {
		fmt.Fprintf(w, "  %s: %d\n", name, s.Relay.ByType[name])
	}
	return nil
}
