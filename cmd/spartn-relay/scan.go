package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"spartn-relay/internal/spartn"
)

type scanEntry struct {
	Offset int
	Header spartn.Header
	Length int
}

type scanResult struct {
	Messages []scanEntry
	Stats    spartn.ScanStats
	// Trailing is the offset of the first candidate whose claimed length runs
	// past the end of the input, or -1.
	Trailing  int
	Discarded int
}

// scanBuffer walks buf with Validate, collecting every message in order. The
// input is complete, so a candidate running past the end is skipped and the
// scan resumes at the next byte.
func scanBuffer(buf []byte) scanResult {
	res := scanResult{Trailing: -1}
	pos := 0
	for pos < len(buf) {
		m, err := spartn.ValidateWithStats(buf[pos:], &res.Stats)
		if errors.Is(err, spartn.ErrIncomplete) {
			if res.Trailing < 0 {
				res.Trailing = pos + m.Offset
			}
			res.Discarded += m.Offset + 1
			pos += m.Offset + 1
			continue
		}
		if err != nil {
			res.Discarded += len(buf) - pos
			return res
		}
		res.Discarded += m.Offset
		res.Messages = append(res.Messages, scanEntry{Offset: pos + m.Offset, Header: m.Header, Length: m.Length})
		pos += m.End()
	}
	return res
}

func printScan(w io.Writer, path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res := scanBuffer(buf)
	for _, e := range res.Messages {
		h := e.Header
		fmt.Fprintf(w, "%8d  %-10s len=%-4d %s tt=%d sol=%d/%d enc=%t\n",
			e.Offset, h.Name(), e.Length, h.CRCType, h.TimeTag, h.SolutionID, h.ProcessorID, h.Encrypted)
	}
	fmt.Fprintf(w, "messages: %d candidates: %d header_rejected: %d crc_failed: %d discarded: %d\n",
		len(res.Messages), res.Stats.Candidates, res.Stats.HeaderRejected, res.Stats.CRCFailed, res.Discarded)
	if res.Trailing >= 0 {
		fmt.Fprintf(w, "truncated candidate at offset %d\n", res.Trailing)
	}
	return nil
}
