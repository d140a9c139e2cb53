// Package replay records and plays back raw correction-stream captures.
//
// Capture format is line-oriented text:
//
//   - Blank lines and lines starting with '#' are ignored.
//   - "START" resets the time origin.
//   - Data lines are <t_ns>,<hex> where t_ns is nanoseconds since START and
//     hex is one chunk of bytes exactly as the source delivered it.
//
// Chunk boundaries are preserved so that a replay exercises the same
// fragmentation the live stream had.
package replay

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Record struct {
	At   time.Duration
	Data []byte // nil for a START marker
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("capture line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (Record, error) {
	tsStr, hexStr, ok := strings.Cut(line, ",")
	if !ok {
		return Record{}, fmt.Errorf("missing comma: %q", line)
	}
	tsStr = strings.TrimSpace(tsStr)
	hexStr = strings.ReplaceAll(strings.TrimSpace(hexStr), " ", "")
	if tsStr == "" || hexStr == "" {
		return Record{}, fmt.Errorf("empty field: %q", line)
	}

	tsNs, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp %q: %w", tsStr, err)
	}
	if tsNs < 0 {
		return Record{}, fmt.Errorf("negative timestamp %d", tsNs)
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return Record{}, fmt.Errorf("invalid hex: %w", err)
	}
	return Record{At: time.Duration(tsNs), Data: b}, nil
}

// LoadFile reads a whole capture file.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// Writer appends chunks to a capture. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	c      io.Closer
	w      *bufio.Writer
	start  time.Time
	chunks uint64
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, time.Now())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter starts a capture on wc with its origin at start.
func NewWriter(wc io.WriteCloser, start time.Time) (*Writer, error) {
	bw := bufio.NewWriterSize(wc, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		return nil, err
	}
	return &Writer{c: wc, w: bw, start: start}, nil
}

func (ww *Writer) WriteChunk(now time.Time, data []byte) error {
	if len(data) == 0 {
		return errors.New("chunk is empty")
	}
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("capture writer is closed")
	}

	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	if _, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), hex.EncodeToString(data)); err != nil {
		return err
	}
	ww.chunks++
	return nil
}

// Chunks is the number of chunks written so far.
func (ww *Writer) Chunks() uint64 {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	return ww.chunks
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.c.Close()
		return err
	}
	return ww.c.Close()
}

// ErrNoData is returned by Play for a capture holding only START markers,
// as left behind by a recording that never saw a chunk.
var ErrNoData = errors.New("capture has no data records")

func hasData(records []Record) bool {
	for _, r := range records {
		if r.Data != nil {
			return true
		}
	}
	return false
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play hands each data record to cb, waiting between records as they were
// spaced in the capture. START markers reset the origin.
//
// speedMultiplier: 1.0 = real time, 2.0 = twice as fast. Returning an error
// from cb stops playback with that error.
func Play(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(data []byte) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}
	if !hasData(records) {
		return ErrNoData
	}

	for {
		var origin, lastAt time.Duration
		haveLast := false

		for _, r := range records {
			if r.Data == nil {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			at := max(r.At-origin, 0)
			if haveLast {
				if wait := time.Duration(float64(max(at-lastAt, 0)) / speedMultiplier); wait > 0 {
					sleeper.Sleep(wait)
				}
			}
			if err := cb(r.Data); err != nil {
				return err
			}
			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}
