package spartn

// bitReader extracts MSB-first bit fields that may straddle byte boundaries.
// Callers check the available length up front; reading past the end panics.
type bitReader struct {
	buf []byte
	pos int // in bits
}

func newBitReader(buf []byte) *bitReader {
	return &bitReader{buf: buf}
}

// read returns the next n (<= 32) bits as an unsigned value.
func (r *bitReader) read(n int) uint32 {
	var v uint32
	for n > 0 {
		b := r.buf[r.pos>>3]
		used := r.pos & 7
		avail := 8 - used
		take := avail
		if take > n {
			take = n
		}
		chunk := (b >> (avail - take)) & (0xFF >> (8 - take))
		v = v<<take | uint32(chunk)
		r.pos += take
		n -= take
	}
	return v
}

func (r *bitReader) bool() bool { return r.read(1) == 1 }

// bitWriter is the inverse of bitReader, used when encoding headers.
type bitWriter struct {
	buf []byte
	pos int // in bits
}

func (w *bitWriter) write(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.pos&7 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>i&1 == 1 {
			w.buf[len(w.buf)-1] |= 0x80 >> (w.pos & 7)
		}
		w.pos++
	}
}

func (w *bitWriter) bool(b bool) {
	if b {
		w.write(1, 1)
		return
	}
	w.write(0, 1)
}

func (w *bitWriter) bytes() []byte { return w.buf }
