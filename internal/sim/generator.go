// Package sim generates synthetic SPARTN correction streams for bench
// testing without a correction receiver.
package sim

import (
	"math/rand"
	"time"

	"spartn-relay/internal/spartn"
)

type Stats struct {
	Messages   uint64 `json:"messages"`
	Corrupted  uint64 `json:"corrupted"`
	NoiseBytes uint64 `json:"noise_bytes"`
}

// Generator emits the messages of a Script as simulated time advances.
// Output is a pure function of the script and the Advance calls made.
type Generator struct {
	script  Script
	crcs    []spartn.CRCType
	rng     *rand.Rand
	due     []time.Duration
	seq     uint8
	stats   Stats
	payload []byte
}

func NewGenerator(s Script) (*Generator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	g := &Generator{
		script:  s,
		crcs:    make([]spartn.CRCType, len(s.Messages)),
		rng:     rand.New(rand.NewSource(s.Seed)),
		due:     make([]time.Duration, len(s.Messages)),
		payload: make([]byte, spartn.MaxPayloadLength),
	}
	for i, m := range s.Messages {
		g.crcs[i], _ = parseCRC(m.CRC)
		g.due[i] = m.Offset
	}
	return g, nil
}

// Advance returns every message due at or before elapsed, in time order,
// each preceded by up to NoiseBytes of filler.
func (g *Generator) Advance(elapsed time.Duration) []byte {
	var out []byte
	for {
		idx := -1
		for i, d := range g.due {
			if d <= elapsed && (idx < 0 || d < g.due[idx]) {
				idx = i
			}
		}
		if idx < 0 {
			return out
		}
		out = g.appendMessage(out, idx, g.due[idx])
		g.due[idx] += g.script.Messages[idx].Period
	}
}

func (g *Generator) Stats() Stats { return g.stats }

func (g *Generator) appendMessage(out []byte, idx int, at time.Duration) []byte {
	m := g.script.Messages[idx]

	if g.script.NoiseBytes > 0 {
		n := g.rng.Intn(g.script.NoiseBytes + 1)
		start := len(out)
		out = append(out, make([]byte, n)...)
		g.rng.Read(out[start:])
		g.stats.NoiseBytes += uint64(n)
	}

	payload := g.payload[:m.PayloadLen]
	g.rng.Read(payload)

	tag := uint32(at / time.Second)
	if !m.TimeTag32 {
		tag &= 0xFFFF
	}
	h := spartn.Header{
		MessageType: m.Type,
		CRCType:     g.crcs[idx],
		SubType:     m.SubType,
		TimeTag32:   m.TimeTag32,
		TimeTag:     tag,
		SolutionID:  m.SolutionID,
		ProcessorID: m.ProcessorID,
		Encrypted:   m.Encrypted,
	}
	if m.Encrypted {
		h.EncryptionID = 1
		h.SequenceNumber = g.seq & 0x3F
		g.seq++
	}

	start := len(out)
	out, err := h.Append(out, payload, nil)
	if err != nil {
		// Validate bounds every field Append checks.
		panic(err)
	}
	g.stats.Messages++

	if k := g.script.CorruptEvery; k > 0 && g.stats.Messages%uint64(k) == 0 {
		out[start+h.HeaderLength()] ^= 0xFF
		g.stats.Corrupted++
	}
	return out
}
