package sim

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"spartn-relay/internal/spartn"
)

// Script describes a synthetic correction stream.
//
// YAML schema (v1):
//
//	version: 1
//	seed: 1
//	noise_bytes: 16      # up to this many filler bytes before each message
//	corrupt_every: 0     # flip a payload byte in every Nth message, 0 = never
//	messages:
//	  - type: 0
//	    subtype: 0
//	    crc: crc24
//	    payload_len: 400
//	    period: 5s
//	    time_tag_32: true
//	    encrypted: false
//	    solution_id: 1
//
// Keep this struct stable: scripts are test fixtures.
type Script struct {
	Version      int            `yaml:"version"`
	Seed         int64          `yaml:"seed"`
	NoiseBytes   int            `yaml:"noise_bytes"`
	CorruptEvery int            `yaml:"corrupt_every"`
	Messages     []ScriptStream `yaml:"messages"`
}

// ScriptStream is one periodic message type in a Script.
type ScriptStream struct {
	Type        uint8         `yaml:"type"`
	SubType     uint8         `yaml:"subtype"`
	CRC         string        `yaml:"crc"`
	PayloadLen  int           `yaml:"payload_len"`
	Period      time.Duration `yaml:"period"`
	Offset      time.Duration `yaml:"offset"`
	TimeTag32   bool          `yaml:"time_tag_32"`
	Encrypted   bool          `yaml:"encrypted"`
	SolutionID  uint8         `yaml:"solution_id"`
	ProcessorID uint8         `yaml:"processor_id"`
}

// DefaultScript approximates the mix a PointPerfect L-band service sends for
// one region: per-constellation OCB every 5s, HPAC and GAD every 30s.
func DefaultScript() Script {
	return Script{
		Version:    1,
		Seed:       1,
		NoiseBytes: 8,
		Messages: []ScriptStream{
			{Type: spartn.TypeOCB, SubType: 0, CRC: "crc24", PayloadLen: 420, Period: 5 * time.Second, TimeTag32: true, SolutionID: 1},
			{Type: spartn.TypeOCB, SubType: 1, CRC: "crc24", PayloadLen: 300, Period: 5 * time.Second, TimeTag32: true, SolutionID: 1},
			{Type: spartn.TypeOCB, SubType: 2, CRC: "crc24", PayloadLen: 380, Period: 5 * time.Second, TimeTag32: true, SolutionID: 1},
			{Type: spartn.TypeHPAC, SubType: 0, CRC: "crc24", PayloadLen: 900, Period: 30 * time.Second, Offset: time.Second, TimeTag32: true, SolutionID: 1},
			{Type: spartn.TypeGAD, SubType: 0, CRC: "crc16", PayloadLen: 60, Period: 30 * time.Second, Offset: 2 * time.Second, SolutionID: 1},
		},
	}
}

func ParseScriptYAML(b []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Script{}, fmt.Errorf("parse sim script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}

func LoadScript(path string) (Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read sim script: %w", err)
	}
	return ParseScriptYAML(b)
}

func (s Script) Validate() error {
	if s.Version != 1 {
		return fmt.Errorf("sim script version must be 1 (got %d)", s.Version)
	}
	if s.NoiseBytes < 0 {
		return fmt.Errorf("sim script noise_bytes must be >= 0")
	}
	if s.CorruptEvery < 0 {
		return fmt.Errorf("sim script corrupt_every must be >= 0")
	}
	if len(s.Messages) == 0 {
		return fmt.Errorf("sim script has no messages")
	}
	for i, m := range s.Messages {
		if _, err := parseCRC(m.CRC); err != nil {
			return fmt.Errorf("sim script messages[%d]: %w", i, err)
		}
		if m.PayloadLen < 1 || m.PayloadLen > spartn.MaxPayloadLength {
			return fmt.Errorf("sim script messages[%d]: payload_len must be 1..%d", i, spartn.MaxPayloadLength)
		}
		if m.Period <= 0 {
			return fmt.Errorf("sim script messages[%d]: period must be > 0", i)
		}
		if m.Offset < 0 {
			return fmt.Errorf("sim script messages[%d]: offset must be >= 0", i)
		}
		if m.Type > 127 || m.SubType > 15 || m.SolutionID > 127 || m.ProcessorID > 15 {
			return fmt.Errorf("sim script messages[%d]: field out of range", i)
		}
	}
	return nil
}

// parseCRC defaults an empty crc to crc24, the type L-band services use.
func parseCRC(s string) (spartn.CRCType, error) {
	if strings.TrimSpace(s) == "" {
		return spartn.CRCType24, nil
	}
	return spartn.ParseCRCType(s)
}
