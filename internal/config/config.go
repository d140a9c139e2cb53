package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Receiver ReceiverConfig `yaml:"receiver"`
	UDP      UDPConfig      `yaml:"udp"`
	Record   RecordConfig   `yaml:"record"`
	Web      WebConfig      `yaml:"web"`
}

type SourceConfig struct {
	// Type is serial, tcp, replay or sim.
	Type string `yaml:"type"`
	// Encapsulation is raw (bare SPARTN) or ubx (RXM-PMP frames). Defaults to
	// ubx for serial, since L-band receivers emit PMP, and raw otherwise.
	Encapsulation string `yaml:"encapsulation"`

	Serial SerialSourceConfig `yaml:"serial"`
	TCP    TCPSourceConfig    `yaml:"tcp"`
	Replay ReplaySourceConfig `yaml:"replay"`
	Sim    SimSourceConfig    `yaml:"sim"`
}

type SerialSourceConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReopenDelay time.Duration `yaml:"reopen_delay"`
}

type TCPSourceConfig struct {
	Addr           string        `yaml:"addr"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
}

type ReplaySourceConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type SimSourceConfig struct {
	// Script is a sim script YAML file; empty uses the built-in mix.
	Script string        `yaml:"script"`
	Tick   time.Duration `yaml:"tick"`
}

type ReceiverConfig struct {
	Serial ReceiverSerialConfig `yaml:"serial"`
	I2C    ReceiverI2CConfig    `yaml:"i2c"`
}

type ReceiverSerialConfig struct {
	Enable     bool          `yaml:"enable"`
	Device     string        `yaml:"device"`
	Baud       int           `yaml:"baud"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type ReceiverI2CConfig struct {
	Enable    bool   `yaml:"enable"`
	Bus       string `yaml:"bus"`
	Addr      int    `yaml:"addr"`
	Driver    string `yaml:"driver"`
	ChunkSize int    `yaml:"chunk_size"`
}

type UDPConfig struct {
	Enable bool     `yaml:"enable"`
	Dest   []string `yaml:"dest"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type WebConfig struct {
	Enable     bool          `yaml:"enable"`
	Listen     string        `yaml:"listen"`
	StaleAfter time.Duration `yaml:"stale_after"`
	LogLines   int           `yaml:"log_lines"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills in defaults and rejects inconsistent settings.
func DefaultAndValidate(cfg *Config) error {
	src := &cfg.Source
	src.Type = strings.ToLower(strings.TrimSpace(src.Type))
	if src.Type == "" {
		src.Type = "serial"
	}
	src.Encapsulation = strings.ToLower(strings.TrimSpace(src.Encapsulation))
	if src.Encapsulation == "" {
		src.Encapsulation = "raw"
		if src.Type == "serial" {
			src.Encapsulation = "ubx"
		}
	}
	if src.Encapsulation != "raw" && src.Encapsulation != "ubx" {
		return fmt.Errorf("source.encapsulation must be 'raw' or 'ubx'")
	}

	switch src.Type {
	case "serial":
		if strings.TrimSpace(src.Serial.Device) == "" {
			return fmt.Errorf("source.serial.device is required when source.type is 'serial'")
		}
		if src.Serial.Baud == 0 {
			src.Serial.Baud = 38400
		}
		if src.Serial.Baud < 0 {
			return fmt.Errorf("source.serial.baud must be > 0")
		}
		if src.Serial.ReopenDelay <= 0 {
			src.Serial.ReopenDelay = 2 * time.Second
		}
	case "tcp":
		if strings.TrimSpace(src.TCP.Addr) == "" {
			return fmt.Errorf("source.tcp.addr is required when source.type is 'tcp'")
		}
		if src.TCP.ReconnectDelay <= 0 {
			src.TCP.ReconnectDelay = 2 * time.Second
		}
		if src.TCP.IdleTimeout < 0 {
			return fmt.Errorf("source.tcp.idle_timeout must be >= 0")
		}
	case "replay":
		if strings.TrimSpace(src.Replay.Path) == "" {
			return fmt.Errorf("source.replay.path is required when source.type is 'replay'")
		}
		if src.Replay.Speed == 0 {
			src.Replay.Speed = 1
		}
		if src.Replay.Speed < 0 {
			return fmt.Errorf("source.replay.speed must be > 0")
		}
	case "sim":
		if src.Sim.Tick <= 0 {
			src.Sim.Tick = time.Second
		}
	default:
		return fmt.Errorf("source.type must be one of serial, tcp, replay, sim (got %q)", src.Type)
	}

	if cfg.Record.Enable {
		if strings.TrimSpace(cfg.Record.Path) == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
		if src.Type == "replay" {
			return fmt.Errorf("record cannot be used with source.type 'replay'")
		}
	}

	rs := &cfg.Receiver.Serial
	if rs.Enable {
		if strings.TrimSpace(rs.Device) == "" {
			return fmt.Errorf("receiver.serial.device is required when receiver.serial.enable is true")
		}
		if src.Type == "serial" && rs.Device == src.Serial.Device {
			return fmt.Errorf("receiver.serial.device must differ from source.serial.device")
		}
		if rs.Baud == 0 {
			rs.Baud = 38400
		}
		if rs.Baud < 0 {
			return fmt.Errorf("receiver.serial.baud must be > 0")
		}
		if rs.RetryDelay <= 0 {
			rs.RetryDelay = 5 * time.Second
		}
	}

	ri := &cfg.Receiver.I2C
	if ri.Enable {
		if strings.TrimSpace(ri.Bus) == "" {
			return fmt.Errorf("receiver.i2c.bus is required when receiver.i2c.enable is true")
		}
		if ri.Addr == 0 {
			ri.Addr = 0x42
		}
		if ri.Addr < 1 || ri.Addr > 0x7F {
			return fmt.Errorf("receiver.i2c.addr must be in [1,127]")
		}
		ri.Driver = strings.ToLower(strings.TrimSpace(ri.Driver))
		if ri.Driver == "" {
			ri.Driver = "periph"
		}
		if ri.Driver != "periph" && ri.Driver != "ioctl" {
			return fmt.Errorf("receiver.i2c.driver must be 'periph' or 'ioctl'")
		}
		if ri.ChunkSize == 0 {
			ri.ChunkSize = 64
		}
		if ri.ChunkSize < 2 || ri.ChunkSize > 255 {
			return fmt.Errorf("receiver.i2c.chunk_size must be in [2,255]")
		}
	}

	if cfg.UDP.Enable {
		if len(cfg.UDP.Dest) == 0 {
			return fmt.Errorf("udp.dest is required when udp.enable is true")
		}
		for i, d := range cfg.UDP.Dest {
			if strings.TrimSpace(d) == "" {
				return fmt.Errorf("udp.dest[%d] is empty", i)
			}
		}
	}

	if cfg.Web.Enable {
		if cfg.Web.Listen == "" {
			cfg.Web.Listen = ":8080"
		}
		if cfg.Web.StaleAfter == 0 {
			cfg.Web.StaleAfter = 2 * time.Minute
		}
		if cfg.Web.StaleAfter < 0 {
			return fmt.Errorf("web.stale_after must be >= 0")
		}
	}
	if cfg.Web.LogLines <= 0 {
		cfg.Web.LogLines = 2000
	}
	return nil
}
