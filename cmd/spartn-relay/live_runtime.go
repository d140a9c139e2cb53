package main

import (
	"fmt"
	"log"

	"spartn-relay/internal/config"
	"spartn-relay/internal/receiver"
	"spartn-relay/internal/relay"
	"spartn-relay/internal/replay"
	"spartn-relay/internal/sim"
	"spartn-relay/internal/source"
	"spartn-relay/internal/udp"
	"spartn-relay/internal/web"
)

// statusSink is a sink that can report delivery counters.
type statusSink interface {
	receiver.Sink
	Snapshot() receiver.Snapshot
}

type liveRuntime struct {
	src      source.Source
	relay    *relay.Relay
	sinks    []statusSink
	recorder *replay.Writer
}

func newLiveRuntime(cfg config.Config) (*liveRuntime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}

	rt := &liveRuntime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	sinks, err := buildSinks(c)
	if err != nil {
		return nil, err
	}
	rt.sinks = sinks

	rc := relay.Config{Encapsulation: c.Source.Encapsulation}
	if c.Record.Enable {
		w, err := replay.CreateWriter(c.Record.Path)
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		rt.recorder = w
		rc.Recorder = w
		log.Printf("recording source bytes to %s", c.Record.Path)
	}

	plain := make([]receiver.Sink, 0, len(sinks))
	for _, s := range sinks {
		plain = append(plain, s)
	}
	rt.relay, err = relay.New(rc, plain...)
	if err != nil {
		return nil, err
	}

	src, err := buildSource(c.Source)
	if err != nil {
		return nil, err
	}
	rt.src = src
	ok = true
	return rt, nil
}

func buildSource(sc config.SourceConfig) (source.Source, error) {
	switch sc.Type {
	case "serial":
		return source.NewSerial(source.SerialConfig{
			Device:      sc.Serial.Device,
			Baud:        sc.Serial.Baud,
			ReopenDelay: sc.Serial.ReopenDelay,
		})
	case "tcp":
		return source.NewTCP(source.TCPConfig{
			Addr:           sc.TCP.Addr,
			ReconnectDelay: sc.TCP.ReconnectDelay,
			IdleTimeout:    sc.TCP.IdleTimeout,
		})
	case "replay":
		return source.NewReplay(source.ReplayConfig{
			Path:  sc.Replay.Path,
			Speed: sc.Replay.Speed,
			Loop:  sc.Replay.Loop,
		})
	case "sim":
		script := sim.DefaultScript()
		if sc.Sim.Script != "" {
			s, err := sim.LoadScript(sc.Sim.Script)
			if err != nil {
				return nil, err
			}
			script = s
		}
		return source.NewSim(source.SimConfig{
			Script: script,
			Tick:   sc.Sim.Tick,
			UBX:    sc.Encapsulation == relay.EncapUBX,
		})
	default:
		return nil, fmt.Errorf("unsupported source type %q", sc.Type)
	}
}

func buildSinks(c config.Config) ([]statusSink, error) {
	var out []statusSink
	fail := func(err error) ([]statusSink, error) {
		for _, s := range out {
			_ = s.Close()
		}
		return nil, err
	}

	if rs := c.Receiver.Serial; rs.Enable {
		s, err := receiver.NewSerial(receiver.SerialConfig{
			Device:     rs.Device,
			Baud:       rs.Baud,
			RetryDelay: rs.RetryDelay,
		})
		if err != nil {
			return fail(fmt.Errorf("receiver serial: %w", err))
		}
		out = append(out, s)
	}
	if ri := c.Receiver.I2C; ri.Enable {
		s, err := receiver.NewI2C(receiver.I2CConfig{
			Bus:       ri.Bus,
			Addr:      uint16(ri.Addr),
			Driver:    ri.Driver,
			ChunkSize: ri.ChunkSize,
		})
		if err != nil {
			return fail(fmt.Errorf("receiver i2c: %w", err))
		}
		out = append(out, s)
	}
	if c.UDP.Enable {
		for _, dest := range c.UDP.Dest {
			b, err := udp.NewBroadcaster(dest)
			if err != nil {
				return fail(fmt.Errorf("udp %s: %w", dest, err))
			}
			out = append(out, b)
		}
	}
	return out, nil
}

func (rt *liveRuntime) providers() web.Providers {
	return web.Providers{
		Source: rt.src.Snapshot,
		Relay:  rt.relay.Snapshot,
		Sinks: func() []receiver.Snapshot {
			out := make([]receiver.Snapshot, 0, len(rt.sinks))
			for _, s := range rt.sinks {
				out = append(out, s.Snapshot())
			}
			return out
		},
	}
}

// Close stops the source first so no chunk reaches a closed sink.
func (rt *liveRuntime) Close() {
	if rt.src != nil {
		rt.src.Close()
	}
	if rt.relay != nil {
		if err := rt.relay.Close(); err != nil {
			log.Printf("%v", err)
		}
	} else {
		for _, s := range rt.sinks {
			_ = s.Close()
		}
	}
	if rt.recorder != nil {
		if err := rt.recorder.Close(); err != nil {
			log.Printf("record close: %v", err)
		}
	}
}
