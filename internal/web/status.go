package web

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"spartn-relay/internal/receiver"
	"spartn-relay/internal/relay"
	"spartn-relay/internal/source"
)

// Providers supply live snapshots to the status endpoint. Any may be nil.
type Providers struct {
	Source func(nowUTC time.Time) source.Snapshot
	Relay  func() relay.Snapshot
	Sinks  func() []receiver.Snapshot
}

type Status struct {
	startUnixNano int64
	mode          atomic.Value // string
	providers     atomic.Value // Providers
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.mode.Store("")
	s.providers.Store(Providers{})
	return s
}

func (s *Status) SetMode(mode string) { s.mode.Store(mode) }

func (s *Status) SetProviders(p Providers) { s.providers.Store(p) }

type StatusSnapshot struct {
	Service   string `json:"service"`
	Version   string `json:"version,omitempty"`
	GoVersion string `json:"go_version"`
	NowUTC    string `json:"now_utc"`
	UptimeSec int64  `json:"uptime_sec"`
	Mode      string `json:"mode"`

	Source *source.Snapshot    `json:"source,omitempty"`
	Relay  *relay.Snapshot     `json:"relay,omitempty"`
	Sinks  []receiver.Snapshot `json:"sinks"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "spartn-relay",
		Version:   moduleVersion(),
		GoVersion: runtime.Version(),
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Mode:      s.mode.Load().(string),
		Sinks:     []receiver.Snapshot{},
	}
	p := s.providers.Load().(Providers)
	if p.Source != nil {
		src := p.Source(nowUTC)
		snap.Source = &src
	}
	if p.Relay != nil {
		r := p.Relay()
		snap.Relay = &r
	}
	if p.Sinks != nil {
		snap.Sinks = append(snap.Sinks, p.Sinks()...)
	}
	return snap
}

// LastMessageAge is the time since the relay last forwarded a message, or
// false if it never has.
func (s StatusSnapshot) LastMessageAge(nowUTC time.Time) (time.Duration, bool) {
	if s.Relay == nil || s.Relay.LastMessageUTC == "" {
		return 0, false
	}
	at, err := time.Parse(time.RFC3339Nano, s.Relay.LastMessageUTC)
	if err != nil {
		return 0, false
	}
	return nowUTC.Sub(at), true
}

func moduleVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return ""
	}
	v := bi.Main.Version
	for _, st := range bi.Settings {
		if st.Key == "vcs.revision" && len(st.Value) >= 12 {
			v += " " + st.Value[:12]
		}
	}
	return v
}
