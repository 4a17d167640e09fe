// Package config loads the daemon's on-disk configuration (discovery
// broadcast address, discovery timeouts, echo/coalescing windows, latency ring
// size), the same `gopkg.in/yaml.v3`-backed shape the teacher loads
// `tocalls.yaml` and its channel config with (deviceid.go, config.go),
// generalized from AX.25 channel tables to this bridge's component
// timing knobs (SPEC_FULL.md §3 "Configuration").
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from the human-friendly
// strings time.ParseDuration accepts ("50ms", "2s"), since time.Duration
// itself has no such UnmarshalYAML and yaml.v3 would otherwise require
// the raw nanosecond integer on the wire.
type Duration time.Duration

// Std returns d as a time.Duration, for handing to collaborators that
// take the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts either a duration string ("50ms") or a bare
// integer (nanoseconds), so existing nanosecond-valued config files keep
// working alongside the human-friendly form.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"50ms\" or an integer of nanoseconds")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full on-disk daemon configuration. Every duration field
// is a Duration, parsed from YAML strings like "50ms" (Duration's own
// UnmarshalYAML), falling back to its component's spec default when
// zero.
type Config struct {
	ClientIdentity string     `yaml:"client_identity"`
	Logging        Logging    `yaml:"logging"`
	Discovery      Discovery  `yaml:"discovery"`
	Session        Session    `yaml:"session"`
	SyncEngine     SyncEngine `yaml:"sync_engine"`
	Learn          Learn      `yaml:"learn"`
}

// Logging configures the charmbracelet/log sink (SPEC_FULL.md §3
// "Logging").
type Logging struct {
	Level string `yaml:"level"` // debug|info|warn|error, default info
	// TimestampFormat is an strftime(3) format string applied to
	// diagnostic/latency snapshot timestamps, the same knob the
	// teacher's kissutil.go exposes via `--timestamp-format` (one of
	// the only two real strftime call sites in the pack).
	TimestampFormat string `yaml:"timestamp_format"`
}

// Discovery configures C2 (§4.2).
type Discovery struct {
	BroadcastAddr       string   `yaml:"broadcast_addr"`
	BroadcastPort       int      `yaml:"broadcast_port"`
	QueryWindow         Duration `yaml:"query_window"`
	IgnoreModelPrefixes []string `yaml:"ignore_model_prefixes"`
	USBVendorID         string   `yaml:"usb_vendor_id"`
	USBProductAllowList []string `yaml:"usb_product_allow_list"`
	ScanInterval        Duration `yaml:"scan_interval"`
}

// Session configures C3 (§4.3, SPEC_FULL.md C3 supplement).
type Session struct {
	DialTimeout       Duration `yaml:"dial_timeout"`
	HandshakeTimeout  Duration `yaml:"handshake_timeout"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  Duration `yaml:"heartbeat_timeout"`
	ReconnectBackoff  Duration `yaml:"reconnect_backoff"`
}

// SyncEngine configures C9 (§4.9, §9 "must be configurable").
type SyncEngine struct {
	EchoWindow     Duration `yaml:"echo_window"`
	CoalesceWindow Duration `yaml:"coalesce_window"`
	SweepInterval  Duration `yaml:"sweep_interval"`
	ShadowMaxAge   Duration `yaml:"shadow_max_age"`
	RingCapacity   int      `yaml:"ring_capacity"`
}

// Learn configures C8 (§4.8).
type Learn struct {
	Timeout Duration `yaml:"timeout"`
}

// Default returns the spec's documented defaults (DESIGN.md "Default
// windows"), used both as Load's fallback and as the zero-config
// starting point for tests.
func Default() Config {
	return Config{
		ClientIdentity: "ucpbridge",
		Logging: Logging{
			Level:           "info",
			TimestampFormat: "%Y-%m-%d %H:%M:%S",
		},
		Discovery: Discovery{
			BroadcastPort: 47809,
			QueryWindow:   Duration(2 * time.Second),
			ScanInterval:  Duration(30 * time.Second),
		},
		Session: Session{
			DialTimeout:       Duration(5 * time.Second),
			HandshakeTimeout:  Duration(10 * time.Second),
			HeartbeatInterval: Duration(1500 * time.Millisecond),
			HeartbeatTimeout:  Duration(5 * time.Second),
			ReconnectBackoff:  Duration(5 * time.Second),
		},
		SyncEngine: SyncEngine{
			EchoWindow:     Duration(50 * time.Millisecond),
			CoalesceWindow: Duration(40 * time.Millisecond),
			SweepInterval:  Duration(5 * time.Second),
			ShadowMaxAge:   Duration(5 * time.Second),
			RingCapacity:   1000,
		},
		Learn: Learn{Timeout: Duration(10 * time.Second)},
	}
}

// Load reads and parses a YAML config file, filling any field the file
// omits (or sets to its zero value) with Default()'s value.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// applyDefaults restores any duration/capacity field Load zeroed out by
// unmarshaling over Default() with an absent YAML key (yaml.v3 only
// overwrites keys actually present, so this only matters for explicit
// `key: 0`/`key: ""` entries, not missing ones — kept anyway as a single
// place every component's fallback is documented).
func applyDefaults(cfg *Config) {
	d := Default()

	if cfg.ClientIdentity == "" {
		cfg.ClientIdentity = d.ClientIdentity
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.TimestampFormat == "" {
		cfg.Logging.TimestampFormat = d.Logging.TimestampFormat
	}
	if cfg.Discovery.BroadcastPort == 0 {
		cfg.Discovery.BroadcastPort = d.Discovery.BroadcastPort
	}
	if cfg.Discovery.QueryWindow == 0 {
		cfg.Discovery.QueryWindow = d.Discovery.QueryWindow
	}
	if cfg.Discovery.ScanInterval == 0 {
		cfg.Discovery.ScanInterval = d.Discovery.ScanInterval
	}
	if cfg.Session.DialTimeout == 0 {
		cfg.Session.DialTimeout = d.Session.DialTimeout
	}
	if cfg.Session.HandshakeTimeout == 0 {
		cfg.Session.HandshakeTimeout = d.Session.HandshakeTimeout
	}
	if cfg.Session.HeartbeatInterval == 0 {
		cfg.Session.HeartbeatInterval = d.Session.HeartbeatInterval
	}
	if cfg.Session.HeartbeatTimeout == 0 {
		cfg.Session.HeartbeatTimeout = d.Session.HeartbeatTimeout
	}
	if cfg.Session.ReconnectBackoff == 0 {
		cfg.Session.ReconnectBackoff = d.Session.ReconnectBackoff
	}
	if cfg.SyncEngine.EchoWindow == 0 {
		cfg.SyncEngine.EchoWindow = d.SyncEngine.EchoWindow
	}
	if cfg.SyncEngine.CoalesceWindow == 0 {
		cfg.SyncEngine.CoalesceWindow = d.SyncEngine.CoalesceWindow
	}
	if cfg.SyncEngine.SweepInterval == 0 {
		cfg.SyncEngine.SweepInterval = d.SyncEngine.SweepInterval
	}
	if cfg.SyncEngine.ShadowMaxAge == 0 {
		cfg.SyncEngine.ShadowMaxAge = d.SyncEngine.ShadowMaxAge
	}
	if cfg.SyncEngine.RingCapacity == 0 {
		cfg.SyncEngine.RingCapacity = d.SyncEngine.RingCapacity
	}
	if cfg.Learn.Timeout == 0 {
		cfg.Learn.Timeout = d.Learn.Timeout
	}
}
