package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/flynnfc/clocksync/internal/tracing"
	"github.com/flynnfc/clocksync/internal/truetime"
	"github.com/flynnfc/clocksync/logger"
	"gopkg.in/yaml.v3"
)

// Config holds the clocksync server settings.
type Config struct {
	HTTP    HTTPConfig     `yaml:"http"`
	GRPC    GRPCConfig     `yaml:"grpc"`
	NTP     NTPConfig      `yaml:"ntp"`
	Stream  StreamConfig   `yaml:"stream"`
	Log     logger.Config  `yaml:"log"`
	Trace   tracing.Config `yaml:"trace"`
	Journal JournalConfig  `yaml:"journal"`
	MDNS    MDNSConfig     `yaml:"mdns"`
	// PprofAddr serves net/http/pprof when set.
	PprofAddr string `yaml:"pprof_addr"`
}

// HTTPConfig is the listen address of the HTTP server.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr is the listen address.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GRPCConfig controls the gRPC TimeService. It listens on the HTTP host.
type GRPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// NTPConfig selects the authoritative source and the sync schedule.
type NTPConfig struct {
	Server       string        `yaml:"server"`
	Timeout      time.Duration `yaml:"timeout"`
	Interval     time.Duration `yaml:"interval"`
	DriftWarning time.Duration `yaml:"drift_warning"`
}

// StreamConfig sets the push period of the websocket time stream.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// JournalConfig enables the observation journal in Dir.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// MDNSConfig advertises the server on the local network as Instance.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Host: "0.0.0.0", Port: 8080},
		GRPC: GRPCConfig{Enabled: true, Port: 8081},
		NTP: NTPConfig{
			Server:       truetime.DefaultServer,
			Timeout:      truetime.DefaultTimeout,
			Interval:     truetime.DefaultInterval,
			DriftWarning: truetime.DefaultDriftWarning,
		},
		Stream:  StreamConfig{Interval: time.Second},
		Log:     logger.Config{Name: "clocksync", Dir: "logs", Level: "info"},
		Trace:   tracing.Config{File: "logs/traces.log"},
		Journal: JournalConfig{Dir: "_journal"},
		MDNS:    MDNSConfig{Instance: "clocksync"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// ApplyEnv overrides fields from environment variables. lookup is
// os.LookupEnv outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	var errs []error
	num := func(dst *int, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", k, err))
					return
				}
				*dst = n
				return
			}
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str(&c.HTTP.Host, "CLOCKSYNC_HOST", "HOST")
	num(&c.HTTP.Port, "CLOCKSYNC_PORT", "PORT")
	num(&c.GRPC.Port, "CLOCKSYNC_GRPC_PORT")
	str(&c.NTP.Server, "CLOCKSYNC_NTP_SERVER")
	dur(&c.NTP.Interval, "CLOCKSYNC_SYNC_INTERVAL")
	dur(&c.NTP.Timeout, "CLOCKSYNC_SYNC_TIMEOUT")
	str(&c.Log.Level, "CLOCKSYNC_LOG_LEVEL")
	str(&c.Log.Dir, "CLOCKSYNC_LOG_DIR")
	return errors.Join(errs...)
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.GRPC.Enabled && (c.GRPC.Port < 0 || c.GRPC.Port > 65535) {
		errs = append(errs, fmt.Errorf("grpc.port %d out of range", c.GRPC.Port))
	}
	if c.NTP.Server == "" {
		errs = append(errs, errors.New("ntp.server is required"))
	}
	if c.NTP.Interval <= 0 {
		errs = append(errs, fmt.Errorf("ntp.interval must be positive, got %v", c.NTP.Interval))
	}
	if c.NTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ntp.timeout must be positive, got %v", c.NTP.Timeout))
	}
	if c.NTP.Timeout >= c.NTP.Interval {
		errs = append(errs, fmt.Errorf("ntp.timeout %v must be shorter than ntp.interval %v", c.NTP.Timeout, c.NTP.Interval))
	}
	if c.Stream.Interval <= 0 {
		errs = append(errs, fmt.Errorf("stream.interval must be positive, got %v", c.Stream.Interval))
	}
	return errors.Join(errs...)
}
