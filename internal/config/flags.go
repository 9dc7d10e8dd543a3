package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags are the command line overrides for the server. Only flags the user
// actually set are applied, so they win over file and environment values
// without clobbering them with defaults.
type Flags struct {
	fs *pflag.FlagSet

	ConfigPath string
	host       string
	port       int
	grpcPort   int
	ntpServer  string
	interval   time.Duration
	logLevel   string
	console    bool
	journal    bool
	mdns       bool
	trace      bool
}

// NewFlags registers the server flags on a new flag set.
func NewFlags(name string) *Flags {
	d := Default()
	f := &Flags{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	f.fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to a YAML config file")
	f.fs.StringVar(&f.host, "host", d.HTTP.Host, "HTTP listen host")
	f.fs.IntVarP(&f.port, "port", "p", d.HTTP.Port, "HTTP listen port")
	f.fs.IntVar(&f.grpcPort, "grpc-port", d.GRPC.Port, "gRPC listen port")
	f.fs.StringVar(&f.ntpServer, "ntp-server", d.NTP.Server, "authoritative NTP server")
	f.fs.DurationVar(&f.interval, "sync-interval", d.NTP.Interval, "time between syncs")
	f.fs.StringVar(&f.logLevel, "log-level", d.Log.Level, "log level")
	f.fs.BoolVar(&f.console, "console", false, "also log to stderr")
	f.fs.BoolVar(&f.journal, "journal", false, "record observations in the journal")
	f.fs.BoolVar(&f.mdns, "mdns", false, "advertise the server over mDNS")
	f.fs.BoolVar(&f.trace, "trace", false, "export sync spans")
	return f
}

// FlagSet exposes the underlying set, e.g. for usage output.
func (f *Flags) FlagSet() *pflag.FlagSet { return f.fs }

// Parse parses args (without the program name).
func (f *Flags) Parse(args []string) error {
	return f.fs.Parse(args)
}

// Apply copies explicitly set flags into c.
func (f *Flags) Apply(c *Config) {
	if f.fs.Changed("host") {
		c.HTTP.Host = f.host
	}
	if f.fs.Changed("port") {
		c.HTTP.Port = f.port
	}
	if f.fs.Changed("grpc-port") {
		c.GRPC.Port = f.grpcPort
	}
	if f.fs.Changed("ntp-server") {
		c.NTP.Server = f.ntpServer
	}
	if f.fs.Changed("sync-interval") {
		c.NTP.Interval = f.interval
	}
	if f.fs.Changed("log-level") {
		c.Log.Level = f.logLevel
	}
	if f.fs.Changed("console") {
		c.Log.Console = f.console
	}
	if f.fs.Changed("journal") {
		c.Journal.Enabled = f.journal
	}
	if f.fs.Changed("mdns") {
		c.MDNS.Enabled = f.mdns
	}
	if f.fs.Changed("trace") {
		c.Trace.Enabled = f.trace
	}
}
