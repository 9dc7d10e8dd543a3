// Command clockcli is a terminal clock showing time corrected by a clocksync
// server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/flynnfc/clocksync/logger"
	"github.com/flynnfc/clocksync/pkg/discovery"
	"github.com/flynnfc/clocksync/pkg/timeclient"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	fs := pflag.NewFlagSet("clockcli", pflag.ContinueOnError)
	url := fs.String("url", timeclient.DefaultEndpointURL, "clocksync HTTP time endpoint")
	grpcTarget := fs.String("grpc", "", "use the gRPC TimeService at host:port instead of HTTP")
	discover := fs.Bool("discover", false, "find a server on the local network over mDNS")
	resync := fs.Duration("resync", timeclient.DefaultResyncInterval, "re-sync cadence, 0 to fetch only once")
	zone := fs.String("tz", "Local", "IANA time zone to display")
	logDir := fs.String("log-dir", "logs", "directory for the client log")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	loc, err := time.LoadLocation(*zone)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// The terminal belongs to the UI, so logs only go to the file.
	log, err := logger.New(logger.Config{Name: "clockcli", Dir: *logDir})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := []timeclient.Option{
		timeclient.WithLogger(log.Named("timeclient")),
		timeclient.WithResyncInterval(*resync),
	}

	var (
		mgr    *timeclient.Manager
		source string
	)
	switch {
	case *grpcTarget != "":
		f, err := timeclient.DialGRPC(*grpcTarget)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		mgr, source = timeclient.New(f, opts...), "grpc://"+*grpcTarget
	default:
		endpoint := *url
		if *discover {
			found, err := discovery.Lookup(ctx, 3*time.Second)
			if err != nil {
				log.Warn("mDNS lookup failed, using configured endpoint", zap.Error(err))
			} else {
				endpoint = found
			}
		}
		mgr, source = timeclient.NewHTTP(endpoint, opts...), endpoint
	}

	// The first frame depends on corrected time, so wait for the initial sync.
	mgr.Initialize(ctx)
	go mgr.Resync(ctx)

	p := tea.NewProgram(newModel(mgr, source, loc), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Error("clockcli exited with error", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
