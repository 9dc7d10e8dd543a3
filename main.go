package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/flynnfc/clocksync/internal/config"
	"github.com/flynnfc/clocksync/internal/metrics"
	"github.com/flynnfc/clocksync/internal/tracing"
	"github.com/flynnfc/clocksync/internal/truetime"
	"github.com/flynnfc/clocksync/logger"
	"github.com/flynnfc/clocksync/pkg/discovery"
	"github.com/flynnfc/clocksync/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	flags := config.NewFlags("clocksync")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Precedence: defaults < file < environment < flags.
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.PprofAddr != "" {
		go func() {
			log.Info("pprof listening", zap.String("addr", cfg.PprofAddr))
			log.Warn("pprof server stopped", zap.Error(http.ListenAndServe(cfg.PprofAddr, nil)))
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	tp, err := tracing.Init(cfg.Trace)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	record := truetime.NewRecord(nil)
	pollerOpts := []truetime.Option{
		truetime.WithInterval(cfg.NTP.Interval),
		truetime.WithTimeout(cfg.NTP.Timeout),
		truetime.WithDriftWarning(cfg.NTP.DriftWarning),
		truetime.WithLogger(log.Named("truetime")),
		truetime.WithMetrics(m),
		truetime.WithTracer(tp.Tracer("github.com/flynnfc/clocksync/internal/truetime")),
	}
	if cfg.Journal.Enabled {
		journal, err := logger.InitJournal(cfg.Journal.Dir, log.Named("journal"))
		if err != nil {
			log.Fatal("Failed to open observation journal", zap.Error(err))
		}
		defer journal.Close()
		pollerOpts = append(pollerOpts, truetime.WithJournal(journal))
	}
	poller := truetime.NewPoller(record, truetime.NewNTPTime(cfg.NTP.Server, cfg.NTP.Timeout), pollerOpts...)

	// Graceful shutdown handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go poller.Run(ctx)

	timeServer := server.NewTimeServer(record, log.Named("http"),
		server.WithGatherer(reg),
		server.WithStreamInterval(cfg.Stream.Interval))
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           timeServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		grpcServer = server.NewGRPCServer(record, log.Named("grpc"), reg)
		addr := net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.GRPC.Port))
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatal("Failed to start TCP listener", zap.Error(err))
		}
		go func() {
			log.Info("gRPC server listening", zap.String("addr", addr))
			if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatal("Failed to serve gRPC server", zap.Error(err))
			}
		}()
	}

	if cfg.MDNS.Enabled {
		adv, err := discovery.Advertise(cfg.MDNS.Instance, cfg.HTTP.Port)
		if err != nil {
			log.Warn("Failed to advertise over mDNS", zap.Error(err))
		} else {
			log.Info("Advertising over mDNS", zap.String("instance", cfg.MDNS.Instance), zap.String("service", discovery.Service))
			defer adv.Shutdown()
		}
	}

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("Stopping HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown did not complete", zap.Error(err))
	}
	if grpcServer != nil {
		log.Info("Stopping gRPC server")
		grpcServer.GracefulStop()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush traces", zap.Error(err))
	}

	log.Info("Shutdown complete")
}
