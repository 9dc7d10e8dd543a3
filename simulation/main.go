// Command simulation load tests corrected time reads, either in process
// against an offset record being updated concurrently or over HTTP against a
// running server.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flynnfc/clocksync/internal/truetime"
	"github.com/flynnfc/clocksync/logger"
	"github.com/flynnfc/clocksync/pkg/timeclient"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// readFunc returns one corrected time reading.
type readFunc func(ctx context.Context) (time.Time, error)

// runScenario issues ops reads from workers goroutines and reports latency,
// errors and per-worker regressions of the returned time.
func runScenario(ctx context.Context, name string, read readFunc, ops, workers int) ResultRecord {
	var (
		wg          sync.WaitGroup
		errs        atomic.Int64
		regressions atomic.Int64
	)
	stats := NewStats()
	jobs := make(chan int, workers*2)

	worker := func() {
		defer wg.Done()
		var last time.Time
		for range jobs {
			start := time.Now()
			t, err := read(ctx)
			stats.Record(time.Since(start))
			if err != nil {
				errs.Add(1)
				continue
			}
			if t.Before(last) {
				regressions.Add(1)
			}
			last = t
		}
	}

	begin := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}
	for i := 0; i < ops; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	total := time.Since(begin)

	p50, p95, p99, opsSec := stats.Compute(total)
	return ResultRecord{
		Scenario:    name,
		Workers:     workers,
		OpsCount:    stats.Len(),
		Errors:      errs.Load(),
		Regressions: regressions.Load(),
		OpsSec:      opsSec,
		P50Us:       toMicros(p50),
		P95Us:       toMicros(p95),
		P99Us:       toMicros(p99),
		TotalTime:   total,
	}
}

// churnRecord stores a fresh observation every interval until ctx is done,
// so readers race against writers.
func churnRecord(ctx context.Context, poller *truetime.Poller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poller.Sync(ctx)
		}
	}
}

// steadySource reports a fixed offset with no I/O.
type steadySource struct{ offset time.Duration }

func (s steadySource) Query(context.Context) (truetime.Sample, error) {
	return truetime.Sample{ClockOffset: s.offset, RTT: time.Millisecond, Stratum: 1}, nil
}

func (steadySource) Name() string { return "steady" }

func printResult(r ResultRecord) {
	fmt.Printf("%s: %d reads with %d workers in %v (%.2f reads/sec) p50=%.1fus p95=%.1fus p99=%.1fus errors=%d regressions=%d\n",
		r.Scenario, r.OpsCount, r.Workers, r.TotalTime, r.OpsSec, r.P50Us, r.P95Us, r.P99Us, r.Errors, r.Regressions)
}

func main() {
	fs := pflag.NewFlagSet("simulation", pflag.ExitOnError)
	ops := fs.Int("ops", 100000, "reads per scenario")
	workers := fs.Int("workers", 100, "concurrent readers")
	url := fs.String("url", "", "also load test a running server's time endpoint")
	csvPath := fs.String("csv", "", "write results to this CSV file")
	fs.Parse(os.Args[1:])

	seed := time.Now().Format("2006-01-02-15-04-05")
	log := logger.InitLogger(seed + "-simulation")
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	record := truetime.NewRecord(nil)
	poller := truetime.NewPoller(record, steadySource{offset: 250 * time.Millisecond}, truetime.WithLogger(zap.NewNop()))
	go churnRecord(ctx, poller, time.Millisecond)

	results := []ResultRecord{
		runScenario(ctx, "record", func(context.Context) (time.Time, error) { return record.Now(), nil }, *ops, *workers),
	}

	if *url != "" {
		fetcher := timeclient.NewHTTPFetcher(*url, nil)
		results = append(results, runScenario(ctx, "http", fetcher.Fetch, *ops, *workers))
	}

	for _, r := range results {
		printResult(r)
		log.Info("Scenario complete",
			zap.String("scenario", r.Scenario),
			zap.Int("ops", r.OpsCount),
			zap.Float64("ops_sec", r.OpsSec),
			zap.Float64("p99_us", r.P99Us),
			zap.Int64("errors", r.Errors),
			zap.Int64("regressions", r.Regressions))
	}

	if *csvPath != "" {
		if err := WriteCSV(*csvPath, results); err != nil {
			log.Error("Failed to write results", zap.Error(err))
			os.Exit(1)
		}
	}
}
