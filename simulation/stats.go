package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Stats holds latency measurements for a set of operations.
type Stats struct {
	mu        sync.Mutex
	latencies []time.Duration
}

// NewStats creates a Stats object
func NewStats() *Stats {
	return &Stats{latencies: make([]time.Duration, 0, 1000)}
}

// Record adds one latency measurement. Safe for concurrent use.
func (s *Stats) Record(d time.Duration) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

// Len returns how many measurements we have
func (s *Stats) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latencies)
}

// Compute calculates p50, p95, p99 and ops/sec over totalTime.
func (s *Stats) Compute(totalTime time.Duration) (p50, p95, p99 time.Duration, opsSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.latencies)
	if n == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })

	percentileIndex := func(p float64) int {
		idx := int(float64(n)*p) - 1
		if idx < 0 {
			return 0
		}
		if idx >= n {
			return n - 1
		}
		return idx
	}

	p50 = s.latencies[percentileIndex(0.50)]
	p95 = s.latencies[percentileIndex(0.95)]
	p99 = s.latencies[percentileIndex(0.99)]
	if totalTime > 0 {
		opsSec = float64(n) / totalTime.Seconds()
	}
	return p50, p95, p99, opsSec
}

// ResultRecord holds the stats logged for each scenario run.
type ResultRecord struct {
	Scenario    string
	Workers     int
	OpsCount    int
	Errors      int64
	Regressions int64 // corrected time going backwards within a worker
	OpsSec      float64
	P50Us       float64
	P95Us       float64
	P99Us       float64
	TotalTime   time.Duration
}

// WriteCSV writes a list of ResultRecords to a CSV file.
func WriteCSV(filename string, records []ResultRecord) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"scenario", "workers", "ops_count", "errors", "regressions",
		"ops_sec", "p50_us", "p95_us", "p99_us", "total_time_ms",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.Scenario,
			strconv.Itoa(rec.Workers),
			strconv.Itoa(rec.OpsCount),
			strconv.FormatInt(rec.Errors, 10),
			strconv.FormatInt(rec.Regressions, 10),
			fmt.Sprintf("%.2f", rec.OpsSec),
			fmt.Sprintf("%.2f", rec.P50Us),
			fmt.Sprintf("%.2f", rec.P95Us),
			fmt.Sprintf("%.2f", rec.P99Us),
			strconv.FormatInt(rec.TotalTime.Milliseconds(), 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func toMicros(d time.Duration) float64 {
	return float64(d) / float64(time.Microsecond)
}
