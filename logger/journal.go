package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	wal "github.com/aarthikrao/wal"
	"github.com/flynnfc/clocksync/internal/truetime"
	"go.uber.org/zap"
)

// JournalEntry is the on-disk form of a successful sync.
type JournalEntry struct {
	Authoritative   time.Time     `json:"authoritative"`
	ObservedAtLocal time.Time     `json:"observed_at_local"`
	Offset          time.Duration `json:"offset_ns"`
	RTT             time.Duration `json:"rtt_ns"`
	Stratum         uint8         `json:"stratum"`
	Server          string        `json:"server"`
}

// NewJournalEntry converts an observation for storage.
func NewJournalEntry(o truetime.Observation) JournalEntry {
	return JournalEntry{
		Authoritative:   o.Authoritative.Round(0),
		ObservedAtLocal: o.ObservedAtLocal.Round(0),
		Offset:          o.Offset(),
		RTT:             o.RTT,
		Stratum:         o.Stratum,
		Server:          o.Server,
	}
}

// Journal appends sync observations to a write-ahead log so the history of
// corrections survives restarts.
type Journal struct {
	wal  *wal.WriteAheadLog
	last int64
}

// InitJournal opens (or creates) the observation log in dir.
func InitJournal(dir string, log *zap.Logger) (*Journal, error) {
	// The wal names its segments LogDir+"wal.N.M", so LogDir must end in a
	// separator for the segments to land inside dir.
	w, err := wal.NewWriteAheadLog(&wal.WALOptions{
		LogDir:            filepath.Clean(dir) + string(os.PathSeparator),
		MaxLogSize:        4 * 1024 * 1024, // 4 MB (log rotation size)
		MaxSegments:       2,
		Log:               log,
		MaxWaitBeforeSync: 1 * time.Second,
		SyncMaxBytes:      1000,
	})
	if err != nil {
		return nil, fmt.Errorf("open observation journal %s: %w", dir, err)
	}
	return &Journal{wal: w}, nil
}

// Append implements truetime.Journal.
func (j *Journal) Append(o truetime.Observation) error {
	data, err := json.Marshal(NewJournalEntry(o))
	if err != nil {
		return err
	}
	off, err := j.wal.Write(data)
	if err != nil {
		return err
	}
	j.last = int64(off)
	return nil
}

// LastOffset is the log offset of the most recent Append in this process.
func (j *Journal) LastOffset() int64 {
	return j.last
}

// Close flushes and closes the log.
func (j *Journal) Close() error {
	return j.wal.Close()
}
