// Package dlq records records the pipeline could not process under
// recovery_mode=SKIP, so a run can complete instead of aborting on the
// first malformed input while still leaving an auditable trail of what was
// dropped. Adapted from the teacher's dead-letter queue: the core pipeline
// is synchronous and single-threaded (no cross-record concurrency), so
// this keeps the teacher's file-backed, size-bounded design but drops its
// background reprocessing and alerting loops -- there is no long-running
// daemon here to drive them.
package dlq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls whether and where skipped records are recorded.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	// MaxFileSizeMB rotates to a new file once the current one grows past
	// this size.
	MaxFileSizeMB int64 `yaml:"max_file_size_mb"`
}

// DefaultConfig mirrors the teacher's documented defaults.
func DefaultConfig() Config {
	return Config{Directory: "./dlq", MaxFileSizeMB: 100}
}

// Entry is one dead-lettered record.
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Stage     string          `json:"stage"`
	Error     string          `json:"error"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Stats summarizes what has been dead-lettered during a run.
type Stats struct {
	TotalEntries int64
	WriteErrors  int64
}

// Queue is a synchronous, file-backed dead letter queue.
type Queue struct {
	cfg    Config
	log    *logrus.Entry
	mu     sync.Mutex
	file   *os.File
	stats  Stats
}

// New opens (creating if necessary) the DLQ directory and its first file.
// A disabled Queue is a safe no-op sink.
func New(cfg Config, log *logrus.Entry) (*Queue, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	q := &Queue{cfg: cfg, log: log}
	if !cfg.Enabled {
		return q, nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("dlq: create directory: %w", err)
	}
	if err := q.openFile(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) openFile() error {
	name := fmt.Sprintf("dlq_%s.jsonl", time.Now().UTC().Format("20060102_150405.000000"))
	f, err := os.OpenFile(filepath.Join(q.cfg.Directory, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("dlq: open file: %w", err)
	}
	q.file = f
	return nil
}

// Add records one failed record. raw, if non-nil, is the original bytes
// (or best-effort JSON encoding) that failed to process.
func (q *Queue) Add(stage string, cause error, raw []byte) {
	if !q.cfg.Enabled {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stats.TotalEntries++

	if q.shouldRotate() {
		if err := q.rotate(); err != nil {
			q.log.WithError(err).Warn("dlq: rotation failed")
		}
	}

	entry := Entry{Timestamp: time.Now().UTC(), Stage: stage, Error: cause.Error(), Raw: raw}
	encoded, err := json.Marshal(entry)
	if err != nil {
		q.stats.WriteErrors++
		q.log.WithError(err).Error("dlq: marshal entry")
		return
	}
	encoded = append(encoded, '\n')
	if _, err := q.file.Write(encoded); err != nil {
		q.stats.WriteErrors++
		q.log.WithError(err).Error("dlq: write entry")
	}
}

func (q *Queue) shouldRotate() bool {
	if q.file == nil {
		return true
	}
	info, err := q.file.Stat()
	if err != nil {
		return true
	}
	return info.Size() >= q.cfg.MaxFileSizeMB*1024*1024
}

func (q *Queue) rotate() error {
	if q.file != nil {
		q.file.Close()
	}
	return q.openFile()
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Close flushes and closes the current file, if any.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.file == nil {
		return nil
	}
	err := q.file.Close()
	q.file = nil
	return err
}
