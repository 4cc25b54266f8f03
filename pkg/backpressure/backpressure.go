// Package backpressure tracks how far behind a streaming writer is falling
// relative to the rate records are being pulled from the input iterator,
// and derives a Level the batch pump can act on (shrink its batch size,
// pause briefly) before a slow sink turns into unbounded memory growth.
// Adapted from the teacher's backpressure manager, simplified to a
// synchronous sampler: the core pipeline has no background goroutines.
package backpressure

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level is how urgently the pump should slow down.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "none"
	}
}

// Config sets the pending-batch thresholds, expressed as a multiple of the
// configured batch size, that separate each level.
type Config struct {
	LowThreshold      float64 `yaml:"low_threshold"`
	MediumThreshold   float64 `yaml:"medium_threshold"`
	HighThreshold     float64 `yaml:"high_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold"`
}

// DefaultConfig mirrors the teacher's documented defaults.
func DefaultConfig() Config {
	return Config{LowThreshold: 1, MediumThreshold: 2, HighThreshold: 4, CriticalThreshold: 8}
}

// Monitor classifies each flush by how many batches the writer still has
// queued; the flush latency is recorded but does not affect the level.
type Monitor struct {
	cfg       Config
	batchSize int
	log       *logrus.Entry

	mu            sync.Mutex
	level         Level
	lastFlushTook time.Duration
	pendingBatches float64
	events        int64
}

// New builds a Monitor for a pump processing batches of size batchSize.
func New(cfg Config, batchSize int, log *logrus.Entry) *Monitor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Monitor{cfg: cfg, batchSize: batchSize, log: log}
}

// Observe records how long the most recent batch took to reach the
// writer's durable-flush point, and how many batches are still queued
// ahead of it (0 for a synchronous writer with no queue), then recomputes
// the current level.
func (m *Monitor) Observe(flushTook time.Duration, pendingBatches int) Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastFlushTook = flushTook
	m.pendingBatches = float64(pendingBatches)

	level := m.classify()
	if level > m.level {
		m.events++
		m.log.WithFields(logrus.Fields{"level": level.String(), "pending_batches": pendingBatches}).
			Warn("backpressure: writer falling behind")
	}
	m.level = level
	return level
}

func (m *Monitor) classify() Level {
	switch {
	case m.pendingBatches >= m.cfg.CriticalThreshold:
		return LevelCritical
	case m.pendingBatches >= m.cfg.HighThreshold:
		return LevelHigh
	case m.pendingBatches >= m.cfg.MediumThreshold:
		return LevelMedium
	case m.pendingBatches >= m.cfg.LowThreshold:
		return LevelLow
	default:
		return LevelNone
	}
}

// Level returns the most recently computed level.
func (m *Monitor) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// RecommendedBatchSize shrinks the configured batch size as the level
// rises, giving the pump smaller units of work to interleave with a
// struggling writer.
func (m *Monitor) RecommendedBatchSize() int {
	switch m.Level() {
	case LevelCritical:
		return max(1, m.batchSize/8)
	case LevelHigh:
		return max(1, m.batchSize/4)
	case LevelMedium:
		return max(1, m.batchSize/2)
	default:
		return m.batchSize
	}
}
