// Package degradation turns sustained writer trouble into feature
// shedding: once the writer's backpressure level has stayed at or above
// Medium for longer than a grace period, the non-essential features
// configured for that level (deduplication, detailed stats, rate limiting)
// are marked degraded, and Enabled reports them as switched off. Adapted
// from the teacher's degradation manager.
package degradation

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tableflow/pkg/backpressure"
)

// Feature is a piece of non-essential functionality that can be shed.
type Feature string

const (
	FeatureDeduplication Feature = "deduplication"
	FeatureDetailedStats Feature = "detailed_stats"
	FeatureRateLimiting  Feature = "rate_limiting"
)

// Config maps each backpressure level to the features shed at or above it.
type Config struct {
	AtMedium   []Feature     `yaml:"at_medium"`
	AtHigh     []Feature     `yaml:"at_high"`
	AtCritical []Feature     `yaml:"at_critical"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// DefaultConfig sheds deduplication first, then detailed stats, then rate
// limiting itself, as things get worse.
func DefaultConfig() Config {
	return Config{
		AtMedium:    []Feature{FeatureDeduplication},
		AtHigh:      []Feature{FeatureDeduplication, FeatureDetailedStats},
		AtCritical:  []Feature{FeatureDeduplication, FeatureDetailedStats, FeatureRateLimiting},
		GracePeriod: 10 * time.Second,
	}
}

// Manager tracks which features are currently degraded.
type Manager struct {
	cfg Config
	log *logrus.Entry

	mu          sync.RWMutex
	degraded    map[Feature]time.Time
	troubleSince time.Time
	inTrouble   bool
}

// New builds a Manager with every feature initially enabled.
func New(cfg Config, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{cfg: cfg, log: log, degraded: map[Feature]time.Time{}}
}

// Update feeds the current backpressure level in; once the level has
// stayed at or above Medium for the grace period, the corresponding
// features switch off. Dropping below Medium (to Low or None) restores
// everything.
func (m *Manager) Update(level backpressure.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if level < backpressure.LevelMedium {
		if len(m.degraded) > 0 {
			m.log.Info("degradation: restoring all features")
		}
		m.degraded = map[Feature]time.Time{}
		m.inTrouble = false
		return
	}

	if !m.inTrouble {
		m.inTrouble = true
		m.troubleSince = time.Now()
	}
	if time.Since(m.troubleSince) < m.cfg.GracePeriod {
		return
	}

	var toShed []Feature
	switch {
	case level >= backpressure.LevelCritical:
		toShed = m.cfg.AtCritical
	case level >= backpressure.LevelHigh:
		toShed = m.cfg.AtHigh
	default:
		toShed = m.cfg.AtMedium
	}

	for _, f := range toShed {
		if _, already := m.degraded[f]; !already {
			m.degraded[f] = time.Now()
			m.log.WithField("feature", f).Warn("degradation: feature disabled")
		}
	}
}

// Enabled reports whether f is currently switched on.
func (m *Manager) Enabled(f Feature) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, degraded := m.degraded[f]
	return !degraded
}
