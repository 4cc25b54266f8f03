// Package circuit implements a circuit breaker that wraps a streaming
// writer's write/finalize calls: after enough consecutive failures it
// trips open and fails fast instead of hammering a dead sink, then moves to
// half-open after its timeout elapses, letting calls through until
// SuccessThreshold consecutive successes close it or one failure re-opens
// it. Adapted from the
// teacher's circuit breaker (the same design that package previously
// called pkg/circuit_breaker also implemented, redundantly -- see the
// grounding notes for which copy survived).
package circuit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is one of the three classic circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config tunes a Breaker's trip/reset thresholds.
type Config struct {
	Name             string        `yaml:"name"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DefaultConfig mirrors the teacher's documented defaults.
func DefaultConfig(name string) Config {
	return Config{Name: name, FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}
}

// ErrOpen is returned by Call when the breaker is open and not yet due for
// a half-open probe.
type ErrOpen struct{ Name string }

func (e *ErrOpen) Error() string { return "circuit breaker " + e.Name + " is open" }

// Breaker wraps calls to a flaky dependency (a writer's sink).
type Breaker struct {
	cfg Config
	log *logrus.Entry

	mu                sync.Mutex
	state             State
	consecutiveFails  int
	halfOpenSuccesses int
	openedAt          time.Time
}

// New builds a Breaker in the Closed state.
func New(cfg Config, log *logrus.Entry) *Breaker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Breaker{cfg: cfg, log: log}
}

// Call runs fn if the breaker allows it, recording the outcome.
func (b *Breaker) Call(fn func() error) error {
	if !b.allow() {
		return &ErrOpen{Name: b.cfg.Name}
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if time.Since(b.openedAt) >= b.cfg.Timeout {
			b.state = HalfOpen
			b.halfOpenSuccesses = 0
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.consecutiveFails++
		b.halfOpenSuccesses = 0
		if b.state == HalfOpen || b.consecutiveFails >= b.cfg.FailureThreshold {
			b.trip()
		}
		return
	}

	b.consecutiveFails = 0
	if b.state == HalfOpen {
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.log.WithField("breaker", b.cfg.Name).Info("circuit breaker closed")
		}
	}
}

func (b *Breaker) trip() {
	if b.state != Open {
		b.log.WithField("breaker", b.cfg.Name).Warn("circuit breaker open")
	}
	b.state = Open
	b.openedAt = time.Now()
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
