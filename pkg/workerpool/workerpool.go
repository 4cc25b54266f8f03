// Package workerpool runs a fixed number of goroutines draining a shared
// task queue, used internally by the Elasticsearch writer to parallelize
// bulk-index requests across shards without spawning one goroutine per
// batch. Adapted from the teacher's worker pool.
package workerpool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Task is one unit of work submitted to the pool.
type Task func(ctx context.Context) error

// Config sizes the pool.
type Config struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig sizes the pool to the host's CPU count.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU(), QueueSize: 256}
}

// Pool runs submitted tasks across a fixed set of worker goroutines.
type Pool struct {
	cfg    Config
	log    *logrus.Entry
	tasks  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	completed int64
	failed    int64
}

// New starts a Pool immediately; call Close when done submitting.
func New(cfg Config, log *logrus.Entry) *Pool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{cfg: cfg, log: log, tasks: make(chan Task, cfg.QueueSize), ctx: ctx, cancel: cancel}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			if err := task(p.ctx); err != nil {
				atomic.AddInt64(&p.failed, 1)
				p.log.WithError(err).Warn("workerpool: task failed")
			} else {
				atomic.AddInt64(&p.completed, 1)
			}
		}
	}
}

// Submit enqueues task, blocking if the queue is full.
func (p *Pool) Submit(task Task) {
	select {
	case p.tasks <- task:
	case <-p.ctx.Done():
	}
}

// Stats returns (completed, failed) task counts so far.
func (p *Pool) Stats() (completed, failed int64) {
	return atomic.LoadInt64(&p.completed), atomic.LoadInt64(&p.failed)
}

// Close stops accepting new tasks, waits for in-flight ones to drain, and
// shuts down the worker goroutines.
func (p *Pool) Close() {
	close(p.tasks)
	p.wg.Wait()
	p.cancel()
}
