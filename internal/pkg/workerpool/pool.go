package workerpool

import (
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Config defines the worker pool configuration
type Config struct {
	Workers     int  // number of workers
	NonBlocking bool // return an error instead of blocking when the pool is saturated
}

// DefaultConfig returns the default worker pool configuration
func DefaultConfig() *Config {
	return &Config{
		Workers: 8,
	}
}

// Pool is a fixed-size worker pool backed by ants
type Pool struct {
	pool   *ants.Pool
	mu     sync.RWMutex
	closed bool
}

// New creates a new worker pool
func New(cfg *Config) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		return nil, errors.New("workerpool: workers must be > 0")
	}

	p, err := ants.NewPool(cfg.Workers, ants.WithNonblocking(cfg.NonBlocking))
	if err != nil {
		return nil, err
	}

	return &Pool{pool: p}, nil
}

// Submit schedules a task for execution
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	return p.pool.Submit(task)
}

// Running returns the number of currently running workers
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops the pool and rejects further submissions. In-flight tasks
// are not awaited; callers needing completion guarantees synchronize on the
// tasks themselves.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.pool.Release()
}
