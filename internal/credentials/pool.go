// Package credentials rotates session-credential files (cookie files)
// across fetch attempts. Failures are isolated to a single slot; a slot
// that keeps failing is retired for the remainder of the run.
package credentials

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoolExhausted is returned by Acquire once every slot has been
// retired. No further fetches can succeed, so callers treat it as fatal
// for the run.
var ErrPoolExhausted = errors.New("credential pool exhausted: all slots retired")

// DefaultFailureThreshold retires a slot after this many consecutive
// failures.
const DefaultFailureThreshold = 3

// Slot is one credential file in the rotation.
type Slot struct {
	File string

	index   int
	fails   int
	retired bool
}

// Retired reports whether the slot has been removed from rotation.
func (s *Slot) Retired() bool { return s.retired }

// Pool hands out slots round-robin over the non-retired set. It is the
// one resource shared across all workers; every method is safe for
// concurrent use.
type Pool struct {
	mu        sync.Mutex
	slots     []*Slot
	next      int
	threshold int
	logger    *slog.Logger
}

// NewPool builds a pool over the given credential files. threshold <= 0
// selects DefaultFailureThreshold. An empty file list yields a pool
// whose Acquire returns a nil slot: the fetcher then runs without
// credentials and failures simply propagate without rotation.
func NewPool(files []string, threshold int, logger *slog.Logger) *Pool {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{threshold: threshold, logger: logger}
	for i, f := range files {
		p.slots = append(p.slots, &Slot{File: f, index: i})
	}
	return p
}

// Empty reports whether the pool was built without credential files.
func (p *Pool) Empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) == 0
}

// Acquire returns the next active slot in round-robin order, or a nil
// slot when the pool is empty. It fails with ErrPoolExhausted when
// every slot has been retired.
func (p *Pool) Acquire() (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.slots) == 0 {
		return nil, nil
	}

	for i := 0; i < len(p.slots); i++ {
		s := p.slots[p.next%len(p.slots)]
		p.next++
		if !s.retired {
			return s, nil
		}
	}
	return nil, ErrPoolExhausted
}

// Release records the outcome of a fetch made with the slot. A success
// resets the consecutive-failure count; a failure past the threshold
// retires the slot irreversibly for the run.
func (p *Pool) Release(s *Slot, success bool) {
	if s == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if success {
		s.fails = 0
		return
	}

	s.fails++
	if s.fails >= p.threshold && !s.retired {
		s.retired = true
		p.logger.Warn("credential slot retired",
			"slot", s.index,
			"file", s.File,
			"consecutive_failures", s.fails,
		)
	}
}

// Active returns the number of slots still in rotation.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, s := range p.slots {
		if !s.retired {
			n++
		}
	}
	return n
}

// String describes the pool state for logs.
func (p *Pool) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := 0
	for _, s := range p.slots {
		if !s.retired {
			active++
		}
	}
	return fmt.Sprintf("credentials{active=%d total=%d}", active, len(p.slots))
}
