package executor

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// RetryManager records execution attempts per scenario × adapter unit and
// computes the retry backoff. Safe for concurrent use by pool workers.
type RetryManager struct {
	mu       sync.Mutex
	initial  time.Duration
	max      time.Duration
	attempts map[string]int
}

// NewRetryManager creates a manager with the given backoff bounds.
func NewRetryManager(initial, max time.Duration) *RetryManager {
	if initial <= 0 {
		initial = 15 * time.Second
	}
	if max < initial {
		max = initial
	}
	return &RetryManager{
		initial:  initial,
		max:      max,
		attempts: make(map[string]int),
	}
}

func unitKey(scenarioID, adapterName string) string {
	return fmt.Sprintf("%s:%s", scenarioID, adapterName)
}

// Record counts one attempt for the unit and returns the 1-based attempt
// number.
func (m *RetryManager) Record(scenarioID, adapterName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := unitKey(scenarioID, adapterName)
	m.attempts[key]++
	return m.attempts[key]
}

// Attempts returns how many attempts the unit has made.
func (m *RetryManager) Attempts(scenarioID, adapterName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[unitKey(scenarioID, adapterName)]
}

// Backoff computes the delay before the unit's next attempt: exponential in
// the recorded attempt count, capped, with +/- 25% jitter to keep retries
// from synchronizing.
func (m *RetryManager) Backoff(scenarioID, adapterName string) time.Duration {
	m.mu.Lock()
	attempt := m.attempts[unitKey(scenarioID, adapterName)]
	m.mu.Unlock()
	if attempt < 1 {
		attempt = 1
	}

	backoff := m.initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= m.max {
			backoff = m.max
			break
		}
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}
