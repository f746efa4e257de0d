package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Options configure a MemoryLimiter.
type Options struct {
	// Rate is the sustained requests per second per key. Must be positive;
	// New maps a disabled rate to NoopLimiter.
	Rate float64
	// Burst is how many requests a key may make back to back. At least 1.
	Burst int
	// SweepInterval is how often keys with no outstanding debt are dropped.
	// Defaults to one minute.
	SweepInterval time.Duration
	// Now replaces time.Now in tests.
	Now func() time.Time
}

// MemoryLimiter implements Limiter with the generic cell rate algorithm:
// each key stores only its theoretical arrival time (tat), the instant at
// which its bucket would be full again. A key whose tat has passed carries no
// state a fresh key would not, so the sweeper drops it.
type MemoryLimiter struct {
	interval time.Duration // time to earn one request
	span     time.Duration // interval * burst
	now      func() time.Time

	mu  sync.Mutex
	tat map[string]time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter starts a limiter and its sweeper. Call Close to stop it.
func NewMemoryLimiter(opts Options) *MemoryLimiter {
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	interval := 365 * 24 * time.Hour
	if opts.Rate > 0 {
		interval = time.Duration(float64(time.Second) / opts.Rate)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = time.Minute
	}

	m := &MemoryLimiter{
		interval: interval,
		span:     interval * time.Duration(burst),
		now:      now,
		tat:      make(map[string]time.Time),
		done:     make(chan struct{}),
	}
	go m.sweepLoop(sweep)
	return m
}

// Allow admits a request for key when doing so keeps the key's debt within
// its burst.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	tat := m.tat[key]
	if tat.Before(now) {
		tat = now
	}
	next := tat.Add(m.interval)
	if now.Before(next.Add(-m.span)) {
		return false, nil
	}
	m.tat[key] = next
	return true, nil
}

// RetryAfter reports how long key must wait before its next request is
// admitted. Zero means it would be admitted now.
func (m *MemoryLimiter) RetryAfter(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	tat, ok := m.tat[key]
	if !ok {
		return 0
	}
	wait := tat.Add(m.interval - m.span).Sub(m.now())
	if wait < 0 {
		return 0
	}
	return wait
}

// Len returns the number of keys currently in debt.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tat)
}

// Close stops the sweeper. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *MemoryLimiter) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, tat := range m.tat {
		if !tat.After(now) {
			delete(m.tat, key)
		}
	}
}
