package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a courtesy pause between page loads. Each fetch worker owns
// its own Pacer, so pauses on one worker never delay another.
type Pacer struct {
	mu     sync.Mutex
	delay  time.Duration
	pauses int
	waited time.Duration
	maxUse int // 0 = unlimited
	used   int
}

// NewPacer creates a pacer that sleeps delay on every Pause.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{delay: delay}
}

// WithBudget caps the number of loads this pacer will allow.
func (p *Pacer) WithBudget(max int) *Pacer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxUse = max
	return p
}

// CanLoad reports whether the load budget still has room.
func (p *Pacer) CanLoad() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxUse <= 0 || p.used < p.maxUse
}

// Use records one page load against the budget.
func (p *Pacer) Use() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used++
}

// Pause waits for the configured delay or until ctx ends.
func (p *Pacer) Pause(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}

	start := time.Now()
	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		p.record(time.Since(start))
		return ctx.Err()
	case <-timer.C:
		p.record(p.delay)
		return nil
	}
}

func (p *Pacer) record(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	p.waited += d
}

// GetStats returns current pacer statistics
func (p *Pacer) GetStats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[string]interface{}{
		"delay_ms":  p.delay.Milliseconds(),
		"pauses":    p.pauses,
		"waited_ms": p.waited.Milliseconds(),
		"loads":     p.used,
		"budget":    p.maxUse,
	}
}
