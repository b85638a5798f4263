package githubapi

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PacerConfig configures request pacing for long pagination and detail loops.
type PacerConfig struct {
	// PauseEvery inserts Pause after every N calls. Zero disables.
	PauseEvery int
	Pause      time.Duration
	// RequestsPerSecond caps the steady call rate. Zero disables.
	RequestsPerSecond float64
	Burst             int
}

// Pacer throttles sequential calls to the provider. It is safe for concurrent
// use, but callers are expected to issue calls one at a time.
type Pacer struct {
	mu      sync.Mutex
	cfg     PacerConfig
	limiter *rate.Limiter
	calls   int
	// Sleep is injected for testability.
	Sleep func(ctx context.Context, duration time.Duration) error
}

// NewPacer builds a pacer from cfg.
func NewPacer(cfg PacerConfig) *Pacer {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Pacer{
		cfg:     cfg,
		limiter: limiter,
		Sleep:   sleepContext,
	}
}

// Wait blocks until the next call may proceed.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}

	p.mu.Lock()
	p.calls++
	pause := p.cfg.PauseEvery > 0 && p.cfg.Pause > 0 && p.calls%p.cfg.PauseEvery == 0
	p.mu.Unlock()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if pause {
		return p.Sleep(ctx, p.cfg.Pause)
	}
	return ctx.Err()
}

// Calls reports how many calls have been paced.
func (p *Pacer) Calls() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Reset zeroes the call counter.
func (p *Pacer) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = 0
}
