package scraper

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Pacer spaces out search queries: nothing before the first one, then the base
// delay plus a random jitter before each following one.
type Pacer struct {
	clock  Clock
	base   time.Duration
	jitter time.Duration
	randN  func(n int64) int64

	mu    sync.Mutex
	calls int
}

func NewPacer(clock Clock, base, jitter time.Duration) *Pacer {
	return &Pacer{clock: clock, base: base, jitter: jitter, randN: rand.Int64N}
}

// Wait blocks until the next query may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	first := p.calls == 0
	p.calls++
	d := p.delay()
	p.mu.Unlock()

	if first {
		return ctx.Err()
	}
	return sleep(ctx, p.clock, d)
}

func (p *Pacer) delay() time.Duration {
	d := p.base
	if p.jitter > 0 {
		d += time.Duration(p.randN(int64(p.jitter)))
	}
	return d
}
