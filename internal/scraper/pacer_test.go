package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_NoDelayBeforeFirstQuery(t *testing.T) {
	clock := newFakeClock()
	p := NewPacer(clock, 5*time.Second, 5*time.Second)

	require.NoError(t, p.Wait(context.Background()))
	assert.Empty(t, clock.Delays())
}

func TestPacer_DelayWithinBounds(t *testing.T) {
	clock := newFakeClock()
	p := NewPacer(clock, 5*time.Second, 5*time.Second)

	for range 20 {
		require.NoError(t, p.Wait(context.Background()))
	}
	delays := clock.Delays()
	require.Len(t, delays, 19)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.Less(t, d, 10*time.Second)
	}
}

func TestPacer_UsesJitter(t *testing.T) {
	clock := newFakeClock()
	p := NewPacer(clock, time.Second, 4*time.Second)
	p.randN = func(n int64) int64 { return n / 2 }

	require.NoError(t, p.Wait(context.Background()))
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, []time.Duration{3 * time.Second}, clock.Delays())
}

func TestPacer_Cancelled(t *testing.T) {
	clock := newFakeClock()
	p := NewPacer(clock, time.Second, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
	assert.Empty(t, clock.Delays())
}
