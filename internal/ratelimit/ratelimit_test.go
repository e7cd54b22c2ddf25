package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_Pause(t *testing.T) {
	p := NewPacer(10 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Pause(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	stats := p.GetStats()
	assert.Equal(t, 1, stats["pauses"])
}

func TestPacer_ZeroDelay(t *testing.T) {
	p := NewPacer(0)
	require.NoError(t, p.Pause(context.Background()))
	assert.Equal(t, 0, p.GetStats()["pauses"])
}

func TestPacer_CancelledContext(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Pause(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPacer_Budget(t *testing.T) {
	p := NewPacer(0).WithBudget(2)

	assert.True(t, p.CanLoad())
	p.Use()
	assert.True(t, p.CanLoad())
	p.Use()
	assert.False(t, p.CanLoad())

	unlimited := NewPacer(0)
	for i := 0; i < 100; i++ {
		unlimited.Use()
	}
	assert.True(t, unlimited.CanLoad())
}
