package network

import (
	"testing"
	"time"

	"github.com/automoto/doomerang-sync/config"
	"github.com/stretchr/testify/assert"
)

func TestClockDefaults(t *testing.T) {
	c := NewClock(config.Default())

	assert.Equal(t, 120*time.Millisecond, c.RTT())
	assert.Equal(t, 0, c.RTTSamples())
	assert.False(t, c.Synced())
	// 120/2 + 50
	assert.InDelta(t, 110, c.RenderDelayMs(), 1e-9)
}

func TestClockOffsetConvergesAndIsIdempotent(t *testing.T) {
	c := NewClock(config.Default())
	local := time.UnixMilli(1_000_000)

	for i := 0; i < 50; i++ {
		c.ObserveServerTime(1_000_250, local)
	}
	assert.True(t, c.Synced())
	assert.InDelta(t, 250, c.Offset(), 1e-9)

	// a step change is smoothed, not adopted
	c.ObserveServerTime(1_000_350, local)
	assert.InDelta(t, 260, c.Offset(), 1e-9)
}

func TestClockRTTSmoothing(t *testing.T) {
	c := NewClock(config.Default())

	c.ObserveRTT(220 * time.Millisecond)
	// 120 + (220-120)*0.2
	assert.InDelta(t, 140, float64(c.RTT())/float64(time.Millisecond), 1e-6)
	assert.Equal(t, 1, c.RTTSamples())

	c.ObserveRTT(-time.Millisecond)
	assert.Equal(t, 1, c.RTTSamples(), "negative samples are ignored")
}

func TestClockRenderDelayClamp(t *testing.T) {
	c := NewClock(config.Default())

	for i := 0; i < 200; i++ {
		c.ObserveRTT(0)
	}
	assert.InDelta(t, 80, c.RenderDelayMs(), 1e-9)

	for i := 0; i < 200; i++ {
		c.ObserveRTT(time.Second)
	}
	assert.InDelta(t, 220, c.RenderDelayMs(), 1e-9)
}

func TestClockRenderTime(t *testing.T) {
	c := NewClock(config.Default())
	local := time.UnixMilli(10_000)
	c.ObserveServerTime(10_500, local)

	assert.InDelta(t, 10_500, c.ServerNow(local), 1e-9)
	assert.InDelta(t, 10_500-110, c.RenderTime(local), 1e-9)

	c.Reset()
	assert.False(t, c.Synced())
	assert.Equal(t, 120*time.Millisecond, c.RTT())
}
