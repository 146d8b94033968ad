package network

import (
	"time"

	"github.com/automoto/doomerang-sync/config"
)

// Clock estimates the local-to-server clock offset and the round-trip time,
// and derives the delayed virtual server time used to sample remote entities.
type Clock struct {
	offsetWeight float64
	rttWeight    float64
	defaultRTT   float64
	delayBase    float64
	delayMin     float64
	delayMax     float64

	offsetMs  float64
	hasOffset bool
	rttMs     float64
	samples   int
}

func NewClock(cfg config.Config) *Clock {
	c := &Clock{
		offsetWeight: cfg.OffsetWeight,
		rttWeight:    cfg.RTTWeight,
		defaultRTT:   cfg.DefaultRTTMs,
		delayBase:    cfg.RenderDelayBase,
		delayMin:     cfg.RenderDelayMinMs,
		delayMax:     cfg.RenderDelayMaxMs,
	}
	c.Reset()
	return c
}

// ObserveServerTime folds one (serverTime - localTime) sample into the
// smoothed offset. The first sample seeds the estimate.
func (c *Clock) ObserveServerTime(serverMs int64, local time.Time) {
	sample := float64(serverMs - local.UnixMilli())
	if !c.hasOffset {
		c.offsetMs = sample
		c.hasOffset = true
		return
	}
	c.offsetMs += (sample - c.offsetMs) * c.offsetWeight
}

// ObserveRTT folds one round-trip sample into the smoothed RTT.
func (c *Clock) ObserveRTT(sample time.Duration) {
	if sample < 0 {
		return
	}
	ms := float64(sample) / float64(time.Millisecond)
	c.rttMs += (ms - c.rttMs) * c.rttWeight
	c.samples++
}

// Offset returns the smoothed local-to-server offset in milliseconds.
func (c *Clock) Offset() float64 {
	return c.offsetMs
}

// Synced reports whether at least one server time has been observed.
func (c *Clock) Synced() bool {
	return c.hasOffset
}

// RTT returns the smoothed round-trip estimate.
func (c *Clock) RTT() time.Duration {
	return time.Duration(c.rttMs * float64(time.Millisecond))
}

// RTTSamples returns how many round-trip samples have been folded in.
func (c *Clock) RTTSamples() int {
	return c.samples
}

// RenderDelayMs is clamp(rtt/2 + base, min, max).
func (c *Clock) RenderDelayMs() float64 {
	d := c.rttMs*0.5 + c.delayBase
	if d < c.delayMin {
		d = c.delayMin
	}
	if d > c.delayMax {
		d = c.delayMax
	}
	return d
}

// RenderTime returns the virtual server time, in server milliseconds, at which
// remote entities should be sampled.
func (c *Clock) RenderTime(local time.Time) float64 {
	return float64(local.UnixMilli()) + c.offsetMs - c.RenderDelayMs()
}

// ServerNow returns the current estimated server time without render delay.
func (c *Clock) ServerNow(local time.Time) float64 {
	return float64(local.UnixMilli()) + c.offsetMs
}

// Reset forgets every sample. Only used on reconnect.
func (c *Clock) Reset() {
	c.offsetMs = 0
	c.hasOffset = false
	c.rttMs = c.defaultRTT
	c.samples = 0
}
