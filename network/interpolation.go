package network

import (
	"time"

	"github.com/automoto/doomerang-sync/config"
	"github.com/automoto/doomerang-sync/shared/gamemath"
	dmath "github.com/yohamta/donburi/features/math"
)

// Sample is one authoritative observation of a remote entity.
type Sample struct {
	Position     dmath.Vec2
	Velocity     dmath.Vec2 // units per second, derived from the previous sample
	Rotation     float64
	ServerTimeMs int64
}

// Pose is what the renderer draws for a remote entity.
type Pose struct {
	Position dmath.Vec2
	Rotation float64
	// Extrapolated is set when the render time was past the newest sample.
	Extrapolated bool
}

// BufferConfig tunes every EntityBuffer.
type BufferConfig struct {
	RetentionMs        int64
	MaxExtrapolationMs int64
	MaxSpeed           float64 // velocity clamp, 0 disables
}

// BufferConfigFrom derives the buffer tuning from the client config.
func BufferConfigFrom(cfg config.Config) BufferConfig {
	return BufferConfig{
		RetentionMs:        int64(cfg.RetentionMs),
		MaxExtrapolationMs: int64(cfg.MaxExtrapolationMs),
		MaxSpeed:           cfg.MoveSpeed * cfg.MaxSpeedMultiple,
	}
}

// EntityBuffer keeps a trailing window of samples for one remote entity,
// ordered by server time, and renders it at a delayed virtual time.
type EntityBuffer struct {
	cfg     BufferConfig
	samples []Sample
}

func NewEntityBuffer(cfg BufferConfig) EntityBuffer {
	return EntityBuffer{cfg: cfg}
}

// Push appends a sample. Samples older than the newest one are dropped, so
// the buffer stays non-decreasing in server time. It returns false for a
// dropped sample.
func (b *EntityBuffer) Push(pos dmath.Vec2, rotation float64, serverMs int64) bool {
	s := Sample{Position: pos, Rotation: rotation, ServerTimeMs: serverMs}
	if n := len(b.samples); n > 0 {
		prev := b.samples[n-1]
		if serverMs < prev.ServerTimeMs {
			return false
		}
		elapsed := serverMs - prev.ServerTimeMs
		if elapsed <= 0 {
			s.Velocity = prev.Velocity
		} else {
			v := pos.Sub(prev.Position).MulScalar(1000 / float64(elapsed))
			s.Velocity = gamemath.ClampMagnitude(v, b.cfg.MaxSpeed)
		}
	}
	b.samples = append(b.samples, s)
	b.evict()
	return true
}

// Seed sets the velocity of the newest sample when the server supplied one
// and the buffer has nothing to derive it from yet.
func (b *EntityBuffer) Seed(vel dmath.Vec2) {
	if len(b.samples) == 1 {
		b.samples[0].Velocity = gamemath.ClampMagnitude(vel, b.cfg.MaxSpeed)
	}
}

func (b *EntityBuffer) evict() {
	newest := b.samples[len(b.samples)-1].ServerTimeMs
	cutoff := newest - b.cfg.RetentionMs
	n := 0
	for n < len(b.samples)-1 && b.samples[n].ServerTimeMs < cutoff {
		n++
	}
	if n > 0 {
		b.samples = append(b.samples[:0], b.samples[n:]...)
	}
}

// Sample renders the entity at renderMs. ok is false while the buffer is empty.
func (b *EntityBuffer) Sample(renderMs float64) (Pose, bool) {
	if len(b.samples) == 0 {
		return Pose{}, false
	}

	prev, next := -1, -1
	for i := range b.samples {
		if float64(b.samples[i].ServerTimeMs) <= renderMs {
			prev = i
		} else {
			next = i
			break
		}
	}

	switch {
	case prev >= 0 && next >= 0:
		p, n := b.samples[prev], b.samples[next]
		span := float64(n.ServerTimeMs - p.ServerTimeMs)
		t := (renderMs - float64(p.ServerTimeMs)) / span
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		return Pose{
			Position: gamemath.Lerp(p.Position, n.Position, t),
			Rotation: gamemath.LerpAngle(p.Rotation, n.Rotation, t),
		}, true
	case prev >= 0:
		p := b.samples[prev]
		ahead := renderMs - float64(p.ServerTimeMs)
		if limit := float64(b.cfg.MaxExtrapolationMs); ahead > limit {
			ahead = limit
		}
		return Pose{
			Position:     p.Position.Add(p.Velocity.MulScalar(ahead / 1000)),
			Rotation:     p.Rotation,
			Extrapolated: ahead > 0,
		}, true
	default:
		n := b.samples[next]
		return Pose{Position: n.Position, Rotation: n.Rotation}, true
	}
}

// Latest returns the newest sample.
func (b *EntityBuffer) Latest() (Sample, bool) {
	if len(b.samples) == 0 {
		return Sample{}, false
	}
	return b.samples[len(b.samples)-1], true
}

// Samples returns the retained samples, oldest first.
func (b *EntityBuffer) Samples() []Sample {
	return b.samples
}

func (b *EntityBuffer) Len() int {
	return len(b.samples)
}

// AttackState tracks whether a remote entity's attack is active. An explicit
// synced flag always wins; before one arrives, a trigger opens a window of
// the locally estimated attack duration.
type AttackState struct {
	estimate    time.Duration
	synced      bool
	active      bool
	triggeredAt time.Time
}

func NewAttackState(estimate time.Duration) AttackState {
	return AttackState{estimate: estimate}
}

// Trigger starts a locally estimated attack window at now.
func (a *AttackState) Trigger(now time.Time) {
	a.triggeredAt = now
}

// Sync applies the authoritative flag. From here on the local estimate is
// ignored for this entity.
func (a *AttackState) Sync(active bool) {
	a.synced = true
	a.active = active
}

// Synced reports whether an explicit flag has ever been received.
func (a *AttackState) Synced() bool {
	return a.synced
}

// Active reports whether the attack is in progress at now.
func (a *AttackState) Active(now time.Time) bool {
	if a.synced {
		return a.active
	}
	if a.triggeredAt.IsZero() {
		return false
	}
	return now.Sub(a.triggeredAt) < a.estimate
}
