package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dmath "github.com/yohamta/donburi/features/math"
)

func testBuffer() EntityBuffer {
	return NewEntityBuffer(BufferConfig{RetentionMs: 500, MaxExtrapolationMs: 150})
}

func assertPos(t *testing.T, want dmath.Vec2, got Pose) {
	t.Helper()
	assert.InDelta(t, want.X, got.Position.X, 1e-9)
	assert.InDelta(t, want.Y, got.Position.Y, 1e-9)
}

func TestEntityBufferInterpolatesAndExtrapolates(t *testing.T) {
	b := testBuffer()
	require.True(t, b.Push(dmath.Vec2{}, 0, 0))
	require.True(t, b.Push(dmath.Vec2{X: 10}, 0, 100))

	pose, ok := b.Sample(50)
	require.True(t, ok)
	assertPos(t, dmath.Vec2{X: 5}, pose)
	assert.False(t, pose.Extrapolated)

	pose, _ = b.Sample(150)
	assertPos(t, dmath.Vec2{X: 15}, pose)
	assert.True(t, pose.Extrapolated)

	// capped at 150ms past the newest sample
	pose, _ = b.Sample(400)
	assertPos(t, dmath.Vec2{X: 25}, pose)
}

func TestEntityBufferEmptyAndBeforeOldest(t *testing.T) {
	b := testBuffer()
	_, ok := b.Sample(10)
	assert.False(t, ok)

	b.Push(dmath.Vec2{X: 3, Y: 4}, 1, 1000)
	pose, ok := b.Sample(900)
	require.True(t, ok)
	assertPos(t, dmath.Vec2{X: 3, Y: 4}, pose)
	assert.Equal(t, 1.0, pose.Rotation)
	assert.False(t, pose.Extrapolated)
}

func TestEntityBufferDropsOutOfOrder(t *testing.T) {
	b := testBuffer()
	b.Push(dmath.Vec2{X: 1}, 0, 200)
	assert.False(t, b.Push(dmath.Vec2{X: 99}, 0, 100))
	assert.Equal(t, 1, b.Len())
}

func TestEntityBufferEvictsOutsideRetention(t *testing.T) {
	b := testBuffer()
	for ms := int64(0); ms <= 1000; ms += 100 {
		b.Push(dmath.Vec2{X: float64(ms)}, 0, ms)
	}

	samples := b.Samples()
	require.NotEmpty(t, samples)
	assert.Equal(t, int64(500), samples[0].ServerTimeMs)
	assert.Equal(t, int64(1000), samples[len(samples)-1].ServerTimeMs)

	// a long gap still keeps the newest sample
	b.Push(dmath.Vec2{}, 0, 10_000)
	assert.Equal(t, 1, b.Len())
}

func TestEntityBufferVelocity(t *testing.T) {
	b := testBuffer()
	b.Push(dmath.Vec2{}, 0, 0)
	b.Push(dmath.Vec2{X: 10}, 0, 100)

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.InDelta(t, 100, latest.Velocity.X, 1e-9)

	// zero elapsed reuses the previous velocity
	b.Push(dmath.Vec2{X: 50}, 0, 100)
	latest, _ = b.Latest()
	assert.InDelta(t, 100, latest.Velocity.X, 1e-9)
}

func TestEntityBufferClampsVelocity(t *testing.T) {
	b := NewEntityBuffer(BufferConfig{RetentionMs: 500, MaxExtrapolationMs: 150, MaxSpeed: 200})
	b.Push(dmath.Vec2{}, 0, 0)
	b.Push(dmath.Vec2{X: 1000}, 0, 100)

	latest, _ := b.Latest()
	assert.InDelta(t, 200, latest.Velocity.Magnitude(), 1e-9)
}

func TestEntityBufferSeed(t *testing.T) {
	b := testBuffer()
	b.Push(dmath.Vec2{}, 0, 0)
	b.Seed(dmath.Vec2{Y: 60})

	pose, _ := b.Sample(100)
	assertPos(t, dmath.Vec2{Y: 6}, pose)

	b.Push(dmath.Vec2{}, 0, 100)
	b.Seed(dmath.Vec2{Y: 999})
	latest, _ := b.Latest()
	assert.Zero(t, latest.Velocity.Y, "seed only applies to a lone sample")
}

func TestAttackStateSyncOverridesEstimate(t *testing.T) {
	now := time.UnixMilli(0)
	a := NewAttackState(300 * time.Millisecond)
	assert.False(t, a.Active(now))

	a.Trigger(now)
	assert.True(t, a.Active(now.Add(100*time.Millisecond)))
	assert.False(t, a.Active(now.Add(300*time.Millisecond)))

	a.Sync(false)
	a.Trigger(now)
	assert.False(t, a.Active(now.Add(10*time.Millisecond)), "synced flag wins")
	assert.True(t, a.Synced())

	a.Sync(true)
	assert.True(t, a.Active(now.Add(time.Hour)))
}
