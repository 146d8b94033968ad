package systems

import (
	"time"

	"github.com/automoto/doomerang-sync/network"
	"github.com/automoto/doomerang-sync/shared/gamemath"
	dmath "github.com/yohamta/donburi/features/math"
)

// InputChunker merges consecutive simulation steps with the same movement
// direction and attack flag into one InputCommand instead of sending every
// step to the server.
type InputChunker struct {
	maxChunk time.Duration
	seq      uint32

	open   bool
	dir    dmath.Vec2
	attack bool
	acc    time.Duration

	idleSent bool
	lastIdle bool // the most recent command handed out was idle
}

func NewInputChunker(maxChunk time.Duration) *InputChunker {
	if maxChunk <= 0 {
		maxChunk = 100 * time.Millisecond
	}
	return &InputChunker{maxChunk: maxChunk}
}

// Step feeds one simulation step and returns the commands to transmit, in
// order. A changed input flushes the open chunk first. Attacks flush at once
// and are never merged across steps. Stopping produces a single idle command;
// further idle steps send nothing until movement resumes.
func (c *InputChunker) Step(dir dmath.Vec2, attack bool, dt time.Duration, now time.Time) []network.InputCommand {
	var out []network.InputCommand
	if c.open && (dir != c.dir || attack != c.attack) {
		out = append(out, c.flush(now))
	}

	if gamemath.IsZero(dir) && !attack {
		if !c.idleSent {
			c.idleSent = true
			out = append(out, c.next(dmath.Vec2{}, false, dt, now))
		}
		return out
	}

	c.idleSent = false
	if !c.open {
		c.open = true
		c.dir = dir
		c.attack = attack
		c.acc = 0
	}
	c.acc += dt
	if attack || c.acc >= c.maxChunk {
		out = append(out, c.flush(now))
	}
	return out
}

// ClearIdle lifts idle suppression after a reconciliation leaves no
// unacknowledged input. Suppression stays while the last command sent was the
// idle itself, so acknowledging the stop never produces another one.
func (c *InputChunker) ClearIdle() {
	if !c.lastIdle {
		c.idleSent = false
	}
}

// Open returns the movement already simulated locally but not yet flushed.
func (c *InputChunker) Open() (dmath.Vec2, time.Duration, bool) {
	if !c.open {
		return dmath.Vec2{}, 0, false
	}
	return c.dir, c.acc, true
}

// Sequence returns the last sequence number handed out.
func (c *InputChunker) Sequence() uint32 {
	return c.seq
}

func (c *InputChunker) Reset() {
	*c = InputChunker{maxChunk: c.maxChunk}
}

func (c *InputChunker) flush(now time.Time) network.InputCommand {
	cmd := c.next(c.dir, c.attack, c.acc, now)
	c.open = false
	c.acc = 0
	return cmd
}

func (c *InputChunker) next(dir dmath.Vec2, attack bool, d time.Duration, now time.Time) network.InputCommand {
	c.seq++
	c.lastIdle = gamemath.IsZero(dir) && !attack
	return network.InputCommand{
		Sequence:  c.seq,
		Direction: dir,
		Attacking: attack,
		Duration:  d,
		LocalTime: now,
	}
}
