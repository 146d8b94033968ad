package network

import (
	"sort"
	"time"

	"github.com/automoto/doomerang-sync/shared/messages"
	dmath "github.com/yohamta/donburi/features/math"
)

// DefaultMaxPending bounds the unacknowledged input history.
const DefaultMaxPending = 256

// InputCommand is one chunk of local input: a constant movement direction and
// attack flag held for Duration.
type InputCommand struct {
	Sequence  uint32
	Direction dmath.Vec2 // unit or zero
	Attacking bool
	Duration  time.Duration
	LocalTime time.Time // when the chunk was flushed and sent
}

// Idle reports whether the command carries neither movement nor attack.
func (c InputCommand) Idle() bool {
	return c.Direction.X == 0 && c.Direction.Y == 0 && !c.Attacking
}

// DurationMs returns the wire duration, never below one millisecond.
func (c InputCommand) DurationMs() int32 {
	ms := c.Duration.Round(time.Millisecond).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return int32(ms)
}

// Message converts the command to its wire form.
func (c InputCommand) Message(credential string) messages.PlayerInput {
	return messages.PlayerInput{
		Sequence:     c.Sequence,
		MoveX:        c.Direction.X,
		MoveY:        c.Direction.Y,
		Attacking:    c.Attacking,
		DurationMs:   c.DurationMs(),
		ClientTimeMs: c.LocalTime.UnixMilli(),
		Credential:   credential,
	}
}

// InputBuffer stores sent but unacknowledged inputs in ascending sequence
// order for server reconciliation.
type InputBuffer struct {
	cmds []InputCommand
	max  int
}

func NewInputBuffer(max int) *InputBuffer {
	if max <= 0 {
		max = DefaultMaxPending
	}
	return &InputBuffer{max: max}
}

// Add appends a command. Sequences must increase; a command that does not is
// ignored. When full the oldest command is discarded.
func (b *InputBuffer) Add(cmd InputCommand) bool {
	if n := len(b.cmds); n > 0 && !SeqNewer(cmd.Sequence, b.cmds[n-1].Sequence) {
		return false
	}
	if len(b.cmds) >= b.max {
		b.cmds = append(b.cmds[:0], b.cmds[1:]...)
	}
	b.cmds = append(b.cmds, cmd)
	return true
}

// Get retrieves a retained command by sequence number.
func (b *InputBuffer) Get(seq uint32) (InputCommand, bool) {
	i := sort.Search(len(b.cmds), func(i int) bool {
		return !SeqNewer(seq, b.cmds[i].Sequence)
	})
	if i < len(b.cmds) && b.cmds[i].Sequence == seq {
		return b.cmds[i], true
	}
	return InputCommand{}, false
}

// Ack drops every command with sequence <= lastProcessed and returns how many
// were dropped.
func (b *InputBuffer) Ack(lastProcessed uint32) int {
	n := 0
	for n < len(b.cmds) && !SeqNewer(b.cmds[n].Sequence, lastProcessed) {
		n++
	}
	if n > 0 {
		b.cmds = append(b.cmds[:0], b.cmds[n:]...)
	}
	return n
}

// Pending returns the unacknowledged commands in ascending sequence order.
// The slice is only valid until the next mutation.
func (b *InputBuffer) Pending() []InputCommand {
	return b.cmds
}

func (b *InputBuffer) Len() int {
	return len(b.cmds)
}

func (b *InputBuffer) Clear() {
	b.cmds = b.cmds[:0]
}
