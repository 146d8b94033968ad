package network

import "github.com/automoto/doomerang-sync/shared/messages"

// SeqNewer reports whether a is strictly after b on a wrapping uint32 counter.
func SeqNewer(a, b uint32) bool {
	return int32(a-b) > 0
}

// StateFilter drops state broadcasts that arrive late or twice on the
// unreliable channel. Ticks are compared first; messages without a tick fall
// back to their embedded server time.
type StateFilter struct {
	lastTick     uint32
	hasTick      bool
	lastServerMs int64
	hasServerMs  bool
}

// Accept decides whether h is newer than everything accepted so far and, if
// so, advances the watermarks. A rejected header leaves the filter untouched.
func (f *StateFilter) Accept(h messages.StateHeader) bool {
	if h.HasTick() {
		tick := uint32(h.Tick)
		if f.hasTick && !SeqNewer(tick, f.lastTick) {
			return false
		}
		f.lastTick = tick
		f.hasTick = true
		f.advanceTime(h.ServerTimeMs)
		return true
	}
	if f.hasServerMs && h.ServerTimeMs <= f.lastServerMs {
		return false
	}
	f.lastServerMs = h.ServerTimeMs
	f.hasServerMs = true
	return true
}

// Observe records state that arrived on the reliable channel. It is never
// rejected, but it moves the watermarks forward so a stale unreliable copy
// cannot regress it afterwards.
func (f *StateFilter) Observe(h messages.StateHeader) {
	if h.HasTick() {
		tick := uint32(h.Tick)
		if !f.hasTick || SeqNewer(tick, f.lastTick) {
			f.lastTick = tick
			f.hasTick = true
		}
	}
	f.advanceTime(h.ServerTimeMs)
}

func (f *StateFilter) advanceTime(serverMs int64) {
	if !f.hasServerMs || serverMs > f.lastServerMs {
		f.lastServerMs = serverMs
		f.hasServerMs = true
	}
}

// LastTick returns the last accepted tick, or messages.NoTick.
func (f *StateFilter) LastTick() int64 {
	if !f.hasTick {
		return messages.NoTick
	}
	return int64(f.lastTick)
}

// LastServerTime returns the newest accepted server time in milliseconds.
func (f *StateFilter) LastServerTime() (int64, bool) {
	return f.lastServerMs, f.hasServerMs
}

func (f *StateFilter) Reset() {
	*f = StateFilter{}
}
