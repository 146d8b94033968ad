package systems

import (
	"testing"
	"time"

	"github.com/automoto/doomerang-sync/config"
	"github.com/automoto/doomerang-sync/network"
	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	events     chan network.Event
	inputs     []network.InputCommand
	sent       []messages.Message
	credential string
	authErr    error
	inputErr   error
	closed     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan network.Event, 64)}
}

func (f *fakeTransport) Events() <-chan network.Event { return f.events }

func (f *fakeTransport) SendInput(cmd network.InputCommand) error {
	if f.inputErr != nil {
		return f.inputErr
	}
	f.inputs = append(f.inputs, cmd)
	return nil
}

func (f *fakeTransport) SendMessage(msg messages.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Authenticate(credential string) error {
	f.credential = credential
	return f.authErr
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

type sessionHarness struct {
	t         *testing.T
	session   *Session
	transport *fakeTransport
	now       time.Time
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *sessionHarness {
	c := config.Default()
	for _, m := range mutate {
		m(&c)
	}
	h := &sessionHarness{t: t, transport: newFakeTransport(), now: time.UnixMilli(1_000_000)}
	h.session = NewSession(c, h.transport,
		WithSessionClock(func() time.Time { return h.now }),
		WithSessionLogger(zerolog.Nop()),
	)
	return h
}

func (h *sessionHarness) deliver(ch network.Channel, msg messages.Message) {
	h.transport.events <- network.Event{Kind: network.EventMessage, Channel: ch, Message: msg, Received: h.now}
	h.session.Pump()
}

func (h *sessionHarness) login() {
	h.transport.events <- network.Event{Kind: network.EventConnected}
	h.deliver(network.ChannelReliable, messages.LoginResult{
		Success: true, PlayerID: 1, Credential: "tok", ServerTimeMs: h.now.UnixMilli(), TickRate: 60,
	})
	require.Equal(h.t, SessionLoggedIn, h.session.State())
}

func (h *sessionHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func selfAt(x, y float64) messages.EntityState {
	return messages.EntityState{ID: 1, Kind: messages.EntityPlayer, Alive: true, Health: 5, MaxHealth: 5, X: x, Y: y}
}

func full(tick int64, serverMs int64, lpi uint32, states ...messages.EntityState) messages.FullState {
	return messages.FullState{
		StateHeader: messages.StateHeader{Tick: tick, ServerTimeMs: serverMs, LastProcessedInput: lpi},
		Entities:    states,
	}
}

func TestSessionLogin(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.session.Login())
	require.Len(t, h.transport.sent, 1)
	assert.IsType(t, messages.LoginRequest{}, h.transport.sent[0])

	h.login()
	assert.Equal(t, "tok", h.transport.credential)
	assert.Equal(t, uint32(1), h.session.PlayerID())

	var kinds []LifecycleKind
	for _, ev := range h.session.Lifecycle() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []LifecycleKind{LifecycleConnected, LifecycleLoggedIn}, kinds)
	assert.Empty(t, h.session.Lifecycle(), "drained")
}

func TestSessionLoginSurvivesDatagramFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.authErr = eris.New("udp blocked")
	h.login()
	assert.Equal(t, SessionLoggedIn, h.session.State())
}

func TestSessionLoginRejected(t *testing.T) {
	h := newHarness(t)
	h.deliver(network.ChannelReliable, messages.LoginResult{Success: false, Reason: "full"})

	events := h.session.Lifecycle()
	require.Len(t, events, 1)
	assert.Equal(t, LifecycleLoginFailed, events[0].Kind)
	assert.Equal(t, "full", events[0].Reason)
	assert.NotEqual(t, SessionLoggedIn, h.session.State())
}

func TestSessionRenderSuppressedUntilFullState(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, ok := h.session.LocalPose()
	assert.False(t, ok)

	h.deliver(network.ChannelReliable, messages.DeltaState{
		StateHeader: messages.StateHeader{Tick: 1, ServerTimeMs: h.now.UnixMilli()},
		Entities:    []messages.EntityState{{ID: 1, Fields: messages.FieldPosition, X: 9}},
	})
	_, ok = h.session.LocalPose()
	assert.False(t, ok, "deltas do not initialize prediction")

	h.deliver(network.ChannelReliable, full(2, h.now.UnixMilli(), 0, selfAt(50, 60)))
	pose, ok := h.session.LocalPose()
	require.True(t, ok)
	assert.Equal(t, 50.0, pose.Position.X)
	assert.Equal(t, 60.0, pose.Position.Y)
	assert.Equal(t, int32(5), h.session.Self().Health)
}

func TestSessionReconcilesAgainstPendingInput(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.deliver(network.ChannelReliable, full(1, h.now.UnixMilli(), 0, selfAt(100, 100)))

	// 100ms at 120 units/s flushes one full chunk
	h.session.Update(right, false, 100*time.Millisecond)
	require.Len(t, h.transport.inputs, 1)
	pose, _ := h.session.LocalPose()
	assert.InDelta(t, 112, pose.Position.X, 1e-9)

	h.advance(80 * time.Millisecond)
	h.deliver(network.ChannelUnreliable, full(2, h.now.UnixMilli(), 1, selfAt(112, 100)))
	pose, _ = h.session.LocalPose()
	assert.InDelta(t, 112, pose.Position.X, 1e-9)
	assert.Zero(t, h.session.PendingInputs())
	assert.Equal(t, 1, h.session.Clock().RTTSamples())

	h.session.Update(right, false, 100*time.Millisecond)
	h.session.Update(right, false, 100*time.Millisecond)
	require.Len(t, h.transport.inputs, 3)

	h.deliver(network.ChannelUnreliable, full(3, h.now.UnixMilli(), 1, selfAt(112, 100)))
	pose, _ = h.session.LocalPose()
	assert.InDelta(t, 136, pose.Position.X, 1e-9, "two unprocessed commands replayed")
	assert.Equal(t, 2, h.session.PendingInputs())
}

func TestSessionReappliesOpenChunkAfterReconcile(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.deliver(network.ChannelReliable, full(1, h.now.UnixMilli(), 0, selfAt(100, 100)))

	h.session.Update(right, false, 50*time.Millisecond)
	assert.Empty(t, h.transport.inputs, "chunk still open")

	h.deliver(network.ChannelReliable, full(2, h.now.UnixMilli(), 0, selfAt(100, 100)))
	pose, _ := h.session.LocalPose()
	assert.InDelta(t, 106, pose.Position.X, 1e-9)
}

func TestSessionSendsOneIdleWhileServerAcknowledges(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.deliver(network.ChannelReliable, full(1, h.now.UnixMilli(), 0, selfAt(100, 100)))

	tick := int64(2)
	for i := 0; i < 300; i++ {
		h.advance(16 * time.Millisecond)
		h.session.Update(still, false, 16*time.Millisecond)
		if i%6 == 5 {
			var lpi uint32
			if n := len(h.transport.inputs); n > 0 {
				lpi = h.transport.inputs[n-1].Sequence
			}
			h.deliver(network.ChannelReliable, full(tick, h.now.UnixMilli(), lpi, selfAt(100, 100)))
			tick++
		}
	}
	require.Len(t, h.transport.inputs, 1)
	assert.True(t, h.transport.inputs[0].Idle())
	assert.Zero(t, h.session.PendingInputs())

	// moving again and stopping reports the new stop once
	h.session.Update(right, false, 100*time.Millisecond)
	for i := 0; i < 10; i++ {
		h.session.Update(still, false, 16*time.Millisecond)
	}
	require.Len(t, h.transport.inputs, 3)
	assert.False(t, h.transport.inputs[1].Idle())
	assert.True(t, h.transport.inputs[2].Idle())
}

func TestSessionDropsStaleUnreliableState(t *testing.T) {
	h := newHarness(t)
	h.login()
	base := h.now.UnixMilli()

	h.deliver(network.ChannelUnreliable, full(10, base, 0, selfAt(100, 100)))
	h.deliver(network.ChannelUnreliable, full(9, base-16, 0, selfAt(0, 0)))
	h.deliver(network.ChannelUnreliable, full(10, base, 0, selfAt(0, 0)))

	pose, _ := h.session.LocalPose()
	assert.Equal(t, 100.0, pose.Position.X)
	assert.Equal(t, uint64(2), h.session.Stats().Dropped)
	assert.Equal(t, uint64(1), h.session.Stats().Accepted)

	// reliable state is never dropped and raises the watermark
	h.deliver(network.ChannelReliable, full(12, base+32, 0, selfAt(120, 100)))
	h.deliver(network.ChannelUnreliable, full(11, base+16, 0, selfAt(0, 0)))
	pose, _ = h.session.LocalPose()
	assert.Equal(t, 120.0, pose.Position.X)
}

func TestSessionRemoteEntities(t *testing.T) {
	h := newHarness(t)
	h.login()
	base := h.now.UnixMilli()

	other := func(id uint32, x float64) messages.EntityState {
		return messages.EntityState{ID: id, Kind: messages.EntityEnemy, Alive: true, X: x}
	}
	h.deliver(network.ChannelReliable, full(1, base, 0, selfAt(0, 0), other(2, 10), other(3, 20)))

	ids := func() []uint32 {
		var out []uint32
		for _, v := range h.session.RemoteEntities() {
			out = append(out, v.ID)
		}
		return out
	}
	assert.Equal(t, []uint32{2, 3}, ids(), "self is never a remote entity")

	h.deliver(network.ChannelReliable, messages.DeltaState{
		StateHeader: messages.StateHeader{Tick: 2, ServerTimeMs: base + 16},
		Removed:     []uint32{2},
	})
	assert.Equal(t, []uint32{3}, ids())

	h.deliver(network.ChannelReliable, full(3, base+32, 0, selfAt(0, 0), other(4, 0)))
	assert.Equal(t, []uint32{4}, ids(), "full state retires absent entities")
}

func TestSessionForwardsGameEvents(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.deliver(network.ChannelReliable, full(1, h.now.UnixMilli(), 0, selfAt(0, 0)))

	h.deliver(network.ChannelReliable, messages.EntityHealth{ID: 1, Health: 2, MaxHealth: 5})
	h.deliver(network.ChannelReliable, messages.LevelUp{ID: 1, Level: 3, MaxHealth: 8})
	h.deliver(network.ChannelReliable, messages.ItemDrop{DropID: 4})
	h.deliver(network.ChannelReliable, messages.EntityDeath{ID: 1})
	h.deliver(network.ChannelReliable, messages.Unknown{RawKind: 200})

	assert.Len(t, h.session.GameEvents(), 4)
	self := h.session.Self()
	assert.False(t, self.Alive)
	assert.Equal(t, int32(3), self.Level)
	assert.Equal(t, int32(8), self.MaxHealth)
}

func TestSessionRequestsResyncWhenStateStops(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.deliver(network.ChannelReliable, full(7, h.now.UnixMilli(), 0, selfAt(0, 0)))
	h.transport.sent = nil

	h.advance(2 * time.Second)
	h.session.Update(still, false, 16*time.Millisecond)
	assert.Empty(t, h.transport.sent)

	h.advance(time.Second)
	h.session.Update(still, false, 16*time.Millisecond)
	require.Len(t, h.transport.sent, 1)
	req, ok := h.transport.sent[0].(messages.ResyncRequest)
	require.True(t, ok)
	assert.Equal(t, int64(7), req.LastTick)
	assert.Equal(t, "tok", req.Credential)

	h.session.Update(still, false, 16*time.Millisecond)
	assert.Len(t, h.transport.sent, 1, "rate limited")
}

func TestSessionDisconnectClearsState(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.deliver(network.ChannelReliable, full(1, h.now.UnixMilli(), 0, selfAt(0, 0),
		messages.EntityState{ID: 2, Alive: true}))
	h.session.Lifecycle()

	cause := eris.New("connection reset")
	h.transport.events <- network.Event{Kind: network.EventDisconnected, Err: cause}
	h.session.Pump()

	assert.Equal(t, SessionDisconnected, h.session.State())
	assert.Equal(t, 1, h.transport.closed)
	_, ok := h.session.LocalPose()
	assert.False(t, ok)
	assert.Empty(t, h.session.RemoteEntities())

	events := h.session.Lifecycle()
	require.Len(t, events, 1)
	assert.Equal(t, LifecycleDisconnected, events[0].Kind)
	assert.Equal(t, cause, events[0].Err)

	h.session.Update(right, false, 100*time.Millisecond)
	assert.Empty(t, h.transport.inputs, "no input without a session")
}

func TestSessionIgnoresMessagesQueuedBehindDisconnect(t *testing.T) {
	h := newHarness(t)
	h.login()

	h.transport.events <- network.Event{Kind: network.EventDisconnected, Err: eris.New("reset")}
	h.transport.events <- network.Event{
		Kind: network.EventMessage, Channel: network.ChannelUnreliable,
		Message: full(5, h.now.UnixMilli(), 0, selfAt(10, 10), messages.EntityState{ID: 2, Alive: true}), Received: h.now,
	}
	h.transport.events <- network.Event{
		Kind: network.EventMessage, Channel: network.ChannelReliable,
		Message: messages.LoginResult{Success: true, PlayerID: 1, Credential: "late"}, Received: h.now,
	}
	h.session.Pump()

	assert.Equal(t, SessionDisconnected, h.session.State())
	assert.Zero(t, h.session.PlayerID())
	assert.Empty(t, h.session.RemoteEntities())
	assert.Zero(t, h.session.registry.Len())
	_, ok := h.session.LocalPose()
	assert.False(t, ok)

	// a new connection accepts messages again
	h.login()
	assert.Equal(t, uint32(1), h.session.PlayerID())
}

func TestSessionDropsInputThatFailedToSend(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.deliver(network.ChannelReliable, full(1, h.now.UnixMilli(), 0, selfAt(100, 100)))

	h.transport.inputErr = eris.New("not connected")
	h.session.Update(right, false, 100*time.Millisecond)
	assert.Zero(t, h.session.PendingInputs())
	pose, _ := h.session.LocalPose()
	assert.InDelta(t, 112, pose.Position.X, 1e-9, "local prediction still moves")

	h.deliver(network.ChannelReliable, full(2, h.now.UnixMilli(), 0, selfAt(100, 100)))
	pose, _ = h.session.LocalPose()
	assert.InDelta(t, 100, pose.Position.X, 1e-9, "unsent input is not replayed")

	h.transport.inputErr = nil
	h.session.Update(right, false, 100*time.Millisecond)
	require.Len(t, h.transport.inputs, 1)
	assert.Equal(t, 1, h.session.PendingInputs())
}

func TestSessionClose(t *testing.T) {
	h := newHarness(t)
	h.login()
	require.NoError(t, h.session.Close())
	assert.Equal(t, 1, h.transport.closed)
	assert.Zero(t, h.session.PlayerID())
	assert.False(t, h.session.Clock().Synced())
}
