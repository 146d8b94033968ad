package systems

import (
	"time"

	"github.com/automoto/doomerang-sync/config"
	"github.com/automoto/doomerang-sync/network"
	"github.com/automoto/doomerang-sync/shared/gamemath"
	"github.com/automoto/doomerang-sync/shared/leveldata"
	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	dmath "github.com/yohamta/donburi/features/math"
)

// Transport is the part of network.Client the session drives.
type Transport interface {
	Events() <-chan network.Event
	SendInput(cmd network.InputCommand) error
	SendMessage(msg messages.Message) error
	Authenticate(credential string) error
	Close() error
}

type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnected
	SessionLoggedIn
)

func (s SessionState) String() string {
	switch s {
	case SessionConnected:
		return "connected"
	case SessionLoggedIn:
		return "logged in"
	default:
		return "disconnected"
	}
}

type LifecycleKind int

const (
	LifecycleConnected LifecycleKind = iota
	LifecycleLoggedIn
	LifecycleLoginFailed
	LifecycleDisconnected
)

// LifecycleEvent reports a session state change to the UI layer.
type LifecycleEvent struct {
	Kind   LifecycleKind
	Reason string // login rejection reason
	Err    error  // disconnect cause
}

// SelfStatus is the authoritative non-spatial state of the local player.
type SelfStatus struct {
	ID        uint32
	Alive     bool
	Health    int32
	MaxHealth int32
	Level     int32
}

// SessionStats counts state traffic for diagnostics.
type SessionStats struct {
	Accepted uint64
	Dropped  uint64
	Resyncs  uint64
}

type SessionOption func(*Session)

func WithSessionLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = l.With().Str("component", "session").Logger() }
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithLevel enables collision for the local player's prediction.
func WithLevel(level *leveldata.CollisionData) SessionOption {
	return func(s *Session) { s.level = level }
}

// Session is the explicit context of one connection: credential, predicted
// local state, staleness filter, clock and remote entities. Every method must
// be called from the simulation goroutine; the transport only hands events
// over through its channel.
type Session struct {
	cfg       config.Config
	transport Transport
	log       zerolog.Logger
	now       func() time.Time
	level     *leveldata.CollisionData

	state      SessionState
	ended      bool // torn down; messages are dropped until the next connect
	playerID   uint32
	credential string
	tickRate   int
	self       SelfStatus

	filter   network.StateFilter
	clock    *network.Clock
	pred     *Predictor
	chunker  *InputChunker
	registry *EntityRegistry

	resyncIdle   time.Duration
	lastAccepted time.Time
	lastResync   time.Time

	lifecycle  []LifecycleEvent
	gameEvents []messages.Message
	stats      SessionStats
}

func NewSession(c config.Config, transport Transport, opts ...SessionOption) *Session {
	s := &Session{
		cfg:        c,
		transport:  transport,
		log:        log.Logger.With().Str("component", "session").Logger(),
		now:        time.Now,
		clock:      network.NewClock(c),
		chunker:    NewInputChunker(time.Duration(c.MaxChunkMs) * time.Millisecond),
		registry:   NewEntityRegistry(c),
		resyncIdle: time.Duration(c.ResyncIdleMs) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pred = NewPredictor(c, s.clock)
	s.pred.InitCollision(s.level)
	return s
}

// Login asks the server to admit this client.
func (s *Session) Login() error {
	return s.transport.SendMessage(messages.LoginRequest{
		Version:    s.cfg.ClientVersion,
		PlayerName: s.cfg.PlayerName,
	})
}

// Pump applies every event the transport has queued since the last call.
func (s *Session) Pump() {
	for _, ev := range network.DrainEvents(s.transport.Events()) {
		s.handle(ev)
	}
}

func (s *Session) handle(ev network.Event) {
	switch ev.Kind {
	case network.EventConnected:
		s.ended = false
		s.state = SessionConnected
		s.lifecycle = append(s.lifecycle, LifecycleEvent{Kind: LifecycleConnected})
	case network.EventDisconnected:
		s.log.Warn().Err(ev.Err).Msg("session ended")
		if err := s.transport.Close(); err != nil {
			s.log.Debug().Err(err).Msg("transport close")
		}
		s.teardown()
		s.lifecycle = append(s.lifecycle, LifecycleEvent{Kind: LifecycleDisconnected, Err: ev.Err})
	case network.EventMessage:
		if s.ended {
			s.log.Debug().Stringer("kind", ev.Message.Kind()).Msg("dropping message after teardown")
			return
		}
		s.dispatch(ev.Message, ev.Channel, ev.Received)
	}
}

func (s *Session) dispatch(msg messages.Message, ch network.Channel, received time.Time) {
	if received.IsZero() {
		received = s.now()
	}
	switch m := msg.(type) {
	case messages.LoginResult:
		s.handleLogin(m, received)
	case messages.FullState:
		s.applyState(m, ch, received)
	case messages.DeltaState:
		s.applyState(m, ch, received)
	case messages.EntityHealth:
		if m.ID == s.playerID {
			s.self.Health, s.self.MaxHealth = m.Health, m.MaxHealth
		} else {
			s.registry.ApplyHealth(m)
		}
		s.gameEvents = append(s.gameEvents, m)
	case messages.EntityDeath:
		if m.ID == s.playerID {
			s.self.Alive = false
			s.self.Health = 0
		} else {
			s.registry.ApplyDeath(m)
		}
		s.gameEvents = append(s.gameEvents, m)
	case messages.LevelUp:
		if m.ID == s.playerID {
			s.self.Level, s.self.MaxHealth = m.Level, m.MaxHealth
		} else {
			s.registry.ApplyLevel(m)
		}
		s.gameEvents = append(s.gameEvents, m)
	case messages.ItemDrop, messages.RoomUpdate:
		s.gameEvents = append(s.gameEvents, m)
	case messages.Heartbeat:
		s.log.Trace().Int64("server_ms", m.ServerTimeMs).Msg("heartbeat")
	case messages.Unknown:
		s.log.Debug().Uint8("kind", uint8(m.RawKind)).Msg("ignoring unknown message")
	default:
	}
}

func (s *Session) handleLogin(m messages.LoginResult, received time.Time) {
	if !m.Success {
		s.log.Warn().Str("reason", m.Reason).Msg("login rejected")
		s.lifecycle = append(s.lifecycle, LifecycleEvent{Kind: LifecycleLoginFailed, Reason: m.Reason})
		return
	}

	s.state = SessionLoggedIn
	s.playerID = m.PlayerID
	s.credential = m.Credential
	s.tickRate = m.TickRate
	s.self = SelfStatus{ID: m.PlayerID, Alive: true}
	s.registry.SetSelf(m.PlayerID)
	s.lastAccepted = received
	if m.ServerTimeMs > 0 {
		s.clock.ObserveServerTime(m.ServerTimeMs, received)
	}
	s.log.Info().Uint32("player_id", m.PlayerID).Int("tick_rate", m.TickRate).Msg("logged in")

	if err := s.transport.Authenticate(m.Credential); err != nil {
		s.log.Warn().Err(err).Msg("unreliable channel unavailable, using reliable channel for input")
	}
	s.lifecycle = append(s.lifecycle, LifecycleEvent{Kind: LifecycleLoggedIn})
}

func (s *Session) applyState(msg messages.Authoritative, ch network.Channel, received time.Time) {
	h := msg.Header()
	if ch == network.ChannelUnreliable {
		if !s.filter.Accept(h) {
			s.stats.Dropped++
			return
		}
	} else {
		s.filter.Observe(h)
	}
	s.stats.Accepted++
	s.lastAccepted = received
	if msg.Complete() {
		s.clock.ObserveServerTime(h.ServerTimeMs, received)
	}

	var keep map[uint32]struct{}
	if msg.Complete() {
		keep = make(map[uint32]struct{}, len(msg.States()))
	}
	for _, st := range msg.States() {
		fields := messages.FieldsOf(msg, st)
		if s.playerID != 0 && st.ID == s.playerID {
			s.reconcileSelf(msg, st, fields, h.LastProcessedInput, received)
			continue
		}
		s.registry.Apply(st, fields, h.ServerTimeMs, received)
		if keep != nil {
			keep[st.ID] = struct{}{}
		}
	}

	if keep != nil {
		s.registry.Retain(keep)
	}
	if d, ok := msg.(messages.DeltaState); ok {
		s.registry.Remove(d.Removed...)
	}
}

func (s *Session) reconcileSelf(msg messages.Authoritative, st messages.EntityState, fields messages.FieldMask, lastProcessed uint32, now time.Time) {
	if fields.Has(messages.FieldAlive) {
		s.self.Alive = st.Alive
	}
	if fields.Has(messages.FieldHealth) {
		s.self.Health, s.self.MaxHealth = st.Health, st.MaxHealth
	}
	// prediction starts from the first full state that contains us
	if !s.pred.Initialized && !msg.Complete() {
		return
	}

	if s.pred.Reconcile(st, fields, lastProcessed, now) {
		s.chunker.ClearIdle()
	}
	if fields.Has(messages.FieldPosition) {
		if dir, acc, ok := s.chunker.Open(); ok {
			s.pred.Step(dir, acc)
		}
	}
}

// Update runs one simulation step of local input: it predicts the local
// player, chunks the input and sends whatever the chunker flushed.
func (s *Session) Update(move dmath.Vec2, attack bool, dt time.Duration) {
	if s.state != SessionLoggedIn {
		return
	}
	now := s.now()
	dir := gamemath.NormalizeInput(move)

	if s.pred.Initialized {
		s.pred.Step(dir, dt)
	}
	for _, cmd := range s.chunker.Step(dir, attack, dt, now) {
		if err := s.transport.SendInput(cmd); err != nil {
			s.log.Warn().Err(err).Uint32("seq", cmd.Sequence).Msg("input send failed")
			continue
		}
		s.pred.Track(cmd)
	}
	s.maybeResync(now)
}

func (s *Session) maybeResync(now time.Time) {
	if s.resyncIdle <= 0 {
		return
	}
	if now.Sub(s.lastAccepted) < s.resyncIdle || now.Sub(s.lastResync) < s.resyncIdle {
		return
	}
	s.log.Info().Dur("idle", now.Sub(s.lastAccepted)).Msg("no state received, requesting resync")
	if err := s.RequestResync(); err != nil {
		s.log.Warn().Err(err).Msg("resync request failed")
	}
}

// RequestResync asks the server to resend the full world state.
func (s *Session) RequestResync() error {
	s.lastResync = s.now()
	s.stats.Resyncs++
	return s.transport.SendMessage(messages.ResyncRequest{
		LastTick:   s.filter.LastTick(),
		Credential: s.credential,
	})
}

// LocalPose returns the predicted local player. ok is false until the first
// authoritative state arrived; rendering is suppressed until then.
func (s *Session) LocalPose() (network.Pose, bool) {
	if !s.pred.Initialized {
		return network.Pose{}, false
	}
	return s.pred.Pose(), true
}

// RemoteEntities samples every remote entity at the current render time.
func (s *Session) RemoteEntities() []EntityView {
	now := s.now()
	return s.registry.Views(s.clock.RenderTime(now), now)
}

// Lifecycle returns and clears the lifecycle events since the last call.
func (s *Session) Lifecycle() []LifecycleEvent {
	out := s.lifecycle
	s.lifecycle = nil
	return out
}

// GameEvents returns and clears the gameplay events forwarded to the UI.
func (s *Session) GameEvents() []messages.Message {
	out := s.gameEvents
	s.gameEvents = nil
	return out
}

func (s *Session) State() SessionState {
	return s.state
}

func (s *Session) PlayerID() uint32 {
	return s.playerID
}

func (s *Session) Self() SelfStatus {
	return s.self
}

func (s *Session) Clock() *network.Clock {
	return s.clock
}

func (s *Session) Stats() SessionStats {
	return s.stats
}

func (s *Session) PendingInputs() int {
	return s.pred.Pending.Len()
}

// Close ends the session: the transport stops its loops and closes its
// sockets, and every buffer and predicted value is dropped.
func (s *Session) Close() error {
	err := s.transport.Close()
	s.teardown()
	return err
}

func (s *Session) teardown() {
	s.state = SessionDisconnected
	s.ended = true
	s.playerID = 0
	s.credential = ""
	s.tickRate = 0
	s.self = SelfStatus{}
	s.filter.Reset()
	s.clock.Reset()
	s.pred.Reset()
	s.chunker.Reset()
	s.registry.Clear()
	s.lastAccepted = time.Time{}
	s.lastResync = time.Time{}
}
