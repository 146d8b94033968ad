package network

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/automoto/doomerang-sync/config"
	"github.com/automoto/doomerang-sync/shared/messages"
	"github.com/automoto/doomerang-sync/shared/protocol"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected     = eris.New("not connected")
	ErrNoCredential     = eris.New("no session credential")
	ErrClosed           = eris.New("client closed")
	ErrDatagramTooLarge = eris.New("datagram exceeds limit")
)

type ClientState int

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l.With().Str("component", "transport").Logger() }
}

// WithErrorHandler receives every non-fatal unreliable-channel error.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Client) { c.onError = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithDatagramDialer(d DatagramDialer) Option {
	return func(c *Client) { c.dialDatagram = d }
}

// Client owns the reliable stream and the lazily opened unreliable datagram
// channel. Inbound messages from both are delivered on Events; all shared
// fields are protected by mu since the read loops run on their own goroutines.
type Client struct {
	cfg          config.Config
	log          zerolog.Logger
	onError      func(error)
	now          func() time.Time
	dialDatagram DatagramDialer

	mu         sync.RWMutex
	state      ClientState
	lastError  error
	credential string
	closed     bool
	reliable   *streamChannel
	unreliable *datagramChannel

	events     chan Event
	done       chan struct{}
	closeOnce  sync.Once
	disconnect sync.Once
	wg         sync.WaitGroup
}

func NewClient(cfg config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:          cfg,
		log:          log.Logger.With().Str("component", "transport").Logger(),
		now:          time.Now,
		dialDatagram: dialUDP,
		state:        StateDisconnected,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	size := cfg.EventBuffer
	if size <= 0 {
		size = 1
	}
	c.events = make(chan Event, size)
	return c
}

// Events delivers connection lifecycle changes and inbound messages. The
// channel is never closed; stop reading once Close returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect dials the reliable channel and starts its read loop. A failure
// here is fatal for the session.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.reliable != nil {
		c.mu.Unlock()
		return eris.New("already connected")
	}
	c.state = StateConnecting
	c.lastError = nil
	c.mu.Unlock()

	conn, deadlines, err := dialStream(ctx, c.cfg)
	if err != nil {
		c.setError(err)
		return err
	}

	ch := &streamChannel{
		conn:         conn,
		deadlines:    deadlines,
		reader:       protocol.NewFrameReader(conn, c.cfg.MaxFrameBytes),
		maxFrame:     c.cfg.MaxFrameBytes,
		pollTimeout:  time.Duration(c.cfg.PollTimeoutMs) * time.Millisecond,
		writeTimeout: time.Duration(c.cfg.WriteTimeoutMs) * time.Millisecond,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.reliable = ch
	c.state = StateConnected
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Info().Str("transport", c.cfg.Transport).Str("remote", conn.RemoteAddr().String()).Msg("connected")
	c.post(Event{Kind: EventConnected, Channel: ChannelReliable, Received: c.now()})
	go c.readReliable(ch)
	return nil
}

// Authenticate records the session credential and opens the unreliable
// channel. A datagram failure is not fatal: inputs fall back to the reliable
// channel and the datagram socket is retried on the next send.
func (c *Client) Authenticate(credential string) error {
	if credential == "" {
		return ErrNoCredential
	}
	c.mu.Lock()
	c.credential = credential
	if c.state == StateConnected {
		c.state = StateAuthenticated
	}
	c.mu.Unlock()

	return c.SendUnreliable(messages.Heartbeat{ClientTimeMs: c.now().UnixMilli()})
}

// SendMessage writes msg on the reliable channel.
func (c *Client) SendMessage(msg messages.Message) error {
	c.mu.RLock()
	ch, state, cred := c.reliable, c.state, c.credential
	c.mu.RUnlock()
	if ch == nil || state == StateDisconnected {
		return ErrNotConnected
	}

	body, err := protocol.EncodeWithCredential(msg, cred)
	if err != nil {
		return err
	}
	if err := ch.send(body); err != nil {
		return eris.Wrapf(err, "send %s", msg.Kind())
	}
	return nil
}

// SendUnreliable writes msg as a single datagram tagged with the session
// credential, opening the datagram socket if needed. Errors are reported to
// the error handler and tear the socket down for lazy recreation.
func (c *Client) SendUnreliable(msg messages.Message) error {
	ch, cred, err := c.datagram()
	if err != nil {
		return err
	}

	body, err := protocol.EncodeWithCredential(msg, cred)
	if err != nil {
		return err
	}
	if c.cfg.MaxDatagramBytes > 0 && len(body) > c.cfg.MaxDatagramBytes {
		return eris.Wrapf(ErrDatagramTooLarge, "%s is %d bytes", msg.Kind(), len(body))
	}
	if err := ch.send(body); err != nil {
		err = eris.Wrapf(err, "send datagram %s", msg.Kind())
		c.reportError(err)
		c.dropDatagram(ch)
		return err
	}
	return nil
}

// SendInput sends one input command, preferring the unreliable channel and
// falling back to the reliable one when it is unavailable or fails. The
// unreliable error never surfaces if the fallback succeeds.
func (c *Client) SendInput(cmd InputCommand) error {
	msg := cmd.Message(c.Credential())
	if msg.Credential != "" {
		err := c.SendUnreliable(msg)
		if err == nil {
			return nil
		}
		c.log.Debug().Err(err).Uint32("seq", cmd.Sequence).Msg("input falling back to reliable channel")
	}
	return c.SendMessage(msg)
}

// Close stops both read loops, closes the sockets and waits for the loops to
// exit. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.done)
		rel, unrel := c.reliable, c.unreliable
		c.unreliable = nil
		c.credential = ""
		c.state = StateDisconnected
		c.mu.Unlock()

		if rel != nil {
			rel.close()
		}
		if unrel != nil {
			unrel.close()
		}
		c.wg.Wait()
		c.log.Info().Msg("closed")
	})
	return nil
}

func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Client) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

// UnreliableOpen reports whether a datagram socket is currently open.
func (c *Client) UnreliableOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unreliable != nil
}

func (c *Client) datagram() (*datagramChannel, string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, "", ErrClosed
	}
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil, "", ErrNotConnected
	}
	if c.credential == "" {
		c.mu.Unlock()
		return nil, "", ErrNoCredential
	}
	if c.unreliable != nil {
		ch, cred := c.unreliable, c.credential
		c.mu.Unlock()
		return ch, cred, nil
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.UDPPort))
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.cfg.DialTimeoutMs)*time.Millisecond)
	conn, err := c.dialDatagram(ctx, addr)
	cancel()
	if err != nil {
		c.mu.Unlock()
		c.reportError(err)
		return nil, "", err
	}

	ch := &datagramChannel{
		conn:         conn,
		maxDatagram:  c.cfg.MaxDatagramBytes,
		pollTimeout:  time.Duration(c.cfg.PollTimeoutMs) * time.Millisecond,
		writeTimeout: time.Duration(c.cfg.WriteTimeoutMs) * time.Millisecond,
	}
	c.unreliable = ch
	cred := c.credential
	c.wg.Add(1)
	c.mu.Unlock()

	go c.readDatagrams(ch)
	c.log.Debug().Str("remote", addr).Msg("unreliable channel open")
	return ch, cred, nil
}

func (c *Client) dropDatagram(ch *datagramChannel) {
	c.mu.Lock()
	if c.unreliable == ch {
		c.unreliable = nil
	}
	c.mu.Unlock()
	ch.close()
}

func (c *Client) readReliable(ch *streamChannel) {
	defer c.wg.Done()
	for {
		if c.closing() {
			return
		}
		body, err := ch.next()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if c.closing() {
				return
			}
			c.lost(eris.Wrap(err, "reliable read"))
			return
		}

		msg, _, err := protocol.Decode(body)
		if err != nil {
			c.log.Warn().Err(err).Int("bytes", len(body)).Msg("dropping malformed frame")
			continue
		}
		c.post(Event{Kind: EventMessage, Channel: ChannelReliable, Message: msg, Received: c.now()})
	}
}

func (c *Client) readDatagrams(ch *datagramChannel) {
	defer c.wg.Done()
	buf := make([]byte, ch.bufferSize())
	for {
		if c.closing() || ch.isClosed() {
			return
		}
		n, err := ch.read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if c.closing() || ch.isClosed() {
				return
			}
			c.reportError(eris.Wrap(err, "unreliable read"))
			c.dropDatagram(ch)
			return
		}

		msg, _, err := protocol.Decode(append([]byte(nil), buf[:n]...))
		if err != nil {
			c.log.Warn().Err(err).Int("bytes", n).Msg("dropping malformed datagram")
			continue
		}
		c.post(Event{Kind: EventMessage, Channel: ChannelUnreliable, Message: msg, Received: c.now()})
	}
}

// lost handles a fatal reliable-channel error: the session is over, the
// datagram socket and credential go with it and a single disconnect event is
// emitted.
func (c *Client) lost(err error) {
	c.disconnect.Do(func() {
		c.mu.Lock()
		c.state = StateDisconnected
		c.credential = ""
		c.lastError = err
		unrel := c.unreliable
		c.unreliable = nil
		c.mu.Unlock()
		if unrel != nil {
			unrel.close()
		}

		c.log.Warn().Err(err).Msg("disconnected")
		c.post(Event{Kind: EventDisconnected, Channel: ChannelReliable, Err: err, Received: c.now()})
	})
}

func (c *Client) reportError(err error) {
	c.log.Warn().Err(err).Msg("unreliable channel error")
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Client) setError(err error) {
	c.mu.Lock()
	c.state = StateDisconnected
	c.lastError = err
	c.mu.Unlock()
	c.log.Error().Err(err).Msg("connect failed")
}

// post blocks while the event buffer is full so state is never silently
// lost; Close releases it.
func (c *Client) post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

type streamChannel struct {
	conn         net.Conn
	deadlines    bool
	reader       *protocol.FrameReader
	maxFrame     int
	pollTimeout  time.Duration
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (s *streamChannel) next() ([]byte, error) {
	if s.deadlines && s.pollTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pollTimeout))
	}
	return s.reader.Next()
}

func (s *streamChannel) send(body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.deadlines && s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return protocol.WriteFrame(s.conn, body, s.maxFrame)
}

func (s *streamChannel) close() {
	_ = s.conn.Close()
}

type datagramChannel struct {
	conn         net.Conn
	maxDatagram  int
	pollTimeout  time.Duration
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closed       atomic.Bool
}

func (d *datagramChannel) bufferSize() int {
	if d.maxDatagram <= 0 {
		return 64 * 1024
	}
	return d.maxDatagram
}

func (d *datagramChannel) read(buf []byte) (int, error) {
	if d.pollTimeout > 0 {
		_ = d.conn.SetReadDeadline(time.Now().Add(d.pollTimeout))
	}
	return d.conn.Read(buf)
}

func (d *datagramChannel) send(body []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.writeTimeout > 0 {
		_ = d.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
	}
	_, err := d.conn.Write(body)
	return err
}

func (d *datagramChannel) close() {
	if d.closed.CompareAndSwap(false, true) {
		_ = d.conn.Close()
	}
}

func (d *datagramChannel) isClosed() bool {
	return d.closed.Load()
}
