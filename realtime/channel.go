package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jrsteele09/go-chamados-sync/internal/broadcast"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/jrsteele09/go-chamados-sync/internal/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultKeepAlive        = 15 * time.Second
)

// DefaultEvents are the server events that signal a change to the ticket list.
var DefaultEvents = []string{"BroadcastMessage", "ChamadoAtualizado", "NovoChamado"}

// Credentials supplies the bearer token at the time of each connect attempt.
type Credentials interface {
	CurrentToken() (string, bool)
	IsValid() bool
}

// Event is a named server push.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Channel keeps at most one live push connection and reconnects it with a
// tiered backoff after failures.
//
// Observers run on the goroutine that caused the transition and must not call
// Start or Stop synchronously.
type Channel struct {
	hubURL           string
	creds            Credentials
	dialer           Dialer
	backoff          Backoff
	handshakeTimeout time.Duration
	keepAlive        time.Duration
	recognized       map[string]struct{}
	logger           zerolog.Logger
	metrics          *Metrics

	mu         sync.Mutex
	state      State
	epoch      uint64
	conn       Conn
	cancelDial context.CancelFunc
	retryTimer *time.Timer
	failures   int
	pending    []State

	writeMu sync.Mutex

	emitMu      sync.Mutex
	states      *broadcast.Subject[State]
	status      *broadcast.Subject[bool]
	dataChanged *broadcast.Subject[Event]
	events      *broadcast.Subject[Event]

	listenersMu sync.Mutex
	listeners   map[string]*broadcast.Subject[json.RawMessage]
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

func WithDialer(d Dialer) ChannelOption {
	return func(c *Channel) {
		c.dialer = d
	}
}

func WithBackoff(b Backoff) ChannelOption {
	return func(c *Channel) {
		c.backoff = b
	}
}

// WithHandshakeTimeout bounds dialing plus the protocol handshake.
func WithHandshakeTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// WithKeepAlive sets the ping interval while connected. Zero disables pings.
func WithKeepAlive(d time.Duration) ChannelOption {
	return func(c *Channel) {
		c.keepAlive = d
	}
}

// WithRecognizedEvents replaces the set of event names that count as a data
// change.
func WithRecognizedEvents(names ...string) ChannelOption {
	return func(c *Channel) {
		c.recognized = make(map[string]struct{}, len(names))
		for _, n := range names {
			c.recognized[n] = struct{}{}
		}
	}
}

func WithLogger(l zerolog.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = l
	}
}

func WithMetrics(m *Metrics) ChannelOption {
	return func(c *Channel) {
		c.metrics = m
	}
}

// NewChannel creates a disconnected channel for the hub at hubURL.
func NewChannel(hubURL string, creds Credentials, opts ...ChannelOption) *Channel {
	c := &Channel{
		hubURL:           hubURL,
		creds:            creds,
		backoff:          DefaultBackoff(),
		handshakeTimeout: defaultHandshakeTimeout,
		keepAlive:        defaultKeepAlive,
		logger:           logging.Component(log.Logger, "realtime"),
		state:            Disconnected,
		states:           broadcast.NewValue(Disconnected).WithDedupe(func(a, b State) bool { return a == b }),
		status:           broadcast.NewValue(false).WithDedupe(func(a, b bool) bool { return a == b }),
		dataChanged:      broadcast.NewStream[Event](),
		events:           broadcast.NewStream[Event](),
		listeners:        make(map[string]*broadcast.Subject[json.RawMessage]),
	}
	WithRecognizedEvents(DefaultEvents...)(c)
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewWebsocketDialer(c.handshakeTimeout)
	}
	return c
}

// Start tears down any current connection and connects with the current
// token. It returns once the first attempt has an outcome: nil when connected,
// ErrMissingCredential without any I/O when there is no valid token, or
// ErrConnectFailed with a retry already scheduled.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	stale := c.teardownLocked()
	c.epoch++
	epoch := c.epoch
	c.failures = 0
	c.setStateLocked(Connecting)
	c.mu.Unlock()
	closeConn(stale)
	c.flush()

	return c.attempt(ctx, epoch)
}

// Stop closes the connection, cancels any pending dial or retry and moves the
// channel to Closed. Calling Stop again has no further effect.
func (c *Channel) Stop() {
	c.mu.Lock()
	c.epoch++
	stale := c.teardownLocked()
	c.setStateLocked(Closed)
	c.mu.Unlock()
	closeConn(stale)
	c.flush()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStatus registers fn for connected / not connected changes. fn receives the
// current status immediately and is never called twice with the same value.
func (c *Channel) OnStatus(fn func(connected bool)) (unsubscribe func()) {
	return c.status.Subscribe(fn)
}

// OnState registers fn for state transitions, replaying the current state.
func (c *Channel) OnState(fn func(State)) (unsubscribe func()) {
	return c.states.Subscribe(fn)
}

// OnDataChanged registers fn for every recognized server event.
func (c *Channel) OnDataChanged(fn func(Event)) (unsubscribe func()) {
	return c.dataChanged.Subscribe(fn)
}

// OnEvent registers fn for recognized events with their payloads.
func (c *Channel) OnEvent(fn func(Event)) (unsubscribe func()) {
	return c.events.Subscribe(fn)
}

// On registers fn for events named name, recognized or not.
func (c *Channel) On(name string, fn func(payload json.RawMessage)) (unsubscribe func()) {
	c.listenersMu.Lock()
	s, ok := c.listeners[name]
	if !ok {
		s = broadcast.NewStream[json.RawMessage]()
		c.listeners[name] = s
	}
	unsub := s.Subscribe(fn)
	c.listenersMu.Unlock()

	return func() {
		unsub()
		c.listenersMu.Lock()
		if cur, ok := c.listeners[name]; ok && cur == s && s.Len() == 0 {
			delete(c.listeners, name)
		}
		c.listenersMu.Unlock()
	}
}

// Invoke sends a hub invocation of method. It fails with ErrNotConnected
// unless the channel is Connected.
func (c *Channel) Invoke(ctx context.Context, method string, args ...any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return apperrors.ErrNotConnected
	}

	rawArgs := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return errors.Wrapf(err, "failed to encode argument for %s", method)
		}
		rawArgs = append(rawArgs, raw)
	}
	rec, err := encodeRecord(message{
		Type:         typeInvocation,
		InvocationID: uuid.NewString(),
		Target:       method,
		Arguments:    rawArgs,
	})
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- c.write(conn, rec) }()
	select {
	case err := <-done:
		return errors.Wrapf(err, "failed to invoke %s", method)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attempt performs one connect attempt for epoch and, on failure, schedules
// the next one. Only one attempt per channel is ever outstanding.
func (c *Channel) attempt(ctx context.Context, epoch uint64) error {
	accessToken, ok := c.creds.CurrentToken()
	if !ok || !c.creds.IsValid() {
		var stale Conn
		c.mu.Lock()
		if c.epoch == epoch {
			stale = c.teardownLocked()
			c.setStateLocked(Disconnected)
		}
		c.mu.Unlock()
		closeConn(stale)
		c.flush()
		c.logger.Debug().Msg("no valid credential, staying disconnected")
		return apperrors.ErrMissingCredential
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return apperrors.Wrapf(apperrors.ErrConnectFailed, "connect attempt superseded")
	}
	c.cancelDial = cancel
	c.mu.Unlock()

	conn, leftover, err := c.connect(dialCtx, accessToken)

	c.mu.Lock()
	c.cancelDial = nil
	if c.epoch != epoch {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return apperrors.Wrapf(apperrors.ErrConnectFailed, "connect attempt superseded")
	}
	if err != nil {
		c.failures++
		c.scheduleRetryLocked(epoch)
		failures := c.failures
		c.mu.Unlock()
		c.flush()

		c.metrics.attempt(false)
		c.logger.Warn().Err(err).Int("failures", failures).Msg("push channel connect failed")
		return apperrors.Join(apperrors.ErrConnectFailed, err)
	}
	c.conn = conn
	c.failures = 0
	c.setStateLocked(Connected)
	c.mu.Unlock()
	c.flush()

	c.metrics.attempt(true)
	c.logger.Info().Str("url", c.hubURL).Msg("push channel connected")

	done := make(chan struct{})
	go c.readLoop(conn, epoch, leftover, done)
	if c.keepAlive > 0 {
		go c.pingLoop(conn, epoch, done)
	}
	return nil
}

// connect dials and performs the handshake. Records that arrived in the same
// frame as the ack are returned for dispatch.
func (c *Channel) connect(ctx context.Context, accessToken string) (Conn, []message, error) {
	conn, err := c.dialer.Dial(ctx, c.hubURL, accessToken)
	if err != nil {
		return nil, nil, err
	}

	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	if err := c.write(conn, handshakeRequest); err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "failed to send handshake")
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "failed to read handshake response")
	}
	msgs, err := decodeRecords(frame)
	if err != nil || len(msgs) == 0 {
		_ = conn.Close()
		return nil, nil, errors.New("invalid handshake response")
	}
	if msgs[0].Error != "" {
		_ = conn.Close()
		return nil, nil, errors.Errorf("handshake rejected: %s", msgs[0].Error)
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn, msgs[1:], nil
}

func (c *Channel) readLoop(conn Conn, epoch uint64, leftover []message, done chan struct{}) {
	defer close(done)

	for _, m := range leftover {
		c.dispatch(epoch, m)
	}
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(conn, epoch, err)
			return
		}
		msgs, err := decodeRecords(frame)
		if err != nil {
			c.logger.Warn().Err(err).Msg("ignoring undecodable push frame")
		}
		for _, m := range msgs {
			if m.Type == typeClose {
				reason := m.Error
				if reason == "" {
					reason = "close record"
				}
				c.connectionLost(conn, epoch, apperrors.Wrapf(apperrors.ErrClosedByServer, "%s", reason))
				return
			}
			c.dispatch(epoch, m)
		}
	}
}

func (c *Channel) pingLoop(conn Conn, epoch uint64, done <-chan struct{}) {
	ping, _ := encodeRecord(message{Type: typePing})
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !c.current(epoch) {
				return
			}
			if err := c.write(conn, ping); err != nil {
				c.logger.Debug().Err(err).Msg("keep-alive ping failed")
			}
		}
	}
}

func (c *Channel) dispatch(epoch uint64, m message) {
	name := m.name()
	if name == "" {
		if m.Type != typePing && m.Type != typeCompletion {
			c.logger.Debug().Int("type", m.Type).Msg("ignoring push record")
		}
		return
	}
	if !c.current(epoch) {
		return
	}

	ev := Event{Name: name, Payload: m.payload()}
	_, recognized := c.recognized[name]
	c.metrics.event(name, recognized)

	c.listenersMu.Lock()
	named := c.listeners[name]
	c.listenersMu.Unlock()
	if named != nil {
		named.Publish(ev.Payload)
	}

	if !recognized {
		c.logger.Debug().Str("event", name).Msg("ignoring unrecognized event")
		return
	}
	c.events.Publish(ev)
	c.dataChanged.Publish(ev)
}

// connectionLost handles a drop of the live connection. A drop counts as one
// failure, so the first reconnect uses the first backoff tier.
func (c *Channel) connectionLost(conn Conn, epoch uint64, cause error) {
	c.mu.Lock()
	if c.epoch != epoch || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.failures = 1
	c.scheduleRetryLocked(epoch)
	c.mu.Unlock()
	_ = conn.Close()
	c.flush()

	if apperrors.Is(cause, apperrors.ErrClosedByServer) {
		c.logger.Info().Err(cause).Msg("push channel closed by server")
		return
	}
	c.logger.Warn().Err(cause).Msg("push channel connection lost")
}

func (c *Channel) scheduleRetryLocked(epoch uint64) {
	if c.backoff.GaveUp(c.failures) {
		c.setStateLocked(Closed)
		c.metrics.gaveUp()
		c.logger.Error().Int("failures", c.failures).Msg("push channel giving up")
		return
	}
	delay := c.backoff.Delay(c.failures)
	c.setStateLocked(Reconnecting)
	c.retryTimer = time.AfterFunc(delay, func() { c.retry(epoch) })
	c.metrics.reconnectScheduled()
	c.logger.Debug().Dur("delay", delay).Int("failures", c.failures).Msg("reconnect scheduled")
}

func (c *Channel) retry(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.state != Reconnecting {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.setStateLocked(Connecting)
	c.mu.Unlock()
	c.flush()

	_ = c.attempt(context.Background(), epoch)
}

func (c *Channel) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

func (c *Channel) write(conn Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// teardownLocked cancels timers and dials and detaches the live connection.
// The caller closes the returned Conn after releasing c.mu, since closing can
// block on the close handshake.
func (c *Channel) teardownLocked() Conn {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	return conn
}

func closeConn(conn Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Channel) setStateLocked(s State) {
	c.state = s
	c.pending = append(c.pending, s)
}

// flush publishes queued transitions in the order they happened.
func (c *Channel) flush() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, s := range pending {
		c.metrics.setState(s)
		c.states.Publish(s)
		c.status.Publish(s == Connected)
	}
}
