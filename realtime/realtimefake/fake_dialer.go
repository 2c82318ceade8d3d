package realtimefake

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-chamados-sync/realtime"
)

const recordSeparator = "\x1e"

// Conn is an in-memory hub connection. It acknowledges the protocol handshake
// by itself; tests push server records with Push and break the connection with
// Drop.
type Conn struct {
	in        chan []byte
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once

	// HandshakeReply overrides the handshake acknowledgement when set.
	HandshakeReply string

	mu        sync.Mutex
	written   []string
	closeGate chan struct{}
}

var _ realtime.Conn = (*Conn)(nil)

func NewConn() *Conn {
	return &Conn{
		in:     make(chan []byte, 64),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	default:
	}
	select {
	case data := <-c.in:
		return 1, data, nil
	case err := <-c.errs:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *Conn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}

	c.mu.Lock()
	c.written = append(c.written, string(data))
	c.mu.Unlock()

	if strings.Contains(string(data), `"protocol":"json"`) {
		reply := c.HandshakeReply
		if reply == "" {
			reply = "{}" + recordSeparator
		}
		c.in <- []byte(reply)
	}
	return nil
}

func (c *Conn) SetReadDeadline(time.Time) error { return nil }

// Close waits while HoldClose is in effect, like a close handshake with a
// slow peer.
func (c *Conn) Close() error {
	c.mu.Lock()
	gate := c.closeGate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// HoldClose makes Close block until release is called.
func (c *Conn) HoldClose() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.closeGate = gate
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Push delivers a raw frame from the server.
func (c *Conn) Push(frame string) {
	c.in <- []byte(frame)
}

// PushEvent delivers a hub invocation of target with one argument.
func (c *Conn) PushEvent(target string, arg any) {
	raw, _ := json.Marshal(map[string]any{"type": 1, "target": target, "arguments": []any{arg}})
	c.Push(string(raw) + recordSeparator)
}

// Drop makes the next read fail with err, as if the network broke.
func (c *Conn) Drop(err error) {
	c.errs <- err
}

// Written returns every record the client wrote, handshake included.
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// Dialer hands out Conns. Queued errors fail dials in order before it starts
// succeeding.
type Dialer struct {
	mu       sync.Mutex
	failures []error
	tokens   []string
	times    []time.Time
	conns    []*Conn
	block    chan struct{}
}

var _ realtime.Dialer = (*Dialer)(nil)

func NewDialer() *Dialer {
	return &Dialer{}
}

// FailNext queues errors returned by the next dials.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// Block makes dials wait until the returned release func is called or the
// dial context ends.
func (d *Dialer) Block() (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.block = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.block == ch {
				d.block = nil
			}
			d.mu.Unlock()
			close(ch)
		})
	}
}

func (d *Dialer) Dial(ctx context.Context, _ string, accessToken string) (realtime.Conn, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, accessToken)
	d.times = append(d.times, time.Now())
	block := d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, err
	}
	conn := NewConn()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

// Dials returns the number of dial attempts so far.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

// Tokens returns the token passed to each dial.
func (d *Dialer) Tokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

// DialTimes returns when each dial attempt started.
func (d *Dialer) DialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.times...)
}

// Last returns the most recently opened connection.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Conns returns every connection opened so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Credentials is a settable realtime.Credentials.
type Credentials struct {
	mu    sync.Mutex
	token string
	valid bool
}

var _ realtime.Credentials = (*Credentials)(nil)

func NewCredentials(token string) *Credentials {
	return &Credentials{token: token, valid: token != ""}
}

func (c *Credentials) Set(token string, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token, c.valid = token, valid
}

func (c *Credentials) CurrentToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token != ""
}

func (c *Credentials) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valid
}
