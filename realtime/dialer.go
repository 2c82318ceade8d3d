package realtime

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	apperrors "github.com/jrsteele09/go-chamados-sync/internal/errors"
	"github.com/pkg/errors"
)

// Conn is one live push connection. ReadMessage is called from a single
// goroutine; the Channel serializes WriteMessage.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens push connections authenticated with a bearer token.
type Dialer interface {
	Dial(ctx context.Context, hubURL, accessToken string) (Conn, error)
}

// WebsocketDialer dials the hub over a websocket. The token is sent both as an
// Authorization header and as the access_token query parameter, since browsers
// and some proxies drop headers on upgrade requests.
type WebsocketDialer struct {
	dialer *websocket.Dialer
}

var _ Dialer = (*WebsocketDialer)(nil)

func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, hubURL, accessToken string) (Conn, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hub url")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+accessToken)

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "hub rejected upgrade with status %d", resp.StatusCode)
		}
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return mt, nil, apperrors.Join(apperrors.ErrClosedByServer, err)
		}
	}
	return mt, data, err
}

func (c *wsConn) WriteMessage(messageType int, data []byte) error {
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
