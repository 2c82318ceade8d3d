package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	recordSeparator  = 0x1E
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	clientBuffer     = 16
)

// hubRecord is one record of the hub protocol.
type hubRecord struct {
	Type         int               `json:"type,omitempty"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Protocol     string            `json:"protocol,omitempty"`
	Version      int               `json:"version,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Hub pushes ticket events to connected websocket clients. Slow clients have
// events dropped rather than blocking the publisher.
type Hub struct {
	tokens       *tokenIssuer
	logger       zerolog.Logger
	pingInterval time.Duration
	upgrader     websocket.Upgrader

	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	done    chan struct{}
	once    sync.Once
}

func newHub(tokens *tokenIssuer, logger zerolog.Logger, pingInterval time.Duration) *Hub {
	return &Hub{
		tokens:       tokens,
		logger:       logger,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[chan []byte]struct{}),
		done:    make(chan struct{}),
	}
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// Publish sends an invocation of target with one argument to every client.
func (h *Hub) Publish(target string, arg any) {
	raw, err := json.Marshal(arg)
	if err != nil {
		h.logger.Error().Err(err).Str("target", target).Msg("failed to encode hub argument")
		return
	}
	rec, err := encodeHubRecord(hubRecord{Type: 1, Target: target, Arguments: []json.RawMessage{raw}})
	if err != nil {
		h.logger.Error().Err(err).Str("target", target).Msg("failed to encode hub record")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- rec:
		default:
			h.logger.Debug().Str("target", target).Msg("client too slow, dropping event")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawToken := bearerToken(r)
	if rawToken == "" {
		rawToken = r.URL.Query().Get("access_token")
	}
	if _, err := h.tokens.Authenticate(rawToken); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if !h.handshake(conn) {
		return
	}

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	readerDone := make(chan struct{})
	go h.readLoop(conn, ch, readerDone)

	var ping <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	pingRecord, _ := encodeHubRecord(hubRecord{Type: 6})

	for {
		var rec []byte
		select {
		case rec = <-ch:
		case <-ping:
			rec = pingRecord
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, rec); err != nil {
			h.logger.Debug().Err(err).Msg("hub write failed")
			return
		}
	}
}

// handshake reads the protocol request and acknowledges it. Only the json
// protocol is supported.
func (h *Hub) handshake(conn *websocket.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	_ = conn.SetReadDeadline(time.Time{})

	var req hubRecord
	first, _, _ := bytes.Cut(frame, []byte{recordSeparator})
	if err := json.Unmarshal(first, &req); err != nil || req.Protocol != "json" {
		reply, _ := encodeHubRecord(hubRecord{Error: "unsupported protocol"})
		_ = conn.WriteMessage(websocket.TextMessage, reply)
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, append([]byte("{}"), recordSeparator)) == nil
}

// readLoop answers invocations with a completion and ends on close or error.
func (h *Hub) readLoop(conn *websocket.Conn, replies chan<- []byte, done chan<- struct{}) {
	defer close(done)
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, raw := range bytes.Split(frame, []byte{recordSeparator}) {
			if len(bytes.TrimSpace(raw)) == 0 {
				continue
			}
			var rec hubRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				continue
			}
			switch rec.Type {
			case 1:
				if rec.InvocationID == "" {
					continue
				}
				completion, _ := encodeHubRecord(hubRecord{Type: 3, InvocationID: rec.InvocationID})
				select {
				case replies <- completion:
				default:
				}
			case 7:
				return
			}
		}
	}
}

func encodeHubRecord(rec hubRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(raw, recordSeparator), nil
}
