package realtime

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Records are JSON documents terminated by the ASCII record separator.
const recordSeparator = 0x1E

// Message types used on the hub protocol.
const (
	typeInvocation = 1
	typeCompletion = 3
	typePing       = 6
	typeClose      = 7
)

var handshakeRequest = []byte(`{"protocol":"json","version":1}` + "\x1e")

// message is one hub record. Plain event records carry Event and Payload
// instead of a type.
type message struct {
	Type         int               `json:"type,omitempty"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Event        string            `json:"event,omitempty"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// name returns the event name carried by m, or "" when m is not an event.
func (m *message) name() string {
	switch {
	case m.Type == typeInvocation:
		return m.Target
	case m.Type == 0 && m.Event != "":
		return m.Event
	}
	return ""
}

// payload returns the event body. A single invocation argument is unwrapped.
func (m *message) payload() json.RawMessage {
	if m.Type != typeInvocation {
		return m.Payload
	}
	switch len(m.Arguments) {
	case 0:
		return nil
	case 1:
		return m.Arguments[0]
	}
	raw, _ := json.Marshal(m.Arguments)
	return raw
}

// decodeRecords splits a frame into records. A frame without separators is a
// single record. Undecodable records are skipped; the error reports them
// alongside the records that did decode.
func decodeRecords(frame []byte) ([]message, error) {
	var (
		msgs     []message
		firstErr error
		skipped  int
	)
	for _, rec := range bytes.Split(frame, []byte{recordSeparator}) {
		rec = bytes.TrimSpace(rec)
		if len(rec) == 0 {
			continue
		}
		var m message
		if err := json.Unmarshal(rec, &m); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			skipped++
			continue
		}
		msgs = append(msgs, m)
	}
	if skipped > 0 {
		return msgs, errors.Wrapf(firstErr, "failed to decode %d hub record(s)", skipped)
	}
	return msgs, nil
}

func encodeRecord(m message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode hub record")
	}
	return append(raw, recordSeparator), nil
}
