package notify_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-chamados-sync/notify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := notify.LogSink(zerolog.New(&buf))

	sink("connection lost", notify.Warning)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, "warning", entry["severity"])
	require.Equal(t, "connection lost", entry["message"])
}

func TestRecorder(t *testing.T) {
	rec := &notify.Recorder{}
	var sink notify.Sink = rec.Sink

	sink("a", notify.Info)
	sink("b", notify.Error)
	sink("c", notify.Error)

	require.Equal(t, 2, rec.Count(notify.Error))
	require.Equal(t, notify.Notification{Message: "a", Severity: notify.Info}, rec.All()[0])
}
