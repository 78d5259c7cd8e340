package obs

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogLineShape(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Info("session.accepted", Fields{"id": "abc", "remote": "127.0.0.1"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "info", line["level"])
	require.Equal(t, "session.accepted", line["msg"])
	require.Equal(t, "abc", line["id"])
	require.Contains(t, line, "ts")
}

func TestDebugGated(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Debug("hidden", nil)
	require.Zero(t, buf.Len())

	EnableDebug(true)
	defer EnableDebug(false)
	Debug("shown", nil)
	require.Contains(t, buf.String(), `"msg":"shown"`)
}
