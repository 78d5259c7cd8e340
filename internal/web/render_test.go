package web

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID, Remote, Upstream string
	Started              time.Time
}

func TestRenderDashboard(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, "dashboard", map[string]any{
		"Allow":    "sploop.io",
		"Match":    "contains",
		"Backend":  "memory",
		"Active":   1,
		"Total":    int64(7),
		"Rejected": map[string]int64{"missing_target": 2, "disallowed_upstream": 3},
		"Sessions": []row{{ID: "abc123", Remote: "10.0.0.1", Upstream: "server.sploop.io", Started: time.Now()}},
	})
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, "<code>sploop.io</code>")
	require.Contains(t, out, "abc123")
	require.Less(t, bytes.Index(buf.Bytes(), []byte("disallowed_upstream")), bytes.Index(buf.Bytes(), []byte("missing_target")))
	require.Contains(t, out, "rendered ")
}

func TestRenderUnknown(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, Render(&buf, "nope", nil))
}
