package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestRelayURL(t *testing.T) {
	c := Config{Relay: "https://relay.example.com", Target: "wss://server.sploop.io/ws?token=123"}
	got, err := c.relayURL()
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	require.Equal(t, "wss", u.Scheme)
	require.Equal(t, "/", u.Path)
	require.Equal(t, "target=wss%3A%2F%2Fserver.sploop.io%2Fws%3Ftoken%3D123", u.RawQuery)

	_, err = Config{Relay: "ftp://x", Target: "wss://a"}.relayURL()
	require.Error(t, err)
}

func TestParseConfigRequiresTarget(t *testing.T) {
	_, err := parseConfig(nil, io.Discard)
	require.Error(t, err)
	c, err := parseConfig([]string{"-target", "wss://server.sploop.io/ws", "-binary"}, io.Discard)
	require.NoError(t, err)
	require.True(t, c.Binary)
}

func TestRunEchoesLines(t *testing.T) {
	seen := make(chan string, 1)
	var up websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.URL.Query().Get("target")
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	cfg := Config{Relay: "ws" + strings.TrimPrefix(srv.URL, "http"), Target: "wss://server.sploop.io/ws", DialTimeout: time.Second}
	code := run(cfg, strings.NewReader("hello\nworld\n"), &out)
	require.Equal(t, 0, code)
	require.Equal(t, "< hello\n< world\n", out.String())
	require.Equal(t, "wss://server.sploop.io/ws", <-seen)
}

func TestRunReportsRejection(t *testing.T) {
	var up websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4403, "upstream not allowed"))
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	pr, pw := io.Pipe()
	defer pw.Close()
	cfg := Config{Relay: "ws" + strings.TrimPrefix(srv.URL, "http"), Target: "wss://evil.com/ws", DialTimeout: time.Second}
	require.Equal(t, 1, run(cfg, pr, io.Discard))
}
