package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matst80/wsrelay/internal/relay"
	"github.com/stretchr/testify/require"
)

func TestOpsMux(t *testing.T) {
	state := newServerState()
	allow, err := relay.NewAllowList("sploop.io", relay.MatchContains)
	require.NoError(t, err)
	state.SessionOpened(info("abc", time.Now()))
	state.SessionRejected(relay.MissingTarget)
	srv := httptest.NewServer(newOpsMux(state, allow))
	t.Cleanup(srv.Close)

	get := func(path string) *http.Response {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	require.Equal(t, http.StatusOK, get("/healthz").StatusCode)
	require.Equal(t, http.StatusServiceUnavailable, get("/readyz").StatusCode)
	state.setReady(true)
	require.Equal(t, http.StatusOK, get("/readyz").StatusCode)
	state.setClosing(true)
	require.Equal(t, http.StatusServiceUnavailable, get("/readyz").StatusCode)

	var st Stats
	require.NoError(t, json.NewDecoder(get("/api/state").Body).Decode(&st))
	require.Equal(t, "memory", st.Backend)
	require.Equal(t, "sploop.io", st.Allow)
	require.Equal(t, 1, st.Active)
	require.Equal(t, int64(1), st.Total)
	require.Equal(t, int64(1), st.Rejected["missing_target"])
	require.Len(t, st.Sessions, 1)

	resp := get("/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp = get("/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
