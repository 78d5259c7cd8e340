package relay

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestMirrorClose(t *testing.T) {
	cases := []struct {
		err  error
		code int
		text string
	}{
		{&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"}, websocket.CloseNormalClosure, "bye"},
		{&websocket.CloseError{Code: 4001, Text: "app"}, 4001, "app"},
		{&websocket.CloseError{Code: websocket.CloseNoStatusReceived}, websocket.CloseNoStatusReceived, ""},
		{&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: io.ErrUnexpectedEOF.Error()}, websocket.CloseGoingAway, ""},
		{fmt.Errorf("read: %w", websocket.ErrReadLimit), websocket.CloseMessageTooBig, ""},
		{errors.New("connection reset by peer"), websocket.CloseGoingAway, ""},
	}
	for _, tc := range cases {
		code, text := mirrorClose(tc.err)
		require.Equal(t, tc.code, code, tc.err.Error())
		require.Equal(t, tc.text, text, tc.err.Error())
	}
}

func TestNormalEnd(t *testing.T) {
	require.True(t, normalEnd(&pumpError{dir: dirUpstream, read: true, cause: &websocket.CloseError{Code: websocket.CloseNormalClosure}}))
	require.True(t, normalEnd(&websocket.CloseError{Code: websocket.CloseNoStatusReceived}))
	require.False(t, normalEnd(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
	require.False(t, normalEnd(errors.New("boom")))
}

func TestStateString(t *testing.T) {
	order := []State{Accepted, TargetParsed, Validated, UpstreamConnected, Forwarding, Closed}
	names := []string{"accepted", "target_parsed", "validated", "upstream_connected", "forwarding", "closed"}
	for i, s := range order {
		require.Equal(t, names[i], s.String())
	}
	require.Equal(t, "unknown", State(42).String())
}

func TestReasonCloseCodes(t *testing.T) {
	seen := map[int]Reason{}
	for _, r := range []Reason{MissingTarget, MalformedTarget, DisallowedUpstream, UpstreamConnectFailure} {
		code := r.CloseCode()
		require.GreaterOrEqual(t, code, 4000, r.String())
		_, dup := seen[code]
		require.False(t, dup, "duplicate close code for %s", r)
		seen[code] = r
	}
	require.Equal(t, "unknown", Reason(99).String())
}
