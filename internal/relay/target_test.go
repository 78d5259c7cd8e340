package relay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		want    string
		wantErr error
	}{
		{name: "encoded", query: "target=wss%3A%2F%2Fserver.sploop.io%2Fws%3Ftoken%3D123", want: "wss://server.sploop.io/ws?token=123"},
		{name: "double encoded", query: "target=wss%253A%252F%252Fserver.sploop.io%252Fws%253Ftoken%253D123", want: "wss://server.sploop.io/ws?token=123"},
		{name: "plain", query: "target=wss://server.sploop.io/ws", want: "wss://server.sploop.io/ws"},
		{name: "first non-blank wins", query: "target=&target=ws%3A%2F%2Fa.sploop.io&target=ws%3A%2F%2Fb", want: "ws://a.sploop.io"},
		{name: "other params ignored", query: "x=%zz&target=ws%3A%2F%2Fa.sploop.io", want: "ws://a.sploop.io"},
		{name: "missing", query: "", wantErr: ErrMissingTarget},
		{name: "other key only", query: "foo=bar", wantErr: ErrMissingTarget},
		{name: "blank", query: "target=", wantErr: ErrMissingTarget},
		{name: "bad query escape", query: "target=%zz", wantErr: ErrMalformedTarget},
		{name: "bad second decode", query: "target=%25zz", wantErr: ErrMalformedTarget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTarget(tc.query)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAllowListContains(t *testing.T) {
	a, err := NewAllowList("sploop.io", MatchContains)
	require.NoError(t, err)

	accepted := []string{
		"wss://server.sploop.io/ws?token=123",
		"wss://sploop.io",
		"ws://sploop.io:8443/ws",
		// containment is deliberately coarse
		"wss://notsploop.io/ws",
		"wss://evil-sploop.io.attacker.com/ws",
		"wss://sploop.io@evil.com/ws",
	}
	for _, target := range accepted {
		u, err := a.Check(target)
		require.NoError(t, err, target)
		require.NotNil(t, u)
	}

	rejected := []string{
		"wss://evil.com/ws",
		"wss://evil.com/ws?host=sploop.io",
		"wss://SPLOOP.IO/ws",
		"sploop.io/ws",
		// userinfo is matched as written, not decoded
		"wss://sploop%2Eio@evil.com/ws",
		"wss://sploop%2eio:pw@evil.com/ws",
	}
	for _, target := range rejected {
		_, err := a.Check(target)
		require.ErrorIs(t, err, ErrDisallowedUpstream, target)
	}
}

func TestRawNetloc(t *testing.T) {
	cases := map[string]string{
		"wss://server.sploop.io/ws?token=1": "server.sploop.io",
		"wss://sploop%2Eio@evil.com/ws":     "sploop%2Eio@evil.com",
		"ws://a.sploop.io:8443?x=1":         "a.sploop.io:8443",
		"wss://a.sploop.io#frag":            "a.sploop.io",
		"wss://a.sploop.io":                 "a.sploop.io",
		"sploop.io/ws":                      "",
		"//sploop.io/ws":                    "sploop.io",
		"1ws://sploop.io/ws":                "",
	}
	for target, want := range cases {
		require.Equal(t, want, rawNetloc(target), target)
	}
}

func TestAllowListSuffix(t *testing.T) {
	a, err := NewAllowList("sploop.io", MatchSuffix)
	require.NoError(t, err)

	for _, target := range []string{"wss://sploop.io/ws", "wss://server.SPLOOP.io:443/ws"} {
		_, err := a.Check(target)
		require.NoError(t, err, target)
	}
	for _, target := range []string{
		"wss://notsploop.io/ws",
		"wss://evil-sploop.io.attacker.com/ws",
		"wss://sploop.io@evil.com/ws",
	} {
		_, err := a.Check(target)
		require.ErrorIs(t, err, ErrDisallowedUpstream, target)
	}
}

func TestAllowListMalformed(t *testing.T) {
	a, err := NewAllowList("sploop.io", MatchContains)
	require.NoError(t, err)
	_, err = a.Check("wss://server.sploop.io:port/ws")
	require.ErrorIs(t, err, ErrMalformedTarget)
	require.Equal(t, MalformedTarget, ReasonOf(err))
}

func TestAllowListEmptyRule(t *testing.T) {
	_, err := NewAllowList("", MatchContains)
	require.Error(t, err)

	var zero AllowList
	_, err = zero.Check("wss://server.sploop.io/ws")
	require.ErrorIs(t, err, ErrDisallowedUpstream)
}

func TestParseMatchMode(t *testing.T) {
	m, err := ParseMatchMode("")
	require.NoError(t, err)
	require.Equal(t, MatchContains, m)
	m, err = ParseMatchMode("Suffix")
	require.NoError(t, err)
	require.Equal(t, MatchSuffix, m)
	_, err = ParseMatchMode("exact")
	require.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &Error{Reason: UpstreamConnectFailure, Err: cause}
	require.ErrorIs(t, err, ErrUpstreamConnect)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrMissingTarget)
	require.Equal(t, UpstreamConnectFailure, ReasonOf(err))
	require.Equal(t, ReasonNone, ReasonOf(cause))
	require.Equal(t, "upstream_connect: dial tcp: connection refused", err.Error())
}
