package relay

import (
	"errors"

	"github.com/gorilla/websocket"
	"github.com/matst80/wsrelay/internal/proto"
)

// Reason classifies why a session ended.
type Reason int

const (
	ReasonNone Reason = iota
	MissingTarget
	MalformedTarget
	DisallowedUpstream
	UpstreamConnectFailure
	ForwardingFailure
)

var reasonNames = [...]string{
	ReasonNone:             "none",
	MissingTarget:          "missing_target",
	MalformedTarget:        "malformed_target",
	DisallowedUpstream:     "disallowed_upstream",
	UpstreamConnectFailure: "upstream_connect",
	ForwardingFailure:      "forwarding",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

// CloseCode is the close frame code sent to the client for r.
func (r Reason) CloseCode() int {
	switch r {
	case MissingTarget:
		return proto.CloseMissingTarget
	case MalformedTarget:
		return proto.CloseMalformedTarget
	case DisallowedUpstream:
		return proto.CloseDisallowedUpstream
	case UpstreamConnectFailure:
		return proto.CloseUpstreamFailure
	case ForwardingFailure:
		return websocket.CloseGoingAway
	}
	return websocket.CloseNormalClosure
}

// Error is a session failure tagged with its Reason.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Reason.String()
	}
	return e.Reason.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Reason, so the sentinels below work
// with errors.Is regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

var (
	ErrMissingTarget      = &Error{Reason: MissingTarget}
	ErrMalformedTarget    = &Error{Reason: MalformedTarget}
	ErrDisallowedUpstream = &Error{Reason: DisallowedUpstream}
	ErrUpstreamConnect    = &Error{Reason: UpstreamConnectFailure}
	ErrForwarding         = &Error{Reason: ForwardingFailure}
)

// ReasonOf extracts the Reason carried by err, or ReasonNone.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}
