package proto

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// TargetParam is the query parameter carrying the percent-encoded upstream URL.
const TargetParam = "target"

// Close codes sent to the client when a session ends before forwarding starts.
// They sit in the private 4000-4999 range so clients that only watch for
// closure keep working.
const (
	CloseMissingTarget      = 4400
	CloseMalformedTarget    = 4401
	CloseDisallowedUpstream = 4403
	CloseUpstreamFailure    = 4502
)

var closeText = map[int]string{
	CloseMissingTarget:                     "missing target",
	CloseMalformedTarget:                   "malformed target",
	CloseDisallowedUpstream:                "upstream not allowed",
	CloseUpstreamFailure:                   "upstream unavailable",
	websocket.CloseNormalClosure:           "normal closure",
	websocket.CloseGoingAway:               "going away",
	websocket.CloseMessageTooBig:           "message too big",
	websocket.CloseInternalServerErr:       "internal error",
	websocket.CloseAbnormalClosure:         "abnormal closure",
	websocket.CloseNoStatusReceived:        "no status",
	websocket.CloseProtocolError:           "protocol error",
	websocket.CloseUnsupportedData:         "unsupported data",
	websocket.CloseInvalidFramePayloadData: "invalid payload",
	websocket.ClosePolicyViolation:         "policy violation",
}

// CloseText returns a short reason for code.
func CloseText(code int) string {
	if t, ok := closeText[code]; ok {
		return t
	}
	return fmt.Sprintf("code %d", code)
}
