package relay

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/matst80/wsrelay/internal/proto"
)

// ParseTarget extracts the upstream URL from a request query string. The
// parameter value is percent-decoded once more after query decoding so that
// both single and double encoded targets resolve to the literal URL.
func ParseTarget(rawQuery string) (string, error) {
	raw, err := firstParam(rawQuery, proto.TargetParam)
	if err != nil {
		return "", &Error{Reason: MalformedTarget, Err: err}
	}
	if raw == "" {
		return "", ErrMissingTarget
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", &Error{Reason: MalformedTarget, Err: err}
	}
	return decoded, nil
}

// firstParam returns the first non-blank value of name. Unlike
// url.ParseQuery it ignores malformed pairs belonging to other keys.
func firstParam(rawQuery, name string) (string, error) {
	for rawQuery != "" {
		var pair string
		pair, rawQuery, _ = strings.Cut(rawQuery, "&")
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil || key != name {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return "", err
		}
		if val != "" {
			return val, nil
		}
	}
	return "", nil
}

// MatchMode selects how AllowList compares the upstream address with its rule.
type MatchMode int

const (
	// MatchContains accepts when the rule appears anywhere in the network
	// location (userinfo@host:port). It also accepts hosts such as
	// "notsploop.io" or "sploop.io.attacker.com" for rule "sploop.io".
	MatchContains MatchMode = iota
	// MatchSuffix accepts the rule itself and its subdomains only.
	MatchSuffix
)

func (m MatchMode) String() string {
	if m == MatchSuffix {
		return "suffix"
	}
	return "contains"
}

// ParseMatchMode maps a config value ("contains" or "suffix") to a MatchMode.
// An empty value selects MatchContains.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(s) {
	case "", "contains":
		return MatchContains, nil
	case "suffix":
		return MatchSuffix, nil
	}
	return MatchContains, fmt.Errorf("unknown match mode %q", s)
}

// AllowList decides which upstreams a session may dial. The zero value
// rejects everything.
type AllowList struct {
	rule string
	mode MatchMode
}

// NewAllowList returns an AllowList accepting upstreams that match rule
// under mode.
func NewAllowList(rule string, mode MatchMode) (AllowList, error) {
	if rule == "" {
		return AllowList{}, errors.New("allow-list rule must not be empty")
	}
	return AllowList{rule: rule, mode: mode}, nil
}

// Rule returns the configured host rule.
func (a AllowList) Rule() string { return a.rule }

// Mode returns the configured match mode.
func (a AllowList) Mode() MatchMode { return a.mode }

// Check parses target and validates its host.
func (a AllowList) Check(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &Error{Reason: MalformedTarget, Err: err}
	}
	if !a.Allows(target) {
		return nil, &Error{Reason: DisallowedUpstream, Err: fmt.Errorf("host %q not allowed", u.Host)}
	}
	return u, nil
}

// Allows reports whether target may be dialed. Contains mode tests the rule
// against the network location exactly as written in target, escapes
// included; suffix mode compares the parsed host name.
func (a AllowList) Allows(target string) bool {
	if a.rule == "" {
		return false
	}
	switch a.mode {
	case MatchSuffix:
		u, err := url.Parse(target)
		if err != nil {
			return false
		}
		host := strings.ToLower(u.Hostname())
		rule := strings.ToLower(a.rule)
		return host == rule || strings.HasSuffix(host, "."+rule)
	default:
		return strings.Contains(rawNetloc(target), a.rule)
	}
}

// rawNetloc returns the authority of target without decoding it: the text
// after "scheme://" up to the first '/', '?' or '#'. It is empty when target
// has no "//" authority marker.
func rawNetloc(target string) string {
	rest := target
	if i := strings.Index(rest, ":"); i > 0 && validScheme(rest[:i]) {
		rest = rest[i+1:]
	}
	if !strings.HasPrefix(rest, "//") {
		return ""
	}
	rest = rest[2:]
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func validScheme(s string) bool {
	for i, c := range s {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}
