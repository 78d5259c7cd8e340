package main

import (
	"errors"
	"flag"
	"io"
	"net/url"
	"time"

	"github.com/matst80/wsrelay/internal/proto"
)

// Config holds probe client configuration.
type Config struct {
	Relay       string
	Target      string
	Binary      bool
	DialTimeout time.Duration
	Debug       bool
}

func parseConfig(args []string, errOut io.Writer) (Config, error) {
	var c Config
	fs := flag.NewFlagSet("wsrelay-client", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&c.Relay, "relay", "ws://127.0.0.1:8000/", "relay address")
	fs.StringVar(&c.Target, "target", "", "upstream WebSocket URL, e.g. wss://server.sploop.io/ws?token=123")
	fs.BoolVar(&c.Binary, "binary", false, "send stdin lines as binary frames")
	fs.DurationVar(&c.DialTimeout, "timeout", 10*time.Second, "handshake timeout")
	fs.BoolVar(&c.Debug, "debug", false, "enable debug logs")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if c.Target == "" {
		return Config{}, errors.New("-target is required")
	}
	return c, nil
}

// relayURL returns the relay address with the encoded target attached.
func (c Config) relayURL() (string, error) {
	u, err := url.Parse(c.Relay)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("relay must be a ws:// or wss:// URL")
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := u.Query()
	q.Set(proto.TargetParam, c.Target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
