package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/matst80/wsrelay/internal/relay"
)

const (
	defaultPort  = "8000"
	defaultAllow = "sploop.io"
	defaultPing  = 5 * time.Second
)

// Config holds all runtime configuration derived from flags, with
// environment variables supplying the defaults.
type Config struct {
	Addr           string
	Allow          string
	AllowMatch     string
	DialTimeout    time.Duration
	MaxMessageSize int64
	MetricsAddr    string
	Debug          bool
	TrustForwarded bool
	PingInterval   time.Duration
	ShutdownGrace  time.Duration
	// Redis-backed session registry; empty RedisAddr keeps it in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Connection rate limits per second; 0 disables.
	ConnRate       float64
	ClientConnRate float64
	Burst          int
}

// parseConfig registers flags on a fresh set and parses args. getenv supplies
// defaults (PORT, ALLOWED_HOST, REDIS_ADDR, ...).
func parseConfig(args []string, getenv func(string) string, errOut io.Writer) (Config, error) {
	var c Config
	fs := flag.NewFlagSet("wsrelay", flag.ContinueOnError)
	fs.SetOutput(errOut)

	port := envOr(getenv, "PORT", defaultPort)
	fs.StringVar(&c.Addr, "addr", net.JoinHostPort("0.0.0.0", port), "relay listen address (default port from $PORT)")
	fs.StringVar(&c.Allow, "allow", envOr(getenv, "ALLOWED_HOST", defaultAllow), "upstream host rule ($ALLOWED_HOST)")
	fs.StringVar(&c.AllowMatch, "allow-match", envOr(getenv, "ALLOW_MATCH", "contains"), "allow rule matching: contains | suffix")
	fs.DurationVar(&c.DialTimeout, "dial-timeout", relay.DefaultDialTimeout, "upstream open timeout")
	fs.Int64Var(&c.MaxMessageSize, "max-message-size", 1<<20, "largest accepted message in bytes (0 = unlimited)")
	fs.StringVar(&c.MetricsAddr, "metrics", envOr(getenv, "METRICS_ADDR", ":9100"), "metrics, health and dashboard address (empty disables)")
	fs.BoolVar(&c.Debug, "debug", envBool(getenv, "DEBUG"), "enable debug logs")
	fs.BoolVar(&c.TrustForwarded, "trust-forwarded", envBool(getenv, "TRUST_FORWARDED"), "take client IP from X-Forwarded-For / X-Real-IP")
	fs.DurationVar(&c.PingInterval, "ping-interval", envDuration(getenv, "PING_INTERVAL", defaultPing), "keep-alive ping period for both peers (0 disables)")
	fs.DurationVar(&c.ShutdownGrace, "shutdown-grace", 10*time.Second, "time allowed for sessions to close on shutdown")
	fs.StringVar(&c.RedisAddr, "redis", getenv("REDIS_ADDR"), "redis address for the shared session registry")
	fs.StringVar(&c.RedisPassword, "redis-password", getenv("REDIS_PASSWORD"), "redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database")
	fs.Float64Var(&c.ConnRate, "conn-rate", 0, "global new connections per second (0 = unlimited)")
	fs.Float64Var(&c.ClientConnRate, "client-conn-rate", 0, "new connections per second per client IP (0 = unlimited)")
	fs.IntVar(&c.Burst, "burst", 10, "connection rate burst size")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return c, c.validate()
}

func (c Config) validate() error {
	if c.Allow == "" {
		return errors.New("allow rule must not be empty")
	}
	if _, err := relay.ParseMatchMode(c.AllowMatch); err != nil {
		return err
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Addr, err)
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial-timeout must be positive")
	}
	if c.MaxMessageSize < 0 {
		return errors.New("max-message-size must not be negative")
	}
	if c.PingInterval < 0 {
		return errors.New("ping-interval must not be negative")
	}
	if c.ConnRate < 0 || c.ClientConnRate < 0 {
		return errors.New("connection rates must not be negative")
	}
	return nil
}

func (c Config) allowList() (relay.AllowList, error) {
	mode, err := relay.ParseMatchMode(c.AllowMatch)
	if err != nil {
		return relay.AllowList{}, err
	}
	return relay.NewAllowList(c.Allow, mode)
}

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(getenv func(string) string, key string) bool {
	b, _ := strconv.ParseBool(getenv(key))
	return b
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(getenv(key)); err == nil {
		return d
	}
	return def
}
