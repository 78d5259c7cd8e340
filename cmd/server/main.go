package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matst80/wsrelay/internal/obs"
	"github.com/matst80/wsrelay/internal/ratelimit"
	"github.com/matst80/wsrelay/internal/relay"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		obs.Error("config", obs.Fields{"err": err.Error()})
		os.Exit(2)
	}
	if cfg.Debug {
		obs.EnableDebug(true)
	}
	allow, err := cfg.allowList()
	if err != nil {
		obs.Error("config.allow", obs.Fields{"err": err.Error()})
		os.Exit(2)
	}
	obs.Info("server.start", obs.Fields{"addr": cfg.Addr, "metrics": cfg.MetricsAddr, "allow": allow.Rule(), "match": allow.Mode().String()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := newStateStore(ctx, cfg)
	if err != nil {
		obs.Error("state.init", obs.Fields{"err": err.Error()})
		os.Exit(1)
	}

	opts := relay.Options{
		Allow:          allow,
		DialTimeout:    cfg.DialTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
		TrustForwarded: cfg.TrustForwarded,
		PingInterval:   cfg.PingInterval,
		Tracker:        state,
	}
	if cfg.ConnRate > 0 || cfg.ClientConnRate > 0 {
		rl := ratelimit.NewRateLimiter(cfg.ConnRate, cfg.ClientConnRate, cfg.Burst)
		go rl.Run(ctx, time.Minute, 10*time.Minute)
		opts.Limiter = rl
	}
	handler := relay.NewHandler(opts)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		obs.Error("listen.relay", obs.Fields{"err": err.Error(), "addr": cfg.Addr})
		os.Exit(1)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	var ops *http.Server
	if cfg.MetricsAddr != "" {
		ops = startMetricsServer(cfg.MetricsAddr, state, allow)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	state.setReady(true)
	obs.Info("server.ready", obs.Fields{"addr": ln.Addr().String()})

	select {
	case <-ctx.Done():
		obs.Info("server.shutdown.signal", obs.Fields{})
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			obs.Error("server.serve", obs.Fields{"err": err.Error()})
		}
	}
	state.setClosing(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Error("server.shutdown.http", obs.Fields{"err": err.Error()})
	}
	if err := handler.Shutdown(shutdownCtx); err != nil {
		obs.Error("server.shutdown.sessions", obs.Fields{"err": err.Error()})
	}
	if ops != nil {
		_ = ops.Shutdown(shutdownCtx)
	}
	if err := state.close(); err != nil {
		obs.Error("state.close", obs.Fields{"err": err.Error()})
	}
	obs.Info("server.shutdown.complete", obs.Fields{})
}
