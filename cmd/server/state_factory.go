package main

import (
	"context"

	"github.com/matst80/wsrelay/internal/obs"
)

// newStateStore picks the registry backend from c. The Redis store keeps
// heartbeating its sessions until ctx is done.
func newStateStore(ctx context.Context, c Config) (StateStore, error) {
	if c.RedisAddr == "" {
		obs.Info("state.backend", obs.Fields{"type": "memory"})
		return newServerState(), nil
	}
	rs, err := newRedisStateStore(c.RedisAddr, c.RedisPassword, c.RedisDB)
	if err != nil {
		return nil, err
	}
	go rs.startMaintenance(ctx)
	obs.Info("state.backend", obs.Fields{"type": "redis", "addr": c.RedisAddr, "instance": rs.instanceID})
	return rs, nil
}
