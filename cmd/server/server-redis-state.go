package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/matst80/wsrelay/internal/obs"
	"github.com/matst80/wsrelay/internal/relay"
	"github.com/redis/go-redis/v9"
)

const (
	keyActive   = "wsrelay:active" // zset: session id scored by last heartbeat (unix seconds)
	keyTotal    = "wsrelay:sessions_total"
	keyRejected = "wsrelay:rejected" // hash: reason -> count
	keySession  = "wsrelay:session:"

	opQueueSize = 1024
)

// sessionData is the JSON form stored in Redis.
type sessionData struct {
	relay.SessionInfo
	Instance string `json:"instance"`
}

// redisOp is a deferred registry write.
type redisOp struct {
	name string
	run  func(ctx context.Context) error
}

// redisStateStore implements StateStore using Redis so that counters and the
// active session count are shared by every relay instance. Connections stay
// local; only metadata is published. Tracker callbacks only queue writes;
// startMaintenance applies them.
type redisStateStore struct {
	lifecycle
	client     *redis.Client
	instanceID string
	// mem mirrors every event locally and answers stats while Redis is down.
	mem *serverState

	ops      chan redisOp
	quit     chan struct{}
	quitOnce sync.Once

	opTimeout         time.Duration
	heartbeatInterval time.Duration
	sessionTTL        time.Duration
	now               func() time.Time
}

func newRedisStateStore(addr, password string, db int) (*redisStateStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return newRedisStore(rdb), nil
}

func newRedisStore(rdb *redis.Client) *redisStateStore {
	return &redisStateStore{
		client:            rdb,
		instanceID:        fmt.Sprintf("wsrelay-%d", time.Now().UnixNano()),
		mem:               newServerState(),
		ops:               make(chan redisOp, opQueueSize),
		quit:              make(chan struct{}),
		opTimeout:         2 * time.Second,
		heartbeatInterval: 30 * time.Second,
		sessionTTL:        90 * time.Second,
		now:               time.Now,
	}
}

var _ StateStore = (*redisStateStore)(nil)

func (r *redisStateStore) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opTimeout)
}

func (r *redisStateStore) backend() string { return "redis" }

// enqueue hands op to the maintenance loop. A full queue drops the write;
// heartbeats and TTLs repair the active set.
func (r *redisStateStore) enqueue(op redisOp) {
	select {
	case r.ops <- op:
	default:
		obs.ErrorsTotal.WithLabelValues("state_queue_full").Inc()
		obs.Error("redis.queue_full", obs.Fields{"op": op.name})
	}
}

func (r *redisStateStore) apply(op redisOp) {
	ctx, cancel := r.opCtx()
	defer cancel()
	if err := op.run(ctx); err != nil {
		obs.Error("redis."+op.name, obs.Fields{"err": err.Error()})
	}
}

// flush applies queued writes until the queue is empty.
func (r *redisStateStore) flush() {
	for {
		select {
		case op := <-r.ops:
			r.apply(op)
		default:
			return
		}
	}
}

func (r *redisStateStore) SessionOpened(info relay.SessionInfo) {
	r.mem.SessionOpened(info)
	data, err := json.Marshal(sessionData{SessionInfo: info, Instance: r.instanceID})
	if err != nil {
		obs.Error("redis.session.marshal", obs.Fields{"err": err.Error(), "id": info.ID})
		return
	}
	score := float64(r.now().Unix())
	r.enqueue(redisOp{name: "session_opened", run: func(ctx context.Context) error {
		pipe := r.client.TxPipeline()
		pipe.Set(ctx, keySession+info.ID, data, r.sessionTTL)
		pipe.ZAdd(ctx, keyActive, redis.Z{Score: score, Member: info.ID})
		pipe.Incr(ctx, keyTotal)
		_, err := pipe.Exec(ctx)
		return err
	}})
}

func (r *redisStateStore) SessionClosed(info relay.SessionInfo) {
	r.mem.SessionClosed(info)
	r.enqueue(redisOp{name: "session_closed", run: func(ctx context.Context) error {
		return r.forget(ctx, info.ID)
	}})
}

func (r *redisStateStore) forget(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		pipe.Del(ctx, keySession+id)
		members = append(members, id)
	}
	pipe.ZRem(ctx, keyActive, members...)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisStateStore) SessionRejected(reason relay.Reason) {
	r.mem.SessionRejected(reason)
	r.enqueue(redisOp{name: "session_rejected", run: func(ctx context.Context) error {
		return r.client.HIncrBy(ctx, keyRejected, reason.String(), 1).Err()
	}})
}

// getStats prunes sessions whose owner stopped heartbeating, then reads the
// shared counters. On Redis failure it reports this instance's own numbers.
func (r *redisStateStore) getStats() (int, int64, map[string]int64) {
	ctx, cancel := r.opCtx()
	defer cancel()
	cutoff := r.now().Add(-r.sessionTTL).Unix()
	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, keyActive, "-inf", "("+strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, keyActive)
	total := pipe.Get(ctx, keyTotal)
	rej := pipe.HGetAll(ctx, keyRejected)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		obs.Error("redis.stats", obs.Fields{"err": err.Error()})
		return r.mem.getStats()
	}
	n, err := total.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		obs.Error("redis.stats.total", obs.Fields{"err": err.Error()})
	}
	rejected := make(map[string]int64)
	for reason, v := range rej.Val() {
		c, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		rejected[reason] = c
	}
	return int(card.Val()), n, rejected
}

func (r *redisStateStore) localSessions() []relay.SessionInfo { return r.mem.localSessions() }

// startMaintenance applies queued writes and refreshes this instance's
// sessions until ctx is done or the store is closed.
func (r *redisStateStore) startMaintenance(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.quit:
			return
		case op := <-r.ops:
			r.apply(op)
		case <-ticker.C:
			r.heartbeat()
		}
	}
}

// heartbeat bumps the score and key TTL of every locally owned session.
func (r *redisStateStore) heartbeat() {
	ids := r.mem.local.ids()
	if len(ids) == 0 {
		return
	}
	ctx, cancel := r.opCtx()
	defer cancel()
	score := float64(r.now().Unix())
	pipe := r.client.Pipeline()
	for _, id := range ids {
		pipe.ZAdd(ctx, keyActive, redis.Z{Score: score, Member: id})
		pipe.Expire(ctx, keySession+id, r.sessionTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		obs.Error("redis.heartbeat", obs.Fields{"err": err.Error(), "sessions": len(ids)})
	}
}

// close stops maintenance, applies pending writes and withdraws any sessions
// still registered by this instance.
func (r *redisStateStore) close() error {
	r.quitOnce.Do(func() { close(r.quit) })
	r.flush()
	ctx, cancel := r.opCtx()
	defer cancel()
	if err := r.forget(ctx, r.mem.local.ids()...); err != nil {
		obs.Error("redis.close.forget", obs.Fields{"err": err.Error()})
	}
	return r.client.Close()
}
