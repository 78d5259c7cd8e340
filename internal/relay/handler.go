package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matst80/wsrelay/internal/httpx"
	"github.com/matst80/wsrelay/internal/obs"
	"github.com/matst80/wsrelay/internal/proto"
)

// SessionInfo is the tracker-facing view of a session.
type SessionInfo struct {
	ID       string    `json:"id"`
	Remote   string    `json:"remote"`
	Upstream string    `json:"upstream"`
	Started  time.Time `json:"started"`
}

// Tracker observes session lifecycle events. Implementations must be safe
// for concurrent use and must not block.
type Tracker interface {
	SessionOpened(info SessionInfo)
	SessionClosed(info SessionInfo)
	SessionRejected(reason Reason)
}

// Limiter admits or refuses new connections per client address.
type Limiter interface {
	AllowConnection(client string) bool
}

type Options struct {
	Allow          AllowList
	DialTimeout    time.Duration
	MaxMessageSize int64 // 0 disables the limit
	TrustForwarded bool
	PingInterval   time.Duration // keep-alive ping period for both peers; 0 disables
	Limiter        Limiter
	Tracker        Tracker
	// Dialer overrides the upstream dialer; HandshakeTimeout is taken from
	// DialTimeout when unset.
	Dialer *websocket.Dialer
}

const DefaultDialTimeout = 10 * time.Second

// Handler upgrades inbound requests and relays each one to its target.
type Handler struct {
	opts     Options
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

func NewHandler(opts Options) *Handler {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	d := opts.Dialer
	if d == nil {
		d = &websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	}
	if d.HandshakeTimeout == 0 {
		dc := *d
		dc.HandshakeTimeout = opts.DialTimeout
		d = &dc
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dialer: d,
		ctx:    ctx,
		cancel: cancel,
	}
}

// statusText answers plain HTTP requests on the relay address so platform
// health checks that cannot reach the ops port see the process as up.
const statusText = "wsrelay running\n"

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, statusText)
		return
	}
	remote := httpx.ClientIP(r, h.opts.TrustForwarded)
	if h.opts.Limiter != nil && !h.opts.Limiter.AllowConnection(remote) {
		obs.ErrorsTotal.WithLabelValues("rate_limited").Inc()
		obs.Debug("session.rate_limited", obs.Fields{"remote": remote})
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}
	if !h.enter() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.sessions.Done()

	client, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		obs.ErrorsTotal.WithLabelValues("upgrade").Inc()
		obs.Debug("session.upgrade", obs.Fields{"remote": remote, "err": err.Error()})
		return
	}
	h.run(newSession(client, remote), r.URL.RawQuery)
}

func (h *Handler) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions.Add(1)
	return true
}

// run drives one session from Accepted to Closed.
func (h *Handler) run(s *Session, rawQuery string) {
	defer s.closeConns()
	if h.opts.MaxMessageSize > 0 {
		s.client.SetReadLimit(h.opts.MaxMessageSize)
	}
	obs.Info("session.accepted", obs.Fields{"id": s.ID, "remote": s.Remote})

	raw, err := ParseTarget(rawQuery)
	if err != nil {
		h.reject(s, err)
		return
	}
	s.setState(TargetParsed)
	u, err := h.opts.Allow.Check(raw)
	if err != nil {
		h.reject(s, err)
		return
	}
	s.target, s.rawTarget = u, raw
	s.setState(Validated)

	upstream, err := h.dial(s)
	if err != nil {
		h.reject(s, err)
		return
	}
	if h.opts.MaxMessageSize > 0 {
		upstream.SetReadLimit(h.opts.MaxMessageSize)
	}
	s.upstream = upstream
	s.setState(UpstreamConnected)

	info := s.Info()
	obs.ActiveSessions.Inc()
	obs.SessionsTotal.Inc()
	if h.opts.Tracker != nil {
		h.opts.Tracker.SessionOpened(info)
	}
	obs.Info("session.forwarding", obs.Fields{"id": s.ID, "upstream": u.Host, "path": u.Path})

	start := time.Now()
	cause := s.forward(h.ctx, h.opts.PingInterval)
	elapsed := time.Since(start)

	obs.ActiveSessions.Dec()
	obs.SessionDurationSeconds.Observe(elapsed.Seconds())
	if h.opts.Tracker != nil {
		h.opts.Tracker.SessionClosed(info)
	}
	if !normalEnd(cause) && !errors.Is(cause, context.Canceled) {
		obs.ErrorsTotal.WithLabelValues(ForwardingFailure.String()).Inc()
	}
	obs.Info("session.closed", obs.Fields{"id": s.ID, "duration_ms": elapsed.Milliseconds(), "cause": cause.Error()})
}

func (h *Handler) dial(s *Session) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(h.ctx, h.opts.DialTimeout)
	defer cancel()
	start := time.Now()
	conn, resp, err := h.dialer.DialContext(ctx, s.rawTarget, nil)
	obs.DialDurationSeconds.Observe(time.Since(start).Seconds())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, &Error{Reason: UpstreamConnectFailure, Err: err}
	}
	obs.Debug("upstream.dial", obs.Fields{"id": s.ID, "upstream": s.target.Host, "ms": time.Since(start).Milliseconds()})
	return conn, nil
}

// reject ends a session that never reached forwarding.
func (h *Handler) reject(s *Session, err error) {
	reason := ReasonOf(err)
	obs.RejectedTotal.WithLabelValues(reason.String()).Inc()
	obs.Info("session.rejected", obs.Fields{"id": s.ID, "remote": s.Remote, "reason": reason.String(), "err": err.Error()})
	if h.opts.Tracker != nil {
		h.opts.Tracker.SessionRejected(reason)
	}
	code := reason.CloseCode()
	writeClose(s.client, code, proto.CloseText(code))
	s.setState(Closed)
}

// Shutdown refuses new sessions, closes live ones and waits for them to
// finish or for ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
