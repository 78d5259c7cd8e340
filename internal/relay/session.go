package relay

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matst80/wsrelay/internal/obs"
)

// State is the lifecycle position of a Session.
type State int32

const (
	Accepted State = iota
	TargetParsed
	Validated
	UpstreamConnected
	Forwarding
	Closed
)

func (s State) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case TargetParsed:
		return "target_parsed"
	case Validated:
		return "validated"
	case UpstreamConnected:
		return "upstream_connected"
	case Forwarding:
		return "forwarding"
	case Closed:
		return "closed"
	}
	return "unknown"
}

const (
	dirUpstream   = "client_to_upstream"
	dirDownstream = "upstream_to_client"
)

// closeWriteWait bounds how long a close frame write may block.
const closeWriteWait = time.Second

// Session pairs one client connection with at most one upstream connection.
type Session struct {
	ID      string
	Remote  string
	Started time.Time

	target    *url.URL
	rawTarget string

	client   *websocket.Conn
	upstream *websocket.Conn

	state     atomic.Int32
	closeOnce sync.Once
}

func newSession(client *websocket.Conn, remote string) *Session {
	return &Session{ID: newSessionID(), Remote: remote, Started: time.Now(), client: client}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	obs.Debug("session.state", obs.Fields{"id": s.ID, "state": st.String()})
}

// Info snapshots the session for trackers.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{ID: s.ID, Remote: s.Remote, Started: s.Started}
	if s.target != nil {
		info.Upstream = s.target.Host
	}
	return info
}

// forward pumps messages both ways until either direction ends or ctx is
// cancelled, then closes both connections. A positive pingEvery pings both
// peers on that period. It returns only after every goroutine it started
// has exited.
func (s *Session) forward(ctx context.Context, pingEvery time.Duration) error {
	s.setState(Forwarding)
	errc := make(chan error, 2)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	if pingEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.keepAlive(stop, pingEvery)
		}()
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		errc <- pump(s.upstream, s.client, dirUpstream)
	}()
	go func() {
		defer wg.Done()
		errc <- pump(s.client, s.upstream, dirDownstream)
	}()

	var cause error
	select {
	case cause = <-errc:
	case <-ctx.Done():
		cause = ctx.Err()
	}
	close(stop)
	s.shutdown(cause)
	wg.Wait()
	s.setState(Closed)
	return cause
}

// keepAlive pings both peers every period until stop is closed. Pongs are
// consumed by the pumps' reads.
func (s *Session) keepAlive(stop <-chan struct{}, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			for _, c := range []*websocket.Conn{s.client, s.upstream} {
				if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(closeWriteWait)); err != nil {
					obs.Debug("session.ping", obs.Fields{"id": s.ID, "err": err.Error()})
				}
			}
		}
	}
}

// pumpError records which side of a pump failed.
type pumpError struct {
	dir   string
	read  bool
	src   *websocket.Conn
	dst   *websocket.Conn
	cause error
}

func (e *pumpError) Error() string {
	op := "write"
	if e.read {
		op = "read"
	}
	return e.dir + " " + op + ": " + e.cause.Error()
}

func (e *pumpError) Unwrap() error { return e.cause }

// pump copies messages from src to dst in order, preserving message type.
func pump(dst, src *websocket.Conn, dir string) error {
	msgs := obs.MessagesTotal.WithLabelValues(dir)
	octets := obs.BytesTotal.WithLabelValues(dir)
	for {
		mt, data, err := src.ReadMessage()
		if err != nil {
			return &pumpError{dir: dir, read: true, src: src, dst: dst, cause: err}
		}
		if err := dst.WriteMessage(mt, data); err != nil {
			return &pumpError{dir: dir, src: src, dst: dst, cause: err}
		}
		msgs.Inc()
		octets.Add(float64(len(data)))
	}
}

// shutdown tells the surviving peer why the session ended and closes both
// connections.
func (s *Session) shutdown(cause error) {
	var pe *pumpError
	switch {
	case errors.As(cause, &pe) && pe.read:
		code, text := mirrorClose(pe.cause)
		writeClose(pe.dst, code, text)
	case errors.As(cause, &pe):
		writeClose(pe.src, websocket.CloseGoingAway, "")
	default:
		writeClose(s.client, websocket.CloseGoingAway, "")
		writeClose(s.upstream, websocket.CloseGoingAway, "")
	}
	s.closeConns()
}

// mirrorClose maps a read error to the close frame passed on to the other peer.
func mirrorClose(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
			return websocket.CloseGoingAway, ""
		}
		return ce.Code, ce.Text
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return websocket.CloseMessageTooBig, ""
	}
	return websocket.CloseGoingAway, ""
}

// closeConns closes both connections once. Close errors are only logged.
func (s *Session) closeConns() {
	s.closeOnce.Do(func() {
		for _, c := range []*websocket.Conn{s.client, s.upstream} {
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil {
				obs.Debug("session.close", obs.Fields{"id": s.ID, "err": err.Error()})
			}
		}
	})
}

func writeClose(c *websocket.Conn, code int, text string) {
	if c == nil {
		return
	}
	_ = c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(closeWriteWait))
}

// normalEnd reports whether err is an orderly close by either peer.
func normalEnd(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return websocket.IsCloseError(ce, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

func newSessionID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
