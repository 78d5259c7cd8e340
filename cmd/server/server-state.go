package main

import (
	"sync"

	"github.com/matst80/wsrelay/internal/obs"
	"github.com/matst80/wsrelay/internal/relay"
)

// serverState keeps the registry in process memory.
type serverState struct {
	lifecycle
	local *sessionSet

	mu       sync.Mutex
	total    int64
	rejected map[string]int64
}

func newServerState() *serverState {
	return &serverState{local: newSessionSet(), rejected: make(map[string]int64)}
}

var _ StateStore = (*serverState)(nil)

func (s *serverState) SessionOpened(info relay.SessionInfo) {
	n := s.local.add(info)
	s.mu.Lock()
	s.total++
	s.mu.Unlock()
	obs.Debug("state.session_opened", obs.Fields{"id": info.ID, "active": n})
}

func (s *serverState) SessionClosed(info relay.SessionInfo) {
	n := s.local.remove(info.ID)
	obs.Debug("state.session_closed", obs.Fields{"id": info.ID, "active": n})
}

func (s *serverState) SessionRejected(reason relay.Reason) {
	s.mu.Lock()
	s.rejected[reason.String()]++
	s.mu.Unlock()
}

func (s *serverState) backend() string { return "memory" }

func (s *serverState) getStats() (int, int64, map[string]int64) {
	active := len(s.local.ids())
	s.mu.Lock()
	defer s.mu.Unlock()
	rejected := make(map[string]int64, len(s.rejected))
	for k, v := range s.rejected {
		rejected[k] = v
	}
	return active, s.total, rejected
}

func (s *serverState) localSessions() []relay.SessionInfo { return s.local.list() }

func (s *serverState) close() error { return nil }
