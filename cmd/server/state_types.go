package main

import (
	"sort"
	"sync"

	"github.com/matst80/wsrelay/internal/relay"
)

// lifecycle carries the ready/closing flags shared by both stores.
type lifecycle struct {
	mu      sync.Mutex
	closing bool
	ready   bool
}

func (l *lifecycle) setClosing(closing bool) { l.mu.Lock(); l.closing = closing; l.mu.Unlock() }
func (l *lifecycle) setReady(ready bool)     { l.mu.Lock(); l.ready = ready; l.mu.Unlock() }
func (l *lifecycle) isClosing() bool         { l.mu.Lock(); defer l.mu.Unlock(); return l.closing }
func (l *lifecycle) isReady() bool           { l.mu.Lock(); defer l.mu.Unlock(); return l.ready }

// sessionSet is the set of sessions forwarding on this instance.
type sessionSet struct {
	mu       sync.Mutex
	sessions map[string]relay.SessionInfo
}

func newSessionSet() *sessionSet {
	return &sessionSet{sessions: make(map[string]relay.SessionInfo)}
}

func (s *sessionSet) add(info relay.SessionInfo) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[info.ID] = info
	return len(s.sessions)
}

func (s *sessionSet) remove(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return len(s.sessions)
}

func (s *sessionSet) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out
}

// list returns sessions oldest first.
func (s *sessionSet) list() []relay.SessionInfo {
	s.mu.Lock()
	out := make([]relay.SessionInfo, 0, len(s.sessions))
	for _, info := range s.sessions {
		out = append(out, info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}
