package main

import "github.com/matst80/wsrelay/internal/relay"

// StateStore is the session registry. It doubles as the relay's Tracker so
// several relay instances can share counters through Redis.
type StateStore interface {
	relay.Tracker
	setClosing(closing bool)
	setReady(ready bool)
	isClosing() bool
	isReady() bool
	backend() string
	// stats helpers (not exported outside package main)
	getStats() (active int, total int64, rejected map[string]int64)
	localSessions() []relay.SessionInfo
	close() error
}
