package main

import (
	"time"

	"github.com/matst80/wsrelay/internal/relay"
)

// Stats represents current relay stats for the dashboard & API.
type Stats struct {
	Backend  string              `json:"backend"`
	Allow    string              `json:"allow"`
	Match    string              `json:"match"`
	Active   int                 `json:"active"`
	Total    int64               `json:"total"`
	Rejected map[string]int64    `json:"rejected"`
	Sessions []relay.SessionInfo `json:"sessions"`
	Now      string              `json:"now"`
}

func collectStats(s StateStore, allow relay.AllowList) Stats {
	active, total, rejected := s.getStats()
	return Stats{
		Backend:  s.backend(),
		Allow:    allow.Rule(),
		Match:    allow.Mode().String(),
		Active:   active,
		Total:    total,
		Rejected: rejected,
		Sessions: s.localSessions(),
		Now:      time.Now().UTC().Format(time.RFC3339),
	}
}

// ToTemplateMap returns a map suited for html/template rendering with expected capitalized keys.
func (s Stats) ToTemplateMap() map[string]any {
	return map[string]any{
		"Backend":  s.Backend,
		"Allow":    s.Allow,
		"Match":    s.Match,
		"Active":   s.Active,
		"Total":    s.Total,
		"Rejected": s.Rejected,
		"Sessions": s.Sessions,
	}
}
