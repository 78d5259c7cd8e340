package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions         = promauto.NewGauge(prometheus.GaugeOpts{Name: "wsrelay_active_sessions", Help: "Sessions currently forwarding"})
	SessionsTotal          = promauto.NewCounter(prometheus.CounterOpts{Name: "wsrelay_sessions_total", Help: "Sessions that reached forwarding"})
	RejectedTotal          = promauto.NewCounterVec(prometheus.CounterOpts{Name: "wsrelay_rejected_total", Help: "Sessions closed before forwarding, by reason"}, []string{"reason"})
	MessagesTotal          = promauto.NewCounterVec(prometheus.CounterOpts{Name: "wsrelay_messages_total", Help: "Messages forwarded by direction"}, []string{"direction"})
	BytesTotal             = promauto.NewCounterVec(prometheus.CounterOpts{Name: "wsrelay_bytes_total", Help: "Payload bytes forwarded by direction"}, []string{"direction"})
	ErrorsTotal            = promauto.NewCounterVec(prometheus.CounterOpts{Name: "wsrelay_errors_total", Help: "Errors by type"}, []string{"type"})
	SessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "wsrelay_session_duration_seconds", Help: "Forwarding lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 20)})
	DialDurationSeconds    = promauto.NewHistogram(prometheus.HistogramOpts{Name: "wsrelay_upstream_dial_seconds", Help: "Upstream handshake latency", Buckets: prometheus.DefBuckets})
)
