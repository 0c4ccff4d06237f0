package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Persist failure reasons.
const (
	ReasonRead     = "read"
	ReasonWrite    = "write"
	ReasonConflict = "conflict"
	ReasonEncode   = "encode"
)

var (
	// Chat metrics
	ChatConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "elmchat_chat_connections",
			Help: "Number of open chat WebSocket connections",
		},
	)

	ChatMembers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "elmchat_chat_members",
			Help: "Number of users joined to the room",
		},
	)

	ChatMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "elmchat_chat_messages_total",
			Help: "Total number of chat messages broadcast",
		},
	)

	ChatPersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elmchat_chat_persist_failures_total",
			Help: "Total number of chat messages that were not persisted, by reason",
		},
		[]string{"reason"},
	)

	// History metrics
	HistoryFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elmchat_history_fetch_duration_seconds",
			Help:    "Time taken to rebuild the room history",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ChatConnections)
	prometheus.MustRegister(ChatMembers)
	prometheus.MustRegister(ChatMessagesTotal)
	prometheus.MustRegister(ChatPersistFailures)
	prometheus.MustRegister(HistoryFetchDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in h.
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}
