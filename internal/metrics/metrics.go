package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Consultation pipeline metrics
var (
	// RepliesTotal counts assistant replies by outcome: completed, failed, rejected
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "conversation",
			Name:      "replies_total",
			Help:      "Total assistant replies by outcome",
		},
		[]string{"outcome"},
	)

	// ReplyKindTotal counts completed replies by classification: structured, prose
	ReplyKindTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "conversation",
			Name:      "reply_kind_total",
			Help:      "Completed replies by classified output kind",
		},
		[]string{"kind"},
	)

	// ReplyDuration observes time from submission to the final reply update
	ReplyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "consult",
			Subsystem: "conversation",
			Name:      "reply_duration_seconds",
			Help:      "Time from submission to reply completion",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
	)

	// TriageTransitionsTotal counts triage state changes by target state
	TriageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "triage",
			Name:      "transitions_total",
			Help:      "Triage state transitions by target state",
		},
		[]string{"to"},
	)

	// RecognizerEventsTotal counts recognizer lifecycle events: started, restarted, failed
	RecognizerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "transcription",
			Name:      "recognizer_events_total",
			Help:      "Speech recognizer lifecycle events",
		},
		[]string{"event"},
	)

	// SegmentsFinalizedTotal counts finalized transcript segments
	SegmentsFinalizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "consult",
			Subsystem: "transcription",
			Name:      "segments_finalized_total",
			Help:      "Transcript segments finalized",
		},
	)

	// ActiveConversations tracks conversations currently held by the hub
	ActiveConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "consult",
			Subsystem: "websocket",
			Name:      "active_conversations",
			Help:      "Conversations currently loaded in memory",
		},
	)

	// ConnectedClients tracks open websocket connections
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "consult",
			Subsystem: "websocket",
			Name:      "connected_clients",
			Help:      "Open websocket connections",
		},
	)
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
