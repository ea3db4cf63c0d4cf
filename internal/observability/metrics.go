package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatsync_connection_state",
			Help: "Current connection state, 1 for the active state and 0 otherwise.",
		},
		[]string{"state"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_ws_events_total",
			Help: "Total number of websocket transport events.",
		},
		[]string{"event"},
	)
	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_reconnects_total",
			Help: "Total number of reconnect cycles entered.",
		},
	)
	sendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_sends_total",
			Help: "Total number of outbound messages written to the transport.",
		},
	)
	timelineMergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_timeline_merges_total",
			Help: "Total number of timeline merge steps by outcome.",
		},
		[]string{"outcome"},
	)
	historyFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_history_fetches_total",
			Help: "Total number of history page fetches by status.",
		},
		[]string{"status"},
	)
	openRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_open_rooms",
			Help: "Number of currently open room subscriptions.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

var connectionStates = []string{"idle", "connecting", "connected", "reconnecting", "closed"}

func init() {
	prometheus.MustRegister(
		connectionState,
		wsEventsTotal,
		reconnectsTotal,
		sendsTotal,
		timelineMergesTotal,
		historyFetchesTotal,
		openRooms,
		amqpPublishErrorsTotal,
	)
}

// SetConnectionState marks the given state active and clears the others.
func SetConnectionState(state string) {
	for _, s := range connectionStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		connectionState.WithLabelValues(s).Set(value)
	}
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncReconnect() {
	reconnectsTotal.Inc()
}

func IncSend() {
	sendsTotal.Inc()
}

func IncTimelineMerge(outcome string) {
	timelineMergesTotal.WithLabelValues(outcome).Inc()
}

func IncHistoryFetch(status string) {
	historyFetchesTotal.WithLabelValues(status).Inc()
}

func IncOpenRooms() {
	openRooms.Inc()
}

func DecOpenRooms() {
	openRooms.Dec()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
