package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the message delivery pipeline. Incremented only on actual
// state transitions, so redundant acks do not inflate them.
var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages accepted by the store.",
	})

	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_delivered_total",
		Help: "Messages transitioned to delivered.",
	})

	MessagesSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_seen_total",
		Help: "Messages transitioned to seen.",
	})

	TypingSignals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_typing_signals_total",
		Help: "Typing signals relayed.",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Currently attached websocket clients.",
	})

	DroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_dropped_events_total",
		Help: "Broadcast events dropped because a client buffer was full.",
	})
)
