package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConversationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportbot_conversations_started_total",
		Help: "Conversations started with /start.",
	})

	ConversationsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportbot_conversations_finalized_total",
		Help: "Reports persisted, by action.",
	}, []string{"action"})

	ConversationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportbot_conversations_cancelled_total",
		Help: "Conversations cancelled before finalizing.",
	})

	MediaRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportbot_media_relayed_total",
		Help: "Media items relayed to object storage, by kind.",
	}, []string{"kind"})

	RelayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportbot_media_relay_failures_total",
		Help: "Failed media relay attempts.",
	})

	FinalizeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportbot_finalize_failures_total",
		Help: "Reports lost to a failed persistence call at finalize.",
	})
)
