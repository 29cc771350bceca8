package dairy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notesSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dairy_client",
		Name:      "notes_saved_total",
		Help:      "Debounced note saves confirmed by the backend.",
	})

	createRollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dairy_client",
		Name:      "note_create_rollbacks_total",
		Help:      "Provisional notes removed after a failed remote create.",
	})

	deleteRollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dairy_client",
		Name:      "note_delete_rollbacks_total",
		Help:      "Notes reinserted after a failed remote delete.",
	})

	streamReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dairy_client",
		Name:      "stream_reconnect_attempts_total",
		Help:      "Scheduled reconnect attempts after unintentional closes.",
	})

	streamFramesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dairy_client",
		Name:      "stream_frames_dropped_total",
		Help:      "Inbound frames discarded: unparseable, unknown type, or no active stream.",
	})
)
