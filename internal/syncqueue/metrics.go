package syncqueue

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dairy_client",
			Subsystem: "syncqueue",
			Name:      "submissions_total",
			Help:      "Jobs accepted into the executor.",
		},
		[]string{"shard"},
	)

	queueFullTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dairy_client",
			Subsystem: "syncqueue",
			Name:      "queue_full_total",
			Help:      "Submissions rejected because a shard was full.",
		},
		[]string{"shard"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dairy_client",
			Subsystem: "syncqueue",
			Name:      "queue_depth",
			Help:      "Jobs currently waiting per shard.",
		},
		[]string{"shard"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dairy_client",
			Subsystem: "syncqueue",
			Name:      "run_duration_seconds",
			Help:      "Wall time of individual job executions.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"shard"},
	)
)

func labelFor(shard int) string { return strconv.Itoa(shard) }
