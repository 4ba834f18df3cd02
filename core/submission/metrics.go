package submission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alama",
		Subsystem: "submissions",
		Name:      "transitions_total",
		Help:      "Grade submissions by resulting status.",
	}, []string{"status"})

	archiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alama",
		Subsystem: "submissions",
		Name:      "archive_failures_total",
		Help:      "Approved grade sheets that could not be archived.",
	})
)
