package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mActiveLoops = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_active_loops",
		Help: "Check loops currently running",
	})
	mCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_cycles_total",
		Help: "Completed check cycles by resulting status",
	}, []string{"status"})
	mCycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_cycle_errors_total",
		Help: "Cycles that failed unexpectedly and entered cooldown",
	})
	mThreshold = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_threshold_resets_total",
		Help: "Times the failure threshold moved a target back to pending",
	})
	mDowntime = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_downtime_events_total",
		Help: "Downtime events opened and closed",
	}, []string{"action"})
	mPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_publish_errors_total",
		Help: "Snapshots the broadcaster failed to deliver",
	})
	mCycleDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitor_cycle_duration_seconds",
		Help:    "Check cycle duration, probe included",
		Buckets: prometheus.DefBuckets,
	})
)
