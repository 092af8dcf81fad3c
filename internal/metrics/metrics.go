package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlarmsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinbot_alarms_fired_total",
		Help: "Alarm notifications produced by the sweep, by alarm kind",
	}, []string{"kind"})

	AlarmsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinbot_alarms_skipped_total",
		Help: "Alarms left untouched because market data was unavailable",
	}, []string{"kind"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coinbot_sweep_duration_seconds",
		Help:    "Wall time of one full alarm sweep",
		Buckets: prometheus.DefBuckets,
	})

	MarketErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinbot_market_errors_total",
		Help: "Failed market data requests by operation",
	}, []string{"op"})

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coinbot_notifications_failed_total",
		Help: "Alarm notifications the Telegram API did not accept",
	})

	GuardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinbot_guard_decisions_total",
		Help: "Flood guard verdicts for inbound updates",
	}, []string{"decision"})
)
