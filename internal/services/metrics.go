// Package services – engine metrics
//
// Prometheus collectors for the award pipeline and the voice tracker. Labels
// are limited to the closed source set and the deny reasons, so cardinality
// stays bounded no matter how many users are active.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// xpAwards counts granted awards by source.
	xpAwards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_awards_total",
			Help: "Total number of granted XP awards.",
		},
		[]string{"source"},
	)

	// xpDenials counts policy denials by source and reason.
	xpDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_denials_total",
			Help: "Total number of denied XP awards.",
		},
		[]string{"source", "reason"},
	)

	// xpPoints sums the XP granted by source, after multipliers.
	xpPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_points_awarded_total",
			Help: "Total XP granted after multipliers.",
		},
		[]string{"source"},
	)

	levelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "level_ups_total",
			Help: "Total number of confirmed level-ups.",
		},
	)

	voiceSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_sessions_active",
			Help: "Current number of tracked voice sessions.",
		},
	)

	// voiceTickDur records how long one reconciliation pass takes.
	voiceTickDur = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "voice_tick_duration_seconds",
			Help:    "Duration of voice reconciliation ticks in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(xpAwards, xpDenials, xpPoints, levelUps, voiceSessions, voiceTickDur)
}
