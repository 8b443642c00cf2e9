// Package metrics provides the prometheus collector for the arena engine.
// Exposition is left to the embedding process; the engine only registers
// and updates collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates the engine's prometheus metrics.
type Collector struct {
	TurnsTotal        *prometheus.CounterVec
	ForfeitsTotal     *prometheus.CounterVec
	PenaltiesTotal    *prometheus.CounterVec
	EliminationsTotal *prometheus.CounterVec
	JudgeVotesTotal   *prometheus.CounterVec

	JudgeLatency        *prometheus.HistogramVec
	AggregateConfidence prometheus.Histogram
	TurnScore           prometheus.Histogram

	CompetitionsActive prometheus.Gauge
}

// NewCollector creates the collector with all metrics initialized.
func NewCollector() *Collector {
	return &Collector{
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_turns_total",
				Help: "Total committed turns",
			},
			[]string{"competition"},
		),
		ForfeitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_forfeits_total",
				Help: "Total forfeited (no-show) turns",
			},
			[]string{"competition"},
		),
		PenaltiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_penalties_total",
				Help: "Total anti-gaming penalties applied",
			},
			[]string{"competition", "rule"},
		),
		EliminationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_eliminations_total",
				Help: "Total participant eliminations",
			},
			[]string{"competition"},
		),
		JudgeVotesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arena_judge_votes_total",
				Help: "Judge votes by outcome",
			},
			[]string{"judge", "outcome"},
		),
		JudgeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arena_judge_latency_seconds",
				Help:    "Judge evaluation latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"judge"},
		),
		AggregateConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arena_aggregate_confidence",
				Help:    "Confidence of aggregated scores",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		TurnScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arena_turn_score",
				Help:    "Final (penalized) per-turn scores",
				Buckets: prometheus.LinearBuckets(-20, 4, 11),
			},
		),
		CompetitionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arena_competitions_active",
				Help: "Competitions currently running",
			},
		),
	}
}

// Register registers all collectors with the given registry.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.TurnsTotal,
		c.ForfeitsTotal,
		c.PenaltiesTotal,
		c.EliminationsTotal,
		c.JudgeVotesTotal,
		c.JudgeLatency,
		c.AggregateConfidence,
		c.TurnScore,
		c.CompetitionsActive,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}
