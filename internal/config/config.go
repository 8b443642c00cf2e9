// Package config provides the typed configuration surface for the arena
// competition engine. Configuration is constructed once at startup, validated
// eagerly, and never mutated at runtime.
package config

import (
	"fmt"
	"math"
	"time"
)

// WeightSumEpsilon is the tolerance when checking that dimension weights sum to 1.0.
const WeightSumEpsilon = 1e-6

// ConfigurationError indicates an invalid configuration value. It is fatal at
// startup and never raised mid-run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// SchedulerWeights holds the urgency-term weights used by the turn scheduler.
// Weights are relative; they feed weighted sampling, so they are required to
// be non-negative with a positive sum rather than to hit an exact total.
type SchedulerWeights struct {
	Affinity   float64 `yaml:"affinity" json:"affinity"`     // static per-participant baseline
	Recency    float64 `yaml:"recency" json:"recency"`       // turns since last spoke
	Addressed  float64 `yaml:"addressed" json:"addressed"`   // was directly addressed
	Engagement float64 `yaml:"engagement" json:"engagement"` // externally supplied engagement
	Risk       float64 `yaml:"risk" json:"risk"`             // proximity to elimination threshold
	Champion   float64 `yaml:"champion" json:"champion"`     // carried-over champion bonus
}

// PenaltyValues holds the score deductions applied by the anti-gaming filter.
// Values are expressed as negative deltas.
type PenaltyValues struct {
	Paraphrase     float64 `yaml:"paraphrase" json:"paraphrase"`
	SelfRepetition float64 `yaml:"self_repetition" json:"self_repetition"`
	LowNovelty     float64 `yaml:"low_novelty" json:"low_novelty"`
}

// ScoreRange is the fixed numeric range judges score within.
type ScoreRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// CompetitionConfig configures a single competition run.
type CompetitionConfig struct {
	// Judging
	JudgeCount       int                `yaml:"judge_count" json:"judge_count"`
	Quorum           int                `yaml:"quorum" json:"quorum"` // 0 = ceil(JudgeCount/2)
	JudgeTimeout     time.Duration      `yaml:"judge_timeout" json:"judge_timeout"`
	DimensionWeights map[string]float64 `yaml:"dimension_weights" json:"dimension_weights"`
	ScoreRange       ScoreRange         `yaml:"score_range" json:"score_range"`

	// Elimination
	EliminationThreshold float64 `yaml:"elimination_threshold" json:"elimination_threshold"` // negative by convention
	EliminationInterval  int     `yaml:"elimination_interval" json:"elimination_interval"`   // check every K turns

	// Anti-gaming
	ParaphraseThreshold float64       `yaml:"paraphrase_threshold" json:"paraphrase_threshold"`
	RepetitionThreshold float64       `yaml:"repetition_threshold" json:"repetition_threshold"`
	NoveltyFloor        float64       `yaml:"novelty_floor" json:"novelty_floor"`
	NoveltyLocalWeight  float64       `yaml:"novelty_local_weight" json:"novelty_local_weight"` // blend weight for competition-local novelty
	PenaltyDepth        int           `yaml:"penalty_depth" json:"penalty_depth"`               // how many prior exchanges each rule inspects
	Penalties           PenaltyValues `yaml:"penalties" json:"penalties"`

	// Progression
	OrbitingThreshold  float64 `yaml:"orbiting_threshold" json:"orbiting_threshold"`
	WindowSize         int     `yaml:"window_size" json:"window_size"`
	MaxStagnationTurns int     `yaml:"max_stagnation_turns" json:"max_stagnation_turns"`

	// Scheduling
	SchedulerWeights SchedulerWeights `yaml:"scheduler_weights" json:"scheduler_weights"`
	RandomnessFactor float64          `yaml:"randomness_factor" json:"randomness_factor"`

	// Orchestration
	MaxTurns     int           `yaml:"max_turns" json:"max_turns"`
	TurnBudget   time.Duration `yaml:"turn_budget" json:"turn_budget"`
	ForfeitScore float64       `yaml:"forfeit_score" json:"forfeit_score"` // score recorded for a no-show turn
}

// DefaultCompetitionConfig returns the engine defaults.
func DefaultCompetitionConfig() *CompetitionConfig {
	return &CompetitionConfig{
		JudgeCount:   3,
		Quorum:       0, // derived
		JudgeTimeout: 5 * time.Second,
		DimensionWeights: map[string]float64{
			"logic":       0.35,
			"persuasion":  0.25,
			"originality": 0.25,
			"engagement":  0.15,
		},
		ScoreRange: ScoreRange{Min: 0, Max: 10},

		EliminationThreshold: -10,
		EliminationInterval:  4,

		ParaphraseThreshold: 0.85,
		RepetitionThreshold: 0.75,
		NoveltyFloor:        0.6,
		NoveltyLocalWeight:  0.6,
		PenaltyDepth:        3,
		Penalties: PenaltyValues{
			Paraphrase:     -15,
			SelfRepetition: -10,
			LowNovelty:     -8,
		},

		OrbitingThreshold:  0.75,
		WindowSize:         5,
		MaxStagnationTurns: 5,

		SchedulerWeights: SchedulerWeights{
			Affinity:   0.25,
			Recency:    0.15,
			Addressed:  0.35,
			Engagement: 0.08,
			Risk:       0.15,
			Champion:   0.05,
		},
		RandomnessFactor: 0.20,

		MaxTurns:     60,
		TurnBudget:   30 * time.Second,
		ForfeitScore: -5,
	}
}

// EffectiveQuorum returns the configured quorum, deriving ceil(JudgeCount/2)
// when unset.
func (c *CompetitionConfig) EffectiveQuorum() int {
	if c.Quorum > 0 {
		return c.Quorum
	}
	return (c.JudgeCount + 1) / 2
}

// Validate checks the configuration and returns a ConfigurationError on the
// first invalid field. It must be called before the configuration is used;
// no validation happens mid-run.
func (c *CompetitionConfig) Validate() error {
	if c.JudgeCount < 1 {
		return &ConfigurationError{Field: "judge_count", Reason: fmt.Sprintf("must be >= 1, got %d", c.JudgeCount)}
	}
	if c.Quorum < 0 || c.Quorum > c.JudgeCount {
		return &ConfigurationError{Field: "quorum", Reason: fmt.Sprintf("must be in [0, judge_count], got %d", c.Quorum)}
	}
	if c.JudgeTimeout <= 0 {
		return &ConfigurationError{Field: "judge_timeout", Reason: "must be positive"}
	}
	if len(c.DimensionWeights) == 0 {
		return &ConfigurationError{Field: "dimension_weights", Reason: "at least one dimension is required"}
	}
	sum := 0.0
	for dim, w := range c.DimensionWeights {
		if w < 0 {
			return &ConfigurationError{Field: "dimension_weights", Reason: fmt.Sprintf("weight for %q is negative", dim)}
		}
		sum += w
	}
	if math.Abs(sum-1.0) > WeightSumEpsilon {
		return &ConfigurationError{Field: "dimension_weights", Reason: fmt.Sprintf("weights must sum to 1.0, got %g", sum)}
	}
	if c.ScoreRange.Max <= c.ScoreRange.Min {
		return &ConfigurationError{Field: "score_range", Reason: "max must exceed min"}
	}
	if c.EliminationInterval < 1 {
		return &ConfigurationError{Field: "elimination_interval", Reason: "must be >= 1"}
	}
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"paraphrase_threshold", c.ParaphraseThreshold},
		{"repetition_threshold", c.RepetitionThreshold},
		{"novelty_floor", c.NoveltyFloor},
		{"novelty_local_weight", c.NoveltyLocalWeight},
		{"orbiting_threshold", c.OrbitingThreshold},
		{"randomness_factor", c.RandomnessFactor},
	} {
		if t.value < 0 || t.value > 1 {
			return &ConfigurationError{Field: t.name, Reason: fmt.Sprintf("must be in [0,1], got %g", t.value)}
		}
	}
	if c.PenaltyDepth < 1 {
		return &ConfigurationError{Field: "penalty_depth", Reason: "must be >= 1"}
	}
	if c.WindowSize < 2 {
		return &ConfigurationError{Field: "window_size", Reason: "must be >= 2"}
	}
	if c.MaxStagnationTurns < 1 {
		return &ConfigurationError{Field: "max_stagnation_turns", Reason: "must be >= 1"}
	}
	sw := c.SchedulerWeights
	wsum := sw.Affinity + sw.Recency + sw.Addressed + sw.Engagement + sw.Risk + sw.Champion
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"scheduler_weights.affinity", sw.Affinity},
		{"scheduler_weights.recency", sw.Recency},
		{"scheduler_weights.addressed", sw.Addressed},
		{"scheduler_weights.engagement", sw.Engagement},
		{"scheduler_weights.risk", sw.Risk},
		{"scheduler_weights.champion", sw.Champion},
	} {
		if t.value < 0 {
			return &ConfigurationError{Field: t.name, Reason: "must be non-negative"}
		}
	}
	if wsum <= 0 {
		return &ConfigurationError{Field: "scheduler_weights", Reason: "weights must have a positive sum"}
	}
	if c.MaxTurns < 1 {
		return &ConfigurationError{Field: "max_turns", Reason: "must be >= 1"}
	}
	if c.TurnBudget <= 0 {
		return &ConfigurationError{Field: "turn_budget", Reason: "must be positive"}
	}
	return nil
}
