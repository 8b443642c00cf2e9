package competition

import (
	"context"

	"github.com/sirupsen/logrus"

	"dev.helix.arena/internal/config"
)

// ProgressionReport is the analyzer's verdict on the most recent turn.
type ProgressionReport struct {
	Orbiting        bool    `json:"orbiting"`
	OrbitingScore   float64 `json:"orbiting_score"` // mean pairwise similarity over the window
	StagnationTurns int     `json:"stagnation_turns"`
	// ForceAdvance is set when consecutive orbiting turns exceed the
	// configured maximum; the orchestrator must break the stall with a
	// forced phase advance.
	ForceAdvance bool `json:"force_advance"`
}

// ProgressionAnalyzer watches a rolling window of exchanges for "orbiting":
// sustained high pairwise similarity that means the contest stopped moving.
type ProgressionAnalyzer struct {
	windowSize    int
	threshold     float64
	maxStagnation int
	oracle        SimilarityOracle
	log           *logrus.Logger
}

// NewProgressionAnalyzer creates an analyzer over the given similarity oracle.
func NewProgressionAnalyzer(cfg *config.CompetitionConfig, oracle SimilarityOracle) *ProgressionAnalyzer {
	return &ProgressionAnalyzer{
		windowSize:    cfg.WindowSize,
		threshold:     cfg.OrbitingThreshold,
		maxStagnation: cfg.MaxStagnationTurns,
		oracle:        oracle,
		log:           logrus.New(),
	}
}

// SetLogger sets the logger for stagnation warnings.
func (a *ProgressionAnalyzer) SetLogger(log *logrus.Logger) {
	a.log = log
}

// Analyze updates the state's orbiting flag and stagnation counter from the
// current window (which already contains the newest exchange) and reports
// whether a forced advance is due. Oracle failures degrade to "no signal"
// rather than failing the turn.
func (a *ProgressionAnalyzer) Analyze(ctx context.Context, state *CompetitionState) ProgressionReport {
	window := state.LastExchanges(a.windowSize)

	meanSim := 0.0
	if len(window) >= 2 {
		pairs := 0
		sum := 0.0
		for i := 0; i < len(window); i++ {
			for j := i + 1; j < len(window); j++ {
				sim, err := a.oracle.Similarity(ctx, window[i].Content, window[j].Content)
				if err != nil {
					a.log.WithFields(logrus.Fields{
						"competition": state.ID,
						"turns":       []int{window[i].Turn, window[j].Turn},
					}).WithError(err).Warn("similarity oracle failed, skipping pair")
					continue
				}
				sum += sim
				pairs++
			}
		}
		if pairs > 0 {
			meanSim = sum / float64(pairs)
		}
	}

	orbiting := len(window) >= a.windowSize && meanSim > a.threshold
	if orbiting {
		state.StagnationTurns++
	} else {
		state.StagnationTurns = 0
	}
	state.Orbiting = orbiting

	report := ProgressionReport{
		Orbiting:        orbiting,
		OrbitingScore:   meanSim,
		StagnationTurns: state.StagnationTurns,
	}

	if state.StagnationTurns > a.maxStagnation {
		report.ForceAdvance = true
		stallErr := &StalledCompetitionError{
			StagnationTurns: state.StagnationTurns,
			OrbitingScore:   meanSim,
		}
		a.log.WithFields(logrus.Fields{
			"competition": state.ID,
			"turn":        state.Turn,
		}).WithError(stallErr).Warn("stagnation limit exceeded, forcing phase advance")
	}

	return report
}
