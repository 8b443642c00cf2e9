package competition

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"dev.helix.arena/internal/config"
)

// TurnScheduler decides who acts next. Selection mixes an urgency-weighted
// draw ("signal branch") with occasional uniform randomness ("chaos branch")
// so the competition stays lively without becoming predictable.
type TurnScheduler struct {
	weights          config.SchedulerWeights
	randomnessFactor float64
	threshold        float64
	rng              *rand.Rand
	log              *logrus.Logger
}

// NewTurnScheduler creates a scheduler. The rng is owned by the caller and
// must not be shared across competitions.
func NewTurnScheduler(cfg *config.CompetitionConfig, rng *rand.Rand) *TurnScheduler {
	return &TurnScheduler{
		weights:          cfg.SchedulerWeights,
		randomnessFactor: cfg.RandomnessFactor,
		threshold:        cfg.EliminationThreshold,
		rng:              rng,
		log:              logrus.New(),
	}
}

// SetLogger sets the logger for selection decisions.
func (s *TurnScheduler) SetLogger(log *logrus.Logger) {
	s.log = log
}

// SelectNext computes urgency for every active participant and picks the
// next actor. It returns ErrNoActiveParticipants when nobody remains. As a
// side effect the selected participant's addressed flag is cleared and its
// turn-share accounting updated.
func (s *TurnScheduler) SelectNext(state *CompetitionState, registry *Registry) (string, error) {
	active := registry.Active()
	if len(active) == 0 {
		return "", ErrNoActiveParticipants
	}

	var selected string
	if s.rng.Float64() < s.randomnessFactor {
		// Chaos branch: uniform pick keeps the competition from collapsing
		// into a pure urgency ranking.
		selected = active[s.rng.Intn(len(active))].ID
		s.log.WithFields(logrus.Fields{
			"competition": state.ID,
			"turn":        state.Turn + 1,
			"participant": selected,
			"branch":      "chaos",
		}).Debug("next actor selected")
	} else {
		urgencies := make([]float64, len(active))
		total := 0.0
		for i, p := range active {
			urgencies[i] = s.urgency(state, p, len(active))
			total += urgencies[i]
		}

		if total <= 0 {
			selected = active[s.rng.Intn(len(active))].ID
		} else {
			r := s.rng.Float64() * total
			idx := len(active) - 1
			for i, u := range urgencies {
				r -= u
				if r <= 0 {
					idx = i
					break
				}
			}
			selected = active[idx].ID
		}
		s.log.WithFields(logrus.Fields{
			"competition": state.ID,
			"turn":        state.Turn + 1,
			"participant": selected,
			"branch":      "signal",
		}).Debug("next actor selected")
	}

	registry.RecordSelection(selected)
	return selected, nil
}

// urgency computes the weighted urgency for one participant, with the
// fairness and tension corrections applied.
func (s *TurnScheduler) urgency(state *CompetitionState, p *Participant, activeCount int) float64 {
	w := s.weights

	// (b) turns since last spoke, scaled by one full rotation and capped.
	recency := 1.0
	if p.LastSpokeTurn >= 0 {
		since := float64(state.Turn - p.LastSpokeTurn)
		recency = since / float64(activeCount)
		if recency > 1 {
			recency = 1
		}
	}

	addressed := 0.0
	if p.WasAddressed {
		addressed = 1
	}

	champion := 0.0
	if p.PriorChampion || p.Status == StatusChampion {
		champion = 1
	}

	u := w.Affinity*p.AffinityBaseline +
		w.Recency*recency +
		w.Addressed*addressed +
		w.Engagement*p.Engagement +
		w.Risk*s.eliminationRisk(p.CumulativeScore) +
		w.Champion*champion

	// Fairness correction: damp anyone speaking more than 1.5x their fair
	// share of the turns so far.
	if state.Turn > 0 {
		fairShare := 1.0 / float64(activeCount)
		realized := float64(p.TurnsTaken) / float64(state.Turn)
		if realized > 1.5*fairShare {
			u *= 0.5
		}
	}

	// Tension correction: boost at-risk participants so they get a chance
	// to recover before an elimination check fires.
	if p.CumulativeScore < s.tensionLine() {
		u *= 1.3
	}

	return u
}

// eliminationRisk maps cumulative score to [0,1]: 0 at a full threshold
// magnitude of headroom, 1 at or below the threshold, linear in between.
// Expressed through |threshold| so the formula behaves the same for the
// conventional negative thresholds and for positive ones (where the safe
// line lands at exactly 2x the threshold).
func (s *TurnScheduler) eliminationRisk(score float64) float64 {
	margin := math.Abs(s.threshold)
	if margin == 0 {
		if score <= 0 {
			return 1
		}
		return 0
	}

	risk := 1 - (score-s.threshold)/margin
	if risk < 0 {
		return 0
	}
	if risk > 1 {
		return 1
	}
	return risk
}

// tensionLine is the score below which the tension correction applies:
// half a threshold magnitude of headroom (1.5x the threshold when the
// threshold is positive).
func (s *TurnScheduler) tensionLine() float64 {
	return s.threshold + 0.5*math.Abs(s.threshold)
}
