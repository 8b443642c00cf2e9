package competition

import (
	"context"

	"github.com/sirupsen/logrus"

	"dev.helix.arena/internal/config"
)

// Penalty rule names, recorded on annotations and in the audit trail.
const (
	RuleParaphrase     = "paraphrase"
	RuleSelfRepetition = "self_repetition"
	RuleLowNovelty     = "low_novelty"
)

// AntiGamingFilter applies the deterministic penalty table to a scored
// exchange. Rules are independently triggerable and additive; the filter only
// applies thresholds and arithmetic to oracle-supplied signals, never
// computing text similarity itself. There is no hard floor on the result:
// negative cumulative totals are the elimination mechanism.
type AntiGamingFilter struct {
	paraphraseThreshold float64
	repetitionThreshold float64
	noveltyFloor        float64
	localWeight         float64
	depth               int
	penalties           config.PenaltyValues
	oracle              SimilarityOracle
	log                 *logrus.Logger
}

// NewAntiGamingFilter creates a filter over the given similarity oracle.
func NewAntiGamingFilter(cfg *config.CompetitionConfig, oracle SimilarityOracle) *AntiGamingFilter {
	return &AntiGamingFilter{
		paraphraseThreshold: cfg.ParaphraseThreshold,
		repetitionThreshold: cfg.RepetitionThreshold,
		noveltyFloor:        cfg.NoveltyFloor,
		localWeight:         cfg.NoveltyLocalWeight,
		depth:               cfg.PenaltyDepth,
		penalties:           cfg.Penalties,
		oracle:              oracle,
		log:                 logrus.New(),
	}
}

// SetLogger sets the logger for penalty decisions.
func (f *AntiGamingFilter) SetLogger(log *logrus.Logger) {
	f.log = log
}

// ApplyPenalties evaluates the penalty rules for an exchange against the
// competition history and returns the penalized score, the annotations, and
// the blended novelty value. Oracle failures skip the affected rule rather
// than failing the turn.
func (f *AntiGamingFilter) ApplyPenalties(ctx context.Context, ex *Exchange, history []*Exchange, baseScore float64) (float64, []PenaltyAnnotation, float64) {
	var annotations []PenaltyAnnotation

	others, own := f.recentByAuthor(ex.ParticipantID, history)

	// Paraphrase: similarity to any of the last K contributions from other
	// participants above the threshold.
	if sim, hit := f.maxSimilarity(ctx, ex.Content, others); hit && sim > f.paraphraseThreshold {
		annotations = append(annotations, PenaltyAnnotation{
			Rule:    RuleParaphrase,
			Amount:  f.penalties.Paraphrase,
			Trigger: sim,
		})
	}

	// Self-repetition: similarity to the participant's own last K
	// contributions above the (lower) threshold.
	if sim, hit := f.maxSimilarity(ctx, ex.Content, own); hit && sim > f.repetitionThreshold {
		annotations = append(annotations, PenaltyAnnotation{
			Rule:    RuleSelfRepetition,
			Amount:  f.penalties.SelfRepetition,
			Trigger: sim,
		})
	}

	// Low novelty: blend of competition-local and corpus-wide novelty below
	// the floor.
	novelty := f.blendedNovelty(ctx, ex, history)
	if novelty >= 0 && novelty < f.noveltyFloor {
		annotations = append(annotations, PenaltyAnnotation{
			Rule:    RuleLowNovelty,
			Amount:  f.penalties.LowNovelty,
			Trigger: novelty,
		})
	}

	penalized := baseScore
	for _, a := range annotations {
		penalized += a.Amount
		f.log.WithFields(logrus.Fields{
			"participant": ex.ParticipantID,
			"turn":        ex.Turn,
			"rule":        a.Rule,
			"trigger":     a.Trigger,
			"amount":      a.Amount,
		}).Info("anti-gaming penalty applied")
	}

	if novelty < 0 {
		novelty = 0
	}
	return penalized, annotations, novelty
}

// recentByAuthor splits the last K prior exchanges into those from other
// participants and those from the exchange's own author.
func (f *AntiGamingFilter) recentByAuthor(participantID string, history []*Exchange) (others, own []*Exchange) {
	countOthers, countOwn := 0, 0
	for i := len(history) - 1; i >= 0 && (countOthers < f.depth || countOwn < f.depth); i-- {
		h := history[i]
		if h.ParticipantID == participantID {
			if countOwn < f.depth {
				own = append(own, h)
				countOwn++
			}
		} else if countOthers < f.depth {
			others = append(others, h)
			countOthers++
		}
	}
	return others, own
}

// maxSimilarity returns the highest similarity between the content and any
// of the given exchanges. The second return is false when no comparison
// succeeded.
func (f *AntiGamingFilter) maxSimilarity(ctx context.Context, content string, against []*Exchange) (float64, bool) {
	best := 0.0
	any := false
	for _, h := range against {
		sim, err := f.oracle.Similarity(ctx, content, h.Content)
		if err != nil {
			f.log.WithField("turn", h.Turn).WithError(err).Warn("similarity oracle failed, skipping comparison")
			continue
		}
		any = true
		if sim > best {
			best = sim
		}
	}
	return best, any
}

// blendedNovelty combines competition-local novelty with the oracle's
// corpus-wide novelty. Returns -1 when neither signal is available.
func (f *AntiGamingFilter) blendedNovelty(ctx context.Context, ex *Exchange, history []*Exchange) float64 {
	corpus := make([]string, 0, len(history))
	for _, h := range history {
		corpus = append(corpus, h.Content)
	}

	local, localErr := f.oracle.Novelty(ctx, ex.Content, corpus)
	global, globalErr := f.oracle.Novelty(ctx, ex.Content, nil)

	switch {
	case localErr == nil && globalErr == nil:
		return f.localWeight*local + (1-f.localWeight)*global
	case localErr == nil:
		return local
	case globalErr == nil:
		return global
	default:
		f.log.WithField("turn", ex.Turn).WithError(localErr).Warn("novelty oracle unavailable, skipping low-novelty rule")
		return -1
	}
}
