package competition

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"dev.helix.arena/internal/audit"
	"dev.helix.arena/internal/config"
)

// Tie-break methods, in chain order. The resolution path is always recorded
// for reproducibility; ties are never surfaced to the caller.
const (
	TieBreakLowestScore = "lowest_score"
	TieBreakFewestTurns = "fewest_turns"
	TieBreakSeededDraw  = "seeded_draw"
)

// CheckResult describes the outcome of one elimination check.
type CheckResult struct {
	Candidates []string `json:"candidates"`
	Selected   string   `json:"selected,omitempty"`
	TieBreak   string   `json:"tie_break,omitempty"`
	NextPhase  Phase    `json:"next_phase"`
}

// EliminationController owns the competition phase state machine: when an
// elimination check fires, which candidate is selected, and how the phase
// advances.
type EliminationController struct {
	threshold float64
	interval  int
	tracker   *audit.Tracker
	log       *logrus.Logger

	// onTransition, when set, observes every committed phase change. The
	// orchestrator uses it to forward transitions to the journal.
	onTransition func(from, to Phase, turn int)
}

// NewEliminationController creates a controller recording to the given
// audit tracker.
func NewEliminationController(cfg *config.CompetitionConfig, tracker *audit.Tracker) *EliminationController {
	return &EliminationController{
		threshold: cfg.EliminationThreshold,
		interval:  cfg.EliminationInterval,
		tracker:   tracker,
		log:       logrus.New(),
	}
}

// SetLogger sets the logger for transition decisions.
func (c *EliminationController) SetLogger(log *logrus.Logger) {
	c.log = log
}

// SetTransitionHook registers an observer for committed phase changes.
func (c *EliminationController) SetTransitionHook(hook func(from, to Phase, turn int)) {
	c.onTransition = hook
}

// Advance moves the competition to the given phase, validating the edge and
// recording the transition.
func (c *EliminationController) Advance(state *CompetitionState, to Phase) error {
	if !CanTransition(state.Phase, to) {
		return &InvalidTransitionError{From: state.Phase, To: to}
	}
	c.transition(state, to, audit.EventPhaseTransition)
	return nil
}

// ForceAdvance breaks a stalled Discussion by pushing the competition into
// an elimination check regardless of the natural check schedule. It is a
// corrective action, not a failure; outside Discussion it is a no-op.
func (c *EliminationController) ForceAdvance(state *CompetitionState) bool {
	if state.Phase != PhaseDiscussion {
		return false
	}
	c.transition(state, PhaseEliminationCheck, audit.EventForcedAdvance)
	return true
}

// ShouldCheck reports whether an elimination check is due: either the
// configured turn interval elapsed or some active participant has fallen to
// the threshold. Only meaningful while the phase is Discussion.
func (c *EliminationController) ShouldCheck(state *CompetitionState, registry *Registry) bool {
	if state.Phase != PhaseDiscussion || state.Turn == 0 {
		return false
	}
	if state.Turn%c.interval == 0 {
		return true
	}
	for _, p := range registry.Active() {
		if p.CumulativeScore <= c.threshold {
			return true
		}
	}
	return false
}

// Check runs the elimination check. Candidates are all active participants
// at or below the threshold (the boundary is inclusive). With no candidates
// the phase returns to Discussion; otherwise the tie-break chain selects one
// candidate and the phase moves to EliminationAnnounce, granting that
// participant a final turn.
func (c *EliminationController) Check(state *CompetitionState, registry *Registry) (*CheckResult, error) {
	if state.Phase != PhaseEliminationCheck {
		return nil, fmt.Errorf("elimination check outside EliminationCheck phase: %s", state.Phase)
	}

	var candidates []*Participant
	for _, p := range registry.Active() {
		if p.CumulativeScore <= c.threshold {
			candidates = append(candidates, p)
		}
	}

	result := &CheckResult{}
	for _, p := range candidates {
		result.Candidates = append(result.Candidates, p.ID)
		c.tracker.Record(state.ID, &audit.Entry{
			EventType:     audit.EventEliminationCandidate,
			ParticipantID: p.ID,
			Turn:          state.Turn,
			Phase:         string(state.Phase),
			Data:          map[string]interface{}{"cumulative_score": p.CumulativeScore},
		})
	}

	if len(candidates) == 0 {
		c.transition(state, PhaseDiscussion, audit.EventPhaseTransition)
		result.NextPhase = PhaseDiscussion
		return result, nil
	}

	selected, method := c.selectCandidate(state, candidates)
	state.PendingElimination = selected
	result.Selected = selected
	result.TieBreak = method

	c.transition(state, PhaseEliminationAnnounce, audit.EventPhaseTransition)
	result.NextPhase = PhaseEliminationAnnounce

	c.log.WithFields(logrus.Fields{
		"competition": state.ID,
		"turn":        state.Turn,
		"candidates":  result.Candidates,
		"selected":    selected,
		"tie_break":   method,
	}).Info("elimination candidate selected")

	return result, nil
}

// Finalize completes a pending elimination after the participant's final
// turn: status flips to Eliminated and the phase returns to Discussion, or
// to Closing when a single active participant remains.
func (c *EliminationController) Finalize(state *CompetitionState, registry *Registry) (Phase, error) {
	if state.Phase != PhaseEliminationAnnounce || state.PendingElimination == "" {
		return state.Phase, fmt.Errorf("no pending elimination to finalize in phase %s", state.Phase)
	}

	eliminated := state.PendingElimination
	registry.SetStatus(eliminated, StatusEliminated)
	state.PendingElimination = ""

	c.tracker.Record(state.ID, &audit.Entry{
		EventType:     audit.EventParticipantElim,
		ParticipantID: eliminated,
		Turn:          state.Turn,
		Phase:         string(state.Phase),
	})
	c.log.WithFields(logrus.Fields{
		"competition": state.ID,
		"participant": eliminated,
		"turn":        state.Turn,
	}).Info("participant eliminated")

	next := PhaseDiscussion
	if registry.ActiveCount() <= 1 {
		next = PhaseClosing
	}
	c.transition(state, next, audit.EventPhaseTransition)
	return next, nil
}

// CrownChampion promotes the sole remaining active participant. This is the
// only automatic status promotion in the system.
func (c *EliminationController) CrownChampion(state *CompetitionState, registry *Registry) (string, error) {
	active := registry.Active()
	if len(active) != 1 {
		return "", fmt.Errorf("cannot crown champion with %d active participants", len(active))
	}

	champion := active[0]
	registry.SetStatus(champion.ID, StatusChampion)

	c.tracker.Record(state.ID, &audit.Entry{
		EventType:     audit.EventChampionCrowned,
		ParticipantID: champion.ID,
		Turn:          state.Turn,
		Phase:         string(state.Phase),
		Data:          map[string]interface{}{"cumulative_score": champion.CumulativeScore},
	})
	c.log.WithFields(logrus.Fields{
		"competition": state.ID,
		"participant": champion.ID,
		"score":       champion.CumulativeScore,
	}).Info("champion crowned")

	return champion.ID, nil
}

// selectCandidate applies the deterministic tie-break chain: lowest
// cumulative score, then fewest turns taken, then a stable seeded draw.
func (c *EliminationController) selectCandidate(state *CompetitionState, candidates []*Participant) (string, string) {
	tied := lowestBy(candidates, func(p *Participant) float64 { return p.CumulativeScore })
	if len(tied) == 1 {
		return tied[0].ID, TieBreakLowestScore
	}

	tied = lowestBy(tied, func(p *Participant) float64 { return float64(p.TurnsTaken) })
	if len(tied) == 1 {
		return tied[0].ID, TieBreakFewestTurns
	}

	// Stable pseudo-random draw seeded from competition ID and turn number,
	// recorded for reproducibility. Never unseeded randomness.
	sort.Slice(tied, func(i, j int) bool { return tied[i].ID < tied[j].ID })
	seed := drawSeed(state.ID, state.Turn)
	drawn := tied[rand.New(rand.NewSource(seed)).Intn(len(tied))]

	names := make([]string, len(tied))
	for i, p := range tied {
		names[i] = p.ID
	}
	c.tracker.Record(state.ID, &audit.Entry{
		EventType:     audit.EventTieBreakResolved,
		ParticipantID: drawn.ID,
		Turn:          state.Turn,
		Data: map[string]interface{}{
			"method": TieBreakSeededDraw,
			"seed":   seed,
			"tied":   names,
		},
	})
	c.log.WithFields(logrus.Fields{
		"competition": state.ID,
		"turn":        state.Turn,
		"tied":        names,
		"seed":        seed,
		"selected":    drawn.ID,
	}).Info("elimination tie resolved by seeded draw")

	return drawn.ID, TieBreakSeededDraw
}

// transition records and applies a phase change.
func (c *EliminationController) transition(state *CompetitionState, to Phase, event audit.EventType) {
	from := state.Phase
	state.Phase = to
	c.tracker.Record(state.ID, &audit.Entry{
		EventType: event,
		Turn:      state.Turn,
		Phase:     string(to),
		Data:      map[string]interface{}{"from": string(from)},
	})
	c.log.WithFields(logrus.Fields{
		"competition": state.ID,
		"from":        from,
		"to":          to,
		"turn":        state.Turn,
	}).Debug("phase transition")

	if c.onTransition != nil {
		c.onTransition(from, to, state.Turn)
	}
}

// lowestBy returns every participant sharing the minimum of the keyed value.
func lowestBy(participants []*Participant, key func(*Participant) float64) []*Participant {
	var tied []*Participant
	best := 0.0
	for i, p := range participants {
		v := key(p)
		switch {
		case i == 0 || v < best:
			best = v
			tied = []*Participant{p}
		case v == best:
			tied = append(tied, p)
		}
	}
	return tied
}

// drawSeed derives a stable seed from the competition ID and turn number.
func drawSeed(competitionID string, turn int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d", competitionID, turn)
	return int64(h.Sum64())
}
