package competition

import (
	"context"
	"time"

	"dev.helix.arena/internal/judging"
)

// Phase is the competition lifecycle phase. Transitions follow the fixed
// order below; the only loop is Discussion -> EliminationCheck ->
// (EliminationAnnounce) -> Discussion, and the only skip is the forced
// advance taken when the competition stalls.
type Phase string

const (
	PhaseInit                Phase = "init"
	PhaseOpening             Phase = "opening"
	PhaseDiscussion          Phase = "discussion"
	PhaseEliminationCheck    Phase = "elimination_check"
	PhaseEliminationAnnounce Phase = "elimination_announce"
	PhaseClosing             Phase = "closing"
	PhaseComplete            Phase = "complete"
)

// validTransitions enumerates the permitted phase edges.
var validTransitions = map[Phase][]Phase{
	PhaseInit:                {PhaseOpening},
	PhaseOpening:             {PhaseDiscussion},
	PhaseDiscussion:          {PhaseEliminationCheck, PhaseClosing},
	PhaseEliminationCheck:    {PhaseEliminationAnnounce, PhaseDiscussion, PhaseClosing},
	PhaseEliminationAnnounce: {PhaseDiscussion, PhaseClosing},
	PhaseClosing:             {PhaseComplete},
	PhaseComplete:            {},
}

// CanTransition reports whether from -> to is a legal phase edge.
func CanTransition(from, to Phase) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MoveType tags the rhetorical shape of a contribution. Values are supplied
// by the content generator and treated as opaque tags by the engine.
type MoveType string

const (
	MoveAttack  MoveType = "attack"
	MoveDefend  MoveType = "defend"
	MoveBuild   MoveType = "build"
	MoveDeflect MoveType = "deflect"
	MovePass    MoveType = "pass" // automatic forfeit contribution
)

// PenaltyAnnotation records one anti-gaming penalty applied to an exchange.
type PenaltyAnnotation struct {
	Rule    string  `json:"rule"`
	Amount  float64 `json:"amount"`  // negative delta
	Trigger float64 `json:"trigger"` // the similarity/novelty value that fired the rule
}

// Exchange is one committed turn. Turn numbers are unique and strictly
// increasing with no gaps; exactly one Exchange exists per turn.
type Exchange struct {
	Turn          int      `json:"turn"`
	ParticipantID string   `json:"participant_id"`
	Content       string   `json:"content"`
	MoveType      MoveType `json:"move_type"`
	Targets       []string `json:"targets,omitempty"`

	Votes      []judging.JudgeVote      `json:"votes,omitempty"`
	Aggregate  *judging.AggregatedScore `json:"aggregate,omitempty"`
	Novelty    float64                  `json:"novelty"`
	Penalties  []PenaltyAnnotation      `json:"penalties,omitempty"`
	FinalScore float64                  `json:"final_score"` // aggregate value after penalties
	Forfeit    bool                     `json:"forfeit,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// CompetitionState is the single owned state value for one competition. It is
// mutated only inside the orchestrator's serialized loop.
type CompetitionState struct {
	ID    string `json:"id"`
	Phase Phase  `json:"phase"`
	Turn  int    `json:"turn"` // last committed turn number; 0 before the first

	EliminationThreshold float64            `json:"elimination_threshold"`
	DimensionWeights     map[string]float64 `json:"dimension_weights"`

	Exchanges []*Exchange `json:"exchanges"`

	StagnationTurns int  `json:"stagnation_turns"`
	Orbiting        bool `json:"orbiting"`

	// PendingElimination is the participant granted a final turn while the
	// phase sits at EliminationAnnounce.
	PendingElimination string `json:"pending_elimination,omitempty"`

	StartedAt time.Time `json:"started_at"`
}

// LastExchanges returns up to n most recent exchanges, oldest first.
func (s *CompetitionState) LastExchanges(n int) []*Exchange {
	if n <= 0 || len(s.Exchanges) == 0 {
		return nil
	}
	if n > len(s.Exchanges) {
		n = len(s.Exchanges)
	}
	return s.Exchanges[len(s.Exchanges)-n:]
}

// ContentGenerator produces a participant's contribution for a turn. It must
// return within the configured turn budget or the turn is recorded as a
// forfeit.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*Contribution, error)
}

// GenerationRequest is the context handed to the content generator.
type GenerationRequest struct {
	CompetitionID string      `json:"competition_id"`
	Turn          int         `json:"turn"`
	ParticipantID string      `json:"participant_id"`
	Phase         Phase       `json:"phase"`
	Recent        []*Exchange `json:"recent,omitempty"`
}

// Contribution is the generator's output for one turn.
type Contribution struct {
	Content  string   `json:"content"`
	MoveType MoveType `json:"move_type"`
	Targets  []string `json:"targets,omitempty"`
}

// SimilarityOracle supplies text similarity and novelty signals. It is
// stateless and callable concurrently; the engine only applies thresholds to
// its outputs and never computes text similarity itself.
type SimilarityOracle interface {
	// Similarity returns a value in [0,1] for the pair of texts.
	Similarity(ctx context.Context, a, b string) (float64, error)
	// Novelty returns a value in [0,1] for the text against the given
	// corpus. A nil corpus means the oracle's own corpus-wide baseline.
	Novelty(ctx context.Context, text string, corpus []string) (float64, error)
}

// Journal is the persistence collaborator boundary: an append-only record of
// committed exchanges and phase transitions, with snapshot/restore of the
// full state for crash recovery.
type Journal interface {
	AppendExchange(ctx context.Context, competitionID string, ex *Exchange) error
	AppendTransition(ctx context.Context, competitionID string, from, to Phase, turn int) error
	Snapshot(ctx context.Context, state *CompetitionState) error
	Restore(ctx context.Context, competitionID string) (*CompetitionState, error)
}
