package competition

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.arena/internal/audit"
	"dev.helix.arena/internal/config"
	"dev.helix.arena/internal/judging"
)

// fakeJournal records appends in memory.
type fakeJournal struct {
	mu          sync.Mutex
	exchanges   []*Exchange
	transitions [][2]Phase
	snapshots   int
}

func (j *fakeJournal) AppendExchange(ctx context.Context, competitionID string, ex *Exchange) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.exchanges = append(j.exchanges, ex)
	return nil
}

func (j *fakeJournal) AppendTransition(ctx context.Context, competitionID string, from, to Phase, turn int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transitions = append(j.transitions, [2]Phase{from, to})
	return nil
}

func (j *fakeJournal) Snapshot(ctx context.Context, state *CompetitionState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snapshots++
	return nil
}

func (j *fakeJournal) Restore(ctx context.Context, competitionID string) (*CompetitionState, error) {
	return nil, nil
}

// failingJudge always errors.
type failingJudge struct {
	id string
}

func (j *failingJudge) ID() string { return j.id }

func (j *failingJudge) Evaluate(ctx context.Context, sub judging.Submission) (*judging.Verdict, error) {
	return nil, errors.New("judge offline")
}

func newTestOrchestrator(t *testing.T, cfg *config.CompetitionConfig, deps Dependencies) *Orchestrator {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = quietLogger()
	}
	if deps.Rand == nil {
		deps.Rand = testRand()
	}
	o, err := NewOrchestrator(cfg, deps)
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator_Validation(t *testing.T) {
	cfg := testConfig()
	oracle := &fixedOracle{similarity: 0.1, novelty: 0.9}
	judges := judgesFor(cfg, nil)

	_, err := NewOrchestrator(cfg, Dependencies{Oracle: oracle, Judges: judges})
	assert.ErrorContains(t, err, "content generator")

	_, err = NewOrchestrator(cfg, Dependencies{Generator: &echoGenerator{}, Judges: judges})
	assert.ErrorContains(t, err, "similarity oracle")

	_, err = NewOrchestrator(cfg, Dependencies{Generator: &echoGenerator{}, Oracle: oracle, Judges: judges[:1]})
	assert.ErrorContains(t, err, "judges")

	bad := testConfig()
	bad.EliminationInterval = 0
	_, err = NewOrchestrator(bad, Dependencies{Generator: &echoGenerator{}, Oracle: oracle, Judges: judges})
	var cfgErr *config.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRun_RequiresParticipants(t *testing.T) {
	cfg := testConfig()
	o := newTestOrchestrator(t, cfg, Dependencies{
		Generator: &echoGenerator{},
		Oracle:    &fixedOracle{similarity: 0.1, novelty: 0.9},
		Judges:    judgesFor(cfg, nil),
	})

	_, err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveParticipants)
}

func TestRun_TrailingParticipantEliminatedAndChampionCrowned(t *testing.T) {
	cfg := testConfig()
	journal := &fakeJournal{}
	o := newTestOrchestrator(t, cfg, Dependencies{
		Generator: &echoGenerator{},
		Oracle:    &fixedOracle{similarity: 0.1, novelty: 0.9},
		Judges:    judgesFor(cfg, map[string]float64{"p1": -6, "p2": 5}),
		Journal:   journal,
	})
	addTestParticipants(o, 2)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "p2", result.Winner)
	assert.False(t, result.Cancelled)
	assert.Equal(t, PhaseComplete, o.State().Phase)
	assert.Equal(t, StatusChampion, o.Registry().Get("p2").Status)

	// Turn numbers are strictly increasing with no gaps, one exchange each.
	require.Equal(t, result.Turns, len(o.State().Exchanges))
	for i, ex := range o.State().Exchanges {
		assert.Equal(t, i+1, ex.Turn)
	}

	// The journal saw every committed exchange and at least the lifecycle
	// transitions.
	assert.Len(t, journal.exchanges, result.Turns)
	assert.Equal(t, result.Turns, journal.snapshots)
	assert.Equal(t, [2]Phase{PhaseInit, PhaseOpening}, journal.transitions[0])

	// Standings put the champion first.
	require.NotEmpty(t, result.Standings)
	assert.Equal(t, "p2", result.Standings[0].ID)

	summary := o.Tracker().GetSummary(o.State().ID)
	require.NotNil(t, summary)
	assert.Equal(t, result.Turns, summary.TotalTurns)
}

func TestRun_EliminatedParticipantGetsFinalTurn(t *testing.T) {
	cfg := testConfig()
	o := newTestOrchestrator(t, cfg, Dependencies{
		Generator: &echoGenerator{},
		Oracle:    &fixedOracle{similarity: 0.1, novelty: 0.9},
		Judges:    judgesFor(cfg, map[string]float64{"p1": -6, "p2": 5}),
	})
	addTestParticipants(o, 2)

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	elims := o.Tracker().GetEntriesByType(o.State().ID, audit.EventParticipantElim)
	require.Len(t, elims, 1)
	require.Equal(t, "p1", elims[0].ParticipantID)

	// The elimination is finalized on the turn the eliminee spoke: the last
	// exchange before the elimination event belongs to p1.
	var lastBefore *Exchange
	for _, ex := range o.State().Exchanges {
		if ex.Turn <= elims[0].Turn {
			lastBefore = ex
		}
	}
	require.NotNil(t, lastBefore)
	assert.Equal(t, "p1", lastBefore.ParticipantID)
	assert.Equal(t, StatusEliminated, o.Registry().Get("p1").Status)
}

func TestRun_ForfeitsDriveElimination(t *testing.T) {
	cfg := testConfig()
	cfg.TurnBudget = 20 * time.Millisecond
	o := newTestOrchestrator(t, cfg, Dependencies{
		Generator: &stallingGenerator{},
		Oracle:    &fixedOracle{similarity: 0.1, novelty: 0.9},
		Judges:    judgesFor(cfg, nil),
	})
	addTestParticipants(o, 2)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Winner)

	for _, ex := range o.State().Exchanges {
		assert.True(t, ex.Forfeit)
		assert.Equal(t, MovePass, ex.MoveType)
		assert.Equal(t, cfg.ForfeitScore, ex.FinalScore)
		assert.Empty(t, ex.Votes, "forfeits are never judged")
	}

	forfeits := o.Tracker().GetEntriesByType(o.State().ID, audit.EventForfeit)
	assert.Len(t, forfeits, len(o.State().Exchanges))
}

func TestRun_OrbitingForcesEliminationCheck(t *testing.T) {
	cfg := testConfig()
	// Cross-speaker similarity sits above the orbiting threshold but at the
	// paraphrase boundary, and self-similarity at the repetition boundary,
	// so the window orbits without any penalty rule firing.
	o := newTestOrchestrator(t, cfg, Dependencies{
		Generator: &echoGenerator{},
		Oracle:    &speakerOracle{selfSim: 0.75, crossSim: 0.85, novelty: 0.9},
		Judges:    judgesFor(cfg, map[string]float64{"p1": 3, "p2": 5}),
	})
	addTestParticipants(o, 2)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	// Nobody ever reaches the threshold, so the contest runs to the turn
	// limit with the stall-breaker firing along the way.
	assert.Equal(t, cfg.MaxTurns, result.Turns)
	assert.Equal(t, "p2", result.Winner, "turn limit crowns the score leader")

	penalties := o.Tracker().GetEntriesByType(o.State().ID, audit.EventPenaltyApplied)
	assert.Empty(t, penalties, "boundary similarities must not trip any penalty rule")

	forced := o.Tracker().GetEntriesByType(o.State().ID, audit.EventForcedAdvance)
	require.NotEmpty(t, forced)

	// Each forced advance resets the stagnation counter, so the next one
	// needs a full build-up of orbiting turns before it can fire again.
	turns := make([]int, 0, len(forced))
	for _, entry := range forced {
		turns = append(turns, entry.Turn)
	}
	sort.Ints(turns)
	for i := 1; i < len(turns); i++ {
		assert.GreaterOrEqual(t, turns[i]-turns[i-1], cfg.MaxStagnationTurns+1,
			"stall-breaker fired again without a fresh stagnation build-up")
	}

	// Forced checks found no candidates and returned to Discussion.
	elims := o.Tracker().GetEntriesByType(o.State().ID, audit.EventParticipantElim)
	assert.Empty(t, elims)
}

func TestRun_IntervalCheckWithoutCandidates(t *testing.T) {
	cfg := testConfig()
	cfg.EliminationInterval = 4
	o := newTestOrchestrator(t, cfg, Dependencies{
		Generator: &echoGenerator{},
		Oracle:    &fixedOracle{similarity: 0.1, novelty: 0.9},
		Judges:    judgesFor(cfg, map[string]float64{"p1": 4, "p2": 5}),
	})
	addTestParticipants(o, 2)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p2", result.Winner)

	// Interval checks fired but never produced candidates.
	sawCheck := false
	for _, e := range o.Tracker().GetEntriesByType(o.State().ID, audit.EventPhaseTransition) {
		if e.Phase == string(PhaseEliminationCheck) {
			sawCheck = true
		}
	}
	assert.True(t, sawCheck)
	assert.Empty(t, o.Tracker().GetEntriesByType(o.State().ID, audit.EventEliminationCandidate))
}

func TestRun_CancellationReturnsResumptionPoint(t *testing.T) {
	cfg := testConfig()
	o := newTestOrchestrator(t, cfg, Dependencies{
		Generator: &echoGenerator{},
		Oracle:    &fixedOracle{similarity: 0.1, novelty: 0.9},
		Judges:    judgesFor(cfg, nil),
	})
	addTestParticipants(o, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.True(t, result.Cancelled)
	assert.Equal(t, 0, result.Turns)
}

func TestRun_ProvisionalScoresStillCommit(t *testing.T) {
	// Judges below quorum leave scores provisional but the turn commits.
	cfg := testConfig()
	cfg.JudgeCount = 3
	cfg.Quorum = 2
	judges := []judging.Evaluator{
		&perParticipantJudge{id: "ok", scores: map[string]float64{"p1": -6, "p2": 5}},
		&failingJudge{id: "down-1"},
		&failingJudge{id: "down-2"},
	}
	o := newTestOrchestrator(t, cfg, Dependencies{
		Generator: &echoGenerator{},
		Oracle:    &fixedOracle{similarity: 0.1, novelty: 0.9},
		Judges:    judges,
	})
	addTestParticipants(o, 2)

	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p2", result.Winner)

	for _, ex := range o.State().Exchanges {
		require.NotNil(t, ex.Aggregate)
		assert.True(t, ex.Aggregate.Provisional)
	}
}
