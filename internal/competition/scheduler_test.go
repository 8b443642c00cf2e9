package competition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(randomness float64) (*TurnScheduler, *Registry, *CompetitionState) {
	cfg := testConfig()
	cfg.RandomnessFactor = randomness

	s := NewTurnScheduler(cfg, testRand())
	s.SetLogger(quietLogger())

	return s, NewRegistry(), &CompetitionState{ID: "comp", EliminationThreshold: cfg.EliminationThreshold}
}

func TestSelectNext_NoActiveParticipants(t *testing.T) {
	s, r, state := newTestScheduler(0)

	_, err := s.SelectNext(state, r)
	assert.ErrorIs(t, err, ErrNoActiveParticipants)

	r.Add(&Participant{ID: "a"})
	r.SetStatus("a", StatusEliminated)
	_, err = s.SelectNext(state, r)
	assert.ErrorIs(t, err, ErrNoActiveParticipants)
}

func TestSelectNext_NeverPicksEliminated(t *testing.T) {
	s, r, state := newTestScheduler(0.5) // exercise both branches
	r.Add(&Participant{ID: "alive", AffinityBaseline: 0.1})
	r.Add(&Participant{ID: "dead", AffinityBaseline: 0.9})
	r.SetStatus("dead", StatusEliminated)

	for i := 0; i < 200; i++ {
		id, err := s.SelectNext(state, r)
		require.NoError(t, err)
		assert.Equal(t, "alive", id)
	}
}

func TestSelectNext_SideEffects(t *testing.T) {
	s, r, state := newTestScheduler(0)
	r.Add(&Participant{ID: "a"})
	r.MarkAddressed([]string{"a"})

	id, err := s.SelectNext(state, r)
	require.NoError(t, err)
	require.Equal(t, "a", id)

	p := r.Get("a")
	assert.False(t, p.WasAddressed, "selection clears the addressed flag")
	assert.Equal(t, 1, p.TurnsTaken)
}

func TestSelectNext_ZeroUrgencyFallsBackToUniform(t *testing.T) {
	s, r, state := newTestScheduler(0)
	// No baseline, no engagement, never addressed, scores far above the
	// threshold, both spoke on the last turns: all urgency terms are zero.
	r.Add(&Participant{ID: "a"})
	r.Add(&Participant{ID: "b"})
	r.RecordScore("a", 100, 2)
	r.RecordScore("b", 100, 2)
	state.Turn = 2

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := s.SelectNext(state, r)
		require.NoError(t, err)
		seen[id] = true
	}
	assert.True(t, seen["a"] && seen["b"], "uniform fallback should reach both")
}

func TestSelectNext_AddressedDominates(t *testing.T) {
	s, r, state := newTestScheduler(0)
	r.Add(&Participant{ID: "called"})
	r.Add(&Participant{ID: "quiet"})
	state.Turn = 2
	r.Get("quiet").LastSpokeTurn = 2
	r.Get("called").LastSpokeTurn = 2
	r.MarkAddressed([]string{"called"})

	// With identical zero baselines, the addressed term is the only signal.
	counts := map[string]int{}
	for i := 0; i < 100; i++ {
		r.MarkAddressed([]string{"called"})
		id, err := s.SelectNext(state, r)
		require.NoError(t, err)
		counts[id]++
	}
	assert.Equal(t, 100, counts["called"])
}

func TestUrgency_EliminationRisk(t *testing.T) {
	s, _, _ := newTestScheduler(0) // threshold -10

	assert.Equal(t, 1.0, s.eliminationRisk(-10), "at the threshold")
	assert.Equal(t, 1.0, s.eliminationRisk(-15), "below the threshold")
	assert.Equal(t, 0.0, s.eliminationRisk(0), "a full threshold magnitude of headroom")
	assert.Equal(t, 0.0, s.eliminationRisk(25))
	assert.InDelta(t, 0.5, s.eliminationRisk(-5), 1e-9)
}

func TestUrgency_FairnessCorrection(t *testing.T) {
	s, r, state := newTestScheduler(0)
	r.Add(&Participant{ID: "hog", AffinityBaseline: 1})
	r.Add(&Participant{ID: "other", AffinityBaseline: 1})
	state.Turn = 10
	hog := r.Get("hog")
	hog.TurnsTaken = 9
	hog.LastSpokeTurn = 10
	other := r.Get("other")
	other.TurnsTaken = 1
	other.LastSpokeTurn = 10

	// Realized share 0.9 vs fair share 0.5: the hog is damped by half.
	uncorrected := s.weights.Affinity * 1.0
	assert.InDelta(t, uncorrected*0.5, s.urgency(state, hog, 2), 1e-9)
	assert.InDelta(t, uncorrected, s.urgency(state, other, 2), 1e-9)
}

func TestUrgency_TensionCorrection(t *testing.T) {
	s, r, state := newTestScheduler(0)
	r.Add(&Participant{ID: "risky", AffinityBaseline: 1})
	state.Turn = 4
	p := r.Get("risky")
	p.LastSpokeTurn = 4
	p.CumulativeScore = -6 // below the tension line of -5

	base := s.weights.Affinity*1.0 + s.weights.Risk*s.eliminationRisk(-6)
	assert.InDelta(t, base*1.3, s.urgency(state, p, 1), 1e-9)
}

func TestUrgency_ChampionBonus(t *testing.T) {
	s, r, state := newTestScheduler(0)
	r.Add(&Participant{ID: "champ", PriorChampion: true})
	state.Turn = 1
	p := r.Get("champ")
	p.LastSpokeTurn = 1

	assert.InDelta(t, s.weights.Champion, s.urgency(state, p, 1), 1e-9)
}

func TestSelectNext_ChaosBranchStillOnlyActive(t *testing.T) {
	s, r, state := newTestScheduler(1.0) // always chaos
	r.Add(&Participant{ID: "a"})
	r.Add(&Participant{ID: "b"})
	r.Add(&Participant{ID: "gone"})
	r.SetStatus("gone", StatusEliminated)

	for i := 0; i < 100; i++ {
		id, err := s.SelectNext(state, r)
		require.NoError(t, err)
		assert.NotEqual(t, "gone", id)
	}
}
