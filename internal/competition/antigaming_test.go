package competition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilter(oracle SimilarityOracle) *AntiGamingFilter {
	f := NewAntiGamingFilter(testConfig(), oracle)
	f.SetLogger(quietLogger())
	return f
}

func exchangeFrom(turn int, participantID, content string) *Exchange {
	return &Exchange{Turn: turn, ParticipantID: participantID, Content: content}
}

func TestApplyPenalties_CleanExchange(t *testing.T) {
	f := newTestFilter(&fixedOracle{similarity: 0.1, novelty: 0.9})
	history := []*Exchange{
		exchangeFrom(1, "p2", "opening from p2"),
		exchangeFrom(2, "p1", "opening from p1"),
	}

	score, annotations, novelty := f.ApplyPenalties(context.Background(),
		exchangeFrom(3, "p1", "a fresh argument"), history, 6.0)

	assert.Equal(t, 6.0, score)
	assert.Empty(t, annotations)
	assert.InDelta(t, 0.9, novelty, 1e-9)
}

func TestApplyPenalties_ParaphraseOfOpponent(t *testing.T) {
	sims := map[[2]string]float64{
		{"copied point", "original point"}: 0.90,
	}
	f := newTestFilter(&scriptedOracle{similarities: sims, novelty: 0.9})
	history := []*Exchange{exchangeFrom(1, "p2", "original point")}

	score, annotations, _ := f.ApplyPenalties(context.Background(),
		exchangeFrom(2, "p1", "copied point"), history, 5.0)

	require.Len(t, annotations, 1)
	assert.Equal(t, RuleParaphrase, annotations[0].Rule)
	assert.Equal(t, 0.90, annotations[0].Trigger)
	assert.Equal(t, -15.0, annotations[0].Amount)
	assert.Equal(t, -10.0, score)
}

func TestApplyPenalties_SelfRepetitionOnly(t *testing.T) {
	// 0.80 clears the self-repetition threshold (0.75) but not the
	// paraphrase threshold (0.85), and the history entry is the author's own.
	sims := map[[2]string]float64{
		{"same idea again", "same idea"}: 0.80,
	}
	f := newTestFilter(&scriptedOracle{similarities: sims, novelty: 0.9})
	history := []*Exchange{exchangeFrom(1, "p1", "same idea")}

	score, annotations, _ := f.ApplyPenalties(context.Background(),
		exchangeFrom(2, "p1", "same idea again"), history, 4.0)

	require.Len(t, annotations, 1)
	assert.Equal(t, RuleSelfRepetition, annotations[0].Rule)
	assert.Equal(t, -6.0, score)
}

func TestApplyPenalties_RulesAreAdditive(t *testing.T) {
	sims := map[[2]string]float64{
		{"recycled", "their point"}: 0.90, // paraphrase of an opponent
		{"recycled", "my point"}:    0.80, // repetition of own material
	}
	f := newTestFilter(&scriptedOracle{similarities: sims, novelty: 0.3})
	history := []*Exchange{
		exchangeFrom(1, "p2", "their point"),
		exchangeFrom(2, "p1", "my point"),
	}

	score, annotations, novelty := f.ApplyPenalties(context.Background(),
		exchangeFrom(3, "p1", "recycled"), history, 7.0)

	require.Len(t, annotations, 3)
	assert.InDelta(t, 0.3, novelty, 1e-9)
	// 7 - 15 - 10 - 8: no floor on the penalized score.
	assert.Equal(t, -26.0, score)
}

func TestApplyPenalties_ThresholdsAreExclusive(t *testing.T) {
	sims := map[[2]string]float64{
		{"borderline", "their point"}: 0.85, // exactly at the paraphrase threshold
		{"borderline", "my point"}:    0.75, // exactly at the repetition threshold
	}
	f := newTestFilter(&scriptedOracle{similarities: sims, novelty: 0.6}) // exactly at the floor
	history := []*Exchange{
		exchangeFrom(1, "p2", "their point"),
		exchangeFrom(2, "p1", "my point"),
	}

	score, annotations, _ := f.ApplyPenalties(context.Background(),
		exchangeFrom(3, "p1", "borderline"), history, 5.0)

	assert.Empty(t, annotations)
	assert.Equal(t, 5.0, score)
}

func TestApplyPenalties_NoveltyBlend(t *testing.T) {
	// Local novelty (non-nil corpus) 0.5, global 0.8: blended 0.6*0.5+0.4*0.8
	// = 0.62, just above the floor.
	oracle := &splitNoveltyOracle{local: 0.5, global: 0.8}
	f := newTestFilter(oracle)

	_, annotations, novelty := f.ApplyPenalties(context.Background(),
		exchangeFrom(2, "p1", "text"), []*Exchange{exchangeFrom(1, "p2", "prior")}, 5.0)

	assert.InDelta(t, 0.62, novelty, 1e-9)
	assert.Empty(t, annotations)
}

func TestApplyPenalties_NoveltyOracleDownSkipsRule(t *testing.T) {
	f := newTestFilter(&erroringOracle{})
	history := []*Exchange{exchangeFrom(1, "p2", "prior")}

	score, annotations, novelty := f.ApplyPenalties(context.Background(),
		exchangeFrom(2, "p1", "text"), history, 5.0)

	assert.Equal(t, 5.0, score)
	assert.Empty(t, annotations)
	assert.Equal(t, 0.0, novelty)
}

func TestRecentByAuthor_DepthAndSplit(t *testing.T) {
	f := newTestFilter(&fixedOracle{})
	history := []*Exchange{
		exchangeFrom(1, "p1", "own old"), // beyond depth 3 for own
		exchangeFrom(2, "p2", "other old"),
		exchangeFrom(3, "p1", "own a"),
		exchangeFrom(4, "p2", "other a"),
		exchangeFrom(5, "p1", "own b"),
		exchangeFrom(6, "p3", "other b"),
		exchangeFrom(7, "p1", "own c"),
		exchangeFrom(8, "p2", "other c"),
	}

	others, own := f.recentByAuthor("p1", history)

	require.Len(t, others, 3)
	require.Len(t, own, 3)
	assert.Equal(t, "other c", others[0].Content)
	assert.Equal(t, "other b", others[1].Content)
	assert.Equal(t, "other a", others[2].Content)
	assert.Equal(t, "own c", own[0].Content)
	assert.Equal(t, "own b", own[1].Content)
	assert.Equal(t, "own a", own[2].Content)
}

// splitNoveltyOracle distinguishes local (with corpus) from global (nil
// corpus) novelty calls.
type splitNoveltyOracle struct {
	local  float64
	global float64
}

func (o *splitNoveltyOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	return 0, nil
}

func (o *splitNoveltyOracle) Novelty(ctx context.Context, text string, corpus []string) (float64, error) {
	if corpus == nil {
		return o.global, nil
	}
	return o.local, nil
}
