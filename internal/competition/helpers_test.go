package competition

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dev.helix.arena/internal/config"
	"dev.helix.arena/internal/judging"
)

// quietLogger suppresses log noise in tests.
func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// fixedOracle returns a constant similarity and novelty.
type fixedOracle struct {
	similarity float64
	novelty    float64
}

func (o *fixedOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	return o.similarity, nil
}

func (o *fixedOracle) Novelty(ctx context.Context, text string, corpus []string) (float64, error) {
	return o.novelty, nil
}

// scriptedOracle looks similarities up by content pair and returns a fixed
// novelty, defaulting to zero similarity for unknown pairs.
type scriptedOracle struct {
	similarities map[[2]string]float64
	novelty      float64
}

func (o *scriptedOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	if sim, ok := o.similarities[[2]string{a, b}]; ok {
		return sim, nil
	}
	if sim, ok := o.similarities[[2]string{b, a}]; ok {
		return sim, nil
	}
	return 0, nil
}

func (o *scriptedOracle) Novelty(ctx context.Context, text string, corpus []string) (float64, error) {
	return o.novelty, nil
}

// speakerOracle keys similarity off who spoke: echoGenerator prefixes every
// contribution with the participant ID, so the first token identifies the
// author. Two texts by the same author score selfSim, different authors
// crossSim.
type speakerOracle struct {
	selfSim  float64
	crossSim float64
	novelty  float64
}

func (o *speakerOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	if firstToken(a) == firstToken(b) {
		return o.selfSim, nil
	}
	return o.crossSim, nil
}

func (o *speakerOracle) Novelty(ctx context.Context, text string, corpus []string) (float64, error) {
	return o.novelty, nil
}

func firstToken(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

// echoGenerator returns distinct content instantly.
type echoGenerator struct{}

func (g *echoGenerator) Generate(ctx context.Context, req GenerationRequest) (*Contribution, error) {
	return &Contribution{
		Content:  fmt.Sprintf("%s speaks on turn %d", req.ParticipantID, req.Turn),
		MoveType: MoveBuild,
	}, nil
}

// stallingGenerator never returns before the context expires.
type stallingGenerator struct{}

func (g *stallingGenerator) Generate(ctx context.Context, req GenerationRequest) (*Contribution, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// perParticipantJudge scores each participant a fixed value on every
// dimension it is asked about.
type perParticipantJudge struct {
	id     string
	scores map[string]float64 // participant ID -> score
	mu     sync.Mutex
	seen   []string
}

func (j *perParticipantJudge) ID() string { return j.id }

func (j *perParticipantJudge) Evaluate(ctx context.Context, sub judging.Submission) (*judging.Verdict, error) {
	j.mu.Lock()
	j.seen = append(j.seen, sub.ParticipantID)
	j.mu.Unlock()

	score, ok := j.scores[sub.ParticipantID]
	if !ok {
		score = 5
	}
	return &judging.Verdict{Dimensions: map[string]float64{"logic": score}}, nil
}

// testConfig returns a tight configuration suitable for fast engine tests:
// a single scoring dimension, a wide score range so judges can express
// negative scores, and no chaos branch unless a test opts in.
func testConfig() *config.CompetitionConfig {
	cfg := config.DefaultCompetitionConfig()
	cfg.DimensionWeights = map[string]float64{"logic": 1.0}
	cfg.ScoreRange = config.ScoreRange{Min: -10, Max: 10}
	cfg.JudgeTimeout = 200 * time.Millisecond
	cfg.TurnBudget = 200 * time.Millisecond
	cfg.RandomnessFactor = 0
	cfg.EliminationInterval = 100 // keep interval checks out of the way
	cfg.MaxTurns = 40
	return cfg
}

func testRand() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

// addTestParticipants registers n participants p1..pn with equal baselines.
func addTestParticipants(o *Orchestrator, n int) {
	for i := 1; i <= n; i++ {
		o.AddParticipant(&Participant{
			ID:               fmt.Sprintf("p%d", i),
			Name:             fmt.Sprintf("P%d", i),
			AffinityBaseline: 0.5,
			Engagement:       0.5,
		})
	}
}

// judgesFor builds judgeCount identical per-participant judges.
func judgesFor(cfg *config.CompetitionConfig, scores map[string]float64) []judging.Evaluator {
	judges := make([]judging.Evaluator, 0, cfg.JudgeCount)
	for i := 0; i < cfg.JudgeCount; i++ {
		judges = append(judges, &perParticipantJudge{
			id:     fmt.Sprintf("judge-%d", i+1),
			scores: scores,
		})
	}
	return judges
}
