// Command arena runs a local competition against deterministic stub
// collaborators. It exists for demos and smoke runs; real deployments embed
// the engine and supply live generator, oracle, and judge implementations.
package main

import (
	"context"
	"flag"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"dev.helix.arena/internal/audit"
	"dev.helix.arena/internal/competition"
	"dev.helix.arena/internal/config"
	"dev.helix.arena/internal/journal"
	"dev.helix.arena/internal/judging"
	"dev.helix.arena/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration (defaults apply when empty)")
	participants := flag.Int("participants", 4, "number of stub participants")
	seed := flag.Int64("seed", 1, "seed for the stub collaborators and scheduler")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := config.DefaultCompetitionConfig()
	if *configPath != "" {
		loaded, err := config.NewLoader(*configPath).Load()
		if err != nil {
			log.WithError(err).Fatal("failed to load configuration")
		}
		cfg = loaded
	}

	judges := make([]judging.Evaluator, 0, cfg.JudgeCount)
	for i := 0; i < cfg.JudgeCount; i++ {
		judges = append(judges, &stubJudge{
			id:   fmt.Sprintf("judge-%d", i+1),
			bias: float64(i) * 0.3,
			cfg:  cfg,
		})
	}

	mem := journal.NewMemory()
	tracker := audit.NewTracker()
	collector := metrics.NewCollector()
	if err := collector.Register(prometheus.NewRegistry()); err != nil {
		log.WithError(err).Fatal("failed to register metrics")
	}

	orch, err := competition.NewOrchestrator(cfg, competition.Dependencies{
		Generator: &stubGenerator{rng: rand.New(rand.NewSource(*seed))},
		Oracle:    &lexicalOracle{},
		Judges:    judges,
		Journal:   mem,
		Tracker:   tracker,
		Metrics:   collector,
		Logger:    log,
		Rand:      rand.New(rand.NewSource(*seed)),
	})
	if err != nil {
		log.WithError(err).Fatal("failed to build orchestrator")
	}

	for i := 0; i < *participants; i++ {
		orch.AddParticipant(&competition.Participant{
			ID:               fmt.Sprintf("contestant-%d", i+1),
			Name:             fmt.Sprintf("Contestant %d", i+1),
			AffinityBaseline: 0.3 + 0.1*float64(i%4),
			Engagement:       0.5,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := orch.Run(ctx)
	if err != nil {
		log.WithError(err).Error("competition ended with error")
	}
	if result == nil {
		os.Exit(1)
	}

	fmt.Printf("\ncompetition %s finished in %d turns (%s)\n", result.CompetitionID, result.Turns, result.Duration.Round(time.Millisecond))
	if result.Winner != "" {
		fmt.Printf("champion: %s\n", result.Winner)
	}
	fmt.Println("standings:")
	for i, p := range result.Standings {
		fmt.Printf("  %d. %-14s %-10s %8.2f\n", i+1, p.Name, p.Status, p.CumulativeScore)
	}

	if summary := tracker.GetSummary(result.CompetitionID); summary != nil {
		fmt.Printf("audit: %d turns, %d transitions, %d forfeits, %d penalties, %d eliminations\n",
			summary.TotalTurns, summary.TotalTransitions, summary.TotalForfeits,
			summary.TotalPenalties, summary.TotalEliminations)
	}
}

// stubGenerator produces deterministic filler contributions that drift over
// time so the similarity stubs see both novelty and repetition.
type stubGenerator struct {
	rng *rand.Rand
}

var stubThemes = []string{
	"the architecture should favor resilience over raw throughput",
	"opponents underestimate the cost of coordination at scale",
	"history shows that early aggression backfires in long contests",
	"a measured defense now creates openings later",
	"the previous argument ignores the resource constraints entirely",
	"adaptation beats optimization when the rules keep shifting",
}

func (g *stubGenerator) Generate(ctx context.Context, req competition.GenerationRequest) (*competition.Contribution, error) {
	theme := stubThemes[g.rng.Intn(len(stubThemes))]
	moves := []competition.MoveType{competition.MoveAttack, competition.MoveDefend, competition.MoveBuild, competition.MoveDeflect}

	var targets []string
	for _, ex := range req.Recent {
		if ex.ParticipantID != req.ParticipantID {
			targets = []string{ex.ParticipantID}
		}
	}

	return &competition.Contribution{
		Content:  fmt.Sprintf("%s argues on turn %d that %s (%d)", req.ParticipantID, req.Turn, theme, g.rng.Intn(1000)),
		MoveType: moves[g.rng.Intn(len(moves))],
		Targets:  targets,
	}, nil
}

// lexicalOracle is a toy similarity oracle backed by token overlap. A real
// deployment supplies an embedding-based collaborator here.
type lexicalOracle struct{}

func (o *lexicalOracle) Similarity(ctx context.Context, a, b string) (float64, error) {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, nil
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union), nil
}

func (o *lexicalOracle) Novelty(ctx context.Context, text string, corpus []string) (float64, error) {
	if len(corpus) == 0 {
		return 0.8, nil
	}
	best := 0.0
	for _, c := range corpus {
		sim, _ := o.Similarity(ctx, text, c)
		if sim > best {
			best = sim
		}
	}
	return 1 - best, nil
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = true
	}
	return out
}

// stubJudge scores contributions from a content hash, so identical inputs
// always score identically while judges still disagree slightly.
type stubJudge struct {
	id   string
	bias float64
	cfg  *config.CompetitionConfig
}

func (j *stubJudge) ID() string { return j.id }

func (j *stubJudge) Evaluate(ctx context.Context, sub judging.Submission) (*judging.Verdict, error) {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%s", j.id, sub.Content)
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	names := make([]string, 0, len(j.cfg.DimensionWeights))
	for dim := range j.cfg.DimensionWeights {
		names = append(names, dim)
	}
	sort.Strings(names)

	span := j.cfg.ScoreRange.Max - j.cfg.ScoreRange.Min
	dims := make(map[string]float64, len(names))
	for _, dim := range names {
		base := j.cfg.ScoreRange.Min + span*(0.4+0.4*r.Float64())
		score := base + j.bias
		if score > j.cfg.ScoreRange.Max {
			score = j.cfg.ScoreRange.Max
		}
		dims[dim] = score
	}

	return &judging.Verdict{
		Dimensions: dims,
		Reasoning:  fmt.Sprintf("%s assessed turn %d", j.id, sub.Turn),
	}, nil
}
