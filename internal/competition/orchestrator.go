package competition

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dev.helix.arena/internal/audit"
	"dev.helix.arena/internal/config"
	"dev.helix.arena/internal/judging"
	"dev.helix.arena/internal/metrics"
)

// Dependencies are the external collaborators an orchestrator composes.
// Generator, Oracle, and Judges are required; the rest default to no-op or
// fresh instances.
type Dependencies struct {
	Generator ContentGenerator
	Oracle    SimilarityOracle
	Judges    []judging.Evaluator
	Journal   Journal
	Tracker   *audit.Tracker
	Metrics   *metrics.Collector
	Logger    *logrus.Logger
	Rand      *rand.Rand
}

// Result summarizes a finished (or cancelled) competition.
type Result struct {
	CompetitionID string         `json:"competition_id"`
	Winner        string         `json:"winner,omitempty"`
	Turns         int            `json:"turns"`
	Duration      time.Duration  `json:"duration"`
	Standings     []*Participant `json:"standings"`
	Cancelled     bool           `json:"cancelled,omitempty"`
}

// Orchestrator drives one competition through its full lifecycle. All state
// mutation happens inside Run's serialized loop; the only internal
// concurrency is the judge fan-out, which operates on immutable snapshots.
// Orchestrators for different competitions share nothing and may run in
// parallel.
type Orchestrator struct {
	cfg      *config.CompetitionConfig
	state    *CompetitionState
	registry *Registry

	scheduler  *TurnScheduler
	analyzer   *ProgressionAnalyzer
	filter     *AntiGamingFilter
	controller *EliminationController
	ensemble   *judging.Ensemble

	generator ContentGenerator
	journal   Journal
	tracker   *audit.Tracker
	collector *metrics.Collector
	log       *logrus.Logger
}

// NewOrchestrator validates the configuration and wires the engine
// components. Configuration errors are fatal here and never at runtime.
func NewOrchestrator(cfg *config.CompetitionConfig, deps Dependencies) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("content generator is required")
	}
	if deps.Oracle == nil {
		return nil, fmt.Errorf("similarity oracle is required")
	}
	if len(deps.Judges) != cfg.JudgeCount {
		return nil, fmt.Errorf("expected %d judges, got %d", cfg.JudgeCount, len(deps.Judges))
	}

	log := deps.Logger
	if log == nil {
		log = logrus.New()
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = audit.NewTracker()
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	state := &CompetitionState{
		ID:                   uuid.New().String(),
		Phase:                PhaseInit,
		EliminationThreshold: cfg.EliminationThreshold,
		DimensionWeights:     cfg.DimensionWeights,
	}

	ensemble := judging.NewEnsemble(judging.EnsembleConfig{
		Quorum:           cfg.EffectiveQuorum(),
		JudgeTimeout:     cfg.JudgeTimeout,
		DimensionWeights: cfg.DimensionWeights,
		ScoreMin:         cfg.ScoreRange.Min,
		ScoreMax:         cfg.ScoreRange.Max,
	}, deps.Judges)
	ensemble.SetLogger(log)

	scheduler := NewTurnScheduler(cfg, rng)
	scheduler.SetLogger(log)
	analyzer := NewProgressionAnalyzer(cfg, deps.Oracle)
	analyzer.SetLogger(log)
	filter := NewAntiGamingFilter(cfg, deps.Oracle)
	filter.SetLogger(log)
	controller := NewEliminationController(cfg, tracker)
	controller.SetLogger(log)
	if deps.Journal != nil {
		journal := deps.Journal
		id := state.ID
		controller.SetTransitionHook(func(from, to Phase, turn int) {
			if err := journal.AppendTransition(context.Background(), id, from, to, turn); err != nil {
				log.WithFields(logrus.Fields{"from": from, "to": to}).WithError(err).Warn("journal transition failed")
			}
		})
	}

	return &Orchestrator{
		cfg:        cfg,
		state:      state,
		registry:   NewRegistry(),
		scheduler:  scheduler,
		analyzer:   analyzer,
		filter:     filter,
		controller: controller,
		ensemble:   ensemble,
		generator:  deps.Generator,
		journal:    deps.Journal,
		tracker:    tracker,
		collector:  deps.Metrics,
		log:        log,
	}, nil
}

// State exposes the competition state for inspection. Callers must not
// mutate it while Run is in flight.
func (o *Orchestrator) State() *CompetitionState { return o.state }

// Registry exposes the participant registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Tracker exposes the audit trail tracker.
func (o *Orchestrator) Tracker() *audit.Tracker { return o.tracker }

// AddParticipant registers a contestant. Must be called before Run.
func (o *Orchestrator) AddParticipant(p *Participant) {
	o.registry.Add(p)
}

// Run drives the competition to completion. It returns a normal Result when
// a champion is crowned or the turn limit forces an end, a Result with
// Cancelled set when the context is cancelled (the last committed Exchange
// is the resumption point), and a user-visible error only for the fatal
// end-states.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if o.registry.ActiveCount() == 0 {
		return nil, ErrNoActiveParticipants
	}

	o.state.StartedAt = time.Now()
	o.tracker.Record(o.state.ID, &audit.Entry{
		EventType: audit.EventCompetitionStarted,
		Phase:     string(PhaseInit),
		Data:      map[string]interface{}{"participants": o.registry.ActiveCount()},
	})
	if o.collector != nil {
		o.collector.CompetitionsActive.Inc()
		defer o.collector.CompetitionsActive.Dec()
	}

	if err := o.controller.Advance(o.state, PhaseOpening); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return o.result(true), ctx.Err()
		default:
		}

		switch o.state.Phase {
		case PhaseEliminationCheck:
			if _, err := o.controller.Check(o.state, o.registry); err != nil {
				return o.result(false), err
			}
			continue

		case PhaseClosing:
			winner, err := o.crown()
			if err != nil {
				return o.result(false), err
			}
			if err := o.controller.Advance(o.state, PhaseComplete); err != nil {
				return o.result(false), err
			}
			o.tracker.Record(o.state.ID, &audit.Entry{
				EventType:     audit.EventCompetitionCompleted,
				ParticipantID: winner,
				Turn:          o.state.Turn,
				Phase:         string(PhaseComplete),
			})
			res := o.result(false)
			res.Winner = winner
			return res, nil

		case PhaseComplete:
			return o.result(false), nil
		}

		// Opening, Discussion, or EliminationAnnounce: run one turn.
		if o.state.Turn >= o.cfg.MaxTurns {
			o.closeOnTurnLimit()
			continue
		}

		finalTurn := false
		var actorID string
		if o.state.Phase == PhaseEliminationAnnounce {
			// The pending eliminee gets exactly one final turn; its status
			// stays Active only long enough to produce it.
			actorID = o.state.PendingElimination
			o.registry.RecordSelection(actorID)
			finalTurn = true
		} else {
			var err error
			actorID, err = o.scheduler.SelectNext(o.state, o.registry)
			if err != nil {
				if errors.Is(err, ErrNoActiveParticipants) {
					o.tracker.Record(o.state.ID, &audit.Entry{
						EventType: audit.EventErrorOccurred,
						Turn:      o.state.Turn,
						Data:      map[string]interface{}{"error": err.Error()},
					})
				}
				return o.result(false), err
			}
		}

		if err := o.runTurn(ctx, actorID); err != nil {
			return o.result(true), err
		}

		report := o.analyzer.Analyze(ctx, o.state)

		if finalTurn {
			if _, err := o.controller.Finalize(o.state, o.registry); err != nil {
				return o.result(false), err
			}
			if o.collector != nil {
				o.collector.EliminationsTotal.WithLabelValues(o.state.ID).Inc()
			}
			continue
		}

		if o.state.Phase == PhaseOpening {
			if o.openingComplete() {
				if err := o.controller.Advance(o.state, PhaseDiscussion); err != nil {
					return o.result(false), err
				}
			}
			continue
		}

		if report.ForceAdvance {
			if o.controller.ForceAdvance(o.state) {
				// Reset so the stall-breaker fires once per stall, not on
				// every subsequent orbiting turn.
				o.state.StagnationTurns = 0
			}
			continue
		}

		if o.controller.ShouldCheck(o.state, o.registry) {
			if err := o.controller.Advance(o.state, PhaseEliminationCheck); err != nil {
				return o.result(false), err
			}
		}
	}
}

// runTurn generates, scores, penalizes, and commits a single exchange.
// Collaborator failures degrade (forfeit, missing votes); only context
// cancellation propagates as an error.
func (o *Orchestrator) runTurn(ctx context.Context, actorID string) error {
	turn := o.state.Turn + 1

	contribution, forfeited := o.generate(ctx, actorID, turn)
	if err := ctx.Err(); err != nil {
		return err
	}

	ex := &Exchange{
		Turn:          turn,
		ParticipantID: actorID,
		Timestamp:     time.Now(),
	}

	if forfeited {
		ex.MoveType = MovePass
		ex.Forfeit = true
		ex.FinalScore = o.cfg.ForfeitScore
		o.tracker.Record(o.state.ID, &audit.Entry{
			EventType:     audit.EventForfeit,
			ParticipantID: actorID,
			Turn:          turn,
			Phase:         string(o.state.Phase),
		})
		if o.collector != nil {
			o.collector.ForfeitsTotal.WithLabelValues(o.state.ID).Inc()
		}
	} else {
		ex.Content = contribution.Content
		ex.MoveType = contribution.MoveType
		ex.Targets = contribution.Targets

		agg, votes, err := o.ensemble.Score(ctx, o.submission(ex))
		if err != nil {
			return err
		}
		ex.Votes = votes
		ex.Aggregate = agg
		o.recordJudging(ex, votes, agg)

		penalized, annotations, novelty := o.filter.ApplyPenalties(ctx, ex, o.state.Exchanges, agg.Value)
		ex.Penalties = annotations
		ex.Novelty = novelty
		ex.FinalScore = penalized
		for _, a := range annotations {
			o.tracker.Record(o.state.ID, &audit.Entry{
				EventType:     audit.EventPenaltyApplied,
				ParticipantID: actorID,
				Turn:          turn,
				Data:          map[string]interface{}{"rule": a.Rule, "amount": a.Amount, "trigger": a.Trigger},
			})
			if o.collector != nil {
				o.collector.PenaltiesTotal.WithLabelValues(o.state.ID, a.Rule).Inc()
			}
		}
	}

	// Commit. Turn numbers advance by exactly one per committed exchange.
	o.state.Turn = turn
	o.state.Exchanges = append(o.state.Exchanges, ex)
	o.registry.RecordScore(actorID, ex.FinalScore, turn)
	o.registry.MarkAddressed(ex.Targets)

	o.tracker.Record(o.state.ID, &audit.Entry{
		EventType:     audit.EventTurnCommitted,
		ParticipantID: actorID,
		Turn:          turn,
		Phase:         string(o.state.Phase),
		Data: map[string]interface{}{
			"move_type":   string(ex.MoveType),
			"final_score": ex.FinalScore,
			"forfeit":     ex.Forfeit,
		},
	})
	if o.collector != nil {
		o.collector.TurnsTotal.WithLabelValues(o.state.ID).Inc()
		o.collector.TurnScore.Observe(ex.FinalScore)
	}

	if o.journal != nil {
		if err := o.journal.AppendExchange(ctx, o.state.ID, ex); err != nil {
			o.log.WithField("turn", turn).WithError(err).Warn("journal append failed")
		}
		if err := o.journal.Snapshot(ctx, o.state); err != nil {
			o.log.WithField("turn", turn).WithError(err).Warn("journal snapshot failed")
		}
	}

	o.log.WithFields(logrus.Fields{
		"competition": o.state.ID,
		"turn":        turn,
		"participant": actorID,
		"score":       ex.FinalScore,
		"forfeit":     ex.Forfeit,
	}).Info("turn committed")

	return nil
}

// generate calls the content generator under the turn budget. A timeout or
// error is a no-show, recorded as a forfeit rather than stalling the
// competition.
func (o *Orchestrator) generate(ctx context.Context, actorID string, turn int) (*Contribution, bool) {
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnBudget)
	defer cancel()

	contribution, err := o.generator.Generate(genCtx, GenerationRequest{
		CompetitionID: o.state.ID,
		Turn:          turn,
		ParticipantID: actorID,
		Phase:         o.state.Phase,
		Recent:        o.state.LastExchanges(o.cfg.WindowSize),
	})
	if err != nil || contribution == nil || contribution.Content == "" {
		if genCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: %v", ErrContentTimeout, err)
		}
		o.log.WithFields(logrus.Fields{
			"competition": o.state.ID,
			"turn":        turn,
			"participant": actorID,
		}).WithError(err).Warn("participant no-show, recording forfeit")
		return nil, true
	}
	if contribution.MoveType == "" {
		contribution.MoveType = MoveBuild
	}
	return contribution, false
}

// submission builds the immutable snapshot handed to judges.
func (o *Orchestrator) submission(ex *Exchange) judging.Submission {
	recent := o.state.LastExchanges(o.cfg.WindowSize)
	parts := make([]string, 0, len(recent))
	for _, r := range recent {
		parts = append(parts, r.Content)
	}
	return judging.Submission{
		CompetitionID: o.state.ID,
		Turn:          ex.Turn,
		ParticipantID: ex.ParticipantID,
		Content:       ex.Content,
		MoveType:      string(ex.MoveType),
		Targets:       ex.Targets,
		Context:       strings.Join(parts, "\n---\n"),
	}
}

// recordJudging mirrors vote outcomes into the audit trail and metrics.
func (o *Orchestrator) recordJudging(ex *Exchange, votes []judging.JudgeVote, agg *judging.AggregatedScore) {
	for i := range votes {
		v := &votes[i]
		outcome := "ok"
		if v.Missing() {
			outcome = "error"
			if errors.Is(v.Err, judging.ErrJudgeTimeout) {
				outcome = "timeout"
				o.tracker.Record(o.state.ID, &audit.Entry{
					EventType:     audit.EventJudgeTimeout,
					ParticipantID: ex.ParticipantID,
					Turn:          ex.Turn,
					Data:          map[string]interface{}{"judge": v.JudgeID},
				})
			}
		} else if v.Retried {
			o.tracker.Record(o.state.ID, &audit.Entry{
				EventType: audit.EventQuorumRetry,
				Turn:      ex.Turn,
				Data:      map[string]interface{}{"judge": v.JudgeID},
			})
		}
		if o.collector != nil {
			o.collector.JudgeVotesTotal.WithLabelValues(v.JudgeID, outcome).Inc()
			o.collector.JudgeLatency.WithLabelValues(v.JudgeID).Observe(v.Latency.Seconds())
		}
	}
	if o.collector != nil {
		o.collector.AggregateConfidence.Observe(agg.Confidence)
	}
}

// openingComplete reports whether every active participant has spoken at
// least once, ending the Opening phase.
func (o *Orchestrator) openingComplete() bool {
	for _, p := range o.registry.Active() {
		if p.TurnsTaken == 0 {
			return false
		}
	}
	return true
}

// closeOnTurnLimit ends a competition that hit MaxTurns without a natural
// winner. The current leader takes the title.
func (o *Orchestrator) closeOnTurnLimit() {
	o.log.WithFields(logrus.Fields{
		"competition": o.state.ID,
		"turn":        o.state.Turn,
	}).Info("turn limit reached, closing competition")

	if o.state.Phase == PhaseOpening {
		_ = o.controller.Advance(o.state, PhaseDiscussion)
	}
	if o.state.Phase == PhaseEliminationAnnounce {
		// Abandon the pending final turn; the limit binds harder.
		o.state.PendingElimination = ""
	}
	_ = o.controller.Advance(o.state, PhaseClosing)
}

// crown resolves the winner at Closing: the sole active participant, or the
// score leader when the turn limit ended the contest early.
func (o *Orchestrator) crown() (string, error) {
	active := o.registry.Active()
	switch {
	case len(active) == 0:
		return "", ErrNoActiveParticipants
	case len(active) == 1:
		return o.controller.CrownChampion(o.state, o.registry)
	default:
		leader := active[0]
		for _, p := range active[1:] {
			if p.CumulativeScore > leader.CumulativeScore {
				leader = p
			}
		}
		o.registry.SetStatus(leader.ID, StatusChampion)
		o.tracker.Record(o.state.ID, &audit.Entry{
			EventType:     audit.EventChampionCrowned,
			ParticipantID: leader.ID,
			Turn:          o.state.Turn,
			Phase:         string(o.state.Phase),
			Data:          map[string]interface{}{"reason": "turn_limit", "cumulative_score": leader.CumulativeScore},
		})
		return leader.ID, nil
	}
}

// result snapshots the run outcome.
func (o *Orchestrator) result(cancelled bool) *Result {
	return &Result{
		CompetitionID: o.state.ID,
		Turns:         o.state.Turn,
		Duration:      time.Since(o.state.StartedAt),
		Standings:     o.registry.Standings(),
		Cancelled:     cancelled,
	}
}
