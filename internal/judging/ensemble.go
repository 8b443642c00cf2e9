package judging

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EnsembleConfig configures the judge ensemble.
type EnsembleConfig struct {
	// Quorum is the minimum number of responding votes required before the
	// aggregate is trusted without penalty.
	Quorum int `json:"quorum"`
	// JudgeTimeout bounds each individual evaluator call.
	JudgeTimeout time.Duration `json:"judge_timeout"`
	// DimensionWeights combines per-dimension aggregates into a scalar.
	// Must sum to 1.0; validated upstream by the configuration surface.
	DimensionWeights map[string]float64 `json:"dimension_weights"`
	// ScoreMin and ScoreMax define the fixed range judges score within,
	// used to normalize vote spread.
	ScoreMin float64 `json:"score_min"`
	ScoreMax float64 `json:"score_max"`
}

// Ensemble fans a submission out to N independent evaluators and aggregates
// their votes. Judges share no state, so partial failure of any subset never
// corrupts the others.
type Ensemble struct {
	config EnsembleConfig
	judges []Evaluator
	log    *logrus.Logger
}

// NewEnsemble creates an ensemble over the given evaluators.
func NewEnsemble(config EnsembleConfig, judges []Evaluator) *Ensemble {
	return &Ensemble{
		config: config,
		judges: judges,
		log:    logrus.New(),
	}
}

// SetLogger sets the logger used for recoverable judging events.
func (e *Ensemble) SetLogger(log *logrus.Logger) {
	e.log = log
}

// Score dispatches the submission to all judges concurrently, applies quorum
// and retry logic, and returns the aggregate together with every vote. A
// judge that times out or errors becomes a missing vote, never a turn
// failure; Score only returns an error when the parent context is cancelled.
func (e *Ensemble) Score(ctx context.Context, sub Submission) (*AggregatedScore, []JudgeVote, error) {
	votes := e.dispatch(ctx, sub, e.judges, false)

	if err := ctx.Err(); err != nil {
		return nil, votes, err
	}

	provisional := false
	if e.countResponded(votes) < e.config.Quorum {
		// One retry of the missing judges before degrading.
		missing := e.missingJudges(votes)
		e.log.WithFields(logrus.Fields{
			"competition": sub.CompetitionID,
			"turn":        sub.Turn,
			"responded":   e.countResponded(votes),
			"quorum":      e.config.Quorum,
			"retrying":    len(missing),
		}).Warn("judge quorum not met, retrying missing judges")

		retried := e.dispatch(ctx, sub, missing, true)
		votes = e.mergeVotes(votes, retried)

		if err := ctx.Err(); err != nil {
			return nil, votes, err
		}

		if responded := e.countResponded(votes); responded < e.config.Quorum {
			provisional = true
			qErr := &QuorumNotMetError{Responded: responded, Quorum: e.config.Quorum}
			e.log.WithFields(logrus.Fields{
				"competition": sub.CompetitionID,
				"turn":        sub.Turn,
			}).WithError(qErr).Warn("quorum still not met, proceeding with confidence penalty")
		}
	}

	agg := aggregate(votes, len(e.judges), e.config.DimensionWeights, e.config.ScoreMin, e.config.ScoreMax)
	agg.Provisional = provisional
	if provisional {
		// Below-quorum aggregates carry a flat confidence penalty on top of
		// the participation term already baked into the confidence formula.
		agg.Confidence *= 0.5
	}

	return agg, votes, nil
}

// dispatch runs the given judges concurrently against the same submission
// snapshot and collects one vote per judge.
func (e *Ensemble) dispatch(ctx context.Context, sub Submission, judges []Evaluator, retry bool) []JudgeVote {
	voteChan := make(chan JudgeVote, len(judges))

	var wg sync.WaitGroup
	for _, judge := range judges {
		wg.Add(1)
		go func(j Evaluator) {
			defer wg.Done()

			judgeCtx, cancel := context.WithTimeout(ctx, e.config.JudgeTimeout)
			defer cancel()

			start := time.Now()
			verdict, err := j.Evaluate(judgeCtx, sub)
			latency := time.Since(start)

			vote := JudgeVote{JudgeID: j.ID(), Latency: latency, Retried: retry}
			switch {
			case err != nil && judgeCtx.Err() == context.DeadlineExceeded:
				vote.Err = ErrJudgeTimeout
			case err != nil:
				vote.Err = err
			case verdict == nil || len(verdict.Dimensions) == 0:
				vote.Err = ErrJudgeTimeout
			default:
				vote.Dimensions = verdict.Dimensions
				vote.Reasoning = verdict.Reasoning
			}

			if vote.Err != nil {
				e.log.WithFields(logrus.Fields{
					"judge":       j.ID(),
					"competition": sub.CompetitionID,
					"turn":        sub.Turn,
					"latency":     latency,
				}).WithError(vote.Err).Warn("judge vote missing")
			}

			select {
			case voteChan <- vote:
			case <-ctx.Done():
			}
		}(judge)
	}

	go func() {
		wg.Wait()
		close(voteChan)
	}()

	votes := make([]JudgeVote, 0, len(judges))
	for vote := range voteChan {
		votes = append(votes, vote)
	}
	return votes
}

func (e *Ensemble) countResponded(votes []JudgeVote) int {
	n := 0
	for i := range votes {
		if !votes[i].Missing() {
			n++
		}
	}
	return n
}

// missingJudges returns the evaluators whose votes are absent or errored.
func (e *Ensemble) missingJudges(votes []JudgeVote) []Evaluator {
	got := make(map[string]bool, len(votes))
	for i := range votes {
		if !votes[i].Missing() {
			got[votes[i].JudgeID] = true
		}
	}

	var missing []Evaluator
	for _, j := range e.judges {
		if !got[j.ID()] {
			missing = append(missing, j)
		}
	}
	return missing
}

// mergeVotes replaces missing votes with retry results where the retry
// succeeded, keyed by judge ID.
func (e *Ensemble) mergeVotes(original, retried []JudgeVote) []JudgeVote {
	byJudge := make(map[string]JudgeVote, len(retried))
	for i := range retried {
		byJudge[retried[i].JudgeID] = retried[i]
	}

	merged := make([]JudgeVote, 0, len(original))
	seen := make(map[string]bool, len(original))
	for i := range original {
		v := original[i]
		if v.Missing() {
			if rv, ok := byJudge[v.JudgeID]; ok && !rv.Missing() {
				v = rv
			}
		}
		merged = append(merged, v)
		seen[v.JudgeID] = true
	}
	// Votes for judges that never produced a first-round entry (cancelled
	// mid-dispatch) are appended from the retry round.
	for i := range retried {
		if !seen[retried[i].JudgeID] {
			merged = append(merged, retried[i])
		}
	}
	return merged
}
