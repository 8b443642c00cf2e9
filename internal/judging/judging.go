// Package judging provides the judge ensemble for the arena competition
// engine. It fans a contribution out to independent evaluators in parallel,
// collects per-dimension scores under a timeout, and computes a robust
// aggregate with outlier rejection and a confidence value.
package judging

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrJudgeTimeout marks a judge call that did not return within its deadline.
// It is recovered by quorum logic and never aborts a turn.
var ErrJudgeTimeout = errors.New("judge timed out")

// QuorumNotMetError indicates fewer judges responded than the configured
// quorum, even after retry. The turn proceeds with a confidence penalty.
type QuorumNotMetError struct {
	Responded int
	Quorum    int
}

func (e *QuorumNotMetError) Error() string {
	return fmt.Sprintf("quorum not met: %d of %d required votes", e.Responded, e.Quorum)
}

// Submission is the immutable snapshot of an exchange handed to evaluators.
type Submission struct {
	CompetitionID string   `json:"competition_id"`
	Turn          int      `json:"turn"`
	ParticipantID string   `json:"participant_id"`
	Content       string   `json:"content"`
	MoveType      string   `json:"move_type"`
	Targets       []string `json:"targets,omitempty"`
	Context       string   `json:"context,omitempty"`
}

// Verdict is a single evaluator's per-dimension assessment.
type Verdict struct {
	Dimensions map[string]float64 `json:"dimensions"`
	Reasoning  string             `json:"reasoning,omitempty"`
}

// Evaluator is the capability interface all judges implement. Evaluators are
// pure with respect to engine state: they may be called concurrently and must
// honor the context deadline.
type Evaluator interface {
	ID() string
	Evaluate(ctx context.Context, sub Submission) (*Verdict, error)
}

// JudgeVote records one evaluator's response, or its absence.
type JudgeVote struct {
	JudgeID    string             `json:"judge_id"`
	Dimensions map[string]float64 `json:"dimensions,omitempty"`
	Reasoning  string             `json:"reasoning,omitempty"`
	Latency    time.Duration      `json:"latency"`
	Err        error              `json:"-"`
	Retried    bool               `json:"retried,omitempty"`
}

// Missing reports whether the vote carries no usable scores.
func (v *JudgeVote) Missing() bool {
	return v.Err != nil || len(v.Dimensions) == 0
}

// AggregatedScore is the ensemble's combined assessment of a submission.
type AggregatedScore struct {
	Value            float64            `json:"value"`
	Confidence       float64            `json:"confidence"` // 0-1
	Dimensions       map[string]float64 `json:"dimensions"`
	OutliersExcluded int                `json:"outliers_excluded"`
	Agreement        float64            `json:"agreement"` // 0-1 inter-judge agreement
	VotesUsed        int                `json:"votes_used"`
	VotesExpected    int                `json:"votes_expected"`
	Provisional      bool               `json:"provisional"`
}
