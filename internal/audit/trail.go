// Package audit provides the provenance trail for competition runs. Every
// committed turn, phase transition, tie-break resolution, and elimination is
// recorded so a finished competition can be replayed and inspected.
package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventType identifies the type of audit event.
type EventType string

const (
	EventCompetitionStarted   EventType = "competition_started"
	EventCompetitionCompleted EventType = "competition_completed"
	EventTurnCommitted        EventType = "turn_committed"
	EventPhaseTransition      EventType = "phase_transition"
	EventForcedAdvance        EventType = "forced_advance"
	EventForfeit              EventType = "forfeit"
	EventJudgeTimeout         EventType = "judge_timeout"
	EventQuorumRetry          EventType = "quorum_retry"
	EventPenaltyApplied       EventType = "penalty_applied"
	EventEliminationCandidate EventType = "elimination_candidate"
	EventTieBreakResolved     EventType = "tie_break_resolved"
	EventParticipantElim      EventType = "participant_eliminated"
	EventChampionCrowned      EventType = "champion_crowned"
	EventErrorOccurred        EventType = "error_occurred"
)

// Entry represents a single event in a competition's provenance trail.
type Entry struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	EventType     EventType              `json:"event_type"`
	CompetitionID string                 `json:"competition_id"`
	ParticipantID string                 `json:"participant_id,omitempty"`
	Phase         string                 `json:"phase,omitempty"`
	Turn          int                    `json:"turn,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// Summary provides a high-level overview of a competition's trail.
type Summary struct {
	CompetitionID     string        `json:"competition_id"`
	TotalTurns        int           `json:"total_turns"`
	TotalTransitions  int           `json:"total_transitions"`
	TotalForfeits     int           `json:"total_forfeits"`
	TotalPenalties    int           `json:"total_penalties"`
	TotalEliminations int           `json:"total_eliminations"`
	TotalErrors       int           `json:"total_errors"`
	PhasesSeen        []string      `json:"phases_seen"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           time.Time     `json:"end_time"`
	Duration          time.Duration `json:"duration"`
}

// Trail is the complete recorded history for one competition.
type Trail struct {
	CompetitionID string   `json:"competition_id"`
	Entries       []*Entry `json:"entries"`
	Summary       *Summary `json:"summary"`
}

// Tracker records events for competition runs. It is safe for concurrent use.
type Tracker struct {
	entries map[string][]*Entry // keyed by competition ID
	counter int64
	mu      sync.RWMutex
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string][]*Entry)}
}

// Record adds an entry to the given competition's trail. Missing IDs and
// timestamps are filled in.
func (t *Tracker) Record(competitionID string, entry *Entry) {
	if entry == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if entry.ID == "" {
		t.counter++
		entry.ID = fmt.Sprintf("audit-%d", t.counter)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.CompetitionID = competitionID
	t.entries[competitionID] = append(t.entries[competitionID], entry)
}

// GetTrail returns the full trail for a competition, entries sorted by
// timestamp, with a computed summary. Returns nil for unknown competitions.
func (t *Tracker) GetTrail(competitionID string) *Trail {
	entries := t.GetEntries(competitionID)
	if entries == nil {
		return nil
	}

	return &Trail{
		CompetitionID: competitionID,
		Entries:       entries,
		Summary:       t.GetSummary(competitionID),
	}
}

// GetEntries returns a timestamp-sorted copy of a competition's entries, or
// nil if the competition is unknown.
func (t *Tracker) GetEntries(competitionID string) []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	raw, ok := t.entries[competitionID]
	if !ok {
		return nil
	}

	result := make([]*Entry, len(raw))
	copy(result, raw)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

// GetEntriesByType filters a competition's entries to one event type.
func (t *Tracker) GetEntriesByType(competitionID string, eventType EventType) []*Entry {
	entries := t.GetEntries(competitionID)
	if entries == nil {
		return nil
	}

	var filtered []*Entry
	for _, e := range entries {
		if e.EventType == eventType {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// GetEntriesByParticipant filters a competition's entries to one participant.
func (t *Tracker) GetEntriesByParticipant(competitionID, participantID string) []*Entry {
	entries := t.GetEntries(competitionID)
	if entries == nil {
		return nil
	}

	var filtered []*Entry
	for _, e := range entries {
		if e.ParticipantID == participantID {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// GetSummary computes a Summary for the competition, or nil if unknown.
func (t *Tracker) GetSummary(competitionID string) *Summary {
	entries := t.GetEntries(competitionID)
	if entries == nil {
		return nil
	}

	summary := &Summary{CompetitionID: competitionID}
	phasesSet := make(map[string]struct{})

	var earliest, latest time.Time
	for _, e := range entries {
		if earliest.IsZero() || e.Timestamp.Before(earliest) {
			earliest = e.Timestamp
		}
		if latest.IsZero() || e.Timestamp.After(latest) {
			latest = e.Timestamp
		}

		switch e.EventType {
		case EventTurnCommitted:
			summary.TotalTurns++
		case EventPhaseTransition, EventForcedAdvance:
			summary.TotalTransitions++
			if e.Phase != "" {
				phasesSet[e.Phase] = struct{}{}
			}
		case EventForfeit:
			summary.TotalForfeits++
		case EventPenaltyApplied:
			summary.TotalPenalties++
		case EventParticipantElim:
			summary.TotalEliminations++
		case EventErrorOccurred:
			summary.TotalErrors++
		}
	}

	summary.StartTime = earliest
	summary.EndTime = latest
	if !earliest.IsZero() && !latest.IsZero() {
		summary.Duration = latest.Sub(earliest)
	}

	summary.PhasesSeen = make([]string, 0, len(phasesSet))
	for p := range phasesSet {
		summary.PhasesSeen = append(summary.PhasesSeen, p)
	}
	sort.Strings(summary.PhasesSeen)

	return summary
}

// MarshalTrailJSON serializes a competition's trail for export.
func (t *Tracker) MarshalTrailJSON(competitionID string) ([]byte, error) {
	trail := t.GetTrail(competitionID)
	if trail == nil {
		return nil, fmt.Errorf("unknown competition: %s", competitionID)
	}
	return json.MarshalIndent(trail, "", "  ")
}

// Clear removes all entries for a competition.
func (t *Tracker) Clear(competitionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, competitionID)
}
