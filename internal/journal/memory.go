// Package journal provides a reference implementation of the engine's
// persistence boundary: an in-memory append-only journal with full-state
// snapshots, used by tests and the local runner. Real backends live outside
// the engine and implement competition.Journal.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dev.helix.arena/internal/competition"
)

// TransitionRecord is one journaled phase transition.
type TransitionRecord struct {
	From      competition.Phase `json:"from"`
	To        competition.Phase `json:"to"`
	Turn      int               `json:"turn"`
	Timestamp time.Time         `json:"timestamp"`
}

// Memory is an in-memory competition.Journal. Snapshots are deep copies via
// JSON round-trips, so restored state shares nothing with the live state.
type Memory struct {
	exchanges   map[string][]*competition.Exchange
	transitions map[string][]TransitionRecord
	snapshots   map[string][]byte
	mu          sync.RWMutex
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{
		exchanges:   make(map[string][]*competition.Exchange),
		transitions: make(map[string][]TransitionRecord),
		snapshots:   make(map[string][]byte),
	}
}

// AppendExchange appends a committed exchange. Appends are strictly ordered
// by turn; a gap or duplicate indicates a caller bug and is rejected.
func (m *Memory) AppendExchange(ctx context.Context, competitionID string, ex *competition.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.exchanges[competitionID]
	if n := len(existing); n > 0 && ex.Turn != existing[n-1].Turn+1 {
		return fmt.Errorf("out-of-order exchange: turn %d after %d", ex.Turn, existing[n-1].Turn)
	} else if n == 0 && ex.Turn != 1 {
		return fmt.Errorf("first exchange must be turn 1, got %d", ex.Turn)
	}

	m.exchanges[competitionID] = append(existing, ex)
	return nil
}

// AppendTransition appends a phase transition record.
func (m *Memory) AppendTransition(ctx context.Context, competitionID string, from, to competition.Phase, turn int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transitions[competitionID] = append(m.transitions[competitionID], TransitionRecord{
		From:      from,
		To:        to,
		Turn:      turn,
		Timestamp: time.Now(),
	})
	return nil
}

// Snapshot stores a deep copy of the full competition state.
func (m *Memory) Snapshot(ctx context.Context, state *competition.CompetitionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("snapshot marshal: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[state.ID] = data
	return nil
}

// Restore returns the most recent snapshot for the competition.
func (m *Memory) Restore(ctx context.Context, competitionID string) (*competition.CompetitionState, error) {
	m.mu.RLock()
	data, ok := m.snapshots[competitionID]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no snapshot for competition %s", competitionID)
	}

	var state competition.CompetitionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("snapshot unmarshal: %w", err)
	}
	return &state, nil
}

// Exchanges returns the journaled exchanges for a competition.
func (m *Memory) Exchanges(competitionID string) []*competition.Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*competition.Exchange(nil), m.exchanges[competitionID]...)
}

// Transitions returns the journaled phase transitions for a competition.
func (m *Memory) Transitions(competitionID string) []TransitionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TransitionRecord(nil), m.transitions[competitionID]...)
}
