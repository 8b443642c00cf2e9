// Package competition implements the arena competition engine: turn
// scheduling, progression analysis, anti-gaming penalties, and the
// elimination state machine, driven by a single serialized orchestrator loop
// per competition.
package competition

import (
	"sort"
	"sync"
)

// Status is a participant's lifecycle state.
type Status string

const (
	StatusActive     Status = "active"
	StatusEliminated Status = "eliminated"
	StatusChampion   Status = "champion"
)

// Participant is one contestant in a competition. Turn-taking metadata is
// mutated by the scheduler; status and score are mutated by the elimination
// controller. Nothing else writes these fields.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`

	CumulativeScore float64   `json:"cumulative_score"`
	ScoreHistory    []float64 `json:"score_history"`

	LastSpokeTurn int  `json:"last_spoke_turn"` // -1 before the first turn
	TurnsTaken    int  `json:"turns_taken"`
	WasAddressed  bool `json:"was_addressed"`

	// AffinityBaseline is the static scheduling weight supplied externally
	// (e.g. a personality baseline). Engagement is the externally supplied
	// confidence/engagement signal, refreshed by the caller between turns.
	AffinityBaseline float64 `json:"affinity_baseline"`
	Engagement       float64 `json:"engagement"`

	// Relationships holds pairwise affinity toward other participants.
	Relationships map[string]float64 `json:"relationships,omitempty"`

	// PriorChampion marks a participant carried forward as the champion of a
	// previous round. It grants a small scheduling bonus.
	PriorChampion bool `json:"prior_champion,omitempty"`
}

// Registry owns the participant records for one competition.
type Registry struct {
	participants map[string]*Participant
	order        []string // insertion order, for deterministic iteration
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{participants: make(map[string]*Participant)}
}

// Add registers a participant. The participant becomes Active and its turn
// metadata is reset; PriorChampion survives the reset.
func (r *Registry) Add(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.participants[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	p.Status = StatusActive
	p.LastSpokeTurn = -1
	p.TurnsTaken = 0
	if p.Relationships == nil {
		p.Relationships = make(map[string]float64)
	}
	r.participants[p.ID] = p
}

// Get returns the participant with the given ID, or nil.
func (r *Registry) Get(id string) *Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participants[id]
}

// All returns every participant in insertion order.
func (r *Registry) All() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Participant, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.participants[id])
	}
	return result
}

// Active returns participants with Active status, in insertion order.
func (r *Registry) Active() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Participant, 0, len(r.order))
	for _, id := range r.order {
		if p := r.participants[id]; p.Status == StatusActive {
			result = append(result, p)
		}
	}
	return result
}

// ActiveCount returns the number of Active participants.
func (r *Registry) ActiveCount() int {
	return len(r.Active())
}

// RecordSelection updates turn-share accounting for the selected participant
// and clears its addressed flag. Called by the scheduler at selection time.
func (r *Registry) RecordSelection(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[id]; ok {
		p.TurnsTaken++
		p.WasAddressed = false
	}
}

// RecordScore appends a per-turn score and updates the cumulative total.
func (r *Registry) RecordScore(id string, score float64, turn int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[id]; ok {
		p.ScoreHistory = append(p.ScoreHistory, score)
		p.CumulativeScore += score
		p.LastSpokeTurn = turn
	}
}

// MarkAddressed flags every target participant as having been addressed.
func (r *Registry) MarkAddressed(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		if p, ok := r.participants[id]; ok && p.Status == StatusActive {
			p.WasAddressed = true
		}
	}
}

// SetStatus updates a participant's status.
func (r *Registry) SetStatus(id string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[id]; ok {
		p.Status = status
	}
}

// SetEngagement refreshes the externally supplied engagement signal.
func (r *Registry) SetEngagement(id string, engagement float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[id]; ok {
		p.Engagement = engagement
	}
}

// Standings returns all participants sorted by cumulative score descending,
// ties broken by insertion order.
func (r *Registry) Standings() []*Participant {
	all := r.All()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CumulativeScore > all[j].CumulativeScore
	})
	return all
}
