package agents

import (
	"errors"
	"sort"
	"sync"

	"ArenaPilot/internal/model"
)

// ErrNotFound is returned when no agent has the requested id.
var ErrNotFound = errors.New("agent not found")

// Store is the narrow accessor the scheduler needs from the agent store.
// Update applies fn to the stored record under the store's lock.
type Store interface {
	List() []model.Agent
	Get(id string) (model.Agent, error)
	Update(id string, fn func(a *model.Agent)) (model.Agent, error)
}

// MemoryStore is an in-process Store guarded by an RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]*model.Agent
}

// NewMemoryStore creates a store populated with copies of the given agents.
func NewMemoryStore(seed ...model.Agent) *MemoryStore {
	s := &MemoryStore{agents: make(map[string]*model.Agent, len(seed))}
	for _, a := range seed {
		s.Put(a)
	}
	return s
}

// Put inserts or replaces an agent.
func (s *MemoryStore) Put(a model.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status == "" {
		a.Status = model.StatusIdle
	}
	c := a.Clone()
	s.agents[a.ID] = &c
}

// List returns copies of all agents ordered by id.
func (s *MemoryStore) List() []model.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of one agent.
func (s *MemoryStore) Get(id string) (model.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return model.Agent{}, ErrNotFound
	}
	return a.Clone(), nil
}

// Update mutates the stored agent in place and returns a copy of the result.
func (s *MemoryStore) Update(id string, fn func(a *model.Agent)) (model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return model.Agent{}, ErrNotFound
	}
	fn(a)
	return a.Clone(), nil
}

// CreditMatch settles a finished match: every entrant pays the entry fee and
// the winner collects the prize pool. Earnings never drop below zero.
func CreditMatch(s Store, entrants []string, entryFee float64, result model.MatchResult) {
	for _, id := range entrants {
		_, _ = s.Update(id, func(a *model.Agent) {
			a.Stats.Earnings -= entryFee
			if id == result.Winner {
				a.Stats.Earnings += result.PrizePool
				a.Stats.Wins++
			} else {
				a.Stats.Losses++
			}
			if a.Stats.Earnings < 0 {
				a.Stats.Earnings = 0
			}
		})
	}
}
