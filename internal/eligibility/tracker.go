package eligibility

import (
	"sync"
	"time"

	"ArenaPilot/internal/model"
)

// Tracker holds per-agent cooldown and in-match state. Records are created on
// first contact and kept for the lifetime of the process.
type Tracker struct {
	mu       sync.Mutex
	states   map[string]*model.EligibilityState
	cooldown time.Duration
	now      func() time.Time
}

// NewTracker creates a Tracker with the given cooldown window.
func NewTracker(cooldown time.Duration) *Tracker {
	return &Tracker{
		states:   make(map[string]*model.EligibilityState),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Cooldown returns the configured cooldown window.
func (t *Tracker) Cooldown() time.Duration { return t.cooldown }

// IsAvailable reports whether the agent may be selected for a new match.
func (t *Tracker) IsAvailable(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.availableLocked(agentID)
}

func (t *Tracker) availableLocked(agentID string) bool {
	st, ok := t.states[agentID]
	if !ok {
		return true
	}
	if st.InMatch {
		return false
	}
	return t.now().Sub(st.LastMatchTime) >= t.cooldown
}

// TryEnter marks the agent as in a match if it is currently available.
// The check and the mutation happen under one lock, so two concurrent
// callers can never both succeed for the same agent.
func (t *Tracker) TryEnter(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.availableLocked(agentID) {
		return false
	}
	t.enterLocked(agentID)
	return true
}

// MarkEntered unconditionally marks the agent as in a match.
func (t *Tracker) MarkEntered(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enterLocked(agentID)
}

func (t *Tracker) enterLocked(agentID string) {
	st := t.stateLocked(agentID)
	st.InMatch = true
	st.LastMatchTime = t.now()
}

// MarkReleased clears the in-match flag and restarts the cooldown window.
// Only a completed match counts towards MatchCount.
func (t *Tracker) MarkReleased(agentID string, outcome model.ReleaseOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateLocked(agentID)
	st.InMatch = false
	st.LastMatchTime = t.now()
	if outcome == model.OutcomeCompleted {
		st.MatchCount++
	}
}

// InMatch reports whether the agent is currently held by a match.
func (t *Tracker) InMatch(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[agentID]
	return ok && st.InMatch
}

// State returns a copy of the agent's record and whether one exists.
func (t *Tracker) State(agentID string) (model.EligibilityState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[agentID]
	if !ok {
		return model.EligibilityState{}, false
	}
	return *st, true
}

// Snapshot returns a copy of every record.
func (t *Tracker) Snapshot() map[string]model.EligibilityState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]model.EligibilityState, len(t.states))
	for id, st := range t.states {
		out[id] = *st
	}
	return out
}

func (t *Tracker) stateLocked(agentID string) *model.EligibilityState {
	st, ok := t.states[agentID]
	if !ok {
		st = &model.EligibilityState{}
		t.states[agentID] = st
	}
	return st
}
