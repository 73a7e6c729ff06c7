package arena

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"ArenaPilot/internal/model"

	"github.com/google/uuid"
)

// SettleFunc is called with the entrants and result just before a match
// completion is delivered to watchers.
type SettleFunc func(arena model.Arena, entrants []string, result model.MatchResult)

// MemoryManager is an in-process arena manager. When a lobby fills the match
// runs for MatchDuration, a random entrant wins, and the arena reopens empty.
// A non-positive MatchDuration disables automatic resolution.
type MemoryManager struct {
	mu            sync.Mutex
	arenas        map[string]*model.Arena
	order         []string
	watchers      map[string]map[int]chan model.MatchEvent
	nextWatchID   int
	timers        map[string]*time.Timer
	rng           *rand.Rand
	matchDuration time.Duration
	settle        SettleFunc
}

// NewMemoryManager creates a manager seeded with the given arenas.
func NewMemoryManager(matchDuration time.Duration, seed ...model.Arena) *MemoryManager {
	m := &MemoryManager{
		arenas:        make(map[string]*model.Arena),
		watchers:      make(map[string]map[int]chan model.MatchEvent),
		timers:        make(map[string]*time.Timer),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		matchDuration: matchDuration,
	}
	for _, a := range seed {
		m.AddArena(a)
	}
	return m
}

// OnSettle registers the settlement callback.
func (m *MemoryManager) OnSettle(fn SettleFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle = fn
}

// AddArena registers an arena, assigning an id when empty.
func (m *MemoryManager) AddArena(a model.Arena) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = "arena-" + uuid.NewString()[:8]
	}
	if a.State == "" {
		a.State = model.ArenaOpen
	}
	a.Lobby = model.Lobby{}
	if _, exists := m.arenas[a.ID]; !exists {
		m.order = append(m.order, a.ID)
	}
	m.arenas[a.ID] = &a
	return a.ID
}

func (m *MemoryManager) ListArenas(_ context.Context, states ...model.ArenaState) ([]model.Arena, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Arena, 0, len(m.order))
	for _, id := range m.order {
		a := m.arenas[id]
		if !stateMatches(a.State, states) {
			continue
		}
		out = append(out, copyArena(a))
	}
	return out, nil
}

func (m *MemoryManager) GetLobby(_ context.Context, arenaID string) (model.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.arenas[arenaID]
	if !ok {
		return model.Lobby{}, fmt.Errorf("%w: %s", ErrUnknownArena, arenaID)
	}
	return copyArena(a).Lobby, nil
}

func (m *MemoryManager) JoinArena(_ context.Context, arenaID string, member model.LobbyMember) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.arenas[arenaID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownArena, arenaID)
	}
	if a.Lobby.Contains(member.AgentID) {
		return a.Lobby.Count, fmt.Errorf("%w: %s in %s", ErrAlreadyJoined, member.AgentID, arenaID)
	}
	if !a.State.Joinable() {
		return a.Lobby.Count, fmt.Errorf("%w: %s is %s", ErrNotJoinable, arenaID, a.State)
	}
	if a.MaxAgents > 0 && a.Lobby.Count >= a.MaxAgents {
		return a.Lobby.Count, fmt.Errorf("%w: %s", ErrArenaFull, arenaID)
	}

	a.Lobby.Agents = append(a.Lobby.Agents, member)
	a.Lobby.Count = len(a.Lobby.Agents)
	a.State = model.ArenaLobby

	if a.MaxAgents > 0 && a.Lobby.Count >= a.MaxAgents {
		a.State = model.ArenaInProgress
		if m.matchDuration > 0 {
			m.timers[arenaID] = time.AfterFunc(m.matchDuration, func() { m.resolve(arenaID) })
		}
	}
	return a.Lobby.Count, nil
}

// LeaveArena removes the agent from the lobby. A lobby left empty reopens
// and its pending resolution is cancelled.
func (m *MemoryManager) LeaveArena(_ context.Context, arenaID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.arenas[arenaID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownArena, arenaID)
	}
	kept := a.Lobby.Agents[:0]
	for _, mem := range a.Lobby.Agents {
		if mem.AgentID != agentID {
			kept = append(kept, mem)
		}
	}
	if len(kept) == a.Lobby.Count {
		return fmt.Errorf("%w: %s in %s", ErrNotInLobby, agentID, arenaID)
	}
	a.Lobby.Agents = kept
	a.Lobby.Count = len(kept)
	if a.Lobby.Count == 0 {
		if t, ok := m.timers[arenaID]; ok {
			t.Stop()
			delete(m.timers, arenaID)
		}
		m.reopenLocked(a)
	}
	return nil
}

func (m *MemoryManager) Watch(arenaID string) (<-chan model.MatchEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan model.MatchEvent, 4)
	id := m.nextWatchID
	m.nextWatchID++
	if m.watchers[arenaID] == nil {
		m.watchers[arenaID] = make(map[int]chan model.MatchEvent)
	}
	m.watchers[arenaID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.watchers[arenaID], id)
			if len(m.watchers[arenaID]) == 0 {
				delete(m.watchers, arenaID)
			}
		})
	}
}

// Complete ends the running match with the given winner.
func (m *MemoryManager) Complete(arenaID, winner string) error {
	m.mu.Lock()
	a, ok := m.arenas[arenaID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownArena, arenaID)
	}
	if len(a.Lobby.Agents) == 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoMatch, arenaID)
	}
	if t, ok := m.timers[arenaID]; ok {
		t.Stop()
		delete(m.timers, arenaID)
	}
	snapshot := copyArena(a)
	result := model.MatchResult{
		MatchID:   uuid.NewString(),
		Winner:    winner,
		PrizePool: a.PrizePool,
		EndedAt:   time.Now(),
	}
	settle := m.settle
	m.mu.Unlock()

	if settle != nil {
		entrants := make([]string, 0, len(snapshot.Lobby.Agents))
		for _, mem := range snapshot.Lobby.Agents {
			entrants = append(entrants, mem.AgentID)
		}
		settle(snapshot, entrants, result)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastLocked(model.MatchEvent{Kind: model.MatchCompleted, ArenaID: arenaID, Result: &result})
	m.reopenLocked(a)
	log.Printf("[INFO] arena %s completed, winner=%s prize=%.2f", arenaID, winner, result.PrizePool)
	return nil
}

// FailMatch aborts the arena's match and empties its lobby.
func (m *MemoryManager) FailMatch(arenaID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.arenas[arenaID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownArena, arenaID)
	}
	if t, ok := m.timers[arenaID]; ok {
		t.Stop()
		delete(m.timers, arenaID)
	}
	m.broadcastLocked(model.MatchEvent{Kind: model.MatchError, ArenaID: arenaID, Reason: reason})
	m.reopenLocked(a)
	log.Printf("[WARN] arena %s failed: %s", arenaID, reason)
	return nil
}

// Close stops pending match timers.
func (m *MemoryManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

func (m *MemoryManager) resolve(arenaID string) {
	m.mu.Lock()
	a, ok := m.arenas[arenaID]
	if !ok || len(a.Lobby.Agents) == 0 {
		m.mu.Unlock()
		return
	}
	winner := a.Lobby.Agents[m.rng.Intn(len(a.Lobby.Agents))].AgentID
	m.mu.Unlock()

	if err := m.Complete(arenaID, winner); err != nil {
		log.Printf("[ERROR] resolve arena %s: %v", arenaID, err)
	}
}

func (m *MemoryManager) broadcastLocked(evt model.MatchEvent) {
	for _, ch := range m.watchers[evt.ArenaID] {
		select {
		case ch <- evt:
		default:
			log.Printf("[WARN] dropped %s event for arena %s: watcher buffer full", evt.Kind, evt.ArenaID)
		}
	}
}

func (m *MemoryManager) reopenLocked(a *model.Arena) {
	a.Lobby = model.Lobby{}
	a.State = model.ArenaOpen
}

func copyArena(a *model.Arena) model.Arena {
	c := *a
	c.Lobby.Agents = append([]model.LobbyMember(nil), a.Lobby.Agents...)
	return c
}
