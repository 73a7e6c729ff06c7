package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ArenaPilot/internal/agents"
	"ArenaPilot/internal/arena"
	"ArenaPilot/internal/eligibility"
	"ArenaPilot/internal/events"
	"ArenaPilot/internal/model"
)

// ErrAgentBusy is returned when the agent is in a match or cooling down.
var ErrAgentBusy = errors.New("agent not available")

// PostMatchHook runs after a completed match. Failures are logged only.
type PostMatchHook interface {
	AfterMatch(ctx context.Context, agent model.Agent, result model.MatchResult) error
}

// Publisher receives lifecycle notifications.
type Publisher interface {
	Publish(ctx context.Context, evt events.Event)
}

// Config controls match supervision.
type Config struct {
	// Cooldown is the delay before a won/lost agent returns to searching.
	Cooldown time.Duration
	// MatchTimeout force-releases an agent whose arena never reports back.
	MatchTimeout time.Duration
}

// DefaultConfig returns a 30s cooldown and a 5 minute match timeout.
func DefaultConfig() Config {
	return Config{Cooldown: 30 * time.Second, MatchTimeout: 5 * time.Minute}
}

type match struct {
	agentID   string
	agentName string
	arenaID   string
	joinedAt  time.Time
}

// Coordinator joins agents to arenas and supervises each match until exactly
// one of completion, error or timeout releases the agent.
type Coordinator struct {
	Ctx     context.Context
	Arenas  arena.Manager
	Agents  agents.Store
	Tracker *eligibility.Tracker
	Events  Publisher
	Hook    PostMatchHook
	cfg     Config

	mu      sync.Mutex
	active  map[string]*match
	resumes map[string]*time.Timer
	wg      sync.WaitGroup
}

// New creates a Coordinator. pub and hook may be nil.
func New(ctx context.Context, arenas arena.Manager, store agents.Store, tracker *eligibility.Tracker, pub Publisher, hook PostMatchHook, cfg Config) *Coordinator {
	return &Coordinator{
		Ctx:     ctx,
		Arenas:  arenas,
		Agents:  store,
		Tracker: tracker,
		Events:  pub,
		Hook:    hook,
		cfg:     cfg,
		active:  make(map[string]*match),
		resumes: make(map[string]*time.Timer),
	}
}

// Join adds the agent to the arena lobby and starts supervising the match.
// It returns once the lobby add has succeeded or failed.
func (c *Coordinator) Join(ctx context.Context, agent model.Agent, target model.Arena) error {
	if !c.Tracker.TryEnter(agent.ID) {
		return ErrAgentBusy
	}

	// Subscribe before joining so a match that starts and ends on our join is not missed.
	evCh, unsubscribe := c.Arenas.Watch(target.ID)

	lobbySize, err := c.joinArena(ctx, target.ID, model.LobbyMember{AgentID: agent.ID, Name: agent.Name})
	if err != nil {
		unsubscribe()
		c.Tracker.MarkReleased(agent.ID, model.OutcomeJoinFailed)
		if !errors.Is(err, arena.ErrAlreadyJoined) {
			log.Printf("[WARN] agent %s (%s) join arena %s failed: %v", agent.ID, agent.Name, target.ID, err)
		}
		return fmt.Errorf("join %s: %w", target.ID, err)
	}

	if _, err := c.Agents.Update(agent.ID, func(a *model.Agent) {
		a.Status = model.StatusFighting
		a.CurrentArenaID = target.ID
	}); err != nil {
		log.Printf("[ERROR] mark agent %s fighting in %s: %v", agent.ID, target.ID, err)
	}

	m := &match{agentID: agent.ID, agentName: agent.Name, arenaID: target.ID, joinedAt: time.Now()}
	c.mu.Lock()
	c.active[agent.ID] = m
	if t, ok := c.resumes[agent.ID]; ok {
		t.Stop()
		delete(c.resumes, agent.ID)
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.supervise(m, evCh, unsubscribe)

	log.Printf("[INFO] agent %s auto-joined arena %s (lobby %d, fee %.2f)", agent.ID, target.ID, lobbySize, target.EntryFee)
	c.publish(events.Event{
		Kind:      events.KindAutoJoined,
		AgentID:   agent.ID,
		AgentName: agent.Name,
		ArenaID:   target.ID,
		LobbySize: lobbySize,
	})
	return nil
}

// joinArena turns a panicking arena manager into an ordinary join failure so
// the agent is never left marked as in a match.
func (c *Coordinator) joinArena(ctx context.Context, arenaID string, member model.LobbyMember) (size int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("arena manager panicked: %v", r)
		}
	}()
	return c.Arenas.JoinArena(ctx, arenaID, member)
}

// supervise waits for the first terminal signal. Whatever fires first
// unsubscribes and stops the others.
func (c *Coordinator) supervise(m *match, evCh <-chan model.MatchEvent, unsubscribe func()) {
	defer c.wg.Done()
	defer unsubscribe()

	timer := time.NewTimer(c.cfg.MatchTimeout)
	defer timer.Stop()

	for {
		select {
		case evt, ok := <-evCh:
			if !ok {
				c.abort(m, model.OutcomeErrored, "event stream closed")
				return
			}
			switch evt.Kind {
			case model.MatchCompleted:
				if evt.Result == nil {
					c.abort(m, model.OutcomeErrored, "completion without result")
					return
				}
				c.complete(m, *evt.Result)
				return
			case model.MatchError:
				c.abort(m, model.OutcomeErrored, evt.Reason)
				return
			}
		case <-timer.C:
			c.timeout(m)
			return
		}
	}
}

func (c *Coordinator) complete(m *match, result model.MatchResult) {
	if !c.finish(m) {
		return
	}

	status := model.StatusLost
	if result.Winner == m.agentID {
		status = model.StatusWon
	}
	now := time.Now()
	updated, err := c.Agents.Update(m.agentID, func(a *model.Agent) {
		a.Status = status
		a.CurrentArenaID = ""
		a.Buffs = consumeBuffs(a.Buffs, now)
	})
	if err != nil {
		log.Printf("[ERROR] record result for agent %s: %v", m.agentID, err)
	}
	c.Tracker.MarkReleased(m.agentID, model.OutcomeCompleted)
	// The cooldown clock starts here, before any sink or hook runs.
	c.scheduleResume(m.agentID)

	log.Printf("[INFO] agent %s %s in arena %s (prize %.2f)", m.agentID, status, m.arenaID, result.PrizePool)
	c.publish(events.Event{
		Kind:      events.KindMatchResult,
		AgentID:   m.agentID,
		AgentName: m.agentName,
		ArenaID:   m.arenaID,
		Status:    status,
		Result:    &result,
	})

	if c.Hook != nil && err == nil {
		if err := c.Hook.AfterMatch(c.Ctx, updated, result); err != nil {
			log.Printf("[WARN] post-match hook for agent %s: %v", m.agentID, err)
		}
	}
}

func (c *Coordinator) abort(m *match, outcome model.ReleaseOutcome, reason string) {
	if !c.finish(m) {
		return
	}
	c.release(m, outcome, reason)
}

// timeout releases the agent only if it is still held by this same match.
func (c *Coordinator) timeout(m *match) {
	if !c.Tracker.InMatch(m.agentID) {
		c.finish(m)
		return
	}
	if !c.finish(m) {
		return
	}
	log.Printf("[WARN] agent %s match in arena %s timed out after %v", m.agentID, m.arenaID, time.Since(m.joinedAt).Round(time.Second))
	c.leaveLobby(m)
	c.release(m, model.OutcomeTimedOut, "match timeout")
}

// leaveLobby takes a timed-out agent out of the arena lobby when the manager
// supports it, so a later settlement cannot include it.
func (c *Coordinator) leaveLobby(m *match) {
	l, ok := c.Arenas.(arena.Leaver)
	if !ok {
		return
	}
	if err := l.LeaveArena(c.Ctx, m.arenaID, m.agentID); err != nil && !errors.Is(err, arena.ErrNotInLobby) {
		log.Printf("[WARN] remove agent %s from arena %s lobby: %v", m.agentID, m.arenaID, err)
	}
}

func (c *Coordinator) release(m *match, outcome model.ReleaseOutcome, reason string) {
	c.Tracker.MarkReleased(m.agentID, outcome)
	if _, err := c.Agents.Update(m.agentID, func(a *model.Agent) {
		a.Status = model.StatusSearching
		a.CurrentArenaID = ""
	}); err != nil {
		log.Printf("[ERROR] reset agent %s: %v", m.agentID, err)
	}
	log.Printf("[WARN] agent %s released from arena %s (%s): %s", m.agentID, m.arenaID, outcome, reason)
	c.publish(events.Event{
		Kind:      events.KindMatchAborted,
		AgentID:   m.agentID,
		AgentName: m.agentName,
		ArenaID:   m.arenaID,
		Status:    model.StatusSearching,
		Reason:    reason,
	})
}

// finish removes the match from the active set. Only the first caller for a
// given match gets true.
func (c *Coordinator) finish(m *match) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[m.agentID] != m {
		return false
	}
	delete(c.active, m.agentID)
	return true
}

// scheduleResume puts a won/lost agent back into the pool after the cooldown.
func (c *Coordinator) scheduleResume(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.resumes[agentID]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(c.cfg.Cooldown, func() {
		c.mu.Lock()
		if c.resumes[agentID] == t {
			delete(c.resumes, agentID)
		}
		c.mu.Unlock()
		if _, err := c.Agents.Update(agentID, func(a *model.Agent) {
			if a.Status.IsSettled() {
				a.Status = model.StatusSearching
			}
		}); err != nil {
			log.Printf("[ERROR] resume agent %s: %v", agentID, err)
		}
	})
	c.resumes[agentID] = t
}

// ActiveMatches returns agent id -> arena id for every supervised match.
func (c *Coordinator) ActiveMatches() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.active))
	for id, m := range c.active {
		out[id] = m.arenaID
	}
	return out
}

// Wait blocks until every supervised match has been released.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Shutdown cancels pending cooldown resumes. In-flight matches keep running
// until their own terminal signal.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.resumes {
		t.Stop()
		delete(c.resumes, id)
	}
}

func (c *Coordinator) publish(evt events.Event) {
	if c.Events == nil {
		return
	}
	c.Events.Publish(c.Ctx, evt)
}

// consumeBuffs spends one match from every match-limited buff and drops the
// ones that run out or whose ExpiresAt has passed.
func consumeBuffs(buffs []model.Buff, now time.Time) []model.Buff {
	if len(buffs) == 0 {
		return buffs
	}
	kept := make([]model.Buff, 0, len(buffs))
	for _, b := range buffs {
		if !b.ExpiresAt.IsZero() && !now.Before(b.ExpiresAt) {
			continue
		}
		if b.MatchesLeft > 0 {
			b.MatchesLeft--
			if b.MatchesLeft == 0 {
				continue
			}
		}
		kept = append(kept, b)
	}
	return kept
}
