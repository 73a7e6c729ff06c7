package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ArenaPilot/internal/agents"
	"ArenaPilot/internal/arena"
	"ArenaPilot/internal/eligibility"
	"ArenaPilot/internal/events"
	"ArenaPilot/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingPublisher) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type hookFunc func(ctx context.Context, agent model.Agent, result model.MatchResult) error

func (f hookFunc) AfterMatch(ctx context.Context, agent model.Agent, result model.MatchResult) error {
	return f(ctx, agent, result)
}

type fixture struct {
	coord   *Coordinator
	arenas  *arena.MemoryManager
	store   *agents.MemoryStore
	tracker *eligibility.Tracker
	pub     *recordingPublisher
}

func newFixture(t *testing.T, cfg Config, hook PostMatchHook) *fixture {
	t.Helper()
	store := agents.NewMemoryStore(
		model.Agent{
			ID:       "hero",
			Name:     "Hero",
			Status:   model.StatusSearching,
			Strategy: &model.StrategyParams{RiskTolerance: 90, Aggressiveness: 50, PreferredGameTypes: model.PreferBoth},
			Buffs: []model.Buff{
				{Name: "last-match", MatchesLeft: 1},
				{Name: "streak", MatchesLeft: 3},
				{Name: "timed"},
			},
		},
		model.Agent{ID: "rival", Name: "Rival", Status: model.StatusSearching},
	)
	mgr := arena.NewMemoryManager(0, model.Arena{
		ID: "duel", Tier: model.TierBronze, EntryFee: 0.1, PrizePool: 0.2, GameType: model.GameBattle, MaxAgents: 2,
	})
	tracker := eligibility.NewTracker(cfg.Cooldown)
	pub := &recordingPublisher{}
	coord := New(context.Background(), mgr, store, tracker, pub, hook, cfg)
	t.Cleanup(coord.Shutdown)
	return &fixture{coord: coord, arenas: mgr, store: store, tracker: tracker, pub: pub}
}

func (f *fixture) join(t *testing.T, agentID string) {
	t.Helper()
	a, err := f.store.Get(agentID)
	if err != nil {
		t.Fatalf("Get %s: %v", agentID, err)
	}
	arenas, _ := f.arenas.ListArenas(context.Background())
	if err := f.coord.Join(context.Background(), a, arenas[0]); err != nil {
		t.Fatalf("Join %s: %v", agentID, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func (f *fixture) status(id string) model.AgentStatus {
	a, _ := f.store.Get(id)
	return a.Status
}

func TestJoin_MarksAgentFighting(t *testing.T) {
	f := newFixture(t, Config{Cooldown: time.Hour, MatchTimeout: time.Hour}, nil)
	f.join(t, "hero")

	a, _ := f.store.Get("hero")
	if a.Status != model.StatusFighting || a.CurrentArenaID != "duel" {
		t.Errorf("expected fighting in duel, got %s in %q", a.Status, a.CurrentArenaID)
	}
	if !f.tracker.InMatch("hero") {
		t.Error("expected hero in match")
	}
	if got := f.coord.ActiveMatches()["hero"]; got != "duel" {
		t.Errorf("expected active match in duel, got %q", got)
	}
	kinds := f.pub.kinds()
	if len(kinds) != 1 || kinds[0] != events.KindAutoJoined {
		t.Errorf("expected one auto-joined event, got %v", kinds)
	}
}

func TestJoin_SecondJoinRejected(t *testing.T) {
	f := newFixture(t, Config{Cooldown: time.Hour, MatchTimeout: time.Hour}, nil)
	f.join(t, "hero")

	a, _ := f.store.Get("hero")
	arenas, _ := f.arenas.ListArenas(context.Background())
	if err := f.coord.Join(context.Background(), a, arenas[0]); !errors.Is(err, ErrAgentBusy) {
		t.Errorf("expected ErrAgentBusy, got %v", err)
	}
}

func TestCompletion_WinnerThenResume(t *testing.T) {
	var hookCalls int
	var hookAgent model.Agent
	var mu sync.Mutex
	hook := hookFunc(func(_ context.Context, a model.Agent, _ model.MatchResult) error {
		mu.Lock()
		defer mu.Unlock()
		hookCalls++
		hookAgent = a
		return nil
	})
	f := newFixture(t, Config{Cooldown: 80 * time.Millisecond, MatchTimeout: time.Hour}, hook)
	f.join(t, "hero")
	f.join(t, "rival")

	if err := f.arenas.Complete("duel", "hero"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	waitFor(t, "hero won", func() bool { return f.status("hero") == model.StatusWon })
	waitFor(t, "rival lost", func() bool { return f.status("rival") == model.StatusLost })

	hero, _ := f.store.Get("hero")
	if len(hero.Buffs) != 2 {
		t.Fatalf("expected exhausted buff to be cleared, got %+v", hero.Buffs)
	}
	if hero.Buffs[0].Name != "streak" || hero.Buffs[0].MatchesLeft != 2 {
		t.Errorf("expected streak buff decremented to 2, got %+v", hero.Buffs[0])
	}
	if hero.Buffs[1].Name != "timed" || hero.Buffs[1].MatchesLeft != 0 {
		t.Errorf("expected timed buff untouched, got %+v", hero.Buffs[1])
	}
	if hero.CurrentArenaID != "" {
		t.Errorf("expected arena reference cleared, got %q", hero.CurrentArenaID)
	}

	st, _ := f.tracker.State("hero")
	if st.InMatch || st.MatchCount != 1 {
		t.Errorf("unexpected eligibility state: %+v", st)
	}

	waitFor(t, "hero back to searching", func() bool { return f.status("hero") == model.StatusSearching })
	waitFor(t, "rival back to searching", func() bool { return f.status("rival") == model.StatusSearching })

	f.coord.Wait()
	mu.Lock()
	defer mu.Unlock()
	if hookCalls != 2 {
		t.Errorf("expected hook for both entrants, got %d", hookCalls)
	}
	if hookAgent.ID == "" {
		t.Error("hook received empty agent")
	}
}

func TestCompletion_HookFailureIsNotFatal(t *testing.T) {
	hook := hookFunc(func(context.Context, model.Agent, model.MatchResult) error {
		return errors.New("withdraw failed")
	})
	f := newFixture(t, Config{Cooldown: 20 * time.Millisecond, MatchTimeout: time.Hour}, hook)
	f.join(t, "hero")
	f.join(t, "rival")
	f.arenas.Complete("duel", "rival")

	waitFor(t, "hero back to searching", func() bool { return f.status("hero") == model.StatusSearching })
	if f.tracker.InMatch("hero") {
		t.Error("hero should be released")
	}
}

func TestMatchError_ReleasesImmediately(t *testing.T) {
	f := newFixture(t, Config{Cooldown: time.Hour, MatchTimeout: time.Hour}, nil)
	f.join(t, "hero")
	f.arenas.FailMatch("duel", "host crashed")

	waitFor(t, "hero released", func() bool { return !f.tracker.InMatch("hero") })
	if s := f.status("hero"); s != model.StatusSearching {
		t.Errorf("expected searching, got %s", s)
	}
	st, _ := f.tracker.State("hero")
	if st.MatchCount != 0 {
		t.Errorf("error must not count as a completed match, got %d", st.MatchCount)
	}
	f.coord.Wait()
	kinds := f.pub.kinds()
	if kinds[len(kinds)-1] != events.KindMatchAborted {
		t.Errorf("expected last event to be aborted, got %v", kinds)
	}
}

func TestTimeout_ForceReleases(t *testing.T) {
	f := newFixture(t, Config{Cooldown: time.Hour, MatchTimeout: 50 * time.Millisecond}, nil)
	f.join(t, "hero")

	waitFor(t, "timeout release", func() bool { return !f.tracker.InMatch("hero") })
	if s := f.status("hero"); s != model.StatusSearching {
		t.Errorf("expected searching after timeout, got %s", s)
	}
	if len(f.coord.ActiveMatches()) != 0 {
		t.Error("expected no active matches after timeout")
	}
}

func TestOnlyFirstTerminalSignalReleases(t *testing.T) {
	f := newFixture(t, Config{Cooldown: time.Hour, MatchTimeout: 50 * time.Millisecond}, nil)
	f.join(t, "hero")
	f.join(t, "rival")
	f.arenas.Complete("duel", "hero")

	waitFor(t, "hero won", func() bool { return f.status("hero") == model.StatusWon })
	time.Sleep(120 * time.Millisecond)

	if s := f.status("hero"); s != model.StatusWon {
		t.Errorf("timeout must not override a completed match, got %s", s)
	}
	st, _ := f.tracker.State("hero")
	if st.MatchCount != 1 {
		t.Errorf("expected exactly one release, match count %d", st.MatchCount)
	}
	results := 0
	for _, k := range f.pub.kinds() {
		if k == events.KindMatchAborted {
			t.Errorf("unexpected aborted event after completion")
		}
		if k == events.KindMatchResult {
			results++
		}
	}
	if results != 2 {
		t.Errorf("expected 2 result events, got %d", results)
	}
}

func TestJoinFailure_ReleasesEligibility(t *testing.T) {
	f := newFixture(t, Config{Cooldown: 0, MatchTimeout: time.Hour}, nil)
	hero, _ := f.store.Get("hero")

	err := f.coord.Join(context.Background(), hero, model.Arena{ID: "ghost"})
	if !errors.Is(err, arena.ErrUnknownArena) {
		t.Fatalf("expected ErrUnknownArena, got %v", err)
	}
	if f.tracker.InMatch("hero") {
		t.Error("failed join must release eligibility")
	}
	if s := f.status("hero"); s != model.StatusSearching {
		t.Errorf("status must be unchanged after failed join, got %s", s)
	}
	if len(f.pub.kinds()) != 0 {
		t.Error("failed join must not publish events")
	}
}

func TestJoinFailure_AlreadyInArena(t *testing.T) {
	f := newFixture(t, Config{Cooldown: 0, MatchTimeout: time.Hour}, nil)
	f.arenas.JoinArena(context.Background(), "duel", model.LobbyMember{AgentID: "hero"})

	hero, _ := f.store.Get("hero")
	arenas, _ := f.arenas.ListArenas(context.Background())
	err := f.coord.Join(context.Background(), hero, arenas[0])
	if !errors.Is(err, arena.ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	if f.tracker.InMatch("hero") {
		t.Error("failed join must release eligibility")
	}
}

func TestConsumeBuffs(t *testing.T) {
	now := time.Now()
	got := consumeBuffs([]model.Buff{{Name: "a", MatchesLeft: 1}, {Name: "b", MatchesLeft: 2}, {Name: "c"}}, now)
	if len(got) != 2 || got[0].Name != "b" || got[0].MatchesLeft != 1 || got[1].Name != "c" {
		t.Errorf("unexpected buffs: %+v", got)
	}
	if consumeBuffs(nil, now) != nil {
		t.Error("expected nil for no buffs")
	}
}

func TestConsumeBuffs_DropsExpired(t *testing.T) {
	now := time.Now()
	got := consumeBuffs([]model.Buff{
		{Name: "stale", ExpiresAt: now.Add(-time.Minute)},
		{Name: "edge", ExpiresAt: now},
		{Name: "fresh", ExpiresAt: now.Add(time.Minute)},
		{Name: "stale-counted", MatchesLeft: 5, ExpiresAt: now.Add(-time.Second)},
	}, now)
	if len(got) != 1 || got[0].Name != "fresh" {
		t.Errorf("expected only the unexpired buff, got %+v", got)
	}
}

type slowPublisher struct {
	delay time.Duration
}

func (p slowPublisher) Publish(_ context.Context, evt events.Event) {
	if evt.Kind == events.KindMatchResult {
		time.Sleep(p.delay)
	}
}

func TestCompletion_ResumeNotDelayedBySlowPublisher(t *testing.T) {
	store := agents.NewMemoryStore(
		model.Agent{ID: "hero", Status: model.StatusSearching},
		model.Agent{ID: "rival", Status: model.StatusSearching},
	)
	mgr := arena.NewMemoryManager(0, model.Arena{ID: "duel", EntryFee: 0.1, PrizePool: 0.2, GameType: model.GameBattle, MaxAgents: 2})
	cfg := Config{Cooldown: 50 * time.Millisecond, MatchTimeout: time.Hour}
	tracker := eligibility.NewTracker(cfg.Cooldown)
	coord := New(context.Background(), mgr, store, tracker, slowPublisher{delay: 600 * time.Millisecond}, nil, cfg)
	t.Cleanup(coord.Shutdown)

	arenas, _ := mgr.ListArenas(context.Background())
	for _, id := range []string{"hero", "rival"} {
		a, _ := store.Get(id)
		if err := coord.Join(context.Background(), a, arenas[0]); err != nil {
			t.Fatalf("Join %s: %v", id, err)
		}
	}

	start := time.Now()
	if err := mgr.Complete("duel", "hero"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	waitFor(t, "hero back to searching", func() bool {
		a, _ := store.Get("hero")
		return a.Status == model.StatusSearching
	})
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("resume took %v with a 50ms cooldown", elapsed)
	}
}

func TestTimeout_RemovesAgentFromLobby(t *testing.T) {
	f := newFixture(t, Config{Cooldown: time.Hour, MatchTimeout: 30 * time.Millisecond}, nil)
	f.join(t, "hero")

	waitFor(t, "timeout release", func() bool { return !f.tracker.InMatch("hero") })
	lobby, err := f.arenas.GetLobby(context.Background(), "duel")
	if err != nil {
		t.Fatalf("GetLobby: %v", err)
	}
	if lobby.Contains("hero") {
		t.Errorf("timed-out agent still queued: %+v", lobby)
	}
}
