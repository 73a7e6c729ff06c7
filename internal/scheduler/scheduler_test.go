package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ArenaPilot/internal/agents"
	"ArenaPilot/internal/arena"
	"ArenaPilot/internal/coordinator"
	"ArenaPilot/internal/eligibility"
	"ArenaPilot/internal/model"
	"ArenaPilot/internal/scoring"
)

type testEnv struct {
	sched   *Scheduler
	store   *agents.MemoryStore
	arenas  *arena.MemoryManager
	tracker *eligibility.Tracker
	coord   *coordinator.Coordinator
}

func strategy(risk, aggr float64, pref model.GamePreference) *model.StrategyParams {
	return &model.StrategyParams{RiskTolerance: risk, Aggressiveness: aggr, PreferredGameTypes: pref}
}

func newEnv(t *testing.T, ccfg coordinator.Config, agentList []model.Agent, arenaList ...model.Arena) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := agents.NewMemoryStore(agentList...)
	mgr := arena.NewMemoryManager(0, arenaList...)
	tracker := eligibility.NewTracker(ccfg.Cooldown)
	coord := coordinator.New(ctx, mgr, store, tracker, nil, nil, ccfg)
	t.Cleanup(coord.Shutdown)
	sched := NewScheduler(ctx, store, mgr, tracker, coord, Config{ScanInterval: time.Hour, MinBudgetRatio: 2})
	t.Cleanup(sched.Stop)
	return &testEnv{sched: sched, store: store, arenas: mgr, tracker: tracker, coord: coord}
}

func (e *testEnv) lobby(t *testing.T, arenaID string) model.Lobby {
	t.Helper()
	l, err := e.arenas.GetLobby(context.Background(), arenaID)
	if err != nil {
		t.Fatalf("GetLobby %s: %v", arenaID, err)
	}
	return l
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

func TestScan_SelectsHighestScoringArena(t *testing.T) {
	big := model.Arena{ID: "big", EntryFee: 1.5, PrizePool: 10, GameType: model.GameBattle, MaxAgents: 8}
	small := model.Arena{ID: "small", EntryFee: 0.05, PrizePool: 1, GameType: model.GameBattle, MaxAgents: 8}
	env := newEnv(t, coordinator.Config{Cooldown: time.Hour, MatchTimeout: time.Hour},
		[]model.Agent{{ID: "A", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)}},
		big, small)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		env.arenas.JoinArena(ctx, "big", model.LobbyMember{AgentID: fmt.Sprintf("filler-%d", i)})
	}

	if err := env.sched.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if l := env.lobby(t, "big"); !l.Contains("A") {
		t.Errorf("expected A in arena big, lobby=%+v", l)
	}
	if l := env.lobby(t, "small"); l.Count != 0 {
		t.Errorf("expected small arena untouched, got %d", l.Count)
	}
	a, _ := env.store.Get("A")
	if a.Status != model.StatusFighting || a.CurrentArenaID != "big" {
		t.Errorf("expected A fighting in big, got %s/%s", a.Status, a.CurrentArenaID)
	}
}

func TestScan_InMatchAgentNeverReselected(t *testing.T) {
	env := newEnv(t, coordinator.Config{Cooldown: 0, MatchTimeout: time.Hour},
		[]model.Agent{{ID: "A", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)}},
		model.Arena{ID: "one", EntryFee: 0.1, PrizePool: 1, GameType: model.GameBattle, MaxAgents: 4},
		model.Arena{ID: "two", EntryFee: 0.1, PrizePool: 1, GameType: model.GameBattle, MaxAgents: 4},
	)
	ctx := context.Background()
	env.sched.Scan(ctx)

	// Even if something external puts the agent back to searching, inMatch keeps it out.
	env.store.Update("A", func(a *model.Agent) { a.Status = model.StatusSearching })
	for i := 0; i < 3; i++ {
		env.sched.Scan(ctx)
	}

	total := env.lobby(t, "one").Count + env.lobby(t, "two").Count
	if total != 1 {
		t.Errorf("expected exactly one join, got %d lobby entries", total)
	}
	if got := env.sched.Stats().JoinCount; got != 1 {
		t.Errorf("expected join count 1, got %d", got)
	}
}

func TestScan_FiltersIneligibleAgents(t *testing.T) {
	env := newEnv(t, coordinator.Config{Cooldown: time.Hour, MatchTimeout: time.Hour},
		[]model.Agent{
			{ID: "manual", Status: model.StatusSearching},
			{ID: "busy", Status: model.StatusFighting, Strategy: strategy(90, 50, model.PreferBoth)},
			{ID: "cooling", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)},
			{ID: "rps-only", Status: model.StatusIdle, Strategy: strategy(90, 50, model.PreferRPS)},
			{ID: "ready", Status: model.StatusIdle, Strategy: strategy(90, 50, model.PreferBattle)},
		},
		model.Arena{ID: "battle", EntryFee: 0.1, PrizePool: 1, GameType: model.GameBattle, MaxAgents: 10},
	)
	env.tracker.MarkEntered("cooling")
	env.tracker.MarkReleased("cooling", model.OutcomeCompleted)

	env.sched.Scan(context.Background())

	l := env.lobby(t, "battle")
	if l.Count != 1 || !l.Contains("ready") {
		t.Errorf("expected only 'ready' to join, lobby=%+v", l)
	}
}

func TestScan_NoArenasIsNoop(t *testing.T) {
	env := newEnv(t, coordinator.Config{Cooldown: 0, MatchTimeout: time.Hour},
		[]model.Agent{{ID: "A", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)}})
	if err := env.sched.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, ok := env.tracker.State("A"); ok {
		t.Error("no eligibility state should be created without arenas")
	}
}

func TestScan_PanickingAgentDoesNotAbortPass(t *testing.T) {
	env := newEnv(t, coordinator.Config{Cooldown: 0, MatchTimeout: time.Hour},
		[]model.Agent{
			{ID: "a-bad", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)},
			{ID: "b-good", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)},
		},
		model.Arena{ID: "x", EntryFee: 0.1, PrizePool: 1, GameType: model.GameBattle, MaxAgents: 10},
	)
	env.sched.Select = func(agent *model.Agent, c []model.Arena) (*model.Arena, float64, bool) {
		if agent.ID == "a-bad" {
			panic("strategy exploded")
		}
		return scoring.EvaluateBestArena(agent, c)
	}

	if err := env.sched.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if l := env.lobby(t, "x"); !l.Contains("b-good") || l.Contains("a-bad") {
		t.Errorf("expected only b-good to join, lobby=%+v", l)
	}
}

func TestScan_SkipsArenaFilledInSamePass(t *testing.T) {
	env := newEnv(t, coordinator.Config{Cooldown: 0, MatchTimeout: time.Hour},
		[]model.Agent{
			{ID: "a", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)},
			{ID: "b", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)},
		},
		model.Arena{ID: "solo", EntryFee: 0.1, PrizePool: 5, GameType: model.GameBattle, MaxAgents: 1},
		model.Arena{ID: "spare", EntryFee: 0.1, PrizePool: 1, GameType: model.GameBattle, MaxAgents: 4},
	)
	env.sched.Scan(context.Background())

	if !env.tracker.InMatch("a") || !env.tracker.InMatch("b") {
		t.Errorf("expected both agents placed, stats=%+v", env.sched.Stats().ActiveMatches)
	}
	if l := env.lobby(t, "spare"); !l.Contains("b") {
		t.Errorf("expected b in spare arena, lobby=%+v", l)
	}
}

func TestTimeout_AgentReturnsToPool(t *testing.T) {
	env := newEnv(t, coordinator.Config{Cooldown: 0, MatchTimeout: 40 * time.Millisecond},
		[]model.Agent{{ID: "A", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)}},
		model.Arena{ID: "stuck", EntryFee: 0.1, PrizePool: 1, GameType: model.GameBattle, MaxAgents: 4},
	)
	env.sched.Scan(context.Background())
	if !env.tracker.InMatch("A") {
		t.Fatal("expected A in match after scan")
	}

	waitFor(t, "timeout release", func() bool { return !env.tracker.InMatch("A") })
	a, _ := env.store.Get("A")
	if a.Status != model.StatusSearching {
		t.Errorf("expected searching after timeout, got %s", a.Status)
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	env := newEnv(t, coordinator.Config{Cooldown: time.Hour, MatchTimeout: time.Hour},
		[]model.Agent{
			{ID: "A", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)},
			{ID: "B"},
		},
		model.Arena{ID: "x", EntryFee: 0.1, PrizePool: 1, GameType: model.GameBattle, MaxAgents: 4},
	)

	if err := env.sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := env.sched.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !env.tracker.InMatch("A") {
		t.Error("Start should scan immediately")
	}

	stats := env.sched.Stats()
	if !stats.Running || stats.TotalAgents != 2 || stats.AutonomousAgents != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.ScanCount != 1 {
		t.Errorf("expected exactly one immediate scan, got %d", stats.ScanCount)
	}
	if !stats.Eligibility["A"].InMatch {
		t.Error("expected eligibility state for A in stats")
	}

	env.sched.Stop()
	env.sched.Stop()
	if env.sched.Running() {
		t.Error("expected scheduler stopped")
	}
	if len(env.coord.ActiveMatches()) != 1 {
		t.Error("Stop must not cancel in-flight matches")
	}
}

func TestHandleCommand(t *testing.T) {
	env := newEnv(t, coordinator.Config{Cooldown: 0, MatchTimeout: time.Hour},
		[]model.Agent{{ID: "A", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)}})
	if out := env.sched.HandleCommand("/stats"); out == "" {
		t.Error("expected stats reply")
	}
	if out := env.sched.HandleCommand("/scan"); out == "" {
		t.Error("expected scan reply")
	}
	if out := env.sched.HandleCommand("hello"); out == "" {
		t.Error("expected help reply")
	}
}

type panickingArenas struct {
	arena.Manager
}

func (panickingArenas) ListArenas(context.Context, ...model.ArenaState) ([]model.Arena, error) {
	panic("arena listing exploded")
}

func TestStart_PanickingScanDoesNotCrash(t *testing.T) {
	ctx := context.Background()
	store := agents.NewMemoryStore(model.Agent{ID: "A", Status: model.StatusSearching, Strategy: strategy(90, 50, model.PreferBoth)})
	mgr := panickingArenas{Manager: arena.NewMemoryManager(0)}
	tracker := eligibility.NewTracker(0)
	coord := coordinator.New(ctx, mgr, store, tracker, nil, nil, coordinator.Config{Cooldown: 0, MatchTimeout: time.Hour})
	sched := NewScheduler(ctx, store, mgr, tracker, coord, Config{ScanInterval: time.Hour, MinBudgetRatio: 2})

	if err := sched.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()
	if !sched.Running() {
		t.Error("scheduler should keep running after a panicking scan")
	}
	// The scan lock must have been released by the panicking pass.
	done := make(chan struct{})
	go func() {
		sched.scanJob()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second scan blocked after a panic")
	}
}
