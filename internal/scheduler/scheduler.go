package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"ArenaPilot/internal/agents"
	"ArenaPilot/internal/arena"
	"ArenaPilot/internal/coordinator"
	"ArenaPilot/internal/eligibility"
	"ArenaPilot/internal/model"
	"ArenaPilot/internal/notifier"
	"ArenaPilot/internal/scoring"

	"github.com/robfig/cron/v3"
)

// SelectFunc picks the arena an agent should join from the candidates.
type SelectFunc func(agent *model.Agent, candidates []model.Arena) (*model.Arena, float64, bool)

// Config controls the scan loop.
type Config struct {
	ScanInterval time.Duration
	// MinBudgetRatio is reported in stats only; scoring applies its own budget rule.
	MinBudgetRatio float64
}

// DefaultConfig returns a 10s scan interval.
func DefaultConfig() Config {
	return Config{ScanInterval: 10 * time.Second, MinBudgetRatio: 2}
}

// Scheduler periodically matches searching agents to open arenas.
type Scheduler struct {
	Agents      agents.Store
	Arenas      arena.Manager
	Tracker     *eligibility.Tracker
	Coordinator *coordinator.Coordinator
	Select      SelectFunc
	Ctx         context.Context
	cfg         Config

	mu      sync.Mutex
	cron    *cron.Cron
	running bool

	scanMu    sync.Mutex
	scanCount atomic.Int64
	joinCount atomic.Int64
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, store agents.Store, arenas arena.Manager, tracker *eligibility.Tracker, coord *coordinator.Coordinator, cfg Config) *Scheduler {
	return &Scheduler{
		Agents:      store,
		Arenas:      arenas,
		Tracker:     tracker,
		Coordinator: coord,
		Select:      scoring.EvaluateBestArena,
		Ctx:         ctx,
		cfg:         cfg,
	}
}

// Start begins periodic scanning and runs one scan immediately. Calling it
// while already running does nothing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.ScanInterval), s.scanJob); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("register scan task: %w", err)
	}
	c.Start()
	s.cron = c
	s.running = true
	s.mu.Unlock()

	log.Printf("[INFO] scheduler started, scan interval %v", s.cfg.ScanInterval)
	s.scanJob()
	return nil
}

// Stop cancels future scans and waits for a running one to finish. In-flight
// matches and their timers are not affected. Calling it while stopped does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// Running reports whether periodic scanning is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// scanJob runs a scan for cron and for the immediate scan in Start, which is
// outside cron's Recover wrapper.
func (s *Scheduler) scanJob() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] scan panicked: %v", r)
		}
	}()
	if err := s.Scan(s.Ctx); err != nil {
		log.Printf("[ERROR] scan: %v", err)
	}
}

// Scan runs one matching pass. A failure for one agent is logged and the
// pass continues with the next agent.
func (s *Scheduler) Scan(ctx context.Context) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	s.scanCount.Add(1)

	arenas, err := s.snapshotArenas(ctx)
	if err != nil {
		return err
	}
	if len(arenas) == 0 {
		return nil
	}
	candidates := s.eligibleAgents()
	if len(candidates) == 0 {
		return nil
	}

	for i := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		agent := &candidates[i]
		if err := s.evaluate(ctx, agent, arenas); err != nil {
			log.Printf("[ERROR] evaluate agent %s: %v", agent.ID, err)
		}
	}
	return nil
}

// snapshotArenas lists joinable arenas with their current lobbies.
func (s *Scheduler) snapshotArenas(ctx context.Context) ([]model.Arena, error) {
	list, err := s.Arenas.ListArenas(ctx, model.ArenaOpen, model.ArenaLobby)
	if err != nil {
		return nil, fmt.Errorf("list arenas: %w", err)
	}
	out := list[:0]
	for _, a := range list {
		lobby, err := s.Arenas.GetLobby(ctx, a.ID)
		if err != nil {
			log.Printf("[WARN] get lobby for arena %s: %v", a.ID, err)
			continue
		}
		a.Lobby = lobby
		out = append(out, a)
	}
	return out, nil
}

func (s *Scheduler) eligibleAgents() []model.Agent {
	all := s.Agents.List()
	out := make([]model.Agent, 0, len(all))
	for _, a := range all {
		if !a.Autonomous() || !a.Status.IsSearching() {
			continue
		}
		if !s.Tracker.IsAvailable(a.ID) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// evaluate picks and joins the best arena for one agent. On a successful join
// the snapshot lobby is updated so later agents in the same pass see it.
func (s *Scheduler) evaluate(ctx context.Context, agent *model.Agent, arenas []model.Arena) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	open := make([]model.Arena, 0, len(arenas))
	for _, a := range arenas {
		if a.MaxAgents > 0 && a.Lobby.Count >= a.MaxAgents {
			continue
		}
		open = append(open, a)
	}

	best, score, ok := s.Select(agent, open)
	if !ok {
		return nil
	}
	if err := s.Coordinator.Join(ctx, *agent, *best); err != nil {
		// Join failures release the agent and are logged by the coordinator.
		return nil
	}
	s.joinCount.Add(1)
	log.Printf("[INFO] scan matched agent %s to arena %s (score %.3f)", agent.ID, best.ID, score)

	for i := range arenas {
		if arenas[i].ID == best.ID {
			arenas[i].Lobby.Agents = append(arenas[i].Lobby.Agents, model.LobbyMember{AgentID: agent.ID, Name: agent.Name})
			arenas[i].Lobby.Count++
			break
		}
	}
	return nil
}

// Stats returns a snapshot for the host process.
func (s *Scheduler) Stats() model.SchedulerStats {
	all := s.Agents.List()
	autonomous := 0
	for _, a := range all {
		if a.Autonomous() {
			autonomous++
		}
	}
	return model.SchedulerStats{
		Running:          s.Running(),
		TotalAgents:      len(all),
		AutonomousAgents: autonomous,
		ActiveMatches:    s.Coordinator.ActiveMatches(),
		Eligibility:      s.Tracker.Snapshot(),
		ScanCount:        s.scanCount.Load(),
		JoinCount:        s.joinCount.Load(),
		MinBudgetRatio:   s.cfg.MinBudgetRatio,
	}
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/stats":
		return notifier.FormatStats(s.Stats())
	case "/agents":
		return notifier.FormatAgents(s.Agents.List(), s.Tracker.Snapshot())
	case "/scan":
		if err := s.Scan(s.Ctx); err != nil {
			return fmt.Sprintf("❌ scan failed: %v", err)
		}
		return fmt.Sprintf("✅ scan done, %d joins so far", s.joinCount.Load())
	default:
		return "Available commands:\n• /stats\n• /agents\n• /scan"
	}
}
