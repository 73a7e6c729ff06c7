package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ArenaPilot/internal/agents"
	"ArenaPilot/internal/api"
	"ArenaPilot/internal/arena"
	"ArenaPilot/internal/config"
	"ArenaPilot/internal/coordinator"
	"ArenaPilot/internal/eligibility"
	"ArenaPilot/internal/events"
	"ArenaPilot/internal/model"
	"ArenaPilot/internal/notifier"
	"ArenaPilot/internal/recorder"
	"ArenaPilot/internal/scheduler"
	"ArenaPilot/internal/seed"
	"ArenaPilot/internal/treasury"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler, arena supervision and the status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			return run(cfg)
		},
	}
}

func run(cfg *config.Config) error {
	log.Println("[INFO] ArenaPilot starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := agents.NewMemoryStore()

	// Arena manager
	var arenas arena.Manager
	if cfg.Simulated() {
		mem := arena.NewMemoryManager(cfg.Simulation.MatchDuration)
		mem.OnSettle(func(a model.Arena, entrants []string, result model.MatchResult) {
			agents.CreditMatch(store, entrants, a.EntryFee, result)
		})
		defer mem.Close()
		if err := loadSeed(cfg.Simulation.SeedFile, store, mem); err != nil {
			return err
		}
		arenas = mem
		log.Printf("[INFO] arena source: simulation (match duration %v)", cfg.Simulation.MatchDuration)
	} else {
		arenas = arena.NewHTTPManager(cfg.ArenaService.BaseURL, cfg.ArenaService.APIKey, cfg.Proxy, cfg.ArenaService.PollInterval)
		// Arenas come from the service; the seed file only supplies agents.
		if err := loadSeed(cfg.Simulation.SeedFile, store, nil); err != nil {
			return err
		}
		log.Printf("[INFO] arena source: %s", cfg.ArenaService.BaseURL)
	}

	// Event sinks
	bus := events.NewBus()

	var rec recorder.Recorder
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	if err != nil {
		log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
		rec = recorder.NewNoopRecorder()
	} else {
		rec = sr
	}
	defer rec.Close()
	bus.Subscribe("recorder", rec)

	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		bus.Subscribe("telegram", tn)
	}

	if cfg.NATS.URL != "" {
		nc, err := events.DialNATS(cfg.NATS.URL)
		if err != nil {
			log.Printf("[WARN] connect nats %s failed, events stay local: %v", cfg.NATS.URL, err)
		} else {
			defer nc.Drain()
			bus.Subscribe("nats", events.NewNATSSink(nc, cfg.NATS.SubjectPrefix))
			log.Printf("[INFO] publishing events to nats %s", cfg.NATS.URL)
		}
	}

	// Registered after the sinks so queued events drain before they close.
	defer bus.Close()

	// Post-match hook
	var hook coordinator.PostMatchHook
	var tv api.TreasuryView
	if cfg.Treasury.Enabled {
		tm, err := treasury.NewManager(cfg.Treasury.StateFile, store, cfg.Treasury.ProfitTarget, cfg.Treasury.RetainBalance)
		if err != nil {
			return fmt.Errorf("init treasury: %w", err)
		}
		hook, tv = tm, tm
	}

	tracker := eligibility.NewTracker(cfg.Scheduler.MatchCooldown)
	coord := coordinator.New(ctx, arenas, store, tracker, bus, hook, coordinator.Config{
		Cooldown:     cfg.Scheduler.MatchCooldown,
		MatchTimeout: cfg.Scheduler.MatchTimeout,
	})
	defer coord.Shutdown()

	sched := scheduler.NewScheduler(ctx, store, arenas, tracker, coord, scheduler.Config{
		ScanInterval:   cfg.Scheduler.ScanInterval,
		MinBudgetRatio: cfg.Scheduler.MinBudgetRatio,
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewServer(sched, store, rec, tv).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] http server: %v", err)
		}
	}()
	log.Printf("[INFO] status server listening on %s", cfg.HTTP.Addr)

	log.Println("[INFO] ArenaPilot is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] http shutdown: %v", err)
	}
	sched.Stop()
	cancel()
	log.Println("[INFO] ArenaPilot stopped")
	return nil
}

func loadSeed(path string, store *agents.MemoryStore, mem *arena.MemoryManager) error {
	if path == "" {
		log.Println("[WARN] no seed file configured, starting with no agents")
		return nil
	}
	f, err := seed.Load(path)
	if err != nil {
		return err
	}
	for _, a := range f.Agents {
		store.Put(a)
	}
	if mem != nil {
		for _, a := range f.Arenas {
			mem.AddArena(a)
		}
	}
	log.Printf("[INFO] seeded %d agents, %d arenas from %s", len(f.Agents), len(f.Arenas), path)
	return nil
}
