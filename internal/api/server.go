package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"ArenaPilot/internal/agents"
	"ArenaPilot/internal/model"
	"ArenaPilot/internal/recorder"
	"ArenaPilot/internal/treasury"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SchedulerView is the part of the scheduler the status surface reads.
type SchedulerView interface {
	Stats() model.SchedulerStats
	Scan(ctx context.Context) error
}

// ResultSource returns recorded match history.
type ResultSource interface {
	RecentResults(ctx context.Context, limit int) ([]recorder.ResultRow, error)
}

// TreasuryView exposes withdrawal totals. It is optional.
type TreasuryView interface {
	Account(agentID string) treasury.AccountState
	TotalWithdrawn() float64
}

// AgentView is one agent joined with its eligibility record.
type AgentView struct {
	model.Agent
	Eligibility model.EligibilityState `json:"eligibility"`
}

// Server is the read-mostly HTTP status surface.
type Server struct {
	Scheduler SchedulerView
	Agents    agents.Store
	Results   ResultSource
	Treasury  TreasuryView

	router    chi.Router
	startTime time.Time
}

// NewServer builds the router. results and treasury may be nil.
func NewServer(sched SchedulerView, store agents.Store, results ResultSource, tv TreasuryView) *Server {
	s := &Server{
		Scheduler: sched,
		Agents:    store,
		Results:   results,
		Treasury:  tv,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.handleAgents)
		r.Get("/{id}", s.handleAgent)
	})
	r.Get("/results", s.handleResults)
	r.Post("/scan", s.handleScan)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "healthy",
		"running": s.Scheduler.Stats().Running,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.Treasury != nil {
		resp["treasury_withdrawn"] = s.Treasury.TotalWithdrawn()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.Scheduler.Stats())
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	elig := s.Scheduler.Stats().Eligibility
	list := s.Agents.List()
	out := make([]AgentView, 0, len(list))
	for _, a := range list {
		out = append(out, AgentView{Agent: a, Eligibility: elig[a.ID]})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, err := s.Agents.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	resp := map[string]any{
		"agent":       a,
		"eligibility": s.Scheduler.Stats().Eligibility[id],
	}
	if s.Treasury != nil {
		resp["treasury"] = s.Treasury.Account(id)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.Results == nil {
		respondJSON(w, http.StatusOK, []recorder.ResultRow{})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	rows, err := s.Results.RecentResults(r.Context(), limit)
	if err != nil {
		log.Printf("[ERROR] query recent results: %v", err)
		respondError(w, http.StatusInternalServerError, "query results failed")
		return
	}
	if rows == nil {
		rows = []recorder.ResultRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := s.Scheduler.Scan(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.Scheduler.Stats())
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] encode response: %v", err)
	}
}
