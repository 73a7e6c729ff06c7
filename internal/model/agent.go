package model

import "time"

// AgentStatus is the externally visible lifecycle state of an agent.
type AgentStatus string

const (
	StatusIdle      AgentStatus = "idle"
	StatusSearching AgentStatus = "searching"
	StatusFighting  AgentStatus = "fighting"
	StatusWon       AgentStatus = "won"
	StatusLost      AgentStatus = "lost"
)

// IsSearching reports whether the status puts the agent in the matchmaking pool.
func (s AgentStatus) IsSearching() bool {
	return s == StatusIdle || s == StatusSearching
}

// IsSettled reports whether the status is a post-match result.
func (s AgentStatus) IsSettled() bool {
	return s == StatusWon || s == StatusLost
}

// GamePreference selects which arena game types an agent will enter.
type GamePreference string

const (
	PreferBattle GamePreference = "battle"
	PreferRPS    GamePreference = "rps"
	PreferBoth   GamePreference = "both"
)

// StrategyParams is the decision strategy attached to an autonomous agent.
type StrategyParams struct {
	RiskTolerance      float64        `json:"risk_tolerance" yaml:"risk_tolerance"`   // 0 ~ 100
	Aggressiveness     float64        `json:"aggressiveness" yaml:"aggressiveness"`   // 0 ~ 100
	PreferredGameTypes GamePreference `json:"preferred_game_types" yaml:"preferred_game_types"`
}

// AgentStats holds accumulated results for an agent.
type AgentStats struct {
	Earnings float64 `json:"earnings" yaml:"earnings"`
	Wins     int     `json:"wins" yaml:"wins"`
	Losses   int     `json:"losses" yaml:"losses"`
}

// Buff is a temporary modifier that expires after a number of matches.
type Buff struct {
	Name        string    `json:"name" yaml:"name"`
	MatchesLeft int       `json:"matches_left" yaml:"matches_left"`
	ExpiresAt   time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Agent is a participant owned by the agent store. Strategy is nil for
// agents that are not driven by the scheduler.
type Agent struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Status         AgentStatus     `json:"status" yaml:"status"`
	Strategy       *StrategyParams `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Stats          AgentStats      `json:"stats" yaml:"stats"`
	Buffs          []Buff          `json:"buffs,omitempty" yaml:"buffs,omitempty"`
	CurrentArenaID string          `json:"current_arena_id,omitempty" yaml:"-"`
}

// Autonomous reports whether a decision strategy is attached.
func (a *Agent) Autonomous() bool {
	return a.Strategy != nil
}

// Clone returns a deep copy safe to hand out of a store.
func (a Agent) Clone() Agent {
	if a.Strategy != nil {
		s := *a.Strategy
		a.Strategy = &s
	}
	if a.Buffs != nil {
		a.Buffs = append([]Buff(nil), a.Buffs...)
	}
	return a
}
