package model

import "time"

// TierName labels an arena class.
type TierName string

const (
	TierBronze   TierName = "Bronze"
	TierSilver   TierName = "Silver"
	TierGold     TierName = "Gold"
	TierPlatinum TierName = "Platinum"
	TierDiamond  TierName = "Diamond"
)

// GameType is the kind of match an arena hosts.
type GameType string

const (
	GameBattle GameType = "battle"
	// GameRPS is the quick game type.
	GameRPS GameType = "rps"
)

// ArenaState is the lifecycle state reported by the arena manager.
type ArenaState string

const (
	ArenaOpen       ArenaState = "open"
	ArenaLobby      ArenaState = "lobby"
	ArenaInProgress ArenaState = "in_progress"
	ArenaCompleted  ArenaState = "completed"
)

// Joinable reports whether new agents may enter the lobby.
func (s ArenaState) Joinable() bool {
	return s == ArenaOpen || s == ArenaLobby
}

// LobbyMember describes an agent waiting in a lobby.
type LobbyMember struct {
	AgentID string `json:"agent_id" yaml:"agent_id"`
	Name    string `json:"name" yaml:"name"`
}

// Lobby is the set of agents queued in an arena before the match starts.
type Lobby struct {
	Agents []LobbyMember `json:"agents"`
	Count  int           `json:"count"`
}

// Contains reports whether the agent is already queued.
func (l *Lobby) Contains(agentID string) bool {
	for _, m := range l.Agents {
		if m.AgentID == agentID {
			return true
		}
	}
	return false
}

// Arena is a joinable match owned by the arena manager.
type Arena struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Tier      TierName   `json:"tier" yaml:"tier"`
	EntryFee  float64    `json:"entry_fee" yaml:"entry_fee"`
	PrizePool float64    `json:"prize_pool" yaml:"prize_pool"`
	GameType  GameType   `json:"game_type" yaml:"game_type"`
	MaxAgents int        `json:"max_agents" yaml:"max_agents"`
	State     ArenaState `json:"state" yaml:"state"`
	Lobby     Lobby      `json:"lobby" yaml:"-"`
}

// MatchResult is the outcome declared by the arena manager.
type MatchResult struct {
	MatchID   string    `json:"match_id"`
	Winner    string    `json:"winner"`
	PrizePool float64   `json:"prize_pool"`
	EndedAt   time.Time `json:"ended_at"`
}

// MatchEventKind distinguishes lifecycle signals for an arena.
type MatchEventKind string

const (
	MatchCompleted MatchEventKind = "match_completed"
	MatchError     MatchEventKind = "match_error"
)

// MatchEvent is a lifecycle signal scoped to one arena.
type MatchEvent struct {
	Kind    MatchEventKind `json:"kind"`
	ArenaID string         `json:"arena_id"`
	Result  *MatchResult   `json:"result,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}
