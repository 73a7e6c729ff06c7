package recorder

import (
	"context"
	"time"

	"ArenaPilot/internal/events"
)

// ResultRow is one recorded match result for an agent.
type ResultRow struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	ArenaID   string    `json:"arena_id"`
	MatchID   string    `json:"match_id"`
	Status    string    `json:"status"`
	Winner    string    `json:"winner"`
	PrizePool float64   `json:"prize_pool"`
}

// Recorder persists match history for analysis. It consumes bus events.
type Recorder interface {
	events.Sink
	RecentResults(ctx context.Context, limit int) ([]ResultRow, error)
	Close() error
}
