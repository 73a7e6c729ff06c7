package arena

import (
	"context"
	"errors"

	"ArenaPilot/internal/model"
)

var (
	ErrUnknownArena  = errors.New("unknown arena")
	ErrArenaFull     = errors.New("arena lobby is full")
	ErrAlreadyJoined = errors.New("agent already in arena")
	ErrNotJoinable   = errors.New("arena is not accepting agents")
	ErrNoMatch       = errors.New("arena has no running match")
	ErrNotInLobby    = errors.New("agent not in arena lobby")
)

// Manager is the authoritative store of arenas and lobbies.
type Manager interface {
	// ListArenas returns arenas in any of the given states (all when none given).
	ListArenas(ctx context.Context, states ...model.ArenaState) ([]model.Arena, error)
	GetLobby(ctx context.Context, arenaID string) (model.Lobby, error)
	// JoinArena adds the agent to the lobby and returns the new lobby size.
	JoinArena(ctx context.Context, arenaID string, member model.LobbyMember) (int, error)
	// Watch subscribes to lifecycle events of one arena. The returned func
	// unsubscribes; no events are delivered after it returns.
	Watch(arenaID string) (<-chan model.MatchEvent, func())
}

// Leaver is implemented by managers that can take an agent back out of a lobby.
type Leaver interface {
	LeaveArena(ctx context.Context, arenaID, agentID string) error
}

func stateMatches(s model.ArenaState, states []model.ArenaState) bool {
	if len(states) == 0 {
		return true
	}
	for _, want := range states {
		if s == want {
			return true
		}
	}
	return false
}
