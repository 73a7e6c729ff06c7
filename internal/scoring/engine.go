package scoring

import "ArenaPilot/internal/model"

// Rejected is the score of an arena that failed a gate. It can never win selection.
const Rejected = -1.0

// Tier is one band of the risk table.
type Tier struct {
	Name        model.TierName
	MaxEntryFee float64
}

// Tiers maps risk-tolerance percentile bands to the highest entry fee an agent may pay.
var Tiers = []struct {
	MinRisk float64
	Tier    Tier
}{
	{85, Tier{Name: model.TierDiamond, MaxEntryFee: 2}},
	{70, Tier{Name: model.TierPlatinum, MaxEntryFee: 1}},
	{50, Tier{Name: model.TierGold, MaxEntryFee: 0.5}},
	{30, Tier{Name: model.TierSilver, MaxEntryFee: 0.2}},
}

// DefaultTier is the band for risk tolerance below 30.
var DefaultTier = Tier{Name: model.TierBronze, MaxEntryFee: 0.1}

// TierFor maps a 0-100 risk tolerance to its band.
func TierFor(riskTolerance float64) Tier {
	for _, t := range Tiers {
		if riskTolerance >= t.MinRisk {
			return t.Tier
		}
	}
	return DefaultTier
}

// ScoreArena rates how desirable an arena is for an agent. It returns
// Rejected when a gate fails. It does not mutate its arguments.
func ScoreArena(agent *model.Agent, arena *model.Arena) float64 {
	if agent.Strategy == nil {
		return Rejected
	}
	p := agent.Strategy

	if !withinTier(p.RiskTolerance, arena.EntryFee) {
		return Rejected
	}
	if !withinBudget(agent.Stats.Earnings, arena.EntryFee) {
		return Rejected
	}
	if arena.Lobby.Contains(agent.ID) {
		return Rejected
	}

	return riskScore(p.RiskTolerance, arena.EntryFee) *
		prizeAttractiveness(arena.PrizePool, arena.EntryFee) *
		lobbyFactor(arena.Lobby.Count, arena.MaxAgents) *
		aggressionBonus(p.Aggressiveness)
}

// EvaluateBestArena returns the candidate with the strictly highest positive
// score. Equal scores keep the earlier candidate. Candidates are filtered by
// the agent's game preference first.
func EvaluateBestArena(agent *model.Agent, candidates []model.Arena) (*model.Arena, float64, bool) {
	if agent.Strategy == nil {
		return nil, 0, false
	}
	filtered := FilterByPreference(candidates, agent.Strategy.PreferredGameTypes)

	var best *model.Arena
	bestScore := 0.0
	for i := range filtered {
		score := ScoreArena(agent, &filtered[i])
		if score > 0 && score > bestScore {
			best = &filtered[i]
			bestScore = score
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestScore, true
}

// FilterByPreference returns the arenas whose game type matches the preference.
// The input slice is not modified.
func FilterByPreference(arenas []model.Arena, pref model.GamePreference) []model.Arena {
	out := make([]model.Arena, 0, len(arenas))
	for _, a := range arenas {
		switch pref {
		case model.PreferBattle:
			if a.GameType == model.GameRPS {
				continue
			}
		case model.PreferRPS:
			if a.GameType != model.GameRPS {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}
