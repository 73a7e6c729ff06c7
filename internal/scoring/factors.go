package scoring

import "math"

// withinTier checks the entry fee against the agent's risk band.
func withinTier(riskTolerance, entryFee float64) bool {
	return entryFee <= TierFor(riskTolerance).MaxEntryFee
}

// withinBudget rejects fees above half the agent's earnings.
// Agents with no earnings yet are exempt so they can play their first match.
func withinBudget(earnings, entryFee float64) bool {
	if earnings <= 0 {
		return true
	}
	return entryFee <= 0.5*earnings
}

// riskScore prefers cheap arenas; expensive ones are scaled by risk tolerance.
func riskScore(riskTolerance, entryFee float64) float64 {
	r := riskTolerance / 100
	switch {
	case entryFee <= 0.2:
		return 1.0
	case entryFee <= 1:
		return 0.5 + 0.5*r
	default:
		return r
	}
}

// prizeAttractiveness grows with the pot, with diminishing returns.
func prizeAttractiveness(prizePool, entryFee float64) float64 {
	return math.Log(prizePool + entryFee + 1)
}

// lobbyFactor favours arenas that are close to filling.
func lobbyFactor(lobbySize, maxAgents int) float64 {
	if maxAgents <= 0 {
		return 1
	}
	return 1 + float64(lobbySize)/float64(maxAgents)
}

func aggressionBonus(aggressiveness float64) float64 {
	return 0.5 + 0.5*(aggressiveness/100)
}
