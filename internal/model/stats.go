package model

// SchedulerStats is the host-facing snapshot of the matchmaking scheduler.
type SchedulerStats struct {
	Running          bool                        `json:"running"`
	TotalAgents      int                         `json:"total_agents"`
	AutonomousAgents int                         `json:"autonomous_agent_count"`
	ActiveMatches    map[string]string           `json:"active_matches"`
	Eligibility      map[string]EligibilityState `json:"eligibility"`
	ScanCount        int64                       `json:"scan_count"`
	JoinCount        int64                       `json:"join_count"`
	MinBudgetRatio   float64                     `json:"min_budget_ratio"`
}
