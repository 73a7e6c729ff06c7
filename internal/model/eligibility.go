package model

import "time"

// EligibilityState is the scheduler's per-agent cooldown and exclusivity record.
type EligibilityState struct {
	LastMatchTime time.Time `json:"last_match_time"`
	InMatch       bool      `json:"in_match"`
	MatchCount    int       `json:"match_count"`
}

// ReleaseOutcome says why an agent left a match.
type ReleaseOutcome string

const (
	OutcomeCompleted  ReleaseOutcome = "completed"
	OutcomeErrored    ReleaseOutcome = "errored"
	OutcomeTimedOut   ReleaseOutcome = "timed_out"
	OutcomeJoinFailed ReleaseOutcome = "join_failed"
)
