package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"ArenaPilot/internal/events"
	"ArenaPilot/internal/model"
)

// FormatMatchResult formats a finished match for one agent.
func FormatMatchResult(evt events.Event) string {
	var b strings.Builder
	icon := "💀"
	if evt.Status == model.StatusWon {
		icon = "🏆"
	}
	name := evt.AgentName
	if name == "" {
		name = evt.AgentID
	}
	b.WriteString(fmt.Sprintf("%s <b>%s %s</b> | arena %s\n", icon, name, evt.Status, evt.ArenaID))
	if evt.Result != nil {
		b.WriteString(fmt.Sprintf("Winner: %s\n", evt.Result.Winner))
		b.WriteString(fmt.Sprintf("Prize pool: %.2f\n", evt.Result.PrizePool))
	}
	return b.String()
}

// FormatMatchAborted formats a match that ended by error or timeout.
func FormatMatchAborted(evt events.Event) string {
	return fmt.Sprintf("⚠️ <b>%s released</b> from arena %s: %s", evt.AgentID, evt.ArenaID, evt.Reason)
}

// FormatStats formats the scheduler snapshot for display.
func FormatStats(s model.SchedulerStats) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>ArenaPilot</b> | %s\n\n", time.Now().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Running: %v\n", s.Running))
	b.WriteString(fmt.Sprintf("Agents: %d (autonomous %d)\n", s.TotalAgents, s.AutonomousAgents))
	b.WriteString(fmt.Sprintf("Active matches: %d\n", len(s.ActiveMatches)))
	b.WriteString(fmt.Sprintf("Scans: %d | Joins: %d\n", s.ScanCount, s.JoinCount))
	return b.String()
}

// FormatAgents lists each agent with its eligibility record.
func FormatAgents(list []model.Agent, elig map[string]model.EligibilityState) string {
	if len(list) == 0 {
		return "No agents registered."
	}
	sorted := append([]model.Agent(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	b.WriteString("🤖 <b>Agents</b>\n\n")
	for _, a := range sorted {
		st := elig[a.ID]
		b.WriteString(fmt.Sprintf("%s: %s | earnings %.2f | matches %d", a.ID, a.Status, a.Stats.Earnings, st.MatchCount))
		if st.InMatch {
			b.WriteString(fmt.Sprintf(" | in %s", a.CurrentArenaID))
		}
		b.WriteString("\n")
	}
	return b.String()
}
