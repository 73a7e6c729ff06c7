package treasury

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"ArenaPilot/internal/agents"
	"ArenaPilot/internal/model"
)

const maxRecent = 50

// Manager withdraws profits from agents whose earnings reach the target,
// leaving RetainBalance in play. It is used as the post-match hook.
type Manager struct {
	mu            sync.Mutex
	state         *State
	filePath      string
	store         agents.Store
	profitTarget  float64
	retainBalance float64
}

// NewManager creates a Manager, loading or initializing state from disk.
func NewManager(filePath string, store agents.Store, profitTarget, retainBalance float64) (*Manager, error) {
	if profitTarget <= 0 {
		return nil, fmt.Errorf("profit target must be positive")
	}
	if retainBalance < 0 || retainBalance >= profitTarget {
		return nil, fmt.Errorf("retain balance must be in [0, profit target)")
	}
	state, err := LoadState(filePath)
	if err != nil {
		return nil, fmt.Errorf("load treasury state: %w", err)
	}
	m := &Manager{
		state:         state,
		filePath:      filePath,
		store:         store,
		profitTarget:  profitTarget,
		retainBalance: retainBalance,
	}
	if err := m.save(); err != nil {
		return nil, fmt.Errorf("save treasury state: %w", err)
	}
	return m, nil
}

// AfterMatch withdraws everything above the retained balance once the agent's
// earnings reach the profit target.
func (m *Manager) AfterMatch(_ context.Context, agent model.Agent, result model.MatchResult) error {
	if agent.Stats.Earnings < m.profitTarget {
		return nil
	}

	var amount float64
	if _, err := m.store.Update(agent.ID, func(a *model.Agent) {
		if a.Stats.Earnings < m.profitTarget {
			return
		}
		amount = a.Stats.Earnings - m.retainBalance
		a.Stats.Earnings = m.retainBalance
	}); err != nil {
		return fmt.Errorf("withdraw for %s: %w", agent.ID, err)
	}
	if amount <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.state.Accounts[agent.ID]
	if !ok {
		acct = &AccountState{}
		m.state.Accounts[agent.ID] = acct
	}
	now := time.Now()
	acct.TotalWithdrawn += amount
	acct.Withdrawals++
	acct.LastWithdrawAt = now

	m.state.Recent = append(m.state.Recent, Withdrawal{AgentID: agent.ID, Amount: amount, MatchID: result.MatchID, At: now})
	if len(m.state.Recent) > maxRecent {
		m.state.Recent = m.state.Recent[len(m.state.Recent)-maxRecent:]
	}

	log.Printf("[INFO] treasury withdrew %.2f from agent %s (total %.2f)", amount, agent.ID, acct.TotalWithdrawn)
	if err := m.save(); err != nil {
		return fmt.Errorf("save treasury state: %w", err)
	}
	return nil
}

// Account returns a copy of an agent's withdrawal record.
func (m *Manager) Account(agentID string) AccountState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct, ok := m.state.Accounts[agentID]; ok {
		return *acct
	}
	return AccountState{}
}

// TotalWithdrawn sums withdrawals across all agents.
func (m *Manager) TotalWithdrawn() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, a := range m.state.Accounts {
		sum += a.TotalWithdrawn
	}
	return sum
}

func (m *Manager) save() error {
	return SaveState(m.filePath, m.state)
}
