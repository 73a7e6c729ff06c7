package treasury

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Withdrawal is one profit-taking transfer.
type Withdrawal struct {
	AgentID string    `json:"agent_id"`
	Amount  float64   `json:"amount"`
	MatchID string    `json:"match_id"`
	At      time.Time `json:"at"`
}

// AccountState is the cumulative withdrawal record for one agent.
type AccountState struct {
	TotalWithdrawn float64   `json:"total_withdrawn"`
	Withdrawals    int       `json:"withdrawals"`
	LastWithdrawAt time.Time `json:"last_withdraw_at"`
}

// State is persisted between runs.
type State struct {
	Accounts  map[string]*AccountState `json:"accounts"`
	Recent    []Withdrawal             `json:"recent"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// LoadState reads the treasury state from a JSON file. Returns an empty state if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{Accounts: make(map[string]*AccountState)}, nil
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state.Accounts == nil {
		state.Accounts = make(map[string]*AccountState)
	}
	return &state, nil
}

// SaveState writes the treasury state to a JSON file.
func SaveState(filePath string, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}
