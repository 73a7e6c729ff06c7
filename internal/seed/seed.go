package seed

import (
	"fmt"
	"os"

	"ArenaPilot/internal/model"

	"gopkg.in/yaml.v3"
)

// File is the simulation seed: the agents and arenas to start with.
type File struct {
	Agents []model.Agent `yaml:"agents"`
	Arenas []model.Arena `yaml:"arenas"`
}

// Load reads a seed file. Agent ids are required; arena ids may be left
// empty and are assigned by the arena manager.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate rejects duplicate ids and out-of-range values.
func (f *File) Validate() error {
	agentIDs := make(map[string]bool, len(f.Agents))
	for i, a := range f.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if agentIDs[a.ID] {
			return fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID)
		}
		agentIDs[a.ID] = true
		if s := a.Strategy; s != nil {
			if s.RiskTolerance < 0 || s.RiskTolerance > 100 || s.Aggressiveness < 0 || s.Aggressiveness > 100 {
				return fmt.Errorf("agent %s: strategy values must be within 0..100", a.ID)
			}
			switch s.PreferredGameTypes {
			case model.PreferBattle, model.PreferRPS, model.PreferBoth, "":
			default:
				return fmt.Errorf("agent %s: unknown game preference %q", a.ID, s.PreferredGameTypes)
			}
		}
	}

	arenaIDs := make(map[string]bool, len(f.Arenas))
	for i, a := range f.Arenas {
		if a.ID != "" {
			if arenaIDs[a.ID] {
				return fmt.Errorf("arenas[%d]: duplicate id %q", i, a.ID)
			}
			arenaIDs[a.ID] = true
		}
		if a.EntryFee < 0 || a.PrizePool < 0 {
			return fmt.Errorf("arenas[%d]: fee and prize pool must not be negative", i)
		}
		if a.MaxAgents < 0 {
			return fmt.Errorf("arenas[%d]: max_agents must not be negative", i)
		}
		switch a.GameType {
		case model.GameBattle, model.GameRPS:
		default:
			return fmt.Errorf("arenas[%d]: unknown game type %q", i, a.GameType)
		}
	}
	return nil
}
