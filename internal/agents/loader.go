package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// agentList is the on-disk shape: a document with an "agents" sequence.
type agentList struct {
	Agents []Agent `yaml:"agents"`
}

// LoadAgents reads a YAML agent list. Agents without an instruction get
// the default one; an empty file yields a single blank agent so every job
// has at least one interviewee.
func LoadAgents(path string) ([]*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent list %s: %w", path, err)
	}
	return ParseAgents(data)
}

// ParseAgents decodes a YAML agent list from bytes.
func ParseAgents(data []byte) ([]*Agent, error) {
	var list agentList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse agent list: %w", err)
	}
	if len(list.Agents) == 0 {
		return []*Agent{NewAgent("", nil)}, nil
	}

	agents := make([]*Agent, 0, len(list.Agents))
	seen := make(map[string]bool, len(list.Agents))
	for i := range list.Agents {
		agent := list.Agents[i]
		if agent.Name != "" {
			if seen[agent.Name] {
				return nil, fmt.Errorf("duplicate agent name %q", agent.Name)
			}
			seen[agent.Name] = true
		}
		if agent.Instruction == "" {
			agent.Instruction = DefaultInstruction
		}
		agents = append(agents, &agent)
	}
	return agents, nil
}
