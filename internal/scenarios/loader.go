package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// scenarioList is the on-disk shape: a document with a "scenarios"
// sequence of binding maps.
type scenarioList struct {
	Scenarios []map[string]any `yaml:"scenarios"`
}

// LoadScenarios reads a YAML scenario list. An empty file yields one
// empty scenario so every job runs at least once per agent and model.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario list %s: %w", path, err)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes a YAML scenario list from bytes.
func ParseScenarios(data []byte) ([]Scenario, error) {
	var list scenarioList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse scenario list: %w", err)
	}
	if len(list.Scenarios) == 0 {
		return []Scenario{Empty()}, nil
	}

	scenarios := make([]Scenario, 0, len(list.Scenarios))
	for _, bindings := range list.Scenarios {
		scenarios = append(scenarios, Scenario(bindings))
	}
	return scenarios, nil
}
