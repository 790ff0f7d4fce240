// Package jobs materializes a survey across agents, scenarios and models
// into interviews and runs them concurrently.
package jobs

import (
	"fmt"

	"github.com/nurv/edsl/internal/agents"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/scenarios"
	"github.com/nurv/edsl/internal/surveys"
)

// Jobs is the fluent job builder: a survey crossed with agents, scenarios
// and models. Empty dimensions default to a single blank element so the
// cross product is never empty.
type Jobs struct {
	survey    *surveys.Survey
	agents    []*agents.Agent
	scenarios []scenarios.Scenario
	models    []interfaces.LanguageModel
}

// NewJobs starts a job from a survey.
func NewJobs(survey *surveys.Survey) *Jobs {
	return &Jobs{survey: survey}
}

// ByAgents crosses the job with the given agents.
func (j *Jobs) ByAgents(list ...*agents.Agent) *Jobs {
	j.agents = append(j.agents, list...)
	return j
}

// ByScenarios crosses the job with the given scenarios.
func (j *Jobs) ByScenarios(list ...scenarios.Scenario) *Jobs {
	j.scenarios = append(j.scenarios, list...)
	return j
}

// ByModels crosses the job with the given models.
func (j *Jobs) ByModels(list ...interfaces.LanguageModel) *Jobs {
	j.models = append(j.models, list...)
	return j
}

// Survey returns the job's survey.
func (j *Jobs) Survey() *surveys.Survey {
	return j.survey
}

// combination is one point of the cross product before iteration fan-out.
type combination struct {
	agent    *agents.Agent
	scenario scenarios.Scenario
	model    interfaces.LanguageModel
}

// combinations expands agents x scenarios x models, substituting the
// blank defaults for empty dimensions.
func (j *Jobs) combinations() ([]combination, error) {
	if j.survey == nil {
		return nil, fmt.Errorf("job has no survey")
	}
	if len(j.models) == 0 {
		return nil, fmt.Errorf("job has no models")
	}

	agentList := j.agents
	if len(agentList) == 0 {
		agentList = []*agents.Agent{agents.NewAgent("", nil)}
	}
	scenarioList := j.scenarios
	if len(scenarioList) == 0 {
		scenarioList = []scenarios.Scenario{scenarios.Empty()}
	}

	var combos []combination
	for _, agent := range agentList {
		for _, scenario := range scenarioList {
			for _, model := range j.models {
				combos = append(combos, combination{agent: agent, scenario: scenario, model: model})
			}
		}
	}
	return combos, nil
}

// Size returns the number of interviews n iterations will produce.
func (j *Jobs) Size(iterations int) int {
	if iterations < 1 {
		iterations = 1
	}
	numAgents := len(j.agents)
	if numAgents == 0 {
		numAgents = 1
	}
	numScenarios := len(j.scenarios)
	if numScenarios == 0 {
		numScenarios = 1
	}
	return numAgents * numScenarios * len(j.models) * iterations
}
