// -----------------------------------------------------------------------
// Job definition: one TOML file describing the survey, the models, and
// the agent/scenario lists for a run
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/nurv/edsl/internal/agents"
	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/jobs"
	"github.com/nurv/edsl/internal/language_models"
	"github.com/nurv/edsl/internal/results"
	"github.com/nurv/edsl/internal/scenarios"
	"github.com/nurv/edsl/internal/surveys"
)

// JobDefinition is the root of a job file. Agents and scenarios can be
// inline tables or references to YAML files; file references win when
// both are present.
type JobDefinition struct {
	Name   string `toml:"name"`
	Output string `toml:"output"`

	Survey surveys.SurveyDefinition `toml:"survey" validate:"required"`
	Models []language_models.Spec   `toml:"models" validate:"required,min=1,dive"`

	Agents        []agents.Agent       `toml:"agents"`
	AgentsFile    string               `toml:"agents_file"`
	Scenarios     []scenarios.Scenario `toml:"scenarios"`
	ScenariosFile string               `toml:"scenarios_file"`

	// Run overrides the application run settings for this job only.
	Run common.RunConfig `toml:"run"`
}

// LoadJob parses a job file. The [run] section starts from the
// application defaults so the file only needs to name what it changes.
// Relative agents/scenarios paths resolve against the job file's
// directory.
func LoadJob(path string, runDefaults common.RunConfig) (*JobDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file %s: %w", path, err)
	}

	def := &JobDefinition{Run: runDefaults}
	if err := toml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}
	if err := validator.New().Struct(def); err != nil {
		return nil, fmt.Errorf("invalid job file %s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = filepath.Base(path)
	}

	base := filepath.Dir(path)
	if def.AgentsFile != "" && !filepath.IsAbs(def.AgentsFile) {
		def.AgentsFile = filepath.Join(base, def.AgentsFile)
	}
	if def.ScenariosFile != "" && !filepath.IsAbs(def.ScenariosFile) {
		def.ScenariosFile = filepath.Join(base, def.ScenariosFile)
	}
	return def, nil
}

// resolveAgents returns the job's agent list, loading the YAML file when
// one is referenced. Inline agents with no instruction get the default.
func (d *JobDefinition) resolveAgents() ([]*agents.Agent, error) {
	if d.AgentsFile != "" {
		return agents.LoadAgents(d.AgentsFile)
	}
	list := make([]*agents.Agent, 0, len(d.Agents))
	for i := range d.Agents {
		agent := d.Agents[i]
		if agent.Instruction == "" {
			agent.Instruction = agents.DefaultInstruction
		}
		list = append(list, &agent)
	}
	return list, nil
}

// resolveScenarios returns the job's scenario list, loading the YAML
// file when one is referenced.
func (d *JobDefinition) resolveScenarios() ([]scenarios.Scenario, error) {
	if d.ScenariosFile != "" {
		return scenarios.LoadScenarios(d.ScenariosFile)
	}
	return d.Scenarios, nil
}

// BuildJob assembles the runnable job from a definition: survey, model
// adapters, agents and scenarios.
func (a *App) BuildJob(def *JobDefinition) (*jobs.Jobs, error) {
	survey, err := surveys.BuildSurvey(def.Survey)
	if err != nil {
		return nil, err
	}

	modelList := make([]interfaces.LanguageModel, 0, len(def.Models))
	for _, spec := range def.Models {
		model, err := language_models.New(spec, &a.Config.Models, a.Logger)
		if err != nil {
			return nil, err
		}
		modelList = append(modelList, model)
	}

	agentList, err := def.resolveAgents()
	if err != nil {
		return nil, err
	}
	scenarioList, err := def.resolveScenarios()
	if err != nil {
		return nil, err
	}

	return jobs.NewJobs(survey).
		ByAgents(agentList...).
		ByScenarios(scenarioList...).
		ByModels(modelList...), nil
}

// RunJob executes a job definition end to end: cache session around the
// run, results written to the definition's output path when one is set.
func (a *App) RunJob(ctx context.Context, def *JobDefinition) (*results.Results, error) {
	job, err := a.BuildJob(def)
	if err != nil {
		return nil, err
	}

	a.Logger.Info().
		Str("job", def.Name).
		Int("interviews", job.Size(def.Run.Iterations)).
		Msg("Job assembled")

	a.EnterCacheSession(ctx)
	defer a.ExitCacheSession()

	runner := jobs.NewRunner(&def.Run, a.Logger)
	collected, err := runner.Run(ctx, job, a.Cache)
	if err != nil {
		return collected, err
	}

	if def.Output != "" {
		if err := collected.SaveJSON(def.Output); err != nil {
			return collected, fmt.Errorf("failed to write results: %w", err)
		}
		a.Logger.Info().Str("path", def.Output).Int("rows", collected.Len()).Msg("Results written")
	}
	return collected, nil
}
