package agents

import (
	"fmt"
	"strings"

	"github.com/nurv/edsl/internal/models"
	"github.com/nurv/edsl/internal/scenarios"
	"github.com/nurv/edsl/internal/surveys"
)

// MemoryEntry is one prior question and its validated answer, replayed
// into the user prompt when the survey's memory plan remembers it.
type MemoryEntry struct {
	QuestionText string
	Answer       any
}

// Prompts is the assembled pair handed to the language model.
type Prompts struct {
	System string
	User   string
}

// Invigilator assembles the prompts presenting one question to one agent
// under one scenario. Prompt strings are opaque to everything downstream;
// the fingerprint hashes them as bytes.
type Invigilator struct {
	agent    *Agent
	scenario scenarios.Scenario
}

// NewInvigilator pairs an agent with a scenario for one interview.
func NewInvigilator(agent *Agent, scenario scenarios.Scenario) *Invigilator {
	if agent == nil {
		agent = NewAgent("", nil)
	}
	if scenario == nil {
		scenario = scenarios.Empty()
	}
	return &Invigilator{agent: agent, scenario: scenario}
}

// Agent returns the persona under interview.
func (iv *Invigilator) Agent() *Agent {
	return iv.agent
}

// Scenario returns the template bindings in play.
func (iv *Invigilator) Scenario() scenarios.Scenario {
	return iv.scenario
}

// BuildPrompts renders the question for the model: scenario-substituted
// question text, options, formatting instructions and remembered answers.
func (iv *Invigilator) BuildPrompts(question surveys.Question, memory []MemoryEntry) Prompts {
	var b strings.Builder

	if len(memory) > 0 {
		b.WriteString("Earlier in this interview you were asked:\n")
		for _, entry := range memory {
			fmt.Fprintf(&b, "Question: %s\nYour answer: %v\n", iv.scenario.Render(entry.QuestionText), entry.Answer)
		}
		b.WriteString("\n")
	}

	b.WriteString(iv.scenario.Render(question.Text()))
	b.WriteString("\n")

	if options := question.OptionsText(iv.scenario); options != "" {
		b.WriteString("\n")
		b.WriteString(options)
	}

	if instructions := question.Instructions(); instructions != "" {
		b.WriteString("\n")
		b.WriteString(instructions)
		b.WriteString("\n")
	}

	return Prompts{
		System: iv.agent.SystemPrompt(),
		User:   b.String(),
	}
}

// ValidateResponse decodes the model's text and runs the question's
// validation, translating codes through the scenario.
func (iv *Invigilator) ValidateResponse(question surveys.Question, text string) (models.Answer, error) {
	raw, err := surveys.DecodeRawAnswer(text)
	if err != nil {
		return models.Answer{}, err
	}
	return question.ValidateAnswer(raw, iv.scenario)
}
