package agents

import (
	"strings"
	"testing"

	"github.com/nurv/edsl/internal/scenarios"
	"github.com/nurv/edsl/internal/surveys"
)

func TestSystemPromptComposesInstructionAndTraits(t *testing.T) {
	agent := NewAgent("sam", map[string]any{"age": 34, "occupation": "barista"})
	prompt := agent.SystemPrompt()

	if !strings.HasPrefix(prompt, DefaultInstruction) {
		t.Errorf("prompt should open with the instruction, got %q", prompt)
	}
	if !strings.Contains(prompt, "age: 34") || !strings.Contains(prompt, "occupation: barista") {
		t.Errorf("traits missing from prompt %q", prompt)
	}
	// Sorted trait order keeps fingerprints stable.
	if strings.Index(prompt, "age:") > strings.Index(prompt, "occupation:") {
		t.Errorf("traits not sorted in %q", prompt)
	}
}

func TestSystemPromptWithoutTraits(t *testing.T) {
	agent := &Agent{Instruction: "Answer as a pirate."}
	if got := agent.SystemPrompt(); got != "Answer as a pirate." {
		t.Errorf("SystemPrompt = %q", got)
	}
	empty := &Agent{}
	if got := empty.SystemPrompt(); got != DefaultInstruction {
		t.Errorf("empty agent should fall back to the default instruction, got %q", got)
	}
}

func TestBuildPromptsRendersScenarioAndOptions(t *testing.T) {
	question, err := surveys.NewMultipleChoiceQuestion("drink", "Pick a {{ beverage }}.", []string{"hot", "iced"})
	if err != nil {
		t.Fatal(err)
	}
	iv := NewInvigilator(NewAgent("sam", nil), scenarios.Scenario{"beverage": "coffee"})

	prompts := iv.BuildPrompts(question, nil)
	if !strings.Contains(prompts.User, "Pick a coffee.") {
		t.Errorf("scenario not substituted in %q", prompts.User)
	}
	if !strings.Contains(prompts.User, "0: hot") || !strings.Contains(prompts.User, "1: iced") {
		t.Errorf("options missing from %q", prompts.User)
	}
	if !strings.Contains(prompts.User, question.Instructions()) {
		t.Errorf("instructions missing from %q", prompts.User)
	}
}

func TestBuildPromptsIncludesMemory(t *testing.T) {
	question, err := surveys.NewFreeTextQuestion("followup", "Why?")
	if err != nil {
		t.Fatal(err)
	}
	iv := NewInvigilator(nil, nil)

	memory := []MemoryEntry{{QuestionText: "Do you like coffee?", Answer: "yes"}}
	prompts := iv.BuildPrompts(question, memory)
	if !strings.Contains(prompts.User, "Do you like coffee?") || !strings.Contains(prompts.User, "Your answer: yes") {
		t.Errorf("memory context missing from %q", prompts.User)
	}
	// Memory comes before the question being asked.
	if strings.Index(prompts.User, "Your answer: yes") > strings.Index(prompts.User, "Why?") {
		t.Errorf("memory should precede the question in %q", prompts.User)
	}
}

func TestValidateResponseDecodesAndValidates(t *testing.T) {
	question, err := surveys.NewYesNoQuestion("likes_coffee", "Do you like coffee?")
	if err != nil {
		t.Fatal(err)
	}
	iv := NewInvigilator(nil, nil)

	answer, err := iv.ValidateResponse(question, "```json\n{\"answer\": 0, \"comment\": \"love it\"}\n```")
	if err != nil {
		t.Fatalf("ValidateResponse: %v", err)
	}
	if answer.Value != "yes" || answer.Comment != "love it" {
		t.Errorf("unexpected answer %+v", answer)
	}
}

func TestParseAgents(t *testing.T) {
	data := []byte(`
agents:
  - name: sam
    traits:
      age: 34
  - name: alex
    instruction: Answer tersely.
`)
	agents, err := ParseAgents(data)
	if err != nil {
		t.Fatalf("ParseAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents", len(agents))
	}
	if agents[0].Instruction != DefaultInstruction {
		t.Errorf("missing default instruction: %q", agents[0].Instruction)
	}
	if agents[1].Instruction != "Answer tersely." {
		t.Errorf("instruction overridden: %q", agents[1].Instruction)
	}
}

func TestParseAgentsRejectsDuplicates(t *testing.T) {
	data := []byte("agents:\n  - name: sam\n  - name: sam\n")
	if _, err := ParseAgents(data); err == nil {
		t.Error("expected duplicate name error")
	}
}

func TestParseAgentsEmptyYieldsBlankAgent(t *testing.T) {
	agents, err := ParseAgents([]byte(""))
	if err != nil {
		t.Fatalf("ParseAgents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("got %d agents, want the blank default", len(agents))
	}
}
