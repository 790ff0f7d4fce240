// Package agents holds the persona answering a survey and the prompt
// assembly that presents each question to a language model.
package agents

import (
	"fmt"
	"sort"
	"strings"
)

// Agent is one persona: a name, a trait map folded into the system prompt
// and an optional free-form instruction.
type Agent struct {
	Name        string         `toml:"name" yaml:"name"`
	Traits      map[string]any `toml:"traits" yaml:"traits"`
	Instruction string         `toml:"instruction" yaml:"instruction"`
}

// DefaultInstruction is used when an agent carries none.
const DefaultInstruction = "You are answering questions as if you were a human. Do not break character."

// NewAgent creates an agent with the default instruction.
func NewAgent(name string, traits map[string]any) *Agent {
	return &Agent{Name: name, Traits: traits, Instruction: DefaultInstruction}
}

// TraitsBlock renders the traits as sorted key: value lines for the
// system prompt. Sorting keeps prompts, and therefore cache fingerprints,
// stable across runs.
func (a *Agent) TraitsBlock() string {
	if len(a.Traits) == 0 {
		return ""
	}
	keys := make([]string, 0, len(a.Traits))
	for key := range a.Traits {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Your traits:\n")
	for _, key := range keys {
		fmt.Fprintf(&b, "%s: %v\n", key, a.Traits[key])
	}
	return b.String()
}

// SystemPrompt composes the instruction and traits block.
func (a *Agent) SystemPrompt() string {
	instruction := a.Instruction
	if instruction == "" {
		instruction = DefaultInstruction
	}
	traits := a.TraitsBlock()
	if traits == "" {
		return instruction
	}
	return instruction + "\n\n" + traits
}

// String identifies the agent in logs and result rows.
func (a *Agent) String() string {
	if a.Name != "" {
		return a.Name
	}
	return "agent"
}
