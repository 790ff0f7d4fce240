// Package results collects per-interview outcomes into a queryable,
// serializable table.
package results

import (
	"fmt"

	"github.com/nurv/edsl/internal/agents"
	"github.com/nurv/edsl/internal/models"
	"github.com/nurv/edsl/internal/scenarios"
)

// Result is one interview's outcome: who answered, under which bindings,
// with which model, plus every validated answer and the prompt/response
// pair that produced it.
type Result struct {
	InterviewIndex int                `json:"interview_index"`
	Agent          *agents.Agent      `json:"agent"`
	Scenario       scenarios.Scenario `json:"scenario"`
	Model          string             `json:"model"`
	Iteration      int                `json:"iteration"`

	Answers models.Answers `json:"answers"`

	// Prompts and RawResponses are keyed by question name. Cache hits have
	// prompts but reuse the cached output as the raw response.
	Prompts      map[string]agents.Prompts     `json:"prompts"`
	RawResponses map[string]models.RawResponse `json:"raw_responses"`

	// TaskStatus is each question's final lifecycle state. Questions the
	// interview never reached stay pending.
	TaskStatus models.TaskStatus `json:"task_status"`

	// SkippedQuestions were never asked: routed around by rules or
	// abandoned after a dependency failed.
	SkippedQuestions []string `json:"skipped_questions,omitempty"`

	// Path is the question names visited, in order, for diagnostics.
	Path []string `json:"path,omitempty"`
}

// ToDict flattens the result into dotted columns: "answer.<q>",
// "comment.<q>_comment", "<q>_user_prompt", "<q>_system_prompt",
// "<q>_raw_model_response", "scenario.<key>" and the identity fields.
func (r *Result) ToDict() map[string]any {
	row := map[string]any{
		"interview_index": r.InterviewIndex,
		"model":           r.Model,
		"iteration":       r.Iteration,
	}
	if r.Agent != nil {
		row["agent"] = r.Agent.String()
		for key, value := range r.Agent.Traits {
			row["agent."+key] = value
		}
	}
	for key, value := range r.Scenario {
		row["scenario."+key] = value
	}
	for name, answer := range r.Answers {
		row["answer."+name] = answer.Value
		if answer.Comment != "" {
			row["comment."+name+"_comment"] = answer.Comment
		}
	}
	for name, prompts := range r.Prompts {
		row[name+"_user_prompt"] = prompts.User
		row[name+"_system_prompt"] = prompts.System
	}
	for name, raw := range r.RawResponses {
		row[name+"_raw_model_response"] = map[string]any(raw)
	}
	return row
}

// AnswerColumn names the flattened answer column for a question.
func AnswerColumn(questionName string) string {
	return "answer." + questionName
}

// CommentColumn names the flattened comment column for a question.
func CommentColumn(questionName string) string {
	return fmt.Sprintf("comment.%s_comment", questionName)
}
