// Package surveys holds the survey domain: typed questions, skip-logic
// rules, the question dependency DAG, memory plans and the survey itself.
package surveys

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nurv/edsl/internal/models"
	"github.com/nurv/edsl/internal/scenarios"
)

// ErrInvalidAnswer marks a response the question refused. The interview
// retries the LM call a few times before marking the question failed.
var ErrInvalidAnswer = errors.New("invalid answer")

// questionNamePattern constrains names to rule-expression identifiers.
var questionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Question is one typed survey item. Validation owns the answer schema;
// the interview engine only shuttles the raw map through.
type Question interface {
	// Name is the identifier used in answers, rules and result columns
	Name() string

	// Text is the question template shown to the model, before scenario
	// substitution
	Text() string

	// Type is the registry key ("free_text", "multiple_choice", ...)
	Type() string

	// Instructions tells the model how to format its answer
	Instructions() string

	// OptionsText renders the selectable options for the prompt, empty
	// when the type has none
	OptionsText(scenario scenarios.Scenario) string

	// ValidateAnswer checks the decoded {"answer": ..., "comment": ...}
	// map and translates answer codes to values. Failures wrap
	// ErrInvalidAnswer.
	ValidateAnswer(raw map[string]any, scenario scenarios.Scenario) (models.Answer, error)
}

// ValidateQuestionName checks a name is a legal identifier.
func ValidateQuestionName(name string) error {
	if !questionNamePattern.MatchString(name) {
		return fmt.Errorf("invalid question name %q: must match %s", name, questionNamePattern.String())
	}
	return nil
}

// codeFencePattern strips markdown fences models wrap JSON answers in.
var codeFencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// DecodeRawAnswer parses the model's answer text into the raw answer map.
// Code fences are stripped first; bare (non-object) JSON and plain text
// both become {"answer": <text>} so free-text models need no formatting.
func DecodeRawAnswer(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if match := codeFencePattern.FindStringSubmatch(trimmed); match != nil {
		trimmed = match[1]
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		if _, ok := decoded["answer"]; !ok {
			return nil, fmt.Errorf("%w: response object has no \"answer\" field", ErrInvalidAnswer)
		}
		return decoded, nil
	}

	var scalar any
	if err := json.Unmarshal([]byte(trimmed), &scalar); err == nil {
		return map[string]any{"answer": scalar}, nil
	}
	return map[string]any{"answer": trimmed}, nil
}

// commentFrom extracts the optional free-text comment.
func commentFrom(raw map[string]any) string {
	if comment, ok := raw["comment"].(string); ok {
		return comment
	}
	return ""
}

// answerFrom extracts the mandatory answer value.
func answerFrom(raw map[string]any) (any, error) {
	value, ok := raw["answer"]
	if !ok {
		return nil, fmt.Errorf("%w: missing \"answer\" field", ErrInvalidAnswer)
	}
	return value, nil
}

// answerAsInt coerces an answer code to an integer index. JSON numbers
// decode as float64; models sometimes quote them.
func answerAsInt(value any) (int, error) {
	switch v := value.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: answer code %v is not an integer", ErrInvalidAnswer, v)
		}
		return int(v), nil
	case int:
		return v, nil
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err != nil {
			return 0, fmt.Errorf("%w: answer code %q is not an integer", ErrInvalidAnswer, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: answer code has type %T", ErrInvalidAnswer, value)
	}
}

// answerAsFloat coerces an answer value to a float.
func answerAsFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err != nil {
			return 0, fmt.Errorf("%w: answer %q is not a number", ErrInvalidAnswer, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: answer has type %T", ErrInvalidAnswer, value)
	}
}
