package surveys

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
)

const surveyTOML = `
[[questions]]
name = "intro"
type = "free_text"
text = "Tell us about your {{ topic }} habits."

[[questions]]
name = "likes_coffee"
type = "yes_no"
text = "Do you like coffee?"

[[questions]]
name = "cups_per_day"
type = "numerical"
text = "How many cups per day?"
min = 0.0

[[rules]]
from = "likes_coffee"
expression = 'likes_coffee == "no"'

[memory]
kind = "lagged"
lags = 1
`

func TestBuildSurveyFromTOML(t *testing.T) {
	var def SurveyDefinition
	if err := toml.Unmarshal([]byte(surveyTOML), &def); err != nil {
		t.Fatalf("toml: %v", err)
	}

	survey, err := BuildSurvey(def)
	if err != nil {
		t.Fatalf("BuildSurvey: %v", err)
	}
	if survey.Len() != 3 {
		t.Errorf("Len = %d", survey.Len())
	}
	if survey.MemoryPlan().Kind != MemoryLagged {
		t.Errorf("memory kind = %q", survey.MemoryPlan().Kind)
	}

	// Rule with empty next becomes a stop rule.
	outcome, err := survey.NextQuestion(1, map[string]any{"likes_coffee": "no"})
	if err != nil {
		t.Fatalf("NextQuestion: %v", err)
	}
	if outcome.Next != EndOfSurvey {
		t.Errorf("stop rule should end the survey, got %d", outcome.Next)
	}
}

func TestBuildSurveyRejectsUnknownType(t *testing.T) {
	def := SurveyDefinition{Questions: []QuestionDefinition{
		{Name: "q", Type: "ranking", Text: "?"},
	}}
	if _, err := BuildSurvey(def); err == nil {
		t.Error("expected unknown type error")
	}
}

func TestBuildSurveyRejectsMissingFields(t *testing.T) {
	def := SurveyDefinition{Questions: []QuestionDefinition{
		{Name: "q", Type: "free_text"},
	}}
	if _, err := BuildSurvey(def); err == nil {
		t.Error("expected validation error for missing text")
	}
}

func TestBuildQuestionCoversRegistry(t *testing.T) {
	defs := []QuestionDefinition{
		{Name: "a", Type: "free_text", Text: "?"},
		{Name: "b", Type: "multiple_choice", Text: "?", Options: []string{"x", "y"}},
		{Name: "c", Type: "checkbox", Text: "?", Options: []string{"x", "y"}},
		{Name: "d", Type: "numerical", Text: "?"},
		{Name: "e", Type: "yes_no", Text: "?"},
		{Name: "f", Type: "linear_scale", Text: "?", Scale: []int{1, 2, 3}},
	}
	for _, def := range defs {
		q, err := BuildQuestion(def)
		if err != nil {
			t.Errorf("BuildQuestion(%s): %v", def.Type, err)
			continue
		}
		if q.Type() != def.Type {
			t.Errorf("type mismatch: %q vs %q", q.Type(), def.Type)
		}
	}
}
