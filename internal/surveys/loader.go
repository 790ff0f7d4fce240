// -----------------------------------------------------------------------
// Survey definition loading: TOML question/rule/memory sections parsed
// into a Survey through an explicit question-type registry
// -----------------------------------------------------------------------

package surveys

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// QuestionDefinition is one [[survey.questions]] entry of a job file.
type QuestionDefinition struct {
	Name    string   `toml:"name" yaml:"name" validate:"required"`
	Type    string   `toml:"type" yaml:"type" validate:"required"`
	Text    string   `toml:"text" yaml:"text" validate:"required"`
	Options []string `toml:"options" yaml:"options"`

	// Checkbox selection bounds, 0 = unbounded
	MinSelections int `toml:"min_selections" yaml:"min_selections" validate:"min=0"`
	MaxSelections int `toml:"max_selections" yaml:"max_selections" validate:"min=0"`

	// Numerical bounds, nil = unbounded
	Min *float64 `toml:"min" yaml:"min"`
	Max *float64 `toml:"max" yaml:"max"`

	// Linear scale points and optional labels keyed by point
	Scale  []int          `toml:"scale" yaml:"scale"`
	Labels map[int]string `toml:"labels" yaml:"labels"`
}

// RuleDefinition is one [[survey.rules]] entry. An empty Next means stop.
type RuleDefinition struct {
	From       string `toml:"from" yaml:"from" validate:"required"`
	Expression string `toml:"expression" yaml:"expression" validate:"required"`
	Next       string `toml:"next" yaml:"next"`
}

// MemoryDefinition is the [survey.memory] section.
type MemoryDefinition struct {
	Kind    string              `toml:"kind" yaml:"kind" validate:"omitempty,oneof=none full lagged targeted"`
	Lags    int                 `toml:"lags" yaml:"lags" validate:"min=0"`
	Targets map[string][]string `toml:"targets" yaml:"targets"`
}

// SurveyDefinition is the [survey] section of a job file.
type SurveyDefinition struct {
	Questions []QuestionDefinition `toml:"questions" yaml:"questions" validate:"required,min=1,dive"`
	Rules     []RuleDefinition     `toml:"rules" yaml:"rules" validate:"dive"`
	Memory    MemoryDefinition     `toml:"memory" yaml:"memory"`
}

// questionBuilder constructs one question type from its definition.
type questionBuilder func(def QuestionDefinition) (Question, error)

// questionBuilders is the type registry. Unknown types are load errors,
// never silently ignored.
var questionBuilders = map[string]questionBuilder{
	"free_text": func(def QuestionDefinition) (Question, error) {
		return NewFreeTextQuestion(def.Name, def.Text)
	},
	"multiple_choice": func(def QuestionDefinition) (Question, error) {
		return NewMultipleChoiceQuestion(def.Name, def.Text, def.Options)
	},
	"checkbox": func(def QuestionDefinition) (Question, error) {
		return NewCheckboxQuestion(def.Name, def.Text, def.Options, def.MinSelections, def.MaxSelections)
	},
	"numerical": func(def QuestionDefinition) (Question, error) {
		return NewNumericalQuestion(def.Name, def.Text, def.Min, def.Max)
	},
	"yes_no": func(def QuestionDefinition) (Question, error) {
		return NewYesNoQuestion(def.Name, def.Text)
	},
	"linear_scale": func(def QuestionDefinition) (Question, error) {
		return NewLinearScaleQuestion(def.Name, def.Text, def.Scale, def.Labels)
	},
}

// QuestionTypes lists the registered type keys.
func QuestionTypes() []string {
	types := make([]string, 0, len(questionBuilders))
	for key := range questionBuilders {
		types = append(types, key)
	}
	return types
}

// BuildQuestion constructs a question from its definition.
func BuildQuestion(def QuestionDefinition) (Question, error) {
	builder, ok := questionBuilders[def.Type]
	if !ok {
		return nil, fmt.Errorf("question %q has unknown type %q", def.Name, def.Type)
	}
	return builder(def)
}

// BuildSurvey validates a definition and assembles the survey: questions
// in order, authored rules on top of the defaults, memory plan attached.
func BuildSurvey(def SurveyDefinition) (*Survey, error) {
	if err := validator.New().Struct(def); err != nil {
		return nil, fmt.Errorf("invalid survey definition: %w", err)
	}

	questions := make([]Question, 0, len(def.Questions))
	for _, qdef := range def.Questions {
		question, err := BuildQuestion(qdef)
		if err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}

	plan, err := buildMemoryPlan(def.Memory)
	if err != nil {
		return nil, err
	}

	survey, err := NewSurvey(questions, WithMemoryPlan(plan))
	if err != nil {
		return nil, err
	}

	for _, rdef := range def.Rules {
		if rdef.Next == "" {
			err = survey.AddStopRule(rdef.From, rdef.Expression)
		} else {
			err = survey.AddRule(rdef.From, rdef.Expression, rdef.Next)
		}
		if err != nil {
			return nil, err
		}
	}
	return survey, nil
}

func buildMemoryPlan(def MemoryDefinition) (MemoryPlan, error) {
	switch def.Kind {
	case "", string(MemoryNone):
		return MemoryPlan{Kind: MemoryNone}, nil
	case string(MemoryFull):
		return NewFullMemoryPlan(), nil
	case string(MemoryLagged):
		return NewLaggedMemoryPlan(def.Lags)
	case string(MemoryTargeted):
		return NewTargetedMemoryPlan(def.Targets), nil
	default:
		return MemoryPlan{}, fmt.Errorf("unknown memory plan kind %q", def.Kind)
	}
}
