package surveys

import (
	"fmt"
	"strings"

	"github.com/nurv/edsl/internal/models"
	"github.com/nurv/edsl/internal/scenarios"
)

// baseQuestion carries the fields every type shares.
type baseQuestion struct {
	name string
	text string
}

func (q baseQuestion) Name() string { return q.name }
func (q baseQuestion) Text() string { return q.text }

// FreeTextQuestion accepts any non-empty string answer.
type FreeTextQuestion struct {
	baseQuestion
}

// NewFreeTextQuestion creates a free-text question.
func NewFreeTextQuestion(name, text string) (*FreeTextQuestion, error) {
	if err := ValidateQuestionName(name); err != nil {
		return nil, err
	}
	return &FreeTextQuestion{baseQuestion{name: name, text: text}}, nil
}

func (q *FreeTextQuestion) Type() string { return "free_text" }

func (q *FreeTextQuestion) Instructions() string {
	return `Return a valid JSON formatted like this: {"answer": "<put free text answer here>"}`
}

func (q *FreeTextQuestion) OptionsText(scenarios.Scenario) string { return "" }

func (q *FreeTextQuestion) ValidateAnswer(raw map[string]any, _ scenarios.Scenario) (models.Answer, error) {
	value, err := answerFrom(raw)
	if err != nil {
		return models.Answer{}, err
	}
	text, ok := value.(string)
	if !ok {
		text = fmt.Sprintf("%v", value)
	}
	if strings.TrimSpace(text) == "" {
		return models.Answer{}, fmt.Errorf("%w: empty free-text answer", ErrInvalidAnswer)
	}
	return models.Answer{Value: text, Comment: commentFrom(raw)}, nil
}

// MultipleChoiceQuestion accepts one option index and translates it to the
// option text. Options may contain {{ var }} scenario references.
type MultipleChoiceQuestion struct {
	baseQuestion
	options []string
}

// NewMultipleChoiceQuestion creates a multiple-choice question.
func NewMultipleChoiceQuestion(name, text string, options []string) (*MultipleChoiceQuestion, error) {
	if err := ValidateQuestionName(name); err != nil {
		return nil, err
	}
	if len(options) < 2 {
		return nil, fmt.Errorf("multiple choice question %q needs at least 2 options, got %d", name, len(options))
	}
	return &MultipleChoiceQuestion{baseQuestion{name: name, text: text}, options}, nil
}

func (q *MultipleChoiceQuestion) Type() string { return "multiple_choice" }

func (q *MultipleChoiceQuestion) Options() []string { return q.options }

func (q *MultipleChoiceQuestion) Instructions() string {
	return `Return a valid JSON formatted like this, selecting only the code of one option: {"answer": <put answer code here>, "comment": "<put explanation here>"}`
}

func (q *MultipleChoiceQuestion) OptionsText(scenario scenarios.Scenario) string {
	var b strings.Builder
	for i, option := range q.options {
		fmt.Fprintf(&b, "%d: %s\n", i, scenario.Render(option))
	}
	return b.String()
}

// TranslateAnswerCode maps an option index to its rendered text.
func (q *MultipleChoiceQuestion) TranslateAnswerCode(code int, scenario scenarios.Scenario) (string, error) {
	if code < 0 || code >= len(q.options) {
		return "", fmt.Errorf("%w: answer code %d out of range [0, %d)", ErrInvalidAnswer, code, len(q.options))
	}
	return scenario.Render(q.options[code]), nil
}

func (q *MultipleChoiceQuestion) ValidateAnswer(raw map[string]any, scenario scenarios.Scenario) (models.Answer, error) {
	value, err := answerFrom(raw)
	if err != nil {
		return models.Answer{}, err
	}
	code, err := answerAsInt(value)
	if err != nil {
		return models.Answer{}, err
	}
	translated, err := q.TranslateAnswerCode(code, scenario)
	if err != nil {
		return models.Answer{}, err
	}
	return models.Answer{Value: translated, Comment: commentFrom(raw)}, nil
}

// NewYesNoQuestion creates a multiple-choice question restricted to yes/no.
func NewYesNoQuestion(name, text string) (*YesNoQuestion, error) {
	mc, err := NewMultipleChoiceQuestion(name, text, []string{"yes", "no"})
	if err != nil {
		return nil, err
	}
	return &YesNoQuestion{*mc}, nil
}

// YesNoQuestion is a multiple choice over exactly yes and no.
type YesNoQuestion struct {
	MultipleChoiceQuestion
}

func (q *YesNoQuestion) Type() string { return "yes_no" }

// ValidateAnswer accepts the option code or the literal strings "yes" and
// "no", which models frequently answer despite the code instruction.
func (q *YesNoQuestion) ValidateAnswer(raw map[string]any, scenario scenarios.Scenario) (models.Answer, error) {
	if value, ok := raw["answer"].(string); ok {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "yes":
			return models.Answer{Value: "yes", Comment: commentFrom(raw)}, nil
		case "no":
			return models.Answer{Value: "no", Comment: commentFrom(raw)}, nil
		}
	}
	return q.MultipleChoiceQuestion.ValidateAnswer(raw, scenario)
}

// CheckboxQuestion accepts a list of option indices with optional
// selection bounds.
type CheckboxQuestion struct {
	baseQuestion
	options       []string
	minSelections int
	maxSelections int
}

// NewCheckboxQuestion creates a checkbox question. minSelections and
// maxSelections of 0 mean unbounded.
func NewCheckboxQuestion(name, text string, options []string, minSelections, maxSelections int) (*CheckboxQuestion, error) {
	if err := ValidateQuestionName(name); err != nil {
		return nil, err
	}
	if len(options) < 2 {
		return nil, fmt.Errorf("checkbox question %q needs at least 2 options, got %d", name, len(options))
	}
	if maxSelections > 0 && minSelections > maxSelections {
		return nil, fmt.Errorf("checkbox question %q: min selections %d exceeds max %d", name, minSelections, maxSelections)
	}
	return &CheckboxQuestion{baseQuestion{name: name, text: text}, options, minSelections, maxSelections}, nil
}

func (q *CheckboxQuestion) Type() string { return "checkbox" }

func (q *CheckboxQuestion) Instructions() string {
	var bounds string
	switch {
	case q.minSelections > 0 && q.maxSelections > 0:
		bounds = fmt.Sprintf(" Select between %d and %d options.", q.minSelections, q.maxSelections)
	case q.minSelections > 0:
		bounds = fmt.Sprintf(" Select at least %d options.", q.minSelections)
	case q.maxSelections > 0:
		bounds = fmt.Sprintf(" Select at most %d options.", q.maxSelections)
	}
	return `Return a valid JSON formatted like this, selecting option codes: {"answer": [<list of answer codes>], "comment": "<put explanation here>"}` + bounds
}

func (q *CheckboxQuestion) OptionsText(scenario scenarios.Scenario) string {
	var b strings.Builder
	for i, option := range q.options {
		fmt.Fprintf(&b, "%d: %s\n", i, scenario.Render(option))
	}
	return b.String()
}

func (q *CheckboxQuestion) ValidateAnswer(raw map[string]any, scenario scenarios.Scenario) (models.Answer, error) {
	value, err := answerFrom(raw)
	if err != nil {
		return models.Answer{}, err
	}
	list, ok := value.([]any)
	if !ok {
		return models.Answer{}, fmt.Errorf("%w: checkbox answer must be a list of codes, got %T", ErrInvalidAnswer, value)
	}
	if q.minSelections > 0 && len(list) < q.minSelections {
		return models.Answer{}, fmt.Errorf("%w: %d selections, minimum is %d", ErrInvalidAnswer, len(list), q.minSelections)
	}
	if q.maxSelections > 0 && len(list) > q.maxSelections {
		return models.Answer{}, fmt.Errorf("%w: %d selections, maximum is %d", ErrInvalidAnswer, len(list), q.maxSelections)
	}

	selected := make([]string, 0, len(list))
	seen := make(map[int]bool, len(list))
	for _, item := range list {
		code, err := answerAsInt(item)
		if err != nil {
			return models.Answer{}, err
		}
		if code < 0 || code >= len(q.options) {
			return models.Answer{}, fmt.Errorf("%w: answer code %d out of range [0, %d)", ErrInvalidAnswer, code, len(q.options))
		}
		if seen[code] {
			return models.Answer{}, fmt.Errorf("%w: duplicate answer code %d", ErrInvalidAnswer, code)
		}
		seen[code] = true
		selected = append(selected, scenario.Render(q.options[code]))
	}
	return models.Answer{Value: selected, Comment: commentFrom(raw)}, nil
}

// NumericalQuestion accepts a float within optional bounds.
type NumericalQuestion struct {
	baseQuestion
	min *float64
	max *float64
}

// NewNumericalQuestion creates a numerical question. Nil bounds are
// unbounded.
func NewNumericalQuestion(name, text string, min, max *float64) (*NumericalQuestion, error) {
	if err := ValidateQuestionName(name); err != nil {
		return nil, err
	}
	if min != nil && max != nil && *min > *max {
		return nil, fmt.Errorf("numerical question %q: min %v exceeds max %v", name, *min, *max)
	}
	return &NumericalQuestion{baseQuestion{name: name, text: text}, min, max}, nil
}

func (q *NumericalQuestion) Type() string { return "numerical" }

func (q *NumericalQuestion) Instructions() string {
	var bounds string
	switch {
	case q.min != nil && q.max != nil:
		bounds = fmt.Sprintf(" The answer must be between %v and %v.", *q.min, *q.max)
	case q.min != nil:
		bounds = fmt.Sprintf(" The answer must be at least %v.", *q.min)
	case q.max != nil:
		bounds = fmt.Sprintf(" The answer must be at most %v.", *q.max)
	}
	return `Return a valid JSON formatted like this: {"answer": <put numerical answer here>, "comment": "<put explanation here>"}` + bounds
}

func (q *NumericalQuestion) OptionsText(scenarios.Scenario) string { return "" }

func (q *NumericalQuestion) ValidateAnswer(raw map[string]any, _ scenarios.Scenario) (models.Answer, error) {
	value, err := answerFrom(raw)
	if err != nil {
		return models.Answer{}, err
	}
	number, err := answerAsFloat(value)
	if err != nil {
		return models.Answer{}, err
	}
	if q.min != nil && number < *q.min {
		return models.Answer{}, fmt.Errorf("%w: %v below minimum %v", ErrInvalidAnswer, number, *q.min)
	}
	if q.max != nil && number > *q.max {
		return models.Answer{}, fmt.Errorf("%w: %v above maximum %v", ErrInvalidAnswer, number, *q.max)
	}
	return models.Answer{Value: number, Comment: commentFrom(raw)}, nil
}

// LinearScaleQuestion accepts one integer from a fixed scale, with
// optional labels on scale points.
type LinearScaleQuestion struct {
	baseQuestion
	scale  []int
	labels map[int]string
}

// NewLinearScaleQuestion creates a linear-scale question.
func NewLinearScaleQuestion(name, text string, scale []int, labels map[int]string) (*LinearScaleQuestion, error) {
	if err := ValidateQuestionName(name); err != nil {
		return nil, err
	}
	if len(scale) < 2 {
		return nil, fmt.Errorf("linear scale question %q needs at least 2 scale points, got %d", name, len(scale))
	}
	for point := range labels {
		found := false
		for _, s := range scale {
			if s == point {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("linear scale question %q: label for %d which is not on the scale", name, point)
		}
	}
	return &LinearScaleQuestion{baseQuestion{name: name, text: text}, scale, labels}, nil
}

func (q *LinearScaleQuestion) Type() string { return "linear_scale" }

func (q *LinearScaleQuestion) Instructions() string {
	return `Return a valid JSON formatted like this, answering with one value from the scale: {"answer": <put scale value here>, "comment": "<put explanation here>"}`
}

func (q *LinearScaleQuestion) OptionsText(scenarios.Scenario) string {
	var b strings.Builder
	for _, point := range q.scale {
		if label, ok := q.labels[point]; ok {
			fmt.Fprintf(&b, "%d: %s\n", point, label)
		} else {
			fmt.Fprintf(&b, "%d\n", point)
		}
	}
	return b.String()
}

func (q *LinearScaleQuestion) ValidateAnswer(raw map[string]any, _ scenarios.Scenario) (models.Answer, error) {
	value, err := answerFrom(raw)
	if err != nil {
		return models.Answer{}, err
	}
	point, err := answerAsInt(value)
	if err != nil {
		return models.Answer{}, err
	}
	for _, s := range q.scale {
		if s == point {
			return models.Answer{Value: point, Comment: commentFrom(raw)}, nil
		}
	}
	return models.Answer{}, fmt.Errorf("%w: %d is not on the scale %v", ErrInvalidAnswer, point, q.scale)
}
