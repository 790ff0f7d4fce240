package surveys

import (
	"fmt"
	"strings"
)

// Survey is an ordered list of questions plus the routing rules and memory
// plan that drive an interview through them.
type Survey struct {
	questions []Question
	byName    map[string]int
	rules     *RuleCollection
	memory    MemoryPlan
}

// NewSurvey builds a survey over the given questions. Names must be valid
// identifiers and unique; each question gets its default advance rule.
func NewSurvey(questions []Question, options ...SurveyOption) (*Survey, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("survey needs at least one question")
	}
	byName := make(map[string]int, len(questions))
	for i, q := range questions {
		if err := ValidateQuestionName(q.Name()); err != nil {
			return nil, err
		}
		if _, exists := byName[q.Name()]; exists {
			return nil, fmt.Errorf("duplicate question name %q", q.Name())
		}
		byName[q.Name()] = i
	}

	s := &Survey{
		questions: questions,
		byName:    byName,
		rules:     NewRuleCollection(len(questions)),
	}
	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SurveyOption configures a survey at construction.
type SurveyOption func(*Survey) error

// WithMemoryPlan sets the memory plan, validated against question names.
func WithMemoryPlan(plan MemoryPlan) SurveyOption {
	return func(s *Survey) error {
		return s.SetMemoryPlan(plan)
	}
}

// Len returns the number of questions.
func (s *Survey) Len() int {
	return len(s.questions)
}

// Questions returns the questions in order.
func (s *Survey) Questions() []Question {
	return s.questions
}

// Question returns the question at an index.
func (s *Survey) Question(index int) (Question, error) {
	if index < 0 || index >= len(s.questions) {
		return nil, fmt.Errorf("question index %d out of range [0,%d)", index, len(s.questions))
	}
	return s.questions[index], nil
}

// QuestionByName looks a question up by its identifier.
func (s *Survey) QuestionByName(name string) (Question, bool) {
	index, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.questions[index], true
}

// IndexOf returns the position of a question name.
func (s *Survey) IndexOf(name string) (int, bool) {
	index, ok := s.byName[name]
	return index, ok
}

// Names returns the question names in survey order.
func (s *Survey) Names() []string {
	names := make([]string, len(s.questions))
	for i, q := range s.questions {
		names[i] = q.Name()
	}
	return names
}

// Rules exposes the rule collection for introspection.
func (s *Survey) Rules() *RuleCollection {
	return s.rules
}

// MemoryPlan returns the configured memory plan.
func (s *Survey) MemoryPlan() MemoryPlan {
	return s.memory
}

// SetMemoryPlan installs a memory plan after validating it against the
// survey's questions.
func (s *Survey) SetMemoryPlan(plan MemoryPlan) error {
	if err := plan.Validate(s.Names()); err != nil {
		return err
	}
	s.memory = plan
	return nil
}

// AddRule routes from question `from` to question `to` when the expression
// holds. The new rule outranks every existing rule at the node.
func (s *Survey) AddRule(from, expression, to string) error {
	current, ok := s.byName[from]
	if !ok {
		return fmt.Errorf("unknown question %q", from)
	}
	next, ok := s.byName[to]
	if !ok {
		return fmt.Errorf("unknown question %q", to)
	}
	if next <= current {
		return fmt.Errorf("rule from %q to %q routes backwards", from, to)
	}
	return s.addRule(current, expression, next)
}

// AddStopRule ends the survey from question `from` when the expression
// holds.
func (s *Survey) AddStopRule(from, expression string) error {
	current, ok := s.byName[from]
	if !ok {
		return fmt.Errorf("unknown question %q", from)
	}
	return s.addRule(current, expression, EndOfSurvey)
}

func (s *Survey) addRule(current int, expression string, next int) error {
	priority := s.rules.MaxPriorityAt(current) + 1
	rule, err := NewRule(current, expression, next, priority)
	if err != nil {
		return err
	}
	for _, name := range rule.Identifiers() {
		if _, ok := s.byName[name]; !ok {
			return fmt.Errorf("rule %q references unknown question %q", expression, name)
		}
	}
	s.rules.Add(rule)
	return nil
}

// FirstQuestion is where every interview starts.
func (s *Survey) FirstQuestion() int {
	return 0
}

// NextQuestion routes from the current question given the answers so far.
func (s *Survey) NextQuestion(current int, answers map[string]any) (NextQuestion, error) {
	return s.rules.NextQuestion(current, answers)
}

// Remembered returns the prior question indices whose answers accompany
// the question at current, per the memory plan.
func (s *Survey) Remembered(current int) []int {
	return s.memory.Remembered(current, s.Names())
}

// DAG unions the rule and memory dependency graphs. A failed question
// skips every question reachable from it.
func (s *Survey) DAG() map[int][]int {
	return mergeDAGs(s.rules.DAG(), s.memory.DAG(s.Names()))
}

// Dependents returns the question indices that transitively depend on the
// given question, per the DAG.
func (s *Survey) Dependents(index int) []int {
	dag := s.DAG()
	reached := make(map[int]bool)
	frontier := []int{index}
	for len(frontier) > 0 {
		var next []int
		for q, deps := range dag {
			if reached[q] {
				continue
			}
			for _, dep := range deps {
				for _, f := range frontier {
					if dep == f {
						reached[q] = true
						next = append(next, q)
					}
				}
			}
		}
		frontier = next
	}
	var dependents []int
	for q := 0; q < len(s.questions); q++ {
		if reached[q] {
			dependents = append(dependents, q)
		}
	}
	return dependents
}

// Textify renders a question path for logs, e.g. "intro -> likes_coffee ->
// end of survey".
func (s *Survey) Textify(path []int) string {
	parts := make([]string, 0, len(path))
	for _, index := range path {
		if index == EndOfSurvey {
			parts = append(parts, "end of survey")
			continue
		}
		if index >= 0 && index < len(s.questions) {
			parts = append(parts, s.questions[index].Name())
		} else {
			parts = append(parts, fmt.Sprintf("question %d", index))
		}
	}
	return strings.Join(parts, " -> ")
}
