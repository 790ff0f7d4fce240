// -----------------------------------------------------------------------
// Skip-logic rules: boolean expressions over prior answers routing the
// interview between questions
// -----------------------------------------------------------------------

package surveys

import (
	"errors"
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// EndOfSurvey is the sentinel next-question index marking successful
// completion.
const EndOfSurvey = -1

// DefaultRulePriority marks the always-true "go to the next question"
// rule created at every node. Authored rules start at priority 0.
const DefaultRulePriority = -1

// ErrRuleCannotEvaluate is returned when a rule references a question that
// has no answer yet. It is fatal to the interview: the survey's rules are
// inconsistent with its question order.
var ErrRuleCannotEvaluate = errors.New("rule references an unanswered question")

// ErrNoRulesAtNode is returned when a question has no rules at all, not
// even the default. The collection constructor always adds defaults, so
// this is an invariant violation and fatal to the whole run.
var ErrNoRulesAtNode = errors.New("no rules at question node")

// Rule routes the interview from one question to another when its
// expression holds over the answers so far.
type Rule struct {
	// Current is the question index the rule fires from
	Current int

	// Expression is a boolean expression over prior answers, referencing
	// them by question name
	Expression string

	// Next is the destination index, or EndOfSurvey
	Next int

	// Priority breaks conflicts: highest satisfied priority wins, later
	// added wins ties. The default rule has priority -1.
	Priority int

	program     *vm.Program
	identifiers []string
}

// NewRule compiles a routing rule.
func NewRule(current int, expression string, next, priority int) (*Rule, error) {
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid rule expression %q: %w", expression, err)
	}
	identifiers, err := expressionIdentifiers(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid rule expression %q: %w", expression, err)
	}
	return &Rule{
		Current:     current,
		Expression:  expression,
		Next:        next,
		Priority:    priority,
		program:     program,
		identifiers: identifiers,
	}, nil
}

// newDefaultRule builds the priority -1 "always advance" rule for a node.
func newDefaultRule(current int) *Rule {
	rule, err := NewRule(current, "true", current+1, DefaultRulePriority)
	if err != nil {
		// "true" always compiles; reaching here is a programming error.
		panic(err)
	}
	return rule
}

// IsDefault reports whether this is a generated default rule.
func (r *Rule) IsDefault() bool {
	return r.Priority == DefaultRulePriority
}

// Identifiers lists the question names the expression references.
func (r *Rule) Identifiers() []string {
	return r.identifiers
}

// Evaluate runs the expression over the answers. A referenced question
// with no answer yields ErrRuleCannotEvaluate.
func (r *Rule) Evaluate(answers map[string]any) (bool, error) {
	for _, name := range r.identifiers {
		if _, ok := answers[name]; !ok {
			return false, fmt.Errorf("%w: %q in rule %q", ErrRuleCannotEvaluate, name, r.Expression)
		}
	}
	result, err := expr.Run(r.program, answers)
	if err != nil {
		return false, fmt.Errorf("%w: rule %q: %v", ErrRuleCannotEvaluate, r.Expression, err)
	}
	truth, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("rule %q evaluated to %T, want bool", r.Expression, result)
	}
	return truth, nil
}

// identifierVisitor collects identifier names from a parsed expression.
type identifierVisitor struct {
	names map[string]bool
}

func (v *identifierVisitor) Visit(node *ast.Node) {
	if ident, ok := (*node).(*ast.IdentifierNode); ok {
		v.names[ident.Value] = true
	}
}

// expressionIdentifiers parses the expression and returns the question
// names it references, sorted.
func expressionIdentifiers(expression string) ([]string, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	visitor := &identifierVisitor{names: make(map[string]bool)}
	ast.Walk(&tree.Node, visitor)

	names := make([]string, 0, len(visitor.names))
	for name := range visitor.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// NextQuestion is the outcome of one routing decision.
type NextQuestion struct {
	// Next is the chosen question index, or EndOfSurvey
	Next int

	// NumRulesFound counts the rules present at the node
	NumRulesFound int

	// NumTrue counts the satisfied rules
	NumTrue int

	// Priority is the winning rule's priority
	Priority int
}

// RuleCollection holds every rule of a survey. A default rule exists at
// each node, so routing always resolves.
type RuleCollection struct {
	rules        []*Rule
	numQuestions int
}

// NewRuleCollection creates the collection with one default rule per
// question.
func NewRuleCollection(numQuestions int) *RuleCollection {
	c := &RuleCollection{numQuestions: numQuestions}
	for q := 0; q < numQuestions; q++ {
		c.rules = append(c.rules, newDefaultRule(q))
	}
	return c
}

// Add appends an authored rule.
func (c *RuleCollection) Add(rule *Rule) {
	c.rules = append(c.rules, rule)
}

// Rules returns all rules in insertion order.
func (c *RuleCollection) Rules() []*Rule {
	return c.rules
}

// NumQuestions returns the survey length the collection was built for.
func (c *RuleCollection) NumQuestions() int {
	return c.numQuestions
}

// MaxPriorityAt returns the highest priority among rules at a node, used
// when authoring to stack new rules on top.
func (c *RuleCollection) MaxPriorityAt(current int) int {
	max := DefaultRulePriority
	for _, rule := range c.rules {
		if rule.Current == current && rule.Priority > max {
			max = rule.Priority
		}
	}
	return max
}

// NextQuestion picks the destination from the given node: among satisfied
// rules the highest priority wins, ties break toward the latest added.
func (c *RuleCollection) NextQuestion(current int, answers map[string]any) (NextQuestion, error) {
	var atNode []*Rule
	for _, rule := range c.rules {
		if rule.Current == current {
			atNode = append(atNode, rule)
		}
	}
	if len(atNode) == 0 {
		return NextQuestion{}, fmt.Errorf("%w: question %d", ErrNoRulesAtNode, current)
	}

	outcome := NextQuestion{NumRulesFound: len(atNode)}
	var winner *Rule
	for _, rule := range atNode {
		truth, err := rule.Evaluate(answers)
		if err != nil {
			return NextQuestion{}, err
		}
		if !truth {
			continue
		}
		outcome.NumTrue++
		if winner == nil || rule.Priority >= winner.Priority {
			winner = rule
		}
	}
	if winner == nil {
		// The default rule is always satisfied; no winner means it was
		// removed, which is the same invariant violation.
		return NextQuestion{}, fmt.Errorf("%w: no satisfied rule at question %d", ErrNoRulesAtNode, current)
	}

	outcome.Next = winner.Next
	outcome.Priority = winner.Priority
	if outcome.Next >= c.numQuestions {
		outcome.Next = EndOfSurvey
	}
	return outcome, nil
}

// DAG maps every question index to the sorted set of question indices it
// depends on: any node whose non-default rules can route past it. A
// question whose predecessors can skip it must wait for their answers.
func (c *RuleCollection) DAG() map[int][]int {
	deps := make(map[int]map[int]bool)
	for _, rule := range c.rules {
		if rule.IsDefault() {
			continue
		}
		next := rule.Next
		if next == EndOfSurvey {
			next = c.numQuestions
		}
		for q := rule.Current + 1; q <= next; q++ {
			if deps[q] == nil {
				deps[q] = make(map[int]bool)
			}
			deps[q][rule.Current] = true
		}
	}

	dag := make(map[int][]int, len(deps))
	for q, set := range deps {
		list := make([]int, 0, len(set))
		for dep := range set {
			list = append(list, dep)
		}
		sort.Ints(list)
		dag[q] = list
	}
	return dag
}
