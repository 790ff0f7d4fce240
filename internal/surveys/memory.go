package surveys

import (
	"fmt"
	"sort"
)

// MemoryPlanKind selects how much prior conversation a question sees.
type MemoryPlanKind string

const (
	// MemoryNone gives each question a fresh context
	MemoryNone MemoryPlanKind = "none"

	// MemoryFull replays every prior question and answer
	MemoryFull MemoryPlanKind = "full"

	// MemoryLagged replays the previous k questions and answers
	MemoryLagged MemoryPlanKind = "lagged"

	// MemoryTargeted replays an explicit per-question set
	MemoryTargeted MemoryPlanKind = "targeted"
)

// MemoryPlan decides which prior answers accompany each question's prompt.
// Remembered questions become dependencies: a question cannot be asked
// before the answers it remembers exist, and a failed remembered question
// skips its dependents.
type MemoryPlan struct {
	Kind MemoryPlanKind

	// Lags is the window size for MemoryLagged
	Lags int

	// Targets maps a question name to the question names it remembers,
	// for MemoryTargeted
	Targets map[string][]string
}

// NewFullMemoryPlan remembers everything asked so far.
func NewFullMemoryPlan() MemoryPlan {
	return MemoryPlan{Kind: MemoryFull}
}

// NewLaggedMemoryPlan remembers the previous k questions.
func NewLaggedMemoryPlan(k int) (MemoryPlan, error) {
	if k < 1 {
		return MemoryPlan{}, fmt.Errorf("lagged memory plan requires k >= 1, got %d", k)
	}
	return MemoryPlan{Kind: MemoryLagged, Lags: k}, nil
}

// NewTargetedMemoryPlan remembers explicit question sets.
func NewTargetedMemoryPlan(targets map[string][]string) MemoryPlan {
	return MemoryPlan{Kind: MemoryTargeted, Targets: targets}
}

// Validate checks the plan against the survey's question names, in order.
func (p MemoryPlan) Validate(names []string) error {
	switch p.Kind {
	case "", MemoryNone, MemoryFull:
		return nil
	case MemoryLagged:
		if p.Lags < 1 {
			return fmt.Errorf("lagged memory plan requires k >= 1, got %d", p.Lags)
		}
		return nil
	case MemoryTargeted:
		index := make(map[string]int, len(names))
		for i, name := range names {
			index[name] = i
		}
		for target, remembered := range p.Targets {
			ti, ok := index[target]
			if !ok {
				return fmt.Errorf("memory plan targets unknown question %q", target)
			}
			for _, name := range remembered {
				ri, ok := index[name]
				if !ok {
					return fmt.Errorf("memory plan for %q remembers unknown question %q", target, name)
				}
				if ri >= ti {
					return fmt.Errorf("memory plan for %q remembers %q, which does not precede it", target, name)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown memory plan kind %q", p.Kind)
	}
}

// Remembered returns the prior question indices whose answers accompany
// the question at current, ascending. names is the survey's question
// order.
func (p MemoryPlan) Remembered(current int, names []string) []int {
	switch p.Kind {
	case MemoryFull:
		indices := make([]int, 0, current)
		for i := 0; i < current; i++ {
			indices = append(indices, i)
		}
		return indices
	case MemoryLagged:
		start := current - p.Lags
		if start < 0 {
			start = 0
		}
		var indices []int
		for i := start; i < current; i++ {
			indices = append(indices, i)
		}
		return indices
	case MemoryTargeted:
		if current < 0 || current >= len(names) {
			return nil
		}
		index := make(map[string]int, len(names))
		for i, name := range names {
			index[name] = i
		}
		var indices []int
		for _, name := range p.Targets[names[current]] {
			if i, ok := index[name]; ok && i < current {
				indices = append(indices, i)
			}
		}
		sort.Ints(indices)
		return indices
	default:
		return nil
	}
}

// DAG expresses the plan as dependency edges, in the same shape as the
// rule DAG: question index to the sorted indices it depends on.
func (p MemoryPlan) DAG(names []string) map[int][]int {
	dag := make(map[int][]int)
	for q := range names {
		if remembered := p.Remembered(q, names); len(remembered) > 0 {
			dag[q] = remembered
		}
	}
	return dag
}

// mergeDAGs unions dependency maps, keeping each list sorted and unique.
func mergeDAGs(dags ...map[int][]int) map[int][]int {
	sets := make(map[int]map[int]bool)
	for _, dag := range dags {
		for q, deps := range dag {
			if sets[q] == nil {
				sets[q] = make(map[int]bool)
			}
			for _, dep := range deps {
				sets[q][dep] = true
			}
		}
	}
	merged := make(map[int][]int, len(sets))
	for q, set := range sets {
		list := make([]int, 0, len(set))
		for dep := range set {
			list = append(list, dep)
		}
		sort.Ints(list)
		merged[q] = list
	}
	return merged
}
