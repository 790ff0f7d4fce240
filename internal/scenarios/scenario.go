// Package scenarios provides the variable bindings substituted into
// question templates.
//
// The {{ var-name }} syntax lets question text reference scenario values.
// At interview time each reference is replaced with the binding's value.
// Replacement is case-sensitive. Missing bindings are left unchanged so the
// prompt shows what was expected; validation catches them earlier for
// authored surveys.
package scenarios

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// varRefPattern matches {{ var-name }} references, whitespace-tolerant.
var varRefPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_-]+)\s*\}\}`)

// Scenario is one set of template bindings. An empty scenario is valid and
// leaves templates untouched.
type Scenario map[string]any

// Empty returns a scenario with no bindings.
func Empty() Scenario {
	return Scenario{}
}

// Render replaces every {{ var }} reference in the template with the
// bound value. Unresolved references are returned unchanged.
func (s Scenario) Render(template string) string {
	if template == "" || len(s) == 0 {
		return template
	}
	return varRefPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := varRefPattern.FindStringSubmatch(match)[1]
		if value, ok := s[name]; ok {
			return fmt.Sprintf("%v", value)
		}
		return match
	})
}

// UnresolvedVars lists the template references this scenario cannot bind.
func (s Scenario) UnresolvedVars(template string) []string {
	var missing []string
	for _, match := range varRefPattern.FindAllStringSubmatch(template, -1) {
		name := match[1]
		if _, ok := s[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Keys returns the binding names, sorted.
func (s Scenario) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// String renders the bindings for logs and result rows.
func (s Scenario) String() string {
	if len(s) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(s))
	for _, key := range s.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", key, s[key]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
