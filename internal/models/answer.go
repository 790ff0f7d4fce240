package models

// Answer is one validated response to a survey question: the translated
// answer value plus the model's optional free-text comment.
type Answer struct {
	Value   any    `json:"answer"`
	Comment string `json:"comment,omitempty"`
}

// Answers maps question names to validated answers for one interview.
type Answers map[string]Answer

// Bindings flattens the answers into name -> value pairs for rule-expression
// evaluation.
func (a Answers) Bindings() map[string]any {
	env := make(map[string]any, len(a))
	for name, ans := range a {
		env[name] = ans.Value
	}
	return env
}

// FillMissing inserts a nil-valued answer for every listed question that has
// none, so result rows expose one column per question.
func (a Answers) FillMissing(questionNames []string) {
	for _, name := range questionNames {
		if _, ok := a[name]; !ok {
			a[name] = Answer{Value: nil}
		}
	}
}
