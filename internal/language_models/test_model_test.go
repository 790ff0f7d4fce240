package language_models

import (
	"context"
	"testing"
)

func TestTestModelDefaultsToUppercasedPrompt(t *testing.T) {
	m := NewTestModel("test-echo")

	raw, err := m.Call(context.Background(), "what does the fox say?", "")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if raw["answer"] != "WHAT DOES THE FOX SAY?" {
		t.Errorf("unexpected answer %v", raw["answer"])
	}

	text, err := m.Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if text != `{"answer":"WHAT DOES THE FOX SAY?"}` {
		t.Errorf("unexpected parsed text %q", text)
	}
	if m.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", m.CallCount())
	}
}

func TestTestModelScriptedFailures(t *testing.T) {
	m := NewTestModel("test-flaky", WithTransientFailures(2), WithCannedAnswer("yes"))

	for i := 0; i < 2; i++ {
		if _, err := m.Call(context.Background(), "q", ""); !IsTransient(err) {
			t.Fatalf("call %d: expected transient error, got %v", i, err)
		}
	}
	raw, err := m.Call(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("third call should succeed, got %v", err)
	}
	if raw["answer"] != "yes" {
		t.Errorf("unexpected answer %v", raw["answer"])
	}
	if m.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", m.CallCount())
	}
}

func TestTestModelViaRegistry(t *testing.T) {
	model, err := New(Spec{Provider: "test", Model: "test-model"}, nil, nil)
	if err != nil {
		t.Fatalf("registry lookup failed: %v", err)
	}
	if model.ModelName() != "test-model" {
		t.Errorf("unexpected model name %s", model.ModelName())
	}

	if _, err := New(Spec{Provider: "nope", Model: "x"}, nil, nil); err == nil {
		t.Error("unknown provider must fail")
	}
}

func TestDigNavigatesNestedResponses(t *testing.T) {
	raw := map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": "hello"}},
		},
	}
	text, err := digString(raw, "choices", 0, "message", "content")
	if err != nil {
		t.Fatalf("digString failed: %v", err)
	}
	if text != "hello" {
		t.Errorf("unexpected text %q", text)
	}

	if _, err := digString(raw, "choices", 1, "message", "content"); err == nil {
		t.Error("out-of-range index must fail")
	}
	if _, err := digString(raw, "missing"); err == nil {
		t.Error("missing field must fail")
	}
}
