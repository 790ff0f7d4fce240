// -----------------------------------------------------------------------
// Deterministic in-repo model for tests and dry runs (provider "test")
// -----------------------------------------------------------------------

package language_models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/models"
)

// RespondFunc produces the answer value for one call.
type RespondFunc func(userPrompt, systemPrompt string) any

// TestModel is a deterministic LanguageModel for tests and dry runs. It
// counts calls, can script transient failures before succeeding, and wraps
// its answer in the {"answer": ...} shape questions expect.
type TestModel struct {
	name       string
	parameters string
	limits     models.RateLimits
	respond    RespondFunc
	comment    string
	delay      time.Duration

	mu               sync.Mutex
	failuresToInject int
	permanentErr     error

	calls atomic.Int64
}

// TestModelOption configures a TestModel.
type TestModelOption func(*TestModel)

// WithCannedAnswer makes every call return the same answer value.
func WithCannedAnswer(answer any) TestModelOption {
	return func(m *TestModel) {
		m.respond = func(string, string) any { return answer }
	}
}

// WithRespondFunc drives answers from the prompts.
func WithRespondFunc(fn RespondFunc) TestModelOption {
	return func(m *TestModel) {
		m.respond = fn
	}
}

// WithComment attaches a comment to every answer.
func WithComment(comment string) TestModelOption {
	return func(m *TestModel) {
		m.comment = comment
	}
}

// WithTransientFailures fails the first n calls with a transient error.
func WithTransientFailures(n int) TestModelOption {
	return func(m *TestModel) {
		m.failuresToInject = n
	}
}

// WithPermanentFailure fails every call with a permanent error.
func WithPermanentFailure(err error) TestModelOption {
	return func(m *TestModel) {
		m.permanentErr = err
	}
}

// WithTestRateLimits overrides the advertised rate limits.
func WithTestRateLimits(rpm, tpm int) TestModelOption {
	return func(m *TestModel) {
		m.limits = models.RateLimits{RPM: rpm, TPM: tpm}
	}
}

// WithCallDelay makes every call sleep, to simulate latency.
func WithCallDelay(d time.Duration) TestModelOption {
	return func(m *TestModel) {
		m.delay = d
	}
}

// WithTestParameters sets the sampler parameters hashed into fingerprints.
func WithTestParameters(params map[string]any) TestModelOption {
	return func(m *TestModel) {
		m.parameters = models.CanonicalParameters(params)
	}
}

// NewTestModel creates a test model. By default it answers with the user
// prompt uppercased.
func NewTestModel(name string, opts ...TestModelOption) *TestModel {
	m := &TestModel{
		name:       name,
		parameters: models.CanonicalParameters(nil),
		limits:     models.RateLimits{RPM: common.DefaultRPM, TPM: common.DefaultTPM},
		respond: func(userPrompt, _ string) any {
			return strings.ToUpper(userPrompt)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newTestModelFromSpec(spec Spec, cfg *common.ModelsConfig, logger arbor.ILogger) (interfaces.LanguageModel, error) {
	opts := []TestModelOption{WithTestParameters(spec.Parameters)}
	if spec.RPM > 0 || spec.TPM > 0 {
		rpm, tpm := resolveLimits(spec, cfg)
		opts = append(opts, WithTestRateLimits(rpm, tpm))
	}
	if canned, ok := spec.Parameters["canned_answer"]; ok {
		opts = append(opts, WithCannedAnswer(canned))
	}
	return NewTestModel(spec.Model, opts...), nil
}

// Call returns the scripted answer wrapped as {"answer": ..., "comment": ...}.
func (m *TestModel) Call(ctx context.Context, userPrompt, systemPrompt string) (models.RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	m.mu.Lock()
	if m.permanentErr != nil {
		err := m.permanentErr
		m.mu.Unlock()
		return nil, PermanentError("test", m.name, err)
	}
	if m.failuresToInject > 0 {
		m.failuresToInject--
		m.mu.Unlock()
		return nil, TransientError("test", m.name, errors.New("scripted transient failure"))
	}
	m.mu.Unlock()

	raw := models.RawResponse{"answer": m.respond(userPrompt, systemPrompt)}
	if m.comment != "" {
		raw["comment"] = m.comment
	}
	return raw, nil
}

// Parse serializes the raw answer map back to the JSON string questions
// decode.
func (m *TestModel) Parse(raw models.RawResponse) (string, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("failed to encode test response: %w", err)
	}
	return string(data), nil
}

// RateLimits returns the advertised limits.
func (m *TestModel) RateLimits() models.RateLimits {
	return m.limits
}

// ModelName returns the model identifier.
func (m *TestModel) ModelName() string {
	return m.name
}

// Parameters returns the canonical sampler-parameter string.
func (m *TestModel) Parameters() string {
	return m.parameters
}

// CallCount returns the number of Call invocations, cache hits excluded.
func (m *TestModel) CallCount() int64 {
	return m.calls.Load()
}
