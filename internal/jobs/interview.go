// -----------------------------------------------------------------------
// Interview: conducts one agent through one survey with one model,
// sequential questions, cache probe before every call
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/agents"
	"github.com/nurv/edsl/internal/buckets"
	"github.com/nurv/edsl/internal/cache"
	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/interfaces"
	"github.com/nurv/edsl/internal/language_models"
	"github.com/nurv/edsl/internal/models"
	"github.com/nurv/edsl/internal/results"
	"github.com/nurv/edsl/internal/surveys"
)

// maxValidationRetries is how many extra LM calls a question gets when its
// answer fails validation, on top of the call that produced the bad
// answer.
const maxValidationRetries = 3

// charsPerToken is the crude prompt-size estimate fed to the token bucket.
const charsPerToken = 4

// Interview walks one (agent, scenario, model, iteration) combination
// through the survey. Questions are sequential within an interview; the
// runner provides concurrency across interviews.
type Interview struct {
	ID    string
	Index int

	survey      *surveys.Survey
	invigilator *agents.Invigilator
	model       interfaces.LanguageModel
	iteration   int

	cache   *cache.Cache
	buckets *buckets.ModelBuckets
	retry   *language_models.RetryConfig

	callTimeout time.Duration
	logger      arbor.ILogger
}

// NewInterview assembles one interview. The cache and buckets are shared
// across the run; everything else is per-interview.
func NewInterview(index int, survey *surveys.Survey, invigilator *agents.Invigilator, model interfaces.LanguageModel, iteration int, responseCache *cache.Cache, modelBuckets *buckets.ModelBuckets, callTimeout time.Duration, logger arbor.ILogger) *Interview {
	return &Interview{
		ID:          common.NewInterviewID(),
		Index:       index,
		survey:      survey,
		invigilator: invigilator,
		model:       model,
		iteration:   iteration,
		cache:       responseCache,
		buckets:     modelBuckets,
		retry:       language_models.NewDefaultRetryConfig(),
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// SetRetryConfig replaces the default transient-retry policy.
func (iv *Interview) SetRetryConfig(cfg *language_models.RetryConfig) {
	iv.retry = cfg
}

// questionOutcome is what one question attempt produced.
type questionOutcome struct {
	answer   models.Answer
	prompts  agents.Prompts
	raw      models.RawResponse
	cacheHit bool
	attempts int
}

// Conduct runs the interview to completion. Per-question failures are
// recorded as exceptions and skip the question's DAG dependents; errors
// returned here are fatal to the interview (rule evaluation) or the whole
// run (bucket capacity, cancellation).
func (iv *Interview) Conduct(ctx context.Context) (*results.Result, []models.ExceptionEntry, error) {
	result := &results.Result{
		InterviewIndex: iv.Index,
		Agent:          iv.invigilator.Agent(),
		Scenario:       iv.invigilator.Scenario(),
		Model:          iv.model.ModelName(),
		Iteration:      iv.iteration,
		Answers:        make(models.Answers),
		Prompts:        make(map[string]agents.Prompts),
		RawResponses:   make(map[string]models.RawResponse),
		TaskStatus:     models.NewTaskStatus(iv.survey.Names()),
	}
	var exceptions []models.ExceptionEntry
	skipped := make(map[int]bool)

	current := iv.survey.FirstQuestion()
	for current != surveys.EndOfSurvey {
		if err := ctx.Err(); err != nil {
			return nil, exceptions, err
		}
		if skipped[current] {
			current = iv.nextIndex(current)
			continue
		}

		question, err := iv.survey.Question(current)
		if err != nil {
			return nil, exceptions, err
		}

		startedAt := time.Now()
		result.TaskStatus[question.Name()] = models.StatusRunning
		outcome, err := iv.askQuestion(ctx, current, question, result.Answers)
		if err != nil {
			if fatal := iv.fatalError(err); fatal != nil {
				return nil, exceptions, fatal
			}
			result.TaskStatus[question.Name()] = models.StatusFailed

			exceptions = append(exceptions, models.ExceptionEntry{
				InterviewIndex: iv.Index,
				QuestionName:   question.Name(),
				Kind:           classifyExceptionKind(err),
				Message:        err.Error(),
				Attempts:       attemptsFrom(err),
				StartedAt:      startedAt,
				CompletedAt:    time.Now(),
			})
			iv.logger.Warn().
				Str("interview", iv.ID).
				Str("question", question.Name()).
				Err(err).
				Msg("Question failed")

			for _, dependent := range iv.survey.Dependents(current) {
				if !skipped[dependent] {
					skipped[dependent] = true
					dependentName := iv.survey.Questions()[dependent].Name()
					result.TaskStatus[dependentName] = models.StatusSkipped
					result.SkippedQuestions = append(result.SkippedQuestions, dependentName)
					exceptions = append(exceptions, models.ExceptionEntry{
						InterviewIndex: iv.Index,
						QuestionName:   dependentName,
						Kind:           "skipped",
						Message:        fmt.Sprintf("dependency %s failed", question.Name()),
						StartedAt:      time.Now(),
						CompletedAt:    time.Now(),
					})
				}
			}
			// A failed answer cannot drive rules, so advance linearly.
			current = iv.nextIndex(current)
			continue
		}

		result.TaskStatus[question.Name()] = models.StatusSucceeded
		result.Answers[question.Name()] = outcome.answer
		result.Prompts[question.Name()] = outcome.prompts
		result.RawResponses[question.Name()] = outcome.raw
		result.Path = append(result.Path, question.Name())

		routing, err := iv.survey.NextQuestion(current, result.Answers.Bindings())
		if err != nil {
			return nil, exceptions, fmt.Errorf("interview %s at question %s: %w", iv.ID, question.Name(), err)
		}
		if routing.Next > current+1 {
			// Rules jumped past questions: those are skipped by routing,
			// not failure, so they carry no exception.
			for q := current + 1; q < routing.Next; q++ {
				if !skipped[q] {
					skipped[q] = true
					name := iv.survey.Questions()[q].Name()
					result.TaskStatus[name] = models.StatusSkipped
					result.SkippedQuestions = append(result.SkippedQuestions, name)
				}
			}
		}
		current = routing.Next
	}

	return result, exceptions, nil
}

// nextIndex advances linearly past a failed or skipped question, since a
// missing answer cannot drive rule routing.
func (iv *Interview) nextIndex(current int) int {
	next := current + 1
	if next >= iv.survey.Len() {
		return surveys.EndOfSurvey
	}
	return next
}

// askQuestion executes the per-question protocol: prompts, cache probe,
// rate gate, model call with retries, validation, cache store.
func (iv *Interview) askQuestion(ctx context.Context, index int, question surveys.Question, answers models.Answers) (questionOutcome, error) {
	memory := iv.memoryEntries(index, answers)
	prompts := iv.invigilator.BuildPrompts(question, memory)
	outcome := questionOutcome{prompts: prompts}

	parameters := iv.model.Parameters()
	modelName := iv.model.ModelName()

	if output, ok := iv.cache.Fetch(modelName, parameters, prompts.System, prompts.User, iv.iteration); ok {
		var raw models.RawResponse
		if err := json.Unmarshal([]byte(output), &raw); err == nil {
			if answer, err := iv.parseAndValidate(question, raw); err == nil {
				outcome.answer = answer
				outcome.raw = raw
				outcome.cacheHit = true
				iv.logger.Debug().
					Str("interview", iv.ID).
					Str("question", question.Name()).
					Msg("Cache hit")
				return outcome, nil
			}
		}
		// A cached entry that no longer decodes or validates falls
		// through to a fresh call.
		iv.logger.Warn().
			Str("interview", iv.ID).
			Str("question", question.Name()).
			Msg("Cached response unusable, calling model")
	}

	var lastErr error
	for attempt := 0; attempt <= maxValidationRetries; attempt++ {
		outcome.attempts = attempt + 1

		raw, err := iv.callModel(ctx, prompts)
		if err != nil {
			return outcome, err
		}

		answer, err := iv.parseAndValidate(question, raw)
		if err != nil {
			if !errors.Is(err, surveys.ErrInvalidAnswer) {
				return outcome, err
			}
			lastErr = err
			iv.logger.Debug().
				Str("interview", iv.ID).
				Str("question", question.Name()).
				Int("attempt", attempt+1).
				Err(err).
				Msg("Answer failed validation, retrying")
			continue
		}

		if _, err := iv.cache.Store(modelName, parameters, prompts.System, prompts.User, map[string]any(raw), iv.iteration); err != nil {
			iv.logger.Warn().Err(err).Str("question", question.Name()).Msg("Failed to cache response")
		}
		outcome.answer = answer
		outcome.raw = raw
		return outcome, nil
	}
	return outcome, fmt.Errorf("question %s failed validation after %d attempts: %w", question.Name(), maxValidationRetries+1, lastErr)
}

// callModel acquires the rate budget and executes one LM call with
// transient-failure retries.
func (iv *Interview) callModel(ctx context.Context, prompts agents.Prompts) (models.RawResponse, error) {
	if err := iv.buckets.Requests.Take(ctx, 1); err != nil {
		return nil, err
	}
	estimate := float64((len(prompts.System) + len(prompts.User) + charsPerToken - 1) / charsPerToken)
	if err := iv.buckets.Tokens.Take(ctx, estimate); err != nil {
		return nil, err
	}

	return language_models.CallWithRetry(ctx, iv.retry, iv.logger, iv.model.ModelName(), func(ctx context.Context) (models.RawResponse, error) {
		callCtx := ctx
		if iv.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, iv.callTimeout)
			defer cancel()
		}
		return iv.model.Call(callCtx, prompts.User, prompts.System)
	})
}

// parseAndValidate turns a raw response into a validated answer.
func (iv *Interview) parseAndValidate(question surveys.Question, raw models.RawResponse) (models.Answer, error) {
	text, err := iv.model.Parse(raw)
	if err != nil {
		return models.Answer{}, fmt.Errorf("%w: %v", surveys.ErrInvalidAnswer, err)
	}
	return iv.invigilator.ValidateResponse(question, text)
}

// memoryEntries resolves the memory plan into prior question/answer pairs.
func (iv *Interview) memoryEntries(current int, answers models.Answers) []agents.MemoryEntry {
	var memory []agents.MemoryEntry
	for _, index := range iv.survey.Remembered(current) {
		question := iv.survey.Questions()[index]
		answer, ok := answers[question.Name()]
		if !ok {
			continue
		}
		memory = append(memory, agents.MemoryEntry{
			QuestionText: question.Text(),
			Answer:       answer.Value,
		})
	}
	return memory
}

// fatalError returns a non-nil error when the failure must abort beyond
// this question: cancellation and bucket misconfiguration stop the run,
// unevaluable rules stop the interview.
func (iv *Interview) fatalError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, buckets.ErrBucketCapacityExceeded):
		return fmt.Errorf("interview %s: %w", iv.ID, err)
	case errors.Is(err, surveys.ErrRuleCannotEvaluate), errors.Is(err, surveys.ErrNoRulesAtNode):
		return fmt.Errorf("interview %s: %w", iv.ID, err)
	}
	return nil
}

// classifyExceptionKind maps a per-question failure to its TaskHistory
// kind.
func classifyExceptionKind(err error) string {
	switch {
	case errors.Is(err, surveys.ErrInvalidAnswer):
		return "validation"
	case errors.Is(err, context.DeadlineExceeded), language_models.IsTransient(err):
		return "transient"
	case language_models.IsPermanent(err):
		return "permanent"
	default:
		return "permanent"
	}
}

// attemptsFrom extracts the attempt count recorded in validation failure
// messages; zero when unknown.
func attemptsFrom(err error) int {
	if errors.Is(err, surveys.ErrInvalidAnswer) {
		return maxValidationRetries + 1
	}
	return 0
}
