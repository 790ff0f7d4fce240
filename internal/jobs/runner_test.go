package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/agents"
	"github.com/nurv/edsl/internal/cache"
	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/language_models"
	"github.com/nurv/edsl/internal/scenarios"
	"github.com/nurv/edsl/internal/surveys"
)

func runConfig() *common.RunConfig {
	return &common.RunConfig{
		Iterations:     1,
		MaxConcurrent:  10,
		TimeoutSeconds: 30,
		BurstFactor:    1,
	}
}

func TestRunFreshJobCallsModelPerQuestion(t *testing.T) {
	// 3 questions x 2 iterations: 6 calls, 6 cache entries.
	survey := freeTextSurvey(t, "q_one", "q_two", "q_three")
	model := language_models.NewTestModel("test-model")
	c := cache.New(true, arbor.NewLogger())

	cfg := runConfig()
	cfg.Iterations = 2
	runner := NewRunner(cfg, arbor.NewLogger())

	collected, err := runner.Run(context.Background(), NewJobs(survey).ByModels(model), c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if collected.Len() != 2 {
		t.Errorf("got %d results, want 2", collected.Len())
	}
	if model.CallCount() != 6 {
		t.Errorf("model called %d times, want 6", model.CallCount())
	}
	if c.Len() != 6 {
		t.Errorf("cache holds %d entries, want 6", c.Len())
	}
	if collected.HasExceptions() {
		t.Errorf("unexpected exceptions: %v", collected.TaskHistory.Entries)
	}
}

func TestRunSecondPassIsFullyCached(t *testing.T) {
	survey := freeTextSurvey(t, "q_one", "q_two")
	c := cache.New(true, arbor.NewLogger())
	runner := NewRunner(runConfig(), arbor.NewLogger())

	first := language_models.NewTestModel("test-model")
	if _, err := runner.Run(context.Background(), NewJobs(survey).ByModels(first), c); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := language_models.NewTestModel("test-model")
	collected, err := runner.Run(context.Background(), NewJobs(survey).ByModels(second), c)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.CallCount() != 0 {
		t.Errorf("cached run still made %d calls", second.CallCount())
	}
	if collected.Len() != 1 {
		t.Errorf("got %d results", collected.Len())
	}
}

func TestRunCrossProductMaterialization(t *testing.T) {
	survey := freeTextSurvey(t, "q_one")
	model := language_models.NewTestModel("test-model")
	c := cache.New(true, arbor.NewLogger())

	job := NewJobs(survey).
		ByAgents(agents.NewAgent("a1", nil), agents.NewAgent("a2", nil)).
		ByScenarios(scenarios.Scenario{"x": 1}, scenarios.Scenario{"x": 2}, scenarios.Scenario{"x": 3}).
		ByModels(model)

	if size := job.Size(1); size != 6 {
		t.Errorf("Size = %d, want 6", size)
	}

	collected, err := NewRunner(runConfig(), arbor.NewLogger()).Run(context.Background(), job, c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if collected.Len() != 6 {
		t.Errorf("got %d results, want 6", collected.Len())
	}
}

func TestRunPartialFailureIsolation(t *testing.T) {
	// One model fails permanently, the other answers: the failing model's
	// interviews land in TaskHistory, the healthy one's results survive.
	survey := freeTextSurvey(t, "q_one")
	healthy := language_models.NewTestModel("healthy-model")
	broken := language_models.NewTestModel("broken-model", language_models.WithPermanentFailure(errors.New("invalid api key")))
	c := cache.New(true, arbor.NewLogger())

	job := NewJobs(survey).ByModels(healthy, broken)
	collected, err := NewRunner(runConfig(), arbor.NewLogger()).Run(context.Background(), job, c)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if collected.Len() != 2 {
		t.Errorf("got %d results, want 2", collected.Len())
	}
	if !collected.HasExceptions() {
		t.Fatal("expected exceptions from the broken model")
	}

	answered := 0
	for _, row := range collected.Rows {
		if len(row.Answers) == 1 {
			answered++
		}
	}
	if answered != 1 {
		t.Errorf("%d interviews answered, want exactly the healthy one", answered)
	}
}

func TestRunStopOnExceptionCancelsPeers(t *testing.T) {
	survey := freeTextSurvey(t, "q_one")
	broken := language_models.NewTestModel("broken-model", language_models.WithPermanentFailure(errors.New("invalid api key")))
	slow := language_models.NewTestModel("slow-model", language_models.WithCallDelay(5*time.Second))
	c := cache.New(true, arbor.NewLogger())

	cfg := runConfig()
	cfg.StopOnException = true
	job := NewJobs(survey).ByModels(broken, slow)

	start := time.Now()
	_, err := NewRunner(cfg, arbor.NewLogger()).Run(context.Background(), job, c)
	if err == nil {
		t.Fatal("expected the failure to surface")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("peers were not cancelled promptly, run took %v", elapsed)
	}
}

func TestRunCancellation(t *testing.T) {
	survey := freeTextSurvey(t, "q_one")
	slow := language_models.NewTestModel("slow-model", language_models.WithCallDelay(5*time.Second))
	c := cache.New(true, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := NewRunner(runConfig(), arbor.NewLogger()).Run(ctx, NewJobs(survey).ByModels(slow), c)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
}

func TestSampleProgressCounts(t *testing.T) {
	startedAt := time.Now().Add(-2 * time.Second)
	p := sampleProgress(10, 7, 4, startedAt)

	if p.completed != 4 {
		t.Errorf("completed = %d", p.completed)
	}
	if p.inFlight != 3 {
		t.Errorf("inFlight = %d, want started minus completed", p.inFlight)
	}
	if p.pending != 3 {
		t.Errorf("pending = %d, want total minus started", p.pending)
	}
	if p.elapsed < 2*time.Second {
		t.Errorf("elapsed = %v", p.elapsed)
	}
}

func TestRunRejectsJobWithoutModels(t *testing.T) {
	survey := freeTextSurvey(t, "q_one")
	c := cache.New(true, arbor.NewLogger())
	if _, err := NewRunner(runConfig(), arbor.NewLogger()).Run(context.Background(), NewJobs(survey), c); err == nil {
		t.Error("expected error for model-less job")
	}
}

func TestRunSharedRequestBucketPacesInterviews(t *testing.T) {
	// RPM 120 means 2 requests/second with a burst of 2: 6 concurrent
	// interviews of one question each need about 2 extra seconds.
	question, err := surveys.NewFreeTextQuestion("q_one", "Question number {{ i }}?")
	if err != nil {
		t.Fatal(err)
	}
	survey, err := surveys.NewSurvey([]surveys.Question{question})
	if err != nil {
		t.Fatal(err)
	}
	model := language_models.NewTestModel("limited-model",
		language_models.WithTestRateLimits(120, 10_000_000))
	c := cache.New(true, arbor.NewLogger())

	job := NewJobs(survey).
		ByScenarios(
			scenarios.Scenario{"i": 0}, scenarios.Scenario{"i": 1},
			scenarios.Scenario{"i": 2}, scenarios.Scenario{"i": 3},
			scenarios.Scenario{"i": 4}, scenarios.Scenario{"i": 5},
		).
		ByModels(model)

	cfg := runConfig()
	cfg.MaxConcurrent = 6

	start := time.Now()
	collected, runErr := NewRunner(cfg, arbor.NewLogger()).Run(context.Background(), job, c)
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	elapsed := time.Since(start)

	if collected.Len() != 6 {
		t.Errorf("got %d results", collected.Len())
	}
	if elapsed < 1500*time.Millisecond || elapsed > 5*time.Second {
		t.Errorf("expected roughly 2s of bucket pacing, run took %v", elapsed)
	}
	if model.CallCount() != 6 {
		t.Errorf("model called %d times", model.CallCount())
	}
}
