// -----------------------------------------------------------------------
// Runner: one goroutine per interview on a bounded pool, results
// collected in completion order
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/ternarybob/arbor"

	"github.com/nurv/edsl/internal/agents"
	"github.com/nurv/edsl/internal/buckets"
	"github.com/nurv/edsl/internal/cache"
	"github.com/nurv/edsl/internal/common"
	"github.com/nurv/edsl/internal/models"
	"github.com/nurv/edsl/internal/results"
)

// progressInterval is the sampling period of the progress reporter,
// 8 updates per second.
const progressInterval = 125 * time.Millisecond

// Runner executes a job's interviews concurrently against a shared cache
// and shared per-model rate buckets.
type Runner struct {
	config *common.RunConfig
	logger arbor.ILogger
}

// NewRunner creates a runner with the given options.
func NewRunner(config *common.RunConfig, logger arbor.ILogger) *Runner {
	return &Runner{config: config, logger: logger}
}

// interviewOutcome carries one finished interview back to the collector.
type interviewOutcome struct {
	index      int
	result     *results.Result
	exceptions []models.ExceptionEntry
	err        error
}

// Run materializes the job into interviews and executes them on a bounded
// worker pool. Per-interview failures land in the result's TaskHistory;
// the returned error is reserved for run-fatal conditions. With
// stop_on_exception enabled the first failure cancels all peers.
func (r *Runner) Run(ctx context.Context, job *Jobs, responseCache *cache.Cache) (*results.Results, error) {
	combos, err := job.combinations()
	if err != nil {
		return nil, err
	}

	iterations := r.config.Iterations
	if iterations < 1 {
		iterations = 1
	}
	maxConcurrent := r.config.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = common.DefaultMaxConcurrent
	}
	callTimeout := time.Duration(r.config.TimeoutSeconds) * time.Second

	bucketCollection := buckets.NewBucketCollection(r.logger)
	if r.config.BurstFactor > 0 {
		bucketCollection.SetBurstFactor(r.config.BurstFactor)
	}

	interviews := make([]*Interview, 0, len(combos)*iterations)
	for _, combo := range combos {
		modelBuckets := bucketCollection.AddModel(combo.model)
		invigilator := agents.NewInvigilator(combo.agent, combo.scenario)
		for iteration := 1; iteration <= iterations; iteration++ {
			interviews = append(interviews, NewInterview(
				len(interviews),
				job.survey,
				invigilator,
				combo.model,
				iteration,
				responseCache,
				modelBuckets,
				callTimeout,
				r.logger,
			))
		}
	}

	r.logger.Info().
		Int("interviews", len(interviews)).
		Int("max_concurrent", maxConcurrent).
		Int("iterations", iterations).
		Msg("Starting job run")

	return r.runInterviews(ctx, interviews, maxConcurrent)
}

// runInterviews drives the pool and collects outcomes as they complete.
func (r *Runner) runInterviews(ctx context.Context, interviews []*Interview, maxConcurrent int) (*results.Results, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	pool, err := ants.NewPool(maxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	outcomes := make(chan interviewOutcome, len(interviews))
	var started, completed atomic.Int64
	var wg sync.WaitGroup

	if r.config.ProgressBar {
		stopProgress := r.startProgress(len(interviews), &started, &completed)
		defer stopProgress()
	}

	for _, interview := range interviews {
		interview := interview
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			started.Add(1)
			result, exceptions, err := interview.Conduct(runCtx)
			completed.Add(1)
			outcomes <- interviewOutcome{index: interview.Index, result: result, exceptions: exceptions, err: err}
		})
		if submitErr != nil {
			wg.Done()
			started.Add(1)
			completed.Add(1)
			outcomes <- interviewOutcome{index: interview.Index, err: fmt.Errorf("failed to submit interview %d: %w", interview.Index, submitErr)}
		}
	}

	common.SafeGo(r.logger, "outcome-closer", func() {
		wg.Wait()
		close(outcomes)
	})

	collected := results.NewResults()
	var fatal error
	for outcome := range outcomes {
		for _, exception := range outcome.exceptions {
			collected.TaskHistory.Append(exception)
		}

		if outcome.err != nil {
			if errors.Is(outcome.err, context.Canceled) {
				continue
			}
			if isRunFatal(outcome.err) {
				if fatal == nil {
					fatal = outcome.err
				}
				cancel(outcome.err)
				continue
			}
			// Interview-fatal (rule evaluation) failures: the interview
			// produced no result, but peers keep running.
			collected.TaskHistory.Append(models.ExceptionEntry{
				InterviewIndex: outcome.index,
				Kind:           "rule",
				Message:        outcome.err.Error(),
				StartedAt:      time.Now(),
				CompletedAt:    time.Now(),
			})
			if r.config.StopOnException && fatal == nil {
				fatal = outcome.err
				cancel(outcome.err)
			}
			continue
		}

		if outcome.result != nil {
			collected.Append(outcome.result)
		}
		if r.config.StopOnException && len(outcome.exceptions) > 0 && fatal == nil {
			fatal = fmt.Errorf("interview %d failed: %s", outcome.index, outcome.exceptions[0].Message)
			cancel(fatal)
		}
	}

	if fatal != nil {
		return collected, fatal
	}
	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return collected, cause
	}
	if err := ctx.Err(); err != nil {
		return collected, err
	}

	r.logger.Info().
		Int("interviews", collected.Len()).
		Int("exceptions", collected.TaskHistory.Len()).
		Msg(collected.Summary())
	return collected, nil
}

// progress is one sampled snapshot of the run.
type progress struct {
	completed int64
	inFlight  int64
	pending   int64
	elapsed   time.Duration
}

// sampleProgress derives the snapshot from the counters. Pending counts
// interviews not yet picked up by a worker.
func sampleProgress(total int, started, completed int64, startedAt time.Time) progress {
	return progress{
		completed: completed,
		inFlight:  started - completed,
		pending:   int64(total) - started,
		elapsed:   time.Since(startedAt),
	}
}

// startProgress launches the sampling reporter and returns its stop
// function for deferred shutdown.
func (r *Runner) startProgress(total int, started, completed *atomic.Int64) func() {
	done := make(chan struct{})
	var once sync.Once
	startedAt := time.Now()

	common.SafeGo(r.logger, "progress-sampler", func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := sampleProgress(total, started.Load(), completed.Load(), startedAt)
				r.logger.Info().
					Int64("completed", p.completed).
					Int64("in_flight", p.inFlight).
					Int64("pending", p.pending).
					Int("total", total).
					Str("elapsed", p.elapsed.Round(time.Millisecond).String()).
					Msg("Interview progress")
			}
		}
	})
	return func() { once.Do(func() { close(done) }) }
}

// isRunFatal reports whether an interview error must stop the whole run
// rather than land in TaskHistory.
func isRunFatal(err error) bool {
	return errors.Is(err, buckets.ErrBucketCapacityExceeded)
}
