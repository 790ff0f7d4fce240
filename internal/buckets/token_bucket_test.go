package buckets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nurv/edsl/internal/models"
	"github.com/ternarybob/arbor"
)

func TestTakeImmediateWhenAvailable(t *testing.T) {
	bucket := NewTokenBucket(10, 1)

	start := time.Now()
	if err := bucket.Take(context.Background(), 5); err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Take should not block when tokens are available, took %v", elapsed)
	}
	if level := bucket.Level(); level > 5.1 {
		t.Errorf("Expected ~5 tokens left, got %.2f", level)
	}
}

func TestTakeExceedingCapacityFails(t *testing.T) {
	bucket := NewTokenBucket(10, 1)

	err := bucket.Take(context.Background(), 11)
	if !errors.Is(err, ErrBucketCapacityExceeded) {
		t.Fatalf("Expected ErrBucketCapacityExceeded, got %v", err)
	}
	// The failed take must not consume anything.
	if level := bucket.Level(); level < 9.9 {
		t.Errorf("Failed take consumed tokens, level %.2f", level)
	}
}

func TestTakeWaitsForRefill(t *testing.T) {
	bucket := NewTokenBucket(10, 100)
	if err := bucket.Take(context.Background(), 10); err != nil {
		t.Fatalf("Draining take failed: %v", err)
	}

	// Empty bucket refilling at 100/s: 5 tokens need ~50ms.
	start := time.Now()
	if err := bucket.Take(context.Background(), 5); err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 30*time.Millisecond {
		t.Errorf("Take returned before refill could cover the request: %v", elapsed)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Take waited far longer than needed: %v", elapsed)
	}
}

func TestTakeHonorsCancellation(t *testing.T) {
	bucket := NewTokenBucket(10, 0.001)
	if err := bucket.Take(context.Background(), 10); err != nil {
		t.Fatalf("Draining take failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := bucket.Take(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Cancelled take returned too slowly: %v", elapsed)
	}
}

func TestWaitTimeEstimate(t *testing.T) {
	bucket := NewTokenBucket(10, 10)

	if wait := bucket.WaitTime(5); wait != 0 {
		t.Errorf("Full bucket should need no wait, got %v", wait)
	}

	if err := bucket.Take(context.Background(), 10); err != nil {
		t.Fatalf("Draining take failed: %v", err)
	}
	wait := bucket.WaitTime(5)
	if wait < 200*time.Millisecond || wait > 600*time.Millisecond {
		t.Errorf("Expected ~500ms wait estimate, got %v", wait)
	}
}

func TestRefillNeverExceedsCapacity(t *testing.T) {
	bucket := NewTokenBucket(5, 1000)
	bucket.Take(context.Background(), 3)
	time.Sleep(20 * time.Millisecond)

	if level := bucket.Level(); level > 5 {
		t.Errorf("Level exceeded capacity: %.2f", level)
	}
}

func TestLevelLogRecordsSamples(t *testing.T) {
	bucket := NewTokenBucket(10, 1)
	bucket.Take(context.Background(), 1)
	bucket.Take(context.Background(), 2)

	log := bucket.Log()
	if len(log) == 0 {
		t.Fatal("Expected level samples after takes")
	}
	last := log[len(log)-1]
	if last.Tokens > 7.1 {
		t.Errorf("Last sample should reflect deductions, got %.2f", last.Tokens)
	}
}

func TestConcurrentTakes(t *testing.T) {
	bucket := NewTokenBucket(100, 1000)

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			done <- bucket.Take(context.Background(), 10)
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-done; err != nil {
			t.Errorf("Concurrent take failed: %v", err)
		}
	}
	if level := bucket.Level(); level > 100 {
		t.Errorf("Level exceeded capacity under concurrency: %.2f", level)
	}
}

// limitedModel is a stub advertising fixed rate limits.
type limitedModel struct {
	name string
	rpm  int
	tpm  int
}

func (m *limitedModel) Call(ctx context.Context, userPrompt, systemPrompt string) (models.RawResponse, error) {
	return models.RawResponse{}, nil
}

func (m *limitedModel) Parse(raw models.RawResponse) (string, error) { return "", nil }

func (m *limitedModel) RateLimits() models.RateLimits {
	return models.RateLimits{RPM: m.rpm, TPM: m.tpm}
}

func (m *limitedModel) ModelName() string { return m.name }

func (m *limitedModel) Parameters() string { return "{}" }

func TestBucketCollectionUsesAdvertisedLimits(t *testing.T) {
	collection := NewBucketCollection(arbor.NewLogger())
	mb := collection.AddModel(&limitedModel{name: "gpt-4o", rpm: 600, tpm: 60000})

	if got := mb.Requests.Capacity(); got != 10 {
		t.Errorf("Expected requests capacity 10 (600 rpm / 60), got %.2f", got)
	}
	if got := mb.Requests.RefillRate(); got != 10 {
		t.Errorf("Expected requests refill 10/s, got %.2f", got)
	}
	if got := mb.Tokens.Capacity(); got != 1000 {
		t.Errorf("Expected tokens capacity 1000 (60000 tpm / 60), got %.2f", got)
	}
}

func TestBucketCollectionFallbackLimits(t *testing.T) {
	collection := NewBucketCollection(arbor.NewLogger())
	mb := collection.AddModel(&limitedModel{name: "mystery"})

	if got := mb.Requests.RefillRate(); got != 10000.0/60.0 {
		t.Errorf("Expected fallback RPM refill, got %.4f", got)
	}
	if got := mb.Tokens.RefillRate(); got != 2000000.0/60.0 {
		t.Errorf("Expected fallback TPM refill, got %.4f", got)
	}
}

func TestBucketCollectionIdempotent(t *testing.T) {
	collection := NewBucketCollection(arbor.NewLogger())

	first := collection.AddModel(&limitedModel{name: "gpt-4o", rpm: 600, tpm: 60000})
	second := collection.AddModel(&limitedModel{name: "gpt-4o", rpm: 1, tpm: 1})
	if first != second {
		t.Error("AddModel must return the same buckets for the same model name")
	}

	other := collection.AddModel(&limitedModel{name: "claude-3-5-sonnet", rpm: 600, tpm: 60000})
	if other == first {
		t.Error("Distinct models must get distinct buckets")
	}

	if mb, ok := collection.Get("gpt-4o"); !ok || mb != first {
		t.Error("Get must return the created buckets")
	}
	if _, ok := collection.Get("unknown"); ok {
		t.Error("Get must report missing models")
	}
}
