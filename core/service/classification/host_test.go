package classification

import (
	"context"
	"sync"
	"testing"

	"inquiry_server/config"
	"inquiry_server/core/domain"
	"inquiry_server/core/service/preprocess"
	"inquiry_server/pkg/apperr"
	"inquiry_server/pkg/logger"
	"inquiry_server/pkg/metrics"
)

// failingCategoryBackend simulates a dead learned backend.
type failingCategoryBackend struct {
	mu    sync.Mutex
	calls int
}

func (b *failingCategoryBackend) Name() string { return "category-failing" }

func (b *failingCategoryBackend) Predict(context.Context, *preprocess.Canonical) (*CategoryResult, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return nil, ErrModelUnavailable
}

func (b *failingCategoryBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type failingSentimentBackend struct{}

func (b *failingSentimentBackend) Name() string { return "sentiment-failing" }

func (b *failingSentimentBackend) Predict(context.Context, *preprocess.Canonical) (*SentimentResult, error) {
	return nil, ErrModelUnavailable
}

type stubCategoryBackend struct{}

func (b *stubCategoryBackend) Name() string { return "category-stub" }

func (b *stubCategoryBackend) Predict(context.Context, *preprocess.Canonical) (*CategoryResult, error) {
	return &CategoryResult{Category: domain.CategorySales, Confidence: 0.9}, nil
}

type stubSentimentBackend struct{}

func (b *stubSentimentBackend) Name() string { return "sentiment-stub" }

func (b *stubSentimentBackend) Predict(context.Context, *preprocess.Canonical) (*SentimentResult, error) {
	return &SentimentResult{Sentiment: domain.SentimentPositive, Confidence: 0.9}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
}

func TestHostForceModeUsesRules(t *testing.T) {
	failing := &failingCategoryBackend{}
	host := NewHost(HostConfig{Mode: config.RuleBasedForce}, testLogger(),
		WithLearnedBackends(failing, &failingSentimentBackend{}))

	triple, err := host.Predict(context.Background(), canonical(t, "Invoice issue", "I was charged twice"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if triple.Category.Category != domain.CategoryBilling {
		t.Errorf("Category = %s, want billing", triple.Category.Category)
	}
	if failing.callCount() != 0 {
		t.Errorf("learned backend called %d times in force mode, want 0", failing.callCount())
	}
	if !host.RuleBasedActive() {
		t.Error("RuleBasedActive = false in force mode")
	}
}

func TestHostAutoModeFallsBackPermanently(t *testing.T) {
	failing := &failingCategoryBackend{}
	sink := metrics.NewSink(100)
	host := NewHost(HostConfig{Mode: config.RuleBasedAuto, MemoryThreshold: 1}, testLogger(),
		WithLearnedBackends(failing, &failingSentimentBackend{}),
		WithMetrics(sink))

	text := canonical(t, "Invoice issue", "I was charged twice for my subscription")

	// First call: learned fails, rule-based answers.
	triple, err := host.Predict(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if triple.Category.Category != domain.CategoryBilling {
		t.Errorf("Category = %s, want billing", triple.Category.Category)
	}
	firstCalls := failing.callCount()
	if firstCalls != 1 {
		t.Fatalf("learned backend calls = %d, want 1", firstCalls)
	}

	// Subsequent calls never touch the learned backend again.
	for i := 0; i < 3; i++ {
		if _, err := host.Predict(context.Background(), text); err != nil {
			t.Fatalf("unexpected error on call %d: %v", i+2, err)
		}
	}
	if failing.callCount() != firstCalls {
		t.Errorf("learned backend calls = %d after fallback, want %d", failing.callCount(), firstCalls)
	}
	if !host.RuleBasedActive() {
		t.Error("RuleBasedActive = false after both modalities fell back")
	}

	// The transition metric fires once per modality.
	if got := sink.Counter("classification.fallback_activated"); got != 2 {
		t.Errorf("fallback_activated = %d, want 2", got)
	}
}

func TestHostOffModeSurfacesFailure(t *testing.T) {
	host := NewHost(HostConfig{Mode: config.RuleBasedOff}, testLogger(),
		WithLearnedBackends(&failingCategoryBackend{}, &failingSentimentBackend{}))

	_, err := host.Predict(context.Background(), canonical(t, "subject", "body"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !apperr.IsCode(err, apperr.CodeClassificationError) {
		t.Errorf("error code = %v, want CLASSIFICATION_ERROR", err)
	}
	if host.RuleBasedActive() {
		t.Error("RuleBasedActive = true in off mode")
	}
}

func TestHostOffModeWithoutBackends(t *testing.T) {
	host := NewHost(HostConfig{Mode: config.RuleBasedOff}, testLogger())

	_, err := host.Predict(context.Background(), canonical(t, "subject", "body"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !apperr.IsCode(err, apperr.CodeModelUnavailable) {
		t.Errorf("error code = %v, want MODEL_UNAVAILABLE", err)
	}
}

func TestHostAutoModeUsesLearnedWhenHealthy(t *testing.T) {
	host := NewHost(HostConfig{Mode: config.RuleBasedAuto, MemoryThreshold: 1}, testLogger(),
		WithLearnedBackends(&stubCategoryBackend{}, &stubSentimentBackend{}))

	triple, err := host.Predict(context.Background(), canonical(t, "Invoice issue", "charged twice"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if triple.Category.Category != domain.CategorySales {
		t.Errorf("Category = %s, want stub answer sales", triple.Category.Category)
	}
	if triple.Sentiment.Sentiment != domain.SentimentPositive {
		t.Errorf("Sentiment = %s, want stub answer positive", triple.Sentiment.Sentiment)
	}
	if host.RuleBasedActive() {
		t.Error("RuleBasedActive = true while learned backends are healthy")
	}
}

// memoryCache is an in-memory out.PredictionCache for tests.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, fp string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[fp], nil
}

func (c *memoryCache) Set(_ context.Context, fp string, v []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[fp] = v
	return nil
}

func TestHostPredictionCache(t *testing.T) {
	cache := newMemoryCache()
	sink := metrics.NewSink(100)
	host := NewHost(HostConfig{Mode: config.RuleBasedForce}, testLogger(),
		WithPredictionCache(cache), WithMetrics(sink))

	text := canonical(t, "Invoice issue", "I was charged twice")

	first, err := host.Predict(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := host.Predict(context.Background(), text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.Counter("classification.cache_miss") != 1 {
		t.Errorf("cache_miss = %d, want 1", sink.Counter("classification.cache_miss"))
	}
	if sink.Counter("classification.cache_hit") != 1 {
		t.Errorf("cache_hit = %d, want 1", sink.Counter("classification.cache_hit"))
	}
	if first.Category.Category != second.Category.Category ||
		first.ModelIdentifier != second.ModelIdentifier {
		t.Error("cached triple differs from computed triple")
	}
}
