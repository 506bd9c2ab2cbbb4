package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

// MockEmbeddingEngine produces deterministic vectors derived from the text
// hash. Same text always yields the same vector.
type MockEmbeddingEngine struct {
	dims  int
	calls int
	fail  error // returned on every call when set
}

func NewMockEngine(dims int) *MockEmbeddingEngine {
	return &MockEmbeddingEngine{dims: dims}
}

func (m *MockEmbeddingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}
	return mockVector(text, m.dims), nil
}

func (m *MockEmbeddingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = mockVector(t, m.dims)
	}
	return out, nil
}

func (m *MockEmbeddingEngine) Dimensions() int { return m.dims }
func (m *MockEmbeddingEngine) Name() string    { return "mock" }

func mockVector(text string, dims int) []float32 {
	h := sha256.Sum256([]byte(text))
	v := make([]float32, dims)
	for i := range v {
		bits := binary.LittleEndian.Uint32(h[(i*4)%28:])
		v[i] = float32(bits%1000)/500.0 - 1.0
	}
	return Normalize(v)
}

func TestNormalizeUnitLength(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	norm := math.Sqrt(float64(v[0])*float64(v[0]) + float64(v[1])*float64(v[1]))
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("expected unit length, got %f", norm)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("unexpected normalized vector: %v", v)
	}
}

func TestNormalizeZeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	Normalize(v)
	for i, x := range v {
		if x != 0 {
			t.Errorf("zero vector changed at %d: %f", i, x)
		}
	}
}

func TestDotEqualsCosineForUnitVectors(t *testing.T) {
	a := Normalize([]float32{1, 2, 3})
	b := Normalize([]float32{4, 5, 6})

	cos, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(Dot(a, b)-cos) > 1e-6 {
		t.Errorf("dot %f != cosine %f for unit vectors", Dot(a, b), cos)
	}
}

func TestCosineSimilarityBounds(t *testing.T) {
	a := []float32{1, 0}

	same, _ := CosineSimilarity(a, []float32{2, 0})
	if math.Abs(same-1.0) > 1e-6 {
		t.Errorf("parallel vectors: expected 1, got %f", same)
	}

	opp, _ := CosineSimilarity(a, []float32{-1, 0})
	if math.Abs(opp+1.0) > 1e-6 {
		t.Errorf("opposite vectors: expected -1, got %f", opp)
	}

	orth, _ := CosineSimilarity(a, []float32{0, 1})
	if math.Abs(orth) > 1e-6 {
		t.Errorf("orthogonal vectors: expected 0, got %f", orth)
	}

	if _, err := CosineSimilarity(a, []float32{1, 2, 3}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestMockEngineDeterministic(t *testing.T) {
	eng := NewMockEngine(16)
	ctx := context.Background()

	v1, err := eng.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := eng.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("same text produced different vectors at %d", i)
		}
	}
}

func TestNewEngineUnknownProvider(t *testing.T) {
	_, err := NewEngine(Config{Provider: "banana"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

// failNTimesEngine fails the first n calls, then delegates to a mock.
type failNTimesEngine struct {
	*MockEmbeddingEngine
	failures int
	err      error
}

func (f *failNTimesEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failures > 0 {
		f.failures--
		f.calls++
		return nil, f.err
	}
	return f.MockEmbeddingEngine.EmbedBatch(ctx, texts)
}

func newRetryForTest(inner EmbeddingEngine, maxRetries int) *retryEngine {
	return &retryEngine{
		inner:      inner,
		maxRetries: maxRetries,
		wait:       func(context.Context, time.Duration) error { return nil },
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	inner := &failNTimesEngine{
		MockEmbeddingEngine: NewMockEngine(8),
		failures:            2,
		err:                 &TransientError{Provider: "test", Status: 503, Err: errors.New("unavailable")},
	}
	eng := newRetryForTest(inner, 3)

	out, err := eng.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(out))
	}
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	inner := NewMockEngine(8)
	inner.fail = &RateLimitError{Provider: "test", Err: errors.New("quota exceeded")}
	eng := newRetryForTest(inner, 2)

	_, err := eng.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	// 1 initial + 2 retries
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Errorf("final error should wrap the last RateLimitError: %v", err)
	}
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	inner := NewMockEngine(8)
	inner.fail = &TransientError{Provider: "test", Status: 503, Err: errors.New("unavailable")}
	eng := WithRetry(inner, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Embed(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	// The backoff wait must notice cancellation instead of sleeping it out
	if inner.calls != 1 {
		t.Errorf("cancelled context should stop after the first attempt, got %d", inner.calls)
	}
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	inner := NewMockEngine(8)
	inner.fail = fmt.Errorf("bad request: empty model name")
	eng := newRetryForTest(inner, 3)

	_, err := eng.Embed(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("permanent error should not be retried, got %d attempts", inner.calls)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	if !isRetryable(classifyHTTPStatus("p", 429, "slow down")) {
		t.Error("429 should be retryable")
	}
	if !isRetryable(classifyHTTPStatus("p", 503, "unavailable")) {
		t.Error("503 should be retryable")
	}
	if isRetryable(classifyHTTPStatus("p", 400, "bad request")) {
		t.Error("400 should not be retryable")
	}
	if isRetryable(classifyHTTPStatus("p", 404, "not found")) {
		t.Error("404 should not be retryable")
	}
}
