package embedding

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"gptshell/internal/logging"
)

// GenAIEngine generates embeddings via the Google GenAI API.
type GenAIEngine struct {
	client     *genai.Client
	model      string
	taskType   string
	dimensions int
}

// NewGenAIEngine creates a GenAI-backed embedding engine.
func NewGenAIEngine(apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai provider requires an API key (set GPTSHELL_GENAI_API_KEY)")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIEngine{
		client:   client,
		model:    model,
		taskType: taskType,
		// gemini-embedding-001 emits 3072-dim vectors; corrected on first
		// Embed if the API reports otherwise
		dimensions: 3072,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("genai returned no embeddings")
	}
	return results[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one API call.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	timer := logging.StartTimer(logging.CategoryEmbedding, "GenAIEmbedBatch")
	defer timer.StopWithInfo(fmt.Sprintf("texts=%d model=%s", len(texts), e.model))

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType: e.taskType,
	})
	if err != nil {
		return nil, classifyGenAIError(err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("genai returned %d embeddings for %d texts",
			len(result.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("genai returned empty embedding at index %d", i)
		}
		embeddings[i] = Normalize(emb.Values)
	}

	if d := len(embeddings[0]); d != e.dimensions {
		logging.Embedding("GenAI model %s reports %d dimensions (was %d)", e.model, d, e.dimensions)
		e.dimensions = d
	}

	return embeddings, nil
}

// Dimensions returns the embedding dimensionality.
func (e *GenAIEngine) Dimensions() int {
	return e.dimensions
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai/%s", e.model)
}

// classifyGenAIError maps SDK errors onto the retry taxonomy. The SDK does
// not expose a stable status-code type across transports, so this matches
// on the rendered message.
func classifyGenAIError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "quota"),
		strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "rate limit"):
		return &RateLimitError{Provider: "genai", Err: err}
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "unavailable"),
		strings.Contains(msg, "deadline exceeded"), strings.Contains(msg, "timeout"):
		return &TransientError{Provider: "genai", Err: err}
	}
	return fmt.Errorf("genai embed failed: %w", err)
}
