package index

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"gptshell/internal/config"
	"gptshell/internal/embedding"
	"gptshell/internal/logging"
)

// Result is one retrieved snippet with its relevance score.
type Result struct {
	Path    string
	Start   int
	End     int
	Snippet string
	// Score is cosine similarity in [-1, 1]; higher is more relevant
	Score float64
}

// Retriever answers semantic queries against the index.
type Retriever struct {
	store  *Store
	engine embedding.EmbeddingEngine
	cfg    config.IndexConfig
}

// NewRetriever creates a retriever over the given store and engine.
func NewRetriever(store *Store, engine embedding.EmbeddingEngine, cfg config.IndexConfig) *Retriever {
	return &Retriever{store: store, engine: engine, cfg: cfg}
}

// Retrieve embeds the query and returns the topK most similar chunks,
// best first. An empty index yields no results and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	timer := logging.StartTimer(logging.CategoryRetrieval, "Retrieve")
	logging.Retrieval("Retrieving top %d for query (%d chars)", topK, len(query))

	queryVec, err := r.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, scores, err := r.store.Search(queryVec, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(chunks))
	for i, c := range chunks {
		results = append(results, Result{
			Path:    c.Path,
			Start:   c.Start,
			End:     c.End,
			Snippet: clipSnippet(c.Text, r.cfg.SnippetMaxChars),
			Score:   scores[i],
		})
	}

	logging.Audit(logging.AuditRetrieval, "query_chars", len(query), "results", len(results))
	timer.StopWithInfo(fmt.Sprintf("results=%d", len(results)))
	return results, nil
}

// FormatResults renders retrieval results as a context block for prompt
// injection. Empty results render as an empty string.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Relevant workspace context:\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "\n--- %s [%d:%d] (score %.3f) ---\n", r.Path, r.Start, r.End, r.Score)
		sb.WriteString(r.Snippet)
		if !strings.HasSuffix(r.Snippet, "\n") {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// clipSnippet bounds snippet length without splitting a UTF-8 sequence.
func clipSnippet(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	clipped := text[:maxChars]
	// Back off any trailing partial rune
	for len(clipped) > 0 && !utf8.ValidString(clipped) {
		clipped = clipped[:len(clipped)-1]
	}
	return clipped
}
