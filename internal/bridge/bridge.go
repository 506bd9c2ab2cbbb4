// Package bridge wires the index, memory, and usage subsystems into one
// facade over a workspace. Commands talk to a Bridge; subsystems never
// talk to each other directly.
package bridge

import (
	"context"
	"fmt"
	"time"

	"gptshell/internal/config"
	"gptshell/internal/embedding"
	"gptshell/internal/index"
	"gptshell/internal/logging"
	"gptshell/internal/memory"
	"gptshell/internal/usage"
)

// Bridge owns all per-workspace state under .gptshell/.
type Bridge struct {
	workspace string
	cfg       *config.UserConfig

	engine     embedding.EmbeddingEngine
	indexStore *index.Store
	builder    *index.Builder
	retriever  *index.Retriever

	memStore   *memory.Store
	ctxBuilder *memory.ContextBuilder
	summarizer *memory.Summarizer

	tracker *usage.Tracker
}

// Options overrides parts of the default wiring.
type Options struct {
	// Engine replaces the configured embedding engine (used by tests)
	Engine embedding.EmbeddingEngine
}

// New opens a bridge over the workspace, creating .gptshell/ state as
// needed. The caller must Close it.
func New(workspace string, opts Options) (*Bridge, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "bridge.New")
	defer timer.Stop()

	cfg, err := config.LoadUserConfig(config.DefaultConfigPath(workspace))
	if err != nil {
		return nil, err
	}

	engine := opts.Engine
	if engine == nil {
		engine, err = embedding.NewEngine(embeddingConfig(cfg))
		if err != nil {
			return nil, err
		}
	}

	indexStore, err := index.NewStore(config.IndexDBPath(workspace))
	if err != nil {
		return nil, err
	}

	memStore, err := memory.NewStore(config.ConversationDBPath(workspace))
	if err != nil {
		indexStore.Close()
		return nil, err
	}

	tracker, err := usage.NewTracker(config.UsagePath(workspace))
	if err != nil {
		indexStore.Close()
		memStore.Close()
		return nil, err
	}

	idxCfg := cfg.GetIndexConfig()
	memCfg := cfg.GetMemoryConfig()

	b := &Bridge{
		workspace:  workspace,
		cfg:        cfg,
		engine:     engine,
		indexStore: indexStore,
		builder:    index.NewBuilder(workspace, indexStore, engine, idxCfg),
		retriever:  index.NewRetriever(indexStore, engine, idxCfg),
		memStore:   memStore,
		ctxBuilder: memory.NewContextBuilder(memStore, memCfg),
		summarizer: memory.NewSummarizer(memStore, memCfg),
		tracker:    tracker,
	}
	logging.Boot("Bridge ready for workspace %s", workspace)
	return b, nil
}

func embeddingConfig(cfg *config.UserConfig) embedding.Config {
	ec := cfg.GetEmbeddingConfig()
	return embedding.Config{
		Provider:       ec.Provider,
		OllamaEndpoint: ec.OllamaEndpoint,
		OllamaModel:    ec.OllamaModel,
		GenAIAPIKey:    ec.GenAIAPIKey,
		GenAIModel:     ec.GenAIModel,
		TaskType:       ec.TaskType,
		MaxRetries:     ec.MaxRetries,
	}
}

// Close releases both stores.
func (b *Bridge) Close() error {
	var firstErr error
	if err := b.indexStore.Close(); err != nil {
		firstErr = err
	}
	if err := b.memStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Workspace returns the workspace root.
func (b *Bridge) Workspace() string { return b.workspace }

// Config returns the loaded user config (nil when absent).
func (b *Bridge) Config() *config.UserConfig { return b.cfg }

// =============================================================================
// INDEX
// =============================================================================

// BuildIndex brings the workspace index up to date.
func (b *Bridge) BuildIndex(ctx context.Context) (*index.BuildResult, error) {
	return b.builder.Build(ctx)
}

// WatchIndex rebuilds the index on filesystem changes until ctx ends.
func (b *Bridge) WatchIndex(ctx context.Context, debounce time.Duration, onBuild func(*index.BuildResult, error)) error {
	return index.NewWatcher(b.builder, debounce).Run(ctx, onBuild)
}

// IndexStats returns index summary statistics.
func (b *Bridge) IndexStats() (index.Stats, error) {
	return b.indexStore.Stats()
}

// RetrieveContext returns a prompt-ready context block for the query.
// An empty index yields an empty string.
func (b *Bridge) RetrieveContext(ctx context.Context, query string, topK int) (string, error) {
	results, err := b.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return "", err
	}
	return index.FormatResults(results), nil
}

// Retrieve returns raw retrieval results for the query.
func (b *Bridge) Retrieve(ctx context.Context, query string, topK int) ([]index.Result, error) {
	return b.retriever.Retrieve(ctx, query, topK)
}

// =============================================================================
// MEMORY
// =============================================================================

// StartSession opens a conversation session for this workspace.
func (b *Bridge) StartSession() (string, error) {
	return b.memStore.StartSession(b.workspace)
}

// EndSession closes a session and rolls up its aggregates.
func (b *Bridge) EndSession(sessionID string) error {
	return b.memStore.EndSession(sessionID)
}

// RecordTurn persists one exchange and folds its usage into the lifetime
// totals. The accumulator carries exactly what this exchange cost.
func (b *Bridge) RecordTurn(sessionID, userMsg, assistantMsg string, toolCalls []memory.ToolCall, acc usage.Accumulator) error {
	turn := &memory.ConversationTurn{
		SessionID:        sessionID,
		ProjectPath:      b.workspace,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		ToolCalls:        toolCalls,
		TokensUsed:       acc.Total(),
		Cost:             acc.Cost,
	}
	if err := b.memStore.SaveTurn(turn); err != nil {
		return err
	}
	if err := b.tracker.Record(acc); err != nil {
		// Usage is advisory; the turn itself is already durable
		logging.Get(logging.CategoryMemory).Warn("Failed to record usage: %v", err)
	}
	return nil
}

// RecentContext reconstructs recent conversation as chat messages within
// the token budget (0 means the configured default).
func (b *Bridge) RecentContext(maxTokens int) ([]memory.Message, error) {
	return b.ctxBuilder.RecentContext(b.workspace, maxTokens)
}

// ProjectStats summarizes recorded history for this workspace.
func (b *Bridge) ProjectStats() (*memory.ProjectStats, error) {
	return b.memStore.ProjectStats(b.workspace)
}

// Summarize compacts the given period into a stored summary. An empty
// window yields a non-persisted "No recent activity" marker.
func (b *Bridge) Summarize(period string) (*memory.ContextSummary, error) {
	return b.summarizer.CreateSummary(b.workspace, period)
}

// Summaries lists stored summaries for this workspace, newest first.
func (b *Bridge) Summaries() ([]memory.ContextSummary, error) {
	return b.memStore.Summaries(b.workspace)
}

// Cleanup archives and deletes turns older than retentionDays (0 means
// the configured default). Returns the number of deleted turns.
func (b *Bridge) Cleanup(retentionDays int) (int, error) {
	return b.summarizer.CleanupOldConversations(retentionDays)
}

// =============================================================================
// USAGE
// =============================================================================

// UsageTotals returns lifetime usage totals.
func (b *Bridge) UsageTotals() usage.Totals {
	return b.tracker.Totals()
}

// FormatUsage renders usage totals for display.
func FormatUsage(t usage.Totals) string {
	return fmt.Sprintf("exchanges=%d prompt_tokens=%d completion_tokens=%d cost=$%.4f",
		t.Exchanges, t.PromptTokens, t.CompletionTokens, t.Cost)
}
