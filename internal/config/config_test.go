package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsApplied(t *testing.T) {
	cfg := DefaultUserConfig()

	emb := cfg.GetEmbeddingConfig()
	assert.Equal(t, "ollama", emb.Provider)
	assert.Equal(t, "http://localhost:11434", emb.OllamaEndpoint)
	assert.Equal(t, "embeddinggemma", emb.OllamaModel)
	assert.Equal(t, 3, emb.MaxRetries)

	idx := cfg.GetIndexConfig()
	assert.Equal(t, 1000, idx.ChunkSize)
	assert.Equal(t, 200, idx.ChunkOverlap)
	assert.Equal(t, 32, idx.BatchSize)
	assert.Equal(t, int64(1<<20), idx.MaxFileSize)
	assert.Equal(t, 5, idx.TopK)

	mem := cfg.GetMemoryConfig()
	assert.Equal(t, 4000, mem.MaxContextTokens)
	assert.Equal(t, 50, mem.FetchCap)
	assert.Equal(t, 30, mem.RetentionDays)
}

func TestPartialConfigKeepsExplicitValues(t *testing.T) {
	cfg := &UserConfig{
		Index: &IndexConfig{ChunkSize: 512},
	}
	idx := cfg.GetIndexConfig()
	assert.Equal(t, 512, idx.ChunkSize)
	// Unset fields still get defaults
	assert.Equal(t, 200, idx.ChunkOverlap)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gptshell", "config.json")

	cfg := &UserConfig{
		Embedding: &EmbeddingConfig{Provider: "genai", GenAIModel: "gemini-embedding-001"},
		Memory:    &MemoryConfig{RetentionDays: 7},
	}
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadUserConfig(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "genai", loaded.Embedding.Provider)
	assert.Equal(t, 7, loaded.Memory.RetentionDays)
}

func TestLoadMissingConfigReturnsNil(t *testing.T) {
	loaded, err := LoadUserConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestEnvOverrideGenAIKey(t *testing.T) {
	t.Setenv("GPTSHELL_GENAI_API_KEY", "env-key")

	cfg := &UserConfig{Embedding: &EmbeddingConfig{GenAIAPIKey: "file-key"}}
	emb := cfg.GetEmbeddingConfig()
	assert.Equal(t, "env-key", emb.GenAIAPIKey)

	os.Unsetenv("GPTSHELL_GENAI_API_KEY")
	emb = cfg.GetEmbeddingConfig()
	assert.Equal(t, "file-key", emb.GenAIAPIKey)
}

func TestLoadYAMLAndMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fragment.yaml")
	frag := "embedding:\n  provider: genai\n  genai_model: gemini-embedding-001\n"
	require.NoError(t, os.WriteFile(path, []byte(frag), 0644))

	loaded, err := LoadYAML(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.Embedding)
	assert.Equal(t, "genai", loaded.Embedding.Provider)

	base := &UserConfig{Memory: &MemoryConfig{RetentionDays: 14}}
	base.Merge(loaded)
	assert.Equal(t, "genai", base.Embedding.Provider)
	assert.Equal(t, 14, base.Memory.RetentionDays)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, filepath.Join("/ws", ".gptshell", "index.db"), IndexDBPath("/ws"))
	assert.Equal(t, filepath.Join("/ws", ".gptshell", "conversations.db"), ConversationDBPath("/ws"))
	assert.Equal(t, filepath.Join("/ws", ".gptshell", "config.json"), DefaultConfigPath("/ws"))
}
