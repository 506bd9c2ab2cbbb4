// Package config holds all gptshell configuration from .gptshell/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// UserConfig is the single source of truth for configuration.
// All sub-configs are optional pointers; zero values fall back to defaults
// through the Get*Config accessors.
type UserConfig struct {
	// Embedding engine configuration for semantic vector search
	Embedding *EmbeddingConfig `json:"embedding,omitempty" yaml:"embedding,omitempty"`

	// Index configuration (chunking, batching, file filtering, retrieval)
	Index *IndexConfig `json:"index,omitempty" yaml:"index,omitempty"`

	// Memory configuration (context budget, retention)
	Memory *MemoryConfig `json:"memory,omitempty" yaml:"memory,omitempty"`

	// Logging configuration
	Logging *LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// EmbeddingConfig configures the vector embedding engine.
// Supports Ollama (local) and GenAI (cloud) backends.
type EmbeddingConfig struct {
	// Provider: "ollama" or "genai"
	Provider string `json:"provider" yaml:"provider"`

	// Ollama Configuration (local embedding server)
	OllamaEndpoint string `json:"ollama_endpoint" yaml:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `json:"ollama_model" yaml:"ollama_model"`       // Default: "embeddinggemma"

	// GenAI Configuration (Google cloud embedding)
	GenAIAPIKey string `json:"genai_api_key" yaml:"genai_api_key"`
	GenAIModel  string `json:"genai_model" yaml:"genai_model"` // Default: "gemini-embedding-001"

	// TaskType for GenAI embeddings:
	// SEMANTIC_SIMILARITY, RETRIEVAL_DOCUMENT, RETRIEVAL_QUERY, ...
	TaskType string `json:"task_type" yaml:"task_type"` // Default: "SEMANTIC_SIMILARITY"

	// Retry policy for transient embedding-service failures
	MaxRetries int `json:"max_retries" yaml:"max_retries"` // Default: 3
}

// IndexConfig configures the local embedding index.
type IndexConfig struct {
	// Chunking parameters (bytes)
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`       // Default: 1000
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"` // Default: 200

	// Embedding batch size per external request
	BatchSize int `json:"batch_size" yaml:"batch_size"` // Default: 32

	// Files larger than this are never indexed (bytes)
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"` // Default: 1 MiB

	// Glob patterns excluded from enumeration (matched against path segments)
	IgnoreGlobs []string `json:"ignore_globs" yaml:"ignore_globs"`

	// Retrieval parameters
	TopK            int `json:"top_k" yaml:"top_k"`                         // Default: 5
	SnippetMaxChars int `json:"snippet_max_chars" yaml:"snippet_max_chars"` // Default: 500
}

// MemoryConfig configures the conversation memory store.
type MemoryConfig struct {
	// Token budget for reconstructed context
	MaxContextTokens int `json:"max_context_tokens" yaml:"max_context_tokens"` // Default: 4000

	// Newest-first fetch cap bounding worst-case read cost
	FetchCap int `json:"fetch_cap" yaml:"fetch_cap"` // Default: 50

	// Days of raw turns kept before compaction
	RetentionDays int `json:"retention_days" yaml:"retention_days"` // Default: 30
}

// LoggingConfig controls debug logging.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode" yaml:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty" yaml:"categories,omitempty"`
	Level      string          `json:"level,omitempty" yaml:"level,omitempty"`
}

// GetEmbeddingConfig returns the embedding config with defaults applied.
func (c *UserConfig) GetEmbeddingConfig() EmbeddingConfig {
	cfg := EmbeddingConfig{}
	if c != nil && c.Embedding != nil {
		cfg = *c.Embedding
	}
	if cfg.Provider == "" {
		cfg.Provider = "ollama"
	}
	if cfg.OllamaEndpoint == "" {
		cfg.OllamaEndpoint = "http://localhost:11434"
	}
	if cfg.OllamaModel == "" {
		cfg.OllamaModel = "embeddinggemma"
	}
	if cfg.GenAIModel == "" {
		cfg.GenAIModel = "gemini-embedding-001"
	}
	if cfg.TaskType == "" {
		cfg.TaskType = "SEMANTIC_SIMILARITY"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	// Env override so the key never has to live in the config file
	if key := os.Getenv("GPTSHELL_GENAI_API_KEY"); key != "" {
		cfg.GenAIAPIKey = key
	}
	return cfg
}

// GetIndexConfig returns the index config with defaults applied.
func (c *UserConfig) GetIndexConfig() IndexConfig {
	cfg := IndexConfig{}
	if c != nil && c.Index != nil {
		cfg = *c.Index
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 1 << 20
	}
	if cfg.IgnoreGlobs == nil {
		cfg.IgnoreGlobs = []string{".git", ".gptshell", "node_modules", "vendor", "*.min.js"}
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.SnippetMaxChars == 0 {
		cfg.SnippetMaxChars = 500
	}
	return cfg
}

// GetMemoryConfig returns the memory config with defaults applied.
func (c *UserConfig) GetMemoryConfig() MemoryConfig {
	cfg := MemoryConfig{}
	if c != nil && c.Memory != nil {
		cfg = *c.Memory
	}
	if cfg.MaxContextTokens == 0 {
		cfg.MaxContextTokens = 4000
	}
	if cfg.FetchCap == 0 {
		cfg.FetchCap = 50
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 30
	}
	return cfg
}

// GetLogging returns the logging config (zero value when unset).
func (c *UserConfig) GetLogging() LoggingConfig {
	if c != nil && c.Logging != nil {
		return *c.Logging
	}
	return LoggingConfig{}
}

// DefaultUserConfig returns a config with all sub-configs unset (defaults apply).
func DefaultUserConfig() *UserConfig {
	return &UserConfig{}
}

// DefaultConfigPath returns <workspace>/.gptshell/config.json.
func DefaultConfigPath(workspace string) string {
	return filepath.Join(workspace, ".gptshell", "config.json")
}

// DataDir returns <workspace>/.gptshell, the directory owning all local state.
func DataDir(workspace string) string {
	return filepath.Join(workspace, ".gptshell")
}

// IndexDBPath returns the path of the vector index store.
func IndexDBPath(workspace string) string {
	return filepath.Join(DataDir(workspace), "index.db")
}

// ConversationDBPath returns the path of the conversation history store.
func ConversationDBPath(workspace string) string {
	return filepath.Join(DataDir(workspace), "conversations.db")
}

// UsagePath returns the path of the persisted usage totals.
func UsagePath(workspace string) string {
	return filepath.Join(DataDir(workspace), "usage.json")
}

// LoadUserConfig reads a UserConfig from the given path.
// Returns (nil, nil) if the file does not exist.
func LoadUserConfig(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg UserConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config as indented JSON, creating the directory if needed.
func (c *UserConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
